package helpers

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/coral-mesh/docteur/internal/orchestrator"
	"github.com/coral-mesh/docteur/pkg/timing"
)

// Run is one profiled boot as the commands see it.
type Run struct {
	Result    *timing.ProfileResult
	Entry     string
	StartedAt time.Time
}

// OrchestratorOptions maps the runtime configuration onto one run of
// entry. When no runtime command is configured the entry is executed
// directly.
func (e *Env) OrchestratorOptions(entry string, args []string, passthrough io.Writer) (orchestrator.Options, error) {
	cfg := e.Config
	ready, err := cfg.ReadyRegexp()
	if err != nil {
		return orchestrator.Options{}, err
	}

	opts := orchestrator.Options{
		Command:         append([]string{}, cfg.Runtime.Command...),
		Preload:         cfg.Runtime.Preload,
		Entry:           entry,
		Args:            args,
		Dir:             e.Cwd,
		ReadyPattern:    ready,
		Timeout:         cfg.Runtime.Timeout,
		FallbackTimeout: cfg.Runtime.FallbackTimeout,
		KillGrace:       cfg.Runtime.KillGrace,
		PTY:             cfg.Runtime.PTY,
		Conventions:     cfg.Conventions,
		Logger:          e.Logger,
	}
	if len(opts.Command) == 0 {
		opts.Command = []string{entry}
		opts.Entry = ""
	}
	if cfg.Runtime.Passthrough && passthrough != nil {
		opts.Stdout = passthrough
		opts.Stderr = passthrough
	}
	return opts, nil
}

// Profile resolves the entry point, boots it once under instrumentation and
// returns the collected result. A partial result is returned with a warning.
func (e *Env) Profile(ctx context.Context, entryFlag string, args []string, passthrough io.Writer) (*Run, error) {
	entry, err := ResolveEntry(e.Cwd, firstNonEmpty(entryFlag, e.Config.Runtime.Entry), e.Config.Runtime.EntryCandidates)
	if err != nil {
		return nil, err
	}

	opts, err := e.OrchestratorOptions(entry, args, passthrough)
	if err != nil {
		return nil, err
	}
	orch, err := orchestrator.New(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	e.Logger.Info().Str("entry", entry).Msg("Profiling application boot")
	startedAt := time.Now()
	result, err := orch.Run(ctx)
	if err != nil {
		return nil, err
	}
	if result.Partial {
		e.Logger.Warn().
			Int("modules", len(result.Modules)).
			Msg("Application stopped before reporting; results are partial")
	}
	if result.DroppedEvents > 0 {
		e.Logger.Warn().Int64("dropped", result.DroppedEvents).Msg("Telemetry events were dropped")
	}

	return &Run{Result: result, Entry: entry, StartedAt: startedAt}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
