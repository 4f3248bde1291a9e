package orchestrator

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/docteur/internal/collector"
	"github.com/coral-mesh/docteur/internal/constants"
)

// Options configure one profiling run.
type Options struct {
	// Command is the runtime invocation, e.g. ["node"].
	Command []string
	// Preload are arguments placed before the entry, typically the flags
	// that load the instrumentation, e.g. ["--import", "docteur/register"].
	Preload []string
	// Entry is the application entry point. It may be empty when Command
	// already names the program.
	Entry string
	// Args follow the entry.
	Args []string
	// Dir is the working directory of the child.
	Dir string
	// Env is appended to the current environment.
	Env []string

	// ReadyPattern matches the stdout line that signals readiness.
	ReadyPattern *regexp.Regexp
	// Timeout bounds the whole run.
	Timeout time.Duration
	// FallbackTimeout requests results when readiness was never seen.
	FallbackTimeout time.Duration
	// KillGrace separates SIGTERM from SIGKILL.
	KillGrace time.Duration
	// DrainTimeout bounds reading telemetry still in flight after the
	// child stopped.
	DrainTimeout time.Duration

	// Stdout receives a copy of the child's standard output.
	Stdout io.Writer
	// Stderr receives the child's standard error.
	Stderr io.Writer
	// PTY gives the child a pseudo-terminal as stdout so runtimes that
	// buffer pipes still print the readiness line promptly.
	PTY bool

	// Conventions categorise modules in the summary.
	Conventions collector.Conventions

	// Logger is optional and defaults to zerolog.Nop().
	Logger zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.ReadyPattern == nil {
		o.ReadyPattern = regexp.MustCompile(regexp.QuoteMeta(constants.DefaultReadyPattern))
	}
	if o.Timeout <= 0 {
		o.Timeout = constants.DefaultTimeout
	}
	if o.FallbackTimeout <= 0 {
		o.FallbackTimeout = constants.DefaultFallbackTimeout
	}
	if o.KillGrace <= 0 {
		o.KillGrace = constants.DefaultKillGrace
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = constants.DefaultDrainTimeout
	}
	if o.Logger.GetLevel() == zerolog.Disabled {
		o.Logger = zerolog.Nop()
	}
	return o
}

func (o Options) validate() error {
	if len(o.Command) == 0 || o.Command[0] == "" {
		return errors.New("command is required")
	}
	if o.FallbackTimeout >= o.Timeout {
		return fmt.Errorf("fallback timeout %s must be shorter than timeout %s", o.FallbackTimeout, o.Timeout)
	}
	return nil
}

func (o Options) argv() []string {
	args := append([]string{}, o.Command[1:]...)
	args = append(args, o.Preload...)
	if o.Entry != "" {
		args = append(args, o.Entry)
	}
	return append(args, o.Args...)
}
