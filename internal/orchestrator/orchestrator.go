// Package orchestrator runs a target process under instrumentation and
// retrieves its profiling results.
//
// The child inherits three pipes besides stdio (control out, control in and
// telemetry). The orchestrator watches stdout for the readiness line, asks
// for results over the control channel, accumulates streamed telemetry and
// resolves on whichever of results, timeout, exit or cancellation happens
// first. The child is always terminated and reaped before Run returns.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/kr/pty"
	"github.com/rs/zerolog"

	"github.com/coral-mesh/docteur/internal/collector"
	ierrors "github.com/coral-mesh/docteur/internal/errors"
	"github.com/coral-mesh/docteur/internal/retry"
	"github.com/coral-mesh/docteur/pkg/sdk/protocol"
	"github.com/coral-mesh/docteur/pkg/timing"
)

// spawnRetry retries exec while the entry binary is still busy being written.
var spawnRetry = retry.Config{MaxRetries: 5, InitialBackoff: 10 * time.Millisecond, MaxBackoff: 200 * time.Millisecond}

// Orchestrator spawns and supervises profiling runs.
type Orchestrator struct {
	opts      Options
	logger    zerolog.Logger
	collector *collector.Collector
}

// New validates opts and creates an orchestrator.
func New(opts Options) (*Orchestrator, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	col, err := collector.New(timing.DefaultConfig(), collector.WithConventions(opts.Conventions))
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		opts:      opts,
		logger:    opts.Logger.With().Str("component", "orchestrator").Logger(),
		collector: col,
	}, nil
}

// source tags where a message came from.
type source int

const (
	sourceControl source = iota
	sourceTelemetry
)

type message struct {
	src source
	env protocol.Envelope
}

// run holds the state of one profiling session.
type run struct {
	o         *Orchestrator
	logger    zerolog.Logger
	sessionID string
	cmd       *exec.Cmd
	spawnedAt time.Time

	// parent ends
	controlOut *os.File
	controlIn  *os.File
	telemetry  *os.File
	stdout     *os.File

	requests   *protocol.Writer
	msgs       chan message
	ready      chan struct{}
	done       chan struct{}
	msgReaders sync.WaitGroup
	stdoutDone chan struct{}

	// waitErr and exitedAt are written before waitDone is closed.
	waitDone chan struct{}
	waitErr  error
	exitedAt time.Time

	modules    *timing.ModuleSet
	components []timing.ComponentPhaseTiming
	dropped    int64
	requested  bool
	process    *timing.ProcessStats
}

// Run profiles one boot of the target.
func (o *Orchestrator) Run(ctx context.Context) (*timing.ProfileResult, error) {
	r := &run{
		o:          o,
		sessionID:  uuid.NewString(),
		msgs:       make(chan message, 64),
		ready:      make(chan struct{}, 1),
		done:       make(chan struct{}),
		stdoutDone: make(chan struct{}),
		waitDone:   make(chan struct{}),
		modules:    timing.NewModuleSet(),
	}
	r.logger = o.logger.With().Str("session", r.sessionID).Logger()

	if err := r.start(ctx); err != nil {
		return nil, err
	}
	defer r.close()

	return r.loop(ctx)
}

func (r *run) start(ctx context.Context) error {
	opts := r.o.opts

	controlOutR, controlOutW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSpawnFailure, err)
	}
	controlInR, controlInW, err := os.Pipe()
	if err != nil {
		ierrors.CloseAll(r.logger, "Failed to close pipe", controlOutR, controlOutW)
		return fmt.Errorf("%w: %v", ErrSpawnFailure, err)
	}
	telemetryR, telemetryW, err := os.Pipe()
	if err != nil {
		ierrors.CloseAll(r.logger, "Failed to close pipe", controlOutR, controlOutW, controlInR, controlInW)
		return fmt.Errorf("%w: %v", ErrSpawnFailure, err)
	}
	r.controlOut, r.controlIn, r.telemetry = controlOutR, controlInW, telemetryR
	childEnds := []io.Closer{controlOutW, controlInR, telemetryW}

	var stdout *os.File
	var sysProc *syscall.SysProcAttr
	if opts.PTY {
		ptmx, tty, err := pty.Open()
		if err != nil {
			r.closeParentEnds()
			ierrors.CloseAll(r.logger, "Failed to close pipe", childEnds...)
			return fmt.Errorf("%w: failed to open PTY: %v", ErrSpawnFailure, err)
		}
		r.stdout, stdout = ptmx, tty
		// A session leader is also its own process group leader.
		sysProc = &syscall.SysProcAttr{Setsid: true, Setctty: true, Ctty: 1}
	} else {
		stdoutR, stdoutW, err := os.Pipe()
		if err != nil {
			r.closeParentEnds()
			ierrors.CloseAll(r.logger, "Failed to close pipe", childEnds...)
			return fmt.Errorf("%w: %v", ErrSpawnFailure, err)
		}
		r.stdout, stdout = stdoutR, stdoutW
		sysProc = &syscall.SysProcAttr{Setpgid: true}
	}
	childEnds = append(childEnds, stdout)

	env := append(os.Environ(), opts.Env...)
	env = append(env,
		protocol.EnvProfiling+"=true",
		protocol.EnvSessionID+"="+r.sessionID,
		protocol.EnvIPCFDs+"="+protocol.DefaultFDs().String(),
	)

	var cmd *exec.Cmd
	err = retry.Do(ctx, spawnRetry, func() error {
		// An exec.Cmd cannot be started twice.
		cmd = exec.Command(opts.Command[0], opts.argv()...) //nolint:gosec // G204: the command is what the user asked to profile.
		cmd.Dir = opts.Dir
		cmd.Env = env
		cmd.ExtraFiles = []*os.File{controlOutW, controlInR, telemetryW}
		cmd.Stdout = stdout
		cmd.Stderr = opts.Stderr
		cmd.SysProcAttr = sysProc
		return cmd.Start()
	}, func(err error) bool {
		return errors.Is(err, syscall.ETXTBSY)
	})
	// The child holds its own copies now.
	ierrors.CloseAll(r.logger, "Failed to close child pipe end", childEnds...)
	if err != nil {
		r.closeParentEnds()
		return fmt.Errorf("%w: %s: %v", ErrSpawnFailure, opts.Command[0], err)
	}

	r.cmd = cmd
	r.spawnedAt = time.Now()
	r.requests = protocol.NewWriter(r.controlIn, r.sessionID)

	r.logger.Debug().
		Int("pid", cmd.Process.Pid).
		Strs("argv", cmd.Args).
		Bool("pty", opts.PTY).
		Msg("Target process spawned")

	go func() {
		err := cmd.Wait()
		r.waitErr = err
		r.exitedAt = time.Now()
		close(r.waitDone)
	}()

	r.msgReaders.Add(2)
	go r.readMessages(r.controlOut, sourceControl)
	go r.readMessages(r.telemetry, sourceTelemetry)
	go r.watchStdout()

	return nil
}

func (r *run) loop(ctx context.Context) (*timing.ProfileResult, error) {
	opts := r.o.opts

	hard := time.NewTimer(opts.Timeout)
	defer hard.Stop()
	fallback := time.NewTimer(opts.FallbackTimeout)
	defer fallback.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug().Err(ctx.Err()).Msg("Profiling cancelled")
			r.terminate()
			return nil, ctx.Err()

		case <-hard.C:
			r.logger.Warn().Dur("timeout", opts.Timeout).Msg("No results before timeout, terminating target")
			r.terminate()
			return nil, fmt.Errorf("%w after %s", ErrTimeout, opts.Timeout)

		case <-r.ready:
			r.logger.Debug().Float64("elapsed_ms", r.elapsedMs()).Msg("Readiness detected")
			r.requestResults()

		case <-fallback.C:
			if !r.requested {
				r.logger.Warn().Dur("after", opts.FallbackTimeout).Msg("No readiness signal, requesting results anyway")
				r.requestResults()
			}

		case msg := <-r.msgs:
			if res, ok := r.handle(msg); ok {
				r.snapshot(ctx)
				r.kill()
				r.drain()
				return r.finalize(res), nil
			}

		case <-r.waitDone:
			status := exitStatusOf(r.waitErr)
			// Results already in the pipe when the child exited still win.
			if res := r.drain(); res != nil {
				return r.finalize(res), nil
			}
			if !status.expected() {
				r.logger.Warn().
					Int("code", status.code).
					Int("modules", r.modules.Len()).
					Msg("Target exited abnormally before reporting results")
				return nil, status.asError()
			}
			r.logger.Warn().
				Int("code", status.code).
				Int("modules", r.modules.Len()).
				Msg("Target exited before reporting results, building partial profile")
			return r.partial(), nil
		}
	}
}

// handle applies one message. It returns the final payload when msg is the
// answer to getResults.
func (r *run) handle(msg message) (*protocol.Results, bool) {
	env := msg.env
	if env.Session != r.sessionID {
		r.logger.Debug().Str("got", env.Session).Str("type", string(env.Type)).Msg("Dropping message from another session")
		return nil, false
	}

	switch env.Type {
	case protocol.TypeModule:
		var m timing.ModuleTiming
		if r.decode(env, &m) {
			r.modules.Add(m)
		}
	case protocol.TypeProvider:
		var c timing.ComponentPhaseTiming
		if r.decode(env, &c) {
			r.components = append(r.components, c)
		}
	case protocol.TypeBatch:
		var b protocol.Batch
		if r.decode(env, &b) {
			r.modules.AddAll(b.Modules)
			r.components = append(r.components, b.Components...)
		}
	case protocol.TypeReady:
		r.logger.Debug().Msg("Target announced readiness")
		r.requestResults()
	case protocol.TypeError:
		var e protocol.ErrorPayload
		if r.decode(env, &e) {
			r.logger.Warn().Str("error", e.Message).Msg("Target reported an instrumentation error")
		}
	case protocol.TypeResults:
		if msg.src != sourceControl {
			r.logger.Debug().Msg("Ignoring results on telemetry channel")
			return nil, false
		}
		var res protocol.Results
		if r.decode(env, &res) {
			return &res, true
		}
	default:
		r.logger.Debug().Str("type", string(env.Type)).Msg("Ignoring unknown message")
	}
	return nil, false
}

func (r *run) decode(env protocol.Envelope, v any) bool {
	if err := env.Decode(v); err != nil {
		r.logger.Debug().Err(err).Msg("Dropping undecodable message")
		return false
	}
	return true
}

func (r *run) requestResults() {
	if r.requested {
		return
	}
	r.requested = true
	if err := r.requests.Send(protocol.TypeGetResults, nil); err != nil {
		r.logger.Debug().Err(err).Msg("Failed to request results")
	}
}

// finalize merges the final payload, which only carries what was not
// streamed, with the streamed telemetry.
func (r *run) finalize(res *protocol.Results) *timing.ProfileResult {
	r.modules.AddAll(res.Modules)
	r.components = append(r.components, res.Components...)
	r.dropped += res.DroppedEvents

	result := r.o.collector.CollectResults(r.modules.Snapshot(), r.components, res.StartTimestamp, res.EndTimestamp)
	result.SessionID = r.sessionID
	result.DroppedEvents = r.dropped
	result.Process = r.process
	return &result
}

// partial builds a best-effort result from streamed telemetry, ending at
// the moment the child exited.
func (r *run) partial() *timing.ProfileResult {
	end := float64(r.exitedAt.Sub(r.spawnedAt).Nanoseconds()) / 1e6
	result := r.o.collector.CollectResults(r.modules.Snapshot(), r.components, 0, end)
	result.SessionID = r.sessionID
	result.Partial = true
	result.DroppedEvents = r.dropped
	return &result
}
