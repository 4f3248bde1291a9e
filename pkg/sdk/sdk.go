package sdk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/docteur/pkg/sdk/hooks"
	"github.com/coral-mesh/docteur/pkg/sdk/lifecycle"
	"github.com/coral-mesh/docteur/pkg/sdk/protocol"
	"github.com/coral-mesh/docteur/pkg/sdk/session"
)

// Enabled reports whether this process runs under the profiler.
func Enabled() bool {
	return os.Getenv(protocol.EnvProfiling) == "true"
}

// Config contains SDK configuration options.
type Config struct {
	// Force enables recording even without the profiling environment flag.
	// Useful for in-process measurements and tests.
	Force bool

	// QueueSize bounds the unflushed event queue (default session.DefaultQueueSize).
	QueueSize int

	// SettleWindow overrides lifecycle.DefaultSettleWindow.
	SettleWindow time.Duration

	// Instrumenter enables execution-time capture by source rewriting.
	Instrumenter hooks.SourceInstrumenter

	// Namer overrides the lifecycle component naming strategy.
	Namer lifecycle.Namer

	// ControlOut, ControlIn and Telemetry replace the inherited descriptors.
	// When all are nil the SDK attaches to the descriptors named by the
	// environment, if any.
	ControlOut io.Writer
	ControlIn  io.Reader
	Telemetry  io.Writer

	// Logger is the logger instance (optional, defaults to zerolog.Nop()).
	Logger zerolog.Logger
}

// SDK is the instrumentation installed in a target process.
type SDK struct {
	logger    zerolog.Logger
	enabled   bool
	sessionID string

	session  *session.Session
	hooks    *hooks.Hooks
	tracer   *lifecycle.Tracer
	channels *lifecycle.Channels

	control   *protocol.Writer
	telemetry *protocol.Writer
	files     []*os.File

	closeOnce sync.Once
}

// New creates the SDK. It returns a pass-through instance when profiling is
// not enabled.
func New(config Config) (*SDK, error) {
	logger := config.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}
	logger = logger.With().Str("component", "docteur-sdk").Logger()

	s := &SDK{
		logger:    logger,
		enabled:   config.Force || Enabled(),
		sessionID: os.Getenv(protocol.EnvSessionID),
	}

	if !s.enabled {
		s.channels = lifecycle.NewChannels(nil)
		return s, nil
	}

	controlOut, controlIn, telemetry := config.ControlOut, config.ControlIn, config.Telemetry
	if controlOut == nil && controlIn == nil && telemetry == nil {
		var err error
		controlOut, controlIn, telemetry, err = s.openInherited()
		if err != nil {
			return nil, err
		}
	}

	if controlOut != nil {
		s.control = protocol.NewWriter(controlOut, s.sessionID)
	}

	var streamer session.Streamer
	if telemetry != nil {
		s.telemetry = protocol.NewWriter(telemetry, s.sessionID)
		streamer = session.StreamerFunc(func(b protocol.Batch) error {
			return s.telemetry.Send(protocol.TypeBatch, b)
		})
	}

	s.session = session.New(session.Config{
		ID:        s.sessionID,
		QueueSize: config.QueueSize,
		Streamer:  streamer,
		Logger:    logger,
	})

	hookOpts := []hooks.Option{hooks.WithLogger(logger)}
	if config.Instrumenter != nil {
		hookOpts = append(hookOpts, hooks.WithInstrumenter(config.Instrumenter))
	}
	s.hooks = hooks.New(s.session, hookOpts...)

	tracerOpts := []lifecycle.Option{lifecycle.WithLogger(logger)}
	if config.SettleWindow > 0 {
		tracerOpts = append(tracerOpts, lifecycle.WithSettleWindow(config.SettleWindow))
	}
	if config.Namer != nil {
		tracerOpts = append(tracerOpts, lifecycle.WithNamer(config.Namer))
	}
	s.channels = lifecycle.NewChannels(s.session.Now)
	s.tracer = lifecycle.NewTracer(s.session, tracerOpts...)
	s.tracer.Attach(s.channels)

	if controlIn != nil {
		go s.serve(controlIn)
	}

	logger.Debug().
		Str("session", s.sessionID).
		Bool("control", s.control != nil).
		Bool("telemetry", s.telemetry != nil).
		Msg("Profiling instrumentation installed")

	return s, nil
}

// openInherited opens the descriptors listed in the environment. A process
// started without them records in memory only.
func (s *SDK) openInherited() (io.Writer, io.Reader, io.Writer, error) {
	fdList := os.Getenv(protocol.EnvIPCFDs)
	if fdList == "" {
		return nil, nil, nil, nil
	}
	fds, err := protocol.ParseFDs(fdList)
	if err != nil {
		return nil, nil, nil, err
	}

	controlOut := os.NewFile(uintptr(fds.ControlOut), "docteur-control-out")
	controlIn := os.NewFile(uintptr(fds.ControlIn), "docteur-control-in")
	telemetry := os.NewFile(uintptr(fds.Telemetry), "docteur-telemetry")
	if controlOut == nil || controlIn == nil || telemetry == nil {
		return nil, nil, nil, fmt.Errorf("inherited descriptors %s are not open", fdList)
	}
	s.files = []*os.File{controlOut, controlIn, telemetry}
	return controlOut, controlIn, telemetry, nil
}

// serve answers control requests until the channel closes.
func (s *SDK) serve(r io.Reader) {
	reader := protocol.NewReader(r)
	for {
		env, err := reader.Next()
		if err != nil {
			var malformed *protocol.MalformedError
			if errors.As(err, &malformed) {
				s.logger.Debug().Err(err).Msg("Ignoring control message")
				continue
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				s.logger.Debug().Err(err).Msg("Control channel closed")
			}
			return
		}

		if env.Session != "" && s.sessionID != "" && env.Session != s.sessionID {
			continue
		}

		switch env.Type {
		case protocol.TypeGetResults:
			if err := s.SendResults(); err != nil {
				s.logger.Debug().Err(err).Msg("Failed to send results")
			}
		default:
			s.logger.Debug().Str("type", string(env.Type)).Msg("Unexpected control message")
		}
	}
}

// Enabled reports whether this instance records anything.
func (s *SDK) Enabled() bool {
	return s.enabled
}

// SessionID returns the id assigned by the profiler.
func (s *SDK) SessionID() string {
	return s.sessionID
}

// Hooks returns the module interceptor to install in the host runtime.
func (s *SDK) Hooks() hooks.Interceptor {
	if !s.enabled {
		return hooks.Passthrough{}
	}
	return s.hooks
}

// Channels returns the lifecycle channels the host framework publishes on.
// Without profiling nobody subscribes and publishing costs one atomic load.
func (s *SDK) Channels() *lifecycle.Channels {
	return s.channels
}

// Execute evaluates a module through fn, recording its execution time.
func (s *SDK) Execute(ctx context.Context, identifier string, fn func(ctx context.Context) error) error {
	if !s.enabled {
		return fn(ctx)
	}
	return s.hooks.Execute(ctx, identifier, fn)
}

// RecordExecution records an execution time measured by instrumented source.
func (s *SDK) RecordExecution(identifier string, ms float64) {
	if s.enabled {
		s.hooks.RecordExecution(identifier, ms)
	}
}

// Results settles completed lifecycle phases, flushes and returns a copy of
// what this process recorded.
func (s *SDK) Results() protocol.Results {
	if !s.enabled {
		return protocol.Results{}
	}
	s.tracer.Settle()
	return s.session.Results()
}

// SendResults writes the results to the control channel.
func (s *SDK) SendResults() error {
	if s.control == nil {
		return fmt.Errorf("no control channel")
	}
	return s.control.Send(protocol.TypeResults, s.Results())
}

// Ready announces readiness over the control channel. Processes that print
// a readiness line on stdout do not need it.
func (s *SDK) Ready() error {
	if !s.enabled || s.control == nil {
		return nil
	}
	return s.control.Send(protocol.TypeReady, protocol.Ready{TotalTime: s.session.Now()})
}

// Close flushes outstanding telemetry and releases resources.
func (s *SDK) Close() error {
	if !s.enabled {
		return nil
	}
	var errs []error
	s.closeOnce.Do(func() {
		s.tracer.Close()
		s.session.Close()
		for _, f := range s.files {
			if err := f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
