// Package hooks intercepts the resolve and load extension points of a host
// module system and records how long each took.
//
// A host runtime calls an Interceptor for every import. Each call receives a
// continuation that performs the real work; the interceptor times the
// continuation, records the result and hands the continuation's output back
// unchanged. Failures of the continuation propagate untouched and are never
// recorded. Recording is a non-blocking push into the session queue.
package hooks

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/docteur/pkg/timing"
)

// ResolveContext is what the host knows about an import being resolved.
type ResolveContext struct {
	// ParentIdentifier is the resolved identifier of the importing module.
	// Empty for entry points.
	ParentIdentifier string
	Conditions       []string
	Attributes       map[string]string
}

// Resolution is the outcome of resolving a specifier.
type Resolution struct {
	Identifier string
	Format     string
}

// LoadContext is what the host knows about a module being loaded.
type LoadContext struct {
	Format     string
	Conditions []string
}

// Source is the loaded module body.
type Source struct {
	Format string
	Text   []byte
}

// NextResolve is the host's own resolution continuation.
type NextResolve func(ctx context.Context, specifier string, rc ResolveContext) (Resolution, error)

// NextLoad is the host's own load continuation.
type NextLoad func(ctx context.Context, identifier string, lc LoadContext) (Source, error)

// Interceptor is the two-method contract a host runtime calls into.
type Interceptor interface {
	Resolve(ctx context.Context, specifier string, rc ResolveContext, next NextResolve) (Resolution, error)
	Load(ctx context.Context, identifier string, lc LoadContext, next NextLoad) (Source, error)
}

// Recorder is the session handle the hooks record into.
type Recorder interface {
	// Now returns milliseconds on the session clock.
	Now() float64
	RecordModule(m timing.ModuleTiming)
	RecordExecution(identifier string, ms float64)
}

// Passthrough is an Interceptor that only calls the continuations. It is
// installed when profiling is disabled.
type Passthrough struct{}

// Resolve calls next.
func (Passthrough) Resolve(ctx context.Context, specifier string, rc ResolveContext, next NextResolve) (Resolution, error) {
	return next(ctx, specifier, rc)
}

// Load calls next.
func (Passthrough) Load(ctx context.Context, identifier string, lc LoadContext, next NextLoad) (Source, error) {
	return next(ctx, identifier, lc)
}

// Option configures Hooks.
type Option func(*Hooks)

// WithLogger sets the logger used for bookkeeping failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(h *Hooks) {
		h.logger = logger.With().Str("component", "hooks").Logger()
	}
}

// WithInstrumenter enables execution-time measurement by source rewriting.
func WithInstrumenter(in SourceInstrumenter) Option {
	return func(h *Hooks) {
		h.instrumenter = in
	}
}

// Hooks is the recording Interceptor.
type Hooks struct {
	rec          Recorder
	logger       zerolog.Logger
	instrumenter SourceInstrumenter
}

var _ Interceptor = (*Hooks)(nil)

// New creates hooks recording into rec.
func New(rec Recorder, opts ...Option) *Hooks {
	h := &Hooks{
		rec:    rec,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Resolve times next and records the specifier, identifier and importer.
func (h *Hooks) Resolve(ctx context.Context, specifier string, rc ResolveContext, next NextResolve) (Resolution, error) {
	start := time.Now()
	res, err := next(ctx, specifier, rc)
	elapsed := time.Since(start)
	if err != nil {
		return res, err
	}

	h.record("resolve", func() {
		h.rec.RecordModule(timing.ModuleTiming{
			Specifier:          specifier,
			ResolvedIdentifier: res.Identifier,
			ParentIdentifier:   rc.ParentIdentifier,
			ResolveDurationMs:  millis(elapsed),
			Resolved:           true,
		})
	})
	return res, nil
}

// Load times next, including any transformation it performs, and records
// the load duration and timestamps. With an instrumenter configured the
// returned source is rewritten to report its own evaluation time.
func (h *Hooks) Load(ctx context.Context, identifier string, lc LoadContext, next NextLoad) (Source, error) {
	startTs := h.rec.Now()
	start := time.Now()
	src, err := next(ctx, identifier, lc)
	elapsed := time.Since(start)
	if err != nil {
		return src, err
	}

	h.record("load", func() {
		h.rec.RecordModule(timing.ModuleTiming{
			ResolvedIdentifier: identifier,
			LoadDurationMs:     millis(elapsed),
			StartTimestamp:     startTs,
			EndTimestamp:       startTs + millis(elapsed),
			Loaded:             true,
		})
	})

	if h.instrumenter != nil {
		src = h.instrument(src, identifier)
	}
	return src, nil
}

// Execute runs fn as the evaluation of identifier and records its duration.
// Hosts with a native evaluation hook should use this instead of source
// rewriting. The error of fn is returned unchanged and suppresses recording.
func (h *Hooks) Execute(ctx context.Context, identifier string, fn func(ctx context.Context) error) error {
	start := time.Now()
	if err := fn(ctx); err != nil {
		return err
	}
	elapsed := time.Since(start)

	h.record("execute", func() {
		h.rec.RecordExecution(identifier, millis(elapsed))
	})
	return nil
}

// RecordExecution is the landing point of the epilogue an instrumenter
// injects into module source.
func (h *Hooks) RecordExecution(identifier string, ms float64) {
	if identifier == "" || ms < 0 {
		return
	}
	h.record("execute", func() {
		h.rec.RecordExecution(identifier, ms)
	})
}

func (h *Hooks) instrument(src Source, identifier string) (out Source) {
	out = src
	defer func() {
		if r := recover(); r != nil {
			h.logger.Warn().Interface("panic", r).Str("module", identifier).Msg("Source instrumentation panicked")
			out = src
		}
	}()

	if !h.instrumenter.Accepts(src.Format) {
		return src
	}
	text, err := h.instrumenter.Instrument(src.Text, identifier)
	if err != nil {
		h.logger.Debug().Err(err).Str("module", identifier).Msg("Source left uninstrumented")
		return src
	}
	out.Text = text
	return out
}

// record runs a bookkeeping step. A panic is logged and swallowed so it
// never aborts the module operation being timed.
func (h *Hooks) record(op string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Warn().Interface("panic", r).Str("op", op).Msg("Failed to record module timing")
		}
	}()
	fn()
}

func millis(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}
