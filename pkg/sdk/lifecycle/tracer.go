package lifecycle

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/docteur/pkg/timing"
)

// DefaultSettleWindow is how long a synchronous end waits for an async-start
// before the call is finalised as synchronous. It is a heuristic: under heavy
// scheduling contention a call can be misclassified.
const DefaultSettleWindow = time.Millisecond

// Recorder receives finalised phase durations.
type Recorder interface {
	RecordComponent(c timing.ComponentPhaseTiming)
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithNamer replaces the default naming strategy.
func WithNamer(n Namer) Option {
	return func(t *Tracer) {
		t.namer = n
	}
}

// WithSettleWindow overrides DefaultSettleWindow.
func WithSettleWindow(d time.Duration) Option {
	return func(t *Tracer) {
		t.settle = d
	}
}

// WithLogger sets the tracer logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Tracer) {
		t.logger = logger.With().Str("component", "lifecycle").Logger()
	}
}

type key struct {
	name  string
	phase timing.Phase
}

type call struct {
	start float64
	end   float64
	ended bool
	async bool
	timer *time.Timer
}

// PendingPhase is a phase that started but has not completed.
type PendingPhase struct {
	ComponentName string
	Phase         timing.Phase
	Start         float64
	Async         bool
}

// Tracer correlates lifecycle events into phase durations.
//
// On start the (component, phase) key is remembered. On end the decision is
// deferred by the settle window: if no async-start arrives in time the call
// is synchronous and lasts from start to end. Otherwise it lasts from start
// to async-end. Error events discard the call, and starts that never
// complete are never recorded.
type Tracer struct {
	rec    Recorder
	namer  Namer
	settle time.Duration
	logger zerolog.Logger

	mu      sync.Mutex
	pending map[key]*call
	unsubs  []func()
	closed  bool
}

// NewTracer creates a tracer recording into rec.
func NewTracer(rec Recorder, opts ...Option) *Tracer {
	t := &Tracer{
		rec:     rec,
		namer:   DefaultNamer{},
		settle:  DefaultSettleWindow,
		logger:  zerolog.Nop(),
		pending: make(map[key]*call),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Attach subscribes the tracer to every phase channel.
func (t *Tracer) Attach(chs *Channels) {
	for _, p := range timing.Phases() {
		if ch := chs.Phase(p); ch != nil {
			unsub := ch.Subscribe(t.Handle)
			t.mu.Lock()
			t.unsubs = append(t.unsubs, unsub)
			t.mu.Unlock()
		}
	}
}

// Handle processes one event. It never panics on malformed sequences.
func (t *Tracer) Handle(ev Event) {
	k := key{name: t.namer.Name(ev.Component), phase: ev.Phase}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	switch ev.Kind {
	case EventStart:
		if prev, ok := t.pending[k]; ok {
			stopTimer(prev)
			t.logger.Debug().Str("name", k.name).Stringer("phase", k.phase).Msg("Phase restarted before completing")
		}
		t.pending[k] = &call{start: ev.Timestamp}

	case EventEnd:
		c, ok := t.pending[k]
		if !ok || c.ended {
			return
		}
		c.ended = true
		c.end = ev.Timestamp
		if c.async {
			return
		}
		c.timer = time.AfterFunc(t.settle, func() { t.finalizeSync(k, c) })

	case EventAsyncStart:
		c, ok := t.pending[k]
		if !ok {
			return
		}
		c.async = true
		stopTimer(c)

	case EventAsyncEnd:
		c, ok := t.pending[k]
		if !ok {
			return
		}
		stopTimer(c)
		delete(t.pending, k)
		t.recordLocked(k, ev.Timestamp-c.start)

	case EventError:
		c, ok := t.pending[k]
		if !ok {
			return
		}
		stopTimer(c)
		delete(t.pending, k)
		t.logger.Debug().Err(ev.Err).Str("name", k.name).Stringer("phase", k.phase).Msg("Phase failed")
	}
}

func (t *Tracer) finalizeSync(k key, c *call) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || t.pending[k] != c || c.async {
		return
	}
	delete(t.pending, k)
	t.recordLocked(k, c.end-c.start)
}

func (t *Tracer) recordLocked(k key, d float64) {
	if d < 0 {
		d = 0
	}
	t.rec.RecordComponent(timing.ComponentPhaseTiming{ComponentName: k.name, Phase: k.phase, DurationMs: d})
}

// Settle finalises every call whose end was observed without an
// async-start, without waiting for its settle timer. It runs before results
// are read so a phase that completed just before the request is kept.
func (t *Tracer) Settle() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	for k, c := range t.pending {
		if !c.ended || c.async {
			continue
		}
		stopTimer(c)
		delete(t.pending, k)
		t.recordLocked(k, c.end-c.start)
	}
}

// Pending lists phases that started but have not completed, ordered by
// start. They are diagnostic only and never reported as timings.
func (t *Tracer) Pending() []PendingPhase {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]PendingPhase, 0, len(t.pending))
	for k, c := range t.pending {
		out = append(out, PendingPhase{ComponentName: k.name, Phase: k.phase, Start: c.start, Async: c.async})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].ComponentName < out[j].ComponentName
	})
	return out
}

// Close detaches from all channels and stops pending timers. Unfinished
// phases are dropped.
func (t *Tracer) Close() {
	t.mu.Lock()
	unsubs := t.unsubs
	t.unsubs = nil
	t.closed = true
	for _, c := range t.pending {
		stopTimer(c)
	}
	t.mu.Unlock()

	for _, fn := range unsubs {
		fn()
	}
}

func stopTimer(c *call) {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
