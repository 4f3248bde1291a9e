package lifecycle

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/docteur/pkg/timing"
)

type recorder struct {
	mu   sync.Mutex
	recs []timing.ComponentPhaseTiming
}

func (r *recorder) RecordComponent(c timing.ComponentPhaseTiming) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, c)
}

func (r *recorder) all() []timing.ComponentPhaseTiming {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]timing.ComponentPhaseTiming(nil), r.recs...)
}

type appProvider struct{}

func (appProvider) ComponentName() string { return "AppProvider" }

func ev(kind EventKind, phase timing.Phase, ts float64) Event {
	return Event{Kind: kind, Phase: phase, Component: appProvider{}, Timestamp: ts}
}

func TestTracer_AsyncSpansUntilCompletion(t *testing.T) {
	rec := &recorder{}
	tr := NewTracer(rec)
	defer tr.Close()

	tr.Handle(ev(EventStart, timing.PhaseBoot, 0))
	tr.Handle(ev(EventEnd, timing.PhaseBoot, 2))
	tr.Handle(ev(EventAsyncStart, timing.PhaseBoot, 1))
	tr.Handle(ev(EventAsyncEnd, timing.PhaseBoot, 50))

	got := rec.all()
	require.Len(t, got, 1)
	assert.Equal(t, timing.ComponentPhaseTiming{ComponentName: "AppProvider", Phase: timing.PhaseBoot, DurationMs: 50}, got[0])

	// The cancelled settle timer must not add a second record.
	time.Sleep(5 * time.Millisecond)
	assert.Len(t, rec.all(), 1)
}

func TestTracer_AsyncStartBeforeEnd(t *testing.T) {
	rec := &recorder{}
	tr := NewTracer(rec)
	defer tr.Close()

	tr.Handle(ev(EventStart, timing.PhaseStart, 10))
	tr.Handle(ev(EventAsyncStart, timing.PhaseStart, 11))
	tr.Handle(ev(EventEnd, timing.PhaseStart, 12))
	time.Sleep(5 * time.Millisecond)
	assert.Empty(t, rec.all(), "async call waits for its completion")

	tr.Handle(ev(EventAsyncEnd, timing.PhaseStart, 40))
	require.Len(t, rec.all(), 1)
	assert.Equal(t, 30.0, rec.all()[0].DurationMs)
}

func TestTracer_SyncFinalisesAfterSettleWindow(t *testing.T) {
	rec := &recorder{}
	tr := NewTracer(rec, WithSettleWindow(time.Millisecond))
	defer tr.Close()

	tr.Handle(ev(EventStart, timing.PhaseRegister, 5))
	tr.Handle(ev(EventEnd, timing.PhaseRegister, 7.5))
	assert.Empty(t, rec.all(), "decision is deferred")

	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 2.5, rec.all()[0].DurationMs)
	assert.Empty(t, tr.Pending())
}

func TestTracer_SettleFinalisesCompletedSyncCalls(t *testing.T) {
	rec := &recorder{}
	tr := NewTracer(rec, WithSettleWindow(time.Hour))
	defer tr.Close()

	tr.Handle(ev(EventStart, timing.PhaseRegister, 1))
	tr.Handle(ev(EventEnd, timing.PhaseRegister, 4))
	tr.Handle(ev(EventStart, timing.PhaseBoot, 5))
	tr.Handle(ev(EventEnd, timing.PhaseBoot, 6))
	tr.Handle(ev(EventAsyncStart, timing.PhaseBoot, 5.5))
	tr.Handle(ev(EventStart, timing.PhaseStart, 7))

	tr.Settle()

	got := rec.all()
	require.Len(t, got, 1)
	assert.Equal(t, timing.ComponentPhaseTiming{ComponentName: "AppProvider", Phase: timing.PhaseRegister, DurationMs: 3}, got[0])

	pending := tr.Pending()
	require.Len(t, pending, 2, "async and unfinished calls stay pending")
	assert.Equal(t, timing.PhaseBoot, pending[0].Phase)
	assert.True(t, pending[0].Async)
	assert.Equal(t, timing.PhaseStart, pending[1].Phase)

	tr.Settle()
	assert.Len(t, rec.all(), 1)
}

func TestTracer_ErrorProducesNoTiming(t *testing.T) {
	rec := &recorder{}
	tr := NewTracer(rec)
	defer tr.Close()

	tr.Handle(ev(EventStart, timing.PhaseBoot, 0))
	tr.Handle(Event{Kind: EventError, Phase: timing.PhaseBoot, Component: appProvider{}, Timestamp: 1, Err: errors.New("boom")})
	tr.Handle(ev(EventEnd, timing.PhaseBoot, 2))

	time.Sleep(5 * time.Millisecond)
	assert.Empty(t, rec.all())
	assert.Empty(t, tr.Pending())
}

func TestTracer_UnmatchedStartIsDropped(t *testing.T) {
	rec := &recorder{}
	tr := NewTracer(rec)

	tr.Handle(ev(EventStart, timing.PhaseShutdown, 3))
	tr.Handle(Event{Kind: EventEnd, Phase: timing.PhaseBoot, Component: "Other", Timestamp: 4})
	tr.Handle(Event{Kind: EventAsyncEnd, Phase: timing.PhaseBoot, Component: "Other", Timestamp: 4})

	pending := tr.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "AppProvider", pending[0].ComponentName)
	assert.Equal(t, timing.PhaseShutdown, pending[0].Phase)

	tr.Close()
	assert.Empty(t, rec.all())
}

func TestTracer_DistinguishesComponentsAndPhases(t *testing.T) {
	rec := &recorder{}
	tr := NewTracer(rec, WithNamer(NamerFunc(func(c any) string { return c.(string) })))
	defer tr.Close()

	for _, name := range []string{"A", "B"} {
		for _, p := range []timing.Phase{timing.PhaseRegister, timing.PhaseBoot} {
			tr.Handle(Event{Kind: EventStart, Phase: p, Component: name, Timestamp: 0})
			tr.Handle(Event{Kind: EventAsyncStart, Phase: p, Component: name, Timestamp: 0})
			tr.Handle(Event{Kind: EventAsyncEnd, Phase: p, Component: name, Timestamp: float64(len(name)) + float64(p)})
		}
	}
	assert.Len(t, rec.all(), 4)
}

func TestTracer_WithChannels(t *testing.T) {
	rec := &recorder{}
	chs := NewChannels(nil)
	tr := NewTracer(rec)
	tr.Attach(chs)
	defer tr.Close()

	err := chs.TraceSync(timing.PhaseRegister, appProvider{}, func() error {
		time.Sleep(2 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)

	done := chs.TraceAsync(timing.PhaseBoot, appProvider{}, func() <-chan error {
		pending := make(chan error, 1)
		go func() {
			time.Sleep(20 * time.Millisecond)
			pending <- nil
		}()
		return pending
	})
	require.NoError(t, <-done)

	failed := chs.TraceAsync(timing.PhaseStart, appProvider{}, func() <-chan error {
		pending := make(chan error, 1)
		pending <- errors.New("db unreachable")
		return pending
	})
	assert.Error(t, <-failed)

	require.Eventually(t, func() bool { return len(rec.all()) == 2 }, time.Second, time.Millisecond)

	byPhase := map[timing.Phase]float64{}
	for _, c := range rec.all() {
		byPhase[c.Phase] = c.DurationMs
	}
	assert.GreaterOrEqual(t, byPhase[timing.PhaseRegister], 2.0)
	assert.GreaterOrEqual(t, byPhase[timing.PhaseBoot], 20.0)
	assert.NotContains(t, byPhase, timing.PhaseStart)
}

func TestChannels_SyncErrorPropagates(t *testing.T) {
	chs := NewChannels(nil)
	boom := errors.New("boom")
	assert.Same(t, boom, chs.TraceSync(timing.PhaseReady, "x", func() error { return boom }))

	done := chs.TraceAsync(timing.PhaseReady, "x", func() <-chan error { return nil })
	assert.NoError(t, <-done)
}

func TestChannel_Unsubscribe(t *testing.T) {
	ch := NewChannel(timing.PhaseBoot)
	assert.False(t, ch.HasSubscribers())

	var got []Event
	unsub := ch.Subscribe(func(e Event) { got = append(got, e) })
	assert.True(t, ch.HasSubscribers())

	ch.Publish(Event{Kind: EventStart})
	unsub()
	unsub()
	ch.Publish(Event{Kind: EventEnd})

	require.Len(t, got, 1)
	assert.Equal(t, timing.PhaseBoot, got[0].Phase)
	assert.False(t, ch.HasSubscribers())
}

type named struct{ n string }

func (n *named) String() string { return n.n }

type plain struct{}

func TestDefaultNamer(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"component name", appProvider{}, "AppProvider"},
		{"stringer", &named{n: "DatabaseProvider"}, "DatabaseProvider"},
		{"string", "RedisProvider", "RedisProvider"},
		{"pointer type", &plain{}, "plain"},
		{"nil", nil, "anonymous"},
		{"empty stringer falls back to type", &named{}, "named"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultNamer{}.Name(tt.in))
		})
	}
}
