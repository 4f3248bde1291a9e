package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/docteur/pkg/sdk/protocol"
	"github.com/coral-mesh/docteur/pkg/timing"
)

type captureStreamer struct {
	mu      sync.Mutex
	batches []protocol.Batch
	fail    bool
}

func (c *captureStreamer) StreamBatch(b protocol.Batch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("pipe closed")
	}
	c.batches = append(c.batches, b)
	return nil
}

func (c *captureStreamer) modules() []timing.ModuleTiming {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []timing.ModuleTiming
	for _, b := range c.batches {
		out = append(out, b.Modules...)
	}
	return out
}

func TestSession_MergesTwoPassRecords(t *testing.T) {
	s := New(Config{ID: "s1"})
	defer s.Close()

	s.RecordModule(timing.ModuleTiming{
		Specifier: "./a", ResolvedIdentifier: "a.js", ParentIdentifier: "main.js",
		ResolveDurationMs: 0.2, Resolved: true,
	})
	s.RecordModule(timing.ModuleTiming{ResolvedIdentifier: "a.js", LoadDurationMs: 4, Loaded: true})
	s.RecordExecution("a.js", 2.5)
	s.RecordComponent(timing.ComponentPhaseTiming{ComponentName: "AppProvider", Phase: timing.PhaseBoot, DurationMs: 3})

	res := s.Results()
	require.Len(t, res.Modules, 1)
	m := res.Modules[0]
	assert.Equal(t, "./a", m.Specifier)
	assert.Equal(t, "main.js", m.ParentIdentifier)
	assert.Equal(t, 0.2, m.ResolveDurationMs)
	assert.Equal(t, 4.0, m.LoadDurationMs)
	require.NotNil(t, m.ExecutionMs)
	assert.Equal(t, 2.5, *m.ExecutionMs)

	require.Len(t, res.Components, 1)
	assert.Equal(t, "AppProvider", res.Components[0].ComponentName)
	assert.GreaterOrEqual(t, res.EndTimestamp, res.StartTimestamp)
	assert.Equal(t, res.EndTimestamp-res.StartTimestamp, res.TotalTime)
}

func TestSession_ResultsIsACopy(t *testing.T) {
	s := New(Config{})
	defer s.Close()

	s.RecordModule(timing.ModuleTiming{ResolvedIdentifier: "a.js", Loaded: true, LoadDurationMs: 1})
	first := s.Results()
	first.Modules[0].LoadDurationMs = 100

	second := s.Results()
	assert.Equal(t, 1.0, second.Modules[0].LoadDurationMs)
}

func TestSession_EmptyResults(t *testing.T) {
	s := New(Config{})
	defer s.Close()

	res := s.Results()
	assert.NotNil(t, res.Modules)
	assert.NotNil(t, res.Components)
	assert.Empty(t, res.Modules)
}

func TestSession_FlushesAsynchronously(t *testing.T) {
	streamer := &captureStreamer{}
	s := New(Config{Streamer: streamer})
	defer s.Close()

	s.RecordModule(timing.ModuleTiming{ResolvedIdentifier: "a.js", LoadDurationMs: 1, Loaded: true})

	assert.Eventually(t, func() bool {
		return len(streamer.modules()) == 1
	}, time.Second, time.Millisecond)
}

func TestSession_StreamingSendsOnlyChangedRecords(t *testing.T) {
	streamer := &captureStreamer{}
	s := New(Config{Streamer: streamer})
	defer s.Close()

	s.RecordModule(timing.ModuleTiming{ResolvedIdentifier: "a.js", LoadDurationMs: 1, Loaded: true})
	s.Flush()
	require.Len(t, streamer.modules(), 1)

	// Resolve-only records wait for their load pass.
	s.RecordModule(timing.ModuleTiming{ResolvedIdentifier: "b.js", Specifier: "./b", Resolved: true})
	s.Flush()
	assert.Len(t, streamer.modules(), 1)

	res := s.Results()
	require.Len(t, res.Modules, 1, "results carry only what was not streamed")
	assert.Equal(t, "b.js", res.Modules[0].ResolvedIdentifier)

	s.RecordModule(timing.ModuleTiming{ResolvedIdentifier: "b.js", LoadDurationMs: 2, Loaded: true})
	s.Flush()
	mods := streamer.modules()
	require.Len(t, mods, 2)
	assert.Equal(t, "./b", mods[1].Specifier)
	assert.Empty(t, s.Results().Modules)
}

func TestSession_FailedStreamKeepsRecordsForResults(t *testing.T) {
	streamer := &captureStreamer{fail: true}
	s := New(Config{Streamer: streamer})
	defer s.Close()

	s.RecordModule(timing.ModuleTiming{ResolvedIdentifier: "a.js", LoadDurationMs: 1, Loaded: true})
	s.RecordComponent(timing.ComponentPhaseTiming{ComponentName: "P", Phase: timing.PhaseStart, DurationMs: 1})

	res := s.Results()
	assert.Len(t, res.Modules, 1)
	assert.Len(t, res.Components, 1)
}

func TestSession_DropsWhenQueueFull(t *testing.T) {
	// Block the flusher so nothing drains the queue.
	s := &Session{
		queue:   newQueue(2),
		modules: timing.NewModuleSet(),
		dirty:   make(map[string]struct{}),
		done:    make(chan struct{}),
	}

	for i := 0; i < 5; i++ {
		s.RecordModule(timing.ModuleTiming{ResolvedIdentifier: "a.js"})
	}
	assert.Equal(t, int64(3), s.Dropped())
	assert.Equal(t, int64(3), s.Results().DroppedEvents)
}

func TestSession_ConcurrentRecording(t *testing.T) {
	s := New(Config{})
	defer s.Close()

	ids := []string{"a.js", "b.js", "c.js", "d.js"}
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := ids[(i/2)%len(ids)]
			if i%2 == 0 {
				s.RecordModule(timing.ModuleTiming{ResolvedIdentifier: id, Specifier: id, Resolved: true, ResolveDurationMs: 1})
			} else {
				s.RecordModule(timing.ModuleTiming{ResolvedIdentifier: id, LoadDurationMs: 2, Loaded: true})
			}
		}(i)
	}
	wg.Wait()

	mods := s.Modules()
	require.Len(t, mods, len(ids))
	for _, m := range mods {
		assert.True(t, m.Resolved, m.ResolvedIdentifier)
		assert.True(t, m.Loaded, m.ResolvedIdentifier)
	}
}

func TestSession_NowIsMonotonic(t *testing.T) {
	s := New(Config{})
	defer s.Close()

	a := s.Now()
	time.Sleep(2 * time.Millisecond)
	b := s.Now()
	assert.Greater(t, b, a)
}

func TestSession_CloseTwice(t *testing.T) {
	s := New(Config{})
	s.Close()
	s.Close()
}
