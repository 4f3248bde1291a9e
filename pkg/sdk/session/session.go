// Package session holds the in-target buffer of one profiling run.
//
// The hook layer and the lifecycle tracer push raw records into a Session
// without blocking. A background flusher applies them in batches on the next
// scheduling turn, merging two-pass module records by identifier, and
// optionally streams changed records to the profiler. Results copies the
// accumulated state on demand; nothing outside the session mutates it.
package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/docteur/pkg/sdk/protocol"
	"github.com/coral-mesh/docteur/pkg/timing"
)

// DefaultQueueSize bounds the number of unflushed events.
const DefaultQueueSize = 8192

// Streamer receives batches of changed records as they are flushed.
type Streamer interface {
	StreamBatch(batch protocol.Batch) error
}

// StreamerFunc adapts a function to Streamer.
type StreamerFunc func(batch protocol.Batch) error

// StreamBatch calls f.
func (f StreamerFunc) StreamBatch(batch protocol.Batch) error {
	return f(batch)
}

// Config configures a Session.
type Config struct {
	// ID is echoed in every outbound message.
	ID string

	// QueueSize bounds the number of unflushed events (default DefaultQueueSize).
	QueueSize int

	// Streamer, when set, receives each flushed batch.
	Streamer Streamer

	// Logger is optional and defaults to zerolog.Nop().
	Logger zerolog.Logger
}

// Session accumulates the events of one profiling run.
type Session struct {
	id       string
	start    time.Time
	logger   zerolog.Logger
	streamer Streamer
	queue    *queue

	// flushMu serialises batch application between the flusher and Results.
	flushMu    sync.Mutex
	modules    *timing.ModuleSet
	components []timing.ComponentPhaseTiming
	dirty      map[string]struct{}
	dirtyOrder []string
	streamed   int // components already streamed

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a session and starts its flusher.
func New(cfg Config) *Session {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	s := &Session{
		id:       cfg.ID,
		start:    time.Now(),
		logger:   logger.With().Str("component", "session").Logger(),
		streamer: cfg.Streamer,
		queue:    newQueue(cfg.QueueSize),
		modules:  timing.NewModuleSet(),
		dirty:    make(map[string]struct{}),
		done:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.run()

	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Now returns milliseconds elapsed on the monotonic clock since the session
// was created. All recorded timestamps share this clock.
func (s *Session) Now() float64 {
	return float64(time.Since(s.start).Nanoseconds()) / 1e6
}

// RecordModule queues a module record. It never blocks.
func (s *Session) RecordModule(m timing.ModuleTiming) {
	s.queue.push(event{module: &m})
}

// RecordExecution queues the execution duration measured for identifier.
func (s *Session) RecordExecution(identifier string, ms float64) {
	s.RecordModule(timing.ModuleTiming{ResolvedIdentifier: identifier, ExecutionMs: timing.Float64(ms)})
}

// RecordComponent queues a finalized lifecycle phase duration.
func (s *Session) RecordComponent(c timing.ComponentPhaseTiming) {
	s.queue.push(event{component: &c})
}

// Dropped returns the number of events lost to a full queue.
func (s *Session) Dropped() int64 {
	return s.queue.droppedCount()
}

func (s *Session) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.queue.notify:
			s.Flush()
		case <-s.done:
			return
		}
	}
}

// Flush applies every queued event and streams the changed records.
func (s *Session) Flush() {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.applyLocked(s.queue.drain())
	if s.streamer == nil {
		return
	}

	batch := s.pendingLocked()
	if batch.Empty() {
		return
	}
	if err := s.streamer.StreamBatch(batch); err != nil {
		// Records stay dirty and travel with the results instead.
		s.logger.Debug().Err(err).Int("modules", len(batch.Modules)).Msg("Failed to stream batch")
		return
	}
	s.markStreamedLocked(batch)
}

func (s *Session) applyLocked(events []event) {
	for _, ev := range events {
		switch {
		case ev.module != nil:
			if _, ok := s.modules.Add(*ev.module); !ok {
				continue
			}
			id := ev.module.ResolvedIdentifier
			if _, seen := s.dirty[id]; !seen {
				s.dirty[id] = struct{}{}
				s.dirtyOrder = append(s.dirtyOrder, id)
			}
		case ev.component != nil:
			s.components = append(s.components, *ev.component)
		}
	}
}

// pendingLocked returns the loaded records changed since the last stream and
// the components not streamed yet. Resolve-only records wait for their load.
func (s *Session) pendingLocked() protocol.Batch {
	var batch protocol.Batch
	for _, id := range s.dirtyOrder {
		if m, ok := s.modules.Get(id); ok && m.Loaded {
			batch.Modules = append(batch.Modules, m)
		}
	}
	if s.streamed < len(s.components) {
		batch.Components = append(batch.Components, s.components[s.streamed:]...)
	}
	return batch
}

func (s *Session) markStreamedLocked(batch protocol.Batch) {
	for _, m := range batch.Modules {
		delete(s.dirty, m.ResolvedIdentifier)
	}
	kept := s.dirtyOrder[:0]
	for _, id := range s.dirtyOrder {
		if _, ok := s.dirty[id]; ok {
			kept = append(kept, id)
		}
	}
	s.dirtyOrder = kept
	s.streamed += len(batch.Components)
}

// Results flushes synchronously and returns a copy of the accumulated state.
// When a streamer is attached only records not yet streamed are included,
// since the receiver already holds the rest.
func (s *Session) Results() protocol.Results {
	s.Flush()

	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	end := s.Now()
	res := protocol.Results{
		StartTimestamp: 0,
		EndTimestamp:   end,
		TotalTime:      end,
		DroppedEvents:  s.queue.droppedCount(),
	}

	if s.streamer != nil {
		for _, id := range s.dirtyOrder {
			if m, ok := s.modules.Get(id); ok {
				res.Modules = append(res.Modules, m)
			}
		}
		res.Components = append(res.Components, s.components[s.streamed:]...)
	} else {
		res.Modules = s.modules.Snapshot()
		res.Components = append(res.Components, s.components...)
	}

	if res.Modules == nil {
		res.Modules = []timing.ModuleTiming{}
	}
	if res.Components == nil {
		res.Components = []timing.ComponentPhaseTiming{}
	}
	return res
}

// Modules returns a copy of every merged module record.
func (s *Session) Modules() []timing.ModuleTiming {
	s.Flush()
	return s.modules.Snapshot()
}

// Close stops the flusher after a final flush. It is safe to call twice.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		s.Flush()
	})
}
