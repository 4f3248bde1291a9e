package session

import (
	"sync"
	"sync/atomic"

	"github.com/coral-mesh/docteur/pkg/timing"
)

// event is one raw record pushed by the hook layer or the lifecycle tracer.
// Exactly one of module or component is set.
type event struct {
	module    *timing.ModuleTiming
	component *timing.ComponentPhaseTiming
}

// queue is a bounded multi-producer queue. Push never blocks: when the queue
// is full the event is dropped and counted. A pending flush is signalled on
// notify, which holds at most one token so bursts coalesce into one batch.
type queue struct {
	mu       sync.Mutex
	items    []event
	capacity int
	dropped  atomic.Int64
	notify   chan struct{}
}

func newQueue(capacity int) *queue {
	return &queue{
		items:    make([]event, 0, min(capacity, 256)),
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

func (q *queue) push(ev event) bool {
	q.mu.Lock()
	if len(q.items) >= q.capacity {
		q.mu.Unlock()
		q.dropped.Add(1)
		return false
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// drain takes every queued event.
func (q *queue) drain() []event {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = make([]event, 0, min(q.capacity, max(len(out), 256)))
	return out
}

func (q *queue) droppedCount() int64 {
	return q.dropped.Load()
}
