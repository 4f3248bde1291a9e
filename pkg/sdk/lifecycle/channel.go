// Package lifecycle attributes lifecycle phase durations to bootstrap
// components.
//
// A host framework publishes start and end events on one Channel per phase
// (register, boot, start, ready, shutdown), plus async-start and async-end
// when a phase method returns work that completes later. The Tracer pairs
// those events per component and phase and records one duration for each
// completed pair.
package lifecycle

import (
	"sync"
	"sync/atomic"

	"github.com/coral-mesh/docteur/pkg/timing"
)

// EventKind is the kind of a lifecycle channel event.
type EventKind int

// Event kinds.
const (
	EventStart EventKind = iota
	EventEnd
	EventAsyncStart
	EventAsyncEnd
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventEnd:
		return "end"
	case EventAsyncStart:
		return "asyncStart"
	case EventAsyncEnd:
		return "asyncEnd"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is published on a Channel.
type Event struct {
	Kind  EventKind
	Phase timing.Phase
	// Component is the bootstrapped component itself. Its name is derived
	// at event time by the subscriber.
	Component any
	// Timestamp is in milliseconds on the publisher's clock.
	Timestamp float64
	Err       error
}

// Channel is a synchronous publish/subscribe primitive for one phase.
type Channel struct {
	phase timing.Phase
	mu    sync.RWMutex
	subs  map[uint64]func(Event)
	next  atomic.Uint64
	// active mirrors len(subs) so Publish is a single load when unobserved.
	active atomic.Int32
}

// NewChannel creates a channel for phase.
func NewChannel(phase timing.Phase) *Channel {
	return &Channel{phase: phase, subs: make(map[uint64]func(Event))}
}

// Phase returns the phase this channel carries.
func (c *Channel) Phase() timing.Phase {
	return c.phase
}

// HasSubscribers reports whether anyone listens.
func (c *Channel) HasSubscribers() bool {
	return c.active.Load() > 0
}

// Subscribe registers fn and returns a function that removes it.
func (c *Channel) Subscribe(fn func(Event)) (unsubscribe func()) {
	id := c.next.Add(1)

	c.mu.Lock()
	c.subs[id] = fn
	c.active.Store(int32(len(c.subs)))
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.active.Store(int32(len(c.subs)))
			c.mu.Unlock()
		})
	}
}

// Publish delivers ev to every subscriber on the caller's goroutine.
func (c *Channel) Publish(ev Event) {
	if !c.HasSubscribers() {
		return
	}
	ev.Phase = c.phase

	c.mu.RLock()
	subs := make([]func(Event), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
}
