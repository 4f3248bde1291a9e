package lifecycle

import (
	"time"

	"github.com/coral-mesh/docteur/pkg/timing"
)

// Clock returns milliseconds on a monotonic clock.
type Clock func() float64

// Channels groups one Channel per lifecycle phase and offers helpers that
// publish the event sequences a host framework would emit.
type Channels struct {
	clock    Clock
	channels map[timing.Phase]*Channel
}

// NewChannels creates the channel set. A nil clock measures milliseconds
// since the call.
func NewChannels(clock Clock) *Channels {
	if clock == nil {
		origin := time.Now()
		clock = func() float64 {
			return float64(time.Since(origin).Nanoseconds()) / 1e6
		}
	}
	c := &Channels{clock: clock, channels: make(map[timing.Phase]*Channel)}
	for _, p := range timing.Phases() {
		c.channels[p] = NewChannel(p)
	}
	return c
}

// Phase returns the channel for p, or nil for an unknown phase.
func (c *Channels) Phase(p timing.Phase) *Channel {
	return c.channels[p]
}

func (c *Channels) publish(p timing.Phase, kind EventKind, component any, err error) {
	ch := c.channels[p]
	if ch == nil || !ch.HasSubscribers() {
		return
	}
	ch.Publish(Event{Kind: kind, Component: component, Timestamp: c.clock(), Err: err})
}

// TraceSync runs a synchronous phase method of component. The error of fn is
// published and returned unchanged.
func (c *Channels) TraceSync(p timing.Phase, component any, fn func() error) error {
	c.publish(p, EventStart, component, nil)
	err := fn()
	if err != nil {
		c.publish(p, EventError, component, err)
	}
	c.publish(p, EventEnd, component, nil)
	return err
}

// TraceAsync runs a phase method that may hand back pending work. fn returns
// nil when it completed synchronously, or a channel that yields the outcome
// of the deferred work. The returned channel yields that outcome once the
// completion events have been published.
func (c *Channels) TraceAsync(p timing.Phase, component any, fn func() <-chan error) <-chan error {
	out := make(chan error, 1)

	c.publish(p, EventStart, component, nil)
	pending := fn()
	if pending == nil {
		c.publish(p, EventEnd, component, nil)
		out <- nil
		close(out)
		return out
	}

	c.publish(p, EventAsyncStart, component, nil)
	c.publish(p, EventEnd, component, nil)

	go func() {
		defer close(out)
		err := <-pending
		if err != nil {
			c.publish(p, EventError, component, err)
		} else {
			c.publish(p, EventAsyncEnd, component, nil)
		}
		out <- err
	}()
	return out
}
