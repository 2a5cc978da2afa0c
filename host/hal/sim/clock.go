package sim

import (
	"sync"
	"time"
)

// Clock is a manual [hal.Clock]. One tick is one nanosecond. Every call to
// Ticks returns the current time and then advances it by the step, so poll
// loops make progress without real time passing.
type Clock struct {
	mu   sync.Mutex
	now  uint64
	last uint64
	step uint64
}

// NewClock returns a clock starting at start that advances by step on each
// sample.
func NewClock(start uint64, step time.Duration) *Clock {
	return &Clock{now: start, last: start, step: uint64(step)}
}

// Ticks returns the current time and advances it by one step.
func (c *Clock) Ticks() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.last = t
	c.now += c.step
	return t
}

// TicksFor converts d to nanoseconds.
func (c *Clock) TicksFor(d time.Duration) uint64 {
	if d < 0 {
		return 0
	}
	return uint64(d)
}

// Peek returns the current time without advancing it.
func (c *Clock) Peek() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Last returns the value returned by the most recent call to Ticks.
func (c *Clock) Last() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += uint64(d)
}
