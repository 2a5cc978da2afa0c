package hal

import "time"

// SystemClock is a [Clock] backed by the runtime's monotonic clock.
// One tick is one nanosecond.
type SystemClock struct {
	epoch time.Time
}

// NewSystemClock returns a clock whose tick zero is the moment of the call.
func NewSystemClock() *SystemClock {
	return &SystemClock{epoch: time.Now()}
}

// Ticks returns nanoseconds elapsed since the clock was created.
func (c *SystemClock) Ticks() uint64 {
	return uint64(time.Since(c.epoch))
}

// TicksFor converts d to nanoseconds. Negative durations convert to zero.
func (c *SystemClock) TicksFor(d time.Duration) uint64 {
	if d < 0 {
		return 0
	}
	return uint64(d)
}
