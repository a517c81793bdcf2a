package timex

import (
	"sync"
	"time"
)

// Clock abstracts the current time so stores can be driven by tests.
type Clock interface {
	Now() time.Time
}

// RealClock reports the wall clock in UTC.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// MonotonicClock wraps another clock and never returns the same instant
// twice: a reading that is not after the previous one is bumped by one
// nanosecond. Dirty markers rely on this to never tie with an upload cutoff.
type MonotonicClock struct {
	mu   sync.Mutex
	base Clock
	last time.Time
}

func NewMonotonicClock(base Clock) *MonotonicClock {
	if base == nil {
		base = RealClock{}
	}
	return &MonotonicClock{base: base}
}

func (c *MonotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.base.Now().UTC()
	if !now.After(c.last) {
		now = c.last.Add(time.Nanosecond)
	}
	c.last = now
	return now
}

// MicrosecondClock truncates readings to microseconds, the resolution of
// PostgreSQL timestamptz, so values survive a database round trip unchanged.
type MicrosecondClock struct {
	Base Clock
}

func (c MicrosecondClock) Now() time.Time {
	base := c.Base
	if base == nil {
		base = RealClock{}
	}
	return base.Now().UTC().Truncate(time.Microsecond)
}

// StubClock is a settable clock for tests.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t.UTC()}
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *StubClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}
