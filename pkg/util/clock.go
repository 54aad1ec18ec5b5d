package util

import (
	"sync"
	"time"
)

// Clock is the sole source of "current time" for window checks
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// ManualClock only moves when told to
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// NewManualClockUnix starts the clock at a unix timestamp in seconds
func NewManualClockUnix(sec int64) *ManualClock {
	return NewManualClock(time.Unix(sec, 0))
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *ManualClock) SetUnix(sec int64) { c.Set(time.Unix(sec, 0)) }

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
