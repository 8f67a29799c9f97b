package testutil

import (
	"sync"
	"time"
)

// Epoch is the instant test clocks start from unless told otherwise:
// Monday 2024-01-01 12:00 UTC, serial date 45292.5.
var Epoch = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)

// FixedClock reports the same instant until Set moves it.
//
// Use it wherever TODAY() and NOW() must be reproducible, such as golden
// snapshots.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixedClock creates a clock frozen at t. A zero t means Epoch.
func NewFixedClock(t time.Time) *FixedClock {
	if t.IsZero() {
		t = Epoch
	}
	return &FixedClock{t: t}
}

// Now returns the frozen instant.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// StepClock advances by a fixed step every time it is read.
//
// Time-sliced loops measure their budget by reading the clock, so a
// StepClock with step S and a budget B lets a test know exactly how many
// readings fit in one slice, independent of machine speed.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type StepClock struct {
	mu    sync.Mutex
	t     time.Time
	step  time.Duration
	reads int
}

// NewStepClock creates a clock at start that moves forward by step on each
// Now call. The first call returns start.
func NewStepClock(start time.Time, step time.Duration) *StepClock {
	if start.IsZero() {
		start = Epoch
	}
	return &StepClock{t: start, step: step}
}

// Now returns the current instant and advances the clock.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(c.step)
	c.reads++
	return now
}

// Reads returns how many times Now has been called.
func (c *StepClock) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}
