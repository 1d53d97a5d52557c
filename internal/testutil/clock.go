// Package testutil provides deterministic helpers for harness tests.
package testutil

import (
	"sync"
	"time"
)

// StubClock is a thread-safe wall clock that replays a scripted sequence
// of instants.
//
// Production code measures elapsed time with time.Now; tests inject a
// StubClock so elapsed durations are exact and reproducible. Once the
// script is exhausted, Now keeps returning the final instant.
type StubClock struct {
	mu       sync.Mutex
	instants []time.Time
	next     int
}

// NewStubClock creates a clock that returns the given instants in order.
// At least one instant is required.
func NewStubClock(instants ...time.Time) *StubClock {
	if len(instants) == 0 {
		panic("testutil: StubClock needs at least one instant")
	}
	return &StubClock{instants: instants}
}

// Now returns the next scripted instant.
//
// Thread-safe: uses mutex to protect cursor access.
func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.instants[c.next]
	if c.next < len(c.instants)-1 {
		c.next++
	}
	return t
}

// Reset rewinds the clock to the first scripted instant.
//
// Used for test reuse. After Reset(), Now() replays the script from the start.
func (c *StubClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = 0
}
