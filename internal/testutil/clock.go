package testutil

import (
	"fmt"
	"sync"
	"time"
)

// FakeClock is a Clock pinned to a chosen instant, so records created in
// tests carry predictable timestamps. Safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
}

// NewFakeClock creates a FakeClock pinned to the given instant.
func NewFakeClock(at time.Time) *FakeClock {
	return &FakeClock{current: at}
}

// FrozenClock returns a FakeClock pinned to 2025-06-01 12:00:00 UTC, the
// instant catalog fixtures are stamped with.
func FrozenClock() *FakeClock {
	return NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance moves the clock forward by d, for tests that need distinct
// upload dates.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// SequentialIDs hands out canonical UUIDs "00000000-0000-0000-0000-000000000001",
// "...-000000000002", ... in creation order, so fixtures can refer to records
// by predictable IDs that still pass UUID parsing.
type SequentialIDs struct {
	mu   sync.Mutex
	next int
}

func NewSequentialIDs() *SequentialIDs {
	return &SequentialIDs{}
}

func (g *SequentialIDs) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("00000000-0000-0000-0000-%012d", g.next)
}
