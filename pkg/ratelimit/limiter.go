package ratelimit

import (
	"context"
	"sync"
	"time"
)

// DefaultInterval is the minimum spacing between two outbound requests
const DefaultInterval = 750 * time.Millisecond

// Waiter admits one request per Wait. *Gate is the implementation.
type Waiter interface {
	Wait(ctx context.Context) error
}

// Clock abstracts time so the spacing can be tested without real sleeps
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall clock
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Gate spaces requests at least interval apart. One Gate is shared by every
// caller in the process. The first request is admitted one interval after
// the gate is created, so N requests never take less than N intervals.
type Gate struct {
	interval time.Duration
	clock    Clock
	next     time.Time
	admitted int
	mu       sync.Mutex
}

// NewGate creates a gate with the given spacing. A nil clock means the wall clock.
func NewGate(interval time.Duration, clock Clock) *Gate {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Gate{
		interval: interval,
		clock:    clock,
		next:     clock.Now().Add(interval),
	}
}

// Wait blocks until the next request slot. Callers queue on the mutex, so
// concurrent callers are admitted one at a time.
func (g *Gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	now := g.clock.Now()
	if wait := g.next.Sub(now); wait > 0 {
		if err := g.clock.Sleep(ctx, wait); err != nil {
			return err
		}
		now = g.clock.Now()
	}

	g.next = now.Add(g.interval)
	g.admitted++
	return nil
}

// Admitted reports how many requests the gate has let through
func (g *Gate) Admitted() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.admitted
}

// Interval returns the configured spacing
func (g *Gate) Interval() time.Duration {
	return g.interval
}
