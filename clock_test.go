package coursesync

import (
	"sync"
	"testing"
	"time"
)

// fakeClock is a virtual clock for driving debounce/throttle/batch timers
// deterministically in tests.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock    *fakeClock
	deadline time.Time
	fn       func()
	stopped  bool
	fired    bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, deadline: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward and runs every due timer in deadline
// order. Callbacks run without the clock lock held.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.fired || t.stopped || t.deadline.After(c.now) {
				continue
			}
			if next == nil || t.deadline.Before(next.deadline) {
				next = t
			}
		}
		if next != nil {
			next.fired = true
		}
		c.mu.Unlock()

		if next == nil {
			return
		}
		next.fn()
	}
}

func TestFakeClock_AdvanceFiresInOrder(t *testing.T) {
	clock := newFakeClock()

	var order []int
	clock.AfterFunc(20*time.Millisecond, func() { order = append(order, 2) })
	clock.AfterFunc(10*time.Millisecond, func() { order = append(order, 1) })

	clock.Advance(5 * time.Millisecond)
	if len(order) != 0 {
		t.Fatalf("expected no timers fired yet, got %v", order)
	}

	clock.Advance(20 * time.Millisecond)
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("expected firing order [1 2], got %v", order)
	}
}

func TestFakeClock_StopPreventsFiring(t *testing.T) {
	clock := newFakeClock()

	fired := false
	timer := clock.AfterFunc(10*time.Millisecond, func() { fired = true })
	if !timer.Stop() {
		t.Fatalf("expected Stop to succeed")
	}

	clock.Advance(time.Second)
	if fired {
		t.Errorf("stopped timer fired")
	}
}
