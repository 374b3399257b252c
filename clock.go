package coursesync

import "time"

// Clock abstracts wall-clock time and delayed execution so debounce,
// throttle, and batch timers can run against a virtual clock in tests.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc schedules fn to run after d and returns a cancellable timer.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a cancellable delayed task handle.
type Timer interface {
	// Stop cancels the timer. It reports whether the call prevented the
	// function from running.
	Stop() bool
}

// systemClock implements Clock using the time package.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// SystemClock returns the real wall-clock implementation of Clock.
func SystemClock() Clock { return systemClock{} }
