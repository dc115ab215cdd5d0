// Package clock provides a wall-clock abstraction for the harness.
//
// Production code uses Real(), which wraps the standard time package.
// Tests use NewFake() to capture deterministic baselines and to drive
// wait loops without real sleeps.
package clock

import "time"

// Clock provides the time operations the harness depends on.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the time elapsed since t.
	Since(t time.Time) time.Duration

	// Sleep pauses the current goroutine for at least duration d.
	Sleep(d time.Duration)

	// After waits for the duration to elapse and then sends the current time.
	After(d time.Duration) <-chan time.Time
}

// realClock implements Clock using the standard time package.
type realClock struct{}

// Real returns a Clock backed by the standard time package.
func Real() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

func (realClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

func (realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
