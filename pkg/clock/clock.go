// Package clock abstracts time so that countdowns, debounces and reconnect
// backoff can be driven deterministically in tests.
package clock

import "time"

// Clock is the subset of the time package the realtime core depends on.
type Clock interface {
	Now() time.Time

	// AfterFunc calls f in its own goroutine (real clock) or inside
	// Advance (fake clock) once d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable handle returned by AfterFunc.
type Timer interface {
	// Stop prevents the timer from firing. It reports whether the call
	// stopped the timer, false if it already fired or was stopped.
	Stop() bool
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
