// Package clock defines the time capability used by the trial engine.
//
// Production code gets a Clock from the event loop (see package loop) so that
// every scheduled callback runs on the loop goroutine. Tests use ManualClock,
// which only moves when told to and fires due callbacks synchronously.
package clock

import "time"

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Stop cancels the callback. It returns false if the callback already
	// ran or was already stopped.
	Stop() bool
}

// Clock reads monotonic time and schedules one-shot callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// System is a Clock backed directly by the runtime. Callbacks run on their
// own goroutine, so it is only safe for code that does its own locking.
type System struct{}

// Now returns time.Now, which carries a monotonic reading.
func (System) Now() time.Time { return time.Now() }

// AfterFunc wraps time.AfterFunc.
func (System) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
