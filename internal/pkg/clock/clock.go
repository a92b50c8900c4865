// internal/pkg/clock/clock.go
package clock

import "time"

// Clock abstracts time so the session managers' timer lines can be driven
// deterministically in tests.
type Clock interface {
	Now() time.Time
	// AfterFunc arms a timer that calls fn after d. The returned Timer can
	// be stopped; arming a replacement is the caller's responsibility.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is the handle for a single armed callback.
type Timer interface {
	// Stop cancels the timer. It reports whether the call prevented the
	// callback from firing.
	Stop() bool
}

type realClock struct{}

// New returns a Clock backed by the runtime timers.
func New() Clock {
	return realClock{}
}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return realTimer{t: time.AfterFunc(d, fn)}
}

type realTimer struct {
	t *time.Timer
}

func (rt realTimer) Stop() bool { return rt.t.Stop() }
