// Package clock provides an abstraction over wall-clock time so that the
// scheduler's timer-driven wake and the sleep(ms) syscall can be driven
// deterministically in tests.
package clock

import "time"

// Clock is the interface required by the scheduler's timed waits: sleep(ms),
// get_time, and task_info's running-time accounting.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the time once d has elapsed.
	After(d time.Duration) <-chan time.Time
}

var (
	_ Clock = RealClock{}
	_ Clock = &FakeClock{}
	_ Clock = &SimulatedClock{}
)
