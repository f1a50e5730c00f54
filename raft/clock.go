package raft

import "time"

// Clock abstracts time so the lock state machine never touches the
// standard time package directly. In a real deployment this would be
// driven by the consensus group's replicated wall clock (identical
// readings, at a given log index, on every replica); NewStandardClock
// is provided for the single-process reference Host and for command-line
// use, where there is exactly one replica and real time is replicated
// time by definition.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the time elapsed since t.
	Since(t time.Time) time.Duration

	// After waits for the duration to elapse and then sends the current
	// time on the returned channel.
	After(d time.Duration) <-chan time.Time

	// NewTimer creates a new Timer that fires after at least duration d.
	NewTimer(d time.Duration) Timer
}

// Timer is an interface wrapper around time.Timer for mocking.
type Timer interface {
	// Chan returns the channel on which the time will be delivered.
	Chan() <-chan time.Time

	// Stop prevents the Timer from firing. It returns true if the call
	// stops the timer, false if the timer has already expired or been
	// stopped.
	Stop() bool
}

// standardClock implements Clock using the standard time package.
type standardClock struct{}

// NewStandardClock returns a Clock backed by Go's standard time package.
func NewStandardClock() Clock {
	return &standardClock{}
}

func (sc *standardClock) Now() time.Time                  { return time.Now() }
func (sc *standardClock) Since(t time.Time) time.Duration  { return time.Since(t) }
func (sc *standardClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (sc *standardClock) NewTimer(d time.Duration) Timer {
	return &standardTimer{timer: time.NewTimer(d)}
}

// standardTimer wraps time.Timer to satisfy the Timer interface.
type standardTimer struct {
	timer *time.Timer
}

func (st *standardTimer) Chan() <-chan time.Time { return st.timer.C }
func (st *standardTimer) Stop() bool             { return st.timer.Stop() }
