// Package simclock provides the virtual time source driving exam pacing.
//
// A clock is an anchor pair (a simulated instant and the real instant captured
// when the anchor was set) plus a speed multiplier. Every duration and
// threshold computation in the exam aggregate uses simulated time, so an exam
// can be replayed or demoed at an accelerated pace without touching business
// logic.
package simclock

import "time"

// Clock converts wall-clock readings into simulated exam time.
type Clock struct {
	// SimAnchor is the simulated instant at anchor time.
	SimAnchor time.Time
	// RealAnchor is the real instant captured when the anchor was set.
	RealAnchor time.Time
	// Speed is the simulated-time multiplier. Zero means 1x.
	Speed float64
}

// Anchored creates a clock anchored at simAt/realAt advancing at speed.
func Anchored(simAt, realAt time.Time, speed float64) Clock {
	return Clock{SimAnchor: simAt.UTC(), RealAnchor: realAt.UTC(), Speed: speed}
}

// RealTime creates a 1x clock where simulated time equals wall time.
func RealTime(now time.Time) Clock {
	return Anchored(now, now, 1)
}

// Now returns the simulated instant corresponding to realNow.
func (c Clock) Now(realNow time.Time) time.Time {
	speed := c.Speed
	if speed == 0 {
		speed = 1
	}
	elapsed := realNow.UTC().Sub(c.RealAnchor)
	scaled := time.Duration(float64(elapsed) * speed)
	return c.SimAnchor.Add(scaled)
}

// IsZero reports whether the clock has no anchor set.
func (c Clock) IsZero() bool {
	return c.SimAnchor.IsZero() && c.RealAnchor.IsZero()
}
