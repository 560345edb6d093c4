package core

import "time"

// Throttle reports at most once per interval. It drives periodic progress
// output from long runs.
type Throttle struct {
	every time.Duration
	last  time.Time
	now   func() time.Time
}

// NewThrottle constructs a Throttle firing every interval; non-positive
// intervals default to ten seconds.
func NewThrottle(interval time.Duration) *Throttle {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Throttle{every: interval, now: time.Now}
}

// Ready reports whether a full interval has elapsed since the last report
// (or since the first call).
func (t *Throttle) Ready() bool {
	now := t.now()
	if t.last.IsZero() {
		t.last = now
		return false
	}
	if now.Sub(t.last) >= t.every {
		t.last = now
		return true
	}
	return false
}
