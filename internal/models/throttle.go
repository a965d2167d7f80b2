package models

import "time"

// CounterOutcome is the result of advancing a sliding-window counter.
// Denial is a designed outcome value, not an error.
type CounterOutcome int

const (
	CounterAdmitted CounterOutcome = iota
	CounterDenied
)

// RequestCounter is a sliding-window request counter. Two independent
// families exist: one keyed by requesting network address (with separate
// phone/email sub-counters) and one keyed by contact entity and security
// level. Count never exceeds the configured maximum while the window is
// open; an elapsed window resets to count=1 on the next request.
type RequestCounter struct {
	Count           int
	WindowStartedAt time.Time
}

// Advance applies one request to the counter state machine and reports
// whether the request is admitted. The three transitions:
//
//	fresh (zero value)          -> count=1, window starts now; admit
//	open window, count < max    -> count+1; admit
//	open window, count >= max   -> unchanged; deny
//	elapsed window              -> count=1, window restarts now; admit
//
// Callers must hold the row lock for this key while calling Advance and
// persisting the result; see repositories.ThrottleRepository.
func (c *RequestCounter) Advance(now time.Time, window time.Duration, max int) CounterOutcome {
	if c.WindowStartedAt.IsZero() || now.Sub(c.WindowStartedAt) >= window {
		c.Count = 1
		c.WindowStartedAt = now
		return CounterAdmitted
	}
	if c.Count < max {
		c.Count++
		return CounterAdmitted
	}
	return CounterDenied
}

// RemainingWait returns the time until the open window elapses. Only
// meaningful after a denied Advance.
func (c *RequestCounter) RemainingWait(now time.Time, window time.Duration) time.Duration {
	return window - now.Sub(c.WindowStartedAt)
}

// UserTokenKey is the persisted rotating key backing user tokens. A user
// has at most one active key; rotation replaces key and created_at
// together.
type UserTokenKey struct {
	UserID    int64
	Key       string // base64 encoding of the 128-bit key
	CreatedAt time.Time
}

// OlderThan reports whether the key was created more than lifetime ago.
func (k *UserTokenKey) OlderThan(now time.Time, lifetime time.Duration) bool {
	return now.Sub(k.CreatedAt) > lifetime
}
