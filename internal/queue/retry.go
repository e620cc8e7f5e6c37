package queue

import "time"

// RetryPolicy is the backoff schedule for one queue. Backoff is indexed by
// attempt count: Backoff[0] is the delay after the first failed attempt.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     []time.Duration
	// ReuseLast keeps applying the final delay when attempts outrun the
	// schedule; otherwise such attempts fail immediately.
	ReuseLast bool
}

var DefaultOrderPolicy = RetryPolicy{
	MaxAttempts: 3,
	Backoff: []time.Duration{
		30 * time.Second,
		2 * time.Minute,
		5 * time.Minute,
	},
	ReuseLast: true,
}

var DefaultNotificationPolicy = RetryPolicy{
	MaxAttempts: 3,
	Backoff: []time.Duration{
		10 * time.Second,
		30 * time.Second,
		60 * time.Second,
	},
	ReuseLast: true,
}

// Delay returns the wait before the next attempt, given the 1-indexed
// attempt that just failed. ok is false when no further retry is allowed.
func (p RetryPolicy) Delay(attemptCount int) (time.Duration, bool) {
	idx := attemptCount - 1
	if idx < 0 {
		return 0, false
	}
	if idx < len(p.Backoff) {
		return p.Backoff[idx], true
	}
	if p.ReuseLast && len(p.Backoff) > 0 {
		return p.Backoff[len(p.Backoff)-1], true
	}
	return 0, false
}

// NextRetryTime converts a delay into the wall-clock instant the job becomes
// eligible again.
func NextRetryTime(p RetryPolicy, attemptCount int) *time.Time {
	delay, ok := p.Delay(attemptCount)
	if !ok {
		return nil
	}
	t := time.Now().UTC().Add(delay)
	return &t
}
