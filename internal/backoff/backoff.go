// Package backoff computes reconnection delays.
package backoff

import "time"

// Policy describes the exponential backoff between reconnection attempts.
type Policy struct {
	InitialDelay time.Duration // delay before attempt 1
	MaxDelay     time.Duration // upper bound on any delay
	MaxAttempts  int           // attempts before giving up
}

// DefaultPolicy returns the standard gateway reconnection policy:
// 1s, 2s, 4s, 8s, 16s across five attempts, capped at 30s.
func DefaultPolicy() Policy {
	return Policy{
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		MaxAttempts:  5,
	}
}

// Delay returns the delay preceding the given attempt (1-based):
// min(InitialDelay * 2^(attempt-1), MaxDelay). Attempts below 1 are
// treated as 1.
func (p Policy) Delay(attempt int) time.Duration {
	d := p.InitialDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Exhausted reports whether the given attempt count has used up the policy.
func (p Policy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}
