// Package resilience holds small retry-timing primitives shared by the
// pool's connect and query retry loops.
package resilience

import "time"

// BackoffStrategy defines retry backoff behavior.
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
}

// FixedBackoff returns the same delay regardless of attempt number. The
// pool's retry budgets (spec §4.4/§4.6) are all specified as a single
// wait-millis value rather than a growth curve, so this is the only
// strategy the pool itself constructs; callers embedding internal/pool in
// a larger system can still satisfy BackoffStrategy with their own curve.
type FixedBackoff struct {
	Delay time.Duration
}

// NextDelay returns the fixed delay regardless of attempt number.
func (fb *FixedBackoff) NextDelay(attempt int) time.Duration {
	return fb.Delay
}
