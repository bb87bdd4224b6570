package propagation

import "time"

// Backoff is the schedule for automatic propagation checks.
type Backoff struct {
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
	MaxAttempts int
}

func DefaultBackoff() Backoff {
	return Backoff{Initial: 30 * time.Second, Max: 10 * time.Minute, Multiplier: 1.5, MaxAttempts: 120}
}

// Delay returns the wait before the given attempt (1-based). The first
// attempt runs after Initial.
func (b Backoff) Delay(attempt int) time.Duration {
	d := float64(b.Initial)
	for i := 1; i < attempt; i++ {
		d *= b.Multiplier
		if time.Duration(d) >= b.Max {
			return b.Max
		}
	}
	if time.Duration(d) > b.Max {
		return b.Max
	}
	return time.Duration(d)
}

// Exhausted reports whether no further attempt may be scheduled.
func (b Backoff) Exhausted(attempts int) bool {
	return b.MaxAttempts > 0 && attempts >= b.MaxAttempts
}
