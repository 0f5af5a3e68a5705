package gateway

import "time"

// ReconnectPolicy decides whether and when to retry after an unexpected
// disconnect. Reconnection is never implicit: the default policy gives up
// immediately and leaves the decision to an operator.
type ReconnectPolicy interface {
	// NextDelay returns the wait before reconnect attempt (1-based), or
	// ok=false to give up.
	NextDelay(attempt int) (delay time.Duration, ok bool)
}

// NoReconnect never retries.
type NoReconnect struct{}

func (NoReconnect) NextDelay(int) (time.Duration, bool) { return 0, false }

// Backoff retries with exponential delay doubling from Initial up to Max,
// giving up after MaxAttempts (0 = unlimited attempts).
type Backoff struct {
	Initial     time.Duration
	Max         time.Duration
	MaxAttempts int
}

func (b Backoff) NextDelay(attempt int) (time.Duration, bool) {
	if attempt < 1 || (b.MaxAttempts > 0 && attempt > b.MaxAttempts) {
		return 0, false
	}
	delay := b.Initial
	if delay <= 0 {
		delay = time.Second
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if b.Max > 0 && delay >= b.Max {
			return b.Max, true
		}
	}
	if b.Max > 0 && delay > b.Max {
		delay = b.Max
	}
	return delay, true
}
