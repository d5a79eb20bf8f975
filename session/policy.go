package session

import "time"

// ReconnectPolicy maps a reconnect attempt number to the wait before
// the next dial. Attempts are 1-based; Delay(1) is the first retry.
type ReconnectPolicy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts uint
}

func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 10,
	}
}

// Delay returns min(base * 2^(attempt-1), max).
func (p ReconnectPolicy) Delay(attempt uint) time.Duration {
	if attempt == 0 {
		return p.BaseDelay
	}
	d := p.BaseDelay
	for i := uint(1); i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return min(d, p.MaxDelay)
}

// Exhausted reports whether attempt is past the retry cap.
func (p ReconnectPolicy) Exhausted(attempt uint) bool {
	return attempt > p.MaxAttempts
}
