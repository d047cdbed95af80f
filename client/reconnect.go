package client

import "time"

// SessionState is the explicit reconnect state machine of a session.
type SessionState int

const (
	StateConnected SessionState = iota
	StateReconnecting
	StateGivenUp
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateGivenUp:
		return "given-up"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Backoff yields the delay before each reconnect attempt: BaseDelay
// doubled per attempt, capped at MaxDelay, for at most MaxAttempts
// attempts.
type Backoff struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int

	attempt int
}

// DefaultBackoff is one second growing to thirty, ten attempts before
// giving up.
func DefaultBackoff() Backoff {
	return Backoff{
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 10,
	}
}

// Next consumes one attempt and returns its delay. ok is false once
// the attempts are exhausted; the caller transitions to the terminal
// given-up state.
func (b *Backoff) Next() (delay time.Duration, ok bool) {
	if b.attempt >= b.MaxAttempts {
		return 0, false
	}
	delay = b.BaseDelay << uint(b.attempt)
	if delay > b.MaxDelay || delay <= 0 {
		delay = b.MaxDelay
	}
	b.attempt++
	return delay, true
}

// Attempt returns the number of attempts consumed since the last reset.
func (b *Backoff) Attempt() int { return b.attempt }

// Reset rewinds the schedule after a successful reconnect.
func (b *Backoff) Reset() { b.attempt = 0 }
