package retry

import "time"

// Backoff is a capped exponential delay sequence. The first call to Next
// returns Min; every following call multiplies by Factor up to Max. Reset
// starts the sequence over. Backoff is not safe for concurrent use.
type Backoff struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64

	attempt int
	current time.Duration
}

// NewBackoff returns a doubling backoff between lower and upper.
func NewBackoff(lower, upper time.Duration) *Backoff {
	return &Backoff{Min: lower, Max: upper, Factor: 2}
}

// Next returns the delay to wait before the next attempt.
func (b *Backoff) Next() time.Duration {
	b.attempt++
	if b.current == 0 {
		b.current = b.Min
		return b.clamp(b.current)
	}

	factor := b.Factor
	if factor < 1 {
		factor = 2
	}
	next := time.Duration(float64(b.current) * factor)
	if next < b.current { // overflow
		next = b.Max
	}
	b.current = b.clamp(next)
	return b.current
}

// Reset returns the sequence to Min.
func (b *Backoff) Reset() {
	b.attempt = 0
	b.current = 0
}

// Attempt is the number of delays handed out since the last Reset.
func (b *Backoff) Attempt() int {
	return b.attempt
}

func (b *Backoff) clamp(d time.Duration) time.Duration {
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	if d < b.Min {
		return b.Min
	}
	return d
}
