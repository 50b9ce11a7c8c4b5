package common

import (
	"sync"
	"time"
)

// maxShift keeps BaseDelay<<attempt from overflowing int64 nanoseconds.
const maxShift = 32

// Backoff yields exponentially growing delays clamped to [BaseDelay, MaxDelay].
// The sequence is non-decreasing in attempt.
type Backoff struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func NewBackoff(base, max time.Duration) Backoff {
	return Backoff{
		BaseDelay: base,
		MaxDelay:  max,
	}
}

// Next returns the delay before retry number attempt, counted from 0.
func (b Backoff) Next(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxShift {
		attempt = maxShift
	}

	d := b.BaseDelay << attempt
	if d <= 0 || d > b.MaxDelay {
		d = b.MaxDelay
	}

	return max(d, b.BaseDelay)
}

// ReconnectPolicy tracks reconnect attempts across connection drops.
// A connection that stays up for at least StableAfter resets the sequence;
// a shorter one keeps escalating from where the previous outage stopped.
// It is safe for concurrent use.
type ReconnectPolicy struct {
	backoff     Backoff
	stableAfter time.Duration
	now         func() time.Time

	mu          sync.Mutex
	attempt     int
	connectedAt time.Time
}

func NewReconnectPolicy(b Backoff, stableAfter time.Duration) *ReconnectPolicy {
	return &ReconnectPolicy{
		backoff:     b,
		stableAfter: stableAfter,
		now:         time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (p *ReconnectPolicy) WithClock(now func() time.Time) *ReconnectPolicy {
	p.now = now
	return p
}

// Connected records a successful (re)connect.
func (p *ReconnectPolicy) Connected() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.connectedAt = p.now()
}

// Next returns the delay to wait before the next connection attempt.
func (p *ReconnectPolicy) Next() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connectedAt.IsZero() {
		if p.now().Sub(p.connectedAt) >= p.stableAfter {
			p.attempt = 0
		}
		p.connectedAt = time.Time{}
	}

	d := p.backoff.Next(p.attempt)
	if d < p.backoff.MaxDelay {
		p.attempt++
	}

	return d
}
