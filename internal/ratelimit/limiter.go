// Package ratelimit paces submissions with a strict inter-submission delay.
package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Pacer enforces a minimum interval between permits across all workers by
// tracking the next available permit time.
//
// Unlike token bucket approaches, this never allows bursts: two permits are
// always at least one interval apart, which is what keeps submission traffic
// smooth at high account counts.
type Pacer struct {
	mu             sync.Mutex
	nextPermitTime time.Time
	interval       time.Duration

	// interval mirror for lock-free reads
	intervalNanos atomic.Int64
}

// New creates a Pacer with the given inter-submission delay.
// A zero or negative delay disables pacing entirely.
func New(delay time.Duration) *Pacer {
	if delay < 0 {
		delay = 0
	}

	p := &Pacer{
		nextPermitTime: time.Now(),
		interval:       delay,
	}
	p.intervalNanos.Store(int64(delay))

	return p
}

// Wait blocks until a permit is available or the context is cancelled.
// A cancelled wait returns its permit slot so later callers are not starved
// by slots that were never used.
func (p *Pacer) Wait(ctx context.Context) error {
	if p.intervalNanos.Load() == 0 {
		return ctx.Err()
	}

	p.mu.Lock()
	permitTime := p.nextPermitTime
	p.nextPermitTime = permitTime.Add(p.interval)
	p.mu.Unlock()

	// Permit time in the past means we are behind schedule; proceed now.
	waitDuration := time.Until(permitTime)
	if waitDuration <= 0 {
		return nil
	}

	timer := time.NewTimer(waitDuration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		p.mu.Lock()
		// Only the most recently issued slot can be returned.
		if p.nextPermitTime.Equal(permitTime.Add(p.interval)) {
			p.nextPermitTime = permitTime
		}
		p.mu.Unlock()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SetDelay updates the inter-submission delay. Takes effect immediately for
// subsequent permits.
func (p *Pacer) SetDelay(delay time.Duration) {
	if delay < 0 {
		delay = 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.interval = delay
	p.intervalNanos.Store(int64(delay))

	// Pull the schedule back to now so a delay decrease does not stall
	// behind the old, longer intervals.
	now := time.Now()
	if p.nextPermitTime.Before(now) {
		p.nextPermitTime = now
	}
}

// Delay returns the current inter-submission delay.
func (p *Pacer) Delay() time.Duration {
	return time.Duration(p.intervalNanos.Load())
}

// Rate returns the equivalent permits-per-second rate, 0 when unpaced.
func (p *Pacer) Rate() float64 {
	d := p.Delay()
	if d == 0 {
		return 0
	}
	return float64(time.Second) / float64(d)
}
