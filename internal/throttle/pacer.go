// Package throttle paces outgoing API calls so the client stays under the remote rate limit.
package throttle

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// windowDuration is the sliding window the per-minute cap is enforced over
	windowDuration = 60 * time.Second
	// defaultBurst is how many calls may go out back to back before smoothing kicks in
	defaultBurst = 5
)

// Pacer enforces a hard cap of calls per sliding minute and smooths bursts with a token
// bucket. A nil *Pacer never blocks.
type Pacer struct {
	limitPerMinute int
	window         time.Duration
	limiter        *rate.Limiter
	timestamps     []time.Time
	waits          int
	mutex          sync.Mutex
	now            func() time.Time
}

// New creates a pacer allowing limitPerMinute calls per minute. A limit of zero or less
// returns nil, which disables pacing.
func New(limitPerMinute, burst int) *Pacer {
	if limitPerMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = defaultBurst
	}
	if burst > limitPerMinute {
		burst = limitPerMinute
	}

	perSecond := rate.Limit(float64(limitPerMinute) / windowDuration.Seconds())
	return &Pacer{
		limitPerMinute: limitPerMinute,
		window:         windowDuration,
		limiter:        rate.NewLimiter(perSecond, burst),
		timestamps:     make([]time.Time, 0, limitPerMinute+1),
		now:            time.Now,
	}
}

// Wait blocks until a call may be issued or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return nil
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	for {
		delay, ok := p.reserve()
		if ok {
			return nil
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Allow records a call if the window has room and reports whether it did.
func (p *Pacer) Allow() bool {
	if p == nil {
		return true
	}
	_, ok := p.reserve()
	return ok
}

// reserve takes a slot in the window, or reports how long until the oldest slot expires.
func (p *Pacer) reserve() (time.Duration, bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	now := p.now()
	windowStart := now.Add(-p.window)

	valid := p.timestamps[:0]
	for _, ts := range p.timestamps {
		if ts.After(windowStart) {
			valid = append(valid, ts)
		}
	}
	p.timestamps = valid

	if len(p.timestamps) >= p.limitPerMinute {
		p.waits++
		return p.timestamps[0].Sub(windowStart), false
	}

	p.timestamps = append(p.timestamps, now)
	return 0, true
}

// Stats returns a snapshot of the pacer for monitoring.
func (p *Pacer) Stats() Stats {
	if p == nil {
		return Stats{}
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	return Stats{
		InWindow:       len(p.timestamps),
		LimitPerMinute: p.limitPerMinute,
		WindowSeconds:  int(p.window.Seconds()),
		Waits:          p.waits,
	}
}

// Stats contains pacer statistics
type Stats struct {
	InWindow       int `json:"in_window"`
	LimitPerMinute int `json:"limit_per_minute"`
	WindowSeconds  int `json:"window_seconds"`
	Waits          int `json:"waits"`
}
