package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Spacer enforces a minimum interval between consecutive events.
// A zero interval disables spacing.
type Spacer struct {
	mu       sync.Mutex
	interval time.Duration
	limiter  *rate.Limiter
}

// NewSpacer creates a spacer with the given minimum interval
func NewSpacer(interval time.Duration) *Spacer {
	s := &Spacer{}
	s.limiter = rate.NewLimiter(limitFor(interval), 1)
	s.interval = clampInterval(interval)
	return s
}

func clampInterval(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

func limitFor(d time.Duration) rate.Limit {
	if d <= 0 {
		return rate.Inf
	}
	return rate.Every(d)
}

// Reserve books the next slot and returns how long the caller must wait
// before starting. Reservations are handed out in call order.
func (s *Spacer) Reserve() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.interval == 0 {
		return 0
	}
	now := time.Now()
	r := s.limiter.ReserveN(now, 1)
	if !r.OK() {
		return 0
	}
	return r.DelayFrom(now)
}

// Interval returns the current minimum interval
func (s *Spacer) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// SetInterval changes the minimum interval for future reservations
func (s *Spacer) SetInterval(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d = clampInterval(d)
	if d == s.interval {
		return
	}
	if s.interval == 0 {
		// Start fresh so the first spaced event is not penalised
		s.limiter = rate.NewLimiter(limitFor(d), 1)
	} else {
		s.limiter.SetLimit(limitFor(d))
	}
	s.interval = d
}
