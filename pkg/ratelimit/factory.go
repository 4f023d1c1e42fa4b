package ratelimit

import (
	"time"

	"imgscraper/pkg/config"
)

// FromConfig builds the outgoing request limiter described by cfg
func FromConfig(cfg config.RateLimitConfig) Limiter {
	if !cfg.Enabled || cfg.RequestsPerMinute <= 0 {
		return Unlimited{}
	}

	switch cfg.Strategy {
	case "sliding_window":
		return NewSlidingWindow(cfg.RequestsPerMinute, time.Minute)
	default:
		// Bucket of BurstSize refilled at the per-minute rate
		burst := cfg.BurstSize
		if burst <= 0 || burst > cfg.RequestsPerMinute {
			burst = cfg.RequestsPerMinute
		}
		period := time.Minute * time.Duration(burst) / time.Duration(cfg.RequestsPerMinute)
		return NewTokenBucket(burst, period)
	}
}
