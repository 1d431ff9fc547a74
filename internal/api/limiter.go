package api

import (
	"sync"

	"lifestory/internal/config"

	"golang.org/x/time/rate"
)

// rateLimiter hands out one token bucket per client key.
type rateLimiter struct {
	limiters sync.Map
	cfg      config.RateLimitConfig
}

func newRateLimiter(cfg config.RateLimitConfig) *rateLimiter {
	return &rateLimiter{
		cfg: cfg,
	}
}

func (l *rateLimiter) enabled() bool {
	return l.cfg.RPS > 0
}

func (l *rateLimiter) getLimiter(key string) *rate.Limiter {
	if v, ok := l.limiters.Load(key); ok {
		if lim, ok := v.(*rate.Limiter); ok {
			return lim
		}
	}

	lim := newLimiter(l.cfg)
	actual, loaded := l.limiters.LoadOrStore(key, lim)
	if loaded {
		if actualLim, ok := actual.(*rate.Limiter); ok {
			return actualLim
		}
	}
	return lim
}

func newLimiter(cfg config.RateLimitConfig) *rate.Limiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}
	return rate.NewLimiter(rate.Limit(cfg.RPS), burst)
}
