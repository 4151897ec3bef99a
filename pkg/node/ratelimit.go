package node

import "golang.org/x/time/rate"

// RateLimiterConfig parameterizes the per-host token bucket (spec
// section 4.6): Capacity is the bucket size, FillRate tokens/second.
type RateLimiterConfig struct {
	Capacity float64
	FillRate float64
}

func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{Capacity: 32, FillRate: 4}
}

// RateLimiter enforces a per-HostName token bucket over inbound
// connection attempts and messages, exempting trusted hosts (the hosts
// of trusted addresses the service has dialed). It is only ever touched from the
// single service goroutine, so it carries no internal locking.
type RateLimiter struct {
	cfg     RateLimiterConfig
	buckets map[HostName]*rate.Limiter
	trusted map[HostName]struct{}
}

func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	return &RateLimiter{
		cfg:     cfg,
		buckets: make(map[HostName]*rate.Limiter),
		trusted: make(map[HostName]struct{}),
	}
}

func (rl *RateLimiter) SetTrusted(host HostName, trusted bool) {
	if trusted {
		rl.trusted[host] = struct{}{}
	} else {
		delete(rl.trusted, host)
	}
}

// Allow reports whether an event from host may proceed, consuming a
// token if so.
func (rl *RateLimiter) Allow(host HostName) bool {
	if host == "" {
		return true
	}
	if _, ok := rl.trusted[host]; ok {
		return true
	}
	return rl.bucketFor(host).Allow()
}

func (rl *RateLimiter) bucketFor(host HostName) *rate.Limiter {
	l, ok := rl.buckets[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(rl.cfg.FillRate), int(rl.cfg.Capacity))
		rl.buckets[host] = l
	}
	return l
}
