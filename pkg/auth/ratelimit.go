package auth

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter checks whether a request should be allowed based on the
// identity's service tier. RetryAfter suggests how long the caller should
// wait when the limit is hit.
type RateLimiter interface {
	Allow(ctx context.Context, identity *Identity) (retryAfter time.Duration, err error)
}

// TierConfig holds rate limit settings for a service tier.
type TierConfig struct {
	// RequestsPerMinute is the sustained rate. 0 disables the limit.
	RequestsPerMinute int

	// Burst is the bucket size. Defaults to RequestsPerMinute when 0.
	Burst int
}

// TokenBucketLimiter enforces per-subject token buckets sized by service
// tier. Buckets live in memory; a multi-replica deployment rate-limits per
// replica.
type TokenBucketLimiter struct {
	tiers       map[string]TierConfig
	defaultTier TierConfig

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewTokenBucketLimiter creates a rate limiter with per-tier configuration.
// Identities whose tier has no entry fall back to defaultTier.
func NewTokenBucketLimiter(tiers map[string]TierConfig, defaultTier TierConfig) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		tiers:       tiers,
		defaultTier: defaultTier,
		buckets:     make(map[string]*rate.Limiter),
	}
}

// Allow consumes one token from the caller's bucket. When the bucket is
// empty it returns ErrTooManyRequests and the wait until the next token.
func (l *TokenBucketLimiter) Allow(_ context.Context, identity *Identity) (time.Duration, error) {
	tier := identity.ServiceTier
	if tier == "" {
		tier = "default"
	}

	cfg, ok := l.tiers[tier]
	if !ok {
		cfg = l.defaultTier
	}
	if cfg.RequestsPerMinute <= 0 {
		return 0, nil // no limit
	}

	bucket := l.bucket(identity.Subject+":"+tier, cfg)
	if bucket.Allow() {
		return 0, nil
	}

	// Peek at the wait for the next token without consuming it.
	res := bucket.Reserve()
	wait := res.Delay()
	res.Cancel()

	retryAfter := time.Duration(math.Ceil(wait.Seconds())) * time.Second
	if retryAfter <= 0 {
		retryAfter = time.Second
	}
	return retryAfter, ErrTooManyRequests
}

func (l *TokenBucketLimiter) bucket(key string, cfg TierConfig) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[key]; ok {
		return b
	}

	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.RequestsPerMinute
	}
	b := rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), burst)
	l.buckets[key] = b
	return b
}
