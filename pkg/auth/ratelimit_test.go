package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTokenBucketLimiter_BurstThenReject(t *testing.T) {
	l := NewTokenBucketLimiter(map[string]TierConfig{
		"standard": {RequestsPerMinute: 60, Burst: 2},
	}, TierConfig{})

	id := &Identity{Subject: "alice", ServiceTier: "standard"}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := l.Allow(ctx, id); err != nil {
			t.Fatalf("request %d: unexpected error: %v", i, err)
		}
	}

	retryAfter, err := l.Allow(ctx, id)
	if !errors.Is(err, ErrTooManyRequests) {
		t.Fatalf("err = %v, want ErrTooManyRequests", err)
	}
	if retryAfter < time.Second {
		t.Errorf("retryAfter = %v, want at least 1s", retryAfter)
	}
}

func TestTokenBucketLimiter_PerSubjectBuckets(t *testing.T) {
	l := NewTokenBucketLimiter(map[string]TierConfig{
		"standard": {RequestsPerMinute: 60, Burst: 1},
	}, TierConfig{})

	ctx := context.Background()
	alice := &Identity{Subject: "alice", ServiceTier: "standard"}
	bob := &Identity{Subject: "bob", ServiceTier: "standard"}

	if _, err := l.Allow(ctx, alice); err != nil {
		t.Fatalf("alice first request: %v", err)
	}
	if _, err := l.Allow(ctx, alice); err == nil {
		t.Fatal("alice second request: expected rejection")
	}

	// Bob has his own bucket and is unaffected.
	if _, err := l.Allow(ctx, bob); err != nil {
		t.Fatalf("bob first request: %v", err)
	}
}

func TestTokenBucketLimiter_DefaultTierFallback(t *testing.T) {
	l := NewTokenBucketLimiter(map[string]TierConfig{
		"premium": {RequestsPerMinute: 600},
	}, TierConfig{RequestsPerMinute: 60, Burst: 1})

	ctx := context.Background()
	id := &Identity{Subject: "carol", ServiceTier: "unknown-tier"}

	if _, err := l.Allow(ctx, id); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if _, err := l.Allow(ctx, id); !errors.Is(err, ErrTooManyRequests) {
		t.Fatalf("second request: err = %v, want ErrTooManyRequests", err)
	}
}

func TestTokenBucketLimiter_ZeroRateUnlimited(t *testing.T) {
	l := NewTokenBucketLimiter(nil, TierConfig{})

	ctx := context.Background()
	id := &Identity{Subject: "dave"}

	for i := 0; i < 100; i++ {
		if _, err := l.Allow(ctx, id); err != nil {
			t.Fatalf("request %d: unexpected error: %v", i, err)
		}
	}
}

func TestTokenBucketLimiter_EmptyTierUsesDefault(t *testing.T) {
	l := NewTokenBucketLimiter(map[string]TierConfig{
		"default": {RequestsPerMinute: 60, Burst: 1},
	}, TierConfig{})

	ctx := context.Background()
	id := &Identity{Subject: "eve"}

	if _, err := l.Allow(ctx, id); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if _, err := l.Allow(ctx, id); !errors.Is(err, ErrTooManyRequests) {
		t.Fatalf("second request: err = %v, want ErrTooManyRequests", err)
	}
}
