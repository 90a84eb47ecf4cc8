// Package retry wraps exponential backoff for backend calls. Only
// idempotent operations should be retried; streaming requests are never
// retried because a partially consumed stream cannot be replayed.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/openconduit/conduit/pkg/api"
)

// Config controls the retry policy.
type Config struct {
	// MaxRetries is the number of retries after the initial attempt.
	// Zero disables retrying.
	MaxRetries int

	// InitialInterval is the first backoff delay.
	InitialInterval time.Duration

	// MaxInterval caps the backoff delay.
	MaxInterval time.Duration
}

// DefaultConfig matches typical provider guidance: a few attempts with
// sub-second initial delay.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// Permanent marks err as non-retryable. Do returns it immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op with exponential backoff until it succeeds, returns a
// permanent error, exhausts the retry budget, or the context is cancelled.
func Do(ctx context.Context, cfg Config, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.MaxInterval = cfg.MaxInterval
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(
		backoff.WithMaxRetries(b, uint64(cfg.MaxRetries)), ctx)

	attempt := 0
	return backoff.RetryNotify(op, policy, func(err error, next time.Duration) {
		attempt++
		slog.Debug("retrying backend call",
			"attempt", attempt,
			"next_delay", next,
			"error", err.Error(),
		)
	})
}

// Retryable classifies an error from a backend call. Rate limits and
// server errors are transient; everything else is the caller's fault and
// retrying will not help.
func Retryable(err error) bool {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Type {
		case api.ErrorTypeTooManyRequests, api.ErrorTypeServerError:
			return true
		}
		return false
	}
	// Non-APIError failures are network-level and worth retrying.
	return true
}

// RetryableStatus reports whether an HTTP status code indicates a
// transient backend failure.
func RetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
