// Package backoff implements bounded exponential backoff for calls to external
// providers (embedding and generative model services).
//
// Only transient failures are retried; everything else surfaces immediately so
// the caller can map it to its own error taxonomy.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Config controls retry behavior for upstream provider calls.
type Config struct {
	MaxRetries      int           // Maximum number of retry attempts
	InitialInterval time.Duration // Initial backoff interval
	MaxInterval     time.Duration // Maximum backoff interval
}

// DefaultConfig returns sensible defaults for network calls to AI providers.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = d.InitialInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = d.MaxInterval
	}
	return c
}

// retryablePatterns groups error substrings by category.
// Matched case-insensitively against err.Error().
//
// NOTE: String matching is used because provider SDKs do not expose typed
// errors for transient failures. Re-evaluate if the SDKs grow structured
// error types.
var retryablePatterns = [][]string{
	{"rate limit", "quota exceeded", "429"},      // rate limiting
	{"500", "502", "503", "504", "unavailable"},  // transient server errors
	{"connection reset", "timeout", "temporary"}, // network errors
}

// ErrAttemptTimeout marks the expiry of a per-attempt deadline created
// inside a retried function. Unlike the caller's own deadline it is a
// transient provider failure and is retried.
var ErrAttemptTimeout = errors.New("attempt timed out")

// CallWithTimeout runs fn under a child deadline of d when d > 0. When the
// child deadline expires while the parent context is still live, the error
// is tagged with ErrAttemptTimeout so Do treats it as retryable.
func CallWithTimeout(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	callCtx := ctx
	if d > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	err := fn(callCtx)
	if err != nil && callCtx.Err() != nil && ctx.Err() == nil {
		return fmt.Errorf("%w: %w", ErrAttemptTimeout, err)
	}
	return err
}

// Retryable reports whether err is transient and worth another attempt.
// A per-attempt timeout from CallWithTimeout is retryable; cancellation or
// deadline expiry of the caller's own context is not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAttemptTimeout) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, group := range retryablePatterns {
		for _, sub := range group {
			if strings.Contains(errStr, sub) {
				return true
			}
		}
	}
	return false
}

// Do invokes fn with exponential backoff until it succeeds, returns a
// non-retryable error, or exhausts cfg.MaxRetries.
func Do(ctx context.Context, cfg Config, logger *slog.Logger, fn func(context.Context) error) error {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	var lastErr error
	delay := cfg.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Debug("upstream call succeeded after retry",
					"attempts", attempt+1,
					"elapsed", time.Since(start),
				)
			}
			return nil
		}

		lastErr = err

		if !Retryable(err) {
			return err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		logger.Debug("retrying upstream call",
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, cfg.MaxInterval)
		}
	}

	return fmt.Errorf("giving up after %d retries (elapsed %v): %w",
		cfg.MaxRetries, time.Since(start), lastErr)
}
