// Package retry runs an operation again, with exponential backoff, while it
// fails with an error the caller considers transient.
//
// docteur uses it when spawning the target: exec can fail with ETXTBSY while
// a freshly built entry binary is still held open for writing.
//
//	err := retry.Do(ctx, retry.Config{MaxRetries: 5, InitialBackoff: 10 * time.Millisecond}, func() error {
//	    return cmd.Start()
//	}, func(err error) bool {
//	    return errors.Is(err, syscall.ETXTBSY)
//	})
package retry

import (
	"context"
	"fmt"
	"time"
)

// Config defines the retry behavior.
type Config struct {
	// MaxRetries is the maximum number of attempts. Values below 1 mean one.
	MaxRetries int

	// InitialBackoff is the wait before the second attempt. It doubles for
	// each following attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps a single wait. Zero means no cap.
	MaxBackoff time.Duration

	// Jitter in [0, 1] stretches each wait by up to that fraction, growing
	// linearly with the attempt number.
	Jitter float64
}

// ShouldRetryFunc reports whether err is transient. A nil func retries every
// error.
type ShouldRetryFunc func(error) bool

// Do calls fn until it succeeds, returns a non-retryable error, the attempts
// run out or ctx is done.
func Do(ctx context.Context, cfg Config, fn func() error, shouldRetry ShouldRetryFunc) error {
	attempts := max(cfg.MaxRetries, 1)

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(Backoff(cfg, attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if shouldRetry != nil && !shouldRetry(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

// Backoff returns the wait before retry number attempt (1-based).
func Backoff(cfg Config, attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	backoff := cfg.InitialBackoff << (attempt - 1)
	if backoff < 0 || (cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff) {
		backoff = cfg.MaxBackoff
	}
	if cfg.Jitter > 0 && cfg.MaxRetries > 0 {
		backoff += time.Duration(float64(backoff) * cfg.Jitter * float64(attempt) / float64(cfg.MaxRetries))
	}
	return backoff
}
