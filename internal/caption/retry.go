package caption

import (
	"context"
	"time"

	"github.com/coursemedia/captionburn/internal/metrics"
	"github.com/coursemedia/captionburn/pkg/models"
)

// BackoffFunc maps a 1-based attempt number to the delay before the next
// attempt.
type BackoffFunc func(attempt int) time.Duration

// ExponentialBackoff doubles the base delay per attempt (base, 2*base, ...).
func ExponentialBackoff(base time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		return base * time.Duration(1<<(attempt-1))
	}
}

// withRetry runs op up to maxAttempts times, sleeping backoff(attempt)
// between failures. The last error is returned when every attempt fails;
// context cancellation aborts the wait.
func withRetry[T any](ctx context.Context, maxAttempts int, backoff BackoffFunc, onFailure func(attempt int, err error), op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if onFailure != nil {
			onFailure(attempt, err)
		}

		if attempt < maxAttempts {
			select {
			case <-time.After(backoff(attempt)):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}
	}

	return zero, lastErr
}

// GenerateWithRetry calls Generate up to maxRetries times with exponential
// backoff (1s, 2s, 4s, ...). The last error is returned when every attempt
// fails. Switching to the fallback model is not this function's concern;
// callers layer that on top per segment.
func (c *Client) GenerateWithRetry(ctx context.Context, videoBase64 string, opts RequestOptions) ([]models.Caption, error) {
	return withRetry(ctx, c.maxRetries, ExponentialBackoff(time.Second),
		func(attempt int, err error) {
			c.logger.Warn().
				Err(err).
				Int("attempt", attempt).
				Int("max_retries", c.maxRetries).
				Msg("Captioning attempt failed")
			if attempt < c.maxRetries {
				metrics.ModelRetriesTotal.Inc()
			}
		},
		func(ctx context.Context) ([]models.Caption, error) {
			return c.Generate(ctx, videoBase64, opts)
		})
}
