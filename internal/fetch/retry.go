package fetch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"
)

// RetryError reports a fetch that failed even after retries.
type RetryError struct {
	URL      string
	Attempts int
	Last     error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Last)
}

func (e *RetryError) Unwrap() error { return e.Last }

// retryableStatus lists the responses worth retrying: rate limiting and
// the transient 5xx family. 505 and up are protocol errors a retry cannot
// fix.
func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests ||
		(status >= http.StatusInternalServerError && status <= http.StatusGatewayTimeout)
}

// isRetryable classifies an error from one attempt. Anything that never
// produced a status line (dial failure, reset, truncated body) counts as
// transient; cancellation never retries.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return retryableStatus(statusErr.StatusCode)
	}
	return true
}

// backoff computes the delay before the next retry: exponential from the
// initial backoff with 0-25% jitter, capped at the maximum. Rate-limited
// responses honor Retry-After when the server sends one and otherwise back
// off on a steeper curve.
func (c *Client) backoff(attempt int, err error) time.Duration {
	base := 2.0
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests {
		if secs, convErr := strconv.Atoi(statusErr.RetryAfter); convErr == nil && secs > 0 {
			return time.Duration(secs)*time.Second + rand.N(time.Second)
		}
		base = 3.0
	}

	delay := math.Min(
		float64(c.initialBackoff)*math.Pow(base, float64(attempt)),
		float64(c.maxBackoff),
	)
	return time.Duration(delay + rand.Float64()*0.25*delay)
}
