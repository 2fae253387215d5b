package pipeline

import (
	"errors"
	"math/rand/v2"
	"time"

	"github.com/dgallion1/altgest/internal/extract"
)

// MaxRetries bounds generation attempts per tag.
const MaxRetries = 3

const maxBackoff = 30 * time.Second

// IsRetryable reports whether err is a transient generation failure.
func IsRetryable(err error) bool {
	var retryErr *extract.RetryableError
	return errors.As(err, &retryErr)
}

// Backoff returns the wait before retry n (0-indexed): one second doubling
// per attempt, plus up to 50% jitter, never above maxBackoff.
func Backoff(attempt int) time.Duration {
	base := maxBackoff
	if attempt < 5 {
		base = time.Second << uint(attempt)
	}
	jitter := time.Duration(rand.Int64N(int64(base)/2 + 1))
	return min(base+jitter, maxBackoff)
}

// retryDelay honours a delay requested by the API before falling back to
// backoff.
func retryDelay(err error, attempt int, backoff func(int) time.Duration) time.Duration {
	var retryErr *extract.RetryableError
	if errors.As(err, &retryErr) && retryErr.RetryAfter > 0 {
		return min(retryErr.RetryAfter, maxBackoff)
	}
	return backoff(attempt)
}
