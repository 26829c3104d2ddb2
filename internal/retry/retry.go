// Package retry implements the router's exponential backoff policy and
// retryability classification for upstream agent calls.
package retry

import (
	"strings"
	"time"
)

// Config controls retry attempt count and backoff timing.
type Config struct {
	MaxAttempts int
	BaseDelayMs int
	MaxDelayMs  int
}

// DefaultConfig returns the router's standard retry policy.
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, BaseDelayMs: 500, MaxDelayMs: 5000}
}

// DelayMs returns the backoff delay, in milliseconds, before the given
// 0-indexed attempt. Attempt 0 always waits 0ms.
func (c Config) DelayMs(attempt int) int {
	if attempt <= 0 {
		return 0
	}
	delay := c.BaseDelayMs * (1 << uint(attempt-1))
	if delay > c.MaxDelayMs {
		return c.MaxDelayMs
	}
	return delay
}

// Delay is DelayMs converted to a time.Duration.
func (c Config) Delay(attempt int) time.Duration {
	return time.Duration(c.DelayMs(attempt)) * time.Millisecond
}

// StatusCoder is implemented by errors that carry an HTTP status code,
// mirroring the original's duck-typed getattr(error, "status_code", None).
type StatusCoder interface {
	StatusCode() int
}

var retryableTerms = []string{
	"timeout",
	"timed out",
	"connection",
	"connect",
	"unavailable",
	"network",
}

// IsRetryable classifies err as retryable or not, following (in order):
// substring matching against known transient-error terms, then HTTP status
// code rules when err exposes one via StatusCoder. Ambiguous cases default
// to non-retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())

	for _, term := range retryableTerms {
		if strings.Contains(s, term) {
			return true
		}
	}
	if strings.Contains(s, "429") {
		return true
	}
	for _, code := range []string{"500", "502", "503", "504"} {
		if strings.Contains(s, code) {
			return true
		}
	}

	if sc, ok := err.(StatusCoder); ok {
		status := sc.StatusCode()
		if status == 429 || (status >= 500 && status < 600) {
			return true
		}
		if status >= 400 && status < 500 {
			return false
		}
	}

	return false
}
