package agent

import (
	"strings"
	"time"
)

// RetryConfig configures the retry behavior for model calls.
type RetryConfig struct {
	MaxRetries      int           // Maximum number of retry attempts
	InitialInterval time.Duration // Initial backoff interval
	MaxInterval     time.Duration // Maximum backoff interval
}

// DefaultRetryConfig returns sensible defaults for the Gemini API.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// retryableError determines if an error should trigger a retry.
func retryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()

	// Rate limit errors - always retry
	if containsAny(errStr, "rate limit", "quota exceeded", "429") {
		return true
	}

	// Transient server errors - retry
	if containsAny(errStr, "500", "502", "503", "504", "unavailable") {
		return true
	}

	// Network errors - retry
	if containsAny(errStr, "connection reset", "timeout", "temporary") {
		return true
	}

	return false
}

// containsAny checks if s contains any of the substrings (case-insensitive).
func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}
