package llm

import (
	"context"
	"errors"
	"strings"
)

// retryablePatterns identify transient provider failures worth retrying.
// Anything else (bad request, auth, billing) fails immediately.
var retryablePatterns = []string{
	"timeout",
	"deadline exceeded",
	"rate limit",
	"too many requests",
	"429",
	"503",
	"overloaded",
	"temporarily unavailable",
	"connection reset",
	"connection refused",
}

// isRetryable reports whether a generation error is transient. A canceled
// context is never retried; an expired request deadline is, and the retry
// loop's own context check stops it when the caller's context is done.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
