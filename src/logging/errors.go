package logging

import (
	"context"
	"errors"
	"strings"
)

// IsRateLimit reports whether err looks like a provider throttling response.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate_limit") || strings.Contains(msg, "429") ||
		strings.Contains(msg, "too many requests")
}

// IsTransient reports whether an RPC error is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if IsRateLimit(err) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "connection reset", "eof", "timeout", "502", "503", "504", "header not found", "unknown block"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
