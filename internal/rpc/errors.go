package rpc

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// RPCError is an application-level JSON-RPC error returned by a node.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

func isRPCError(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr)
}

// HTTPStatusError represents an HTTP-level error (non-2xx status).
type HTTPStatusError struct {
	StatusCode int
	RetryAfter time.Duration
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d: %s (body: %s)", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// IsRetryable returns true if this HTTP error should be retried.
func (e *HTTPStatusError) IsRetryable() bool {
	// 429 Too Many Requests, 502 Bad Gateway, 503 Service Unavailable, 504 Gateway Timeout
	return e.StatusCode == 429 || e.StatusCode == 502 ||
		e.StatusCode == 503 || e.StatusCode == 504
}

func isRetryableHTTPError(err error) bool {
	var httpErr *HTTPStatusError
	if errors.As(err, &httpErr) {
		return httpErr.IsRetryable()
	}
	return false
}

func getRetryDelay(err error, defaultBackoff time.Duration) time.Duration {
	var httpErr *HTTPStatusError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}
	return defaultBackoff
}

// DefaultConflictPatterns are node error message fragments that indicate a
// nonce collision rather than a broken endpoint. Different node
// implementations phrase the same condition differently.
var DefaultConflictPatterns = []string{
	"same nonce already exists",
	"nonce too low",
	"already known",
	"replacement transaction underpriced",
}

// Classifier decides whether a submission error is a nonce conflict.
// Conflicts are safe to retry on another endpoint with the same signed bytes;
// everything else is not.
type Classifier struct {
	patterns []string
}

// NewClassifier creates a classifier matching the given message fragments.
// Matching is case-insensitive. An empty list falls back to
// DefaultConflictPatterns.
func NewClassifier(patterns []string) *Classifier {
	if len(patterns) == 0 {
		patterns = DefaultConflictPatterns
	}
	lowered := make([]string, len(patterns))
	for i, p := range patterns {
		lowered[i] = strings.ToLower(p)
	}
	return &Classifier{patterns: lowered}
}

// IsConflict reports whether err is a nonce-conflict rejection from a node.
// Only application-level RPC errors qualify; transport failures never do.
func (c *Classifier) IsConflict(err error) bool {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	msg := strings.ToLower(rpcErr.Message)
	for _, p := range c.patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
