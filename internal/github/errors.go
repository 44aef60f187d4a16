package github

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnauthorized is returned when GitHub rejects the token (HTTP 401).
var ErrUnauthorized = errors.New("unauthorized: invalid or expired token")

// ErrForbidden is a 403 that is not throttling: a missing scope or a
// resource the token cannot reach. It is never retried.
var ErrForbidden = errors.New("forbidden")

// GraphQLError carries the messages of a GraphQL "errors" array.
type GraphQLError struct {
	Messages []string
	Types    []string
}

func (e *GraphQLError) Error() string {
	return "GraphQL errors: " + strings.Join(e.Messages, "; ")
}

// RateLimitError reports a primary or secondary rate limit.
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded: %s (retry after %v)", e.Message, e.RetryAfter)
	}
	return "rate limit exceeded: " + e.Message
}

// ServerError reports an HTTP 5xx response.
type ServerError struct {
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: status %d: %s", e.StatusCode, e.Body)
}

// APIError reports any other non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %s (status %d)", e.Body, e.StatusCode)
}

// TransportError wraps a failure to reach the API or read its response.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "request failed: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is worth another attempt: rate limits,
// 5xx responses and transport failures.
func IsRetryable(err error) bool {
	var rl *RateLimitError
	var se *ServerError
	var te *TransportError
	return errors.As(err, &rl) || errors.As(err, &se) || errors.As(err, &te)
}

func isRateLimitMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "rate limit") || strings.Contains(lower, "secondary rate")
}
