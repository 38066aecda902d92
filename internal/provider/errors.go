package provider

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies provider failures into a small set of categories.
type ErrorKind string

const (
	// KindAuth indicates authentication or authorization failures.
	KindAuth ErrorKind = "auth"
	// KindInvalidRequest indicates the request itself is wrong; retrying it
	// unchanged will not succeed.
	KindInvalidRequest ErrorKind = "invalid_request"
	// KindRateLimited indicates the backend is throttling requests.
	KindRateLimited ErrorKind = "rate_limited"
	// KindUnavailable indicates a transient failure (5xx, network).
	KindUnavailable ErrorKind = "unavailable"
	// KindUnknown indicates an unclassified failure.
	KindUnknown ErrorKind = "unknown"
)

// ProviderError describes a failure returned by a model backend.
type ProviderError struct {
	provider   string
	operation  string
	httpStatus int
	kind       ErrorKind
	message    string
	cause      error
}

// NewProviderError constructs a ProviderError. An empty kind is derived from
// httpStatus.
func NewProviderError(provider, operation string, httpStatus int, kind ErrorKind, message string, cause error) *ProviderError {
	if kind == "" {
		kind = KindForStatus(httpStatus)
	}
	return &ProviderError{
		provider:   provider,
		operation:  operation,
		httpStatus: httpStatus,
		kind:       kind,
		message:    message,
		cause:      cause,
	}
}

// Provider returns the backend identifier.
func (e *ProviderError) Provider() string { return e.provider }

// Operation returns the backend operation name when known.
func (e *ProviderError) Operation() string { return e.operation }

// HTTPStatus returns the HTTP status code when available, otherwise 0.
func (e *ProviderError) HTTPStatus() int { return e.httpStatus }

// Kind returns the coarse classification.
func (e *ProviderError) Kind() ErrorKind { return e.kind }

// Message returns the backend message.
func (e *ProviderError) Message() string {
	if e.message == "" && e.cause != nil {
		return e.cause.Error()
	}
	return e.message
}

// Retryable reports whether retrying the same request may succeed.
func (e *ProviderError) Retryable() bool {
	return e.kind == KindRateLimited || e.kind == KindUnavailable
}

func (e *ProviderError) Error() string {
	op := e.operation
	if op == "" {
		op = "request"
	}
	status := ""
	if e.httpStatus > 0 {
		status = fmt.Sprintf("%d ", e.httpStatus)
	}
	msg := e.Message()
	if msg == "" {
		msg = "provider error"
	}
	return fmt.Sprintf("%s %s %s(%s): %s", e.provider, e.kind, status, op, msg)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error { return e.cause }

// AsProviderError returns the first ProviderError in err's chain, if any.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// KindForStatus maps an HTTP status code to an ErrorKind.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusRequestTimeout || status >= 500:
		return KindUnavailable
	case status >= 400:
		return KindInvalidRequest
	default:
		return KindUnknown
	}
}
