package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ProviderError wraps a failure from an upstream service (LLM, Notion).
// Timeouts, retryable HTTP statuses, and responses that arrived but could
// not be parsed as requested all count as transient: the caller retries
// within its budget or degrades to a fallback path instead of surfacing the
// raw error.
type ProviderError struct {
	Service    string
	Err        error
	StatusCode int
	Malformed  bool
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Service, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError wraps an upstream failure with an optional HTTP status.
func NewProviderError(service string, err error, statusCode int) *ProviderError {
	return &ProviderError{Service: service, Err: err, StatusCode: statusCode}
}

// NewMalformedResponse marks a response that arrived but could not be
// parsed into the requested shape.
func NewMalformedResponse(service string, err error) *ProviderError {
	return &ProviderError{Service: service, Err: err, Malformed: true}
}

// IsTransient reports whether the error is safe to retry: a malformed or
// retryable-status ProviderError, a network timeout, a connection-level
// failure, or a message matching common transport failure patterns.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		if pe.Malformed {
			return true
		}
		if pe.StatusCode > 0 {
			return IsTransientHTTPStatus(pe.StatusCode)
		}
		// Status unknown: classify by the wrapped error below.
		err = pe.Err
		if err == nil {
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// transientPatterns matches wrapped transport errors from HTTP clients that
// lost their type along the way.
var transientPatterns = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"no such host",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
	"transport connection broken",
	"overloaded",
}

// IsTransientHTTPStatus reports whether an HTTP status indicates a
// server-side condition that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504, // Gateway Timeout
		529: // Anthropic overloaded
		return true
	default:
		return false
	}
}

// IsMalformed reports whether the error chain carries a malformed-response
// marker. The failure analyzer uses this to pick its deterministic fallback
// instead of re-asking the provider.
func IsMalformed(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Malformed
}
