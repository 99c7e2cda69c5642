package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

var (
	// ErrTransient marks failures worth retrying: rate limits, timeouts,
	// transient network and 5xx gateway errors.
	ErrTransient = errors.New("aiworkflows: transient provider error")

	// ErrFatal marks failures that will not succeed on retry, such as
	// rejected credentials.
	ErrFatal = errors.New("aiworkflows: fatal provider error")

	// ErrInvalidJSON is returned when a response cannot be parsed or
	// validated as the expected JSON object.
	ErrInvalidJSON = errors.New("aiworkflows: JSON validation failed")

	// ErrConfig is returned for missing or inconsistent configuration.
	ErrConfig = errors.New("aiworkflows: configuration error")
)

// ProviderError is an error returned by a provider call. It unwraps to
// ErrTransient or ErrFatal so callers can classify it with errors.Is.
type ProviderError struct {
	Provider   string
	StatusCode int           // 0 for network failures
	RetryAfter time.Duration // from the Retry-After header, if any
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: HTTP %d: %v", e.Provider, e.StatusCode, e.Err)
}

// Unwrap exposes both the classification sentinel and the cause.
func (e *ProviderError) Unwrap() []error {
	return []error{e.kind(), e.Err}
}

// Transient reports whether the failure is worth retrying.
func (e *ProviderError) Transient() bool {
	return e.kind() == ErrTransient
}

func (e *ProviderError) kind() error {
	switch {
	case e.StatusCode == 0:
		return ErrTransient
	case retryableStatusCode(e.StatusCode):
		return ErrTransient
	default:
		return ErrFatal
	}
}

// retryableStatusCode returns true for HTTP status codes that warrant a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusRequestTimeout ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable ||
		code == http.StatusGatewayTimeout
}

// parseRetryAfter reads a Retry-After header given in seconds or as an
// HTTP date. It returns 0 when absent or unparseable.
func parseRetryAfter(h http.Header) time.Duration {
	ra := h.Get("Retry-After")
	if ra == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(ra); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
