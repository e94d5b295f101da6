package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrRateLimitExceeded is returned when the service answers HTTP 503.
	// The client never retries; the caller decides when to try again.
	ErrRateLimitExceeded = errors.New("is24 rate limit exceeded")

	// ErrInvalidPaging is returned for a page number or page size below 1.
	ErrInvalidPaging = errors.New("invalid paging parameters")

	// ErrInvalidID is returned when a listing element carries no usable @id.
	ErrInvalidID = errors.New("invalid real estate id")

	// ErrMissingDetail is returned when a detail record or its typed payload is absent.
	ErrMissingDetail = errors.New("real estate detail missing")

	// ErrInvalidAttachmentURL is returned when an attachment URL has no filename segment.
	ErrInvalidAttachmentURL = errors.New("invalid attachment url")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassNetwork represents transport failures (DNS, TLS, timeouts, cancellation).
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents a 200 response whose body is not a JSON object.
	ErrorClassDecode ErrorClass = "decode"

	// ErrorClassRateLimit represents HTTP 503 responses. Used as a metrics label;
	// rate limiting itself is reported through ErrRateLimitExceeded.
	ErrorClassRateLimit ErrorClass = "rate_limit"
)

// APIError is returned for any request failure other than rate limiting.
// Body holds the response body of the same request, if one was received.
type APIError struct {
	Resource   string
	StatusCode int
	Class      ErrorClass
	Body       string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := fmt.Sprintf("is24 %s error", e.Class)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Resource != "" {
		msg = fmt.Sprintf("%s on %s", msg, e.Resource)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether err signals an HTTP 503 from the service.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimitExceeded)
}
