// Package ratelimit tracks the IS24 rate limit signal and optionally paces
// outgoing requests on the client side.
//
// The offer API answers HTTP 503 when a consumer exceeds its request quota.
// The tracker records those responses (and a Retry-After hint, if the service
// sends one) so callers can decide when to try again. It never retries or
// delays a request on its own; only the optional pacer blocks.
package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// State represents the rate limit state observed by a Tracker.
type State struct {
	// LimitedCount is the number of 503 responses seen since the tracker was created.
	LimitedCount int `json:"limited_count"`

	// LastLimitedAt is when the most recent 503 response was recorded.
	LastLimitedAt time.Time `json:"last_limited_at"`

	// RetryAfter is the delay announced by the most recent 503 response.
	// Zero when the service did not send a Retry-After header.
	RetryAfter time.Duration `json:"retry_after"`
}

// ResumeAt returns the earliest time the service suggested to resume.
// Returns the zero time if no Retry-After hint was recorded.
func (s State) ResumeAt() time.Time {
	if s.LastLimitedAt.IsZero() || s.RetryAfter <= 0 {
		return time.Time{}
	}
	return s.LastLimitedAt.Add(s.RetryAfter)
}

// IsLimited reports whether now falls before the announced resume time.
func (s State) IsLimited(now time.Time) bool {
	resume := s.ResumeAt()
	return !resume.IsZero() && now.Before(resume)
}

// TimeUntilResume returns the duration until the announced resume time.
// Returns 0 if no hint was recorded or the time has already passed.
func (s State) TimeUntilResume(now time.Time) time.Duration {
	resume := s.ResumeAt()
	if resume.IsZero() {
		return 0
	}
	d := resume.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// parseRetryAfter parses a Retry-After header value, either delay-seconds
// or an HTTP-date relative to now.
func parseRetryAfter(headers http.Header, now time.Time) time.Duration {
	value := strings.TrimSpace(headers.Get("Retry-After"))
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}

	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
