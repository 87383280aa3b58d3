package llm

import (
	"errors"
	"fmt"
)

// ErrorKind buckets provider failures into the engine's taxonomy.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindRateLimited ErrorKind = "rate_limited"
	KindMalformed   ErrorKind = "malformed_response"
	KindProvider    ErrorKind = "provider_error"
)

// ProviderError is returned for any failed provider call. Kind drives the
// retry decision for queue jobs; StatusCode is zero when the failure never
// reached an HTTP response.
type ProviderError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm: %s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("llm: %s: %s", e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether retrying the same call later can succeed:
// timeouts, rate limits and provider 5xx responses are transient;
// malformed output and 4xx rejections are not.
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindRateLimited:
		return true
	case KindProvider:
		return e.StatusCode == 0 || e.StatusCode >= 500
	}
	return false
}

// Retryable reports whether err is a transient provider failure.
func Retryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return false
}

// IsRateLimited reports whether err is a provider rate-limit response.
func IsRateLimited(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == KindRateLimited
}
