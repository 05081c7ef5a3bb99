package core

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNoRefreshToken   = errors.New("no refresh token available")
	ErrNoProject        = errors.New("no current project")
)

// ValidationError reports bad user input such as a blank name or a duplicate artist.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports an operation that referenced a missing id or name.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

// IndexError reports a positional argument outside the valid range.
type IndexError struct {
	Kind  string
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("%s index %d out of range [0,%d)", e.Kind, e.Index, e.Len)
}

// ExternalServiceError is a non-2xx answer from the streaming API.
type ExternalServiceError struct {
	Op         string
	Status     int
	RetryAfter time.Duration
	Message    string
}

func (e *ExternalServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: spotify API error: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: spotify API error: status %d: %s", e.Op, e.Status, e.Message)
}

// AuthExpiredError is a 401 from the streaming API.
type AuthExpiredError struct {
	ExternalServiceError
}

func (e *AuthExpiredError) Error() string {
	return "access token expired: " + e.ExternalServiceError.Error()
}

func (e *AuthExpiredError) Unwrap() error {
	return &e.ExternalServiceError
}

// RateLimitedError is a 429 from the streaming API.
type RateLimitedError struct {
	ExternalServiceError
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited (retry after %s): %s", e.RetryAfter, e.ExternalServiceError.Error())
}

func (e *RateLimitedError) Unwrap() error {
	return &e.ExternalServiceError
}

// StatusError classifies a failed response into the matching typed error.
func StatusError(op string, status int, retryAfter time.Duration, message string) error {
	base := ExternalServiceError{Op: op, Status: status, RetryAfter: retryAfter, Message: message}
	switch status {
	case 401:
		return &AuthExpiredError{base}
	case 429:
		return &RateLimitedError{base}
	default:
		return &base
	}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err carries a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
