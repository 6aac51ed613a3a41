// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Storage errors.
	ErrNotFound            = errors.New("not found")
	ErrDuplicateEntry      = errors.New("duplicate entry")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrLocationUnavailable = errors.New("storage location unavailable")
	ErrWriteFailed         = errors.New("write failed")

	// Migration errors.
	ErrInvalidState = errors.New("invalid migration state")
	ErrRunFailed    = errors.New("migration run could not start")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsRetryable determines if an error should trigger a retry.
// Permission errors are never retryable: the location stays closed no matter
// how often it is asked.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrPermissionDenied) {
		return false
	}

	if errors.Is(err, ErrRateLimit) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}

// IsLocationError reports whether err means a storage location could not be
// reached at all, as opposed to a per-record failure.
func IsLocationError(err error) bool {
	return errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrLocationUnavailable)
}
