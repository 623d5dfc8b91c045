// Cadenza - Music Publishing Usage Matching Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadenza

package event

import (
	"errors"
	"strings"
)

// ErrorCategory categorizes failures for DLQ routing and metrics.
type ErrorCategory int

const (
	// ErrorCategoryUnknown is the default category for unclassified errors.
	ErrorCategoryUnknown ErrorCategory = iota
	// ErrorCategoryConnection indicates network or connection failures.
	ErrorCategoryConnection
	// ErrorCategoryTimeout indicates operation timeout.
	ErrorCategoryTimeout
	// ErrorCategoryValidation indicates data validation failures.
	ErrorCategoryValidation
	// ErrorCategoryDatabase indicates database operation failures.
	ErrorCategoryDatabase
	// ErrorCategoryProvider indicates embedding provider failures.
	ErrorCategoryProvider
)

// String returns the string representation of the error category.
func (c ErrorCategory) String() string {
	switch c {
	case ErrorCategoryConnection:
		return "connection"
	case ErrorCategoryTimeout:
		return "timeout"
	case ErrorCategoryValidation:
		return "validation"
	case ErrorCategoryDatabase:
		return "database"
	case ErrorCategoryProvider:
		return "provider"
	default:
		return "unknown"
	}
}

// RetryableError is a transient failure; the caller may retry with backoff.
type RetryableError struct {
	Message  string
	Cause    error
	Category ErrorCategory
}

// NewRetryableError creates a retryable error, categorizing it from the message.
func NewRetryableError(message string, cause error) *RetryableError {
	return &RetryableError{
		Message:  message,
		Cause:    cause,
		Category: categorize(message),
	}
}

func (e *RetryableError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *RetryableError) Unwrap() error {
	return e.Cause
}

// PermanentError is an unrecoverable failure; the message must be
// dead-lettered instead of retried.
type PermanentError struct {
	Message  string
	Cause    error
	Category ErrorCategory
}

// NewPermanentError creates a permanent error, categorizing it from the message.
func NewPermanentError(message string, cause error) *PermanentError {
	category := categorize(message)
	if category == ErrorCategoryUnknown {
		category = ErrorCategoryValidation
	}
	return &PermanentError{
		Message:  message,
		Cause:    cause,
		Category: category,
	}
}

func (e *PermanentError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *PermanentError) Unwrap() error {
	return e.Cause
}

// categorize guesses an error category from the message text.
func categorize(message string) ErrorCategory {
	m := strings.ToLower(message)
	switch {
	case containsAny(m, "connection", "connect", "refused", "reset", "broken pipe"):
		return ErrorCategoryConnection
	case containsAny(m, "timeout", "deadline", "timed out"):
		return ErrorCategoryTimeout
	case containsAny(m, "invalid", "validation", "malformed", "parse", "decode"):
		return ErrorCategoryValidation
	case containsAny(m, "database", "sql", "query", "constraint", "transaction"):
		return ErrorCategoryDatabase
	case containsAny(m, "embedding", "openai", "rate limit"):
		return ErrorCategoryProvider
	default:
		return ErrorCategoryUnknown
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// IsRetryable reports whether the error (or any wrapped cause) is retryable.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// IsPermanent reports whether the error (or any wrapped cause) is permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
