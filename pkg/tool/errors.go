// Copyright 2025 Author(s) of Mane
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrToolNotFound is returned when a requested tool cannot be found.
var ErrToolNotFound = errors.New("unknown tool")

// ErrorType classifies an error crossing a component boundary.
type ErrorType string

// The error taxonomy. Every error leaving the registry, the MCP handler, or
// the HTTP bridge carries exactly one of these.
const (
	ErrorTypeValidation     ErrorType = "VALIDATION"
	ErrorTypeExecution      ErrorType = "EXECUTION"
	ErrorTypeTimeout        ErrorType = "TIMEOUT"
	ErrorTypeConnection     ErrorType = "CONNECTION"
	ErrorTypeAuthentication ErrorType = "AUTHENTICATION"
	ErrorTypeRateLimit      ErrorType = "RATE_LIMIT"
	ErrorTypeInternal       ErrorType = "INTERNAL"
)

// Recoverable reports whether callers may retry after an error of this type.
// Validation failures are terminal; retrying cannot succeed.
func (t ErrorType) Recoverable() bool {
	switch t {
	case ErrorTypeTimeout, ErrorTypeConnection, ErrorTypeRateLimit:
		return true
	default:
		return false
	}
}

// Error is the structured error context carried across boundaries.
//
// Summary: Tagged error variant carrying the taxonomy type, a human message,
// and optional machine-readable details.
type Error struct {
	Type        ErrorType      `json:"type"`
	Message     string         `json:"message"`
	Code        int            `json:"code,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Recoverable bool           `json:"recoverable"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return string(e.Type) + ": " + e.Message
}

// NewError builds a structured Error of the given type. Recoverability is
// derived from the type.
//
// Parameters:
//   - errType: The taxonomy type.
//   - message: The human-readable message.
//
// Returns:
//   - A new *Error stamped with the current time.
func NewError(errType ErrorType, message string) *Error {
	return &Error{
		Type:        errType,
		Message:     message,
		Timestamp:   time.Now().UTC(),
		Recoverable: errType.Recoverable(),
	}
}

// WithDetails attaches machine-readable details and returns the same Error
// for chaining.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// NewRetryBackOff returns the retry delay policy for recoverable errors:
// exponential backoff with a 1 s base, a 30 s cap, and ±10 % jitter.
//
// Returns:
//   - A configured *backoff.ExponentialBackOff. Callers invoke NextBackOff
//     once per retry attempt.
func NewRetryBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.RandomizationFactor = 0.1
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
