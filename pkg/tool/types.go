// Copyright 2025 Author(s) of Mane
// SPDX-License-Identifier: Apache-2.0

// Package tool defines the tool contract and the registry that routes
// requests to registered tools.
package tool

import (
	"context"
	"strings"
	"time"
)

// DefaultTimeout applies to tool executions whose capabilities do not set
// timeout_ms.
const DefaultTimeout = 30 * time.Second

// Capabilities describes the boolean/integer attributes of a tool.
type Capabilities struct {
	Async        bool  `json:"async"`
	TimeoutMs    int64 `json:"timeout_ms"`
	Retryable    bool  `json:"retryable"`
	Batchable    bool  `json:"batchable"`
	RequiresAuth bool  `json:"requiresAuth"`
}

// Has reports whether the named boolean capability is set. Used by the
// registry's discovery filter; unknown names report false.
//
// Parameters:
//   - name: The capability name ("async", "retryable", "batchable", "requiresAuth").
//
// Returns:
//   - true if the capability flag is set.
func (c Capabilities) Has(name string) bool {
	switch name {
	case "async":
		return c.Async
	case "retryable":
		return c.Retryable
	case "batchable":
		return c.Batchable
	case "requiresAuth":
		return c.RequiresAuth
	default:
		return false
	}
}

// Timeout returns the execution timeout for the tool, falling back to
// DefaultTimeout when timeout_ms is unset.
func (c Capabilities) Timeout() time.Duration {
	if c.TimeoutMs > 0 {
		return time.Duration(c.TimeoutMs) * time.Millisecond
	}
	return DefaultTimeout
}

// Result is the structured outcome of a tool execution, and of routing
// itself when routing fails.
type Result struct {
	Success   bool           `json:"success"`
	Data      any            `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
	ErrorType ErrorType      `json:"errorType,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewSuccessResult wraps data in a successful Result stamped with the
// current time.
func NewSuccessResult(data any) *Result {
	return &Result{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// NewErrorResult builds a failed Result from a structured Error, preserving
// its details as metadata.
func NewErrorResult(err *Error) *Result {
	r := &Result{
		Success:   false,
		Error:     err.Message,
		ErrorType: err.Type,
		Timestamp: time.Now().UTC(),
	}
	if len(err.Details) > 0 {
		r.Metadata = err.Details
	}
	return r
}

// ValidationResult is returned by a tool's Validate operation.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Status is the health/usage snapshot returned by a tool's Status operation.
type Status struct {
	Healthy          bool      `json:"healthy"`
	LastUsed         time.Time `json:"lastUsed"`
	ExecutionCount   int64     `json:"executionCount"`
	AvgExecutionTime float64   `json:"avgExecutionTime"`
	ErrorRate        float64   `json:"errorRate"`
}

// Tool is the contract every registered tool satisfies. The registry owns a
// Tool once registered and is the sole publisher of its reference.
//
// Summary: Polymorphic capability set {Execute, Validate, Status} plus
// identity and contract metadata.
type Tool interface {
	// Name returns the unique tool name (e.g. "browser_navigate").
	Name() string
	// Endpoint returns the unique routing key. Always begins with "/".
	Endpoint() string
	// Description returns the human-readable description.
	Description() string
	// Schema returns the JSON-Schema-shaped input descriptor.
	Schema() *Schema
	// Capabilities returns the capability attributes.
	Capabilities() Capabilities

	// Execute runs the tool with sanitized parameters.
	//
	// Parameters:
	//   - ctx: The execution context; carries the per-tool timeout.
	//   - params: The sanitized parameter map.
	//
	// Returns:
	//   - *Result: The structured outcome.
	//   - error: A transport-level failure the tool could not shape into a Result.
	Execute(ctx context.Context, params map[string]any) (*Result, error)

	// Validate checks parameters against the tool's contract without
	// executing.
	Validate(params map[string]any) *ValidationResult

	// Status reports the tool's health and usage statistics.
	Status() *Status
}

// Category derives a tool's category from the prefix before the first
// underscore in its name; names without an underscore fall in "general".
//
// Parameters:
//   - name: The tool name.
//
// Returns:
//   - The category string.
func Category(name string) string {
	if idx := strings.Index(name, "_"); idx > 0 {
		return name[:idx]
	}
	return "general"
}
