// Copyright 2025 Author(s) of Mane
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"context"
)

// MockTool is a mock implementation of the Tool interface for testing
// purposes. Field values supply the static contract; the Func hooks
// override the dynamic operations.
type MockTool struct {
	NameValue         string
	EndpointValue     string
	DescriptionValue  string
	SchemaValue       *Schema
	CapabilitiesValue Capabilities

	ExecuteFunc  func(ctx context.Context, params map[string]any) (*Result, error)
	ValidateFunc func(params map[string]any) *ValidationResult
	StatusFunc   func() *Status
}

// NewMockTool returns a healthy mock with an accept-all schema, registered
// under /tools/<name>.
func NewMockTool(name string) *MockTool {
	return &MockTool{
		NameValue:        name,
		EndpointValue:    "/tools/" + name,
		DescriptionValue: "Mock tool " + name,
		SchemaValue:      &Schema{Type: "object"},
	}
}

// Name returns the mock's configured name.
func (m *MockTool) Name() string { return m.NameValue }

// Endpoint returns the mock's configured routing key.
func (m *MockTool) Endpoint() string { return m.EndpointValue }

// Description returns the mock's configured description.
func (m *MockTool) Description() string { return m.DescriptionValue }

// Schema returns the mock's configured schema.
func (m *MockTool) Schema() *Schema { return m.SchemaValue }

// Capabilities returns the mock's configured capabilities.
func (m *MockTool) Capabilities() Capabilities { return m.CapabilitiesValue }

// Execute calls the mock ExecuteFunc if set, otherwise echoes the parameters
// back as a successful result.
func (m *MockTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, params)
	}
	return NewSuccessResult(map[string]any{"echo": params}), nil
}

// Validate calls the mock ValidateFunc if set, otherwise accepts everything.
func (m *MockTool) Validate(params map[string]any) *ValidationResult {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(params)
	}
	return &ValidationResult{Valid: true}
}

// Status calls the mock StatusFunc if set, otherwise reports healthy.
func (m *MockTool) Status() *Status {
	if m.StatusFunc != nil {
		return m.StatusFunc()
	}
	return &Status{Healthy: true}
}
