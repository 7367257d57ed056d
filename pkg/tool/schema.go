// Copyright 2025 Author(s) of Mane
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"bytes"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

var fastJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Schema is the JSON-Schema-shaped input descriptor a tool publishes as part
// of its contract. It is surfaced verbatim as inputSchema in MCP tools/list.
type Schema struct {
	Type                 string         `json:"type"`
	Properties           map[string]any `json:"properties,omitempty"`
	Required             []string       `json:"required,omitempty"`
	AdditionalProperties *bool          `json:"additionalProperties,omitempty"`
}

// ObjectSchema returns a minimal object schema with the given properties and
// required list. Convenience for plugin authors.
func ObjectSchema(properties map[string]any, required ...string) *Schema {
	return &Schema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}

// Compile validates the schema against the JSON Schema meta-schema and
// returns the compiled form used for parameter validation.
//
// Returns:
//   - The compiled schema.
//   - An error if the descriptor is not a valid JSON Schema.
func (s *Schema) Compile() (*jsonschema.Schema, error) {
	raw, err := fastJSON.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	compiled, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("invalid JSON schema: %w", err)
	}
	return compiled, nil
}

// SchemaValidator validates parameter maps against a compiled tool schema.
// Plugins embed one to implement the Validate operation.
type SchemaValidator struct {
	compiled *jsonschema.Schema
}

// NewSchemaValidator compiles the descriptor into a validator.
//
// Parameters:
//   - s: The schema descriptor. A nil schema yields a validator that accepts
//     everything.
//
// Returns:
//   - The validator.
//   - An error if compilation fails.
func NewSchemaValidator(s *Schema) (*SchemaValidator, error) {
	if s == nil {
		return &SchemaValidator{}, nil
	}
	compiled, err := s.Compile()
	if err != nil {
		return nil, err
	}
	return &SchemaValidator{compiled: compiled}, nil
}

// Validate checks a parameter map against the compiled schema. Parameters are
// round-tripped through JSON first so that native Go ints validate like the
// decoded form the validator expects.
//
// Parameters:
//   - params: The parameter map.
//
// Returns:
//   - The validation result. Never nil.
func (v *SchemaValidator) Validate(params map[string]any) *ValidationResult {
	if v.compiled == nil {
		return &ValidationResult{Valid: true}
	}

	raw, err := fastJSON.Marshal(params)
	if err != nil {
		return &ValidationResult{Valid: false, Errors: []string{fmt.Sprintf("parameters are not JSON-encodable: %v", err)}}
	}
	var decoded any
	if err := fastJSON.Unmarshal(raw, &decoded); err != nil {
		return &ValidationResult{Valid: false, Errors: []string{fmt.Sprintf("failed to decode parameters: %v", err)}}
	}

	if err := v.compiled.Validate(decoded); err != nil {
		result := &ValidationResult{Valid: false}
		var ve *jsonschema.ValidationError
		if ok := asValidationError(err, &ve); ok {
			for _, cause := range flattenCauses(ve) {
				result.Errors = append(result.Errors, cause)
			}
		} else {
			result.Errors = []string{err.Error()}
		}
		return result
	}
	return &ValidationResult{Valid: true}
}

func asValidationError(err error, target **jsonschema.ValidationError) bool {
	ve, ok := err.(*jsonschema.ValidationError)
	if ok {
		*target = ve
	}
	return ok
}

// flattenCauses walks the validation error tree and collects leaf messages.
func flattenCauses(ve *jsonschema.ValidationError) []string {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return []string{fmt.Sprintf("%s: %s", loc, ve.Message)}
	}
	var out []string
	for _, cause := range ve.Causes {
		out = append(out, flattenCauses(cause)...)
	}
	return out
}
