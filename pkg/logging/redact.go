// Copyright 2025 Author(s) of Mane
// SPDX-License-Identifier: Apache-2.0

package logging

import "strings"

const redactedPlaceholder = "[REDACTED]"

// sensitiveKeyMarkers are matched as substrings of lowercased parameter keys.
// Any match replaces the value with redactedPlaceholder before logging.
var sensitiveKeyMarkers = []string{
	"password",
	"token",
	"secret",
	"key",
	"auth",
	"credential",
}

// IsSensitiveKey reports whether a parameter key names a secret and must not
// be logged verbatim.
//
// Parameters:
//   - key: The parameter key to inspect.
//
// Returns:
//   - true if the lowercased key contains any sensitive marker.
func IsSensitiveKey(key string) bool {
	lowered := strings.ToLower(key)
	for _, marker := range sensitiveKeyMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// RedactParams returns a copy of a parameter map with the values of sensitive
// keys replaced by "[REDACTED]". Nested maps and slices are redacted
// recursively. The input map is never modified; callers pass the redacted copy
// to the logger and the original to the tool.
//
// Parameters:
//   - params: The parameter map about to be logged.
//
// Returns:
//   - A redacted copy safe for logging. Nil input yields nil.
func RedactParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	redacted := make(map[string]any, len(params))
	for key, value := range params {
		if IsSensitiveKey(key) {
			redacted[key] = redactedPlaceholder
			continue
		}
		redacted[key] = redactValue(value)
	}
	return redacted
}

func redactValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return RedactParams(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = redactValue(item)
		}
		return out
	default:
		return value
	}
}
