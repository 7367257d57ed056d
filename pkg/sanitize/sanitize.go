// Copyright 2025 Author(s) of Mane
// SPDX-License-Identifier: Apache-2.0

// Package sanitize hardens untrusted input before it reaches the registry or
// any tool. It validates endpoint strings and neutralizes hostile content in
// parameter strings, maps, and arrays.
package sanitize

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxEndpointLength is the longest accepted endpoint string.
	MaxEndpointLength = 1000
	// MaxStringLength is the truncation limit for sanitized strings.
	MaxStringLength = 10000
)

var (
	endpointPattern = regexp.MustCompile(`^/[A-Za-z0-9_\-/]*$`)

	scriptBlockPattern = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	scriptTagPattern   = regexp.MustCompile(`(?i)</?script\b[^>]*>`)
	jsSchemePattern    = regexp.MustCompile(`(?i)javascript:`)
	eventAttrPattern   = regexp.MustCompile(`(?i)\bon\w+\s*=`)
	sqlKeywordPattern  = regexp.MustCompile(`(?i)\b(?:SELECT|INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|EXEC|UNION)\b`)

	// keys that would poison object prototypes on the extension side.
	pollutionKeys = map[string]struct{}{
		"__proto__":   {},
		"constructor": {},
		"prototype":   {},
	}

	keyCharPattern = regexp.MustCompile(`[^A-Za-z0-9_\-]`)
)

// ValidateEndpoint checks an endpoint string against the hardening rules. It
// is applied both at tool registration and on every route call.
//
// Parameters:
//   - endpoint: The endpoint string to validate.
//
// Returns:
//   - nil if the endpoint is acceptable, otherwise an error naming the rule
//     that rejected it.
func ValidateEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("endpoint must not be empty")
	}
	if !strings.HasPrefix(endpoint, "/") {
		return fmt.Errorf("endpoint must start with '/'")
	}
	if len(endpoint) > MaxEndpointLength {
		return fmt.Errorf("endpoint exceeds %d characters", MaxEndpointLength)
	}
	if strings.Contains(endpoint, "..") {
		return fmt.Errorf("endpoint must not contain '..'")
	}
	if strings.Contains(endpoint, "//") {
		return fmt.Errorf("endpoint must not contain '//'")
	}
	lowered := strings.ToLower(endpoint)
	if strings.Contains(lowered, "<script") {
		return fmt.Errorf("endpoint must not contain script tags")
	}
	if strings.Contains(lowered, "javascript:") {
		return fmt.Errorf("endpoint must not contain the javascript: scheme")
	}
	for _, r := range endpoint {
		if r <= 0x1f {
			return fmt.Errorf("endpoint must not contain control characters")
		}
	}
	return nil
}

// MatchesEndpointPattern reports whether the endpoint body matches the strict
// registration pattern ^/[A-Za-z0-9_\-/]*$.
//
// Parameters:
//   - endpoint: The endpoint string to test.
//
// Returns:
//   - true if the endpoint matches the pattern.
func MatchesEndpointPattern(endpoint string) bool {
	return endpointPattern.MatchString(endpoint)
}

// CleanString sanitizes a single untrusted string: control characters are
// dropped, script blocks, the javascript: scheme, inline event handlers, and
// SQL keywords are stripped, surrounding whitespace is trimmed, and the result
// is truncated to MaxStringLength. The function is idempotent.
//
// Parameters:
//   - s: The untrusted string.
//
// Returns:
//   - The sanitized string. May be empty.
func CleanString(s string) string {
	s = dropControlChars(s)
	s = stripPatterns(s)
	s = strings.TrimSpace(s)
	if len(s) > MaxStringLength {
		// Back the cut off to a rune boundary; slicing mid-rune would leave
		// an invalid UTF-8 tail and break idempotence.
		cut := MaxStringLength
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = strings.TrimSpace(s[:cut])
	}
	return s
}

// dropControlChars removes NUL and the ASCII control range except tab, LF and CR.
func dropControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == 0x09 || r == 0x0a || r == 0x0d:
			return r
		case r <= 0x1f || r == 0x7f:
			return -1
		default:
			return r
		}
	}, s)
}

// stripPatterns removes the banned patterns until none remain. Repeating the
// replacement closes the splice gap: removing one occurrence can join two
// fragments into a fresh match.
func stripPatterns(s string) string {
	for {
		next := scriptBlockPattern.ReplaceAllString(s, "")
		next = scriptTagPattern.ReplaceAllString(next, "")
		next = jsSchemePattern.ReplaceAllString(next, "")
		next = eventAttrPattern.ReplaceAllString(next, "")
		next = sqlKeywordPattern.ReplaceAllString(next, "")
		if next == s {
			return next
		}
		s = next
	}
}

// CleanKey sanitizes a map key: after CleanString, any character outside
// [A-Za-z0-9_-] is removed.
//
// Parameters:
//   - key: The untrusted map key.
//
// Returns:
//   - The sanitized key. May be empty, in which case the caller drops the pair.
func CleanKey(key string) string {
	return keyCharPattern.ReplaceAllString(CleanString(key), "")
}

// CleanValue recursively sanitizes an untrusted value decoded from JSON or a
// form body. Strings go through CleanString (an empty result becomes nil),
// maps and arrays descend recursively, and all other scalars pass through
// untouched. Map keys in the prototype-pollution set are dropped, as are pairs
// whose key sanitizes to the empty string.
//
// Parameters:
//   - value: The value to sanitize.
//
// Returns:
//   - The sanitized value.
func CleanValue(value any) any {
	switch v := value.(type) {
	case string:
		cleaned := CleanString(v)
		if cleaned == "" {
			return nil
		}
		return cleaned
	case map[string]any:
		return CleanParams(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = CleanValue(item)
		}
		return out
	default:
		return value
	}
}

// CleanParams sanitizes a parameter map per CleanValue. It always returns a
// fresh map; the input is not modified.
//
// Parameters:
//   - params: The untrusted parameter map.
//
// Returns:
//   - The sanitized copy. Nil input yields nil.
func CleanParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for key, value := range params {
		if _, polluted := pollutionKeys[key]; polluted {
			continue
		}
		cleanedKey := CleanKey(key)
		if cleanedKey == "" {
			continue
		}
		out[cleanedKey] = CleanValue(value)
	}
	return out
}
