// Copyright 2025 Author(s) of Mane
// SPDX-License-Identifier: Apache-2.0

package sanitize

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEndpoint(t *testing.T) {
	testCases := []struct {
		name     string
		endpoint string
		wantErr  bool
	}{
		{"valid tool endpoint", "/tools/browser_navigate", false},
		{"root", "/", false},
		{"no leading slash", "no-leading-slash", true},
		{"empty", "", true},
		{"path traversal", "/path/../etc", true},
		{"double slash", "/double//slash", true},
		{"leading double slash", "//malicious", true},
		{"script tag", "/x<script>alert(1)</script>", true},
		{"javascript scheme", "/jAvAsCrIpT:alert(1)", true},
		{"control char", "/tools/\x01nav", true},
		{"too long", "/" + strings.Repeat("a", MaxEndpointLength), true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateEndpoint(tc.endpoint)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMatchesEndpointPattern(t *testing.T) {
	assert.True(t, MatchesEndpointPattern("/tools/browser_navigate"))
	assert.True(t, MatchesEndpointPattern("/health"))
	assert.False(t, MatchesEndpointPattern("/invalid chars!"))
	assert.False(t, MatchesEndpointPattern("no-leading-slash"))
	assert.False(t, MatchesEndpointPattern("/path?query=1"))
}

func TestCleanString(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "valid value", "valid value"},
		{"script block", "<script>alert('xss')</script>content", "content"},
		{"javascript scheme", "javascript:alert('test')", "alert('test')"},
		{"event handler", "a onclick=doEvil() b", "a doEvil() b"},
		{"sql keyword", "DROP TABLE users", "TABLE users"},
		{"sql keyword case insensitive", "select * from t", "* from t"},
		{"sql keyword not substring", "selection process", "selection process"},
		{"null bytes", "abc\x00def", "abcdef"},
		{"control chars", "a\x01b\x1fc\x7fd", "abcd"},
		{"keeps newline and tab", "a\tb\nc", "a\tb\nc"},
		{"trims whitespace", "  item2  ", "item2"},
		{"spliced scheme", "javajavascript:script:alert(1)", "alert(1)"},
		{"nested script", "<scr<script>x</script>ipt>alert(1)</script>content", "alert(1)content"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CleanString(tc.input))
		})
	}
}

func TestCleanStringTruncates(t *testing.T) {
	long := strings.Repeat("a", MaxStringLength+500)
	assert.Len(t, CleanString(long), MaxStringLength)
}

func TestCleanStringTruncatesOnRuneBoundary(t *testing.T) {
	// A multi-byte rune straddling the limit must be dropped whole, never
	// split into an invalid UTF-8 tail.
	input := strings.Repeat("a", MaxStringLength-1) + "é"
	got := CleanString(input)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", MaxStringLength-1), got)
}

func TestCleanStringIdempotent(t *testing.T) {
	inputs := []string{
		"<script>alert('xss')</script>content",
		"javascript:javascript:alert(1)",
		"  SELECT UNION DROP  ",
		"plain text with spaces",
		strings.Repeat("<script>x</script>", 2000),
		strings.Repeat("a", MaxStringLength-1) + "é",
		strings.Repeat("漢", MaxStringLength),
	}
	for _, input := range inputs {
		once := CleanString(input)
		assert.Equal(t, once, CleanString(once), "sanitation must be idempotent for %q", input)
	}
}

func TestCleanParams(t *testing.T) {
	input := map[string]any{
		"valid_key":  "valid value",
		"key!@#$%":   "value",
		"script_key": "<script>alert('xss')</script>content",
		"js_key":     "javascript:alert('test')",
		"number_key": 42,
		"bool_key":   true,
		"array_key":  []any{"item1", "  item2  ", "item3"},
	}

	got := CleanParams(input)

	want := map[string]any{
		"valid_key":  "valid value",
		"key":        "value",
		"script_key": "content",
		"js_key":     "alert('test')",
		"number_key": 42,
		"bool_key":   true,
		"array_key":  []any{"item1", "item2", "item3"},
	}
	assert.Equal(t, want, got)
}

func TestCleanParamsDropsPollutionKeys(t *testing.T) {
	got := CleanParams(map[string]any{
		"__proto__":   map[string]any{"polluted": true},
		"constructor": "x",
		"prototype":   "y",
		"ok":          "z",
	})
	require.Len(t, got, 1)
	assert.Equal(t, "z", got["ok"])
}

func TestCleanParamsEmptyValueBecomesNil(t *testing.T) {
	got := CleanParams(map[string]any{"emptied": "<script>x</script>"})
	v, present := got["emptied"]
	require.True(t, present)
	assert.Nil(t, v)
}

func TestCleanParamsNested(t *testing.T) {
	got := CleanParams(map[string]any{
		"outer": map[string]any{
			"inner": "javascript:alert(1)",
		},
	})
	inner, ok := got["outer"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "alert(1)", inner["inner"])
}

func TestCleanParamsNil(t *testing.T) {
	assert.Nil(t, CleanParams(nil))
}
