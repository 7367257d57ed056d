// Copyright 2025 Author(s) of Mane
// SPDX-License-Identifier: Apache-2.0

package httpbridge

import (
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/mane-project/mane/pkg/sanitize"
	"github.com/mane-project/mane/pkg/tool"
)

// allowedContentTypes is the substring allowlist for request bodies. An
// empty Content-Type is also accepted and parsed as JSON.
var allowedContentTypes = []string{
	"application/json",
	"application/x-www-form-urlencoded",
	"text/plain",
	"text/html",
}

// parseBody reads, bounds, and sanitizes the request body. GET requests and
// empty bodies yield nil.
//
// Returns:
//   - The parsed body: a sanitized map for JSON/form, a sanitized string
//     for text types, nil when empty.
//   - A VALIDATION error for oversize bodies, unsupported content types,
//     and malformed JSON.
func parseBody(r *http.Request) (any, *tool.Error) {
	if r.Body == nil || r.Method == http.MethodGet {
		return nil, nil
	}

	contentType := r.Header.Get("Content-Type")
	kind, ok := matchContentType(contentType)
	if !ok {
		return nil, tool.NewError(tool.ErrorTypeValidation, "Unsupported content type: "+contentType)
	}

	limited := io.LimitReader(r.Body, MaxBodySize+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return nil, tool.NewError(tool.ErrorTypeValidation, "failed to read request body")
	}
	if len(raw) > MaxBodySize {
		return nil, tool.NewError(tool.ErrorTypeValidation, "Request body too large")
	}
	if len(raw) == 0 {
		if kind == "application/json" {
			return map[string]any{}, nil
		}
		return nil, nil
	}

	switch kind {
	case "application/json":
		var decoded map[string]any
		if err := fastJSON.Unmarshal(raw, &decoded); err != nil {
			return nil, tool.NewError(tool.ErrorTypeValidation, "invalid JSON body")
		}
		return sanitize.CleanParams(decoded), nil

	case "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(raw))
		if err != nil {
			return nil, tool.NewError(tool.ErrorTypeValidation, "invalid form body")
		}
		params := make(map[string]any, len(values))
		for key, vals := range values {
			if len(vals) == 1 {
				params[key] = vals[0]
				continue
			}
			members := make([]any, len(vals))
			for i, v := range vals {
				members[i] = v
			}
			params[key] = members
		}
		return sanitize.CleanParams(params), nil

	default:
		return sanitize.CleanString(string(raw)), nil
	}
}

// matchContentType resolves a Content-Type header against the allowlist
// using substring matching. An empty header maps to JSON.
func matchContentType(header string) (string, bool) {
	if strings.TrimSpace(header) == "" {
		return "application/json", true
	}
	lower := strings.ToLower(header)
	for _, allowed := range allowedContentTypes {
		if strings.Contains(lower, allowed) {
			return allowed, true
		}
	}
	return "", false
}
