// Copyright 2025 Author(s) of Mane
// SPDX-License-Identifier: Apache-2.0

package browser

import (
	"github.com/mane-project/mane/pkg/tool"
)

// New builds the built-in browser tool set over one relay. The tools stay
// registered even when the relay URL is unset; they report unhealthy until
// the extension connects.
//
// Parameters:
//   - relay: The extension relay.
//
// Returns:
//   - The tool set, ready for registration.
//   - An error if a tool schema fails to compile.
func New(relay *Relay) ([]tool.Tool, error) {
	specs := []struct {
		name        string
		description string
		schema      *tool.Schema
		caps        tool.Capabilities
	}{
		{
			name:        "browser_navigate",
			description: "Navigate the active browser tab to a URL and wait for the page to settle",
			schema: tool.ObjectSchema(map[string]any{
				"url":       map[string]any{"type": "string", "description": "Destination URL"},
				"waitUntil": map[string]any{"type": "string", "enum": []any{"load", "domcontentloaded", "networkidle"}},
			}, "url"),
			caps: tool.Capabilities{TimeoutMs: 30000, Retryable: true},
		},
		{
			name:        "browser_screenshot",
			description: "Capture a PNG screenshot of the active tab or a specific element",
			schema: tool.ObjectSchema(map[string]any{
				"fullPage": map[string]any{"type": "boolean"},
				"selector": map[string]any{"type": "string", "description": "CSS selector limiting the capture"},
			}),
			caps: tool.Capabilities{TimeoutMs: 15000, Retryable: true},
		},
		{
			name:        "browser_evaluate",
			description: "Evaluate a JavaScript expression in the active tab and return its result",
			schema: tool.ObjectSchema(map[string]any{
				"expression":   map[string]any{"type": "string", "description": "JavaScript expression"},
				"awaitPromise": map[string]any{"type": "boolean"},
			}, "expression"),
			caps: tool.Capabilities{TimeoutMs: 30000},
		},
		{
			name:        "browser_console",
			description: "Read recent console messages from the active tab",
			schema: tool.ObjectSchema(map[string]any{
				"level": map[string]any{"type": "string", "enum": []any{"log", "info", "warn", "error"}},
				"limit": map[string]any{"type": "integer", "minimum": 1, "maximum": 1000},
			}),
			caps: tool.Capabilities{TimeoutMs: 10000, Retryable: true},
		},
		{
			name:        "browser_content",
			description: "Extract HTML or text content from the active tab",
			schema: tool.ObjectSchema(map[string]any{
				"selector": map[string]any{"type": "string"},
				"format":   map[string]any{"type": "string", "enum": []any{"html", "text"}},
			}),
			caps: tool.Capabilities{TimeoutMs: 15000, Retryable: true},
		},
		{
			name:        "browser_audit",
			description: "Run an accessibility and performance audit against the current page",
			schema: tool.ObjectSchema(map[string]any{
				"category": map[string]any{"type": "string", "enum": []any{"accessibility", "performance", "seo"}},
			}),
			caps: tool.Capabilities{TimeoutMs: 60000, Async: true},
		},
	}

	tools := make([]tool.Tool, 0, len(specs))
	for _, spec := range specs {
		t, err := newBrowserTool(relay, spec.name, spec.description, spec.schema, spec.caps)
		if err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}
	return tools, nil
}
