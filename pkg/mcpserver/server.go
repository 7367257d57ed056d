// Copyright 2025 Author(s) of Mane
// SPDX-License-Identifier: Apache-2.0

// Package mcpserver implements the MCP protocol handler: JSON-RPC 2.0
// framing over stdio, the MCP method surface, and result shaping for tool
// executions routed through the registry.
package mcpserver

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/mane-project/mane/pkg/logging"
	"github.com/mane-project/mane/pkg/monitor"
	"github.com/mane-project/mane/pkg/tool"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/samber/lo"
)

// ProtocolVersion is the MCP revision this handler speaks.
const ProtocolVersion = "2025-06-18"

// State is the lifecycle phase of the handler.
type State int32

// The handler lifecycle. initialize moves Fresh to Ready synchronously;
// shutdown is terminal from any state.
const (
	StateFresh State = iota
	StateReady
	StateShutDown
)

// ToolDescriptor is one entry of the tools/list result.
type ToolDescriptor struct {
	Name        string            `json:"name"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	InputSchema *tool.Schema      `json:"inputSchema"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// InitializeResult is the initialize response payload.
type InitializeResult struct {
	Name            string       `json:"name"`
	Version         string       `json:"version"`
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    Capabilities `json:"capabilities"`
}

// Capabilities advertises the handler's MCP capability set.
type Capabilities struct {
	Tools     struct{}          `json:"tools"`
	Resources struct{}          `json:"resources"`
	Prompts   struct{}          `json:"prompts"`
	Logging   LoggingCapability `json:"logging"`
}

// LoggingCapability carries the advertised log level.
type LoggingCapability struct {
	Level string `json:"level"`
}

// Handler speaks MCP with a single peer and exposes the registry's catalog
// and executions. Safe for pipelined (overlapping) calls.
type Handler struct {
	name     string
	version  string
	logLevel string

	registry *tool.Registry
	monitor  *monitor.Monitor
	router   *Router

	mu                    sync.RWMutex
	state                 State
	clientProtocolVersion string
}

// NewHandler wires a handler over the registry. The monitor is optional.
//
// Parameters:
//   - name: The server name surfaced via initialize.
//   - version: The server version surfaced via initialize.
//   - registry: The routing authority.
//   - mon: Optional request monitor; nil disables tracking.
//
// Returns:
//   - The handler, in the Fresh state.
func NewHandler(name, version string, registry *tool.Registry, mon *monitor.Monitor) *Handler {
	h := &Handler{
		name:     name,
		version:  version,
		logLevel: "info",
		registry: registry,
		monitor:  mon,
		router:   NewRouter(),
	}
	h.router.Register("initialize", h.handleInitialize)
	h.router.Register("initialized", h.handleInitialized)
	h.router.Register("tools/list", h.handleToolsList)
	h.router.Register("tools/call", h.handleToolsCall)
	h.router.Register("shutdown", h.handleShutdown)
	return h
}

// SetLogLevel sets the level advertised in the initialize capabilities.
// Call before serving; the default is "info".
func (h *Handler) SetLogLevel(level string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if level != "" {
		h.logLevel = level
	}
}

// State returns the current lifecycle phase.
func (h *Handler) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Dispatch processes one framed message and returns the response to send,
// or nil for notifications.
//
// Parameters:
//   - ctx: The request context.
//   - raw: One newline-delimited JSON-RPC message.
//
// Returns:
//   - The response envelope, or nil when none must be sent.
func (h *Handler) Dispatch(ctx context.Context, raw []byte) *Response {
	req, errResp := ParseRequest(raw)
	if errResp != nil {
		return errResp
	}

	handler, ok := h.router.GetHandler(req.Method)
	if !ok {
		if req.IsNotification() {
			logging.GetLogger().Debug("Ignoring unknown notification", "method", req.Method)
			return nil
		}
		return NewErrorResponse(req.ID, CodeMethodNotFound, "Method not found: "+req.Method)
	}

	result, err := handler(ctx, req.Params)
	if req.IsNotification() {
		return nil
	}
	if err != nil {
		respErr := h.mapError(err)
		return &Response{JSONRPC: "2.0", ID: normalizeID(req.ID), Error: respErr}
	}
	return NewResultResponse(req.ID, result)
}

// mapError converts handler errors to protocol errors. Already-shaped
// protocol errors pass through verbatim; the taxonomy maps VALIDATION to
// invalid-params and everything else to internal.
func (h *Handler) mapError(err error) *ResponseError {
	if respErr, ok := err.(*ResponseError); ok {
		return respErr
	}
	if terr, ok := err.(*tool.Error); ok {
		switch terr.Type {
		case tool.ErrorTypeValidation:
			return &ResponseError{Code: CodeInvalidParams, Message: terr.Message, Data: terr.Details}
		default:
			return &ResponseError{Code: CodeInternalError, Message: terr.Message, Data: terr.Details}
		}
	}
	return &ResponseError{Code: CodeInternalError, Message: err.Error()}
}

// requireReady gates tool methods on the lifecycle state.
func (h *Handler) requireReady() error {
	switch h.State() {
	case StateReady:
		return nil
	case StateShutDown:
		return &ResponseError{Code: CodeNotInitialized, Message: "server is shut down"}
	default:
		return &ResponseError{Code: CodeNotInitialized, Message: "server not initialized"}
	}
}

type initializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
}

func (h *Handler) handleInitialize(_ context.Context, params jsoniter.RawMessage) (any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == StateShutDown {
		return nil, &ResponseError{Code: CodeNotInitialized, Message: "server is shut down"}
	}

	var p initializeParams
	if len(params) > 0 {
		if err := fastJSON.Unmarshal(params, &p); err != nil {
			return nil, &ResponseError{Code: CodeInvalidParams, Message: "invalid initialize params"}
		}
	}
	h.clientProtocolVersion = p.ProtocolVersion
	if p.ProtocolVersion != "" && !strings.HasPrefix(p.ProtocolVersion, "2025") {
		logging.GetLogger().Warn("Client protocol version differs from supported revision",
			"clientVersion", p.ProtocolVersion, "supported", ProtocolVersion)
	}

	h.state = StateReady
	logging.GetLogger().Info("MCP session initialized", "clientVersion", p.ProtocolVersion)

	return &InitializeResult{
		Name:            h.name,
		Version:         h.version,
		ProtocolVersion: ProtocolVersion,
		Capabilities:    Capabilities{Logging: LoggingCapability{Level: h.logLevel}},
	}, nil
}

func (h *Handler) handleInitialized(context.Context, jsoniter.RawMessage) (any, error) {
	return map[string]any{}, nil
}

func (h *Handler) handleShutdown(context.Context, jsoniter.RawMessage) (any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = StateShutDown
	logging.GetLogger().Info("MCP session shut down")
	return map[string]any{}, nil
}

func (h *Handler) handleToolsList(context.Context, jsoniter.RawMessage) (any, error) {
	if err := h.requireReady(); err != nil {
		return nil, err
	}
	return map[string]any{"tools": h.ListTools()}, nil
}

// ListTools returns descriptors for the healthy tools, in registration
// order. Also served over HTTP as GET /tools.
func (h *Handler) ListTools() []ToolDescriptor {
	healthy := true
	tools := h.registry.Discover(&tool.Filter{Healthy: &healthy})
	return lo.Map(tools, func(t tool.Tool, _ int) ToolDescriptor {
		return ToolDescriptor{
			Name:        t.Name(),
			Title:       toTitle(t.Name()),
			Description: t.Description(),
			InputSchema: t.Schema(),
			Annotations: toolAnnotations(t),
		}
	})
}

// toTitle derives a display title from a tool name: underscores become
// spaces and each word is capitalized ("browser_navigate" → "Browser
// Navigate").
func toTitle(name string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// toolAnnotations builds the free-form hint map surfaced in tools/list.
func toolAnnotations(t tool.Tool) map[string]string {
	annotations := make(map[string]string)
	caps := t.Capabilities()
	if caps.RequiresAuth {
		annotations["security"] = "Requires authentication"
	}
	if !caps.Retryable {
		annotations["warning"] = "not retryable"
	}
	if t.Name() == "browser_evaluate" {
		annotations["warning"] = "This tool executes arbitrary JavaScript. Use with caution."
	}
	if len(annotations) == 0 {
		return nil
	}
	return annotations
}

type toolsCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (h *Handler) handleToolsCall(ctx context.Context, params jsoniter.RawMessage) (any, error) {
	if err := h.requireReady(); err != nil {
		return nil, err
	}

	var p toolsCallParams
	if err := fastJSON.Unmarshal(params, &p); err != nil {
		return nil, &ResponseError{Code: CodeInvalidParams, Message: "invalid tools/call params"}
	}
	if p.Name == "" {
		return nil, &ResponseError{Code: CodeInvalidParams, Message: "tool name is required"}
	}

	result, err := h.ExecuteTool(ctx, p.Name, p.Arguments)
	if err != nil {
		return nil, err
	}
	return shapeCallResult(result), nil
}

// ExecuteTool resolves a tool by name and routes the execution through the
// registry. Shared by tools/call and the HTTP /tools/execute handler.
//
// Parameters:
//   - ctx: The request context.
//   - name: The tool name.
//   - params: The raw arguments.
//
// Returns:
//   - The routed Result.
//   - An invalid-params protocol error when the tool name is unknown. The
//     error data lists every registered tool, healthy or not.
func (h *Handler) ExecuteTool(ctx context.Context, name string, params map[string]any) (*tool.Result, error) {
	t, ok := h.registry.GetTool(name)
	if !ok {
		known := lo.Map(h.registry.ListTools(), func(t tool.Tool, _ int) string { return t.Name() })
		return nil, &ResponseError{
			Code:    CodeInvalidParams,
			Message: "Unknown tool: " + name,
			Data:    map[string]any{"availableTools": known},
		}
	}

	var trackID string
	if h.monitor != nil {
		trackID = h.monitor.StartRequest(name, t.Endpoint())
	}
	result := h.registry.Route(ctx, t.Endpoint(), params)
	if h.monitor != nil {
		h.monitor.Finish(trackID, result.Success, result.Error)
	}
	return result, nil
}

// shapeCallResult converts a routed Result into MCP content blocks.
// Screenshot payloads become an image block; html/text payloads become a
// single text block; anything else is pretty-printed JSON. Failures carry
// the error message as text with isError set.
func shapeCallResult(result *tool.Result) *mcp.CallToolResult {
	if !result.Success {
		message := result.Error
		if message == "" {
			message = "Unknown error"
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: message}},
			IsError: true,
		}
	}

	if data, ok := result.Data.(map[string]any); ok {
		if screenshot, ok := data["screenshot"].(string); ok {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.ImageContent{
					Data:     screenshotBytes(screenshot),
					MIMEType: "image/png",
				}},
			}
		}
		if html, ok := data["html"].(string); ok {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: html}},
			}
		}
		if text, ok := data["text"].(string); ok {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: text}},
			}
		}
	}

	pretty, err := fastJSON.MarshalIndent(result.Data, "", "  ")
	if err != nil {
		pretty = []byte(fmt.Sprintf("%v", result.Data))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(pretty)}},
	}
}

// screenshotBytes decodes a base64 screenshot payload. Non-base64 payloads
// are passed through as raw bytes.
func screenshotBytes(s string) []byte {
	if decoded, err := base64.StdEncoding.DecodeString(s); err == nil {
		return decoded
	}
	return []byte(s)
}
