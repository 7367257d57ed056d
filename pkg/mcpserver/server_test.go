// Copyright 2025 Author(s) of Mane
// SPDX-License-Identifier: Apache-2.0

package mcpserver

import (
	"context"
	"testing"

	"github.com/mane-project/mane/pkg/monitor"
	"github.com/mane-project/mane/pkg/tool"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T, tools ...tool.Tool) *Handler {
	t.Helper()
	registry := tool.NewRegistry()
	for _, tl := range tools {
		require.NoError(t, registry.Register(tl))
	}
	return NewHandler("mane", "1.0.0", registry, monitor.New())
}

func initialize(t *testing.T, h *Handler) {
	t.Helper()
	resp := h.Dispatch(context.Background(),
		[]byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18"}}`))
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)
}

func TestHandlerInitialize(t *testing.T) {
	h := newTestHandler(t)
	assert.Equal(t, StateFresh, h.State())

	resp := h.Dispatch(context.Background(),
		[]byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18"}}`))
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)
	assert.Equal(t, StateReady, h.State())

	result, ok := resp.Result.(*InitializeResult)
	require.True(t, ok)
	assert.Equal(t, "mane", result.Name)
	assert.Equal(t, "1.0.0", result.Version)
	assert.Equal(t, "2025-06-18", result.ProtocolVersion)
	assert.Equal(t, "info", result.Capabilities.Logging.Level)
}

func TestHandlerAdvertisesConfiguredLogLevel(t *testing.T) {
	h := newTestHandler(t)
	h.SetLogLevel("debug")
	h.SetLogLevel("")

	resp := h.Dispatch(context.Background(),
		[]byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18"}}`))
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(*InitializeResult)
	require.True(t, ok)
	assert.Equal(t, "debug", result.Capabilities.Logging.Level, "empty level must not clear the configured one")
}

func TestHandlerInitializeOldProtocolAccepted(t *testing.T) {
	h := newTestHandler(t)
	resp := h.Dispatch(context.Background(),
		[]byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05"}}`))
	require.Nil(t, resp.Error)
	assert.Equal(t, StateReady, h.State())
}

func TestHandlerToolMethodsRequireReady(t *testing.T) {
	h := newTestHandler(t)

	for _, method := range []string{"tools/list", "tools/call"} {
		resp := h.Dispatch(context.Background(),
			[]byte(`{"jsonrpc":"2.0","id":2,"method":"`+method+`","params":{"name":"x"}}`))
		require.NotNil(t, resp.Error, method)
		assert.Equal(t, CodeNotInitialized, resp.Error.Code)
		assert.Equal(t, "server not initialized", resp.Error.Message)
	}
}

func TestHandlerShutdownIsTerminal(t *testing.T) {
	h := newTestHandler(t)
	initialize(t, h)

	resp := h.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","id":2,"method":"shutdown"}`))
	require.Nil(t, resp.Error)
	assert.Equal(t, StateShutDown, h.State())

	resp = h.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","id":3,"method":"tools/list"}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeNotInitialized, resp.Error.Code)

	resp = h.Dispatch(context.Background(),
		[]byte(`{"jsonrpc":"2.0","id":4,"method":"initialize","params":{}}`))
	require.NotNil(t, resp.Error)
}

func TestHandlerInitialized(t *testing.T) {
	h := newTestHandler(t)
	initialize(t, h)

	resp := h.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","id":2,"method":"initialized"}`))
	require.Nil(t, resp.Error)
	assert.Equal(t, map[string]any{}, resp.Result)
}

func TestHandlerUnknownMethod(t *testing.T) {
	h := newTestHandler(t)
	initialize(t, h)

	resp := h.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","id":7,"method":"tools/nope"}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
	assert.Equal(t, "Method not found: tools/nope", resp.Error.Message)
	assert.Equal(t, "7", string(resp.ID))
}

func TestHandlerEchoesIDVerbatim(t *testing.T) {
	h := newTestHandler(t)
	initialize(t, h)

	resp := h.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","id":"req-42","method":"tools/list"}`))
	assert.Equal(t, `"req-42"`, string(resp.ID))
}

func TestHandlerNotificationGetsNoResponse(t *testing.T) {
	h := newTestHandler(t)
	initialize(t, h)

	resp := h.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","method":"initialized"}`))
	assert.Nil(t, resp)

	resp = h.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","method":"no/such/method"}`))
	assert.Nil(t, resp)
}

func TestHandlerToolsList(t *testing.T) {
	navigate := tool.NewMockTool("browser_navigate")
	navigate.DescriptionValue = "Navigate the browser to a URL"
	sick := tool.NewMockTool("dom_query")
	sick.StatusFunc = func() *tool.Status { return &tool.Status{Healthy: false} }

	h := newTestHandler(t, navigate, sick)
	initialize(t, h)

	tools := h.ListTools()
	require.Len(t, tools, 1)
	assert.Equal(t, "browser_navigate", tools[0].Name)
	assert.Equal(t, "Browser Navigate", tools[0].Title)
	assert.Equal(t, "Navigate the browser to a URL", tools[0].Description)
	require.NotNil(t, tools[0].InputSchema)
}

func TestHandlerToolsListReflectsRegistry(t *testing.T) {
	h := newTestHandler(t, tool.NewMockTool("browser_navigate"))
	initialize(t, h)
	require.Len(t, h.ListTools(), 1)

	require.NoError(t, h.registry.Register(tool.NewMockTool("dom_query")))
	assert.Len(t, h.ListTools(), 2)

	require.NoError(t, h.registry.Unregister("browser_navigate"))
	tools := h.ListTools()
	require.Len(t, tools, 1)
	assert.Equal(t, "dom_query", tools[0].Name)
}

func TestToolAnnotations(t *testing.T) {
	authed := tool.NewMockTool("vault_read")
	authed.CapabilitiesValue = tool.Capabilities{RequiresAuth: true, Retryable: true}
	assert.Equal(t, map[string]string{"security": "Requires authentication"}, toolAnnotations(authed))

	fragile := tool.NewMockTool("browser_click")
	assert.Equal(t, map[string]string{"warning": "not retryable"}, toolAnnotations(fragile))

	evaluate := tool.NewMockTool("browser_evaluate")
	evaluate.CapabilitiesValue = tool.Capabilities{Retryable: true}
	assert.Equal(t,
		map[string]string{"warning": "This tool executes arbitrary JavaScript. Use with caution."},
		toolAnnotations(evaluate))

	plain := tool.NewMockTool("browser_navigate")
	plain.CapabilitiesValue = tool.Capabilities{Retryable: true}
	assert.Nil(t, toolAnnotations(plain))
}

func TestToTitle(t *testing.T) {
	assert.Equal(t, "Browser Navigate", toTitle("browser_navigate"))
	assert.Equal(t, "Screenshot", toTitle("screenshot"))
	assert.Equal(t, "Dom Query All", toTitle("dom_query_all"))
}

func TestHandlerToolsCallText(t *testing.T) {
	navigate := tool.NewMockTool("browser_navigate")
	navigate.ExecuteFunc = func(_ context.Context, params map[string]any) (*tool.Result, error) {
		return tool.NewSuccessResult(map[string]any{"url": params["url"], "status": 200}), nil
	}
	h := newTestHandler(t, navigate)
	initialize(t, h)

	resp := h.Dispatch(context.Background(),
		[]byte(`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"browser_navigate","arguments":{"url":"https://example.com"}}}`))
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(*mcp.CallToolResult)
	require.True(t, ok)
	assert.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "https://example.com")
}

func TestHandlerToolsCallScreenshot(t *testing.T) {
	shot := tool.NewMockTool("browser_screenshot")
	shot.ExecuteFunc = func(context.Context, map[string]any) (*tool.Result, error) {
		return tool.NewSuccessResult(map[string]any{"screenshot": "aGVsbG8="}), nil
	}
	h := newTestHandler(t, shot)
	initialize(t, h)

	resp := h.Dispatch(context.Background(),
		[]byte(`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"browser_screenshot","arguments":{}}}`))
	require.Nil(t, resp.Error)

	result := resp.Result.(*mcp.CallToolResult)
	require.Len(t, result.Content, 1)
	image, ok := result.Content[0].(*mcp.ImageContent)
	require.True(t, ok)
	assert.Equal(t, "image/png", image.MIMEType)
	assert.Equal(t, []byte("hello"), image.Data)
}

func TestHandlerToolsCallHTML(t *testing.T) {
	content := tool.NewMockTool("browser_content")
	content.ExecuteFunc = func(context.Context, map[string]any) (*tool.Result, error) {
		return tool.NewSuccessResult(map[string]any{"html": "<html><body>hi</body></html>"}), nil
	}
	h := newTestHandler(t, content)
	initialize(t, h)

	resp := h.Dispatch(context.Background(),
		[]byte(`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"browser_content","arguments":{}}}`))
	result := resp.Result.(*mcp.CallToolResult)
	text := result.Content[0].(*mcp.TextContent)
	assert.Equal(t, "<html><body>hi</body></html>", text.Text)
}

func TestHandlerToolsCallFailure(t *testing.T) {
	broken := tool.NewMockTool("browser_navigate")
	broken.ExecuteFunc = func(context.Context, map[string]any) (*tool.Result, error) {
		return tool.NewErrorResult(tool.NewError(tool.ErrorTypeConnection, "bridge unreachable")), nil
	}
	h := newTestHandler(t, broken)
	initialize(t, h)

	resp := h.Dispatch(context.Background(),
		[]byte(`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"browser_navigate","arguments":{}}}`))
	require.Nil(t, resp.Error)

	result := resp.Result.(*mcp.CallToolResult)
	assert.True(t, result.IsError)
	text := result.Content[0].(*mcp.TextContent)
	assert.Equal(t, "bridge unreachable", text.Text)
}

func TestHandlerToolsCallUnknownTool(t *testing.T) {
	h := newTestHandler(t, tool.NewMockTool("browser_navigate"))
	initialize(t, h)

	resp := h.Dispatch(context.Background(),
		[]byte(`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"nope","arguments":{}}}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "Unknown tool: nope")

	data, ok := resp.Error.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []string{"browser_navigate"}, data["availableTools"])
}

func TestHandlerToolsCallMissingName(t *testing.T) {
	h := newTestHandler(t)
	initialize(t, h)

	resp := h.Dispatch(context.Background(),
		[]byte(`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"arguments":{}}}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
}

func TestShapeCallResultUnknownError(t *testing.T) {
	result := shapeCallResult(&tool.Result{Success: false})
	text := result.Content[0].(*mcp.TextContent)
	assert.Equal(t, "Unknown error", text.Text)
	assert.True(t, result.IsError)
}
