// Copyright 2025 Author(s) of Mane
// SPDX-License-Identifier: Apache-2.0

package foundation

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mane-project/mane/pkg/mcpserver"
	"github.com/mane-project/mane/pkg/tool"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jsoniter "github.com/json-iterator/go"
)

func dispatch(t *testing.T, f *Foundation, raw string) *mcpserver.Response {
	t.Helper()
	return f.Handler().Dispatch(context.Background(), []byte(raw))
}

var fastJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// fakeExtension stands in for the browser extension relay.
func fakeExtension(t *testing.T) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":{"url":"https://example.com","status":200}}`))
	}))
	t.Cleanup(server.Close)
	return server.URL
}

func newTestFoundation(t *testing.T, opts Options) *Foundation {
	t.Helper()
	if opts.LogOutput == nil {
		opts.LogOutput = io.Discard
	}
	f, err := New(opts)
	require.NoError(t, err)
	return f
}

func TestFoundationAssembles(t *testing.T) {
	f := newTestFoundation(t, Options{RelayURL: fakeExtension(t), EnableMonitoring: true})

	assert.Len(t, f.Registry().ListTools(), 6)
	assert.Contains(t, f.Bridge().Routes(), "/tools")
	assert.Contains(t, f.Bridge().Routes(), "/tools/execute")
	assert.Contains(t, f.Bridge().Routes(), "/tools/browser_navigate")
}

func TestFoundationStartStop(t *testing.T) {
	f := newTestFoundation(t, Options{RelayURL: fakeExtension(t)})

	require.NoError(t, f.Start(context.Background()))

	err := f.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")

	require.NoError(t, f.Stop(context.Background()))
	require.NoError(t, f.Stop(context.Background()), "stop is idempotent")

	// A stopped foundation can be started again.
	require.NoError(t, f.Start(context.Background()))
	require.NoError(t, f.Stop(context.Background()))
}

func TestFoundationGetHealth(t *testing.T) {
	f := newTestFoundation(t, Options{RelayURL: fakeExtension(t), EnableMonitoring: true})

	h := f.GetHealth(context.Background())
	require.NotNil(t, h)
	assert.True(t, h.Healthy)
	assert.Equal(t, 6, h.Registry.TotalTools)
	assert.Equal(t, 6, h.Registry.HealthyTools)
	require.NotNil(t, h.Monitor)
}

func TestFoundationUnhealthyWithoutRelay(t *testing.T) {
	f := newTestFoundation(t, Options{})

	h := f.GetHealth(context.Background())
	assert.False(t, h.Healthy)
	assert.Zero(t, h.Registry.HealthyTools)
}

func TestFoundationToolsRoute(t *testing.T) {
	f := newTestFoundation(t, Options{RelayURL: fakeExtension(t)})

	req := httptest.NewRequest(http.MethodGet, "/tools", nil)
	rec := httptest.NewRecorder()
	f.Bridge().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Tools []mcpserver.ToolDescriptor `json:"tools"`
	}
	require.NoError(t, fastJSON.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Tools, 6)
}

func TestFoundationExecuteRoute(t *testing.T) {
	f := newTestFoundation(t, Options{RelayURL: fakeExtension(t), EnableMonitoring: true})

	payload := `{"tool":"browser_navigate","params":{"url":"https://example.com"}}`
	req := httptest.NewRequest(http.MethodPost, "/tools/execute", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.Bridge().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result tool.Result
	require.NoError(t, fastJSON.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
}

func TestFoundationExecuteRouteMissingTool(t *testing.T) {
	f := newTestFoundation(t, Options{RelayURL: fakeExtension(t)})

	req := httptest.NewRequest(http.MethodPost, "/tools/execute", strings.NewReader(`{"params":{}}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.Bridge().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "tool field is required")
}

func TestFoundationExecuteRouteUnknownTool(t *testing.T) {
	f := newTestFoundation(t, Options{RelayURL: fakeExtension(t)})

	req := httptest.NewRequest(http.MethodPost, "/tools/execute", strings.NewReader(`{"tool":"nope"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.Bridge().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Unknown tool")
}

func TestFoundationToolEndpointRoute(t *testing.T) {
	f := newTestFoundation(t, Options{RelayURL: fakeExtension(t)})

	payload := `{"url":"https://example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/tools/browser_navigate", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.Bridge().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result tool.Result
	require.NoError(t, fastJSON.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success, "route failed: %s", result.Error)
}

func TestFoundationMetricsRoute(t *testing.T) {
	f := newTestFoundation(t, Options{RelayURL: fakeExtension(t), EnableMetrics: true})
	assert.Contains(t, f.Bridge().Routes(), "/metrics")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	f.Bridge().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFoundationMCPSession(t *testing.T) {
	f := newTestFoundation(t, Options{RelayURL: fakeExtension(t), EnableMonitoring: true})

	resp := dispatch(t, f,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18"}}`)
	require.Nil(t, resp.Error)
	initResult := resp.Result.(*mcpserver.InitializeResult)
	assert.Equal(t, "2025-06-18", initResult.ProtocolVersion)

	resp = dispatch(t, f, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	require.Nil(t, resp.Error)
	tools := f.Handler().ListTools()
	require.NotEmpty(t, tools)
	titles := map[string]bool{}
	for _, entry := range tools {
		titles[entry.Title] = true
	}
	assert.True(t, titles["Browser Navigate"])

	resp = dispatch(t, f,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"browser_navigate","arguments":{"url":"https://example.com"}}}`)
	require.Nil(t, resp.Error)
	callResult := resp.Result.(*mcp.CallToolResult)
	assert.False(t, callResult.IsError)
	require.NotEmpty(t, callResult.Content)
}

func TestFoundationAdvertisesLogLevel(t *testing.T) {
	f := newTestFoundation(t, Options{RelayURL: fakeExtension(t), LogLevel: "debug"})

	resp := dispatch(t, f,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18"}}`)
	require.Nil(t, resp.Error)
	initResult := resp.Result.(*mcpserver.InitializeResult)
	assert.Equal(t, "debug", initResult.Capabilities.Logging.Level)
}

func TestFoundationServeMCP(t *testing.T) {
	f := newTestFoundation(t, Options{RelayURL: fakeExtension(t)})

	input := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18"}}` + "\n"
	var out strings.Builder
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.ServeMCP(ctx, strings.NewReader(input), &out))

	assert.Contains(t, out.String(), `"protocolVersion":"2025-06-18"`)
}

func TestFoundationRunQualityGates(t *testing.T) {
	f := newTestFoundation(t, Options{RelayURL: fakeExtension(t)})

	results := f.RunQualityGates(context.Background(), false)
	require.Len(t, results, 6)
	for name, composite := range results {
		assert.NotNil(t, composite, name)
		assert.Greater(t, composite.Score, 0, name)
	}
}
