// Copyright 2025 Author(s) of Mane
// SPDX-License-Identifier: Apache-2.0

// Package browser provides the built-in browser tool plugins. Each tool
// forwards its execution to the browser extension over the HTTP relay and
// satisfies the registry's tool contract.
package browser

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/mane-project/mane/pkg/tool"
)

var fastJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// probeCacheTTL bounds how long a health probe result is reused. All tools
// share one relay, so without the cache every Status sweep would issue one
// probe per tool.
const probeCacheTTL = 10 * time.Second

// Relay is the HTTP client side of the extension bridge. Tool executions
// are POSTed to <baseURL><endpoint> as JSON and the extension answers with
// a {success, data, error} payload.
type Relay struct {
	baseURL string
	client  *http.Client

	probeMu     sync.Mutex
	lastProbe   time.Time
	lastHealthy bool
}

// NewRelay creates a relay against the extension's base URL. An empty URL
// yields a relay that reports unavailable; tools built on it stay
// registered but unhealthy.
func NewRelay(baseURL string) *Relay {
	return &Relay{
		baseURL: baseURL,
		client:  &http.Client{},
	}
}

// Available reports whether a relay URL is configured.
func (r *Relay) Available() bool {
	return r.baseURL != ""
}

// relayEnvelope is the extension's response shape.
type relayEnvelope struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
	Error   string         `json:"error"`
}

// Call forwards one tool execution to the extension.
//
// Parameters:
//   - ctx: Bounds the round trip; the registry supplies the tool timeout.
//   - endpoint: The tool endpoint, appended to the relay base URL.
//   - params: The sanitized parameter map.
//
// Returns:
//   - The extension's data payload on success.
//   - A CONNECTION error for transport failures (recoverable) or an
//     EXECUTION error when the extension reports failure.
func (r *Relay) Call(ctx context.Context, endpoint string, params map[string]any) (map[string]any, *tool.Error) {
	if !r.Available() {
		return nil, tool.NewError(tool.ErrorTypeConnection, "browser relay not configured")
	}

	payload, err := fastJSON.Marshal(params)
	if err != nil {
		return nil, tool.NewError(tool.ErrorTypeValidation, fmt.Sprintf("parameters are not JSON-encodable: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, tool.NewError(tool.ErrorTypeInternal, fmt.Sprintf("failed to build relay request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, tool.NewError(tool.ErrorTypeTimeout, "browser relay timed out")
		}
		return nil, tool.NewError(tool.ErrorTypeConnection, fmt.Sprintf("browser relay unreachable: %v", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, tool.NewError(tool.ErrorTypeRateLimit, "browser relay rate limited")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, tool.NewError(tool.ErrorTypeExecution,
			fmt.Sprintf("browser relay returned status %d", resp.StatusCode))
	}

	var envelope relayEnvelope
	if err := fastJSON.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, tool.NewError(tool.ErrorTypeExecution, fmt.Sprintf("malformed relay response: %v", err))
	}
	if !envelope.Success {
		message := envelope.Error
		if message == "" {
			message = "browser extension reported failure"
		}
		return nil, tool.NewError(tool.ErrorTypeExecution, message)
	}
	return envelope.Data, nil
}

// Healthy reports whether the extension answered a recent health probe. A
// configured but unreachable extension is unhealthy; probe results are
// cached for probeCacheTTL so Status sweeps across the tool set share one
// round trip.
func (r *Relay) Healthy() bool {
	if !r.Available() {
		return false
	}
	r.probeMu.Lock()
	defer r.probeMu.Unlock()
	if time.Since(r.lastProbe) < probeCacheTTL {
		return r.lastHealthy
	}
	r.lastHealthy = r.Ping()
	r.lastProbe = time.Now()
	return r.lastHealthy
}

// Ping probes the relay's health endpoint with a short timeout.
func (r *Relay) Ping() bool {
	if !r.Available() {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}
