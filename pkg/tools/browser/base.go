// Copyright 2025 Author(s) of Mane
// SPDX-License-Identifier: Apache-2.0

package browser

import (
	"context"
	"sync"
	"time"

	"github.com/mane-project/mane/pkg/tool"
)

// browserTool is the shared implementation behind every browser plugin:
// schema validation, relay forwarding, and usage statistics.
type browserTool struct {
	name        string
	endpoint    string
	description string
	schema      *tool.Schema
	caps        tool.Capabilities
	validator   *tool.SchemaValidator
	relay       *Relay

	mu            sync.Mutex
	lastUsed      time.Time
	execCount     int64
	errCount      int64
	totalDuration time.Duration
}

func newBrowserTool(relay *Relay, name, description string, schema *tool.Schema, caps tool.Capabilities) (*browserTool, error) {
	validator, err := tool.NewSchemaValidator(schema)
	if err != nil {
		return nil, err
	}
	return &browserTool{
		name:        name,
		endpoint:    "/tools/" + name,
		description: description,
		schema:      schema,
		caps:        caps,
		validator:   validator,
		relay:       relay,
	}, nil
}

func (b *browserTool) Name() string                    { return b.name }
func (b *browserTool) Endpoint() string                { return b.endpoint }
func (b *browserTool) Description() string             { return b.description }
func (b *browserTool) Schema() *tool.Schema            { return b.schema }
func (b *browserTool) Capabilities() tool.Capabilities { return b.caps }

// Execute forwards the call over the relay and records usage statistics.
func (b *browserTool) Execute(ctx context.Context, params map[string]any) (*tool.Result, error) {
	start := time.Now()
	data, terr := b.relay.Call(ctx, b.endpoint, params)
	b.record(start, terr == nil)

	if terr != nil {
		return tool.NewErrorResult(terr), nil
	}
	return tool.NewSuccessResult(data), nil
}

// Validate checks parameters against the tool schema without executing.
func (b *browserTool) Validate(params map[string]any) *tool.ValidationResult {
	return b.validator.Validate(params)
}

// Status reports relay availability plus accumulated usage statistics.
func (b *browserTool) Status() *tool.Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	avg := 0.0
	if b.execCount > 0 {
		avg = float64(b.totalDuration.Milliseconds()) / float64(b.execCount)
	}
	errorRate := 0.0
	if b.execCount > 0 {
		errorRate = float64(b.errCount) / float64(b.execCount)
	}
	return &tool.Status{
		Healthy:          b.relay.Healthy(),
		LastUsed:         b.lastUsed,
		ExecutionCount:   b.execCount,
		AvgExecutionTime: avg,
		ErrorRate:        errorRate,
	}
}

func (b *browserTool) record(start time.Time, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastUsed = time.Now()
	b.execCount++
	b.totalDuration += time.Since(start)
	if !success {
		b.errCount++
	}
}
