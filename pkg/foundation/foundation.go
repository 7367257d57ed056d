// Copyright 2025 Author(s) of Mane
// SPDX-License-Identifier: Apache-2.0

// Package foundation assembles the server: logger, metrics, monitor,
// registry, HTTP bridge, and MCP handler, wired together with the default
// routes and the built-in browser tool set.
package foundation

import (
	"context"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/alexliesenfeld/health"
	"github.com/mane-project/mane/pkg/appconsts"
	"github.com/mane-project/mane/pkg/httpbridge"
	"github.com/mane-project/mane/pkg/logging"
	"github.com/mane-project/mane/pkg/mcpserver"
	"github.com/mane-project/mane/pkg/metrics"
	"github.com/mane-project/mane/pkg/monitor"
	"github.com/mane-project/mane/pkg/qualitygate"
	"github.com/mane-project/mane/pkg/tool"
	"github.com/mane-project/mane/pkg/tools/browser"
)

// Options configures a Foundation.
type Options struct {
	// LogLevel is one of debug, info, warn, error. Default info.
	LogLevel string
	// LogFormat is "json" or "text". Default json.
	LogFormat string
	// LogOutput receives structured logs. Default stderr; stdout belongs to
	// the MCP transport.
	LogOutput io.Writer
	// ServerName and ServerVersion are surfaced via MCP initialize.
	ServerName    string
	ServerVersion string
	// HTTPPort is the bridge port. Zero disables the bridge.
	HTTPPort int
	// RelayURL is the browser extension's base URL. Empty leaves the
	// browser tools registered but unhealthy.
	RelayURL string
	// EnableMetrics wires the in-memory metrics sink and the /metrics
	// route.
	EnableMetrics bool
	// EnableMonitoring wires per-request tracking.
	EnableMonitoring bool
}

// withDefaults fills unset options.
func (o Options) withDefaults() Options {
	if o.LogLevel == "" {
		o.LogLevel = "info"
	}
	if o.LogFormat == "" {
		o.LogFormat = "json"
	}
	if o.LogOutput == nil {
		o.LogOutput = os.Stderr
	}
	if o.ServerName == "" {
		o.ServerName = appconsts.Name
	}
	if o.ServerVersion == "" {
		o.ServerVersion = appconsts.Version
	}
	return o
}

// Health is the aggregate health snapshot of the assembled server.
type Health struct {
	Healthy   bool               `json:"healthy"`
	Status    string             `json:"status"`
	Registry  *tool.Health       `json:"registry"`
	Bridge    *httpbridge.Status `json:"bridge,omitempty"`
	Monitor   *monitor.Snapshot  `json:"monitor,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// Foundation owns the assembled components and their lifecycle.
type Foundation struct {
	options  Options
	registry *tool.Registry
	monitor  *monitor.Monitor
	bridge   *httpbridge.Bridge
	handler  *mcpserver.Handler
	stdio    *mcpserver.StdioServer
	checker  health.Checker

	mu         sync.Mutex
	started    bool
	cancelLoop context.CancelFunc
}

// New assembles a Foundation from options. Tools are registered and routes
// wired; nothing is started.
//
// Parameters:
//   - opts: The configuration knobs.
//
// Returns:
//   - The assembled foundation.
//   - An error if a built-in tool fails to register.
func New(opts Options) (*Foundation, error) {
	opts = opts.withDefaults()

	logging.Init(logging.ParseLevel(opts.LogLevel), opts.LogOutput, opts.LogFormat)
	if opts.EnableMetrics {
		if err := metrics.Initialize(); err != nil {
			return nil, err
		}
	}

	f := &Foundation{
		options:  opts,
		registry: tool.NewRegistry(),
	}
	if opts.EnableMonitoring {
		f.monitor = monitor.New()
	}

	relay := browser.NewRelay(opts.RelayURL)
	browserTools, err := browser.New(relay)
	if err != nil {
		return nil, err
	}
	for _, t := range browserTools {
		if err := f.registry.Register(t); err != nil {
			return nil, err
		}
	}

	f.handler = mcpserver.NewHandler(opts.ServerName, opts.ServerVersion, f.registry, f.monitor)
	f.handler.SetLogLevel(opts.LogLevel)
	f.stdio = mcpserver.NewStdioServer(f.handler)

	f.bridge = httpbridge.New(httpbridge.WithHealthFunc(func() bool {
		return f.GetHealth(context.Background()).Healthy
	}))
	if err := f.wireRoutes(browserTools); err != nil {
		return nil, err
	}

	f.checker = health.NewChecker(
		// Cache briefly so frequent /health polls do not hammer tool status
		// calls.
		health.WithCacheDuration(time.Second),
		health.WithCheck(health.Check{
			Name: "registry",
			Check: func(ctx context.Context) error {
				h := f.registry.GetHealth(ctx)
				if h.HealthyTools < h.TotalTools {
					return tool.NewError(tool.ErrorTypeExecution, "one or more tools unhealthy")
				}
				return nil
			},
		}),
		health.WithCheck(health.Check{
			Name: "bridge",
			Check: func(context.Context) error {
				if f.options.HTTPPort > 0 && !f.bridge.GetStatus().Running {
					return tool.NewError(tool.ErrorTypeConnection, "bridge not running")
				}
				return nil
			},
		}),
	)

	return f, nil
}

// wireRoutes installs the tool surface onto the bridge: the catalog route,
// the generic execute route, one route per tool endpoint, and /metrics when
// enabled.
func (f *Foundation) wireRoutes(tools []tool.Tool) error {
	if err := f.bridge.RegisterRoute("/tools", f.handleListTools); err != nil {
		return err
	}
	if err := f.bridge.RegisterRoute("/tools/execute", f.handleExecute); err != nil {
		return err
	}
	for _, t := range tools {
		endpoint := t.Endpoint()
		err := f.bridge.RegisterRoute(endpoint, func(ctx context.Context, req *httpbridge.Request) (*httpbridge.Response, error) {
			result := f.registry.Route(ctx, endpoint, req.BodyMap())
			return &httpbridge.Response{Body: result}, nil
		})
		if err != nil {
			return err
		}
	}
	if f.options.EnableMetrics {
		if err := f.bridge.RegisterRawRoute("/metrics", metrics.Handler()); err != nil {
			return err
		}
	}
	return nil
}

func (f *Foundation) handleListTools(context.Context, *httpbridge.Request) (*httpbridge.Response, error) {
	return &httpbridge.Response{Body: map[string]any{"tools": f.handler.ListTools()}}, nil
}

func (f *Foundation) handleExecute(ctx context.Context, req *httpbridge.Request) (*httpbridge.Response, error) {
	body := req.BodyMap()
	name, _ := body["tool"].(string)
	if name == "" {
		err := tool.NewError(tool.ErrorTypeValidation, "tool field is required")
		err.Code = http.StatusBadRequest
		return nil, err
	}
	params, _ := body["params"].(map[string]any)

	result, err := f.handler.ExecuteTool(ctx, name, params)
	if err != nil {
		terr := tool.NewError(tool.ErrorTypeValidation, err.Error())
		terr.Code = http.StatusBadRequest
		return nil, terr
	}
	// Successful routing returns 200 even when the tool itself failed; the
	// structured result carries the failure.
	return &httpbridge.Response{Body: result}, nil
}

// Start launches the bridge (when a port is configured) and the registry's
// background health loop. A second Start on a started instance fails.
//
// Parameters:
//   - ctx: Parent context for the background loop.
//
// Returns:
//   - An error when already started or when the bridge cannot bind.
func (f *Foundation) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return tool.NewError(tool.ErrorTypeValidation, "already started")
	}

	if f.options.HTTPPort > 0 {
		if err := f.bridge.Start(f.options.HTTPPort); err != nil {
			return err
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	f.cancelLoop = cancel
	go f.registry.Run(loopCtx)

	f.started = true
	logging.GetLogger().Info("Foundation started",
		"server", f.options.ServerName, "version", f.options.ServerVersion,
		"httpPort", f.options.HTTPPort, "relayConfigured", f.options.RelayURL != "")
	return nil
}

// Stop shuts down the background loop and drains the bridge. Stopping a
// stopped foundation is a no-op.
func (f *Foundation) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.started {
		return nil
	}

	f.cancelLoop()
	err := f.bridge.Stop(ctx)
	f.started = false
	logging.GetLogger().Info("Foundation stopped")
	return err
}

// ServeMCP runs the stdio MCP loop until EOF or cancellation.
func (f *Foundation) ServeMCP(ctx context.Context, r io.Reader, w io.Writer) error {
	return f.stdio.Serve(ctx, r, w)
}

// GetHealth aggregates component health. The foundation is healthy iff all
// component checks pass.
func (f *Foundation) GetHealth(ctx context.Context) *Health {
	checkResult := f.checker.Check(ctx)
	healthy := checkResult.Status == health.StatusUp

	h := &Health{
		Healthy:   healthy,
		Status:    string(checkResult.Status),
		Registry:  f.registry.GetHealth(ctx),
		Timestamp: time.Now().UTC(),
	}
	if f.options.HTTPPort > 0 {
		h.Bridge = f.bridge.GetStatus()
	}
	if f.monitor != nil {
		h.Monitor = f.monitor.GetSnapshot()
	}
	return h
}

// Registry exposes the routing authority, mainly for host-registered
// plugins.
func (f *Foundation) Registry() *tool.Registry {
	return f.registry
}

// Bridge exposes the HTTP surface, mainly for tests and embedders.
func (f *Foundation) Bridge() *httpbridge.Bridge {
	return f.bridge
}

// Handler exposes the MCP handler.
func (f *Foundation) Handler() *mcpserver.Handler {
	return f.handler
}

// RunQualityGates evaluates every registered tool against the gate
// sequence. The evaluation is advisory and does not affect routing.
//
// Parameters:
//   - ctx: Bounds gate executions.
//   - strict: Raises the performance threshold.
//
// Returns:
//   - Per-tool composite results keyed by tool name.
func (f *Foundation) RunQualityGates(ctx context.Context, strict bool) map[string]*qualitygate.CompositeResult {
	runner := qualitygate.NewRunner(strict)
	results := make(map[string]*qualitygate.CompositeResult)
	for _, t := range f.registry.ListTools() {
		results[t.Name()] = runner.Evaluate(ctx, t)
	}
	return results
}
