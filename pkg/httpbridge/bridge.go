// Copyright 2025 Author(s) of Mane
// SPDX-License-Identifier: Apache-2.0

// Package httpbridge hosts the HTTP surface for browser-extension traffic
// and system introspection. It owns the listener lifecycle, the route
// table, body parsing and hardening, and CORS.
package httpbridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/mane-project/mane/pkg/logging"
	"github.com/mane-project/mane/pkg/metrics"
	"github.com/mane-project/mane/pkg/sanitize"
	"github.com/mane-project/mane/pkg/tool"
	xsync "github.com/puzpuzpuz/xsync/v4"
)

var fastJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// MaxBodySize caps request bodies at 10 MiB. Larger bodies are rejected
// before any handler runs.
const MaxBodySize = 10 * 1024 * 1024

var metricRequestDuration = []string{"http_bridge", "request", "duration"}

// Handler processes one bridge request.
//
// Parameters:
//   - ctx: The request context.
//   - req: The parsed, sanitized request.
//
// Returns:
//   - The response to send; a nil response means an empty 200.
//   - An error; a *tool.Error with a Code sets that HTTP status.
type Handler func(ctx context.Context, req *Request) (*Response, error)

// Request is the bridge-level view of an HTTP request. Body holds a
// sanitized map for JSON and form payloads, a sanitized string for text
// payloads, and nil when the body is empty.
type Request struct {
	Method  string
	Path    string
	Headers http.Header
	Query   map[string][]string
	Body    any
}

// BodyMap returns the body as a parameter map, or an empty map when the
// body is not map-shaped.
func (r *Request) BodyMap() map[string]any {
	if m, ok := r.Body.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// Response is the bridge-level view of an HTTP response.
type Response struct {
	StatusCode  int
	ContentType string
	Headers     map[string]string
	Body        any
}

// Status is the lifecycle snapshot returned by GetStatus.
type Status struct {
	Running      bool          `json:"running"`
	Port         int           `json:"port"`
	Uptime       time.Duration `json:"uptime"`
	RequestCount int64         `json:"requestCount"`
	ErrorCount   int64         `json:"errorCount"`
}

// Bridge is the HTTP ingress surface. Routes are registered under both GET
// and POST; every response carries CORS headers.
type Bridge struct {
	mu        sync.RWMutex
	router    *mux.Router
	server    *http.Server
	listener  net.Listener
	running   bool
	port      int
	startTime time.Time

	routes   []string
	handlers map[string]Handler

	requestCount *xsync.Counter
	errorCount   *xsync.Counter

	healthFunc func() bool
}

// Option configures a Bridge at construction.
type Option func(*Bridge)

// WithHealthFunc supplies the aggregate health check backing /health. The
// default reports healthy whenever the bridge is running.
func WithHealthFunc(fn func() bool) Option {
	return func(b *Bridge) { b.healthFunc = fn }
}

// New creates a Bridge with the default system routes registered.
func New(opts ...Option) *Bridge {
	b := &Bridge{
		router:       mux.NewRouter(),
		handlers:     make(map[string]Handler),
		requestCount: xsync.NewCounter(),
		errorCount:   xsync.NewCounter(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.healthFunc == nil {
		b.healthFunc = func() bool {
			b.mu.RLock()
			defer b.mu.RUnlock()
			return b.running
		}
	}

	b.router.NotFoundHandler = http.HandlerFunc(b.handleNotFound)

	// Default system routes.
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(b.RegisterRoute("/health", b.handleHealth))
	must(b.RegisterRoute("/status", b.handleStatus))
	must(b.RegisterRoute("/routes", b.handleRoutes))
	return b
}

// RegisterRoute installs a handler under both GET and POST for a path.
//
// Parameters:
//   - path: The route path; validated against the endpoint rules.
//   - handler: The handler to invoke.
//
// Returns:
//   - A VALIDATION error for malformed or duplicate paths.
func (b *Bridge) RegisterRoute(path string, handler Handler) error {
	if err := sanitize.ValidateEndpoint(path); err != nil {
		return tool.NewError(tool.ErrorTypeValidation, fmt.Sprintf("invalid route path %q: %v", path, err))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.handlers[path]; exists {
		return tool.NewError(tool.ErrorTypeValidation, fmt.Sprintf("route %q is already registered", path))
	}
	b.handlers[path] = handler
	b.routes = append(b.routes, path)
	b.router.HandleFunc(path, b.wrap(path, handler)).Methods(http.MethodGet, http.MethodPost)
	return nil
}

// RegisterRawRoute installs a plain net/http handler under GET, bypassing
// body parsing and response shaping. Used for handlers that write their own
// wire format, such as the Prometheus exposition endpoint.
func (b *Bridge) RegisterRawRoute(path string, handler http.Handler) error {
	if err := sanitize.ValidateEndpoint(path); err != nil {
		return tool.NewError(tool.ErrorTypeValidation, fmt.Sprintf("invalid route path %q: %v", path, err))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.handlers[path]; exists {
		return tool.NewError(tool.ErrorTypeValidation, fmt.Sprintf("route %q is already registered", path))
	}
	b.handlers[path] = nil
	b.routes = append(b.routes, path)
	b.router.Handle(path, handler).Methods(http.MethodGet)
	return nil
}

// Routes returns the registered paths in registration order.
func (b *Bridge) Routes() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, len(b.routes))
	copy(out, b.routes)
	return out
}

// Start binds the listener and begins serving.
//
// Parameters:
//   - port: The TCP port to bind.
//
// Returns:
//   - A CONNECTION error "port in use" when the address is taken, a
//     VALIDATION error when already started.
func (b *Bridge) Start(port int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return tool.NewError(tool.ErrorTypeValidation, "bridge already started")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		if isAddrInUse(err) {
			return tool.NewError(tool.ErrorTypeConnection, fmt.Sprintf("port in use: %d", port))
		}
		return tool.NewError(tool.ErrorTypeConnection, fmt.Sprintf("failed to bind port %d: %v", port, err))
	}

	b.listener = listener
	b.port = listener.Addr().(*net.TCPAddr).Port
	b.server = &http.Server{
		Handler:           b.rootHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	b.running = true
	b.startTime = time.Now()

	go func() {
		if err := b.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.GetLogger().Error("HTTP bridge serve failed", "error", err)
		}
	}()

	logging.GetLogger().Info("HTTP bridge listening", "port", b.port)
	return nil
}

func isAddrInUse(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}

// Stop closes the listener and waits for in-flight handlers. Calling Stop
// on a stopped bridge is a no-op.
//
// Parameters:
//   - ctx: Bounds the drain.
//
// Returns:
//   - The shutdown error, if draining failed.
func (b *Bridge) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	server := b.server
	b.running = false
	b.mu.Unlock()

	logging.GetLogger().Info("HTTP bridge stopping")
	return server.Shutdown(ctx)
}

// GetStatus returns the lifecycle snapshot.
func (b *Bridge) GetStatus() *Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	status := &Status{
		Running:      b.running,
		Port:         b.port,
		RequestCount: b.requestCount.Value(),
		ErrorCount:   b.errorCount.Value(),
	}
	if b.running {
		status.Uptime = time.Since(b.startTime)
	}
	return status
}

// Port returns the bound port; meaningful only while running. Binding port
// 0 picks a free port, which tests rely on.
func (b *Bridge) Port() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.port
}

// rootHandler applies CORS to every response, answers OPTIONS preflights,
// and delegates the rest to the route table.
func (b *Bridge) rootHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w.Header())
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		b.router.ServeHTTP(w, r)
	})
}

func setCORSHeaders(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	h.Set("Access-Control-Max-Age", "86400")
}

// ServeHTTP exposes the full bridge pipeline without a live listener.
// Tests drive it through httptest.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.rootHandler().ServeHTTP(w, r)
}

// wrap adapts a Handler into the net/http pipeline: counting, body
// parsing, error surfacing, and the request duration metric.
func (b *Bridge) wrap(path string, handler Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		b.requestCount.Inc()

		status := b.serveRoute(w, r, handler)
		if status >= http.StatusBadRequest {
			b.errorCount.Inc()
		}

		metrics.MeasureSinceWithLabels(metricRequestDuration, start, []metrics.Label{
			{Name: "method", Value: r.Method},
			{Name: "path", Value: path},
			{Name: "status", Value: strconv.Itoa(status)},
		})
	}
}

// serveRoute parses the body, invokes the handler, and writes the
// response. Returns the status code sent.
func (b *Bridge) serveRoute(w http.ResponseWriter, r *http.Request, handler Handler) int {
	body, parseErr := parseBody(r)
	if parseErr != nil {
		status := http.StatusBadRequest
		b.writeJSON(w, status, map[string]any{
			"error":   http.StatusText(status),
			"message": parseErr.Message,
		})
		return status
	}

	req := &Request{
		Method:  r.Method,
		Path:    r.URL.Path,
		Headers: r.Header,
		Query:   r.URL.Query(),
		Body:    body,
	}

	resp, err := handler(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		message := err.Error()
		if terr, ok := err.(*tool.Error); ok {
			if terr.Code != 0 {
				status = terr.Code
			}
			message = terr.Message
		}
		b.writeJSON(w, status, map[string]any{
			"error":   http.StatusText(status),
			"message": message,
		})
		return status
	}

	if resp == nil {
		w.WriteHeader(http.StatusOK)
		return http.StatusOK
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	if resp.ContentType != "" && resp.ContentType != "application/json" {
		w.Header().Set("Content-Type", resp.ContentType)
		w.WriteHeader(status)
		switch body := resp.Body.(type) {
		case string:
			_, _ = w.Write([]byte(body))
		case []byte:
			_, _ = w.Write(body)
		default:
			_, _ = fmt.Fprintf(w, "%v", body)
		}
		return status
	}
	b.writeJSON(w, status, resp.Body)
	return status
}

func (b *Bridge) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := fastJSON.NewEncoder(w).Encode(body); err != nil {
		logging.GetLogger().Error("Failed to encode response body", "error", err)
	}
}

func (b *Bridge) handleNotFound(w http.ResponseWriter, r *http.Request) {
	b.requestCount.Inc()
	b.errorCount.Inc()
	b.writeJSON(w, http.StatusNotFound, map[string]any{
		"error":           "Not Found",
		"message":         fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path),
		"availableRoutes": b.Routes(),
	})
}

func (b *Bridge) handleHealth(context.Context, *Request) (*Response, error) {
	healthy := b.healthFunc()
	status := http.StatusOK
	label := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		label = "unhealthy"
	}
	return &Response{
		StatusCode: status,
		Body: map[string]any{
			"status":    label,
			"uptime":    b.GetStatus().Uptime.Seconds(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}

func (b *Bridge) handleStatus(context.Context, *Request) (*Response, error) {
	status := b.GetStatus()
	errorRate := 0.0
	if status.RequestCount > 0 {
		errorRate = float64(status.ErrorCount) / float64(status.RequestCount)
	}
	return &Response{Body: map[string]any{
		"running":      status.Running,
		"port":         status.Port,
		"uptime":       status.Uptime.Seconds(),
		"requestCount": status.RequestCount,
		"errorCount":   status.ErrorCount,
		"errorRate":    errorRate,
	}}, nil
}

func (b *Bridge) handleRoutes(context.Context, *Request) (*Response, error) {
	return &Response{Body: map[string]any{"routes": b.Routes()}}, nil
}
