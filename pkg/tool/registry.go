// Copyright 2025 Author(s) of Mane
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/mane-project/mane/pkg/logging"
	"github.com/mane-project/mane/pkg/metrics"
	"github.com/mane-project/mane/pkg/sanitize"
	xsync "github.com/puzpuzpuz/xsync/v4"
	"github.com/samber/lo"
)

const (
	// healthRefreshInterval is the period of the background health loop.
	healthRefreshInterval = 60 * time.Second
	// healthStaleAfter forces a synchronous refresh on GetHealth when the
	// cache is older than this.
	healthStaleAfter = 30 * time.Second
	// statusCallTimeout bounds a single tool Status() call during refresh. A
	// stuck tool is marked unhealthy rather than blocking the loop.
	statusCallTimeout = 5 * time.Second
)

var (
	metricToolRegistered  = []string{"registry", "tool", "registered"}
	metricRequestDuration = []string{"registry", "request", "duration"}
)

// Health is the aggregate health snapshot returned by GetHealth.
type Health struct {
	TotalTools          int       `json:"totalTools"`
	HealthyTools        int       `json:"healthyTools"`
	LastHealthCheck     time.Time `json:"lastHealthCheck"`
	AverageResponseTime float64   `json:"averageResponseTime"`
}

// Statistics is the counter snapshot returned by GetStatistics.
type Statistics struct {
	RequestCount          int64          `json:"requestCount"`
	ErrorCount            int64          `json:"errorCount"`
	TotalResponseTimeMs   int64          `json:"totalResponseTimeMs"`
	AverageResponseTimeMs float64        `json:"averageResponseTimeMs"`
	ToolCount             int            `json:"toolCount"`
	Categories            map[string]int `json:"categories"`
}

// Filter narrows a Discover call. Zero values match everything.
type Filter struct {
	// Category matches tools whose derived category equals this value.
	Category string
	// Capability matches tools whose named boolean capability is set.
	Capability string
	// Healthy, when non-nil, matches tools whose cached health equals it.
	Healthy *bool
}

// Registry holds the tool catalog, enforces the tool contract at
// registration, routes requests by endpoint, and tracks tool health. It is
// the single routing authority: both the MCP handler and the HTTP bridge
// converge on Route.
type Registry struct {
	mu         sync.RWMutex
	byName     map[string]Tool
	byEndpoint map[string]Tool
	byCategory map[string][]Tool
	ordered    []Tool

	healthCache     *ttlcache.Cache[string, bool]
	lastHealthCheck time.Time
	healthMu        sync.Mutex

	history *HistoryManager

	requestCount      *xsync.Counter
	errorCount        *xsync.Counter
	totalResponseTime *xsync.Counter
}

// NewRegistry creates an empty Registry. Call Run to start the background
// health loop.
func NewRegistry() *Registry {
	cache := ttlcache.New[string, bool](
		ttlcache.WithTTL[string, bool](2*healthRefreshInterval),
		ttlcache.WithDisableTouchOnHit[string, bool](),
	)
	return &Registry{
		byName:            make(map[string]Tool),
		byEndpoint:        make(map[string]Tool),
		byCategory:        make(map[string][]Tool),
		healthCache:       cache,
		history:           NewHistoryManager(),
		requestCount:      xsync.NewCounter(),
		errorCount:        xsync.NewCounter(),
		totalResponseTime: xsync.NewCounter(),
	}
}

// Register validates the tool contract and inserts the tool into all three
// indexes and the health cache. Duplicate names or endpoints are rejected;
// there is no silent replacement.
//
// Parameters:
//   - t: The tool to register.
//
// Returns:
//   - An error of type VALIDATION if the contract is violated or the tool
//     collides with an existing registration.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return NewError(ErrorTypeValidation, "tool must not be nil")
	}
	if t.Name() == "" {
		return NewError(ErrorTypeValidation, "tool name must not be empty")
	}
	if t.Description() == "" {
		return NewError(ErrorTypeValidation, "tool description must not be empty")
	}
	if t.Schema() == nil {
		return NewError(ErrorTypeValidation, "tool schema must not be nil")
	}
	if err := sanitize.ValidateEndpoint(t.Endpoint()); err != nil {
		return NewError(ErrorTypeValidation, fmt.Sprintf("invalid endpoint %q: %v", t.Endpoint(), err))
	}
	if !sanitize.MatchesEndpointPattern(t.Endpoint()) {
		return NewError(ErrorTypeValidation, fmt.Sprintf("endpoint %q does not match the allowed pattern", t.Endpoint()))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[t.Name()]; exists {
		return NewError(ErrorTypeValidation, fmt.Sprintf("tool %q is already registered", t.Name()))
	}
	if _, exists := r.byEndpoint[t.Endpoint()]; exists {
		return NewError(ErrorTypeValidation, fmt.Sprintf("endpoint %q is already registered", t.Endpoint()))
	}

	category := Category(t.Name())
	r.byName[t.Name()] = t
	r.byEndpoint[t.Endpoint()] = t
	r.byCategory[category] = append(r.byCategory[category], t)
	r.ordered = append(r.ordered, t)

	healthy := initialHealth(t)
	r.healthCache.Set(t.Name(), healthy, ttlcache.DefaultTTL)
	r.history.AddRecord(t.Name(), healthy)

	metrics.IncrCounterWithLabels(metricToolRegistered, 1, []metrics.Label{
		{Name: "tool", Value: t.Name()},
		{Name: "category", Value: category},
	})
	logging.GetLogger().Info("Registered tool",
		"tool", t.Name(), "endpoint", t.Endpoint(), "category", category, "healthy", healthy)
	return nil
}

// initialHealth stamps the cache from the tool's own status report. A status
// call that panics marks the tool unhealthy.
func initialHealth(t Tool) (healthy bool) {
	defer func() {
		if recover() != nil {
			healthy = false
		}
	}()
	status := t.Status()
	return status != nil && status.Healthy
}

// Unregister atomically removes a tool from all indexes and the health
// cache.
//
// Parameters:
//   - name: The tool name.
//
// Returns:
//   - A VALIDATION error if the tool is not registered.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byName[name]
	if !ok {
		return NewError(ErrorTypeValidation, fmt.Sprintf("tool not found: %q", name))
	}

	delete(r.byName, name)
	delete(r.byEndpoint, t.Endpoint())

	category := Category(name)
	r.byCategory[category] = lo.Filter(r.byCategory[category], func(item Tool, _ int) bool {
		return item.Name() != name
	})
	if len(r.byCategory[category]) == 0 {
		delete(r.byCategory, category)
	}
	r.ordered = lo.Filter(r.ordered, func(item Tool, _ int) bool {
		return item.Name() != name
	})

	r.healthCache.Delete(name)
	r.history.Clear(name)

	logging.GetLogger().Info("Unregistered tool", "tool", name)
	return nil
}

// Discover returns the tools matching the filter, in registration order.
// The ordering is an externally observable contract: MCP clients rely on a
// stable listing.
//
// Parameters:
//   - filter: Optional narrowing criteria. A nil filter matches everything.
//
// Returns:
//   - The matching tools.
func (r *Registry) Discover(filter *Filter) []Tool {
	r.mu.RLock()
	snapshot := make([]Tool, len(r.ordered))
	copy(snapshot, r.ordered)
	r.mu.RUnlock()

	if filter == nil {
		return snapshot
	}

	return lo.Filter(snapshot, func(t Tool, _ int) bool {
		if filter.Category != "" && Category(t.Name()) != filter.Category {
			return false
		}
		if filter.Capability != "" && !t.Capabilities().Has(filter.Capability) {
			return false
		}
		if filter.Healthy != nil && r.IsHealthy(t.Name()) != *filter.Healthy {
			return false
		}
		return true
	})
}

// IsHealthy reports the cached health of a tool. An absent cache entry is
// treated as healthy.
func (r *Registry) IsHealthy(name string) bool {
	item := r.healthCache.Get(name)
	if item == nil {
		return true
	}
	return item.Value()
}

// Route is the hot path: it validates the endpoint, sanitizes the
// parameters, resolves the tool, checks health, validates parameters against
// the tool, and executes under the tool's timeout. Counters and the request
// duration metric are updated for every routed call.
//
// Parameters:
//   - ctx: The request context.
//   - endpoint: The routing key.
//   - params: The raw parameter map. Sanitized before validation/execution.
//
// Returns:
//   - The structured Result. Routing failures are returned as failed Results
//     with the appropriate error type; this method never returns nil.
func (r *Registry) Route(ctx context.Context, endpoint string, params map[string]any) *Result {
	if err := sanitize.ValidateEndpoint(endpoint); err != nil {
		return NewErrorResult(NewError(ErrorTypeValidation, fmt.Sprintf("invalid endpoint: %v", err)))
	}
	if !sanitize.MatchesEndpointPattern(endpoint) {
		return NewErrorResult(NewError(ErrorTypeValidation, fmt.Sprintf("endpoint %q does not match the allowed pattern", endpoint)))
	}

	params = sanitize.CleanParams(params)

	r.mu.RLock()
	t, ok := r.byEndpoint[endpoint]
	r.mu.RUnlock()
	if !ok {
		return NewErrorResult(NewError(ErrorTypeValidation,
			fmt.Sprintf("no tool registered for endpoint %q", endpoint)).
			WithDetails(map[string]any{"registeredEndpoints": r.Endpoints()}))
	}

	log := logging.GetLogger().With("tool", t.Name(), "endpoint", endpoint)
	log.Debug("Routing request", "params", logging.RedactParams(params))

	if !r.IsHealthy(t.Name()) {
		return r.finishRoute(t, endpoint, time.Now(), NewErrorResult(
			NewError(ErrorTypeExecution, fmt.Sprintf("tool unhealthy: %q", t.Name()))))
	}

	if validation := t.Validate(params); validation != nil && !validation.Valid {
		return r.finishRoute(t, endpoint, time.Now(), NewErrorResult(
			NewError(ErrorTypeValidation, "parameter validation failed").
				WithDetails(map[string]any{"errors": validation.Errors})))
	}

	start := time.Now()
	result := r.executeWithTimeout(ctx, t, params)
	return r.finishRoute(t, endpoint, start, result)
}

// executeWithTimeout runs the tool under its capability timeout. Expiry
// yields a recoverable TIMEOUT result; a panic inside the tool yields an
// EXECUTION result.
func (r *Registry) executeWithTimeout(ctx context.Context, t Tool, params map[string]any) *Result {
	timeout := t.Capabilities().Timeout()
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result *Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", rec)}
			}
		}()
		res, err := t.Execute(execCtx, params)
		done <- outcome{result: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return NewErrorResult(NewError(ErrorTypeExecution, out.err.Error()))
		}
		if out.result == nil {
			return NewErrorResult(NewError(ErrorTypeExecution, "tool returned no result"))
		}
		return out.result
	case <-execCtx.Done():
		if ctx.Err() != nil {
			return NewErrorResult(NewError(ErrorTypeInternal, "request cancelled"))
		}
		return NewErrorResult(NewError(ErrorTypeTimeout,
			fmt.Sprintf("tool %q timed out after %s", t.Name(), timeout)))
	}
}

// finishRoute updates counters and emits the request duration metric.
func (r *Registry) finishRoute(t Tool, endpoint string, start time.Time, result *Result) *Result {
	duration := time.Since(start)
	r.requestCount.Inc()
	r.totalResponseTime.Add(duration.Milliseconds())
	if !result.Success {
		r.errorCount.Inc()
	}

	metrics.MeasureSinceWithLabels(metricRequestDuration, start, []metrics.Label{
		{Name: "tool", Value: t.Name()},
		{Name: "endpoint", Value: endpoint},
		{Name: "success", Value: fmt.Sprintf("%t", result.Success)},
	})
	return result
}

// GetTool retrieves a tool by name.
func (r *Registry) GetTool(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

// GetToolByEndpoint retrieves a tool by its routing key.
func (r *Registry) GetToolByEndpoint(endpoint string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byEndpoint[endpoint]
	return t, ok
}

// ListTools returns all registered tools in registration order.
func (r *Registry) ListTools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// GetToolsByCategory returns the tools in a category, in registration order.
func (r *Registry) GetToolsByCategory(category string) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, len(r.byCategory[category]))
	copy(out, r.byCategory[category])
	return out
}

// Endpoints returns the registered routing keys in registration order.
func (r *Registry) Endpoints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Map(r.ordered, func(t Tool, _ int) string { return t.Endpoint() })
}

// GetStatistics returns a snapshot of the registry counters.
func (r *Registry) GetStatistics() *Statistics {
	r.mu.RLock()
	toolCount := len(r.ordered)
	categories := make(map[string]int, len(r.byCategory))
	for category, tools := range r.byCategory {
		categories[category] = len(tools)
	}
	r.mu.RUnlock()

	requests := r.requestCount.Value()
	total := r.totalResponseTime.Value()
	avg := 0.0
	if requests > 0 {
		avg = float64(total) / float64(requests)
	}
	return &Statistics{
		RequestCount:          requests,
		ErrorCount:            r.errorCount.Value(),
		TotalResponseTimeMs:   total,
		AverageResponseTimeMs: avg,
		ToolCount:             toolCount,
		Categories:            categories,
	}
}

// GetHealth returns the aggregate health snapshot. A cache older than 30 s
// triggers a synchronous refresh first, so callers never observe stale
// health beyond that window.
//
// Parameters:
//   - ctx: Bounds the refresh when one is needed.
//
// Returns:
//   - The aggregate Health snapshot.
func (r *Registry) GetHealth(ctx context.Context) *Health {
	r.healthMu.Lock()
	stale := time.Since(r.lastHealthCheck) > healthStaleAfter
	r.healthMu.Unlock()
	if stale {
		r.RefreshHealth(ctx)
	}

	tools := r.ListTools()
	healthy := lo.CountBy(tools, func(t Tool) bool { return r.IsHealthy(t.Name()) })

	r.healthMu.Lock()
	last := r.lastHealthCheck
	r.healthMu.Unlock()

	stats := r.GetStatistics()
	return &Health{
		TotalTools:          len(tools),
		HealthyTools:        healthy,
		LastHealthCheck:     last,
		AverageResponseTime: stats.AverageResponseTimeMs,
	}
}

// RefreshHealth re-stamps the health cache by calling Status on every tool in
// parallel. A status call that times out, panics, or reports unhealthy marks
// the tool unhealthy; no cache entry is left stale after a refresh.
//
// Parameters:
//   - ctx: Cancels the refresh early. Tools not checked keep their previous
//     cache entry.
func (r *Registry) RefreshHealth(ctx context.Context) {
	tools := r.ListTools()

	var wg sync.WaitGroup
	for _, t := range tools {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(t Tool) {
			defer wg.Done()
			healthy := checkStatus(t)
			r.healthCache.Set(t.Name(), healthy, ttlcache.DefaultTTL)
			r.history.AddRecord(t.Name(), healthy)
		}(t)
	}
	wg.Wait()

	r.healthMu.Lock()
	r.lastHealthCheck = time.Now()
	r.healthMu.Unlock()
}

// checkStatus calls Status under its own timeout. A stuck or panicking tool
// reports unhealthy.
func checkStatus(t Tool) bool {
	done := make(chan bool, 1)
	go func() {
		defer func() {
			if recover() != nil {
				done <- false
			}
		}()
		status := t.Status()
		done <- status != nil && status.Healthy
	}()
	select {
	case healthy := <-done:
		return healthy
	case <-time.After(statusCallTimeout):
		return false
	}
}

// History returns the health history manager for introspection endpoints.
func (r *Registry) History() *HistoryManager {
	return r.history
}

// Run drives the background health loop: a refresh every 60 s until the
// context is cancelled. Refresh failures are logged and do not abort the
// loop.
//
// Parameters:
//   - ctx: Cancels the loop; observed within one tick.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(healthRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logging.GetLogger().Debug("Health loop stopped")
			return
		case <-ticker.C:
			func() {
				defer func() {
					if rec := recover(); rec != nil {
						logging.GetLogger().Warn("Health refresh failed", "panic", rec)
					}
				}()
				r.RefreshHealth(ctx)
			}()
		}
	}
}
