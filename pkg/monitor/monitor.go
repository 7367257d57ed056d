// Copyright 2025 Author(s) of Mane
// SPDX-License-Identifier: Apache-2.0

// Package monitor tracks in-flight requests and keeps a bounded window of
// completed ones. Records live from StartRequest to Finish, then roll into
// the completed ring; nothing is persisted across restarts.
package monitor

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mane-project/mane/pkg/logging"
	"github.com/mane-project/mane/pkg/metrics"
)

// completedRingSize caps the in-memory window of finished requests.
const completedRingSize = 1000

var (
	metricActiveRequests   = []string{"monitor", "requests", "active"}
	metricRequestCompleted = []string{"monitor", "request", "completed"}
)

// Request is a live tracking record for one in-flight request.
type Request struct {
	ID        string    `json:"id"`
	Tool      string    `json:"tool"`
	Endpoint  string    `json:"endpoint"`
	StartTime time.Time `json:"startTime"`
}

// CompletedRequest is a finished record in the completed ring.
type CompletedRequest struct {
	Request
	EndTime  time.Time     `json:"endTime"`
	Duration time.Duration `json:"duration"`
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
}

// Snapshot is the aggregate view surfaced by introspection endpoints.
type Snapshot struct {
	Uptime            time.Duration `json:"uptime"`
	ActiveRequests    int           `json:"activeRequests"`
	CompletedRequests int64         `json:"completedRequests"`
	ErrorCount        int64         `json:"errorCount"`
	AverageDurationMs float64       `json:"averageDurationMs"`
}

// Monitor tracks active and completed requests. Safe for concurrent use.
type Monitor struct {
	mu        sync.RWMutex
	startTime time.Time
	active    map[string]*Request
	completed []CompletedRequest

	completedCount int64
	errorCount     int64
	totalDuration  time.Duration
}

// New creates a Monitor with its uptime clock started.
func New() *Monitor {
	return &Monitor{
		startTime: time.Now(),
		active:    make(map[string]*Request),
	}
}

// StartRequest opens a tracking record and returns its id. The caller must
// pass the id back to Finish.
//
// Parameters:
//   - tool: The tool name, or "" for non-tool traffic.
//   - endpoint: The routed endpoint or HTTP path.
//
// Returns:
//   - The tracking id.
func (m *Monitor) StartRequest(tool, endpoint string) string {
	req := &Request{
		ID:        uuid.NewString(),
		Tool:      tool,
		Endpoint:  endpoint,
		StartTime: time.Now(),
	}

	m.mu.Lock()
	m.active[req.ID] = req
	activeCount := len(m.active)
	m.mu.Unlock()

	metrics.SetGauge(metricActiveRequests, float32(activeCount))
	return req.ID
}

// Finish closes a tracking record and rolls it into the completed ring.
// Finishing an unknown id is a no-op (logged at debug).
//
// Parameters:
//   - id: The tracking id from StartRequest.
//   - success: Whether the request succeeded.
//   - errMsg: The error message when success is false; ignored otherwise.
func (m *Monitor) Finish(id string, success bool, errMsg string) {
	m.mu.Lock()
	req, ok := m.active[id]
	if !ok {
		m.mu.Unlock()
		logging.GetLogger().Debug("Finish called for unknown request", "id", id)
		return
	}
	delete(m.active, id)

	now := time.Now()
	record := CompletedRequest{
		Request:  *req,
		EndTime:  now,
		Duration: now.Sub(req.StartTime),
		Success:  success,
	}
	if !success {
		record.Error = errMsg
		m.errorCount++
	}
	m.completed = append(m.completed, record)
	if len(m.completed) > completedRingSize {
		overflow := len(m.completed) - completedRingSize
		m.completed = m.completed[overflow:]
	}
	m.completedCount++
	m.totalDuration += record.Duration
	activeCount := len(m.active)
	m.mu.Unlock()

	metrics.SetGauge(metricActiveRequests, float32(activeCount))
	metrics.IncrCounterWithLabels(metricRequestCompleted, 1, []metrics.Label{
		{Name: "tool", Value: req.Tool},
		{Name: "success", Value: boolLabel(success)},
	})
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// ActiveRequests returns a copy of the live tracking records.
func (m *Monitor) ActiveRequests() []Request {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Request, 0, len(m.active))
	for _, req := range m.active {
		out = append(out, *req)
	}
	return out
}

// RecentCompleted returns up to n of the most recently completed records,
// newest last.
func (m *Monitor) RecentCompleted(n int) []CompletedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n <= 0 || n > len(m.completed) {
		n = len(m.completed)
	}
	out := make([]CompletedRequest, n)
	copy(out, m.completed[len(m.completed)-n:])
	return out
}

// GetSnapshot returns the aggregate monitoring view.
func (m *Monitor) GetSnapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	avg := 0.0
	if m.completedCount > 0 {
		avg = float64(m.totalDuration.Milliseconds()) / float64(m.completedCount)
	}
	return &Snapshot{
		Uptime:            time.Since(m.startTime),
		ActiveRequests:    len(m.active),
		CompletedRequests: m.completedCount,
		ErrorCount:        m.errorCount,
		AverageDurationMs: avg,
	}
}

// Uptime returns the elapsed time since the monitor was created.
func (m *Monitor) Uptime() time.Duration {
	return time.Since(m.startTime)
}
