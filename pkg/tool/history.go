// Copyright 2025 Author(s) of Mane
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"sync"
	"time"
)

// HealthRecord represents a single health check result.
type HealthRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Healthy   bool      `json:"healthy"`
}

// HistoryManager keeps a bounded per-tool history of health check results.
// The registry stamps it on registration and on every refresh.
type HistoryManager struct {
	mu      sync.RWMutex
	history map[string][]HealthRecord
	maxSize int
}

// NewHistoryManager creates a history manager storing the last 1000 checks
// per tool.
func NewHistoryManager() *HistoryManager {
	return &HistoryManager{
		history: make(map[string][]HealthRecord),
		maxSize: 1000,
	}
}

// AddRecord appends a health record for a tool, pruning the oldest entries
// past the size cap.
func (hm *HistoryManager) AddRecord(tool string, healthy bool) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.history[tool] = append(hm.history[tool], HealthRecord{
		Timestamp: time.Now(),
		Healthy:   healthy,
	})

	if len(hm.history[tool]) > hm.maxSize {
		overflow := len(hm.history[tool]) - hm.maxSize
		hm.history[tool] = hm.history[tool][overflow:]
	}
}

// GetHistory returns a copy of the health history for a tool.
func (hm *HistoryManager) GetHistory(tool string) []HealthRecord {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	if records, ok := hm.history[tool]; ok {
		dst := make([]HealthRecord, len(records))
		copy(dst, records)
		return dst
	}
	return []HealthRecord{}
}

// Clear removes the history for a tool. Called on unregistration.
func (hm *HistoryManager) Clear(tool string) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	delete(hm.history, tool)
}
