// Copyright 2025 Author(s) of Mane
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorStartAndFinish(t *testing.T) {
	m := New()

	id := m.StartRequest("browser_navigate", "/tools/browser_navigate")
	require.NotEmpty(t, id)

	active := m.ActiveRequests()
	require.Len(t, active, 1)
	assert.Equal(t, "browser_navigate", active[0].Tool)

	m.Finish(id, true, "")
	assert.Empty(t, m.ActiveRequests())

	snap := m.GetSnapshot()
	assert.Equal(t, int64(1), snap.CompletedRequests)
	assert.Equal(t, int64(0), snap.ErrorCount)
	assert.Equal(t, 0, snap.ActiveRequests)
}

func TestMonitorFinishFailure(t *testing.T) {
	m := New()
	id := m.StartRequest("dom_query", "/tools/dom_query")
	m.Finish(id, false, "selector not found")

	snap := m.GetSnapshot()
	assert.Equal(t, int64(1), snap.ErrorCount)

	recent := m.RecentCompleted(10)
	require.Len(t, recent, 1)
	assert.False(t, recent[0].Success)
	assert.Equal(t, "selector not found", recent[0].Error)
}

func TestMonitorFinishUnknownID(t *testing.T) {
	m := New()
	m.Finish("no-such-id", true, "")
	assert.Equal(t, int64(0), m.GetSnapshot().CompletedRequests)
}

func TestMonitorCompletedRingCap(t *testing.T) {
	m := New()
	for i := 0; i < 1010; i++ {
		id := m.StartRequest("browser_navigate", fmt.Sprintf("/tools/n%d", i))
		m.Finish(id, true, "")
	}

	assert.Len(t, m.RecentCompleted(0), 1000)
	// The counter keeps the true total even after pruning.
	assert.Equal(t, int64(1010), m.GetSnapshot().CompletedRequests)
}

func TestMonitorRecentCompletedOrder(t *testing.T) {
	m := New()
	for i := 0; i < 3; i++ {
		id := m.StartRequest("browser_navigate", fmt.Sprintf("/tools/n%d", i))
		m.Finish(id, true, "")
	}

	recent := m.RecentCompleted(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "/tools/n1", recent[0].Endpoint)
	assert.Equal(t, "/tools/n2", recent[1].Endpoint)
}

func TestMonitorConcurrent(t *testing.T) {
	m := New()
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				id := m.StartRequest("browser_navigate", "/tools/browser_navigate")
				m.Finish(id, j%10 != 0, "transient failure")
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	snap := m.GetSnapshot()
	assert.Equal(t, int64(800), snap.CompletedRequests)
	assert.Equal(t, int64(80), snap.ErrorCount)
	assert.Empty(t, m.ActiveRequests())
}
