// Copyright 2025 Author(s) of Mane
// SPDX-License-Identifier: Apache-2.0

// Package metrics provides utilities for collecting and exposing application metrics.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/armon/go-metrics"
	"github.com/armon/go-metrics/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Label is an alias for metrics.Label. It represents a key-value pair for labeling metrics.
type Label = metrics.Label

var initOnce sync.Once

// Initialize prepares the metrics system with a Prometheus sink. It sets up a
// global metrics collector used throughout the application; the foundation
// exposes it on the bridge's /metrics route.
//
// Returns:
//   - An error if the sink creation or global registration fails.
func Initialize() error {
	var err error
	initOnce.Do(func() {
		var sink *prometheus.PrometheusSink
		sink, err = prometheus.NewPrometheusSink()
		if err != nil {
			return
		}

		conf := metrics.DefaultConfig("mane")
		conf.EnableHostname = false

		if _, err = metrics.NewGlobal(conf, sink); err != nil {
			return
		}
	})
	return err
}

// Handler returns an http.Handler for the /metrics endpoint.
//
// Returns:
//   - An http.Handler that serves the Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncrCounter increments a counter.
//
// Parameters:
//   - name: The name of the counter (as a path).
//   - val: The amount to increment.
func IncrCounter(name []string, val float32) {
	metrics.IncrCounter(name, val)
}

// IncrCounterWithLabels increments a counter with labels.
//
// Parameters:
//   - name: The name of the counter (as a path).
//   - val: The amount to increment.
//   - labels: The labels to apply.
func IncrCounterWithLabels(name []string, val float32, labels []metrics.Label) {
	metrics.IncrCounterWithLabels(name, val, labels)
}

// SetGauge sets the value of a gauge.
//
// Parameters:
//   - name: The name of the gauge (as a path).
//   - val: The value to set.
func SetGauge(name []string, val float32) {
	metrics.SetGauge(name, val)
}

// MeasureSince measures the time since a given start time and records it.
//
// Parameters:
//   - name: The name of the metric (as a path).
//   - start: The start time.
func MeasureSince(name []string, start time.Time) {
	metrics.MeasureSince(name, start)
}

// MeasureSinceWithLabels measures the time since a given start time and records it with labels.
//
// Parameters:
//   - name: The name of the metric (as a path).
//   - start: The start time.
//   - labels: The labels to apply.
func MeasureSinceWithLabels(name []string, start time.Time, labels []metrics.Label) {
	metrics.MeasureSinceWithLabels(name, start, labels)
}

// AddSample adds a sample to a histogram/summary.
//
// Parameters:
//   - name: The name of the metric (as a path).
//   - val: The value to sample.
func AddSample(name []string, val float32) {
	metrics.AddSample(name, val)
}

// AddSampleWithLabels adds a sample to a histogram/summary with labels.
//
// Parameters:
//   - name: The name of the metric (as a path).
//   - val: The value to sample.
//   - labels: The labels to apply.
func AddSampleWithLabels(name []string, val float32, labels []metrics.Label) {
	metrics.AddSampleWithLabels(name, val, labels)
}
