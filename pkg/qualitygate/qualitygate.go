// Copyright 2025 Author(s) of Mane
// SPDX-License-Identifier: Apache-2.0

// Package qualitygate scores registered tools against compliance,
// performance, and security checks. The gates are an operator-facing
// evaluation hook; they never influence routing.
package qualitygate

import (
	"context"
	"fmt"
	"time"

	"github.com/mane-project/mane/pkg/logging"
	"github.com/mane-project/mane/pkg/tool"
	"github.com/samber/lo"
)

// Performance score thresholds. Strict mode raises the passing bar without
// changing the scoring itself.
const (
	fastScore = 95
	slowScore = 75

	defaultThreshold = 70
	strictThreshold  = 90
)

// dangerousProbe is the known-malicious parameter set fed to Validate by
// the security gate. A tool that accepts it verbatim loses points.
var dangerousProbe = map[string]any{
	"input": "<script>alert('xss')</script>; DROP TABLE users; --",
}

// Result is the outcome of one gate or of a composite run.
type Result struct {
	Valid  bool     `json:"valid"`
	Score  int      `json:"score"`
	Errors []string `json:"errors,omitempty"`
}

// Gate evaluates one quality dimension of a tool.
type Gate interface {
	// Name identifies the gate in composite reports.
	Name() string
	// Evaluate scores the tool. Never returns nil.
	Evaluate(ctx context.Context, t tool.Tool) *Result
}

// InterfaceGate checks that the tool contract surface is complete: identity
// fields populated, a non-nil schema, and a well-formed endpoint.
type InterfaceGate struct{}

// Name implements Gate.
func (InterfaceGate) Name() string { return "interface-compliance" }

// Evaluate implements Gate.
func (InterfaceGate) Evaluate(_ context.Context, t tool.Tool) *Result {
	var errs []string
	if t.Name() == "" {
		errs = append(errs, "name is empty")
	}
	if t.Endpoint() == "" || t.Endpoint()[0] != '/' {
		errs = append(errs, "endpoint must begin with /")
	}
	if t.Description() == "" {
		errs = append(errs, "description is empty")
	}
	if t.Schema() == nil {
		errs = append(errs, "schema is nil")
	} else if t.Schema().Type == "" {
		errs = append(errs, "schema type is empty")
	}
	if t.Status() == nil {
		errs = append(errs, "status returned nil")
	}

	score := 100 - 20*len(errs)
	if score < 0 {
		score = 0
	}
	return &Result{Valid: len(errs) == 0, Score: score, Errors: errs}
}

// PerformanceGate invokes a representative execution and scores by elapsed
// time: under 1 s scores 95, under 5 s scores 75, 5 s or more fails.
type PerformanceGate struct {
	// Params is the representative parameter set. Defaults to empty.
	Params map[string]any
	// Strict raises the passing threshold from 70 to 90.
	Strict bool
}

// Name implements Gate.
func (g PerformanceGate) Name() string { return "performance" }

// Evaluate implements Gate.
func (g PerformanceGate) Evaluate(ctx context.Context, t tool.Tool) *Result {
	start := time.Now()
	_, err := t.Execute(ctx, g.Params)
	elapsed := time.Since(start)

	if err != nil {
		return &Result{Valid: false, Score: 0,
			Errors: []string{fmt.Sprintf("representative execution failed: %v", err)}}
	}

	var score int
	var errs []string
	switch {
	case elapsed < time.Second:
		score = fastScore
	case elapsed < 5*time.Second:
		score = slowScore
	default:
		return &Result{Valid: false, Score: 0,
			Errors: []string{fmt.Sprintf("execution took %s, exceeding the 5s ceiling", elapsed.Round(time.Millisecond))}}
	}

	threshold := defaultThreshold
	if g.Strict {
		threshold = strictThreshold
	}
	valid := score >= threshold
	if !valid {
		errs = append(errs, fmt.Sprintf("score %d below threshold %d", score, threshold))
	}
	return &Result{Valid: valid, Score: score, Errors: errs}
}

// SecurityGate feeds a known-dangerous parameter set to Validate. A
// validator that accepts the probe, or a missing validation result,
// penalizes the score.
type SecurityGate struct{}

// Name implements Gate.
func (SecurityGate) Name() string { return "security" }

// Evaluate implements Gate.
func (SecurityGate) Evaluate(_ context.Context, t tool.Tool) *Result {
	validation := t.Validate(dangerousProbe)
	if validation == nil {
		return &Result{Valid: false, Score: 40,
			Errors: []string{"validate returned no result for a dangerous probe"}}
	}
	if validation.Valid {
		return &Result{Valid: true, Score: 60,
			Errors: []string{"validator accepted a dangerous parameter set"}}
	}
	return &Result{Valid: true, Score: 100}
}

// CompositeResult aggregates a full gate run for one tool.
type CompositeResult struct {
	Result
	PerGate map[string]*Result `json:"perGate"`
}

// Runner executes a fixed gate sequence against tools.
type Runner struct {
	gates []Gate
}

// NewRunner builds the default gate sequence. Strict mode tightens the
// performance threshold.
func NewRunner(strict bool) *Runner {
	return &Runner{gates: []Gate{
		InterfaceGate{},
		PerformanceGate{Strict: strict},
		SecurityGate{},
	}}
}

// NewRunnerWithGates builds a runner over a custom gate sequence.
func NewRunnerWithGates(gates ...Gate) *Runner {
	return &Runner{gates: gates}
}

// Evaluate runs every gate against the tool. The composite score is the
// average of the gate scores; composite validity is the conjunction of the
// gate validities.
//
// Parameters:
//   - ctx: Bounds gate executions.
//   - t: The tool under evaluation.
//
// Returns:
//   - The composite result with per-gate detail.
func (r *Runner) Evaluate(ctx context.Context, t tool.Tool) *CompositeResult {
	composite := &CompositeResult{
		Result:  Result{Valid: true},
		PerGate: make(map[string]*Result, len(r.gates)),
	}
	if len(r.gates) == 0 {
		return composite
	}

	for _, gate := range r.gates {
		result := gate.Evaluate(ctx, t)
		composite.PerGate[gate.Name()] = result
		composite.Valid = composite.Valid && result.Valid
		composite.Errors = append(composite.Errors, lo.Map(result.Errors, func(e string, _ int) string {
			return gate.Name() + ": " + e
		})...)
	}
	total := lo.SumBy(lo.Values(composite.PerGate), func(res *Result) int { return res.Score })
	composite.Score = total / len(r.gates)

	logging.GetLogger().Debug("Quality gate evaluation finished",
		"tool", t.Name(), "valid", composite.Valid, "score", composite.Score)
	return composite
}
