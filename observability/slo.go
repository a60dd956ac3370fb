package observability

import (
	"context"
	"time"

	"qinfinity/clockid"
	"qinfinity/ports"
)

// Targets holds the SLO thresholds spec.md's Observability Core evaluates
// recorded request windows against.
type Targets struct {
	P50         time.Duration
	P95         time.Duration
	P99         time.Duration
	ErrorBudget float64 // fraction, e.g. 0.001 for 0.1%
	MinRps      float64
}

// DefaultTargets returns the documented SLO defaults: p50=50ms, p95=150ms,
// p99=200ms, error-budget=0.1%, minRps=10.
func DefaultTargets() Targets {
	return Targets{
		P50:         50 * time.Millisecond,
		P95:         150 * time.Millisecond,
		P99:         200 * time.Millisecond,
		ErrorBudget: 0.001,
		MinRps:      10,
	}
}

// SLOEvaluator pairs a Recorder's sliding-window stats against Targets and
// emits an "slo-violation" event when p99 or the error-rate breaches its
// threshold.
type SLOEvaluator struct {
	recorder *Recorder
	bus      ports.EventBusPort
	ids      clockid.IdService
	clock    clockid.Clock
	targets  Targets
}

// NewSLOEvaluator constructs an SLOEvaluator. A zero-value targets uses
// DefaultTargets.
func NewSLOEvaluator(recorder *Recorder, bus ports.EventBusPort, ids clockid.IdService, clock clockid.Clock, targets Targets) *SLOEvaluator {
	if targets == (Targets{}) {
		targets = DefaultTargets()
	}
	return &SLOEvaluator{recorder: recorder, bus: bus, ids: ids, clock: clock, targets: targets}
}

// Violation describes why a path/method breached its SLO.
type Violation struct {
	Path                string
	Method              string
	P99Breached         bool
	ErrorBudgetBreached bool
	Stats               Stats
}

// Evaluate checks the current window for path/method and, if it breaches
// either the p99 latency target or the error budget, publishes an
// "slo-violation" event and returns the violation detail.
func (e *SLOEvaluator) Evaluate(ctx context.Context, path, method string) (*Violation, error) {
	stats := e.recorder.Stats(path, method)
	if stats.Count == 0 {
		return nil, nil
	}

	v := Violation{
		Path:                path,
		Method:              method,
		P99Breached:         stats.P99 > e.targets.P99,
		ErrorBudgetBreached: stats.ErrorRate > e.targets.ErrorBudget,
		Stats:               stats,
	}
	if !v.P99Breached && !v.ErrorBudgetBreached {
		return nil, nil
	}

	if e.bus != nil {
		err := e.bus.Publish(ctx, "slo-violation", ports.Envelope{
			EventID:   e.ids.NewID(),
			Topic:     "slo-violation",
			Timestamp: e.clock.Now(),
			Actor:     ports.Actor{Identity: "observability-core", Role: "slo-evaluator"},
			Payload: map[string]any{
				"path":                  path,
				"method":                method,
				"p99_ms":                stats.P99.Milliseconds(),
				"error_rate":            stats.ErrorRate,
				"p99_breached":          v.P99Breached,
				"error_budget_breached": v.ErrorBudgetBreached,
			},
		})
		if err != nil {
			return &v, err
		}
	}
	return &v, nil
}
