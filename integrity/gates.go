package integrity

import "time"

// GateThresholds bounds one Performance Gates evaluation.
type GateThresholds struct {
	MaxP95           time.Duration
	MaxP99           time.Duration
	MaxErrorBurnRate float64 // fraction, e.g. 0.10 for 10%.
	MinCacheHitRate  float64 // fraction, e.g. 0.85 for 85%.
}

// DefaultGateThresholds are the spec-mandated gate bounds.
func DefaultGateThresholds() GateThresholds {
	return GateThresholds{
		MaxP95:           150 * time.Millisecond,
		MaxP99:           200 * time.Millisecond,
		MaxErrorBurnRate: 0.10,
		MinCacheHitRate:  0.85,
	}
}

// GateObservation is the set of measurements a Performance Gates check runs
// against.
type GateObservation struct {
	P95           time.Duration
	P99           time.Duration
	ErrorBurnRate float64
	CacheHitRate  float64
}

// GateFailure names one gate that did not clear its threshold.
type GateFailure struct {
	Gate      string
	Observed  float64
	Threshold float64
}

// GateReport is the outcome of a Performance Gates evaluation.
type GateReport struct {
	Failures []GateFailure
	Status   string // "passed", "degraded", or "failed"
}

// critical regression: the kind of gate miss that immediately escalates to
// "failed" rather than "degraded" regardless of how many gates pass.
func isCriticalRegression(f GateFailure) bool {
	return f.Gate == "p99" || f.Gate == "error_burn_rate"
}

// EvaluateGates checks obs against thresholds, returning every failing gate
// and an overall status. A critical regression (p99 or error-burn-rate miss)
// always yields "failed"; any other single miss yields "degraded"; no
// misses yields "passed".
func EvaluateGates(obs GateObservation, thresholds GateThresholds) GateReport {
	var failures []GateFailure

	if obs.P95 > thresholds.MaxP95 {
		failures = append(failures, GateFailure{Gate: "p95", Observed: obs.P95.Seconds(), Threshold: thresholds.MaxP95.Seconds()})
	}
	if obs.P99 > thresholds.MaxP99 {
		failures = append(failures, GateFailure{Gate: "p99", Observed: obs.P99.Seconds(), Threshold: thresholds.MaxP99.Seconds()})
	}
	if obs.ErrorBurnRate > thresholds.MaxErrorBurnRate {
		failures = append(failures, GateFailure{Gate: "error_burn_rate", Observed: obs.ErrorBurnRate, Threshold: thresholds.MaxErrorBurnRate})
	}
	if obs.CacheHitRate < thresholds.MinCacheHitRate {
		failures = append(failures, GateFailure{Gate: "cache_hit_rate", Observed: obs.CacheHitRate, Threshold: thresholds.MinCacheHitRate})
	}

	status := "passed"
	for _, f := range failures {
		if isCriticalRegression(f) {
			status = "failed"
			break
		}
		status = "degraded"
	}

	return GateReport{Failures: failures, Status: status}
}
