// Package stress implements the bounded-parallelism load harness described
// in spec §4.5: run N simulated events in batches of size B, inject a
// small random failure rate, and report throughput and latency
// percentiles.
package stress

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"qinfinity/clockid"
)

// Config bounds one Harness run.
type Config struct {
	EventCount   int
	Parallelism  int
	FailureRate  float64 // probability in [0,1) an event fails.
	MaxErrorRate float64 // pass criterion; default 0.05 (5%).
	MinWork      time.Duration
	MaxWork      time.Duration
}

// DefaultMaxErrorRate is the spec-mandated pass threshold.
const DefaultMaxErrorRate = 0.05

// EventResult is one simulated event's outcome.
type EventResult struct {
	Latency time.Duration
	Err     error
}

// Report summarizes one Harness run.
type Report struct {
	EventCount    int
	ErrorCount    int
	ErrorRate     float64
	ThroughputEPS float64
	P50           time.Duration
	P95           time.Duration
	P99           time.Duration
	Min           time.Duration
	Max           time.Duration
	Passed        bool
}

// Harness runs bounded-parallelism batches of simulated work.
type Harness struct {
	rng clockid.Source
}

// NewHarness constructs a Harness. rng drives both the injected-failure
// decision and the simulated work duration (design note "Determinism
// dials"). A seeded source yields the same sequence of draws, but events in
// a batch run in parallel goroutines, so which event receives which draw
// depends on scheduling when Parallelism > 1; latencies are wall-clock.
func NewHarness(rng clockid.Source) *Harness {
	return &Harness{rng: rng}
}

// Run executes cfg.EventCount events in batches of cfg.Parallelism,
// simulating each as a bounded random duration with a cfg.FailureRate
// chance of failing, and returns aggregate throughput/latency/error
// metrics.
func (h *Harness) Run(ctx context.Context, cfg Config) (Report, error) {
	if cfg.EventCount <= 0 {
		return Report{}, fmt.Errorf("stress: event count must be positive, got %d", cfg.EventCount)
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	maxErrorRate := cfg.MaxErrorRate
	if maxErrorRate <= 0 {
		maxErrorRate = DefaultMaxErrorRate
	}

	results := make([]EventResult, cfg.EventCount)
	start := time.Now()

	for batchStart := 0; batchStart < cfg.EventCount; batchStart += cfg.Parallelism {
		batchEnd := batchStart + cfg.Parallelism
		if batchEnd > cfg.EventCount {
			batchEnd = cfg.EventCount
		}
		var wg sync.WaitGroup
		for i := batchStart; i < batchEnd; i++ {
			if ctx.Err() != nil {
				results[i] = EventResult{Err: ctx.Err()}
				continue
			}
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				results[idx] = h.simulateOne(cfg)
			}(i)
		}
		wg.Wait()
	}

	totalDuration := time.Since(start)
	return summarize(results, totalDuration, maxErrorRate), nil
}

func (h *Harness) simulateOne(cfg Config) EventResult {
	eventStart := time.Now()

	minWork := cfg.MinWork
	maxWork := cfg.MaxWork
	if maxWork <= minWork {
		maxWork = minWork + time.Microsecond
	}
	jitterRange := maxWork - minWork
	work := minWork
	if jitterRange > 0 {
		work += time.Duration(h.rng.Float64() * float64(jitterRange))
	}
	if work > 0 {
		time.Sleep(work)
	}

	var err error
	if cfg.FailureRate > 0 && h.rng.Float64() < cfg.FailureRate {
		err = fmt.Errorf("stress: simulated failure")
	}
	return EventResult{Latency: time.Since(eventStart), Err: err}
}

func summarize(results []EventResult, totalDuration time.Duration, maxErrorRate float64) Report {
	latencies := make([]time.Duration, len(results))
	errorCount := 0
	for i, r := range results {
		latencies[i] = r.Latency
		if r.Err != nil {
			errorCount++
		}
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	errorRate := float64(errorCount) / float64(len(results))
	throughput := 0.0
	if totalDuration > 0 {
		throughput = float64(len(results)) / totalDuration.Seconds()
	}

	return Report{
		EventCount:    len(results),
		ErrorCount:    errorCount,
		ErrorRate:     errorRate,
		ThroughputEPS: throughput,
		P50:           percentile(latencies, 0.50),
		P95:           percentile(latencies, 0.95),
		P99:           percentile(latencies, 0.99),
		Min:           minDuration(latencies),
		Max:           maxDuration(latencies),
		Passed:        errorRate <= maxErrorRate,
	}
}

// percentile returns the value at rank p (0,1] over a pre-sorted slice
// using nearest-rank interpolation.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func minDuration(sorted []time.Duration) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	return sorted[0]
}

func maxDuration(sorted []time.Duration) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	return sorted[len(sorted)-1]
}
