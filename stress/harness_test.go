package stress

import (
	"context"
	"testing"
	"time"

	"qinfinity/clockid"
)

func TestHarnessRunReportsThroughputAndLatency(t *testing.T) {
	h := NewHarness(clockid.NewSeeded(7, 11))
	report, err := h.Run(context.Background(), Config{
		EventCount:  50,
		Parallelism: 5,
		FailureRate: 0,
		MinWork:     time.Microsecond,
		MaxWork:     50 * time.Microsecond,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.EventCount != 50 {
		t.Fatalf("expected 50 events, got %d", report.EventCount)
	}
	if report.ErrorCount != 0 {
		t.Fatalf("expected no errors with zero failure rate, got %d", report.ErrorCount)
	}
	if !report.Passed {
		t.Fatalf("expected harness to pass with zero error rate")
	}
	if report.ThroughputEPS <= 0 {
		t.Fatalf("expected positive throughput, got %f", report.ThroughputEPS)
	}
	if report.P50 > report.P95 || report.P95 > report.P99 {
		t.Fatalf("expected p50 <= p95 <= p99, got %v/%v/%v", report.P50, report.P95, report.P99)
	}
}

func TestHarnessFailsAboveMaxErrorRate(t *testing.T) {
	h := NewHarness(clockid.NewSeeded(1, 1))
	report, err := h.Run(context.Background(), Config{
		EventCount:   200,
		Parallelism:  10,
		FailureRate:  0.5,
		MaxErrorRate: 0.05,
		MinWork:      time.Microsecond,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Passed {
		t.Fatalf("expected harness to fail with a 50%% failure rate against a 5%% budget, error rate was %f", report.ErrorRate)
	}
}

func TestHarnessRejectsNonPositiveEventCount(t *testing.T) {
	h := NewHarness(clockid.NewSeeded(0, 0))
	if _, err := h.Run(context.Background(), Config{EventCount: 0}); err == nil {
		t.Fatalf("expected error for zero event count")
	}
}
