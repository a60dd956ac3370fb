package gossip

import (
	"context"
	"testing"
	"time"

	"qinfinity/clockid"
)

func TestDistributorFairDispatchAcrossIdleNodes(t *testing.T) {
	d := NewDistributor(clockid.NewSeeded(1, 2), time.Millisecond)
	for _, id := range []string{"node-a", "node-b", "node-c"} {
		d.RegisterNode(id)
	}

	jobs := make([]Job, 12)
	for i := range jobs {
		jobs[i] = Job{ID: string(rune('a' + i))}
	}

	report := d.Dispatch(context.Background(), jobs, 0)
	if report.TotalJobs != 12 {
		t.Fatalf("expected 12 total jobs, got %d", report.TotalJobs)
	}
	if report.LostJobs != 0 {
		t.Fatalf("expected no lost jobs with idle nodes and no simulated work, got %d", report.LostJobs)
	}
	if report.JainFairnessIndex < 0.9 {
		t.Fatalf("expected a high fairness index across 3 idle nodes, got %f", report.JainFairnessIndex)
	}
	if len(report.StarvedNodes) != 0 {
		t.Fatalf("expected no starved nodes, got %v", report.StarvedNodes)
	}
}

func TestDistributorLosesJobsWhenBackoffExhausted(t *testing.T) {
	d := NewDistributor(clockid.NewSeeded(3, 4), time.Millisecond)
	d.SetMaxBackoff(0) // any contention immediately exceeds the budget
	d.RegisterNode("only-node")

	jobs := make([]Job, 5)
	for i := range jobs {
		jobs[i] = Job{ID: string(rune('a' + i))}
	}

	// Hold the only node busy for the whole dispatch so every other job
	// finds no eligible node and is lost immediately.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	report := d.Dispatch(ctx, jobs, 50*time.Millisecond)
	if report.LostJobs == 0 {
		t.Fatalf("expected some jobs to be lost when only one node exists and max-backoff is 0")
	}
	if report.LostJobsRatio <= 0 {
		t.Fatalf("expected a nonzero lost-jobs ratio, got %f", report.LostJobsRatio)
	}
}
