package quorum

import (
	"context"
	"fmt"
	"testing"
	"time"

	"qinfinity/clockid"
)

func allApprove(confidence float64) VoteRequester {
	return func(ctx context.Context, nodeID string) (Vote, error) {
		return Vote{NodeID: nodeID, Decision: DecisionApprove, Confidence: confidence}, nil
	}
}

func TestCoordinateReachesQuorumOnFirstPass(t *testing.T) {
	c := NewCoordinator(clockid.NewSequentialIDService("round"), clockid.NewFixedClock(time.Unix(0, 0)), time.Millisecond)
	round, err := c.Coordinate(context.Background(), Params{
		ExecutionID:   "exec-1",
		StepID:        "store",
		OperationType: OperationDefault,
		Participants:  []string{"n1", "n2", "n3", "n4", "n5"},
		RequestVote:   allApprove(0.95),
		Deadline:      50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("coordinate: %v", err)
	}
	if !round.Reached {
		t.Fatalf("expected quorum reached")
	}
	if round.Decision != DecisionApprove {
		t.Fatalf("expected approve decision, got %s", round.Decision)
	}
	if round.Confidence < 0.8 {
		t.Fatalf("expected high confidence, got %f", round.Confidence)
	}
	if len(round.RecoveryLog) != 0 {
		t.Fatalf("expected no recovery attempts, got %d", len(round.RecoveryLog))
	}
}

func TestCoordinatePaymentRequiresHigherThreshold(t *testing.T) {
	c := NewCoordinator(clockid.NewSequentialIDService("round"), clockid.NewFixedClock(time.Unix(0, 0)), time.Millisecond)

	// Only 3 of 5 nodes respond; payment needs 4/5 so the first pass
	// should fail the threshold check and fall through to recovery.
	respondedOnce := map[string]bool{}
	flaky := func(ctx context.Context, nodeID string) (Vote, error) {
		if nodeID == "n4" || nodeID == "n5" {
			if !respondedOnce[nodeID] {
				respondedOnce[nodeID] = true
				return Vote{}, fmt.Errorf("timeout")
			}
			return Vote{NodeID: nodeID, Decision: DecisionApprove, Confidence: 0.9}, nil
		}
		return Vote{NodeID: nodeID, Decision: DecisionApprove, Confidence: 0.9}, nil
	}

	round, err := c.Coordinate(context.Background(), Params{
		ExecutionID:   "exec-2",
		StepID:        "settle",
		OperationType: OperationPayment,
		Participants:  []string{"n1", "n2", "n3", "n4", "n5"},
		RequestVote:   flaky,
		Deadline:      50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("coordinate: %v", err)
	}
	if !round.Reached {
		t.Fatalf("expected quorum reached after retry recovery")
	}
	if len(round.RecoveryLog) == 0 {
		t.Fatalf("expected at least one recovery attempt")
	}
	if round.RecoveryLog[0].Action != "retry_unresponsive_nodes" {
		t.Fatalf("expected first recovery action to retry unresponsive nodes, got %s", round.RecoveryLog[0].Action)
	}
}

func TestCoordinateFallsBackAfterExhaustingRecovery(t *testing.T) {
	c := NewCoordinator(clockid.NewSequentialIDService("round"), clockid.NewFixedClock(time.Unix(0, 0)), time.Millisecond)

	alwaysTimeout := func(ctx context.Context, nodeID string) (Vote, error) {
		return Vote{}, fmt.Errorf("timeout")
	}

	round, err := c.Coordinate(context.Background(), Params{
		ExecutionID:   "exec-3",
		StepID:        "propose",
		OperationType: OperationGovernance,
		Participants:  []string{"n1", "n2", "n3"},
		RequestVote:   alwaysTimeout,
		Deadline:      10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("coordinate: %v", err)
	}
	if round.Reached {
		t.Fatalf("expected quorum never reached with zero responsive nodes")
	}
	if len(round.RecoveryLog) != maxRecoveryAttempts {
		t.Fatalf("expected all %d recovery attempts to run, got %d", maxRecoveryAttempts, len(round.RecoveryLog))
	}
	if round.RecoveryLog[maxRecoveryAttempts-1].Action != "fallback_simple_consensus" {
		t.Fatalf("expected the final attempt to be the fallback mechanism, got %s", round.RecoveryLog[maxRecoveryAttempts-1].Action)
	}
}

func TestArchivedVotesStripSignatures(t *testing.T) {
	c := NewCoordinator(clockid.NewSequentialIDService("round"), clockid.NewFixedClock(time.Unix(0, 0)), time.Millisecond)
	signedVote := func(ctx context.Context, nodeID string) (Vote, error) {
		return Vote{NodeID: nodeID, Decision: DecisionApprove, Confidence: 0.9, Signature: []byte("sig")}, nil
	}

	round, err := c.Coordinate(context.Background(), Params{
		ExecutionID:   "exec-4",
		StepID:        "store",
		OperationType: OperationDefault,
		Participants:  []string{"n1", "n2", "n3"},
		RequestVote:   signedVote,
		Deadline:      10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("coordinate: %v", err)
	}
	// archivedVote has no Signature field, so the type itself strips
	// signatures; the loop checks that archiving keeps each vote's node id.
	for _, v := range round.Votes {
		if v.NodeID == "" {
			t.Fatalf("expected archived votes to keep node ids")
		}
	}
}
