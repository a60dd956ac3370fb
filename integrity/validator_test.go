package integrity

import (
	"context"
	"errors"
	"testing"
	"time"

	"qinfinity/clockid"
	"qinfinity/ports"
	"qinfinity/ports/sandbox"
	"qinfinity/storage"
)

func TestValidatorAggregateHealthEscalatesCriticalUnreachable(t *testing.T) {
	v := NewValidator(nil)
	v.RegisterModule("ledger", true, ModuleCheckerFunc(func(ctx context.Context) (HealthStatus, error) {
		return HealthHealthy, errors.New("unreachable")
	}))
	v.RegisterModule("stress", false, ModuleCheckerFunc(func(ctx context.Context) (HealthStatus, error) {
		return HealthDegraded, nil
	}))

	report := v.AggregateHealth(context.Background())
	if report.OverallStatus != HealthCritical {
		t.Fatalf("expected critical overall status, got %s", report.OverallStatus)
	}
	if report.ModuleStatuses["ledger"] != HealthUnreachable {
		t.Fatalf("expected ledger status unreachable, got %s", report.ModuleStatuses["ledger"])
	}
}

func TestValidatorAggregateHealthFoldsWorstNonCritical(t *testing.T) {
	v := NewValidator(nil)
	v.RegisterModule("a", false, ModuleCheckerFunc(func(ctx context.Context) (HealthStatus, error) {
		return HealthHealthy, nil
	}))
	v.RegisterModule("b", false, ModuleCheckerFunc(func(ctx context.Context) (HealthStatus, error) {
		return HealthDegraded, nil
	}))

	report := v.AggregateHealth(context.Background())
	if report.OverallStatus != HealthDegraded {
		t.Fatalf("expected degraded overall status, got %s", report.OverallStatus)
	}
}

func TestValidatorReportsEventBusCoherence(t *testing.T) {
	bus := sandbox.NewEventBusPort()
	_, _ = bus.Subscribe(context.Background(), "*", func(ctx context.Context, env ports.Envelope) error { return nil })
	v := NewValidator(bus)
	report := v.AggregateHealth(context.Background())
	if report.EventBus.ActiveSubscriptions < 0 {
		t.Fatalf("expected non-negative active subscriptions")
	}
}

func TestCheckDataFlowReportsUnhealthyHop(t *testing.T) {
	hops := map[string]func(ctx context.Context) error{
		"compress": func(ctx context.Context) error { return nil },
		"store":    func(ctx context.Context) error { return errors.New("store unreachable") },
	}
	report := CheckDataFlow(context.Background(), hops, []string{"compress", "store"})
	if report.Healthy {
		t.Fatalf("expected unhealthy data flow report")
	}
	if len(report.Hops) != 2 {
		t.Fatalf("expected 2 hops, got %d", len(report.Hops))
	}
	if report.Hops[1].Healthy {
		t.Fatalf("expected store hop to be unhealthy")
	}
}

func TestQflowCoherenceRequiresAllFourDimensions(t *testing.T) {
	q := QflowCoherence{DistributedExecutionOK: true, NodeCoordinationOK: true, WorkflowIntegrityOK: true, ServerlessLivenessOK: false}
	if q.Coherent() {
		t.Fatalf("expected incoherent when one dimension fails")
	}
	q.ServerlessLivenessOK = true
	if !q.Coherent() {
		t.Fatalf("expected coherent when all dimensions pass")
	}
}

func TestRunKillFirstLauncherTestPassesOnlyOnConjunction(t *testing.T) {
	goodObservation := ContinuityObservation{
		ServiceAvailability:       0.9,
		DataIntegrityOK:           true,
		PeerConnectivityOK:        true,
		ConsensusQuorumAchievable: true,
	}

	// Continuity passes, but recovery took too long.
	slow := RunKillFirstLauncherTest(goodObservation, 1*time.Second, 3*time.Second)
	if slow.Passed {
		t.Fatalf("expected failure when recovery exceeds 2x baseline")
	}
	if !slow.ContinuityPassed {
		t.Fatalf("expected continuity to pass independently")
	}

	// Recovery is fast, but continuity is below threshold.
	badObservation := goodObservation
	badObservation.ServiceAvailability = 0.5
	fastButDiscontinuous := RunKillFirstLauncherTest(badObservation, 1*time.Second, 1*time.Second)
	if fastButDiscontinuous.Passed {
		t.Fatalf("expected failure when continuity score is below threshold")
	}

	// Both hold.
	ok := RunKillFirstLauncherTest(goodObservation, 1*time.Second, 2*time.Second)
	if !ok.Passed {
		t.Fatalf("expected pass when continuity and recovery duration both hold")
	}
}

func TestComposeAttestationPublishesOnlyWhenCompliant(t *testing.T) {
	ctx := context.Background()
	ids := clockid.NewSequentialIDService("attest")
	clock := clockid.NewFixedClock(time.Unix(0, 0))
	crypto := sandbox.NewCryptoPort()
	storagePort := sandbox.NewContentStoragePort(storage.NewMemDB(), clock)

	compliantInputs := DecentralizationInputs{
		UsesCentralDatabase: false,
		UsesMessageBroker:   false,
		ContentStorageWired: true,
		ActiveGossipNodes:   3,
	}
	goodObservation := ContinuityObservation{
		ServiceAvailability:       0.9,
		DataIntegrityOK:           true,
		PeerConnectivityOK:        true,
		ConsensusQuorumAchievable: true,
	}

	attestation, err := ComposeAttestation(ctx, ids, clock, crypto, storagePort, compliantInputs, goodObservation, time.Second, 1500*time.Millisecond)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if attestation.OverallStatus != "compliant" {
		t.Fatalf("expected compliant attestation, got %s", attestation.OverallStatus)
	}
	if attestation.ContentAddress == "" {
		t.Fatalf("expected a published content address for a compliant attestation")
	}

	nonCompliantInputs := compliantInputs
	nonCompliantInputs.UsesCentralDatabase = true
	nonCompliant, err := ComposeAttestation(ctx, ids, clock, crypto, storagePort, nonCompliantInputs, goodObservation, time.Second, 1500*time.Millisecond)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if nonCompliant.OverallStatus != "non_compliant" {
		t.Fatalf("expected non_compliant attestation, got %s", nonCompliant.OverallStatus)
	}
	if nonCompliant.ContentAddress != "" {
		t.Fatalf("expected no publication for a non-compliant attestation")
	}
}

func TestEvaluateGatesEscalatesCriticalRegressionToFailed(t *testing.T) {
	thresholds := DefaultGateThresholds()

	degraded := EvaluateGates(GateObservation{
		P95:           100 * time.Millisecond,
		P99:           150 * time.Millisecond,
		ErrorBurnRate: 0.01,
		CacheHitRate:  0.80,
	}, thresholds)
	if degraded.Status != "degraded" {
		t.Fatalf("expected degraded status from a cache-hit-rate miss alone, got %s", degraded.Status)
	}

	failed := EvaluateGates(GateObservation{
		P95:           100 * time.Millisecond,
		P99:           250 * time.Millisecond,
		ErrorBurnRate: 0.01,
		CacheHitRate:  0.90,
	}, thresholds)
	if failed.Status != "failed" {
		t.Fatalf("expected failed status from a p99 miss, got %s", failed.Status)
	}

	passed := EvaluateGates(GateObservation{
		P95:           50 * time.Millisecond,
		P99:           100 * time.Millisecond,
		ErrorBurnRate: 0.01,
		CacheHitRate:  0.95,
	}, thresholds)
	if passed.Status != "passed" {
		t.Fatalf("expected passed status, got %s", passed.Status)
	}
}
