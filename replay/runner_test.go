package replay

import (
	"context"
	"testing"

	"qinfinity/clockid"
	"qinfinity/ledger"
	"qinfinity/pipeline"
	"qinfinity/ports/sandbox"
	"qinfinity/storage"
)

func newTestRunner(t *testing.T) (*Runner, pipeline.Ports) {
	t.Helper()
	p := pipeline.Ports{
		Crypto:    sandbox.NewCryptoPort(),
		Storage:   sandbox.NewContentStoragePort(storage.NewMemDB(), nil),
		Index:     sandbox.NewIndexPort(),
		Audit:     sandbox.NewAuditPort(nil),
		Actor:     "tester",
		Namespace: "replay-ns",
	}
	ids := clockid.NewSequentialIDService("test")
	ledgerEngine, err := ledger.NewEngine(storage.NewMemDB(), clockid.SystemClock{}, ids, "node-a", 0, nil)
	if err != nil {
		t.Fatalf("new ledger engine: %v", err)
	}
	exec := pipeline.NewExecutor(p.Crypto, ledgerEngine, ids)
	runner := NewRunner(exec, NewRecordingStore(), DefaultTolerances())
	return runner, p
}

func TestRunnerReplayDeterministicForIdenticalInput(t *testing.T) {
	runner, p := newTestRunner(t)
	ctx := context.Background()
	input := pipeline.StepInput{Data: []byte("replay me"), Options: map[string]string{"name": "replay-blob"}}

	if _, err := runner.RunAndRecord(ctx, "exec-1", pipeline.ForwardSteps(p), input); err != nil {
		t.Fatalf("run and record: %v", err)
	}

	verdict, err := runner.Replay(ctx, "exec-1", pipeline.ForwardSteps(p))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !verdict.Deterministic {
		t.Fatalf("expected deterministic verdict, got %+v", verdict)
	}
}

func TestRunnerReplayDetectsHashMismatch(t *testing.T) {
	runner, p := newTestRunner(t)
	ctx := context.Background()
	input := pipeline.StepInput{Data: []byte("replay me"), Options: map[string]string{"name": "replay-blob"}}

	if _, err := runner.RunAndRecord(ctx, "exec-1", pipeline.ForwardSteps(p), input); err != nil {
		t.Fatalf("run and record: %v", err)
	}

	// A different CryptoPort instance has a different encryption key, so
	// the encrypt step's ciphertext (and every downstream hash) diverges.
	candidatePorts := p
	candidatePorts.Crypto = sandbox.NewCryptoPort()
	divergentExecutor := pipeline.NewExecutor(candidatePorts.Crypto, nil, clockid.NewSequentialIDService("replay"))
	divergentRunner := NewRunner(divergentExecutor, runner.store, DefaultTolerances())

	verdict, err := divergentRunner.Replay(ctx, "exec-1", pipeline.ForwardSteps(candidatePorts))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if verdict.Deterministic {
		t.Fatalf("expected non-deterministic verdict due to differing encryption keys")
	}
	if verdict.Severity != SeverityHashMismatch {
		t.Fatalf("expected hash-mismatch severity, got %q", verdict.Severity)
	}
}
