package pipeline

import (
	"context"
	"fmt"
	"time"

	"qinfinity/clockid"
	"qinfinity/errs"
	"qinfinity/ledger"
	"qinfinity/ports"
)

// StepTrace records one executed step's timing and hash linkage, for
// observability export and replay comparison.
type StepTrace struct {
	Name        StepName
	Duration    time.Duration
	InputHash   [32]byte
	OutputHash  [32]byte
	OutputBytes int
	Err         string
}

// Result is the full outcome of one pipeline run.
type Result struct {
	ExecutionID           string
	Steps                 []StepTrace
	IntegrityViolated     bool
	TotalDuration         time.Duration
	ThroughputBytesPerSec float64
	FinalOutput           StepOutput
	FinalOptions          map[string]string
	LedgerRecord          ledger.LedgerRecord
}

// Executor runs step chains and records a LedgerRecord per run.
type Executor struct {
	crypto ports.CryptoPort
	ledger *ledger.Engine
	ids    clockid.IdService
}

// NewExecutor constructs an Executor. crypto is used for the
// input/output hash-linkage check between step boundaries; ledger records
// one summary record per run.
func NewExecutor(crypto ports.CryptoPort, ledgerEngine *ledger.Engine, ids clockid.IdService) *Executor {
	return &Executor{crypto: crypto, ledger: ledgerEngine, ids: ids}
}

// Run executes steps in order over input, threading each step's output
// (data and metadata) into the next step's input. Before invoking a step,
// the executor hashes the data it is about to pass in; after the previous
// step produced that same data, it recorded its own output hash. The two
// must match, or the run is marked integrity-violated (this catches any
// accidental mutation of shared buffers between steps).
func (e *Executor) Run(ctx context.Context, executionID string, steps []Step, input StepInput) (Result, error) {
	if len(steps) == 0 {
		return Result{}, errs.New(errs.KindValidation, e.ids.NewID(), "pipeline: empty pipeline for execution %q", executionID)
	}

	result := Result{ExecutionID: executionID}
	start := time.Now()

	current := input
	var lastOutputHash [32]byte
	haveLastOutputHash := false

	for _, step := range steps {
		stepStart := time.Now()

		inputHash, err := e.crypto.Hash(ctx, current.Data)
		if err != nil {
			return Result{}, fmt.Errorf("pipeline: hash input for step %q: %w", step.Name, err)
		}
		if haveLastOutputHash && inputHash != lastOutputHash {
			result.IntegrityViolated = true
			result.Steps = append(result.Steps, StepTrace{
				Name:      step.Name,
				Duration:  time.Since(stepStart),
				InputHash: inputHash,
				Err:       "input hash does not match previous step's output hash",
			})
			break
		}

		output, err := step.Fn(ctx, current)
		duration := time.Since(stepStart)
		if err != nil {
			result.IntegrityViolated = true
			result.Steps = append(result.Steps, StepTrace{
				Name:      step.Name,
				Duration:  duration,
				InputHash: inputHash,
				Err:       err.Error(),
			})
			break
		}

		outputHash, err := e.crypto.Hash(ctx, output.Data)
		if err != nil {
			return Result{}, fmt.Errorf("pipeline: hash output for step %q: %w", step.Name, err)
		}

		result.Steps = append(result.Steps, StepTrace{
			Name:        step.Name,
			Duration:    duration,
			InputHash:   inputHash,
			OutputHash:  outputHash,
			OutputBytes: len(output.Data),
		})

		merged := mergeOptions(current.Options, output.Metadata)
		current = StepInput{Data: output.Data, Options: merged}
		lastOutputHash = outputHash
		haveLastOutputHash = true
		result.FinalOutput = StepOutput{Data: output.Data, Metadata: output.Metadata}
	}

	result.FinalOptions = current.Options
	result.TotalDuration = time.Since(start)
	if result.TotalDuration > 0 {
		result.ThroughputBytesPerSec = float64(len(result.FinalOutput.Data)) / result.TotalDuration.Seconds()
	}

	if e.ledger != nil {
		summary := fmt.Sprintf("pipeline steps=%d integrity_violated=%t", len(result.Steps), result.IntegrityViolated)
		rec, err := e.ledger.Append(ctx, executionID, summary)
		if err != nil {
			return result, fmt.Errorf("pipeline: append ledger record: %w", err)
		}
		result.LedgerRecord = rec
	}

	return result, nil
}

func mergeOptions(base map[string]string, overlay map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}
