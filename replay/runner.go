package replay

import (
	"context"
	"fmt"

	"qinfinity/pipeline"
)

// Runner ties an Executor and a RecordingStore together to implement the
// full determinism check: re-run the same pipeline with the original
// recorded input and compare.
type Runner struct {
	executor *pipeline.Executor
	store    *RecordingStore
	tol      Tolerances
}

// NewRunner constructs a Runner. Pass DefaultTolerances() unless the
// caller has configured tighter or looser bounds.
func NewRunner(executor *pipeline.Executor, store *RecordingStore, tol Tolerances) *Runner {
	return &Runner{executor: executor, store: store, tol: tol}
}

// RunAndRecord executes steps over input and records the result for later
// replay comparison under executionID.
func (r *Runner) RunAndRecord(ctx context.Context, executionID string, steps []pipeline.Step, input pipeline.StepInput) (pipeline.Result, error) {
	result, err := r.executor.Run(ctx, executionID, steps, input)
	if err != nil {
		return result, err
	}
	r.store.Record(executionID, input, result)
	return result, nil
}

// Replay fetches the original recorded input for executionID, re-runs it
// through steps, and returns the determinism verdict comparing the two
// runs (spec §4.3).
func (r *Runner) Replay(ctx context.Context, executionID string, steps []pipeline.Step) (Verdict, error) {
	originalInput, originalResult, err := r.store.Get(executionID)
	if err != nil {
		return Verdict{}, err
	}

	replayExecutionID := executionID + ":replay"
	candidateResult, err := r.executor.Run(ctx, replayExecutionID, steps, originalInput)
	if err != nil {
		return Verdict{}, fmt.Errorf("replay: re-run execution %q: %w", executionID, err)
	}

	return Compare(originalResult, candidateResult, r.tol), nil
}
