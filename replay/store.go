package replay

import (
	"fmt"
	"sync"

	"qinfinity/pipeline"
)

// recordedRun is one pipeline execution kept for later replay.
type recordedRun struct {
	input  pipeline.StepInput
	result pipeline.Result
}

// RecordingStore keeps the original input and result of executed pipeline
// runs, keyed by execution id, so a later Replay can re-run the same
// recorded input and compare against the original result.
type RecordingStore struct {
	mu      sync.RWMutex
	records map[string]recordedRun
}

// NewRecordingStore constructs an empty RecordingStore.
func NewRecordingStore() *RecordingStore {
	return &RecordingStore{records: make(map[string]recordedRun)}
}

// Record stores the input and result of a completed pipeline run.
func (s *RecordingStore) Record(executionID string, input pipeline.StepInput, result pipeline.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[executionID] = recordedRun{input: input, result: result}
}

// Get retrieves the recorded input and result for executionID.
func (s *RecordingStore) Get(executionID string) (pipeline.StepInput, pipeline.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[executionID]
	if !ok {
		return pipeline.StepInput{}, pipeline.Result{}, fmt.Errorf("replay: no recorded run for execution %q", executionID)
	}
	return rec.input, rec.result, nil
}
