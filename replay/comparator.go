// Package replay implements the determinism check described in spec §4.3:
// given a previously recorded pipeline run, re-execute it with the same
// recorded input and compare step counts, per-step hashes, and total
// duration against tolerances.
package replay

import (
	"math"
	"time"

	"qinfinity/pipeline"
)

// Tolerances bounds how much a replay run may diverge from the original
// and still be called deterministic.
type Tolerances struct {
	StepCountTolerance float64 // fraction, default 0.01 (1%)
	TimingTolerance    float64 // fraction, default 0.10 (10%)
}

// DefaultTolerances returns the spec-mandated defaults.
func DefaultTolerances() Tolerances {
	return Tolerances{StepCountTolerance: 0.01, TimingTolerance: 0.10}
}

// Severity classifies how a divergence was detected.
type Severity string

const (
	SeverityNone         Severity = "none"
	SeverityStructural   Severity = "structural" // step-count divergence exceeded tolerance
	SeverityHashMismatch Severity = "hash-mismatch"
	SeverityTiming       Severity = "timing"
)

// Verdict is the outcome of comparing an original run against a replay.
type Verdict struct {
	Deterministic       bool
	DivergenceAtStepID  string
	Severity            Severity
	StepCountDivergence float64
	TimingDivergence    float64
}

// Compare implements spec §4.3's determinism verdict. All three checks
// must hold for the verdict to be deterministic; the first one that fails
// determines divergence-at and severity, checked in the order the spec
// lists them: step count, then per-step hashes, then timing.
func Compare(original, candidate pipeline.Result, tol Tolerances) Verdict {
	stepDivergence := stepCountDivergence(len(original.Steps), len(candidate.Steps))
	if stepDivergence > tol.StepCountTolerance {
		return Verdict{
			Deterministic:       false,
			DivergenceAtStepID:  "pipeline-length",
			Severity:            SeverityStructural,
			StepCountDivergence: stepDivergence,
		}
	}

	compareLen := len(original.Steps)
	if len(candidate.Steps) < compareLen {
		compareLen = len(candidate.Steps)
	}
	for i := 0; i < compareLen; i++ {
		if original.Steps[i].OutputHash != candidate.Steps[i].OutputHash {
			return Verdict{
				Deterministic:       false,
				DivergenceAtStepID:  string(original.Steps[i].Name),
				Severity:            SeverityHashMismatch,
				StepCountDivergence: stepDivergence,
			}
		}
	}

	timingDivergence := durationDivergence(original.TotalDuration, candidate.TotalDuration)
	if timingDivergence > tol.TimingTolerance {
		return Verdict{
			Deterministic:       false,
			DivergenceAtStepID:  "total-duration",
			Severity:            SeverityTiming,
			StepCountDivergence: stepDivergence,
			TimingDivergence:    timingDivergence,
		}
	}

	return Verdict{
		Deterministic:       true,
		Severity:            SeverityNone,
		StepCountDivergence: stepDivergence,
		TimingDivergence:    timingDivergence,
	}
}

func stepCountDivergence(original, candidate int) float64 {
	if original == 0 {
		if candidate == 0 {
			return 0
		}
		return 1
	}
	return math.Abs(float64(candidate-original)) / float64(original)
}

func durationDivergence(original, candidate time.Duration) float64 {
	origSeconds := original.Seconds()
	if origSeconds == 0 {
		if candidate.Seconds() == 0 {
			return 0
		}
		return 1
	}
	return math.Abs(candidate.Seconds()-origSeconds) / origSeconds
}
