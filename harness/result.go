package harness

import (
	"fmt"
	"time"
)

// Verdict of one scenario run.
type Verdict int

const (
	Pass Verdict = iota
	Fail
)

func (v Verdict) String() string {
	if v == Pass {
		return "PASS"
	}
	return "FAIL"
}

// FailureKind classifies why a scenario failed. KindNone is reserved for
// passing results.
type FailureKind int

const (
	KindNone FailureKind = iota

	// KindData: malformed or missing input data. No retry.
	KindData

	// KindShapeMismatch: the dataset shape is incompatible with the model
	// topology. A configuration bug, fatal to this scenario only.
	KindShapeMismatch

	// KindDiverged: the loss became non-finite during training.
	KindDiverged

	// KindExhausted: the epoch (or wall-clock) budget was reached without
	// crossing the accuracy threshold.
	KindExhausted

	// KindRuntime: a failure from the underlying computation-graph runtime,
	// with the original message preserved.
	KindRuntime
)

func (k FailureKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindData:
		return "data error"
	case KindShapeMismatch:
		return "shape mismatch"
	case KindDiverged:
		return "diverged"
	case KindExhausted:
		return "exhausted"
	default:
		return "runtime error"
	}
}

// Result of one scenario run. Produced exactly once per scenario and
// immutable thereafter; the driver collects them in registration order.
type Result struct {
	Scenario string

	// Accuracy is the final evaluation accuracy. NaN when training never
	// reached an evaluation.
	Accuracy float64

	// Trajectory holds the evaluation accuracy after each completed epoch.
	Trajectory []float64

	Verdict Verdict
	Kind    FailureKind

	// Err carries the failure detail for KindData, KindShapeMismatch,
	// KindRuntime and wall-clock KindExhausted results. Nil otherwise.
	Err error

	Elapsed time.Duration
}

// Passed reports whether the scenario met its threshold.
func (r *Result) Passed() bool { return r.Verdict == Pass }

func (r *Result) String() string {
	if r.Passed() {
		return fmt.Sprintf("%s: %s (accuracy=%.4f, %s)", r.Scenario, r.Verdict, r.Accuracy, r.Elapsed.Round(time.Millisecond))
	}
	if r.Err != nil {
		return fmt.Sprintf("%s: %s (%s: %v, %s)", r.Scenario, r.Verdict, r.Kind, r.Err, r.Elapsed.Round(time.Millisecond))
	}
	return fmt.Sprintf("%s: %s (%s, accuracy=%.4f, %s)", r.Scenario, r.Verdict, r.Kind, r.Accuracy, r.Elapsed.Round(time.Millisecond))
}
