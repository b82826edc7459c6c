package harness

import (
	"math"
	"path/filepath"
	"time"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/checkpoints"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/ktolle/CNTK/datagen"
	"github.com/ktolle/CNTK/models"
)

// Runner executes one scenario at a time against a shared backend. The
// backend is acquired once by the caller and passed in explicitly; the
// runner owns everything else (model context, trainer, datasets) for the
// duration of a single Run call.
type Runner struct {
	Backend backends.Backend

	// CheckpointDir, if set, receives a checkpoint of each passing
	// scenario's trained model, under a subdirectory named after the
	// scenario.
	CheckpointDir string

	// Settings holds context-parameter overrides in the usual
	// "scope/param=value;..." syntax, applied on top of every scenario's
	// hyperparameters.
	Settings string

	// Progress attaches a terminal progress bar to each training loop.
	Progress bool
}

// Run executes the scenario and always returns a Result: every panic or
// error raised by the model builder, data provider, trainer or the
// underlying runtime is caught at this boundary and converted into a failing
// Result carrying the error kind.
func (r *Runner) Run(scenario Scenario) Result {
	start := time.Now()
	result := Result{
		Scenario: scenario.Name,
		Accuracy: math.NaN(),
		Verdict:  Fail,
		Kind:     KindRuntime,
	}
	err := exceptions.TryCatch[error](func() {
		result = r.run(scenario)
	})
	if err != nil {
		result = Result{
			Scenario: scenario.Name,
			Accuracy: math.NaN(),
			Verdict:  Fail,
			Kind:     classifyError(err),
			Err:      err,
		}
	}
	result.Elapsed = time.Since(start)
	return result
}

func (r *Runner) run(scenario Scenario) Result {
	fail := func(kind FailureKind, err error) Result {
		return Result{Scenario: scenario.Name, Accuracy: math.NaN(), Verdict: Fail, Kind: kind, Err: err}
	}

	modelFn, err := scenario.Builder.Build(scenario.Data.InputShape(), scenario.Data.NumClasses())
	if err != nil {
		return fail(classifyError(err), err)
	}

	trainDS, evalDS, err := scenario.Data.Datasets(r.Backend, scenario.Hyper.BatchSize)
	if err != nil {
		return fail(classifyError(err), err)
	}
	defer finalizeDataset(trainDS)
	defer finalizeDataset(evalDS)

	// The model context is the scenario's model handle: created here, seeded
	// for reproducibility, released when the run finishes.
	ctx := context.New()
	ctx.SetRNGStateFromSeed(scenario.Hyper.Seed)
	defer ctx.Finalize()

	hyper := scenario.Hyper
	if r.Settings != "" {
		hyper.Settings = r.Settings
	}
	trainer := NewTrainer(r.Backend, ctx, modelFn, hyper)
	if r.Progress {
		trainer.AttachProgressBar()
	}
	state, err := trainer.Run(trainDS, evalDS, hyper.Epochs)

	result := Result{
		Scenario:   scenario.Name,
		Accuracy:   trainer.Accuracy(),
		Trajectory: trainer.Trajectory(),
	}
	switch state {
	case Converged:
		result.Verdict = Pass
		result.Kind = KindNone
	case Diverged:
		result.Verdict = Fail
		result.Kind = KindDiverged
		if err != nil && !errors.Is(err, errLossDiverged) {
			// A runtime failure was mapped to a Diverged terminal state;
			// report it with the original message.
			result.Kind = KindRuntime
			result.Err = err
		}
	default:
		result.Verdict = Fail
		result.Kind = KindExhausted
		// Set when the wall-clock budget ran out; nil when the epoch
		// budget did.
		result.Err = err
	}

	if result.Passed() && r.CheckpointDir != "" {
		if err := r.saveCheckpoint(ctx, scenario.Name); err != nil {
			klog.Warningf("Scenario %q passed but saving its checkpoint failed: %+v", scenario.Name, err)
		}
	}
	return result
}

// saveCheckpoint persists the trained model variables and hyperparameters.
func (r *Runner) saveCheckpoint(ctx *context.Context, name string) error {
	handler, err := checkpoints.Build(ctx).
		Dir(filepath.Join(r.CheckpointDir, name)).
		Keep(1).
		Done()
	if err != nil {
		return err
	}
	return handler.Save()
}

// anything implementing FinalizeAll can release its tensors eagerly;
// InMemoryDataset does.
func finalizeDataset(ds any) {
	if finalizer, ok := ds.(interface{ FinalizeAll() }); ok {
		finalizer.FinalizeAll()
	}
}

func classifyError(err error) FailureKind {
	switch {
	case errors.Is(err, datagen.ErrData):
		return KindData
	case errors.Is(err, models.ErrShapeMismatch):
		return KindShapeMismatch
	case errors.Is(err, errLossDiverged):
		return KindDiverged
	default:
		return KindRuntime
	}
}
