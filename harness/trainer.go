package harness

import (
	"math"
	"time"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers/batchnorm"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/ml/train/losses"
	"github.com/gomlx/gomlx/pkg/ml/train/metrics"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/pkg/errors"
)

// TrainerState is the trainer's state machine:
//
//	Idle → Running → {Converged, Diverged, Exhausted}
type TrainerState int

const (
	Idle TrainerState = iota
	Running
	Converged
	Diverged
	Exhausted
)

func (s TrainerState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Converged:
		return "converged"
	case Diverged:
		return "diverged"
	default:
		return "exhausted"
	}
}

// AccuracyTolerance absorbs the nondeterminism of floating-point summation
// order when comparing the evaluation accuracy against the threshold.
const AccuracyTolerance = 1e-6

// errLossDiverged aborts the training loop from the divergence watch hook.
var errLossDiverged = errors.New("loss diverged")

const accuracyShortName = "#acc"

// Trainer drives the training of one model to a terminal state: it runs
// whole epochs over the training dataset, watches the per-step loss for
// divergence and evaluates the accuracy threshold between epochs.
//
// A Trainer belongs to a single scenario run: its context, compiled graphs
// and training state are never shared across scenarios.
type Trainer struct {
	trainer *train.Trainer
	loop    *train.Loop

	state       TrainerState
	epoch       int
	runningLoss float64
	accuracy    float64
	trajectory  []float64
	threshold   float64
	budget      time.Duration
}

// NewTrainer wires model, loss, optimizer and metrics into a train.Trainer
// following the hyperparameters, and attaches the divergence watch to the
// training loop. The optimizer is selected through context parameters, so
// hyper.Settings overrides can reach it. Invalid settings throw; the runner
// catches them at the scenario boundary.
func NewTrainer(backend backends.Backend, ctx *context.Context, modelFn train.ModelFn, hyper Hyperparameters) *Trainer {
	ctx.SetParam(optimizers.ParamOptimizer, hyper.Optimizer)
	ctx.SetParam(optimizers.ParamLearningRate, hyper.LearningRate)
	if hyper.Settings != "" {
		if _, err := commandline.ParseContextSettings(ctx, hyper.Settings); err != nil {
			panic(errors.WithMessagef(err, "applying context settings %q", hyper.Settings))
		}
	}

	meanAccuracy := metrics.NewSparseCategoricalAccuracy("Mean Accuracy", accuracyShortName)
	movingAccuracy := metrics.NewMovingAverageSparseCategoricalAccuracy("Moving Average Accuracy", "~acc", 0.01)

	trainer := train.NewTrainer(backend, ctx, modelFn,
		losses.SparseCategoricalCrossEntropyLogits,
		optimizers.FromContext(ctx),
		[]metrics.Interface{movingAccuracy}, // trainMetrics
		[]metrics.Interface{meanAccuracy})   // evalMetrics

	t := &Trainer{
		trainer:     trainer,
		loop:        train.NewLoop(trainer),
		state:       Idle,
		runningLoss: math.NaN(),
		accuracy:    math.NaN(),
		threshold:   hyper.Threshold,
		budget:      hyper.TimeBudget,
	}
	t.loop.OnStep("divergence watch", 100, t.watchLoss)
	return t
}

// Run trains for up to epochs epochs, evaluating against the threshold after
// each one. It returns the terminal state; the error is set for runtime
// failures (KindRuntime material) and carries detail for Diverged and
// Exhausted terminal states.
func (t *Trainer) Run(trainDS, evalDS train.Dataset, epochs int) (TrainerState, error) {
	if t.state != Idle {
		return t.state, errors.Errorf("trainer already ran (state %s); create a new Trainer per scenario", t.state)
	}
	t.state = Running
	deadline := time.Time{}
	if t.budget > 0 {
		deadline = time.Now().Add(t.budget)
	}

	for epoch := range epochs {
		_, err := t.loop.RunEpochs(trainDS, 1)
		t.epoch = epoch + 1
		if err != nil {
			if errors.Is(err, errLossDiverged) {
				t.state = Diverged
				return t.state, err
			}
			return t.terminate(Diverged, errors.WithMessagef(err, "training epoch %d", epoch))
		}

		// Models with batch normalization evaluate with fixed averages;
		// recompute them from the training data before each evaluation.
		if _, err = batchnorm.UpdateAverages(t.trainer, trainDS); err != nil {
			return t.terminate(Diverged, errors.WithMessagef(err, "updating batchnorm averages after epoch %d", epoch))
		}

		accuracy, err := t.evaluate(evalDS)
		if err != nil {
			return t.terminate(Diverged, errors.WithMessagef(err, "evaluating after epoch %d", epoch))
		}
		t.accuracy = accuracy
		t.trajectory = append(t.trajectory, accuracy)
		if math.IsNaN(accuracy) || math.IsInf(accuracy, 0) {
			t.state = Diverged
			return t.state, errors.Wrapf(errLossDiverged, "non-finite evaluation accuracy after epoch %d", epoch)
		}
		if accuracy+AccuracyTolerance >= t.threshold {
			t.state = Converged
			return t.state, nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			t.state = Exhausted
			return t.state, errors.Errorf("wall-clock budget %s exceeded after epoch %d", t.budget, epoch)
		}
	}
	t.state = Exhausted
	return t.state, nil
}

// terminate is used for runtime failures: the loop cannot continue, and the
// error is reported with the terminal state.
func (t *Trainer) terminate(state TrainerState, err error) (TrainerState, error) {
	t.state = state
	return state, err
}

// watchLoss aborts the loop as soon as the batch loss stops being finite.
// The batch loss is the first of the train metrics reported per step.
func (t *Trainer) watchLoss(loop *train.Loop, stepMetrics []*tensors.Tensor) error {
	if len(stepMetrics) == 0 {
		return nil
	}
	loss, err := scalarFloat(stepMetrics[0])
	if err != nil {
		return err
	}
	t.runningLoss = loss
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return errors.Wrapf(errLossDiverged, "non-finite loss at step %d", loop.LoopStep)
	}
	return nil
}

// evaluate runs the evaluation dataset through the model and returns the
// mean accuracy.
func (t *Trainer) evaluate(evalDS train.Dataset) (float64, error) {
	values, err := t.trainer.Eval(evalDS)
	evalDS.Reset()
	if err != nil {
		return math.NaN(), err
	}
	for idx, metric := range t.trainer.EvalMetrics() {
		if metric.ShortName() == accuracyShortName {
			return scalarFloat(values[idx])
		}
	}
	return math.NaN(), errors.Errorf("evaluation metric %q not reported by trainer", accuracyShortName)
}

// AttachProgressBar displays training progress on the terminal. Call before
// Run.
func (t *Trainer) AttachProgressBar() {
	commandline.AttachProgressBar(t.loop)
}

// State returns the current state of the trainer's state machine.
func (t *Trainer) State() TrainerState { return t.state }

// EpochsRun returns how many full epochs were trained.
func (t *Trainer) EpochsRun() int { return t.epoch }

// Accuracy returns the latest evaluation accuracy (NaN before the first
// evaluation).
func (t *Trainer) Accuracy() float64 { return t.accuracy }

// Trajectory returns the evaluation accuracy after each completed epoch.
func (t *Trainer) Trajectory() []float64 { return t.trajectory }

// RunningLoss returns the loss of the last training step.
func (t *Trainer) RunningLoss() float64 { return t.runningLoss }

func scalarFloat(tensor *tensors.Tensor) (float64, error) {
	switch value := tensor.Value().(type) {
	case float32:
		return float64(value), nil
	case float64:
		return value, nil
	default:
		return math.NaN(), errors.Errorf("expected a float scalar metric, got %s", tensor.Shape())
	}
}
