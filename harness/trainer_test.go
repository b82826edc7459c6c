package harness

import (
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/stretchr/testify/require"

	"github.com/ktolle/CNTK/models"
)

func TestTrainerConverges(t *testing.T) {
	backend := backends.MustNew()
	source := testFeatures(17)
	trainDS, evalDS, err := source.Datasets(backend, 32)
	require.NoError(t, err)

	modelFn, err := (&models.LogisticRegression{}).Build(source.InputShape(), source.NumClasses())
	require.NoError(t, err)

	ctx := context.New()
	ctx.SetRNGStateFromSeed(17)
	defer ctx.Finalize()

	hyper := testHyper()
	trainer := NewTrainer(backend, ctx, modelFn, hyper)
	require.Equal(t, Idle, trainer.State())

	state, err := trainer.Run(trainDS, evalDS, hyper.Epochs)
	require.NoError(t, err)
	require.Equal(t, Converged, state)
	require.GreaterOrEqual(t, trainer.Accuracy()+AccuracyTolerance, hyper.Threshold)

	trajectory := trainer.Trajectory()
	require.NotEmpty(t, trajectory)
	require.Equal(t, trainer.Accuracy(), trajectory[len(trajectory)-1])
	require.Equal(t, len(trajectory), trainer.EpochsRun())
	require.LessOrEqual(t, trainer.EpochsRun(), hyper.Epochs)
}

func TestTrainerIsOneShot(t *testing.T) {
	backend := backends.MustNew()
	source := testFeatures(17)
	trainDS, evalDS, err := source.Datasets(backend, 32)
	require.NoError(t, err)

	modelFn, err := (&models.LogisticRegression{}).Build(source.InputShape(), source.NumClasses())
	require.NoError(t, err)

	ctx := context.New()
	ctx.SetRNGStateFromSeed(17)
	defer ctx.Finalize()

	trainer := NewTrainer(backend, ctx, modelFn, testHyper())
	state, err := trainer.Run(trainDS, evalDS, 1)
	require.NoError(t, err)

	// A second Run on the same Trainer is rejected and leaves the terminal
	// state untouched.
	again, err := trainer.Run(trainDS, evalDS, 1)
	require.Error(t, err)
	require.Equal(t, state, again)
	require.Equal(t, state, trainer.State())
}

func TestTrainerExhausted(t *testing.T) {
	backend := backends.MustNew()
	source := testFeatures(3)
	trainDS, evalDS, err := source.Datasets(backend, 32)
	require.NoError(t, err)

	modelFn, err := (&models.LogisticRegression{}).Build(source.InputShape(), source.NumClasses())
	require.NoError(t, err)

	ctx := context.New()
	ctx.SetRNGStateFromSeed(3)
	defer ctx.Finalize()

	hyper := testHyper()
	hyper.Threshold = 1.1 // Unreachable.
	trainer := NewTrainer(backend, ctx, modelFn, hyper)
	state, err := trainer.Run(trainDS, evalDS, 2)
	require.NoError(t, err)
	require.Equal(t, Exhausted, state)
	require.Equal(t, 2, trainer.EpochsRun())
	require.Len(t, trainer.Trajectory(), 2)
}

func TestTrainerDiverges(t *testing.T) {
	backend := backends.MustNew()
	source := testFeatures(5)
	trainDS, evalDS, err := source.Datasets(backend, 32)
	require.NoError(t, err)

	// The NaN factor poisons the logits, so the very first batch loss is
	// non-finite and the divergence watch must abort the loop.
	nanModel := func(ctx *context.Context, spec any, inputs []*graph.Node) []*graph.Node {
		logits := layers.DenseWithBias(ctx, inputs[0], source.NumClasses())
		return []*graph.Node{graph.MulScalar(logits, math.NaN())}
	}

	ctx := context.New()
	ctx.SetRNGStateFromSeed(5)
	defer ctx.Finalize()

	trainer := NewTrainer(backend, ctx, nanModel, testHyper())
	state, err := trainer.Run(trainDS, evalDS, 3)
	require.Equal(t, Diverged, state)
	require.ErrorIs(t, err, errLossDiverged)
	require.Empty(t, trainer.Trajectory(), "no evaluation happens after an aborted epoch")
}

func TestTransferFreezesExtractor(t *testing.T) {
	backend := backends.MustNew()
	source := testFeatures(9)
	trainDS, evalDS, err := source.Datasets(backend, 32)
	require.NoError(t, err)

	builder := &models.Transfer{ExtractorHidden: 8, FeatureSize: 4}
	modelFn, err := builder.Build(source.InputShape(), source.NumClasses())
	require.NoError(t, err)

	ctx := context.New()
	ctx.SetRNGStateFromSeed(9)
	defer ctx.Finalize()

	trainer := NewTrainer(backend, ctx, modelFn, testHyper())

	// An evaluation builds the graph and initializes the model variables
	// without updating them; snapshot their initial values.
	_, err = trainer.evaluate(evalDS)
	require.NoError(t, err)
	before := make(map[string]any)
	ctx.EnumerateVariables(func(v *context.Variable) {
		before[v.ScopeAndName()] = v.MustValue().Value()
	})
	require.NotEmpty(t, before)

	_, err = trainer.Run(trainDS, evalDS, 1)
	require.NoError(t, err)

	frozen, headChanged := 0, 0
	ctx.EnumerateVariables(func(v *context.Variable) {
		name := v.ScopeAndName()
		switch {
		case strings.HasPrefix(v.Scope(), models.TransferExtractorScope):
			require.False(t, v.Trainable, "extractor variable %s must be frozen", name)
			require.Equal(t, before[name], v.MustValue().Value(),
				"extractor variable %s must be numerically unchanged by training", name)
			frozen++
		case strings.HasPrefix(v.Scope(), "/model/head"):
			require.True(t, v.Trainable, "head variable %s must remain trainable", name)
			if !reflect.DeepEqual(before[name], v.MustValue().Value()) {
				headChanged++
			}
		}
	})
	// Two dense layers with weights and biases each.
	require.Equal(t, 4, frozen)
	require.NotZero(t, headChanged, "training must update the head variables")
}
