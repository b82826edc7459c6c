package models

import (
	"strings"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/pkg/errors"
)

// TransferExtractorScope is the context scope holding the frozen feature
// extractor variables, relative to the root context given to the trainer.
const TransferExtractorScope = "/model/extractor"

// Transfer composes a frozen feature extractor with a newly trained linear
// head. The extractor is a two-layer projection whose variables are marked
// non-trainable right after creation: only the head receives gradient
// updates. It stands in for a pretrained backbone, which in this harness is
// initialized rather than loaded from a checkpoint.
type Transfer struct {
	ExtractorHidden int // Hidden layer size of the extractor.
	FeatureSize     int // Output feature size of the extractor.
}

func (t *Transfer) Name() string { return "transfer" }

func (t *Transfer) Build(inputShape shapes.Shape, numClasses int) (train.ModelFn, error) {
	if err := checkNumClasses(t.Name(), numClasses); err != nil {
		return nil, err
	}
	if inputShape.Rank() != 1 || inputShape.Dim(0) < 1 {
		return nil, errors.Wrapf(ErrShapeMismatch, "transfer expects feature vectors shaped [num_features], got %s", inputShape)
	}
	if !inputShape.DType.IsFloat() {
		return nil, errors.Wrapf(ErrShapeMismatch, "transfer expects float features, got %s", inputShape)
	}

	return func(ctx *context.Context, spec any, inputs []*Node) []*Node {
		ctx = ctx.In("model")
		batchSize := inputs[0].Shape().Dim(0)
		features := Reshape(inputs[0], batchSize, -1)

		extractorCtx := ctx.In("extractor")
		embeddings := layers.DenseWithBias(extractorCtx.In("dense_a"), features, t.ExtractorHidden)
		embeddings = Tanh(embeddings)
		embeddings = layers.DenseWithBias(extractorCtx.In("dense_b"), embeddings, t.FeatureSize)
		embeddings = Tanh(embeddings)
		freezeScope(ctx, extractorCtx.Scope())

		logits := layers.DenseWithBias(ctx.In("head"), embeddings, numClasses)
		return []*Node{logits}
	}, nil
}

// freezeScope marks every variable under scope as non-trainable. It must run
// after the layers in that scope created their variables and before the
// trainer derives gradients from the graph.
func freezeScope(ctx *context.Context, scope string) {
	ctx.EnumerateVariables(func(v *context.Variable) {
		if strings.HasPrefix(v.Scope(), scope) {
			v.SetTrainable(false)
		}
	})
}
