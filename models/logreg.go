package models

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/pkg/errors"
)

// LogisticRegression is a single linear layer over flattened features.
// The softmax lives in the loss, so the graph returns the raw logits.
type LogisticRegression struct{}

func (l *LogisticRegression) Name() string { return "logreg" }

func (l *LogisticRegression) Build(inputShape shapes.Shape, numClasses int) (train.ModelFn, error) {
	if err := checkNumClasses(l.Name(), numClasses); err != nil {
		return nil, err
	}
	if inputShape.Rank() < 1 {
		return nil, errors.Wrapf(ErrShapeMismatch, "logistic regression expects at least one feature axis, got %s", inputShape)
	}
	if !inputShape.DType.IsFloat() {
		return nil, errors.Wrapf(ErrShapeMismatch, "logistic regression expects float features, got %s", inputShape)
	}

	return func(ctx *context.Context, spec any, inputs []*Node) []*Node {
		ctx = ctx.In("model")
		batchSize := inputs[0].Shape().Dim(0)
		features := Reshape(inputs[0], batchSize, -1)
		logits := layers.DenseWithBias(ctx, features, numClasses)
		return []*Node{logits}
	}, nil
}
