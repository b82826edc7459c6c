package models

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/pkg/errors"
)

// MNISTSide is the fixed side expected by the MNIST topology.
const MNISTSide = 28

// MNIST is a small CNN for 28×28 single-channel inputs: two
// convolution+pooling stages, a hidden dense layer and the classifier head.
type MNIST struct {
	HiddenSize int
}

func (m *MNIST) Name() string { return "mnist" }

func (m *MNIST) Build(inputShape shapes.Shape, numClasses int) (train.ModelFn, error) {
	if err := checkNumClasses(m.Name(), numClasses); err != nil {
		return nil, err
	}
	if inputShape.Rank() != 3 || inputShape.Dim(0) != MNISTSide || inputShape.Dim(1) != MNISTSide || inputShape.Dim(2) != 1 {
		return nil, errors.Wrapf(ErrShapeMismatch, "mnist expects images shaped [%d, %d, 1], got %s",
			MNISTSide, MNISTSide, inputShape)
	}
	if !inputShape.DType.IsFloat() {
		return nil, errors.Wrapf(ErrShapeMismatch, "mnist expects float images, got %s", inputShape)
	}

	return func(ctx *context.Context, spec any, inputs []*Node) []*Node {
		ctx = ctx.In("model")
		images := inputs[0]
		batchSize := images.Shape().Dim(0)

		images = layers.Convolution(ctx.In("000_conv"), images).Channels(32).KernelSize(3).PadSame().Done()
		images = activations.Relu(images)
		images = MaxPool(images).Window(2).Done()
		images.AssertDims(batchSize, 14, 14, 32)

		images = layers.Convolution(ctx.In("001_conv"), images).Channels(64).KernelSize(3).PadSame().Done()
		images = activations.Relu(images)
		images = MaxPool(images).Window(2).Done()
		images.AssertDims(batchSize, 7, 7, 64)

		embeddings := Reshape(images, batchSize, -1)
		embeddings = layers.DenseWithBias(ctx.In("hidden"), embeddings, m.HiddenSize)
		embeddings = activations.Relu(embeddings)
		logits := layers.DenseWithBias(ctx.In("head"), embeddings, numClasses)
		return []*Node{logits}
	}, nil
}
