package models

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/gomlx/pkg/ml/layers/batchnorm"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/pkg/errors"
)

// ResNet is a small residual network: convolutional stem, NumBlocks residual
// blocks at a fixed channel width, global average pooling and a linear
// classifier head. The stem expects square images.
type ResNet struct {
	Channels  int // Channel width of the stem and every residual block.
	NumBlocks int
}

func (r *ResNet) Name() string { return "resnet" }

func (r *ResNet) Build(inputShape shapes.Shape, numClasses int) (train.ModelFn, error) {
	if err := checkNumClasses(r.Name(), numClasses); err != nil {
		return nil, err
	}
	if inputShape.Rank() != 3 {
		return nil, errors.Wrapf(ErrShapeMismatch, "resnet expects images shaped [height, width, depth], got %s", inputShape)
	}
	height, width := inputShape.Dim(0), inputShape.Dim(1)
	if height != width {
		return nil, errors.Wrapf(ErrShapeMismatch, "resnet stem expects square images, got %dx%d", height, width)
	}
	if height < 4 {
		return nil, errors.Wrapf(ErrShapeMismatch, "resnet expects images at least 4x4, got %dx%d", height, width)
	}
	if !inputShape.DType.IsFloat() {
		return nil, errors.Wrapf(ErrShapeMismatch, "resnet expects float images, got %s", inputShape)
	}

	return func(ctx *context.Context, spec any, inputs []*Node) []*Node {
		ctx = ctx.In("model")
		images := inputs[0]
		batchSize := images.Shape().Dim(0)
		images.AssertDims(batchSize, height, width, inputShape.Dim(2))

		logits := layers.Convolution(ctx.In("stem"), images).Channels(r.Channels).KernelSize(3).PadSame().Done()
		logits = batchnorm.New(ctx.In("stem_norm"), logits, -1).Done()
		logits = activations.Relu(logits)

		for block := range r.NumBlocks {
			logits = residualBlock(ctx.Inf("%03d_block", block), logits, r.Channels)
		}

		// Global average pooling over the spatial axes.
		logits = ReduceMean(logits, 1, 2)
		logits.AssertDims(batchSize, r.Channels)
		logits = layers.DenseWithBias(ctx.In("head"), logits, numClasses)
		return []*Node{logits}
	}, nil
}

// residualBlock is the classic two-convolution block with an identity skip
// connection. Channel width is unchanged, so the skip needs no projection.
func residualBlock(ctx *context.Context, x *Node, channels int) *Node {
	skip := x
	x = layers.Convolution(ctx.In("conv_a"), x).Channels(channels).KernelSize(3).PadSame().Done()
	x = batchnorm.New(ctx.In("norm_a"), x, -1).Done()
	x = activations.Relu(x)
	x = layers.Convolution(ctx.In("conv_b"), x).Channels(channels).KernelSize(3).PadSame().Done()
	x = batchnorm.New(ctx.In("norm_b"), x, -1).Done()
	x = Add(x, skip)
	return activations.Relu(x)
}
