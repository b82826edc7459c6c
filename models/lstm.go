package models

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/lstm"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/pkg/errors"
)

// LSTMClassifier embeds padded token sequences, runs them through a
// recurrent LSTM layer respecting the per-example lengths (the padded tail is
// masked out), and classifies from the last valid hidden state.
//
// It expects two input tensors per batch: tokens shaped
// (int)[batch_size, max_len] padded with 0, and lengths shaped
// (int)[batch_size].
type LSTMClassifier struct {
	VocabSize  int
	EmbedSize  int
	HiddenSize int
}

func (l *LSTMClassifier) Name() string { return "lstm" }

func (l *LSTMClassifier) Build(inputShape shapes.Shape, numClasses int) (train.ModelFn, error) {
	if err := checkNumClasses(l.Name(), numClasses); err != nil {
		return nil, err
	}
	if inputShape.Rank() != 1 || inputShape.Dim(0) < 1 {
		return nil, errors.Wrapf(ErrShapeMismatch, "lstm expects token sequences shaped [max_len], got %s", inputShape)
	}
	if !inputShape.DType.IsInt() {
		return nil, errors.Wrapf(ErrShapeMismatch, "lstm expects integer token ids, got %s", inputShape)
	}
	if l.VocabSize < 2 {
		return nil, errors.Wrapf(ErrShapeMismatch, "lstm vocabulary must have at least 2 tokens (0 is reserved for padding), got %d", l.VocabSize)
	}

	return func(ctx *context.Context, spec any, inputs []*Node) []*Node {
		ctx = ctx.In("model")
		tokens, lengths := inputs[0], inputs[1]
		batchSize := tokens.Shape().Dim(0)

		embedded := layers.Embedding(ctx.In("embed"), tokens, dtypes.Float32, l.VocabSize, l.EmbedSize, false)
		embedded.AssertDims(batchSize, tokens.Shape().Dim(1), l.EmbedSize)

		_, lastHidden, _ := lstm.New(ctx.In("lstm"), embedded, l.HiddenSize).
			Ragged(lengths).
			Done()
		lastHidden = Reshape(lastHidden, batchSize, -1)

		logits := layers.DenseWithBias(ctx.In("head"), lastHidden, numClasses)
		return []*Node{logits}
	}, nil
}
