package models

import (
	"testing"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/stretchr/testify/require"
)

func TestBuildShapeValidation(t *testing.T) {
	tests := []struct {
		name       string
		builder    Builder
		good       shapes.Shape
		numClasses int
		bad        []shapes.Shape
	}{
		{
			name:       "resnet",
			builder:    &ResNet{Channels: 8, NumBlocks: 1},
			good:       shapes.Make(dtypes.Float32, 16, 16, 3),
			numClasses: 4,
			bad: []shapes.Shape{
				shapes.Make(dtypes.Float32, 16, 12, 3), // Not square.
				shapes.Make(dtypes.Float32, 2, 2, 3),   // Too small for the stem.
				shapes.Make(dtypes.Float32, 16, 16),    // Missing depth axis.
				shapes.Make(dtypes.Int32, 16, 16, 3),   // Not float.
			},
		},
		{
			name:       "mnist",
			builder:    &MNIST{HiddenSize: 32},
			good:       shapes.Make(dtypes.Float32, 28, 28, 1),
			numClasses: 10,
			bad: []shapes.Shape{
				shapes.Make(dtypes.Float32, 32, 32, 1), // Wrong side.
				shapes.Make(dtypes.Float32, 28, 28, 3), // Wrong depth.
				shapes.Make(dtypes.Float32, 28, 28),    // Wrong rank.
			},
		},
		{
			name:       "lstm",
			builder:    &LSTMClassifier{VocabSize: 8, EmbedSize: 4, HiddenSize: 8},
			good:       shapes.Make(dtypes.Int32, 12),
			numClasses: 2,
			bad: []shapes.Shape{
				shapes.Make(dtypes.Float32, 12),   // Tokens must be ints.
				shapes.Make(dtypes.Int32, 12, 12), // Wrong rank.
			},
		},
		{
			name:       "logreg",
			builder:    &LogisticRegression{},
			good:       shapes.Make(dtypes.Float32, 16),
			numClasses: 4,
			bad: []shapes.Shape{
				shapes.Make(dtypes.Float32), // Scalar input.
				shapes.Make(dtypes.Int32, 16),
			},
		},
		{
			name:       "transfer",
			builder:    &Transfer{ExtractorHidden: 8, FeatureSize: 4},
			good:       shapes.Make(dtypes.Float32, 16),
			numClasses: 4,
			bad: []shapes.Shape{
				shapes.Make(dtypes.Float32, 16, 2), // Wrong rank.
				shapes.Make(dtypes.Int32, 16),
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.name, test.builder.Name())
			modelFn, err := test.builder.Build(test.good, test.numClasses)
			require.NoError(t, err)
			require.NotNil(t, modelFn)

			// A single class can never be a classification problem.
			_, err = test.builder.Build(test.good, 1)
			require.ErrorIs(t, err, ErrShapeMismatch)

			for _, badShape := range test.bad {
				_, err := test.builder.Build(badShape, test.numClasses)
				require.ErrorIs(t, err, ErrShapeMismatch, "shape %s must be rejected", badShape)
			}
		})
	}
}

func TestLSTMRequiresVocab(t *testing.T) {
	builder := &LSTMClassifier{VocabSize: 1, EmbedSize: 4, HiddenSize: 8}
	_, err := builder.Build(shapes.Make(dtypes.Int32, 12), 2)
	require.ErrorIs(t, err, ErrShapeMismatch)
}
