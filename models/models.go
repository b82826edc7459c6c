// Package models holds one graph-building topology per training scenario:
// ResNet, LSTM sequence classifier, MNIST CNN, logistic regression and
// transfer learning.
//
// Every topology returns logits, not predictions, shaped
// `[batch_size, num_classes]`, which works with the sparse categorical
// cross-entropy loss used by the harness.
package models

import (
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/pkg/errors"
)

// ErrShapeMismatch tags input shapes that are incompatible with a fixed
// topology (e.g. a non-square image given to the ResNet stem). It is a
// configuration bug, fatal only to the scenario that hit it.
var ErrShapeMismatch = errors.New("shape mismatch")

// Builder validates the per-example input shape and constructs the model
// graph function for one topology. Implementations are stateless besides
// their configuration and can be shared across scenarios.
type Builder interface {
	Name() string

	// Build returns the graph building function for the given per-example
	// input shape (without the batch axis) and number of classes.
	// It returns an error wrapping ErrShapeMismatch if the shape cannot be
	// fed to this topology.
	Build(inputShape shapes.Shape, numClasses int) (train.ModelFn, error)
}

func checkNumClasses(name string, numClasses int) error {
	if numClasses < 2 {
		return errors.Wrapf(ErrShapeMismatch, "%s requires at least 2 classes, got %d", name, numClasses)
	}
	return nil
}
