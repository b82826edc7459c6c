// Package harness runs the training regression scenarios: for each
// registered scenario it builds the model graph, attaches the data provider,
// drives the training loop to a terminal state and checks the resulting
// accuracy against the scenario threshold.
//
// Scenarios are isolated: a failure of any kind (bad data, incompatible
// shapes, numerical divergence, runtime errors) is converted into a failing
// Result at the runner boundary and never aborts the remaining scenarios.
package harness

import (
	"time"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/train"

	"github.com/ktolle/CNTK/models"
)

// DataSource supplies the labeled examples for one scenario. Implementations
// live in the datagen package; tests provide their own.
type DataSource interface {
	Name() string

	// InputShape is the per-example shape of the first input tensor, without
	// the batch axis. It is handed to the model builder for validation.
	InputShape() shapes.Shape

	NumClasses() int

	// Datasets returns the training and evaluation datasets. The training
	// dataset must be finite (io.EOF at the end of each epoch) and
	// reshuffled deterministically from the source seed.
	Datasets(backend backends.Backend, batchSize int) (trainDS, evalDS train.Dataset, err error)
}

// Hyperparameters of one scenario. They are applied as context parameters
// when the trainer is created, so the optimizer setup follows the usual
// context-driven configuration.
type Hyperparameters struct {
	Optimizer    string // "sgd", "adam", "adamw", ...
	LearningRate float64
	Epochs       int
	BatchSize    int

	// Threshold is the evaluation accuracy the model must reach within the
	// epoch budget for the scenario to pass.
	Threshold float64

	// Seed drives both variable initialization and dataset shuffling.
	Seed int64

	// Settings holds extra context-parameter settings in the usual
	// "scope/param=value;..." syntax. They are applied after Optimizer and
	// LearningRate, so they can override both.
	Settings string

	// TimeBudget bounds the wall-clock time of the training loop. Zero
	// means no bound. A scenario over budget is reported as Exhausted.
	TimeBudget time.Duration
}

// Scenario is one end-to-end training + validation configuration. It is
// immutable once registered and identified by its unique name.
type Scenario struct {
	Name    string
	Builder models.Builder
	Data    DataSource
	Hyper   Hyperparameters
}
