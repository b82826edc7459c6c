package harness

import (
	"os"

	"github.com/gomlx/gomlx/backends"
	"github.com/janpfeifer/must"

	"github.com/ktolle/CNTK/datagen"
	"github.com/ktolle/CNTK/models"

	_ "github.com/gomlx/gomlx/backends/simplego"
)

func init() {
	// Tests use the portable pure-Go backend unless one is explicitly set.
	if _, found := os.LookupEnv(backends.ConfigEnvVar); !found {
		must.M(os.Setenv(backends.ConfigEnvVar, "go"))
	}
}

// testFeatures is a small, well-separated cluster dataset that logistic
// regression learns in a handful of steps.
func testFeatures(seed int64) *datagen.Features {
	return &datagen.Features{
		SourceName: "test clusters",
		Dims:       8,
		Classes:    2,
		Train:      256,
		Eval:       64,
		Separation: 4.0,
		Seed:       seed,
	}
}

func testHyper() Hyperparameters {
	return Hyperparameters{
		Optimizer:    "sgd",
		LearningRate: 0.3,
		Epochs:       10,
		BatchSize:    32,
		Threshold:    0.85,
		Seed:         17,
	}
}

func logisticScenario(name string) Scenario {
	return Scenario{
		Name:    name,
		Builder: &models.LogisticRegression{},
		Data:    testFeatures(17),
		Hyper:   testHyper(),
	}
}
