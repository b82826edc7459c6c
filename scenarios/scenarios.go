// Package scenarios registers the five regression scenarios run by the test
// binary: ResNet, LSTM, MNIST, logistic regression and transfer learning.
//
// The datasets are synthetic and generated from the run seed, so the
// scenarios are hermetic and reproducible. Thresholds and hyperparameters
// below are defaults sized for the synthetic tasks; they are plain scenario
// configuration, not properties of the models.
package scenarios

import (
	"time"

	"github.com/pkg/errors"

	"github.com/ktolle/CNTK/datagen"
	"github.com/ktolle/CNTK/harness"
	"github.com/ktolle/CNTK/models"
)

// DefaultTimeBudget bounds each scenario's training wall-clock time.
const DefaultTimeBudget = 10 * time.Minute

// All returns the scenarios in registration order. The seed drives variable
// initialization, dataset generation and shuffling for every scenario.
func All(seed int64) []harness.Scenario {
	return []harness.Scenario{
		{
			Name:    "logistic",
			Builder: &models.LogisticRegression{},
			Data: &datagen.Features{
				SourceName: "clusters",
				Dims:       16,
				Classes:    4,
				Train:      2048,
				Eval:       512,
				Separation: 3.0,
				Seed:       seed,
			},
			Hyper: harness.Hyperparameters{
				Optimizer:    "sgd",
				LearningRate: 0.1,
				Epochs:       5,
				BatchSize:    64,
				Threshold:    0.90,
				Seed:         seed,
				TimeBudget:   DefaultTimeBudget,
			},
		},
		{
			Name:    "mnist",
			Builder: &models.MNIST{HiddenSize: 64},
			Data: &datagen.Images{
				SourceName:  "digits",
				Side:        models.MNISTSide,
				Channels:    1,
				Classes:     10,
				Train:       2048,
				Eval:        512,
				NoiseStdDev: 0.1,
				Seed:        seed,
			},
			Hyper: harness.Hyperparameters{
				Optimizer:    "adamw",
				LearningRate: 1e-3,
				Epochs:       5,
				BatchSize:    64,
				Threshold:    0.90,
				Seed:         seed,
				TimeBudget:   DefaultTimeBudget,
			},
		},
		{
			Name:    "resnet",
			Builder: &models.ResNet{Channels: 16, NumBlocks: 2},
			Data: &datagen.Images{
				SourceName:  "tinted",
				Side:        16,
				Channels:    3,
				Classes:     4,
				Train:       1024,
				Eval:        256,
				NoiseStdDev: 0.1,
				Seed:        seed,
			},
			Hyper: harness.Hyperparameters{
				Optimizer:    "adamw",
				LearningRate: 1e-3,
				Epochs:       6,
				BatchSize:    32,
				Threshold:    0.85,
				Seed:         seed,
				TimeBudget:   DefaultTimeBudget,
			},
		},
		{
			Name:    "lstm",
			Builder: &models.LSTMClassifier{VocabSize: 8, EmbedSize: 8, HiddenSize: 32},
			Data: &datagen.Sequences{
				SourceName: "tokens",
				Vocab:      8,
				MinLen:     4,
				MaxLen:     12,
				Classes:    2,
				Train:      2048,
				Eval:       512,
				Seed:       seed,
			},
			Hyper: harness.Hyperparameters{
				Optimizer:    "adamw",
				LearningRate: 1e-2,
				Epochs:       8,
				BatchSize:    64,
				Threshold:    0.75,
				Seed:         seed,
				TimeBudget:   DefaultTimeBudget,
			},
		},
		{
			Name:    "transfer",
			Builder: &models.Transfer{ExtractorHidden: 32, FeatureSize: 16},
			Data: &datagen.Features{
				SourceName: "clusters",
				Dims:       16,
				Classes:    4,
				Train:      2048,
				Eval:       512,
				Separation: 3.0,
				Seed:       seed,
			},
			Hyper: harness.Hyperparameters{
				Optimizer:    "adamw",
				LearningRate: 1e-2,
				Epochs:       5,
				BatchSize:    64,
				Threshold:    0.85,
				Seed:         seed,
				TimeBudget:   DefaultTimeBudget,
			},
		},
	}
}

// Select filters All(seed) down to the given scenario names, preserving
// registration order. With no names it returns every scenario.
func Select(seed int64, names []string) ([]harness.Scenario, error) {
	all := All(seed)
	if len(names) == 0 {
		return all, nil
	}
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}
	selected := make([]harness.Scenario, 0, len(names))
	for _, scenario := range all {
		if wanted[scenario.Name] {
			selected = append(selected, scenario)
			delete(wanted, scenario.Name)
		}
	}
	if len(wanted) > 0 {
		unknown := make([]string, 0, len(wanted))
		for name := range wanted {
			unknown = append(unknown, name)
		}
		return nil, errors.Errorf("unknown scenario name(s) %v", unknown)
	}
	return selected, nil
}
