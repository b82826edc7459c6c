// Package datagen builds the synthetic, seed-deterministic datasets used by
// the training scenarios.
//
// All sources generate their examples in-process from a fixed seed, so two
// runs with the same seed yield byte-identical batch sequences. They are
// exposed as train.Dataset pairs (training + evaluation) backed by
// datasets.InMemoryDataset; end-of-epoch is signaled with io.EOF, following
// the runtime's convention.
package datagen

import (
	"math/rand"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/datasets"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/pkg/errors"
)

// ErrData tags failures while producing or validating a dataset: malformed
// configuration, truncated or inconsistent generated data. Scenarios fail
// immediately on it, there are no retries.
var ErrData = errors.New("data error")

// Images generates labeled square images: each class gets a distinct
// per-channel intensity signature, with gaussian noise on top. It covers both
// the RGB inputs of the ResNet scenario and the 28×28 single-channel inputs
// of the MNIST scenario.
type Images struct {
	SourceName  string
	Side        int // Images are Side×Side.
	Channels    int
	Classes     int
	Train, Eval int // Number of examples generated for each split.
	NoiseStdDev float64
	Seed        int64
}

func (s *Images) Name() string { return s.SourceName }

func (s *Images) InputShape() shapes.Shape {
	return shapes.Make(dtypes.Float32, s.Side, s.Side, s.Channels)
}

func (s *Images) NumClasses() int { return s.Classes }

// Datasets generates both splits and wraps them as in-memory datasets.
// The training split is shuffled with a rand.Rand derived from the seed, so
// the batch order is reproducible as well.
func (s *Images) Datasets(backend backends.Backend, batchSize int) (trainDS, evalDS train.Dataset, err error) {
	if s.Side <= 0 || s.Channels <= 0 || s.Classes <= 1 || s.Train <= 0 || s.Eval <= 0 {
		return nil, nil, errors.Wrapf(ErrData, "invalid %q configuration: side=%d, channels=%d, classes=%d, train=%d, eval=%d",
			s.SourceName, s.Side, s.Channels, s.Classes, s.Train, s.Eval)
	}
	rng := rand.New(rand.NewSource(s.Seed))
	trainImages, trainLabels := s.generate(rng, s.Train)
	evalImages, evalLabels := s.generate(rng, s.Eval)
	return makeSplits(backend, s.SourceName, batchSize, s.Seed,
		[]any{trainImages}, []any{trainLabels},
		[]any{evalImages}, []any{evalLabels})
}

func (s *Images) generate(rng *rand.Rand, numExamples int) (images, labels *tensors.Tensor) {
	pixelsPerImage := s.Side * s.Side * s.Channels
	flat := make([]float32, numExamples*pixelsPerImage)
	labelsFlat := make([]int32, numExamples)
	for ex := range numExamples {
		class := rng.Intn(s.Classes)
		labelsFlat[ex] = int32(class)
		base := float64(class+1) / float64(s.Classes+1)
		for p := range pixelsPerImage {
			channel := p % s.Channels
			value := base * 0.25
			if channel == class%s.Channels {
				value = base
			}
			value += rng.NormFloat64() * s.NoiseStdDev
			flat[ex*pixelsPerImage+p] = clamp01(value)
		}
	}
	images = tensors.FromFlatDataAndDimensions(flat, numExamples, s.Side, s.Side, s.Channels)
	labels = tensors.FromFlatDataAndDimensions(labelsFlat, numExamples, 1)
	return
}

// Sequences generates variable-length integer sequences, padded with the
// reserved token 0 to MaxLen. The label is the last valid token modulo the
// number of classes, so a correct model must respect the sequence lengths
// (the masking path of the LSTM scenario).
type Sequences struct {
	SourceName     string
	Vocab          int // Token ids are drawn from [1, Vocab).
	MinLen, MaxLen int
	Classes        int
	Train, Eval    int
	Seed           int64
}

func (s *Sequences) Name() string { return s.SourceName }

func (s *Sequences) InputShape() shapes.Shape {
	return shapes.Make(dtypes.Int32, s.MaxLen)
}

func (s *Sequences) NumClasses() int { return s.Classes }

func (s *Sequences) Datasets(backend backends.Backend, batchSize int) (trainDS, evalDS train.Dataset, err error) {
	if s.Vocab <= 2 || s.MinLen <= 0 || s.MaxLen < s.MinLen || s.Classes <= 1 || s.Train <= 0 || s.Eval <= 0 {
		return nil, nil, errors.Wrapf(ErrData, "invalid %q configuration: vocab=%d, lengths=[%d, %d], classes=%d, train=%d, eval=%d",
			s.SourceName, s.Vocab, s.MinLen, s.MaxLen, s.Classes, s.Train, s.Eval)
	}
	rng := rand.New(rand.NewSource(s.Seed))
	trainTokens, trainLengths, trainLabels := s.generate(rng, s.Train)
	evalTokens, evalLengths, evalLabels := s.generate(rng, s.Eval)
	return makeSplits(backend, s.SourceName, batchSize, s.Seed,
		[]any{trainTokens, trainLengths}, []any{trainLabels},
		[]any{evalTokens, evalLengths}, []any{evalLabels})
}

func (s *Sequences) generate(rng *rand.Rand, numExamples int) (tokens, lengths, labels *tensors.Tensor) {
	tokensFlat := make([]int32, numExamples*s.MaxLen)
	lengthsFlat := make([]int32, numExamples)
	labelsFlat := make([]int32, numExamples)
	for ex := range numExamples {
		length := s.MinLen + rng.Intn(s.MaxLen-s.MinLen+1)
		lengthsFlat[ex] = int32(length)
		var last int32
		for pos := range length {
			last = int32(1 + rng.Intn(s.Vocab-1))
			tokensFlat[ex*s.MaxLen+pos] = last
		}
		labelsFlat[ex] = last % int32(s.Classes)
	}
	tokens = tensors.FromFlatDataAndDimensions(tokensFlat, numExamples, s.MaxLen)
	lengths = tensors.FromFlatDataAndDimensions(lengthsFlat, numExamples)
	labels = tensors.FromFlatDataAndDimensions(labelsFlat, numExamples, 1)
	return
}

// Features generates feature vectors from one gaussian cluster per class,
// with centers far enough apart to be linearly separable. Used by the
// logistic-regression and transfer-learning scenarios.
type Features struct {
	SourceName  string
	Dims        int
	Classes     int
	Train, Eval int
	Separation  float64 // Distance of each cluster center from the origin.
	Seed        int64
}

func (s *Features) Name() string { return s.SourceName }

func (s *Features) InputShape() shapes.Shape {
	return shapes.Make(dtypes.Float32, s.Dims)
}

func (s *Features) NumClasses() int { return s.Classes }

func (s *Features) Datasets(backend backends.Backend, batchSize int) (trainDS, evalDS train.Dataset, err error) {
	if s.Dims <= 0 || s.Classes <= 1 || s.Classes > s.Dims || s.Train <= 0 || s.Eval <= 0 {
		return nil, nil, errors.Wrapf(ErrData, "invalid %q configuration: dims=%d, classes=%d (need classes in [2, dims]), train=%d, eval=%d",
			s.SourceName, s.Dims, s.Classes, s.Train, s.Eval)
	}
	rng := rand.New(rand.NewSource(s.Seed))
	trainFeatures, trainLabels := s.generate(rng, s.Train)
	evalFeatures, evalLabels := s.generate(rng, s.Eval)
	return makeSplits(backend, s.SourceName, batchSize, s.Seed,
		[]any{trainFeatures}, []any{trainLabels},
		[]any{evalFeatures}, []any{evalLabels})
}

func (s *Features) generate(rng *rand.Rand, numExamples int) (features, labels *tensors.Tensor) {
	flat := make([]float32, numExamples*s.Dims)
	labelsFlat := make([]int32, numExamples)
	for ex := range numExamples {
		class := rng.Intn(s.Classes)
		labelsFlat[ex] = int32(class)
		for d := range s.Dims {
			value := rng.NormFloat64()
			if d == class {
				value += s.Separation
			}
			flat[ex*s.Dims+d] = float32(value)
		}
	}
	features = tensors.FromFlatDataAndDimensions(flat, numExamples, s.Dims)
	labels = tensors.FromFlatDataAndDimensions(labelsFlat, numExamples, 1)
	return
}

// makeSplits wraps the generated tensors into the training and evaluation
// datasets. The training split is batched dropping the incomplete tail and
// reshuffled per epoch from a seeded rand.Rand; the evaluation split keeps
// the generation order and the incomplete tail, so eval metrics cover every
// example.
func makeSplits(backend backends.Backend, name string, batchSize int, seed int64,
	trainInputs, trainLabels, evalInputs, evalLabels []any) (trainDS, evalDS train.Dataset, err error) {
	trainInMem, err := datasets.InMemoryFromData(backend, name+" (train)", trainInputs, trainLabels)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "building %q training dataset", name)
	}
	evalInMem, err := datasets.InMemoryFromData(backend, name+" (eval)", evalInputs, evalLabels)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "building %q evaluation dataset", name)
	}
	trainDS = trainInMem.
		BatchSize(batchSize, true).
		Shuffle().
		WithRand(rand.New(rand.NewSource(seed + 1)))
	evalDS = evalInMem.BatchSize(batchSize, false)
	return trainDS, evalDS, nil
}

func clamp01(x float64) float32 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return float32(x)
}
