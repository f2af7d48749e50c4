// Package classifier implements the learned-classifier collaborator:
// a deterministic linear hinge-loss stochastic-gradient-descent binary
// classifier, matching the "off-the-shelf SGD classifier" contract the
// SDG detection strategy depends on without specifying its training
// internals.
package classifier

import (
	"errors"
	"math/rand"
)

// ErrUnsupportedLoss is returned by New for any loss other than "hinge",
// the only supported loss function.
var ErrUnsupportedLoss = errors.New("classifier: unsupported loss function")

// ErrDimensionMismatch is returned by Train/Predict when X and y (or a
// row of X and the model's learned weight vector) disagree in length.
var ErrDimensionMismatch = errors.New("classifier: dimension mismatch")

// ErrNotTrained is returned by Predict before Train has been called.
var ErrNotTrained = errors.New("classifier: not trained")

const (
	defaultLearningRate = 0.01
	defaultL2           = 1e-4
	defaultEpochs       = 20
)

// SDG is a linear binary classifier trained by single-pass-per-epoch
// stochastic gradient descent on the hinge loss, with L2
// regularisation. Labels are 0/1; internally it trains against
// {-1, +1} and predicts via the sign of the decision function.
type SDG struct {
	loss    string
	seed    int64
	rng     *rand.Rand
	w       []float64
	b       float64
	trained bool
}

// New returns an untrained classifier for the given loss function
// (only "hinge" is supported) seeded for deterministic training.
func New(loss string, seed int64) (*SDG, error) {
	if loss != "hinge" {
		return nil, ErrUnsupportedLoss
	}
	return &SDG{loss: loss, seed: seed, rng: rand.New(rand.NewSource(seed))}, nil
}

// Train fits the classifier on X (one row per sample, all rows the
// same length) and y (0/1 labels, one per row), running
// defaultEpochs passes over a per-epoch-shuffled copy of the data.
// Training is deterministic for a fixed seed and fixed input.
func (s *SDG) Train(X [][]float64, y []int) error {
	if len(X) != len(y) {
		return ErrDimensionMismatch
	}
	if len(X) == 0 {
		return ErrDimensionMismatch
	}
	dim := len(X[0])
	for _, row := range X {
		if len(row) != dim {
			return ErrDimensionMismatch
		}
	}

	s.w = make([]float64, dim)
	s.b = 0

	order := make([]int, len(X))
	for i := range order {
		order[i] = i
	}

	t := 0
	for epoch := 0; epoch < defaultEpochs; epoch++ {
		s.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		for _, idx := range order {
			t++
			x := X[idx]
			target := 1.0
			if y[idx] == 0 {
				target = -1.0
			}
			eta := defaultLearningRate / (1 + defaultLearningRate*defaultL2*float64(t))

			margin := target * (dot(s.w, x) + s.b)
			for i := range s.w {
				s.w[i] -= eta * defaultL2 * s.w[i]
			}
			if margin < 1 {
				for i := range s.w {
					s.w[i] += eta * target * x[i]
				}
				s.b += eta * target
			}
		}
	}
	s.trained = true
	return nil
}

// Predict returns a 0/1 label for each row of X.
func (s *SDG) Predict(X [][]float64) ([]int, error) {
	if !s.trained {
		return nil, ErrNotTrained
	}
	out := make([]int, len(X))
	for i, x := range X {
		if len(x) != len(s.w) {
			return nil, ErrDimensionMismatch
		}
		if dot(s.w, x)+s.b >= 0 {
			out[i] = 1
		}
	}
	return out, nil
}

// DecisionFunction returns the raw signed margin for each row of X,
// used by strategies that need a ranking rather than a hard label.
func (s *SDG) DecisionFunction(X [][]float64) ([]float64, error) {
	if !s.trained {
		return nil, ErrNotTrained
	}
	out := make([]float64, len(X))
	for i, x := range X {
		if len(x) != len(s.w) {
			return nil, ErrDimensionMismatch
		}
		out[i] = dot(s.w, x) + s.b
	}
	return out, nil
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
