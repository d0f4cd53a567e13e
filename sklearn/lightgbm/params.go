package lightgbm

import (
	"runtime"

	"github.com/YuminosukeSato/liftclass/pkg/errors"
)

// TrainingParams contains all training hyperparameters
type TrainingParams struct {
	// Basic parameters
	NumIterations int     `json:"num_iterations"`
	LearningRate  float64 `json:"learning_rate"`
	NumLeaves     int     `json:"num_leaves"`
	// MaxDepth limits the depth of every tree. A non-positive value means no limit.
	MaxDepth      int `json:"max_depth"`
	MinDataInLeaf int `json:"min_data_in_leaf"`

	// Regularization
	Lambda          float64 `json:"lambda_l2"`
	MinGainToSplit  float64 `json:"min_gain_to_split"`
	MinSumHessian   float64 `json:"min_sum_hessian_in_leaf"`
	FeatureFraction float64 `json:"feature_fraction"`

	// Histogram parameters
	MaxBin int `json:"max_bin"`

	// Other
	Seed       uint64 `json:"seed"`
	NumThreads int    `json:"num_threads"`
}

// DefaultTrainingParams returns the parameters used when nothing is set.
func DefaultTrainingParams() TrainingParams {
	return TrainingParams{
		NumIterations:   100,
		LearningRate:    0.1,
		NumLeaves:       31,
		MaxDepth:        -1,
		MinDataInLeaf:   10,
		Lambda:          0,
		MinGainToSplit:  0,
		MinSumHessian:   1e-3,
		FeatureFraction: 1.0,
		MaxBin:          255,
	}
}

// Validate checks the ranges of every parameter.
func (p TrainingParams) Validate() error {
	switch {
	case p.NumIterations < 1:
		return errors.NewValidationError("num_iterations", "must be >= 1", p.NumIterations)
	case p.LearningRate <= 0:
		return errors.NewValidationError("learning_rate", "must be > 0", p.LearningRate)
	case p.NumLeaves < 2:
		return errors.NewValidationError("num_leaves", "must be >= 2", p.NumLeaves)
	case p.MinDataInLeaf < 1:
		return errors.NewValidationError("min_data_in_leaf", "must be >= 1", p.MinDataInLeaf)
	case p.Lambda < 0:
		return errors.NewValidationError("lambda_l2", "must be >= 0", p.Lambda)
	case p.MinGainToSplit < 0:
		return errors.NewValidationError("min_gain_to_split", "must be >= 0", p.MinGainToSplit)
	case p.FeatureFraction <= 0 || p.FeatureFraction > 1:
		return errors.NewValidationError("feature_fraction", "must be in (0, 1]", p.FeatureFraction)
	case p.MaxBin < 2 || p.MaxBin > maxBinLimit:
		return errors.NewValidationError("max_bin", "must be in [2, 255]", p.MaxBin)
	}
	return nil
}

func (p TrainingParams) workers() int {
	if p.NumThreads > 0 {
		return p.NumThreads
	}
	return runtime.NumCPU()
}
