// Package model defines the interfaces shared by the classifiers in this module.
package model

import (
	"gonum.org/v1/gonum/mat"
)

// Classifier combines interfaces for classification models.
type Classifier interface {
	Estimator

	// PredictProba returns probability estimates for each class.
	// Columns follow the order of Classes().
	PredictProba(X mat.Matrix) (mat.Matrix, error)

	// Classes returns the unique class codes seen during fitting.
	Classes() []int
}

// ParameterGetter is the interface for models that expose their parameters.
type ParameterGetter interface {
	// GetParams returns the model's hyperparameters.
	GetParams() map[string]interface{}
}

// FeatureImportancer is implemented by models that can rank their inputs.
type FeatureImportancer interface {
	// FeatureImportances returns one non-negative weight per feature, summing to 1.
	FeatureImportances() ([]float64, error)
}

// StagedPredictor is implemented by additive models whose predictions can be
// read after a prefix of their iterations.
type StagedPredictor interface {
	// StagedPredict returns class codes after each requested number of iterations.
	StagedPredict(X mat.Matrix, iterations []int) ([]mat.Matrix, error)
}
