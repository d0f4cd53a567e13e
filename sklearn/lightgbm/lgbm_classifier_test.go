package lightgbm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/liftclass/pkg/errors"
	"github.com/YuminosukeSato/liftclass/pkg/log"
)

func quietClassifier() *LGBMClassifier {
	l, _ := log.NewTestLogger(log.LevelError)
	return NewLGBMClassifier().WithLogger(l)
}

// binaryData returns 100 rows whose class flips at row 50.
func binaryData() (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(100, 4, nil)
	y := mat.NewDense(100, 1, nil)
	for i := 0; i < 100; i++ {
		for j := 0; j < 4; j++ {
			X.Set(i, j, float64(i*j)/100.0)
		}
		if i >= 50 {
			y.Set(i, 0, 1)
		}
	}
	return X, y
}

// TestLGBMClassifierBinaryFit tests the fit method for binary classification
func TestLGBMClassifierBinaryFit(t *testing.T) {
	X, y := binaryData()

	clf := quietClassifier()
	err := clf.Fit(X, y)
	require.NoError(t, err)

	// Verify model is fitted
	assert.True(t, clf.state.IsFitted())
	assert.NotNil(t, clf.Model)
	assert.Equal(t, 2, clf.nClasses_)
	assert.Equal(t, []int{0, 1}, clf.classes_)
	assert.Equal(t, 100, clf.Model.NumIterations())
	assert.Len(t, clf.Model.Trees, 200)
}

// TestLGBMClassifierMulticlassFit tests the fit method for multiclass classification
func TestLGBMClassifierMulticlassFit(t *testing.T) {
	X := mat.NewDense(150, 4, nil)
	y := mat.NewDense(150, 1, nil)
	for i := 0; i < 150; i++ {
		for j := 0; j < 4; j++ {
			X.Set(i, j, float64(i*j)/150.0)
		}
		y.Set(i, 0, float64(i%3))
	}

	clf := quietClassifier()
	err := clf.Fit(X, y)
	require.NoError(t, err)

	assert.True(t, clf.state.IsFitted())
	assert.Equal(t, 3, clf.nClasses_)
	assert.Equal(t, []int{0, 1, 2}, clf.classes_)
	assert.Equal(t, []int{0, 1, 2}, clf.Classes())
}

// TestLGBMClassifierPredict tests prediction for binary classification
func TestLGBMClassifierPredict(t *testing.T) {
	X, y := binaryData()

	clf := quietClassifier()
	require.NoError(t, clf.Fit(X, y))

	XTest := mat.NewDense(10, 4, nil)
	for i := 0; i < 10; i++ {
		for j := 0; j < 4; j++ {
			XTest.Set(i, j, float64(i*j)/10.0)
		}
	}

	predictions, err := clf.Predict(XTest)
	require.NoError(t, err)

	rows, cols := predictions.Dims()
	assert.Equal(t, 10, rows)
	assert.Equal(t, 1, cols)
	for i := 0; i < rows; i++ {
		pred := predictions.At(i, 0)
		assert.True(t, pred == 0 || pred == 1)
	}
}

// TestLGBMClassifierPredictProba tests probability prediction
func TestLGBMClassifierPredictProba(t *testing.T) {
	X, y := binaryData()

	clf := quietClassifier()
	require.NoError(t, clf.Fit(X, y))

	proba, err := clf.PredictProba(X)
	require.NoError(t, err)

	rows, cols := proba.Dims()
	assert.Equal(t, 100, rows)
	assert.Equal(t, 2, cols) // Binary classification has 2 columns

	for i := 0; i < rows; i++ {
		sum := 0.0
		for j := 0; j < cols; j++ {
			prob := proba.At(i, j)
			assert.GreaterOrEqual(t, prob, 0.0)
			assert.LessOrEqual(t, prob, 1.0)
			sum += prob
		}
		assert.InDelta(t, 1.0, sum, 1e-6)
	}
	// rows far from the boundary are confident
	assert.Greater(t, proba.At(0, 0), 0.9)
	assert.Greater(t, proba.At(99, 1), 0.9)
}

// TestLGBMClassifierScore tests accuracy calculation
func TestLGBMClassifierScore(t *testing.T) {
	X := mat.NewDense(100, 4, nil)
	y := mat.NewDense(100, 1, nil)

	// Feature 0 perfectly separates classes
	for i := 0; i < 100; i++ {
		X.Set(i, 0, float64(i))
		for j := 1; j < 4; j++ {
			X.Set(i, j, float64(i%10)/10.0)
		}
		if i >= 50 {
			y.Set(i, 0, 1)
		}
	}

	clf := quietClassifier()
	require.NoError(t, clf.Fit(X, y))

	score, err := clf.Score(X, y)
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)
}

// TestLGBMClassifierParameters tests parameter setting and getting
func TestLGBMClassifierParameters(t *testing.T) {
	clf := NewLGBMClassifier()

	err := clf.SetParams(map[string]interface{}{
		"n_estimators":      50,
		"learning_rate":     0.05,
		"max_depth":         5,
		"num_leaves":        20,
		"min_child_samples": 10,
		"colsample_bytree":  0.8,
		"reg_lambda":        0.1,
		"random_state":      42,
	})
	require.NoError(t, err)

	params := clf.GetParams()
	assert.Equal(t, 50, params["num_iterations"])
	assert.Equal(t, 0.05, params["learning_rate"])
	assert.Equal(t, 5, params["max_depth"])
	assert.Equal(t, 20, params["num_leaves"])
	assert.Equal(t, 0.8, params["colsample_bytree"])
	assert.Equal(t, uint64(42), params["random_state"])

	t.Run("wrong type leaves parameters unchanged", func(t *testing.T) {
		err := clf.SetParams(map[string]interface{}{"max_depth": 2, "learning_rate": "fast"})
		var vErr *errors.ValidationError
		require.True(t, errors.As(err, &vErr), "got %v", err)
		assert.Equal(t, 5, clf.MaxDepth)
		assert.Equal(t, 0.05, clf.LearningRate)
	})

	t.Run("unknown key", func(t *testing.T) {
		assert.Error(t, clf.SetParams(map[string]interface{}{"boosting": "dart"}))
	})

	t.Run("negative seed", func(t *testing.T) {
		assert.Error(t, clf.SetParams(map[string]interface{}{"random_state": -1}))
	})
}

// TestLGBMClassifierFeatureImportance tests feature importance extraction
func TestLGBMClassifierFeatureImportance(t *testing.T) {
	X := mat.NewDense(100, 4, nil)
	y := mat.NewDense(100, 1, nil)

	// Create data where feature 0 is most important
	for i := 0; i < 100; i++ {
		X.Set(i, 0, float64(i))
		X.Set(i, 1, float64(i%10)/10.0)
		X.Set(i, 2, 0.5) // Constant - least important
		X.Set(i, 3, float64(i%5)/5.0)
		if i >= 50 {
			y.Set(i, 0, 1)
		}
	}

	clf := quietClassifier()
	require.Nil(t, clf.GetFeatureImportance("gain"))
	require.NoError(t, clf.Fit(X, y))

	importance := clf.GetFeatureImportance("gain")
	require.Len(t, importance, 4)

	maxIdx := 0
	sum := 0.0
	for i, imp := range importance {
		sum += imp
		if imp > importance[maxIdx] {
			maxIdx = i
		}
	}
	assert.Equal(t, 0, maxIdx, "Feature 0 should be most important")
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Zero(t, importance[2])

	fromInterface, err := clf.FeatureImportances()
	require.NoError(t, err)
	assert.Equal(t, importance, fromInterface)

	splits := clf.GetFeatureImportance("split")
	assert.Len(t, splits, 4)
	assert.Nil(t, clf.GetFeatureImportance("cover"))
}

// TestLGBMClassifierNotFittedError tests error when predict before fit
func TestLGBMClassifierNotFittedError(t *testing.T) {
	clf := NewLGBMClassifier()
	XTest := mat.NewDense(10, 4, nil)

	_, err := clf.Predict(XTest)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not fitted")

	_, err = clf.PredictProba(XTest)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not fitted")

	_, err = clf.StagedPredict(XTest, []int{1})
	var nfErr *errors.NotFittedError
	assert.True(t, errors.As(err, &nfErr))
}

func TestLGBMClassifierFeatureMismatch(t *testing.T) {
	X, y := binaryData()
	clf := quietClassifier()
	require.NoError(t, clf.Fit(X, y))

	_, err := clf.Predict(mat.NewDense(3, 5, nil))
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr), "got %v", err)
}

// TestLGBMClassifierMulticlassPredict tests multiclass prediction
func TestLGBMClassifierMulticlassPredict(t *testing.T) {
	X := mat.NewDense(150, 4, nil)
	y := mat.NewDense(150, 1, nil)
	for i := 0; i < 150; i++ {
		class := i / 50 // 0, 1, or 2
		for j := 0; j < 4; j++ {
			X.Set(i, j, float64(class*10+j+i%10)/100.0)
		}
		y.Set(i, 0, float64(class))
	}

	clf := quietClassifier()
	require.NoError(t, clf.Fit(X, y))

	predictions, err := clf.Predict(X)
	require.NoError(t, err)
	score, err := clf.Score(X, y)
	require.NoError(t, err)
	assert.Greater(t, score, 0.9)

	rows, _ := predictions.Dims()
	for i := 0; i < rows; i++ {
		pred := predictions.At(i, 0)
		assert.True(t, pred == 0 || pred == 1 || pred == 2)
	}

	proba, err := clf.PredictProba(X)
	require.NoError(t, err)
	probaRows, probaCols := proba.Dims()
	assert.Equal(t, 150, probaRows)
	assert.Equal(t, 3, probaCols)
	for i := 0; i < probaRows; i++ {
		assert.InDelta(t, 1.0, mat.Sum(proba.(*mat.Dense).RowView(i)), 1e-6)
	}
}

// TestLGBMClassifierDecisionFunction tests decision function values
func TestLGBMClassifierDecisionFunction(t *testing.T) {
	X, y := binaryData()

	clf := quietClassifier()
	require.NoError(t, clf.Fit(X, y))

	decision, err := clf.DecisionFunction(X)
	require.NoError(t, err)

	rows, cols := decision.Dims()
	assert.Equal(t, 100, rows)
	assert.Equal(t, 2, cols) // one raw score per class

	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			val := decision.At(i, j)
			assert.False(t, math.IsNaN(val))
			assert.False(t, math.IsInf(val, 0))
		}
	}
}

func TestLGBMClassifierStagedPredict(t *testing.T) {
	defer goleak.VerifyNone(t)

	X := mat.NewDense(150, 4, nil)
	y := mat.NewDense(150, 1, nil)
	for i := 0; i < 150; i++ {
		class := i / 50
		for j := 0; j < 4; j++ {
			X.Set(i, j, float64(class*10+j+i%10)/100.0)
		}
		y.Set(i, 0, float64(class))
	}

	clf := quietClassifier().WithNumIterations(30).WithMaxDepth(2)
	require.NoError(t, clf.Fit(X, y))

	staged, err := clf.StagedPredict(X, []int{30, 1, 10, 500})
	require.NoError(t, err)
	require.Len(t, staged, 4)

	full, err := clf.Predict(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(full, staged[0]))
	// counts above the trained rounds use the whole model
	assert.True(t, mat.Equal(full, staged[3]))

	rows, cols := staged[1].Dims()
	assert.Equal(t, 150, rows)
	assert.Equal(t, 1, cols)

	_, err = clf.StagedPredict(X, []int{0})
	assert.Error(t, err)
}

func TestLGBMClassifierMissingValues(t *testing.T) {
	// class 1 rows have no reading for feature 0
	X := mat.NewDense(120, 2, nil)
	y := mat.NewDense(120, 1, nil)
	for i := 0; i < 120; i++ {
		if i < 60 {
			X.Set(i, 0, float64(i))
		} else {
			X.Set(i, 0, math.NaN())
			y.Set(i, 0, 1)
		}
		X.Set(i, 1, float64(i%7))
	}

	clf := quietClassifier().WithNumIterations(20)
	require.NoError(t, clf.Fit(X, y))

	score, err := clf.Score(X, y)
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)

	pred, err := clf.Predict(mat.NewDense(2, 2, []float64{math.NaN(), 3, 1000, 3}))
	require.NoError(t, err)
	assert.Equal(t, 1.0, pred.At(0, 0))
	assert.Equal(t, 0.0, pred.At(1, 0))
}

func TestLGBMClassifierEvalHistory(t *testing.T) {
	X, y := binaryData()

	var recorded map[string][]float64
	clf := quietClassifier().
		WithNumIterations(15).
		WithCallbacks(RecordEvaluation(&recorded))
	require.NoError(t, clf.Fit(X, y))

	history := clf.EvalHistory()[TrainingLossMetric]
	require.Len(t, history, 15)
	assert.Less(t, history[14], history[0])
	assert.Equal(t, history, recorded[TrainingLossMetric])
}

func TestLGBMClassifierEarlyStopping(t *testing.T) {
	X, y := binaryData()

	testLogger, _ := log.NewTestLogger(log.LevelDebug)
	clf := NewLGBMClassifier().
		WithLogger(testLogger).
		WithNumIterations(50).
		WithCallbacks(
			LogEvaluation(testLogger, 1),
			EarlyStoppingCallback(3, TrainingLossMetric, 1.0, testLogger),
		)
	require.NoError(t, clf.Fit(X, y))

	// only the first round improves the loss by more than 1.0
	assert.Equal(t, 4, clf.Model.NumIterations())
	assert.True(t, testLogger.ContainsMessage("early stopping"))
	assert.True(t, testLogger.ContainsMessage("boosting round"))
	assert.True(t, testLogger.ContainsField(log.ModelNameKey, "LGBMClassifier"))
}

func TestLGBMClassifierDeterministic(t *testing.T) {
	defer goleak.VerifyNone(t)

	X := mat.NewDense(150, 6, nil)
	y := mat.NewDense(150, 1, nil)
	for i := 0; i < 150; i++ {
		class := i % 3
		for j := 0; j < 6; j++ {
			X.Set(i, j, float64((i*(j+3))%17)+float64(class*(j%2)))
		}
		y.Set(i, 0, float64(class))
	}

	fit := func(threads int) mat.Matrix {
		clf := quietClassifier().
			WithNumIterations(20).
			WithColsampleBytree(0.5).
			WithRandomState(9).
			WithNumThreads(threads)
		require.NoError(t, clf.Fit(X, y))
		proba, err := clf.PredictProba(X)
		require.NoError(t, err)
		return proba
	}
	assert.True(t, mat.Equal(fit(1), fit(4)))
}

func TestLGBMClassifierValidation(t *testing.T) {
	X, y := binaryData()

	tests := []struct {
		name string
		clf  *LGBMClassifier
	}{
		{"zero iterations", quietClassifier().WithNumIterations(0)},
		{"negative learning rate", quietClassifier().WithLearningRate(-0.1)},
		{"one leaf", quietClassifier().WithNumLeaves(1)},
		{"too many bins", quietClassifier().WithMaxBin(1000)},
		{"empty feature fraction", quietClassifier().WithColsampleBytree(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.clf.Fit(X, y)
			var vErr *errors.ValidationError
			assert.True(t, errors.As(err, &vErr), "got %v", err)
			assert.False(t, tt.clf.state.IsFitted())
		})
	}

	single := mat.NewDense(100, 1, nil)
	assert.True(t, errors.Is(quietClassifier().Fit(X, single), errors.ErrSingleClass))
}

func TestBinMapper(t *testing.T) {
	t.Run("few distinct values get midpoint bounds", func(t *testing.T) {
		m := newBinMapper([]float64{3, 1, 2, 2, math.NaN()}, 255)
		assert.Equal(t, []float64{1.5, 2.5, math.Inf(1)}, m.UpperBounds)
		assert.True(t, m.HasNaN)
		assert.Equal(t, 0, m.ValueToBin(1))
		assert.Equal(t, 1, m.ValueToBin(2))
		assert.Equal(t, 2, m.ValueToBin(99))
		assert.Equal(t, 3, m.ValueToBin(math.NaN()))
	})

	t.Run("many distinct values are quantile binned", func(t *testing.T) {
		values := make([]float64, 1000)
		for i := range values {
			values[i] = float64(i)
		}
		m := newBinMapper(values, 16)
		assert.LessOrEqual(t, m.NumBins(), 16)
		assert.False(t, m.HasNaN)
		prev := 0
		for _, v := range values {
			b := m.ValueToBin(v)
			assert.GreaterOrEqual(t, b, prev)
			prev = b
		}
		assert.Equal(t, m.NumBins()-1, m.ValueToBin(1e9))
	})

	t.Run("all missing", func(t *testing.T) {
		m := newBinMapper([]float64{math.NaN(), math.NaN()}, 255)
		assert.Equal(t, 1, m.NumBins())
		assert.Equal(t, 1, m.NaNBin())
	})
}

func TestTrainerRejectsUnstableGradients(t *testing.T) {
	tr := NewTrainer(DefaultTrainingParams(), nil)
	tr.objective = NewMulticlassLogLoss(3, 1)

	labels := []int{0, 1, 2}
	grad := make([]float64, 9)
	hess := make([]float64, 9)
	scores := []float64{0, 0, 0, 1, 2, 3, -1, 0, 1}
	require.NoError(t, tr.gradients(labels, scores, grad, hess, 1))

	scores[4] = math.NaN()
	err := tr.gradients(labels, scores, grad, hess, 7)
	var numErr *errors.NumericalInstabilityError
	require.True(t, errors.As(err, &numErr), "got %v", err)
	assert.Equal(t, 7, numErr.Iteration)
	assert.Len(t, numErr.Values, 3)
}
