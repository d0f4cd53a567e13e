package ensemble

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/liftclass/pkg/errors"
	"github.com/YuminosukeSato/liftclass/pkg/log"
)

// blobs returns three well separated classes on features 0 and 1 plus two
// noise features.
func blobs(n int, seed uint64) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewPCG(seed, seed))
	X := mat.NewDense(n, 4, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		c := i % 3
		X.Set(i, 0, float64(c)*3+rng.NormFloat64()*0.5)
		X.Set(i, 1, -float64(c)*2+rng.NormFloat64()*0.5)
		X.Set(i, 2, rng.NormFloat64())
		X.Set(i, 3, rng.Float64())
		y.Set(i, 0, float64(c))
	}
	return X, y
}

func quietLogger() log.Logger {
	l, _ := log.NewTestLogger(log.LevelError)
	return l
}

func accuracy(t *testing.T, pred, y mat.Matrix) float64 {
	t.Helper()
	rows, _ := y.Dims()
	hits := 0
	for i := 0; i < rows; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			hits++
		}
	}
	return float64(hits) / float64(rows)
}

func TestRandomForestFitPredict(t *testing.T) {
	defer goleak.VerifyNone(t)

	X, y := blobs(300, 1)
	rf := NewRandomForestClassifier(
		WithNEstimators(25),
		WithRandomState(7),
		WithLogger(quietLogger()),
	)
	require.NoError(t, rf.Fit(X, y))
	assert.Equal(t, []int{0, 1, 2}, rf.Classes())
	assert.Len(t, rf.Trees(), 25)

	pred, err := rf.Predict(X)
	require.NoError(t, err)
	assert.Greater(t, accuracy(t, pred, y), 0.97)

	XNew, yNew := blobs(150, 99)
	pred, err = rf.Predict(XNew)
	require.NoError(t, err)
	assert.Greater(t, accuracy(t, pred, yNew), 0.9)

	proba, err := rf.PredictProba(XNew)
	require.NoError(t, err)
	rows, cols := proba.Dims()
	require.Equal(t, 3, cols)
	for i := 0; i < rows; i++ {
		sum := 0.0
		for j := 0; j < cols; j++ {
			sum += proba.At(i, j)
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	}
}

func TestRandomForestDeterministic(t *testing.T) {
	defer goleak.VerifyNone(t)

	X, y := blobs(120, 3)
	fit := func(jobs int) mat.Matrix {
		rf := NewRandomForestClassifier(
			WithNEstimators(10),
			WithMaxFeatures(2),
			WithRandomState(12345),
			WithNJobs(jobs),
			WithLogger(quietLogger()),
		)
		require.NoError(t, rf.Fit(X, y))
		proba, err := rf.PredictProba(X)
		require.NoError(t, err)
		return proba
	}

	assert.True(t, mat.Equal(fit(1), fit(4)), "worker count must not change the forest")
}

func TestRandomForestOOBAndImportances(t *testing.T) {
	defer goleak.VerifyNone(t)

	X, y := blobs(300, 5)
	rf := NewRandomForestClassifier(WithNEstimators(30), WithRandomState(1), WithLogger(quietLogger()))
	require.NoError(t, rf.Fit(X, y))

	oob, err := rf.OOBScore()
	require.NoError(t, err)
	assert.Greater(t, oob, 0.9)
	assert.LessOrEqual(t, oob, 1.0)

	imp, err := rf.FeatureImportances()
	require.NoError(t, err)
	require.Len(t, imp, 4)
	assert.InDelta(t, 1.0, imp[0]+imp[1]+imp[2]+imp[3], 1e-9)
	assert.Greater(t, imp[0]+imp[1], imp[2]+imp[3])

	noBag := NewRandomForestClassifier(WithNEstimators(3), WithBootstrap(false), WithLogger(quietLogger()))
	require.NoError(t, noBag.Fit(X, y))
	oob, err = noBag.OOBScore()
	require.NoError(t, err)
	assert.True(t, math.IsNaN(oob))
}

func TestRandomForestErrors(t *testing.T) {
	X, y := blobs(30, 2)

	rf := NewRandomForestClassifier(WithLogger(quietLogger()))
	_, err := rf.Predict(X)
	var notFitted *errors.NotFittedError
	assert.True(t, errors.As(err, &notFitted))

	var valErr *errors.ValidationError
	err = NewRandomForestClassifier(WithMaxFeatures(5), WithLogger(quietLogger())).Fit(X, y)
	assert.True(t, errors.As(err, &valErr))

	err = NewRandomForestClassifier(WithNEstimators(0), WithLogger(quietLogger())).Fit(X, y)
	assert.True(t, errors.As(err, &valErr))

	rf = NewRandomForestClassifier(WithNEstimators(2), WithLogger(quietLogger()))
	require.NoError(t, rf.Fit(X, y))
	_, err = rf.PredictProba(mat.NewDense(1, 3, nil))
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))
}

func TestRandomForestParams(t *testing.T) {
	rf := NewRandomForestClassifier()
	params := rf.GetParams()
	assert.Equal(t, 100, params["n_estimators"])
	assert.Equal(t, 0, params["max_features"])

	require.NoError(t, rf.SetParams(map[string]interface{}{"max_features": 3, "random_state": uint64(9)}))
	assert.Equal(t, 3, rf.MaxFeatures)
	assert.Equal(t, uint64(9), rf.RandomState)

	err := rf.SetParams(map[string]interface{}{"max_features": 4, "mtry": 2})
	assert.Error(t, err)
	assert.Equal(t, 3, rf.MaxFeatures)
}
