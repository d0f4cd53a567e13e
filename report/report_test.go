package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/liftclass/metrics"
	"github.com/YuminosukeSato/liftclass/model_selection"
	"github.com/YuminosukeSato/liftclass/pipeline"
	"github.com/YuminosukeSato/liftclass/pkg/errors"
	"github.com/YuminosukeSato/liftclass/preprocessing"
)

func sampleResult(t *testing.T) *pipeline.Result {
	t.Helper()
	classes := []string{"A", "B", "C"}
	cm, err := metrics.NewConfusionMatrix(
		[]string{"A", "A", "B", "B", "C", "C"},
		[]string{"A", "A", "B", "C", "C", "C"},
		classes,
	)
	require.NoError(t, err)
	lo, hi := cm.AccuracyCI(0.95)
	ev := &pipeline.Evaluation{
		Model:            pipeline.ModelRandomForest,
		Confusion:        cm,
		Accuracy:         cm.Accuracy(),
		CILower:          lo,
		CIUpper:          hi,
		Kappa:            cm.Kappa(),
		ClassStats:       cm.ClassStats(),
		OutOfSampleError: cm.ErrorRate(),
	}
	forest := &pipeline.TrainedModel{
		Name:      pipeline.ModelRandomForest,
		TuneParam: "max_features",
		CVResults: []model_selection.CandidateResult{
			{Params: model_selection.Params{"max_features": 2}, MeanScore: 0.95, StdScore: 0.01},
			{Params: model_selection.Params{"max_features": 27}, MeanScore: 0.99, StdScore: 0.005},
			{Params: model_selection.Params{"max_features": 53}, MeanScore: 0.98, StdScore: 0.007},
		},
		BestParams:  model_selection.Params{"max_features": 27},
		BestScore:   0.99,
		Classes:     classes,
		Duration:    1500 * time.Millisecond,
		OOBAccuracy: 0.985,
	}
	return &pipeline.Result{
		RunID:          "3f1c2a",
		StartedAt:      time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC),
		Duration:       3 * time.Second,
		Seed:           12345,
		FitRows:        13737,
		EvalRows:       5885,
		ExaminableRows: 2,
		RawColumns:     160,
		Features:       []string{"roll_belt", "pitch_forearm"},
		Dropped: map[string]preprocessing.DropReason{
			"X1":                 preprocessing.ReasonPositional,
			"kurtosis_roll_belt": preprocessing.ReasonMissing,
			"new_window":         preprocessing.ReasonNearZeroVariance,
		},
		Models:      []*pipeline.TrainedModel{forest},
		Evaluations: []*pipeline.Evaluation{ev},
		Best:        ev,
		BestModel:   forest,
		Predictions: []pipeline.Prediction{{ID: "1", Class: "B"}, {ID: "2", Class: "A"}},
		Importances: []pipeline.FeatureImportance{
			{Feature: "roll_belt", Importance: 0.3},
			{Feature: "pitch_forearm", Importance: 0.2},
		},
	}
}

func TestMarkdown(t *testing.T) {
	md, err := Markdown(sampleResult(t))
	require.NoError(t, err)

	for _, want := range []string{
		"# " + Title,
		"- Run: `3f1c2a`",
		"| fit | 13737 |",
		"| missing | 1 | `kurtosis_roll_belt` |",
		"| near_zero_variance | 1 | `new_window` |",
		"| **max_features=27** | 0.9900 | 0.0050 |",
		"| max_features=2 | 0.9500 | 0.0100 |",
		"| Prediction \\ Reference | A | B | C |",
		"| C | 0 | 1 | 2 |",
		"**random forest** with holdout accuracy 0.8333",
		"| Problem_ID | Prediction |",
		"| 1 | B |",
		"| 1 | `roll_belt` | 0.3000 |",
		"```text\n",
		"Out-of-bag accuracy of the refitted model: 0.9850.",
	} {
		assert.Contains(t, md, want)
	}
	assert.Less(t, strings.Index(md, "## Cross-validation"), strings.Index(md, "## Holdout evaluation"))
	assert.Less(t, strings.Index(md, "## Selected model"), strings.Index(md, "## Predictions"))
}

func TestMarkdownIncomplete(t *testing.T) {
	_, err := Markdown(&pipeline.Result{})
	var vErr *errors.ValueError
	assert.True(t, errors.As(err, &vErr))

	_, err = Markdown(nil)
	assert.Error(t, err)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteError(t *testing.T) {
	err := Write(failingWriter{}, sampleResult(t))
	assert.EqualError(t, err, "disk full")
}

func TestRender(t *testing.T) {
	md, err := Markdown(sampleResult(t))
	require.NoError(t, err)
	out, err := Render(md, "notty", 80)
	require.NoError(t, err)
	assert.Contains(t, out, Title)
	assert.Contains(t, out, "roll_belt")
}

func TestCVPlot(t *testing.T) {
	res := sampleResult(t)
	p, err := CVPlot(res.Models[0])
	require.NoError(t, err)
	assert.Equal(t, "max_features", p.X.Label.Text)

	boosting := &pipeline.TrainedModel{
		Name:      pipeline.ModelBoosting,
		TuneParam: "num_iterations",
		CVResults: []model_selection.CandidateResult{
			{Params: model_selection.Params{"max_depth": 1, "num_iterations": 50}, MeanScore: 0.7},
			{Params: model_selection.Params{"max_depth": 1, "num_iterations": 100}, MeanScore: 0.8},
			{Params: model_selection.Params{"max_depth": 2, "num_iterations": 50}, MeanScore: 0.85},
			{Params: model_selection.Params{"max_depth": 2, "num_iterations": 100}, MeanScore: 0.9},
		},
	}
	_, err = CVPlot(boosting)
	require.NoError(t, err)

	_, err = CVPlot(&pipeline.TrainedModel{Name: "empty"})
	assert.Error(t, err)

	bad := &pipeline.TrainedModel{
		Name:      "bad",
		TuneParam: "criterion",
		CVResults: []model_selection.CandidateResult{{Params: model_selection.Params{"criterion": "gini"}}},
	}
	_, err = CVPlot(bad)
	var valErr *errors.ValidationError
	assert.True(t, errors.As(err, &valErr))
}

func TestSavePlot(t *testing.T) {
	res := sampleResult(t)
	dir := t.TempDir()
	for _, name := range []string{"accuracy.png", "accuracy.svg"} {
		path := filepath.Join(dir, name)
		require.NoError(t, SavePlot(res.Models[0], path))
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
}
