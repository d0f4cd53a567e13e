package pipeline

import (
	"sort"

	"github.com/YuminosukeSato/liftclass/core/model"
	"github.com/YuminosukeSato/liftclass/dataset"
	"github.com/YuminosukeSato/liftclass/pkg/errors"
)

// Prediction is the predicted class of one examinable row.
type Prediction struct {
	ID    string
	Class string
}

// Predict applies clf to every row of examinable, keeping input order.
func Predict(clf model.Classifier, examinable dataset.Matrix, ids []string) ([]Prediction, error) {
	if clf == nil {
		return nil, errors.NewValueError("pipeline.Predict", "classifier is nil")
	}
	rows, _ := examinable.Dims()
	if len(ids) != rows {
		return nil, errors.NewDimensionError("pipeline.Predict", rows, len(ids), 0)
	}
	if rows == 0 {
		return nil, nil
	}
	codes, err := clf.Predict(examinable.X)
	if err != nil {
		return nil, errors.Wrap(err, "pipeline.Predict")
	}
	classes, err := examinable.Decode(codes)
	if err != nil {
		return nil, err
	}
	out := make([]Prediction, rows)
	for i := range out {
		out[i] = Prediction{ID: ids[i], Class: classes[i]}
	}
	return out, nil
}

// FeatureImportance is the weight of one feature in a fitted model.
type FeatureImportance struct {
	Feature    string
	Importance float64
}

// TopImportances returns the n most important features of tm, highest first.
// Models without importances return nil.
func TopImportances(tm *TrainedModel, n int) ([]FeatureImportance, error) {
	imp, ok := tm.Classifier.(model.FeatureImportancer)
	if !ok {
		return nil, nil
	}
	values, err := imp.FeatureImportances()
	if err != nil {
		return nil, err
	}
	if len(values) != len(tm.Schema.Names) {
		return nil, errors.NewDimensionError("pipeline.TopImportances", len(tm.Schema.Names), len(values), 1)
	}
	out := make([]FeatureImportance, len(values))
	for i, v := range values {
		out[i] = FeatureImportance{Feature: tm.Schema.Names[i], Importance: v}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}
