package dataset

import (
	"github.com/go-gota/gota/dataframe"

	"github.com/YuminosukeSato/liftclass/model_selection"
	"github.com/YuminosukeSato/liftclass/pkg/errors"
	"github.com/YuminosukeSato/liftclass/pkg/log"
)

// Labels returns the label column as strings. Missing labels are an error.
func Labels(df dataframe.DataFrame, label string) ([]string, error) {
	if !HasColumn(df, label) {
		return nil, errors.NewColumnNotFoundError("dataset.Labels", label)
	}
	col := df.Col(label)
	for i, isNaN := range col.IsNaN() {
		if isNaN {
			return nil, errors.NewValueError("dataset.Labels", "missing label in row "+itoa(i+1))
		}
	}
	return col.Records(), nil
}

// Partition splits df into a fit table and an evaluation table, stratified by
// the label column.
func Partition(df dataframe.DataFrame, label string, fraction float64, seed uint64) (fit, eval dataframe.DataFrame, err error) {
	labels, err := Labels(df, label)
	if err != nil {
		return fit, eval, err
	}
	trainIdx, testIdx, err := model_selection.StratifiedTrainTestSplit(labels, fraction, seed)
	if err != nil {
		return fit, eval, err
	}
	if len(testIdx) == 0 {
		return fit, eval, errors.NewValueError("dataset.Partition", "evaluation subset is empty")
	}

	fit = df.Subset(trainIdx)
	eval = df.Subset(testIdx)
	if fit.Err != nil {
		return fit, eval, errors.Wrap(fit.Err, "dataset.Partition")
	}
	if eval.Err != nil {
		return fit, eval, errors.Wrap(eval.Err, "dataset.Partition")
	}

	log.GetLoggerWithName("dataset").Info("table partitioned",
		log.PhaseKey, log.PhasePartition,
		log.RandomSeedKey, seed,
		"fit_rows", fit.Nrow(),
		"eval_rows", eval.Nrow(),
	)
	return fit, eval, nil
}
