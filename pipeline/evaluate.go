package pipeline

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/liftclass/core/model"
	"github.com/YuminosukeSato/liftclass/dataset"
	"github.com/YuminosukeSato/liftclass/metrics"
	"github.com/YuminosukeSato/liftclass/pkg/errors"
	"github.com/YuminosukeSato/liftclass/pkg/log"
)

// Evaluation is the holdout performance of one classifier.
type Evaluation struct {
	Model     string
	Confusion *metrics.ConfusionMatrix
	Accuracy  float64
	// CILower and CIUpper bound the 95% exact binomial interval of Accuracy.
	CILower           float64
	CIUpper           float64
	NoInformationRate float64
	PValue            float64
	Kappa             float64
	ClassStats        []metrics.ClassStats
	// OutOfSampleError is 1 - Accuracy.
	OutOfSampleError float64
}

// Evaluate scores clf on a labelled evaluation matrix.
func Evaluate(clf model.Classifier, eval dataset.Matrix) (*Evaluation, error) {
	if clf == nil {
		return nil, errors.NewValueError("pipeline.Evaluate", "classifier is nil")
	}
	truth, err := eval.LabelNames()
	if err != nil {
		return nil, err
	}
	codes, err := clf.Predict(eval.X)
	if err != nil {
		return nil, errors.Wrap(err, "pipeline.Evaluate")
	}
	pred, err := eval.Decode(codes)
	if err != nil {
		return nil, err
	}

	cm, err := metrics.NewConfusionMatrix(truth, pred, eval.Classes)
	if err != nil {
		return nil, err
	}
	oos, err := metrics.ClassificationError(column(eval.Y), column(codes))
	if err != nil {
		return nil, err
	}
	lower, upper := cm.AccuracyCI(0.95)
	return &Evaluation{
		Confusion:         cm,
		Accuracy:          cm.Accuracy(),
		CILower:           lower,
		CIUpper:           upper,
		NoInformationRate: cm.NoInformationRate(),
		PValue:            cm.AccuracyPValue(),
		Kappa:             cm.Kappa(),
		ClassStats:        cm.ClassStats(),
		OutOfSampleError:  oos,
	}, nil
}

func column(m mat.Matrix) *mat.VecDense {
	rows, _ := m.Dims()
	return mat.NewVecDense(rows, mat.Col(nil, 0, m))
}

// evaluateModel checks the schema of eval against tm and evaluates it.
func evaluateModel(tm *TrainedModel, eval dataset.Matrix, logger log.Logger) (*Evaluation, error) {
	if err := tm.Schema.Check("pipeline.Evaluate", eval.Schema); err != nil {
		return nil, err
	}
	ev, err := Evaluate(tm.Classifier, eval)
	if err != nil {
		return nil, errors.Wrapf(err, "evaluating %s", tm.Name)
	}
	ev.Model = tm.Name
	logger.Info("model evaluated",
		log.PhaseKey, log.PhaseEvaluation,
		log.ModelNameKey, tm.Name,
		log.AccuracyKey, ev.Accuracy,
		log.KappaKey, ev.Kappa,
		"oos_error", ev.OutOfSampleError,
	)
	return ev, nil
}

// SelectBest returns the evaluation with the highest accuracy. Ties are
// broken by kappa, then by the order random forest, boosting, decision tree.
func SelectBest(evals []*Evaluation) (*Evaluation, error) {
	if len(evals) == 0 {
		return nil, errors.NewValueError("pipeline.SelectBest", "no evaluations")
	}
	ranked := make([]*Evaluation, 0, len(evals))
	for _, ev := range evals {
		if ev != nil {
			ranked = append(ranked, ev)
		}
	}
	if len(ranked) == 0 {
		return nil, errors.NewValueError("pipeline.SelectBest", "no evaluations")
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Accuracy != b.Accuracy {
			return a.Accuracy > b.Accuracy
		}
		if a.Kappa != b.Kappa {
			return a.Kappa > b.Kappa
		}
		return rank(a.Model) < rank(b.Model)
	})
	return ranked[0], nil
}

func rank(name string) int {
	if r, ok := modelOrder[name]; ok {
		return r
	}
	return len(modelOrder)
}
