package lightgbm

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/liftclass/core/model"
	"github.com/YuminosukeSato/liftclass/metrics"
	"github.com/YuminosukeSato/liftclass/pkg/errors"
	"github.com/YuminosukeSato/liftclass/pkg/log"
)

// LGBMClassifier は勾配ブースティング決定木による多クラス分類器
//
// 各ラウンドでクラスごとに 1 本の回帰木をソフトマックス損失の勾配に当てはめる。
// 分割はヒストグラム(最大 MaxBin 個のビン)上で探し、欠損値は学習時に
// 利得の大きい側へ送られる。StagedPredict により、1 回の学習から
// 任意のラウンド数での予測を得られる。
//
// 使用例:
//
//	clf := lightgbm.NewLGBMClassifier().
//	    WithMaxDepth(3).
//	    WithNumIterations(150)
//	err := clf.Fit(X, y)
//	pred, err := clf.Predict(XTest)
type LGBMClassifier struct {
	// Parameters
	NumIterations   int
	LearningRate    float64
	NumLeaves       int
	MaxDepth        int
	MinChildSamples int
	RegLambda       float64
	MinSplitGain    float64
	MaxBin          int
	ColsampleBytree float64
	RandomState     uint64
	NumThreads      int

	// Model is the trained ensemble, nil before Fit.
	Model *Model

	callbacks   []Callback
	evalHistory map[string][]float64

	state     *model.StateManager
	logger    log.Logger
	classes_  []int
	nClasses_ int
}

// NewLGBMClassifier creates a classifier with the default training parameters.
func NewLGBMClassifier() *LGBMClassifier {
	d := DefaultTrainingParams()
	return &LGBMClassifier{
		NumIterations:   d.NumIterations,
		LearningRate:    d.LearningRate,
		NumLeaves:       d.NumLeaves,
		MaxDepth:        d.MaxDepth,
		MinChildSamples: d.MinDataInLeaf,
		RegLambda:       d.Lambda,
		MinSplitGain:    d.MinGainToSplit,
		MaxBin:          d.MaxBin,
		ColsampleBytree: d.FeatureFraction,
		state:           model.NewStateManager(),
		logger:          log.GetLoggerWithName("lightgbm"),
	}
}

// WithNumIterations sets the number of boosting rounds
func (c *LGBMClassifier) WithNumIterations(n int) *LGBMClassifier {
	c.NumIterations = n
	return c
}

// WithLearningRate sets the shrinkage applied to every leaf
func (c *LGBMClassifier) WithLearningRate(lr float64) *LGBMClassifier {
	c.LearningRate = lr
	return c
}

// WithNumLeaves sets the maximum number of leaves per tree
func (c *LGBMClassifier) WithNumLeaves(n int) *LGBMClassifier {
	c.NumLeaves = n
	return c
}

// WithMaxDepth sets the maximum tree depth (interaction depth)
func (c *LGBMClassifier) WithMaxDepth(d int) *LGBMClassifier {
	c.MaxDepth = d
	return c
}

// WithMinChildSamples sets the minimum number of rows per leaf
func (c *LGBMClassifier) WithMinChildSamples(n int) *LGBMClassifier {
	c.MinChildSamples = n
	return c
}

// WithRegLambda sets L2 regularization on leaf values
func (c *LGBMClassifier) WithRegLambda(l float64) *LGBMClassifier {
	c.RegLambda = l
	return c
}

// WithMaxBin sets the number of histogram bins per feature
func (c *LGBMClassifier) WithMaxBin(n int) *LGBMClassifier {
	c.MaxBin = n
	return c
}

// WithColsampleBytree sets the fraction of features tried by each tree
func (c *LGBMClassifier) WithColsampleBytree(f float64) *LGBMClassifier {
	c.ColsampleBytree = f
	return c
}

// WithRandomState sets the seed of feature sampling
func (c *LGBMClassifier) WithRandomState(seed uint64) *LGBMClassifier {
	c.RandomState = seed
	return c
}

// WithNumThreads bounds the goroutines used per round
func (c *LGBMClassifier) WithNumThreads(n int) *LGBMClassifier {
	c.NumThreads = n
	return c
}

// WithCallbacks adds callbacks run after every round
func (c *LGBMClassifier) WithCallbacks(callbacks ...Callback) *LGBMClassifier {
	c.callbacks = append(c.callbacks, callbacks...)
	return c
}

// WithLogger sets the logger
func (c *LGBMClassifier) WithLogger(l log.Logger) *LGBMClassifier {
	c.logger = l
	return c
}

func (c *LGBMClassifier) trainingParams() TrainingParams {
	return TrainingParams{
		NumIterations:   c.NumIterations,
		LearningRate:    c.LearningRate,
		NumLeaves:       c.NumLeaves,
		MaxDepth:        c.MaxDepth,
		MinDataInLeaf:   c.MinChildSamples,
		Lambda:          c.RegLambda,
		MinGainToSplit:  c.MinSplitGain,
		MinSumHessian:   DefaultTrainingParams().MinSumHessian,
		FeatureFraction: c.ColsampleBytree,
		MaxBin:          c.MaxBin,
		Seed:            c.RandomState,
		NumThreads:      c.NumThreads,
	}
}

// Fit trains the classifier. y holds integral class codes.
func (c *LGBMClassifier) Fit(X, y mat.Matrix) (err error) {
	const op = "LGBMClassifier.Fit"
	defer errors.Recover(&err, op)
	start := time.Now()
	c.state.Reset()
	c.Model = nil

	classes, labels, err := model.ValidateTrainingData(op, X, y)
	if err != nil {
		return err
	}
	index := make(map[int]int, len(classes))
	for i, cl := range classes {
		index[cl] = i
	}
	for i, l := range labels {
		labels[i] = index[l]
	}

	history := map[string][]float64{}
	callbacks := append([]Callback{RecordEvaluation(&history)}, c.callbacks...)
	trainer := NewTrainer(c.trainingParams(), c.logger).WithCallbacks(callbacks...)
	m, err := trainer.Train(X, labels, len(classes))
	if err != nil {
		return err
	}

	n, p := X.Dims()
	c.Model = m
	c.evalHistory = history
	c.classes_ = classes
	c.nClasses_ = len(classes)
	c.state.SetDimensions(p, n, len(classes))
	c.state.SetFitted()

	c.logger.Info("boosting fitted",
		log.ModelNameKey, "LGBMClassifier",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, n,
		log.FeaturesKey, p,
		log.IterationKey, m.NumIterations(),
		"lgbm.max_depth", c.MaxDepth,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

func (c *LGBMClassifier) checkPredict(method string, X mat.Matrix) error {
	if err := c.state.RequireFitted("LGBMClassifier", method); err != nil {
		return err
	}
	_, cols := X.Dims()
	return c.state.CheckFeatures("LGBMClassifier."+method, cols)
}

// DecisionFunction returns the raw softmax inputs, one column per class.
func (c *LGBMClassifier) DecisionFunction(X mat.Matrix) (mat.Matrix, error) {
	if err := c.checkPredict("DecisionFunction", X); err != nil {
		return nil, err
	}
	return c.Model.PredictRaw(X, 0, c.NumThreads), nil
}

// PredictProba returns class probabilities, columns ordered like Classes().
func (c *LGBMClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := c.checkPredict("PredictProba", X); err != nil {
		return nil, err
	}
	raw := c.Model.PredictRaw(X, 0, c.NumThreads)
	probabilities(raw)
	return raw, nil
}

// Predict returns the most probable class code of every row.
func (c *LGBMClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := c.checkPredict("Predict", X); err != nil {
		return nil, err
	}
	return model.ArgMaxRows(c.Model.PredictRaw(X, 0, c.NumThreads), c.classes_), nil
}

// StagedPredict returns the predicted class codes after each requested number
// of rounds. Counts above the number of trained rounds use the whole model.
func (c *LGBMClassifier) StagedPredict(X mat.Matrix, iterations []int) ([]mat.Matrix, error) {
	if err := c.checkPredict("StagedPredict", X); err != nil {
		return nil, err
	}
	for _, it := range iterations {
		if it < 1 {
			return nil, errors.NewValidationError("iterations", "must be >= 1", it)
		}
	}
	raws := c.Model.stagedRaw(X, iterations, c.NumThreads)
	out := make([]mat.Matrix, len(raws))
	for i, raw := range raws {
		out[i] = model.ArgMaxRows(raw, c.classes_)
	}
	return out, nil
}

// Score returns the accuracy on X and y.
func (c *LGBMClassifier) Score(X, y mat.Matrix) (float64, error) {
	pred, err := c.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.AccuracyScore(y, pred)
}

// Classes returns the class codes seen during Fit.
func (c *LGBMClassifier) Classes() []int {
	return append([]int(nil), c.classes_...)
}

// FeatureImportances returns the normalized total split gain of every feature.
func (c *LGBMClassifier) FeatureImportances() ([]float64, error) {
	if err := c.state.RequireFitted("LGBMClassifier", "FeatureImportances"); err != nil {
		return nil, err
	}
	return c.Model.GetFeatureImportance("gain"), nil
}

// GetFeatureImportance returns feature importance scores of the given type
// ("gain" or "split"), or nil before Fit.
func (c *LGBMClassifier) GetFeatureImportance(importanceType string) []float64 {
	if !c.state.IsFitted() || c.Model == nil {
		return nil
	}
	return c.Model.GetFeatureImportance(importanceType)
}

// EvalHistory returns the per-round training metrics recorded during Fit.
func (c *LGBMClassifier) EvalHistory() map[string][]float64 {
	return c.evalHistory
}

// GetParams returns the parameters of the classifier
func (c *LGBMClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"num_iterations":    c.NumIterations,
		"learning_rate":     c.LearningRate,
		"num_leaves":        c.NumLeaves,
		"max_depth":         c.MaxDepth,
		"min_child_samples": c.MinChildSamples,
		"reg_lambda":        c.RegLambda,
		"min_split_gain":    c.MinSplitGain,
		"max_bin":           c.MaxBin,
		"colsample_bytree":  c.ColsampleBytree,
		"random_state":      c.RandomState,
		"n_jobs":            c.NumThreads,
	}
}

// SetParams sets the parameters of the classifier. LightGBM aliases such as
// "n_estimators" and "min_data_in_leaf" are accepted. Unknown keys and values
// of the wrong type leave the classifier unchanged.
func (c *LGBMClassifier) SetParams(params map[string]interface{}) error {
	backup := *c
	for key, value := range params {
		var ok bool
		switch key {
		case "num_iterations", "n_estimators":
			c.NumIterations, ok = value.(int)
		case "learning_rate":
			c.LearningRate, ok = value.(float64)
		case "num_leaves":
			c.NumLeaves, ok = value.(int)
		case "max_depth":
			c.MaxDepth, ok = value.(int)
		case "min_child_samples", "min_data_in_leaf":
			c.MinChildSamples, ok = value.(int)
		case "reg_lambda", "lambda_l2":
			c.RegLambda, ok = value.(float64)
		case "min_split_gain":
			c.MinSplitGain, ok = value.(float64)
		case "max_bin":
			c.MaxBin, ok = value.(int)
		case "colsample_bytree", "feature_fraction":
			c.ColsampleBytree, ok = value.(float64)
		case "random_state":
			switch v := value.(type) {
			case uint64:
				c.RandomState, ok = v, true
			case int:
				c.RandomState, ok = uint64(v), v >= 0
			}
		case "n_jobs":
			c.NumThreads, ok = value.(int)
		default:
			*c = backup
			return errors.NewValidationError(key, "unknown parameter", value)
		}
		if !ok {
			*c = backup
			return errors.NewValidationError(key, "wrong type", value)
		}
	}
	return nil
}
