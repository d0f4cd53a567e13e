// Package ensemble implements bagged tree ensembles.
package ensemble

import (
	"math"
	"math/rand/v2"
	"runtime"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/liftclass/core/model"
	"github.com/YuminosukeSato/liftclass/core/parallel"
	"github.com/YuminosukeSato/liftclass/pkg/errors"
	"github.com/YuminosukeSato/liftclass/pkg/log"
	"github.com/YuminosukeSato/liftclass/sklearn/tree"
)

// RandomForestClassifier はランダムフォレストによる分類器
//
// 各木はブートストラップ標本で学習し、各ノードで MaxFeatures 個の特徴量を
// 無作為に選んで分割を探す。予測は木の多数決で、PredictProba は票の割合を返す。
// 木 i の乱数源は RandomState + i でシードされるため、同じシードと同じデータからは
// 並列度によらず同じフォレストが得られる。
//
// 使用例:
//
//	rf := ensemble.NewRandomForestClassifier(
//	    ensemble.WithNEstimators(100),
//	    ensemble.WithMaxFeatures(27),
//	    ensemble.WithRandomState(12345),
//	)
//	err := rf.Fit(X, y)
//	pred, err := rf.Predict(XTest)
type RandomForestClassifier struct {
	// NEstimators is the number of trees.
	NEstimators int
	// MaxFeatures is the number of features drawn at each node (mtry).
	// 0 selects floor(sqrt(n_features)).
	MaxFeatures int
	// MaxDepth limits tree depth. 0 grows trees fully.
	MaxDepth       int
	MinSamplesLeaf int
	Bootstrap      bool
	RandomState    uint64
	// NJobs bounds the goroutines fitting trees. 0 uses runtime.NumCPU().
	NJobs int

	state  *model.StateManager
	logger log.Logger

	trees               []*tree.DecisionTreeClassifier
	classes_            []int
	featureImportances_ []float64
	oobScore_           float64
}

// Option configures a RandomForestClassifier.
type Option func(*RandomForestClassifier)

// WithNEstimators sets the number of trees.
func WithNEstimators(n int) Option {
	return func(rf *RandomForestClassifier) { rf.NEstimators = n }
}

// WithMaxFeatures sets mtry.
func WithMaxFeatures(k int) Option {
	return func(rf *RandomForestClassifier) { rf.MaxFeatures = k }
}

// WithMaxDepth limits the depth of every tree.
func WithMaxDepth(d int) Option {
	return func(rf *RandomForestClassifier) { rf.MaxDepth = d }
}

// WithMinSamplesLeaf sets the minimum leaf weight of every tree.
func WithMinSamplesLeaf(n int) Option {
	return func(rf *RandomForestClassifier) { rf.MinSamplesLeaf = n }
}

// WithBootstrap toggles bootstrap sampling.
func WithBootstrap(b bool) Option {
	return func(rf *RandomForestClassifier) { rf.Bootstrap = b }
}

// WithRandomState sets the base seed.
func WithRandomState(seed uint64) Option {
	return func(rf *RandomForestClassifier) { rf.RandomState = seed }
}

// WithNJobs bounds the number of goroutines.
func WithNJobs(n int) Option {
	return func(rf *RandomForestClassifier) { rf.NJobs = n }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(rf *RandomForestClassifier) { rf.logger = l }
}

// NewRandomForestClassifier creates a forest of 100 fully grown trees.
func NewRandomForestClassifier(opts ...Option) *RandomForestClassifier {
	rf := &RandomForestClassifier{
		NEstimators:    100,
		MinSamplesLeaf: 1,
		Bootstrap:      true,
		state:          model.NewStateManager(),
	}
	for _, opt := range opts {
		opt(rf)
	}
	if rf.logger == nil {
		rf.logger = log.GetLoggerWithName("ensemble")
	}
	return rf
}

func (rf *RandomForestClassifier) mtry(p int) (int, error) {
	switch {
	case rf.MaxFeatures < 0 || rf.MaxFeatures > p:
		return 0, errors.NewValidationError("max_features", "must be in [0, n_features]", rf.MaxFeatures)
	case rf.MaxFeatures == 0:
		return max(1, int(math.Sqrt(float64(p)))), nil
	}
	return rf.MaxFeatures, nil
}

func (rf *RandomForestClassifier) workers() int {
	if rf.NJobs > 0 {
		return rf.NJobs
	}
	return runtime.NumCPU()
}

// Fit grows the trees concurrently.
func (rf *RandomForestClassifier) Fit(X, y mat.Matrix) error {
	const op = "RandomForestClassifier.Fit"
	start := time.Now()
	rf.state.Reset()

	if rf.NEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be >= 1", rf.NEstimators)
	}
	classes, labels, err := model.ValidateTrainingData(op, X, y)
	if err != nil {
		return err
	}
	n, p := X.Dims()
	mtry, err := rf.mtry(p)
	if err != nil {
		return err
	}
	index := make(map[int]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	for i, l := range labels {
		labels[i] = index[l]
	}

	data := tree.NewData(X)
	trees := make([]*tree.DecisionTreeClassifier, rf.NEstimators)
	inBag := make([][]float64, rf.NEstimators)

	err = parallel.ParallelizeErr(op, rf.NEstimators, rf.workers(), func(s, e int) error {
		for idx := s; idx < e; idx++ {
			seed := rf.RandomState + uint64(idx)
			rng := rand.New(rand.NewPCG(seed, seed))

			var weights []float64
			if rf.Bootstrap {
				weights = make([]float64, n)
				for j := 0; j < n; j++ {
					weights[rng.IntN(n)]++
				}
			}
			t := tree.NewDecisionTreeClassifier(
				tree.WithMaxFeatures(mtry),
				tree.WithMaxDepth(rf.MaxDepth),
				tree.WithMinSamplesLeaf(rf.MinSamplesLeaf),
				tree.WithRandomState(rng.Uint64()),
				tree.WithLogger(rf.logger),
			)
			if err := t.FitPrepared(data, labels, classes, weights); err != nil {
				return errors.Wrapf(err, "tree %d", idx)
			}
			trees[idx], inBag[idx] = t, weights
		}
		return nil
	})
	if err != nil {
		return err
	}

	rf.trees = trees
	rf.classes_ = classes
	rf.featureImportances_ = meanImportances(trees, p)
	rf.oobScore_ = math.NaN()
	if rf.Bootstrap {
		rf.oobScore_ = rf.outOfBag(data, labels, inBag)
	}
	rf.state.SetDimensions(p, n, len(classes))
	rf.state.SetFitted()

	rf.logger.Info("forest fitted",
		log.ModelNameKey, "RandomForestClassifier",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, n,
		log.FeaturesKey, p,
		"forest.trees", rf.NEstimators,
		"forest.mtry", mtry,
		"forest.oob_accuracy", rf.oobScore_,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// outOfBag returns the accuracy of votes cast only by trees that did not see
// each row. Rows in the bag of every tree are skipped.
func (rf *RandomForestClassifier) outOfBag(data *tree.Data, labels []int, inBag [][]float64) float64 {
	n, p := data.Dims()
	correct := make([]int, n)
	voted := make([]bool, n)

	parallel.ParallelizeWorkers(n, rf.workers(), func(s, e int) {
		x := make([]float64, p)
		votes := make([]int, len(rf.classes_))
		for i := s; i < e; i++ {
			data.Row(i, x)
			clear(votes)
			seen := false
			for t, tr := range rf.trees {
				if inBag[t][i] > 0 {
					continue
				}
				votes[argMax(tr.PredictRow(x))]++
				seen = true
			}
			if !seen {
				continue
			}
			voted[i] = true
			if argMaxInt(votes) == labels[i] {
				correct[i] = 1
			}
		}
	})

	total, hits := 0, 0
	for i := range voted {
		if voted[i] {
			total++
			hits += correct[i]
		}
	}
	if total == 0 {
		return math.NaN()
	}
	return float64(hits) / float64(total)
}

// PredictProba returns, per sample, the fraction of trees voting for each class.
func (rf *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := rf.state.RequireFitted("RandomForestClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if err := rf.state.CheckFeatures("RandomForestClassifier.PredictProba", cols); err != nil {
		return nil, err
	}

	out := mat.NewDense(rows, len(rf.classes_), nil)
	scale := 1 / float64(len(rf.trees))
	parallel.ParallelizeWorkers(rows, rf.workers(), func(s, e int) {
		x := make([]float64, cols)
		for i := s; i < e; i++ {
			mat.Row(x, i, X)
			for _, tr := range rf.trees {
				c := argMax(tr.PredictRow(x))
				out.Set(i, c, out.At(i, c)+scale)
			}
		}
	})
	return out, nil
}

// Predict returns the majority vote. Ties go to the lower class code.
func (rf *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return model.ArgMaxRows(proba, rf.classes_), nil
}

// Classes returns the class codes seen at fit time.
func (rf *RandomForestClassifier) Classes() []int {
	return append([]int(nil), rf.classes_...)
}

// FeatureImportances returns the mean decrease in impurity averaged over trees.
func (rf *RandomForestClassifier) FeatureImportances() ([]float64, error) {
	if err := rf.state.RequireFitted("RandomForestClassifier", "FeatureImportances"); err != nil {
		return nil, err
	}
	return append([]float64(nil), rf.featureImportances_...), nil
}

// OOBScore returns the out-of-bag accuracy. It is NaN without bootstrap.
func (rf *RandomForestClassifier) OOBScore() (float64, error) {
	if err := rf.state.RequireFitted("RandomForestClassifier", "OOBScore"); err != nil {
		return 0, err
	}
	return rf.oobScore_, nil
}

// Trees returns the fitted trees.
func (rf *RandomForestClassifier) Trees() []*tree.DecisionTreeClassifier {
	return append([]*tree.DecisionTreeClassifier(nil), rf.trees...)
}

// GetParams はハイパーパラメータを返す
func (rf *RandomForestClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":     rf.NEstimators,
		"max_features":     rf.MaxFeatures,
		"max_depth":        rf.MaxDepth,
		"min_samples_leaf": rf.MinSamplesLeaf,
		"bootstrap":        rf.Bootstrap,
		"random_state":     rf.RandomState,
		"n_jobs":           rf.NJobs,
	}
}

// SetParams はハイパーパラメータを設定する
func (rf *RandomForestClassifier) SetParams(params map[string]interface{}) error {
	backup := *rf
	for key, value := range params {
		var ok bool
		switch key {
		case "n_estimators":
			rf.NEstimators, ok = value.(int)
		case "max_features":
			rf.MaxFeatures, ok = value.(int)
		case "max_depth":
			rf.MaxDepth, ok = value.(int)
		case "min_samples_leaf":
			rf.MinSamplesLeaf, ok = value.(int)
		case "bootstrap":
			rf.Bootstrap, ok = value.(bool)
		case "random_state":
			rf.RandomState, ok = value.(uint64)
		case "n_jobs":
			rf.NJobs, ok = value.(int)
		default:
			*rf = backup
			return errors.NewValidationError(key, "unknown parameter", value)
		}
		if !ok {
			*rf = backup
			return errors.NewValidationError(key, "wrong type", value)
		}
	}
	return nil
}

func meanImportances(trees []*tree.DecisionTreeClassifier, p int) []float64 {
	out := make([]float64, p)
	total := 0.0
	for _, t := range trees {
		imp, err := t.FeatureImportances()
		if err != nil {
			continue
		}
		for j, v := range imp {
			out[j] += v
			total += v
		}
	}
	if total > 0 {
		for j := range out {
			out[j] /= total
		}
	}
	return out
}

func argMax(xs []float64) int {
	best := 0
	for i := 1; i < len(xs); i++ {
		if xs[i] > xs[best] {
			best = i
		}
	}
	return best
}

func argMaxInt(xs []int) int {
	best := 0
	for i := 1; i < len(xs); i++ {
		if xs[i] > xs[best] {
			best = i
		}
	}
	return best
}
