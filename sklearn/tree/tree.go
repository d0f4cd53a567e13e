// Package tree implements a CART decision tree classifier.
package tree

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/liftclass/core/model"
	"github.com/YuminosukeSato/liftclass/pkg/errors"
	"github.com/YuminosukeSato/liftclass/pkg/log"
)

// DecisionTreeClassifier は CART 決定木による分類器
//
// 分割は gini (デフォルト) または entropy の不純度減少が最大になる閾値で行う。
// 欠損値 (NaN) は学習時に選んだ側の子ノードへ送られる。
// ccpAlpha > 0 のとき、ルートの不純度に対する改善率が ccpAlpha 未満の分割は行わず、
// 学習後に同じ基準でコスト複雑度剪定を行う。
//
// 使用例:
//
//	dt := tree.NewDecisionTreeClassifier(
//	    tree.WithCCPAlpha(0.01),
//	    tree.WithRandomState(12345),
//	)
//	err := dt.Fit(X, y)
//	pred, err := dt.Predict(XTest)
type DecisionTreeClassifier struct {
	state  *model.StateManager
	logger log.Logger

	// ハイパーパラメータ
	criterion           string
	maxDepth            int
	minSamplesSplit     int
	minSamplesLeaf      int
	maxFeatures         int
	minImpurityDecrease float64
	ccpAlpha            float64
	randomState         uint64

	// 学習結果
	nodes               []node
	classes_            []int
	nClasses_           int
	nFeatures_          int
	featureImportances_ []float64
}

// Option は DecisionTreeClassifier の設定関数
type Option func(*DecisionTreeClassifier)

// WithCriterion sets the impurity measure: "gini" or "entropy".
func WithCriterion(c string) Option {
	return func(t *DecisionTreeClassifier) { t.criterion = c }
}

// WithMaxDepth limits the depth of the tree. 0 means unlimited.
func WithMaxDepth(d int) Option {
	return func(t *DecisionTreeClassifier) { t.maxDepth = d }
}

// WithMinSamplesSplit sets the minimum node weight that may be split.
func WithMinSamplesSplit(n int) Option {
	return func(t *DecisionTreeClassifier) { t.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum weight of each child.
func WithMinSamplesLeaf(n int) Option {
	return func(t *DecisionTreeClassifier) { t.minSamplesLeaf = n }
}

// WithMaxFeatures sets how many features are drawn at each node. 0 uses all.
func WithMaxFeatures(k int) Option {
	return func(t *DecisionTreeClassifier) { t.maxFeatures = k }
}

// WithMinImpurityDecrease sets the minimum weighted impurity decrease of a split.
func WithMinImpurityDecrease(v float64) Option {
	return func(t *DecisionTreeClassifier) { t.minImpurityDecrease = v }
}

// WithCCPAlpha sets the complexity parameter.
func WithCCPAlpha(a float64) Option {
	return func(t *DecisionTreeClassifier) { t.ccpAlpha = a }
}

// WithRandomState seeds the feature sampling.
func WithRandomState(seed uint64) Option {
	return func(t *DecisionTreeClassifier) { t.randomState = seed }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(t *DecisionTreeClassifier) { t.logger = l }
}

// NewDecisionTreeClassifier creates a tree with gini impurity, no depth limit
// and leaves of at least one sample.
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	t := &DecisionTreeClassifier{
		state:           model.NewStateManager(),
		criterion:       "gini",
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = log.GetLoggerWithName("tree")
	}
	return t
}

func (t *DecisionTreeClassifier) validate() (impurityFunc, error) {
	imp, ok := criterionFunc(t.criterion)
	if !ok {
		return nil, errors.NewValidationError("criterion", "must be gini or entropy", t.criterion)
	}
	switch {
	case t.maxDepth < 0:
		return nil, errors.NewValidationError("max_depth", "must be >= 0", t.maxDepth)
	case t.minSamplesSplit < 2:
		return nil, errors.NewValidationError("min_samples_split", "must be >= 2", t.minSamplesSplit)
	case t.minSamplesLeaf < 1:
		return nil, errors.NewValidationError("min_samples_leaf", "must be >= 1", t.minSamplesLeaf)
	case t.maxFeatures < 0:
		return nil, errors.NewValidationError("max_features", "must be >= 0", t.maxFeatures)
	case t.ccpAlpha < 0:
		return nil, errors.NewValidationError("ccp_alpha", "must be >= 0", t.ccpAlpha)
	case t.minImpurityDecrease < 0:
		return nil, errors.NewValidationError("min_impurity_decrease", "must be >= 0", t.minImpurityDecrease)
	}
	return imp, nil
}

// Fit はモデルを学習する
//
// パラメータ:
//   - X: 特徴量行列 (n_samples × n_features)、欠損値は NaN
//   - y: クラスコードの列ベクトル (n_samples × 1)
func (t *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	classes, labels, err := model.ValidateTrainingData("DecisionTreeClassifier.Fit", X, y)
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
	return t.FitPrepared(NewData(X), labels, classes, nil)
}

// FitPrepared fits on presorted data. y holds indices into classes and
// weights, when non-nil, gives each row a non-negative weight; rows of
// weight zero are left out. Probabilities are reported for every entry of
// classes even if some have no weight.
func (t *DecisionTreeClassifier) FitPrepared(d *Data, y []int, classes []int, weights []float64) error {
	start := time.Now()
	t.state.Reset()
	imp, err := t.validate()
	if err != nil {
		return err
	}
	n, p := d.Dims()
	if n == 0 || p == 0 {
		return errors.Wrap(errors.ErrEmptyData, "DecisionTreeClassifier.Fit")
	}
	if len(y) != n {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", n, len(y), 0)
	}
	if weights != nil && len(weights) != n {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", n, len(weights), 0)
	}

	b := newBuilder(t, d, y, weights, len(classes), imp)
	if len(b.order[0]) == 0 {
		return errors.Wrap(errors.ErrEmptyData, "DecisionTreeClassifier.Fit: all weights are zero")
	}
	nodes := b.run()
	if t.ccpAlpha > 0 && b.rootRisk > 0 {
		prune(nodes, 0, b.rootRisk, t.ccpAlpha)
		nodes = compact(nodes)
	}

	t.nodes = nodes
	t.classes_ = append([]int(nil), classes...)
	t.nClasses_ = len(classes)
	t.nFeatures_ = p
	t.featureImportances_ = importances(nodes, p)
	t.state.SetDimensions(p, n, len(classes))
	t.state.SetFitted()

	t.logger.Debug("tree fitted",
		log.ModelNameKey, "DecisionTreeClassifier",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, len(b.order[0]),
		"tree.nodes", len(nodes),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// importances returns the normalized total impurity decrease per feature.
func importances(nodes []node, p int) []float64 {
	out := make([]float64, p)
	total := 0.0
	for _, nd := range nodes {
		if nd.left < 0 {
			continue
		}
		l, r := nodes[nd.left], nodes[nd.right]
		dec := nd.weight*nd.impurity - l.weight*l.impurity - r.weight*r.impurity
		out[nd.feature] += dec
		total += dec
	}
	if total > 0 {
		for j := range out {
			out[j] /= total
		}
	}
	return out
}

func (t *DecisionTreeClassifier) leaf(x []float64) *node {
	nd := &t.nodes[0]
	for nd.left >= 0 {
		v := x[nd.feature]
		goLeft := v <= nd.threshold
		if math.IsNaN(v) {
			goLeft = nd.nanLeft
		}
		if goLeft {
			nd = &t.nodes[nd.left]
		} else {
			nd = &t.nodes[nd.right]
		}
	}
	return nd
}

// PredictRow returns the class probabilities of one sample. The slice must
// not be modified.
func (t *DecisionTreeClassifier) PredictRow(x []float64) []float64 {
	return t.leaf(x).value
}

// PredictProba returns one row of class probabilities per sample, with
// columns in Classes() order.
func (t *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := t.state.RequireFitted("DecisionTreeClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if err := t.state.CheckFeatures("DecisionTreeClassifier.PredictProba", cols); err != nil {
		return nil, err
	}
	out := mat.NewDense(rows, t.nClasses_, nil)
	x := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(x, i, X)
		out.SetRow(i, t.PredictRow(x))
	}
	return out, nil
}

// Predict returns the most probable class code of each sample.
func (t *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := t.state.RequireFitted("DecisionTreeClassifier", "Predict"); err != nil {
		return nil, err
	}
	proba, err := t.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return model.ArgMaxRows(proba, t.classes_), nil
}

// Score returns the accuracy on X and y, or 0 when prediction fails.
func (t *DecisionTreeClassifier) Score(X, y mat.Matrix) float64 {
	pred, err := t.Predict(X)
	if err != nil {
		return 0
	}
	rows, _ := y.Dims()
	if rows == 0 {
		return 0
	}
	correct := 0
	for i := 0; i < rows; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(rows)
}

// Classes returns the class codes seen at fit time.
func (t *DecisionTreeClassifier) Classes() []int {
	return append([]int(nil), t.classes_...)
}

// FeatureImportances returns the mean decrease in impurity of each feature.
func (t *DecisionTreeClassifier) FeatureImportances() ([]float64, error) {
	if err := t.state.RequireFitted("DecisionTreeClassifier", "FeatureImportances"); err != nil {
		return nil, err
	}
	return append([]float64(nil), t.featureImportances_...), nil
}

// GetDepth returns the length of the longest root to leaf path.
func (t *DecisionTreeClassifier) GetDepth() int {
	if len(t.nodes) == 0 {
		return 0
	}
	var depth func(id int) int
	depth = func(id int) int {
		nd := t.nodes[id]
		if nd.left < 0 {
			return 0
		}
		return 1 + max(depth(nd.left), depth(nd.right))
	}
	return depth(0)
}

// GetNLeaves returns the number of leaves.
func (t *DecisionTreeClassifier) GetNLeaves() int {
	n := 0
	for _, nd := range t.nodes {
		if nd.left < 0 {
			n++
		}
	}
	return n
}

// GetParams はハイパーパラメータを返す
func (t *DecisionTreeClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":             t.criterion,
		"max_depth":             t.maxDepth,
		"min_samples_split":     t.minSamplesSplit,
		"min_samples_leaf":      t.minSamplesLeaf,
		"max_features":          t.maxFeatures,
		"min_impurity_decrease": t.minImpurityDecrease,
		"ccp_alpha":             t.ccpAlpha,
		"random_state":          t.randomState,
	}
}

// SetParams はハイパーパラメータを設定する
// 未知のキーや型の合わない値は ValidationError になる
func (t *DecisionTreeClassifier) SetParams(params map[string]interface{}) error {
	backup := *t
	for key, value := range params {
		var ok bool
		switch key {
		case "criterion":
			t.criterion, ok = value.(string)
		case "max_depth":
			t.maxDepth, ok = value.(int)
		case "min_samples_split":
			t.minSamplesSplit, ok = value.(int)
		case "min_samples_leaf":
			t.minSamplesLeaf, ok = value.(int)
		case "max_features":
			t.maxFeatures, ok = value.(int)
		case "min_impurity_decrease":
			t.minImpurityDecrease, ok = value.(float64)
		case "ccp_alpha":
			t.ccpAlpha, ok = value.(float64)
		case "random_state":
			t.randomState, ok = value.(uint64)
		default:
			*t = backup
			return errors.NewValidationError(key, "unknown parameter", value)
		}
		if !ok {
			*t = backup
			return errors.NewValidationError(key, "wrong type", value)
		}
	}
	return nil
}
