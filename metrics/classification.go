package metrics

import (
	"sort"

	"github.com/sjwhitworth/golearn/evaluation"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/liftclass/pkg/errors"
)

// Accuracy は正解率（一致したラベルの割合）を計算する
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	if yTrue == nil || yPred == nil || yTrue.Len() == 0 {
		return 0, errors.NewValueError("Accuracy", "empty vector")
	}
	n := yTrue.Len()
	if yPred.Len() != n {
		return 0, errors.NewDimensionError("Accuracy", n, yPred.Len(), 0)
	}

	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// ClassificationError は誤分類率 (1 - Accuracy) を計算する
func ClassificationError(yTrue, yPred *mat.VecDense) (float64, error) {
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return 1 - acc, nil
}

// AccuracyScore は列ベクトル (n×1) の行列に対して正解率を計算する
func AccuracyScore(yTrue, yPred mat.Matrix) (float64, error) {
	rTrue, cTrue := yTrue.Dims()
	rPred, cPred := yPred.Dims()
	if rTrue == 0 || cTrue == 0 {
		return 0, errors.NewValueError("AccuracyScore", "empty matrix")
	}
	if rTrue != rPred {
		return 0, errors.NewDimensionError("AccuracyScore", rTrue, rPred, 0)
	}
	if cTrue != 1 || cPred != 1 {
		return 0, errors.NewValueError("AccuracyScore", "must be a column vector (n×1 matrix)")
	}

	correct := 0
	for i := 0; i < rTrue; i++ {
		if yTrue.At(i, 0) == yPred.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(rTrue), nil
}

// ClassStats は one-vs-rest で見たクラスごとの指標
type ClassStats struct {
	Class            string
	Sensitivity      float64
	Specificity      float64
	PosPredValue     float64
	NegPredValue     float64
	Prevalence       float64
	DetectionRate    float64
	BalancedAccuracy float64
}

// ConfusionMatrix は (真のクラス, 予測クラス) で索引付けされた件数の正方行列
// 構築後は読み取り専用
type ConfusionMatrix struct {
	classes []string
	counts  *mat.Dense
	total   int
}

// NewConfusionMatrix は真のラベルと予測ラベルから混同行列を作成する
// classes が nil の場合は両方に現れたラベルを昇順に並べたものを使う
func NewConfusionMatrix(yTrue, yPred []string, classes []string) (*ConfusionMatrix, error) {
	if len(yTrue) == 0 {
		return nil, errors.NewValueError("NewConfusionMatrix", "empty label vector")
	}
	if len(yPred) != len(yTrue) {
		return nil, errors.NewDimensionError("NewConfusionMatrix", len(yTrue), len(yPred), 0)
	}

	if classes == nil {
		seen := make(map[string]struct{})
		for i := range yTrue {
			seen[yTrue[i]] = struct{}{}
			seen[yPred[i]] = struct{}{}
		}
		for c := range seen {
			classes = append(classes, c)
		}
		sort.Strings(classes)
	}
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}

	k := len(classes)
	counts := mat.NewDense(k, k, nil)
	for i := range yTrue {
		ti, ok := index[yTrue[i]]
		if !ok {
			return nil, errors.NewValueError("NewConfusionMatrix", "unknown true label "+yTrue[i])
		}
		pi, ok := index[yPred[i]]
		if !ok {
			return nil, errors.NewValueError("NewConfusionMatrix", "unknown predicted label "+yPred[i])
		}
		counts.Set(ti, pi, counts.At(ti, pi)+1)
	}

	return &ConfusionMatrix{
		classes: append([]string(nil), classes...),
		counts:  counts,
		total:   len(yTrue),
	}, nil
}

// Classes returns the class labels indexing both axes.
func (cm *ConfusionMatrix) Classes() []string {
	return append([]string(nil), cm.classes...)
}

// At returns the number of rows with true class i predicted as class j.
func (cm *ConfusionMatrix) At(i, j int) int {
	return int(cm.counts.At(i, j))
}

// Total returns the number of classified rows.
func (cm *ConfusionMatrix) Total() int {
	return cm.total
}

// Correct returns the trace of the matrix.
func (cm *ConfusionMatrix) Correct() int {
	return int(mat.Trace(cm.counts))
}

// Accuracy returns correct / total.
func (cm *ConfusionMatrix) Accuracy() float64 {
	return float64(cm.Correct()) / float64(cm.total)
}

// AccuracyCI returns the exact (Clopper-Pearson) binomial confidence interval
// of the accuracy at the given level, e.g. 0.95.
func (cm *ConfusionMatrix) AccuracyCI(level float64) (lower, upper float64) {
	x := float64(cm.Correct())
	n := float64(cm.total)
	alpha := 1 - level

	lower, upper = 0, 1
	if x > 0 {
		lower = distuv.Beta{Alpha: x, Beta: n - x + 1}.Quantile(alpha / 2)
	}
	if x < n {
		upper = distuv.Beta{Alpha: x + 1, Beta: n - x}.Quantile(1 - alpha/2)
	}
	return lower, upper
}

// NoInformationRate is the largest class prevalence among the true labels.
func (cm *ConfusionMatrix) NoInformationRate() float64 {
	best := 0.0
	for i := range cm.classes {
		row := mat.Sum(cm.counts.RowView(i))
		if row > best {
			best = row
		}
	}
	return best / float64(cm.total)
}

// AccuracyPValue is the one-sided binomial test p-value of accuracy > NIR.
func (cm *ConfusionMatrix) AccuracyPValue() float64 {
	nir := cm.NoInformationRate()
	x := float64(cm.Correct())
	if x == 0 {
		return 1
	}
	if nir >= 1 {
		return 1
	}
	b := distuv.Binomial{N: float64(cm.total), P: nir}
	return 1 - b.CDF(x-1)
}

// Kappa returns Cohen's kappa.
func (cm *ConfusionMatrix) Kappa() float64 {
	n := float64(cm.total)
	po := cm.Accuracy()
	pe := 0.0
	for i := range cm.classes {
		row := mat.Sum(cm.counts.RowView(i))
		col := mat.Sum(cm.counts.ColView(i))
		pe += row * col
	}
	pe /= n * n
	if pe >= 1 {
		return 0
	}
	return (po - pe) / (1 - pe)
}

// ClassStats returns one-vs-rest statistics for every class.
// A ratio with a zero denominator is reported as 0 with an UndefinedMetricWarning.
func (cm *ConfusionMatrix) ClassStats() []ClassStats {
	n := float64(cm.total)
	stats := make([]ClassStats, len(cm.classes))
	for i, c := range cm.classes {
		tp := cm.counts.At(i, i)
		fn := mat.Sum(cm.counts.RowView(i)) - tp
		fp := mat.Sum(cm.counts.ColView(i)) - tp
		tn := n - tp - fn - fp

		s := ClassStats{
			Class:         c,
			Sensitivity:   ratio("sensitivity", c, tp, tp+fn),
			Specificity:   ratio("specificity", c, tn, tn+fp),
			PosPredValue:  ratio("pos_pred_value", c, tp, tp+fp),
			NegPredValue:  ratio("neg_pred_value", c, tn, tn+fn),
			Prevalence:    (tp + fn) / n,
			DetectionRate: tp / n,
		}
		s.BalancedAccuracy = (s.Sensitivity + s.Specificity) / 2
		stats[i] = s
	}
	return stats
}

func ratio(metric, class string, num, den float64) float64 {
	if den == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning(metric, "no samples in the denominator for class "+class, 0))
	}
	return errors.SafeDivide(num, den)
}

// Golearn converts the matrix into golearn's map representation.
func (cm *ConfusionMatrix) Golearn() evaluation.ConfusionMatrix {
	out := make(evaluation.ConfusionMatrix, len(cm.classes))
	for i, ref := range cm.classes {
		row := make(map[string]int, len(cm.classes))
		for j, pred := range cm.classes {
			row[pred] = cm.At(i, j)
		}
		out[ref] = row
	}
	return out
}

// Summary returns golearn's per-class precision/recall/F1 table.
func (cm *ConfusionMatrix) Summary() string {
	return evaluation.GetSummary(cm.Golearn())
}

// String renders the matrix with golearn's tabular printer.
func (cm *ConfusionMatrix) String() string {
	return evaluation.ShowConfusionMatrix(cm.Golearn())
}

// ErrorRate returns 1 - accuracy, the out-of-sample error estimate.
func (cm *ConfusionMatrix) ErrorRate() float64 {
	return 1 - cm.Accuracy()
}
