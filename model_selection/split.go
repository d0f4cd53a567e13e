// Package model_selection provides data splitters and cross-validated
// hyperparameter search for the classifiers of this module.
package model_selection

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/liftclass/pkg/errors"
)

// Splitter defines interface for cross-validation splitters
type Splitter interface {
	Split(X, y mat.Matrix) ([]Fold, error)
	GetNSplits() int
}

// Fold represents a single fold in cross-validation
type Fold struct {
	TrainIndices []int
	TestIndices  []int
}

// KFold implements k-fold cross-validation splitter
type KFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed uint64
}

// NewKFold creates a new k-fold splitter
func NewKFold(nSplits int, shuffle bool, randomSeed uint64) *KFold {
	if nSplits < 2 {
		nSplits = 5
	}
	return &KFold{NSplits: nSplits, Shuffle: shuffle, RandomSeed: randomSeed}
}

// GetNSplits returns the number of splits
func (kf *KFold) GetNSplits() int {
	return kf.NSplits
}

// Split generates train/test indices for each fold
func (kf *KFold) Split(X, _ mat.Matrix) ([]Fold, error) {
	nSamples, _ := X.Dims()
	if nSamples < kf.NSplits {
		return nil, errors.NewValidationError("n_splits", "cannot exceed the number of samples", kf.NSplits)
	}

	indices := make([]int, nSamples)
	for i := range indices {
		indices[i] = i
	}
	if kf.Shuffle {
		r := rand.New(rand.NewPCG(kf.RandomSeed, kf.RandomSeed))
		r.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	assign := make([]int, nSamples)
	foldSize := nSamples / kf.NSplits
	remainder := nSamples % kf.NSplits
	current := 0
	for f := 0; f < kf.NSplits; f++ {
		testSize := foldSize
		if f < remainder {
			testSize++
		}
		for _, idx := range indices[current : current+testSize] {
			assign[idx] = f
		}
		current += testSize
	}
	return foldsFromAssignment(assign, kf.NSplits), nil
}

// StratifiedKFold implements stratified k-fold cross-validation.
// Classes are visited in ascending order so the folds only depend on the seed.
type StratifiedKFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed uint64
}

// NewStratifiedKFold creates a new stratified k-fold splitter
func NewStratifiedKFold(nSplits int, shuffle bool, randomSeed uint64) *StratifiedKFold {
	if nSplits < 2 {
		nSplits = 5
	}
	return &StratifiedKFold{NSplits: nSplits, Shuffle: shuffle, RandomSeed: randomSeed}
}

// GetNSplits returns the number of splits
func (skf *StratifiedKFold) GetNSplits() int {
	return skf.NSplits
}

// Split generates stratified train/test indices for each fold
func (skf *StratifiedKFold) Split(X, y mat.Matrix) ([]Fold, error) {
	nSamples, _ := X.Dims()
	if yRows, _ := y.Dims(); yRows != nSamples {
		return nil, errors.NewDimensionError("StratifiedKFold.Split", nSamples, yRows, 0)
	}
	if nSamples < skf.NSplits {
		return nil, errors.NewValidationError("n_splits", "cannot exceed the number of samples", skf.NSplits)
	}

	classIndices := make(map[float64][]int)
	for i := 0; i < nSamples; i++ {
		label := y.At(i, 0)
		classIndices[label] = append(classIndices[label], i)
	}
	labels := make([]float64, 0, len(classIndices))
	for label := range classIndices {
		labels = append(labels, label)
	}
	sort.Float64s(labels)

	var r *rand.Rand
	if skf.Shuffle {
		r = rand.New(rand.NewPCG(skf.RandomSeed, skf.RandomSeed))
	}

	// 各クラスをフォールドへ順番に配る。余りは前のフォールドから埋まるが、
	// クラスごとに開始位置をずらしてフォールドサイズの偏りを抑える
	assign := make([]int, nSamples)
	offset := 0
	for _, label := range labels {
		indices := classIndices[label]
		if r != nil {
			r.Shuffle(len(indices), func(i, j int) {
				indices[i], indices[j] = indices[j], indices[i]
			})
		}
		for k, idx := range indices {
			assign[idx] = (offset + k) % skf.NSplits
		}
		offset = (offset + len(indices)) % skf.NSplits
	}
	return foldsFromAssignment(assign, skf.NSplits), nil
}

func foldsFromAssignment(assign []int, nSplits int) []Fold {
	folds := make([]Fold, nSplits)
	for idx, f := range assign {
		folds[f].TestIndices = append(folds[f].TestIndices, idx)
		for g := range folds {
			if g != f {
				folds[g].TrainIndices = append(folds[g].TrainIndices, idx)
			}
		}
	}
	return folds
}

// StratifiedTrainTestSplit splits row indices into a fit part and an
// evaluation part, stratified by label. For each class, visited in sorted
// order, the rows are shuffled with a PCG source seeded by seed and
// ceil(trainFraction * n) of them go to the fit part. Both index lists are
// returned in ascending order.
func StratifiedTrainTestSplit(labels []string, trainFraction float64, seed uint64) (train, test []int, err error) {
	if len(labels) == 0 {
		return nil, nil, errors.Wrap(errors.ErrEmptyData, "StratifiedTrainTestSplit")
	}
	if !(trainFraction > 0 && trainFraction < 1) {
		return nil, nil, errors.NewValidationError("train_fraction", "must be in (0, 1)", trainFraction)
	}

	byClass := make(map[string][]int)
	for i, l := range labels {
		byClass[l] = append(byClass[l], i)
	}
	classes := make([]string, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Strings(classes)

	r := rand.New(rand.NewPCG(seed, seed))
	train = make([]int, 0, int(math.Ceil(trainFraction*float64(len(labels))))+len(classes))
	test = make([]int, 0, len(labels))
	for _, c := range classes {
		indices := byClass[c]
		r.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
		// 0.7*10 が 7.000000000000001 になるのを丸める
		nFit := int(math.Ceil(trainFraction*float64(len(indices)) - 1e-9))
		train = append(train, indices[:nFit]...)
		test = append(test, indices[nFit:]...)
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test, nil
}

// TakeRows copies the given rows of X into a new dense matrix.
func TakeRows(X mat.Matrix, indices []int) *mat.Dense {
	_, cols := X.Dims()
	if len(indices) == 0 {
		return &mat.Dense{}
	}
	out := mat.NewDense(len(indices), cols, nil)
	for i, idx := range indices {
		for j := 0; j < cols; j++ {
			out.Set(i, j, X.At(idx, j))
		}
	}
	return out
}
