package model

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/liftclass/pkg/errors"
)

// ValidateTrainingData checks that X and y describe the same samples and that
// y holds integral class codes. It returns the sorted distinct codes and y as ints.
func ValidateTrainingData(op string, X, y mat.Matrix) (classes []int, labels []int, err error) {
	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return nil, nil, errors.Wrap(errors.ErrEmptyData, op)
	}
	yRows, yCols := y.Dims()
	if yRows != rows {
		return nil, nil, errors.NewDimensionError(op, rows, yRows, 0)
	}
	if yCols != 1 {
		return nil, nil, errors.NewDimensionError(op, 1, yCols, 1)
	}

	labels = make([]int, rows)
	seen := make(map[int]struct{})
	for i := 0; i < rows; i++ {
		v := y.At(i, 0)
		if math.IsNaN(v) || v < 0 || v != math.Trunc(v) {
			return nil, nil, errors.NewValueError(op, "labels must be non-negative integer class codes")
		}
		labels[i] = int(v)
		seen[labels[i]] = struct{}{}
	}
	for c := range seen {
		classes = append(classes, c)
	}
	sort.Ints(classes)
	if len(classes) < 2 {
		return nil, nil, errors.Wrap(errors.ErrSingleClass, op)
	}
	return classes, labels, nil
}

// ArgMaxRows returns, for each row of proba, the entry of classes at the
// column with the highest probability. Ties go to the lower column.
func ArgMaxRows(proba mat.Matrix, classes []int) *mat.Dense {
	rows, cols := proba.Dims()
	out := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		best := 0
		for j := 1; j < cols; j++ {
			if proba.At(i, j) > proba.At(i, best) {
				best = j
			}
		}
		out.Set(i, 0, float64(classes[best]))
	}
	return out
}
