package tree

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// Data is a feature matrix prepared for fitting many trees. Columns are
// stored contiguously and every feature keeps its row order sorted by value,
// with missing values (NaN) last.
type Data struct {
	n, p  int
	cols  []float64
	order [][]int32
}

// NewData copies X and presorts each of its columns.
func NewData(X mat.Matrix) *Data {
	n, p := X.Dims()
	d := &Data{n: n, p: p, cols: make([]float64, n*p), order: make([][]int32, p)}
	for j := 0; j < p; j++ {
		col := d.cols[j*n : (j+1)*n]
		for i := 0; i < n; i++ {
			col[i] = X.At(i, j)
		}
		ord := make([]int32, n)
		for i := range ord {
			ord[i] = int32(i)
		}
		slices.SortStableFunc(ord, func(a, b int32) int {
			return compareNaNLast(col[a], col[b])
		})
		d.order[j] = ord
	}
	return d
}

// Dims returns the number of rows and features.
func (d *Data) Dims() (int, int) { return d.n, d.p }

// Row copies the features of row i into dst.
func (d *Data) Row(i int, dst []float64) {
	for j := 0; j < d.p; j++ {
		dst[j] = d.cols[j*d.n+i]
	}
}

func (d *Data) col(j int) []float64 { return d.cols[j*d.n : (j+1)*d.n] }

func compareNaNLast(a, b float64) int {
	an, bn := math.IsNaN(a), math.IsNaN(b)
	switch {
	case an && bn:
		return 0
	case an:
		return 1
	case bn:
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
