package lightgbm

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/liftclass/core/parallel"
)

const maxBinLimit = 255

// BinMapper maps the values of one feature to histogram bins.
//
// Bin b holds the values v with UpperBounds[b-1] < v <= UpperBounds[b]; the
// last upper bound is +Inf. Missing values get their own bin after the others.
type BinMapper struct {
	UpperBounds []float64
	HasNaN      bool
}

// NumBins returns the number of value bins, not counting the NaN bin.
func (m *BinMapper) NumBins() int { return len(m.UpperBounds) }

// NaNBin returns the index of the bin that holds missing values.
func (m *BinMapper) NaNBin() int { return len(m.UpperBounds) }

// ValueToBin returns the bin of v.
func (m *BinMapper) ValueToBin(v float64) int {
	if math.IsNaN(v) {
		return m.NaNBin()
	}
	return sort.SearchFloat64s(m.UpperBounds, v)
}

// newBinMapper builds the bins of one column from at most maxBin quantiles.
// Columns with few distinct values get one bin per value with midpoint bounds.
func newBinMapper(values []float64, maxBin int) *BinMapper {
	m := &BinMapper{}
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if math.IsNaN(v) {
			m.HasNaN = true
			continue
		}
		sorted = append(sorted, v)
	}
	sort.Float64s(sorted)

	distinct := make([]float64, 0)
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			distinct = append(distinct, v)
		}
	}

	switch {
	case len(distinct) == 0:
		m.UpperBounds = []float64{math.Inf(1)}
	case len(distinct) <= maxBin:
		m.UpperBounds = make([]float64, len(distinct))
		for i := 0; i < len(distinct)-1; i++ {
			m.UpperBounds[i] = (distinct[i] + distinct[i+1]) / 2
		}
		m.UpperBounds[len(distinct)-1] = math.Inf(1)
	default:
		n := len(sorted)
		bounds := make([]float64, 0, maxBin)
		for b := 1; b < maxBin; b++ {
			q := sorted[b*n/maxBin-1]
			if len(bounds) == 0 || q > bounds[len(bounds)-1] {
				bounds = append(bounds, q)
			}
		}
		if bounds[len(bounds)-1] >= distinct[len(distinct)-1] {
			bounds = bounds[:len(bounds)-1]
		}
		m.UpperBounds = append(bounds, math.Inf(1))
	}
	return m
}

// binnedData is the training matrix after binning, stored column by column.
type binnedData struct {
	n, p    int
	mappers []*BinMapper
	bins    [][]uint16
}

func newBinnedData(X mat.Matrix, maxBin, workers int) *binnedData {
	n, p := X.Dims()
	d := &binnedData{
		n:       n,
		p:       p,
		mappers: make([]*BinMapper, p),
		bins:    make([][]uint16, p),
	}
	parallel.ParallelizeWorkers(p, workers, func(s, e int) {
		col := make([]float64, n)
		for j := s; j < e; j++ {
			for i := 0; i < n; i++ {
				col[i] = X.At(i, j)
			}
			m := newBinMapper(col, maxBin)
			bins := make([]uint16, n)
			for i, v := range col {
				bins[i] = uint16(m.ValueToBin(v))
			}
			d.mappers[j], d.bins[j] = m, bins
		}
	})
	return d
}
