package dataset

import (
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/liftclass/pkg/errors"
)

// FeatureSchema is the ordered list of feature columns a model was fitted on.
type FeatureSchema struct {
	Names []string
}

// Check returns an error when other cannot be fed to a model fitted on s.
func (s FeatureSchema) Check(op string, other FeatureSchema) error {
	have := make(map[string]struct{}, len(other.Names))
	for _, n := range other.Names {
		have[n] = struct{}{}
	}
	var missing []string
	for _, n := range s.Names {
		if _, ok := have[n]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return errors.NewColumnNotFoundError(op, missing...)
	}
	if len(other.Names) != len(s.Names) {
		return errors.NewDimensionError(op, len(s.Names), len(other.Names), 1)
	}
	for i := range s.Names {
		if s.Names[i] != other.Names[i] {
			return errors.NewValueError(op, "feature column order differs at "+s.Names[i])
		}
	}
	return nil
}

// Matrix is a cleaned table in numeric form.
type Matrix struct {
	// X holds one row per sample in Schema order. Missing values are NaN.
	X *mat.Dense
	// Y holds label codes indexing Classes. Nil for unlabelled tables.
	Y       *mat.Dense
	Schema  FeatureSchema
	Classes []string
}

// Dims returns the number of samples and features.
func (m Matrix) Dims() (int, int) {
	if m.X == nil {
		return 0, 0
	}
	return m.X.Dims()
}

// Labelled reports whether the matrix carries labels.
func (m Matrix) Labelled() bool {
	return m.Y != nil
}

// Decode maps a column of label codes back to class names.
func (m Matrix) Decode(codes mat.Matrix) ([]string, error) {
	rows, _ := codes.Dims()
	out := make([]string, rows)
	for i := 0; i < rows; i++ {
		c := int(codes.At(i, 0))
		if c < 0 || c >= len(m.Classes) {
			return nil, errors.NewValueError("Matrix.Decode", "label code out of range: "+itoa(c))
		}
		out[i] = m.Classes[c]
	}
	return out, nil
}

// LabelNames returns the decoded labels of the matrix itself.
func (m Matrix) LabelNames() ([]string, error) {
	if m.Y == nil {
		return nil, errors.NewValueError("Matrix.LabelNames", "matrix has no labels")
	}
	return m.Decode(m.Y)
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
