package preprocessing

import (
	"math"
	"sort"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/liftclass/core/model"
	"github.com/YuminosukeSato/liftclass/dataset"
	"github.com/YuminosukeSato/liftclass/pkg/errors"
)

// LabelEncoder はクラスラベルを 0..K-1 の整数コードに変換する
// コードはラベルの辞書順
type LabelEncoder struct {
	Classes []string
	index   map[string]int
}

// Fit はラベルの一覧を学習する
func (e *LabelEncoder) Fit(labels []string) error {
	if len(labels) == 0 {
		return errors.Wrap(errors.ErrEmptyData, "LabelEncoder.Fit")
	}
	e.Classes = uniqueSorted(labels)
	e.index = make(map[string]int, len(e.Classes))
	for i, c := range e.Classes {
		e.index[c] = i
	}
	return nil
}

// Transform はラベルを n×1 のコード行列に変換する
func (e *LabelEncoder) Transform(labels []string) (*mat.Dense, error) {
	if e.index == nil {
		return nil, errors.NewNotFittedError("LabelEncoder", "Transform")
	}
	out := mat.NewDense(len(labels), 1, nil)
	for i, l := range labels {
		code, ok := e.index[l]
		if !ok {
			return nil, errors.NewValueError("LabelEncoder.Transform", "unseen label "+strconv.Quote(l))
		}
		out.Set(i, 0, float64(code))
	}
	return out, nil
}

// InverseTransform はコードをラベルへ戻す
func (e *LabelEncoder) InverseTransform(codes mat.Matrix) ([]string, error) {
	rows, _ := codes.Dims()
	out := make([]string, rows)
	for i := 0; i < rows; i++ {
		c := int(codes.At(i, 0))
		if c < 0 || c >= len(e.Classes) {
			return nil, errors.NewValueError("LabelEncoder.InverseTransform", "code out of range: "+strconv.Itoa(c))
		}
		out[i] = e.Classes[c]
	}
	return out, nil
}

// OrdinalEncoder は文字列の特徴量列を、学習時に見た水準の辞書順インデックスへ変換する
// 学習時に無かった水準と欠損値は NaN になる
type OrdinalEncoder struct {
	Levels map[string][]string
	index  map[string]map[string]int
}

// Fit は列ごとに水準を学習する
func (e *OrdinalEncoder) Fit(df dataframe.DataFrame, columns []string) error {
	e.Levels = make(map[string][]string, len(columns))
	e.index = make(map[string]map[string]int, len(columns))
	for _, name := range columns {
		col := df.Col(name)
		if col.Err != nil {
			return errors.NewColumnNotFoundError("OrdinalEncoder.Fit", name)
		}
		var values []string
		isNaN := col.IsNaN()
		for i, v := range col.Records() {
			if !isNaN[i] {
				values = append(values, v)
			}
		}
		levels := uniqueSorted(values)
		idx := make(map[string]int, len(levels))
		for i, l := range levels {
			idx[l] = i
		}
		e.Levels[name] = levels
		e.index[name] = idx
		errors.Warn(errors.NewDataConversionWarning("string", "float64", "ordinal encoding of column "+name))
	}
	return nil
}

// Encodes reports whether the column is ordinal encoded.
func (e *OrdinalEncoder) Encodes(column string) bool {
	_, ok := e.index[column]
	return ok
}

// TransformColumn encodes one column.
func (e *OrdinalEncoder) TransformColumn(column string, s series.Series) []float64 {
	idx := e.index[column]
	out := make([]float64, s.Len())
	isNaN := s.IsNaN()
	for i, v := range s.Records() {
		code, ok := idx[v]
		if isNaN[i] || !ok {
			out[i] = math.NaN()
			continue
		}
		out[i] = float64(code)
	}
	return out
}

// TableEncoder turns cleaned tables into dataset.Matrix values. String
// feature columns are ordinal encoded and the label is label encoded, both
// fitted on the fit table.
type TableEncoder struct {
	Label    string
	features []string
	labels   LabelEncoder
	ordinal  OrdinalEncoder
	state    *model.StateManager
}

// NewTableEncoder creates an encoder for the given label column.
func NewTableEncoder(label string) *TableEncoder {
	return &TableEncoder{Label: label, state: model.NewStateManager()}
}

// Fit learns the label classes and the levels of string features.
func (t *TableEncoder) Fit(df dataframe.DataFrame, features []string) error {
	t.state.Reset()
	labels, err := dataset.Labels(df, t.Label)
	if err != nil {
		return err
	}
	if err := t.labels.Fit(labels); err != nil {
		return err
	}

	if missing := dataset.MissingColumns(df, features); len(missing) > 0 {
		return errors.NewColumnNotFoundError("TableEncoder.Fit", missing...)
	}
	var stringCols []string
	for _, name := range features {
		if df.Col(name).Type() == series.String {
			stringCols = append(stringCols, name)
		}
	}
	if err := t.ordinal.Fit(df, stringCols); err != nil {
		return err
	}

	t.features = append([]string(nil), features...)
	t.state.SetDimensions(len(features), df.Nrow(), len(t.labels.Classes))
	t.state.SetFitted()
	return nil
}

// Classes returns the label classes; code i is Classes()[i].
func (t *TableEncoder) Classes() []string {
	return append([]string(nil), t.labels.Classes...)
}

// Transform builds the numeric matrix of df. Labels are encoded when
// withLabel is true; an unseen label is an error.
func (t *TableEncoder) Transform(df dataframe.DataFrame, withLabel bool) (dataset.Matrix, error) {
	if err := t.state.RequireFitted("TableEncoder", "Transform"); err != nil {
		return dataset.Matrix{}, err
	}
	if missing := dataset.MissingColumns(df, t.features); len(missing) > 0 {
		return dataset.Matrix{}, errors.NewColumnNotFoundError("TableEncoder.Transform", missing...)
	}

	rows := df.Nrow()
	X := mat.NewDense(rows, len(t.features), nil)
	for j, name := range t.features {
		col := df.Col(name)
		var values []float64
		if t.ordinal.Encodes(name) {
			values = t.ordinal.TransformColumn(name, col)
		} else {
			values = col.Float()
		}
		X.SetCol(j, values)
	}

	m := dataset.Matrix{
		X:       X,
		Schema:  dataset.FeatureSchema{Names: append([]string(nil), t.features...)},
		Classes: t.Classes(),
	}
	if withLabel {
		labels, err := dataset.Labels(df, t.Label)
		if err != nil {
			return dataset.Matrix{}, err
		}
		y, err := t.labels.Transform(labels)
		if err != nil {
			return dataset.Matrix{}, err
		}
		m.Y = y
	}
	return m, nil
}

func uniqueSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
