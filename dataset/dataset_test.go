package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-gota/gota/series"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/liftclass/pkg/errors"
)

const trainCSV = `,user_name,roll_belt,kurtosis_roll_belt,classe
1,carlitos,1.41,NA,A
2,carlitos,1.42,#DIV/0!,A
3,pedro,1.48,,B
4,pedro,1.45,0.5,B
5,adelmo,1.50,NA,C
6,adelmo,1.52,NA,C
7,adelmo,1.55,NA,A
8,pedro,1.60,NA,B
`

const testCSV = `,user_name,roll_belt,kurtosis_roll_belt,problem_id
1,pedro,1.44,NA,1
2,adelmo,1.51,NA,2
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRead(t *testing.T) {
	df, err := Read(strings.NewReader(trainCSV))
	require.NoError(t, err)

	assert.Equal(t, 8, df.Nrow())
	// an empty header is renamed by gota
	if diff := cmp.Diff([]string{"X0", "user_name", "roll_belt", "kurtosis_roll_belt", "classe"}, df.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}

	kurt := df.Col("kurtosis_roll_belt")
	assert.Equal(t, []bool{true, true, true, false, true, true, true, true}, kurt.IsNaN())
	assert.Equal(t, series.Float, df.Col("roll_belt").Type())
	assert.Equal(t, series.String, df.Col("user_name").Type())
}

func TestReadErrors(t *testing.T) {
	_, err := Read(strings.NewReader("a,b\n"))
	assert.Error(t, err)

	_, err = Read(strings.NewReader("a,b\n1,2,3\n"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "absent.csv"))
	assert.Error(t, err)
}

func TestLoadPairAndIDs(t *testing.T) {
	trainPath := writeFile(t, "train.csv", trainCSV)
	testPath := writeFile(t, "test.csv", testCSV)

	train, test, err := LoadPair(trainPath, testPath, "classe")
	require.NoError(t, err)
	assert.Equal(t, 8, train.Nrow())
	assert.Equal(t, 2, test.Nrow())

	assert.Equal(t, []string{"1", "2"}, IDs(test, "problem_id"))
	assert.Equal(t, []string{"1", "2", "3"}, IDs(train.Subset([]int{0, 1, 2}), "problem_id"))

	assert.Empty(t, MissingColumns(test, train.Names(), "classe"))
	assert.Equal(t, []string{"classe"}, MissingColumns(test, train.Names()))

	_, _, err = LoadPair(trainPath, testPath, "label")
	var colErr *errors.ColumnNotFoundError
	assert.True(t, errors.As(err, &colErr))
}

func TestPartition(t *testing.T) {
	df, err := Read(strings.NewReader(trainCSV))
	require.NoError(t, err)

	fit, eval, err := Partition(df, "classe", 0.5, 12345)
	require.NoError(t, err)
	assert.Equal(t, df.Nrow(), fit.Nrow()+eval.Nrow())

	// A: 3 rows -> 2 fit, B: 3 -> 2, C: 2 -> 1
	assert.Equal(t, 5, fit.Nrow())

	fitIDs := fit.Col("X0").Records()
	evalIDs := eval.Col("X0").Records()
	for _, id := range fitIDs {
		assert.NotContains(t, evalIDs, id)
	}

	fit2, _, err := Partition(df, "classe", 0.5, 12345)
	require.NoError(t, err)
	assert.Equal(t, fitIDs, fit2.Col("X0").Records())

	_, _, err = Partition(df, "classe", 1.2, 1)
	assert.Error(t, err)
	_, _, err = Partition(df, "nope", 0.5, 1)
	assert.Error(t, err)
}

func TestFeatureSchemaCheck(t *testing.T) {
	s := FeatureSchema{Names: []string{"a", "b", "c"}}

	assert.NoError(t, s.Check("Predict", FeatureSchema{Names: []string{"a", "b", "c"}}))

	err := s.Check("Predict", FeatureSchema{Names: []string{"a", "c"}})
	var colErr *errors.ColumnNotFoundError
	require.True(t, errors.As(err, &colErr))
	assert.Equal(t, []string{"b"}, colErr.Columns)

	err = s.Check("Predict", FeatureSchema{Names: []string{"a", "b", "c", "d"}})
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))

	assert.Error(t, s.Check("Predict", FeatureSchema{Names: []string{"b", "a", "c"}}))
}

func TestMatrixDecode(t *testing.T) {
	m := Matrix{
		X:       mat.NewDense(3, 1, []float64{1, 2, 3}),
		Y:       mat.NewDense(3, 1, []float64{0, 2, 1}),
		Classes: []string{"A", "B", "C"},
	}
	names, err := m.LabelNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C", "B"}, names)

	_, err = m.Decode(mat.NewDense(1, 1, []float64{7}))
	assert.Error(t, err)

	r, c := m.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 1, c)
	assert.True(t, m.Labelled())
}
