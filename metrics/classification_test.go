package metrics

import (
	"math"
	"strings"
	"testing"

	"github.com/sjwhitworth/golearn/evaluation"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/liftclass/pkg/errors"
)

func TestClassificationError(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   []float64
		yPred   []float64
		want    float64
		wantErr bool
	}{
		{
			name:  "Perfect classification",
			yTrue: []float64{0, 1, 2, 1, 0},
			yPred: []float64{0, 1, 2, 1, 0},
			want:  0.0,
		},
		{
			name:  "One error",
			yTrue: []float64{0, 1, 2, 1, 0},
			yPred: []float64{0, 1, 1, 1, 0},
			want:  0.2,
		},
		{
			name:  "All wrong",
			yTrue: []float64{0, 0, 0},
			yPred: []float64{1, 1, 1},
			want:  1.0,
		},
		{
			name:  "Binary classification",
			yTrue: []float64{0, 0, 1, 1},
			yPred: []float64{0, 1, 1, 0},
			want:  0.5,
		},
		{
			name:    "Empty vectors",
			yTrue:   []float64{},
			yPred:   []float64{},
			wantErr: true,
		},
		{
			name:    "Dimension mismatch",
			yTrue:   []float64{0, 1},
			yPred:   []float64{0},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var yTrue, yPred *mat.VecDense
			if len(tt.yTrue) > 0 {
				yTrue = mat.NewVecDense(len(tt.yTrue), tt.yTrue)
			}
			if len(tt.yPred) > 0 {
				yPred = mat.NewVecDense(len(tt.yPred), tt.yPred)
			}

			got, err := ClassificationError(yTrue, yPred)
			if (err != nil) != tt.wantErr {
				t.Errorf("ClassificationError() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("ClassificationError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAccuracy(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   []float64
		yPred   []float64
		want    float64
		wantErr bool
	}{
		{
			name:  "Perfect accuracy",
			yTrue: []float64{0, 1, 2, 1, 0},
			yPred: []float64{0, 1, 2, 1, 0},
			want:  1.0,
		},
		{
			name:  "80% accuracy",
			yTrue: []float64{0, 1, 2, 1, 0},
			yPred: []float64{0, 1, 1, 1, 0},
			want:  0.8,
		},
		{
			name:  "Zero accuracy",
			yTrue: []float64{0, 0, 0},
			yPred: []float64{1, 1, 1},
			want:  0.0,
		},
		{
			name:    "Empty vectors",
			yTrue:   []float64{},
			yPred:   []float64{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var yTrue, yPred *mat.VecDense
			if len(tt.yTrue) > 0 {
				yTrue = mat.NewVecDense(len(tt.yTrue), tt.yTrue)
			}
			if len(tt.yPred) > 0 {
				yPred = mat.NewVecDense(len(tt.yPred), tt.yPred)
			}

			got, err := Accuracy(yTrue, yPred)
			if (err != nil) != tt.wantErr {
				t.Errorf("Accuracy() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("Accuracy() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAccuracyScore(t *testing.T) {
	yTrue := mat.NewDense(4, 1, []float64{0, 1, 2, 2})
	yPred := mat.NewDense(4, 1, []float64{0, 1, 1, 2})

	got, err := AccuracyScore(yTrue, yPred)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(got-0.75) > 1e-12 {
		t.Errorf("AccuracyScore() = %v, want 0.75", got)
	}

	if _, err := AccuracyScore(yTrue, mat.NewDense(3, 1, nil)); err == nil {
		t.Error("expected dimension error")
	}
	if _, err := AccuracyScore(yTrue, mat.NewDense(4, 2, nil)); err == nil {
		t.Error("expected column vector error")
	}
}

func newTestMatrix(t *testing.T) *ConfusionMatrix {
	t.Helper()
	yTrue := []string{"A", "A", "A", "B", "B", "C"}
	yPred := []string{"A", "A", "B", "B", "B", "C"}
	cm, err := NewConfusionMatrix(yTrue, yPred, nil)
	if err != nil {
		t.Fatalf("NewConfusionMatrix() error = %v", err)
	}
	return cm
}

func TestConfusionMatrixCounts(t *testing.T) {
	cm := newTestMatrix(t)

	if got := cm.Classes(); strings.Join(got, "") != "ABC" {
		t.Fatalf("Classes() = %v", got)
	}
	want := [][]int{
		{2, 1, 0},
		{0, 2, 0},
		{0, 0, 1},
	}
	for i := range want {
		for j := range want[i] {
			if cm.At(i, j) != want[i][j] {
				t.Errorf("At(%d, %d) = %d, want %d", i, j, cm.At(i, j), want[i][j])
			}
		}
	}
	if cm.Total() != 6 || cm.Correct() != 5 {
		t.Errorf("Total/Correct = %d/%d, want 6/5", cm.Total(), cm.Correct())
	}
	if math.Abs(cm.Accuracy()-5.0/6.0) > 1e-12 {
		t.Errorf("Accuracy() = %v", cm.Accuracy())
	}
	if math.Abs(cm.ErrorRate()-1.0/6.0) > 1e-12 {
		t.Errorf("ErrorRate() = %v", cm.ErrorRate())
	}

	// golearn's view of the same matrix agrees
	if got := evaluation.GetAccuracy(cm.Golearn()); math.Abs(got-cm.Accuracy()) > 1e-12 {
		t.Errorf("golearn accuracy = %v, want %v", got, cm.Accuracy())
	}
	if !strings.Contains(strings.ToLower(cm.Summary()), "accuracy") {
		t.Errorf("unexpected summary:\n%s", cm.Summary())
	}
}

func TestConfusionMatrixStatistics(t *testing.T) {
	cm := newTestMatrix(t)

	if got, want := cm.Kappa(), 17.0/23.0; math.Abs(got-want) > 1e-12 {
		t.Errorf("Kappa() = %v, want %v", got, want)
	}

	// binom.test(5, 6) in R gives [0.3587654, 0.9957893]
	lo, hi := cm.AccuracyCI(0.95)
	if math.Abs(lo-0.3587654) > 1e-6 {
		t.Errorf("lower = %v", lo)
	}
	if math.Abs(hi-math.Pow(0.975, 1.0/6.0)) > 1e-9 {
		t.Errorf("upper = %v", hi)
	}

	if got := cm.NoInformationRate(); got != 0.5 {
		t.Errorf("NoInformationRate() = %v, want 0.5", got)
	}
	if got := cm.AccuracyPValue(); math.Abs(got-7.0/64.0) > 1e-9 {
		t.Errorf("AccuracyPValue() = %v, want %v", got, 7.0/64.0)
	}

	stats := cm.ClassStats()
	if len(stats) != 3 {
		t.Fatalf("expected 3 class stats, got %d", len(stats))
	}
	a := stats[0]
	if math.Abs(a.Sensitivity-2.0/3.0) > 1e-12 || a.Specificity != 1 || a.PosPredValue != 1 ||
		math.Abs(a.NegPredValue-0.75) > 1e-12 || a.Prevalence != 0.5 {
		t.Errorf("unexpected stats for A: %+v", a)
	}
	b := stats[1]
	if b.Sensitivity != 1 || math.Abs(b.Specificity-0.75) > 1e-12 || math.Abs(b.BalancedAccuracy-0.875) > 1e-12 {
		t.Errorf("unexpected stats for B: %+v", b)
	}
}

func TestConfusionMatrixPerfectAndEmptyClass(t *testing.T) {
	var warnings []error
	prev := errors.SetZerologWarnFunc(func(w error) { warnings = append(warnings, w) })
	defer errors.SetZerologWarnFunc(prev)

	cm, err := NewConfusionMatrix([]string{"A", "B"}, []string{"A", "B"}, []string{"A", "B", "E"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lo, hi := cm.AccuracyCI(0.95); hi != 1 || lo <= 0 {
		t.Errorf("AccuracyCI() = [%v, %v]", lo, hi)
	}

	stats := cm.ClassStats()
	if stats[2].Sensitivity != 0 || stats[2].PosPredValue != 0 {
		t.Errorf("undefined ratios should be reported as 0: %+v", stats[2])
	}
	if len(warnings) == 0 {
		t.Error("expected UndefinedMetricWarning for class E")
	}
}

func TestNewConfusionMatrixErrors(t *testing.T) {
	if _, err := NewConfusionMatrix(nil, nil, nil); err == nil {
		t.Error("expected error for empty input")
	}
	if _, err := NewConfusionMatrix([]string{"A"}, []string{"A", "B"}, nil); err == nil {
		t.Error("expected dimension error")
	}
	if _, err := NewConfusionMatrix([]string{"A"}, []string{"Z"}, []string{"A"}); err == nil {
		t.Error("expected unknown label error")
	}
}

func BenchmarkConfusionMatrix(b *testing.B) {
	classes := []string{"A", "B", "C", "D", "E"}
	yTrue := make([]string, 5000)
	yPred := make([]string, 5000)
	for i := range yTrue {
		yTrue[i] = classes[i%5]
		yPred[i] = classes[(i/7)%5]
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cm, _ := NewConfusionMatrix(yTrue, yPred, classes)
		_ = cm.Kappa()
	}
}
