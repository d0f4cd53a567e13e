package parallel

import (
	"fmt"
	"sync/atomic"
	"testing"

	"go.uber.org/goleak"

	"github.com/YuminosukeSato/liftclass/pkg/errors"
)

func TestParallelizeCoversEveryItem(t *testing.T) {
	defer goleak.VerifyNone(t)

	for _, items := range []int{0, 1, 7, 100, 1001} {
		t.Run(fmt.Sprintf("items=%d", items), func(t *testing.T) {
			hits := make([]int32, items)
			ParallelizeWorkers(items, 4, func(start, end int) {
				for i := start; i < end; i++ {
					atomic.AddInt32(&hits[i], 1)
				}
			})
			for i, h := range hits {
				if h != 1 {
					t.Fatalf("item %d visited %d times", i, h)
				}
			}
		})
	}
}

func TestChunks(t *testing.T) {
	tests := []struct {
		items, workers, want int
	}{
		{10, 3, 3},
		{10, 20, 10},
		{9, 3, 3},
		{1, 8, 1},
	}
	for _, tt := range tests {
		got := chunks(tt.items, tt.workers)
		if len(got) != tt.want {
			t.Errorf("chunks(%d, %d) = %d ranges, want %d", tt.items, tt.workers, len(got), tt.want)
		}
		if got[len(got)-1][1] != tt.items {
			t.Errorf("chunks(%d, %d) ends at %d", tt.items, tt.workers, got[len(got)-1][1])
		}
	}
}

func TestParallelizeErr(t *testing.T) {
	defer goleak.VerifyNone(t)

	sentinel := errors.New("tree failed")
	err := ParallelizeErr("forest.Fit", 10, 3, func(start, end int) error {
		if start <= 5 && 5 < end {
			return sentinel
		}
		return nil
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	err = ParallelizeErr("forest.Fit", 4, 2, func(start, end int) error {
		if start == 0 {
			panic("boom")
		}
		return nil
	})
	var pe *errors.PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PanicError, got %v", err)
	}
	if pe.Operation != "forest.Fit" {
		t.Errorf("Operation = %q", pe.Operation)
	}
}

func TestParallelizeWithThreshold(t *testing.T) {
	defer goleak.VerifyNone(t)

	tests := []struct {
		name                      string
		items, threshold, workers int
		wantCalls                 int32
	}{
		{"below threshold", 5, 10, 4, 1},
		{"single worker", 100, 10, 1, 1},
		{"above threshold", 100, 10, 4, 4},
		{"empty", 0, 10, 4, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			hits := make([]int32, tt.items)
			ParallelizeWithThreshold(tt.items, tt.threshold, tt.workers, func(start, end int) {
				atomic.AddInt32(&calls, 1)
				for i := start; i < end; i++ {
					atomic.AddInt32(&hits[i], 1)
				}
			})
			if calls != tt.wantCalls {
				t.Errorf("got %d calls, want %d", calls, tt.wantCalls)
			}
			for i, h := range hits {
				if h != 1 {
					t.Fatalf("item %d visited %d times", i, h)
				}
			}
		})
	}
}
