// Package parallel splits index ranges across worker goroutines.
package parallel

import (
	"runtime"
	"sync"

	"github.com/YuminosukeSato/liftclass/pkg/errors"
)

// ParallelizeWorkers divides items into one contiguous range per worker and
// executes fn in parallel for each range (start, end).
// A non-positive count means runtime.NumCPU().
func ParallelizeWorkers(items, workers int, fn func(start, end int)) {
	if items <= 0 {
		return
	}
	var wg sync.WaitGroup
	for _, r := range chunks(items, workers) {
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(r[0], r[1])
	}
	wg.Wait()
}

// ParallelizeErr runs fn over the chunks like ParallelizeWorkers and returns
// the first error. Panics inside fn are returned as *errors.PanicError.
func ParallelizeErr(op string, items, workers int, fn func(start, end int) error) error {
	if items <= 0 {
		return nil
	}
	ranges := chunks(items, workers)
	errs := make([]error, len(ranges))

	var wg sync.WaitGroup
	for i, r := range ranges {
		wg.Add(1)
		go func(i, s, e int) {
			defer wg.Done()
			errs[i] = errors.SafeExecute(op, func() error { return fn(s, e) })
		}(i, r[0], r[1])
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// ParallelizeWithThreshold performs parallelization only when the number of items exceeds the threshold
// If below threshold, normal sequential processing is performed
func ParallelizeWithThreshold(items, threshold, workers int, fn func(start, end int)) {
	if items <= 0 {
		return
	}
	if items <= threshold || workers == 1 {
		fn(0, items)
		return
	}
	ParallelizeWorkers(items, workers, fn)
}

// chunks returns contiguous [start, end) ranges covering 0..items.
func chunks(items, workers int) [][2]int {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > items {
		workers = items
	}
	chunkSize := (items + workers - 1) / workers

	ranges := make([][2]int, 0, workers)
	for start := 0; start < items; start += chunkSize {
		end := start + chunkSize
		if end > items {
			end = items
		}
		ranges = append(ranges, [2]int{start, end})
	}
	return ranges
}
