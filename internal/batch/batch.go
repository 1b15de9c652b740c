// Package batch runs independent units of work on a fixed-size worker pool.
// One unit's failure never stops the pool; every unit is attempted exactly
// once and results come back in input order.
package batch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Result is the outcome of one unit, stored at the unit's input position.
type Result[T, R any] struct {
	Index    int
	Unit     T
	Value    R
	OK       bool
	Err      error
	Duration time.Duration
}

// PanicError wraps a panic raised by a worker.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("worker panic: %v", e.Value)
}

// Run processes units with min(limit, len(units)) workers. Each worker pulls
// the next index from a shared counter and runs the unit to completion before
// pulling again. limit < 1 is treated as 1.
//
// Run returns once every unit has been attempted. ctx is handed to the worker
// unchanged; cancelling it is the worker's concern.
func Run[T, R any](ctx context.Context, units []T, worker func(context.Context, T) (R, error), limit int) []Result[T, R] {
	results := make([]Result[T, R], len(units))
	if len(units) == 0 {
		return results
	}

	if limit < 1 {
		limit = 1
	}
	if limit > len(units) {
		limit = len(units)
	}

	var next atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < limit; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				idx := int(next.Add(1) - 1)
				if idx >= len(units) {
					return
				}
				results[idx] = runOne(ctx, idx, units[idx], worker)
			}
		}()
	}
	wg.Wait()
	return results
}

func runOne[T, R any](ctx context.Context, idx int, unit T, worker func(context.Context, T) (R, error)) (res Result[T, R]) {
	start := time.Now()
	res = Result[T, R]{Index: idx, Unit: unit}
	defer func() {
		if p := recover(); p != nil {
			res.OK = false
			res.Err = &PanicError{Value: p, Stack: debug.Stack()}
		}
		res.Duration = time.Since(start)
	}()

	v, err := worker(ctx, unit)
	res.Value = v
	res.Err = err
	res.OK = err == nil
	return res
}

// Summary counts outcomes of a finished batch.
type Summary struct {
	Total    int
	Ok       int
	Failed   int
	Duration time.Duration
}

// String returns a human-readable summary.
func (s Summary) String() string {
	return fmt.Sprintf("total=%d ok=%d failed=%d dur=%s",
		s.Total, s.Ok, s.Failed, s.Duration.Round(time.Millisecond))
}

// Summarize counts ok and failed results. Duration is the sum of unit
// durations, not wall-clock time.
func Summarize[T, R any](results []Result[T, R]) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r.OK {
			s.Ok++
		} else {
			s.Failed++
		}
		s.Duration += r.Duration
	}
	return s
}
