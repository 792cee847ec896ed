package utils

import (
	"context"
	"sync"
)

// DefaultConcurrency bounds fan-out when a caller passes a non-positive limit.
const DefaultConcurrency = 4

// Worker processes a single item.
type Worker[T any, R any] func(ctx context.Context, item T) (R, error)

// WorkerPool runs a Worker over a slice with bounded parallelism.
//
// - ProcessItems blocks until every item is handled or ctx is done
// - results and errors are index-aligned with the input
// - panics in workers are recovered and reported as *PanicError
//
// Example:
//
//	pool := NewWorkerPool(4, func(ctx context.Context, e *types.Entity) ([]float32, error) {
//	    return client.EmbedSingle(ctx, e.EmbeddingText())
//	})
//	vectors, errs := pool.ProcessItems(ctx, entities)
type WorkerPool[T any, R any] struct {
	numWorkers int
	worker     Worker[T, R]
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool[T any, R any](numWorkers int, worker Worker[T, R]) *WorkerPool[T, R] {
	if numWorkers <= 0 {
		numWorkers = DefaultConcurrency
	}
	return &WorkerPool[T, R]{
		numWorkers: numWorkers,
		worker:     worker,
	}
}

// ProcessItems processes items using the worker pool. Items not started
// before ctx is cancelled get ctx.Err() as their error.
func (wp *WorkerPool[T, R]) ProcessItems(ctx context.Context, items []T) ([]R, []error) {
	if len(items) == 0 {
		return nil, nil
	}

	indexes := make(chan int, len(items))
	for i := range items {
		indexes <- i
	}
	close(indexes)

	results := make([]R, len(items))
	errs := make([]error, len(items))

	var wg sync.WaitGroup
	workers := min(wp.numWorkers, len(items))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				if err := ctx.Err(); err != nil {
					errs[i] = err
					continue
				}
				func() {
					defer RecoverWithCallback(func(err error) {
						errs[i] = err
					})
					results[i], errs[i] = wp.worker(ctx, items[i])
				}()
			}
		}()
	}

	wg.Wait()
	return results, errs
}

// FirstError returns the first non-nil error.
func FirstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
