package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"adreport/internal/domain"
)

// fetchTask is one account-level fetch of the fan-out.
type fetchTask[T any] struct {
	platform domain.Platform
	account  string
	fetch    func(ctx context.Context) ([]T, error)
}

type fetchResult[T any] struct {
	platform domain.Platform
	account  string
	rows     []T
	err      error
}

// fanOut runs every task with at most workers in flight and waits for all of
// them. A failing task never cancels its siblings. Results keep task order.
func fanOut[T any](ctx context.Context, workers int, timeout time.Duration, tasks []fetchTask[T]) []fetchResult[T] {
	results := make([]fetchResult[T], len(tasks))
	if len(tasks) == 0 {
		return results
	}
	if workers < 1 {
		workers = 1
	}
	workers = min(workers, len(tasks))

	jobs := make(chan int, len(tasks))
	for i := range tasks {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for range workers {
		wg.Go(func() {
			for i := range jobs {
				results[i] = runTask(ctx, timeout, tasks[i])
			}
		})
	}
	wg.Wait()

	return results
}

func runTask[T any](ctx context.Context, timeout time.Duration, task fetchTask[T]) (res fetchResult[T]) {
	res = fetchResult[T]{platform: task.platform, account: task.account}

	defer func() {
		if r := recover(); r != nil {
			res.rows = nil
			res.err = fmt.Errorf("%s fetch panicked: %v", task.platform, r)
		}
	}()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	res.rows, res.err = task.fetch(ctx)
	return res
}

// failureReason labels a failed fetch for metrics.
func failureReason(err error) string {
	switch {
	case domain.IsDisabled(err):
		return "skipped"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
