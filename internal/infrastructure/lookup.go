package infrastructure

import (
	"context"
	"errors"
	"sync"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// lookupInChunks splits ids into chunks of size and resolves them with at most
// concurrency calls in flight. Results of all chunks are merged into one map.
// A failing chunk does not stop the others: the map holds whatever resolved and
// the error joins every chunk failure.
func lookupInChunks[T any](ctx context.Context, ids []string, size, concurrency int, fetch func(ctx context.Context, chunk []string) (map[string]T, error)) (map[string]T, error) {
	out := make(map[string]T, len(ids))
	ids = lo.Uniq(ids)
	if len(ids) == 0 {
		return out, nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(concurrency)

	for _, chunk := range lo.Chunk(ids, size) {
		g.Go(func() error {
			found, err := fetch(ctx, chunk)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			for k, v := range found {
				out[k] = v
			}
			return nil
		})
	}

	_ = g.Wait()
	return out, errors.Join(errs...)
}

// positiveSpend drops rows that did not spend anything.
func positiveSpend[T any](rows []T, spend func(T) float64) []T {
	return lo.Filter(rows, func(r T, _ int) bool { return spend(r) > 0 })
}
