package tot

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// gather runs fn for every index in [0, n) concurrently and returns the
// results in index order, regardless of completion order. The first error
// cancels the shared context and is returned once every call has exited;
// partial results are discarded. A limit of zero means no cap.
func gather[T any](ctx context.Context, n, limit int, fn func(ctx context.Context, i int) (T, error)) ([]T, error) {
	results := make([]T, n)
	if n == 0 {
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := 0; i < n; i++ {
		g.Go(func() error {
			r, err := fn(gctx, i)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
