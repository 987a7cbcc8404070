// Package fanout runs independent store operations concurrently and waits
// for all of them.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DefaultLimit caps the number of operations in flight.
const DefaultLimit = 16

// Run calls fn once per item, at most limit at a time (DefaultLimit when
// limit <= 0). It returns only after every call has settled. Failures do not
// stop the other calls; they are joined into the returned error, in item
// order.
func Run[T any](ctx context.Context, items []T, limit int, fn func(context.Context, T) error) error {
	if len(items) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, limit)
	errs := make([]error, len(items))

	for i, item := range items {
		wg.Add(1)
		go func(i int, item T) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				errs[i] = ctx.Err()
				return
			}
			defer func() { <-sem }()

			if err := fn(ctx, item); err != nil {
				errs[i] = fmt.Errorf("item %d: %w", i, err)
			}
		}(i, item)
	}

	wg.Wait()
	return errors.Join(errs...)
}
