// Package limiter provides the bounded fan-out primitive used for all
// concurrent external calls: N independent units of work run with at most C
// in flight, and every unit's failure is captured in place without
// disturbing its siblings.
package limiter

import (
	"context"
	"sync"
)

// DefaultLimit bounds in-flight units when callers pass a non-positive limit
const DefaultLimit = 10

// Outcome holds one unit's value or its captured error
type Outcome[T any] struct {
	Value T
	Err   error
}

// Run executes n indexed units with at most limit concurrently in flight and
// returns outcomes indexed by submission order, not completion order. A
// unit's error is recorded in its outcome and never cancels sibling units;
// Run returns only after every unit has finished. The limiter has no retry
// or backoff built in.
func Run[T any](ctx context.Context, n, limit int, unit func(ctx context.Context, index int) (T, error)) []Outcome[T] {
	if limit <= 0 {
		limit = DefaultLimit
	}

	outcomes := make([]Outcome[T], n)
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			v, err := unit(ctx, i)
			outcomes[i] = Outcome[T]{Value: v, Err: err}
		}(i)
	}

	wg.Wait()
	return outcomes
}
