// Package fanout runs a function over a slice with a cap on how many calls are
// in flight at once. A finished call frees its slot for the next queued item
// immediately; items are started in input order.
package fanout

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Outcome is the result of calling fn on one item.
type Outcome[R any] struct {
	Index int
	Value R
	Err   error
}

// Map calls fn for every item with at most limit calls running concurrently and
// returns one Outcome per item, in input order. A failing call never stops its
// siblings. A limit below 1 is treated as 1.
func Map[T, R any](ctx context.Context, items []T, limit int, fn func(ctx context.Context, item T) (R, error)) []Outcome[R] {
	if limit < 1 {
		limit = 1
	}

	out := make([]Outcome[R], len(items))

	var g errgroup.Group
	g.SetLimit(limit)

	for i, item := range items {
		g.Go(func() error {
			v, err := fn(ctx, item)
			out[i] = Outcome[R]{Index: i, Value: v, Err: err}
			return nil // per-item failures are reported through out
		})
	}
	_ = g.Wait()

	return out
}
