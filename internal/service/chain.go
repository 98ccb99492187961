package service

import (
	"context"

	"statsScope/internal/chain"
	"statsScope/internal/contracts"
	"statsScope/internal/indexer"
)

// ChainReader is the subset of *chain.Client the fetchers use.
type ChainReader interface {
	contracts.Caller
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// RangeQuerier runs range scans. *indexer.Engine satisfies it.
type RangeQuerier interface {
	Query(ctx context.Context, filter chain.EventFilter, r indexer.BlockRange, policy indexer.Policy) indexer.Result
}

var (
	_ ChainReader  = (*chain.Client)(nil)
	_ RangeQuerier = (*indexer.Engine)(nil)
)

// retryState wraps a numeric state read in the state backoff policy.
func retryState[T any](ctx context.Context, sleep indexer.Sleeper, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := indexer.RetryCall(ctx, indexer.StatePolicy(), sleep, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
