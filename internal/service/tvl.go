package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"statsScope/internal/aggregate"
	"statsScope/internal/contracts"
	"statsScope/internal/indexer"
	"statsScope/internal/model"
	"statsScope/internal/storage"
)

// TVLFetcher samples holder balances and the price feed once per day.
type TVLFetcher struct {
	Chain ChainReader
	Token common.Address
	// Holders are the vault, staking and swap pool addresses.
	Holders   []common.Address
	PriceFeed common.Address
	Days      int
	BlockTime time.Duration
	Threshold decimal.Decimal
	Decimals  *contracts.DecimalsCache
	// History optionally stores the computed series.
	History storage.TVLHistory
	Sleep   indexer.Sleeper
	Now     func() time.Time
	Logger  *zap.Logger
}

// SampleBlocks returns one block per day ending at latest, oldest first.
func SampleBlocks(latest uint64, days int, blockTime time.Duration) []uint64 {
	if days <= 0 {
		days = 1
	}
	perDay := uint64(1)
	if blockTime > 0 {
		perDay = uint64((24 * time.Hour) / blockTime)
	}

	blocks := make([]uint64, 0, days)
	for d := days - 1; d >= 0; d-- {
		back := uint64(d) * perDay
		if back > latest {
			continue
		}
		blocks = append(blocks, latest-back)
	}
	return blocks
}

func (f *TVLFetcher) Fetch(ctx context.Context) (model.TVLStats, error) {
	logger := f.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := f.Now
	if now == nil {
		now = time.Now
	}
	decimalsCache := f.Decimals
	if decimalsCache == nil {
		decimalsCache = contracts.NewDecimalsCache()
	}

	latest, err := retryState(ctx, f.Sleep, f.Chain.LatestBlockNumber)
	if err != nil {
		return model.TVLStats{}, fmt.Errorf("latest block: %w", err)
	}
	decimals, err := retryState(ctx, f.Sleep, func(ctx context.Context) (uint8, error) {
		return decimalsCache.Load(ctx, f.Chain, f.Token)
	})
	if err != nil {
		return model.TVLStats{}, fmt.Errorf("token decimals: %w", err)
	}

	blocks := SampleBlocks(latest, f.Days, f.BlockTime)
	samples := make([]aggregate.TVLSample, 0, len(blocks))
	var partial bool
	for i, block := range blocks {
		sample, err := f.sample(ctx, block, decimals)
		if err != nil {
			if ctx.Err() != nil {
				return model.TVLStats{}, ctx.Err()
			}
			// the newest sample anchors currentTVL, so it is required
			if i == len(blocks)-1 {
				return model.TVLStats{}, fmt.Errorf("sample latest block %d: %w", block, err)
			}
			partial = true
			logger.Warn("skip tvl sample", zap.Uint64("block", block), zap.Error(err))
			continue
		}
		samples = append(samples, sample)
	}

	series := aggregate.BuildTVLSeries(samples, f.Threshold)
	stats := model.TVLStats{
		Series:      series,
		CurrentTVL:  aggregate.CurrentTVL(series),
		Partial:     partial,
		LastUpdated: now().UTC(),
	}

	if f.History != nil {
		if err := f.History.UpsertTVLPoints(ctx, series); err != nil {
			logger.Warn("store tvl history", zap.Error(err))
		}
	}
	return stats, nil
}

func (f *TVLFetcher) sample(ctx context.Context, block uint64, decimals uint8) (aggregate.TVLSample, error) {
	if len(f.Holders) == 0 {
		return aggregate.TVLSample{}, errors.New("no tvl holders configured")
	}
	blockNum := new(big.Int).SetUint64(block)

	ts, err := retryState(ctx, f.Sleep, func(ctx context.Context) (uint64, error) {
		return f.Chain.BlockTimestamp(ctx, block)
	})
	if err != nil {
		return aggregate.TVLSample{}, fmt.Errorf("block timestamp: %w", err)
	}

	balances := make([]*big.Int, 0, len(f.Holders))
	for _, holder := range f.Holders {
		bal, err := retryState(ctx, f.Sleep, func(ctx context.Context) (*big.Int, error) {
			return contracts.BalanceOf(ctx, f.Chain, f.Token, holder, blockNum)
		})
		if err != nil {
			return aggregate.TVLSample{}, fmt.Errorf("balance of %s: %w", holder.Hex(), err)
		}
		balances = append(balances, bal)
	}

	price, err := retryState(ctx, f.Sleep, func(ctx context.Context) (*big.Int, error) {
		return contracts.LatestPrice(ctx, f.Chain, f.PriceFeed, blockNum)
	})
	if err != nil {
		return aggregate.TVLSample{}, fmt.Errorf("price: %w", err)
	}

	return aggregate.TVLSample{
		Block:     block,
		Timestamp: time.Unix(int64(ts), 0).UTC(),
		Balances:  balances,
		Decimals:  decimals,
		Price:     price,
	}, nil
}
