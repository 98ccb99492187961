package service

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"statsScope/internal/aggregate"
	"statsScope/internal/contracts"
	"statsScope/internal/indexer"
	"statsScope/internal/model"
)

// SupplyFetcher reads total supply and subtracts the balances of excluded
// addresses (treasury, vesting, burn) to get circulating supply.
type SupplyFetcher struct {
	Chain    contracts.Caller
	Token    common.Address
	Excluded []common.Address
	Decimals *contracts.DecimalsCache
	Sleep    indexer.Sleeper
	Now      func() time.Time
}

func (f *SupplyFetcher) Fetch(ctx context.Context) (model.SupplyStats, error) {
	now := f.Now
	if now == nil {
		now = time.Now
	}
	decimalsCache := f.Decimals
	if decimalsCache == nil {
		decimalsCache = contracts.NewDecimalsCache()
	}

	decimals, err := retryState(ctx, f.Sleep, func(ctx context.Context) (uint8, error) {
		return decimalsCache.Load(ctx, f.Chain, f.Token)
	})
	if err != nil {
		return model.SupplyStats{}, fmt.Errorf("token decimals: %w", err)
	}
	total, err := retryState(ctx, f.Sleep, func(ctx context.Context) (*big.Int, error) {
		return contracts.TotalSupply(ctx, f.Chain, f.Token)
	})
	if err != nil {
		return model.SupplyStats{}, fmt.Errorf("total supply: %w", err)
	}

	circulating := new(big.Int).Set(total)
	for _, addr := range f.Excluded {
		bal, err := retryState(ctx, f.Sleep, func(ctx context.Context) (*big.Int, error) {
			return contracts.BalanceOf(ctx, f.Chain, f.Token, addr, nil)
		})
		if err != nil {
			return model.SupplyStats{}, fmt.Errorf("balance of %s: %w", addr.Hex(), err)
		}
		circulating.Sub(circulating, bal)
	}
	if circulating.Sign() < 0 {
		circulating.SetInt64(0)
	}

	return model.SupplyStats{
		Total:       aggregate.TokenAmount(total, decimals),
		Circulating: aggregate.TokenAmount(circulating, decimals),
		LastUpdated: now().UTC(),
	}, nil
}
