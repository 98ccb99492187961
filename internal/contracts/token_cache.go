package contracts

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// DecimalsCache caches token decimals by address. Decimals never change for a
// deployed token, so entries have no expiry.
type DecimalsCache struct {
	mu   sync.RWMutex
	data map[common.Address]uint8
}

func NewDecimalsCache() *DecimalsCache {
	return &DecimalsCache{data: make(map[common.Address]uint8)}
}

func (c *DecimalsCache) Get(address common.Address) (uint8, bool) {
	c.mu.RLock()
	decimals, ok := c.data[address]
	c.mu.RUnlock()
	return decimals, ok
}

func (c *DecimalsCache) Set(address common.Address, decimals uint8) {
	c.mu.Lock()
	c.data[address] = decimals
	c.mu.Unlock()
}

// Load returns cached decimals or reads them via eth_call.
func (c *DecimalsCache) Load(ctx context.Context, caller Caller, token common.Address) (uint8, error) {
	if decimals, ok := c.Get(token); ok {
		return decimals, nil
	}
	decimals, err := TokenDecimals(ctx, caller, token)
	if err != nil {
		return 0, err
	}
	c.Set(token, decimals)
	return decimals, nil
}
