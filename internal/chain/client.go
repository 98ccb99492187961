package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"statsScope/internal/model"
)

// EventFilter selects logs for one event. The range engine passes it through
// untouched; Event is only used to decode args.
type EventFilter struct {
	Name      string
	Addresses []common.Address
	Topics    [][]common.Hash
	Event     *abi.Event
}

// Query builds the eth_getLogs filter for a block range.
func (f EventFilter) Query(fromBlock, toBlock uint64) ethereum.FilterQuery {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: f.Addresses,
		Topics:    f.Topics,
	}
	if len(query.Topics) == 0 && f.Event != nil {
		query.Topics = [][]common.Hash{{f.Event.ID}}
	}
	return query
}

// Client exposes typed reads over an endpoint pool.
type Client struct {
	pool   *Pool
	logger *zap.Logger

	mu      sync.RWMutex
	tsCache map[uint64]uint64
}

// NewClient dials every RPC URL. Endpoints that fail to dial are skipped; at
// least one must succeed.
func NewClient(ctx context.Context, rpcURLs []string, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	endpoints := make([]Endpoint, 0, len(rpcURLs))
	for _, url := range rpcURLs {
		rpcClient, err := rpc.DialContext(ctx, url)
		if err != nil {
			logger.Warn("dial rpc failed", zap.String("endpoint", url), zap.Error(err))
			continue
		}
		endpoints = append(endpoints, Endpoint{URL: url, Backend: ethclient.NewClient(rpcClient)})
	}
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("dial rpc: %w", ErrNoEndpoints)
	}

	return NewClientWithPool(NewPool(endpoints, logger), logger), nil
}

// NewClientWithPool wraps an existing pool.
func NewClientWithPool(pool *Pool, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		pool:    pool,
		logger:  logger,
		tsCache: make(map[uint64]uint64),
	}
}

// Close closes the underlying endpoints.
func (c *Client) Close() {
	if c.pool != nil {
		c.pool.Close()
	}
}

// LatestBlockNumber returns the latest block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var latest uint64
	err := c.pool.WithEndpoint(ctx, func(ctx context.Context, b Backend) error {
		var err error
		latest, err = b.BlockNumber(ctx)
		return err
	})
	return latest, err
}

// BlockTimestamp returns the block timestamp, using an in-memory cache.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	c.mu.RLock()
	ts, ok := c.tsCache[number]
	c.mu.RUnlock()
	if ok {
		return ts, nil
	}

	var header *types.Header
	err := c.pool.WithEndpoint(ctx, func(ctx context.Context, b Backend) error {
		var err error
		header, err = b.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
		return err
	})
	if err != nil {
		return 0, err
	}

	ts = header.Time
	c.mu.Lock()
	c.tsCache[number] = ts
	c.mu.Unlock()

	return ts, nil
}

// CallContract performs an eth_call. A nil blockNumber reads latest state.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var out []byte
	err := c.pool.WithEndpoint(ctx, func(ctx context.Context, b Backend) error {
		var err error
		out, err = b.CallContract(ctx, msg, blockNumber)
		return err
	})
	return out, err
}

// FetchEvents returns the decoded logs matching filter in [fromBlock, toBlock].
// Logs that fail to decode are returned with DecodeErr set.
func (c *Client) FetchEvents(ctx context.Context, filter EventFilter, fromBlock, toBlock uint64) ([]model.LogEvent, error) {
	query := filter.Query(fromBlock, toBlock)

	var logs []types.Log
	err := c.pool.WithEndpoint(ctx, func(ctx context.Context, b Backend) error {
		var err error
		logs, err = b.FilterLogs(ctx, query)
		return err
	})
	if err != nil {
		return nil, err
	}

	events := make([]model.LogEvent, 0, len(logs))
	for _, log := range logs {
		if log.Removed {
			continue
		}
		events = append(events, DecodeLog(filter, log))
	}
	return events, nil
}
