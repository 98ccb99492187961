package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// Backend is the subset of an RPC endpoint the pool hands to operations.
// *ethclient.Client satisfies it.
type Backend interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	Close()
}

// Endpoint is a named backend in the pool.
type Endpoint struct {
	URL     string
	Backend Backend
}

// Pool is an ordered list of interchangeable endpoints. Every call starts at
// the first endpoint and falls through the list on failure.
type Pool struct {
	endpoints []Endpoint
	logger    *zap.Logger
}

func NewPool(endpoints []Endpoint, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{endpoints: endpoints, logger: logger}
}

// Len returns the number of endpoints.
func (p *Pool) Len() int {
	return len(p.endpoints)
}

// WithEndpoint runs op against each endpoint in order until one succeeds.
func (p *Pool) WithEndpoint(ctx context.Context, op func(ctx context.Context, backend Backend) error) error {
	if len(p.endpoints) == 0 {
		return ErrNoEndpoints
	}

	var last error
	attempts := 0
	for i, endpoint := range p.endpoints {
		if err := ctx.Err(); err != nil {
			return err
		}
		attempts++
		err := op(ctx, endpoint.Backend)
		if err == nil {
			return nil
		}
		last = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Warn("endpoint call failed",
			zap.String("endpoint", endpoint.URL),
			zap.Int("attempt", i+1),
			zap.Error(err),
		)
	}

	return &AllEndpointsExhaustedError{Attempts: attempts, Last: last}
}

// Close closes every backend.
func (p *Pool) Close() {
	for _, endpoint := range p.endpoints {
		if endpoint.Backend != nil {
			endpoint.Backend.Close()
		}
	}
}
