package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	blockErr   error
	block      uint64
	headerTime uint64
	headers    int
	logs       []types.Log
	closed     bool
}

func (f *fakeBackend) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	return f.logs, nil
}

func (f *fakeBackend) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, nil
}

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) {
	return f.block, f.blockErr
}

func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	f.headers++
	return &types.Header{Time: f.headerTime}, nil
}

func (f *fakeBackend) Close() { f.closed = true }

func TestPoolFallsThroughToNextEndpoint(t *testing.T) {
	first := &fakeBackend{blockErr: errors.New("connection refused")}
	second := &fakeBackend{block: 42}
	client := NewClientWithPool(NewPool([]Endpoint{
		{URL: "a", Backend: first},
		{URL: "b", Backend: second},
	}, nil), nil)

	latest, err := client.LatestBlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), latest)
}

func TestPoolStartsAtFirstEndpointEveryCall(t *testing.T) {
	var calls []string
	pool := NewPool([]Endpoint{
		{URL: "a", Backend: &fakeBackend{}},
		{URL: "b", Backend: &fakeBackend{}},
	}, nil)

	for i := 0; i < 2; i++ {
		err := pool.WithEndpoint(context.Background(), func(ctx context.Context, b Backend) error {
			calls = append(calls, "call")
			if len(calls)%2 == 1 {
				return errors.New("boom")
			}
			return nil
		})
		require.NoError(t, err)
	}
	assert.Len(t, calls, 4)
}

func TestPoolExhausted(t *testing.T) {
	last := errors.New("second failed")
	pool := NewPool([]Endpoint{
		{URL: "a", Backend: &fakeBackend{}},
		{URL: "b", Backend: &fakeBackend{}},
	}, nil)

	n := 0
	err := pool.WithEndpoint(context.Background(), func(ctx context.Context, b Backend) error {
		n++
		if n == 2 {
			return last
		}
		return errors.New("first failed")
	})

	var exhausted *AllEndpointsExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 2, exhausted.Attempts)
	assert.ErrorIs(t, err, last)
}

func TestPoolStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	pool := NewPool([]Endpoint{{URL: "a", Backend: &fakeBackend{}}}, nil)
	err := pool.WithEndpoint(ctx, func(context.Context, Backend) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestPoolWithoutEndpoints(t *testing.T) {
	err := NewPool(nil, nil).WithEndpoint(context.Background(), func(context.Context, Backend) error { return nil })
	assert.ErrorIs(t, err, ErrNoEndpoints)
}

func TestClientCachesBlockTimestamps(t *testing.T) {
	backend := &fakeBackend{headerTime: 1_700_000_000}
	client := NewClientWithPool(NewPool([]Endpoint{{URL: "a", Backend: backend}}, nil), nil)

	for i := 0; i < 3; i++ {
		ts, err := client.BlockTimestamp(context.Background(), 100)
		require.NoError(t, err)
		assert.Equal(t, uint64(1_700_000_000), ts)
	}
	assert.Equal(t, 1, backend.headers)

	client.Close()
	assert.True(t, backend.closed)
}

func TestFetchEventsSkipsRemovedLogs(t *testing.T) {
	backend := &fakeBackend{logs: []types.Log{
		{BlockNumber: 10, Index: 0},
		{BlockNumber: 11, Index: 1, Removed: true},
	}}
	client := NewClientWithPool(NewPool([]Endpoint{{URL: "a", Backend: backend}}, nil), nil)

	events, err := client.FetchEvents(context.Background(), EventFilter{Name: "TicketsPurchased"}, 10, 11)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "TicketsPurchased", events[0].Name)
	assert.Equal(t, uint64(10), events[0].BlockNumber)
}
