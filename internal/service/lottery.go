package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"statsScope/internal/aggregate"
	"statsScope/internal/chain"
	"statsScope/internal/indexer"
	"statsScope/internal/model"
	"statsScope/internal/storage"
)

// ErrNothingRetrieved is returned when a partial scan produced no events, so
// zero-valued stats never replace a good value.
var ErrNothingRetrieved = errors.New("partial scan retrieved no events")

// LotteryFetcher scans purchase and prize events and reduces them.
type LotteryFetcher struct {
	Chain   ChainReader
	Engine  RangeQuerier
	Filters []chain.EventFilter
	// StartBlock is the first block scanned. Zero scans the trailing
	// LookbackBlocks instead.
	StartBlock     uint64
	LookbackBlocks uint64
	Policy         indexer.Policy
	Params         aggregate.LotteryParams
	// Sink optionally receives the retrieved events.
	Sink   storage.EventSink
	Sleep  indexer.Sleeper
	Now    func() time.Time
	Logger *zap.Logger
}

// ScanRange resolves the block range to scan against the latest block.
func ScanRange(latest, startBlock, lookback uint64) (indexer.BlockRange, error) {
	from := startBlock
	if from == 0 && lookback > 0 && latest > lookback {
		from = latest - lookback
	}
	r := indexer.BlockRange{From: from, To: latest}
	if err := r.Validate(); err != nil {
		return indexer.BlockRange{}, fmt.Errorf("start block %d beyond latest %d: %w", startBlock, latest, err)
	}
	return r, nil
}

func (f *LotteryFetcher) Fetch(ctx context.Context) (model.LotteryStats, error) {
	logger := f.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := f.Now
	if now == nil {
		now = time.Now
	}

	latest, err := retryState(ctx, f.Sleep, f.Chain.LatestBlockNumber)
	if err != nil {
		return model.LotteryStats{}, fmt.Errorf("latest block: %w", err)
	}
	r, err := ScanRange(latest, f.StartBlock, f.LookbackBlocks)
	if err != nil {
		return model.LotteryStats{}, err
	}

	var (
		events  []model.LogEvent
		partial bool
	)
	for _, filter := range f.Filters {
		res := f.Engine.Query(ctx, filter, r, f.Policy)
		events = append(events, res.Events...)
		if res.Partial {
			partial = true
			logger.Warn("lottery scan partial",
				zap.String("event", filter.Name),
				zap.Int("abandoned", len(res.Abandoned)),
			)
		}
	}
	if err := ctx.Err(); err != nil && len(events) == 0 {
		return model.LotteryStats{}, err
	}
	if partial && len(events) == 0 {
		return model.LotteryStats{}, fmt.Errorf("scan %s: %w", r, ErrNothingRetrieved)
	}

	if f.Sink != nil {
		if err := f.Sink.PutEvents(events); err != nil {
			logger.Warn("write events", zap.Error(err))
		}
	}

	stats := aggregate.ReduceLottery(events, f.Params, now().UTC(), logger)
	stats.FromBlock = r.From
	stats.ToBlock = r.To
	stats.Partial = partial
	return stats, nil
}
