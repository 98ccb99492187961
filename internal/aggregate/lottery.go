package aggregate

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"statsScope/internal/model"
)

// LotteryParams are the protocol constants the lottery reduction needs.
type LotteryParams struct {
	TokenDecimals uint8
	TicketPrice   decimal.Decimal
	BurnRateBps   int64
}

// ReduceLottery folds purchase and prize events into LotteryStats. Events are
// ordered by block first so the result does not depend on fetch order.
func ReduceLottery(events []model.LogEvent, params LotteryParams, asOf time.Time, logger *zap.Logger) model.LotteryStats {
	if logger == nil {
		logger = zap.NewNop()
	}

	ordered := make([]model.LogEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].BlockNumber != ordered[j].BlockNumber {
			return ordered[i].BlockNumber < ordered[j].BlockNumber
		}
		return ordered[i].LogIndex < ordered[j].LogIndex
	})

	acc := NewAccumulator()
	for _, ev := range ordered {
		if err := acc.AddEvent(ev); err != nil {
			logger.Debug("skip lottery event", zap.String("event", ev.Name), zap.Error(err))
		}
	}
	if acc.Skipped > 0 {
		logger.Warn("lottery events skipped", zap.Int("skipped", acc.Skipped), zap.Int("total", len(events)))
	}

	return model.LotteryStats{
		TotalTicketsSold:       acc.Tickets,
		TotalPrizesDistributed: tokenAmount(acc.Prizes, params.TokenDecimals),
		TotalBurned:            BurnedAmount(acc.Tickets, params.TicketPrice, params.BurnRateBps),
		BiggestWin:             tokenAmount(acc.BiggestWin, params.TokenDecimals),
		PrizeCount:             acc.PrizeCount,
		SkippedEvents:          acc.Skipped,
		LastUpdated:            asOf,
	}
}
