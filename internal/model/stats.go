package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// LotteryStats is the aggregate view over lottery purchase and prize events.
type LotteryStats struct {
	TotalTicketsSold       uint64          `json:"totalTicketsSold"`
	TotalPrizesDistributed decimal.Decimal `json:"totalPrizesDistributed"`
	TotalBurned            decimal.Decimal `json:"totalBurned"`
	BiggestWin             decimal.Decimal `json:"biggestWin"`
	PrizeCount             int             `json:"prizeCount"`
	SkippedEvents          int             `json:"skippedEvents"`
	FromBlock              uint64          `json:"fromBlock"`
	ToBlock                uint64          `json:"toBlock"`
	Partial                bool            `json:"partial"`
	LastUpdated            time.Time       `json:"lastUpdated"`
}

// TVLPoint is one daily sample of total value locked, in USD.
type TVLPoint struct {
	Day       string          `json:"day"`
	TVL       decimal.Decimal `json:"tvl"`
	Timestamp time.Time       `json:"timestamp"`
	Block     uint64          `json:"block"`
}

// TVLStats is the TVL chart series plus the current value.
type TVLStats struct {
	Series      []TVLPoint      `json:"series"`
	CurrentTVL  decimal.Decimal `json:"currentTVL"`
	Partial     bool            `json:"partial"`
	LastUpdated time.Time       `json:"lastUpdated"`
}

// SupplyStats holds token supply figures in whole-token units.
type SupplyStats struct {
	Total       decimal.Decimal `json:"total"`
	Circulating decimal.Decimal `json:"circulating"`
	LastUpdated time.Time       `json:"lastUpdated"`
}
