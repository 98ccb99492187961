package aggregate

import (
	"math/big"

	"statsScope/internal/model"
)

// Accumulator folds lottery events into running totals.
type Accumulator struct {
	Tickets    uint64
	Prizes     *big.Int
	BiggestWin *big.Int
	PrizeCount int
	Skipped    int
	FirstBlock uint64
	LastBlock  uint64
	seen       bool
}

func NewAccumulator() *Accumulator {
	return &Accumulator{
		Prizes:     big.NewInt(0),
		BiggestWin: big.NewInt(0),
	}
}

// AddEvent applies one event. Events with unknown names are ignored; parse
// failures are counted in Skipped and returned for logging.
func (a *Accumulator) AddEvent(ev model.LogEvent) error {
	var err error
	switch ev.Name {
	case model.EventTicketsPurchased:
		err = a.applyPurchase(ev)
	case model.EventPrizeClaimed:
		err = a.applyPrize(ev)
	default:
		return nil
	}
	if err != nil {
		a.Skipped++
		return err
	}

	if !a.seen || ev.BlockNumber < a.FirstBlock {
		a.FirstBlock = ev.BlockNumber
	}
	if ev.BlockNumber > a.LastBlock {
		a.LastBlock = ev.BlockNumber
	}
	a.seen = true
	return nil
}

func (a *Accumulator) applyPurchase(ev model.LogEvent) error {
	count, err := TicketCount(ev, model.FieldTicketIDs)
	if err != nil {
		return err
	}
	a.Tickets += count
	return nil
}

func (a *Accumulator) applyPrize(ev model.LogEvent) error {
	amount, err := PrizeAmount(ev, model.FieldPrizeAmount)
	if err != nil {
		return err
	}
	a.Prizes.Add(a.Prizes, amount)
	if amount.Cmp(a.BiggestWin) > 0 {
		a.BiggestWin.Set(amount)
	}
	a.PrizeCount++
	return nil
}
