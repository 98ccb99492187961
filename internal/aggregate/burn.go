package aggregate

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const bpsDenominator = 10_000

// BurnedAmount derives the burned total from tickets sold:
// tickets * ticketPrice * burnRateBps / 10000.
func BurnedAmount(ticketsSold uint64, ticketPrice decimal.Decimal, burnRateBps int64) decimal.Decimal {
	if ticketsSold == 0 || burnRateBps <= 0 || ticketPrice.Sign() <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(new(big.Int).SetUint64(ticketsSold), 0).
		Mul(ticketPrice).
		Mul(decimal.NewFromInt(burnRateBps)).
		Div(decimal.NewFromInt(bpsDenominator))
}
