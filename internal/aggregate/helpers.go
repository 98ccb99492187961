package aggregate

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// priceDecimals is the fixed-point scale of USD price feeds.
const priceDecimals = 8

// tokenAmount converts a base-unit integer into whole-token units.
func tokenAmount(value *big.Int, decimals uint8) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(value, -int32(decimals))
}

// TokenAmount is the exported form of tokenAmount for callers outside the
// reducers (supply figures).
func TokenAmount(value *big.Int, decimals uint8) decimal.Decimal {
	return tokenAmount(value, decimals)
}
