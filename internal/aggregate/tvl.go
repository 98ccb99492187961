package aggregate

import (
	"math/big"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"statsScope/internal/model"
)

// DayLayout is the calendar-day label format of TVL points.
const DayLayout = "01/02"

// TVLSample is the raw state read at one sampled block.
type TVLSample struct {
	Block     uint64
	Timestamp time.Time
	// Balances are the vault, staking and swap pool balances in base units.
	Balances []*big.Int
	Decimals uint8
	// Price is the 8-decimal fixed-point USD price per token.
	Price *big.Int
}

// TVLValue computes sum(balances) * price in USD.
func TVLValue(balances []*big.Int, decimals uint8, price *big.Int) decimal.Decimal {
	if price == nil || price.Sign() <= 0 {
		return decimal.Zero
	}
	sum := new(big.Int)
	for _, bal := range balances {
		if bal == nil || bal.Sign() < 0 {
			continue
		}
		sum.Add(sum, bal)
	}
	return tokenAmount(sum, decimals).Mul(decimal.NewFromBigInt(price, -priceDecimals))
}

// BuildTVLSeries values every sample, drops points below threshold except the
// most recent one, and collapses points that share a day label.
func BuildTVLSeries(samples []TVLSample, threshold decimal.Decimal) []model.TVLPoint {
	if len(samples) == 0 {
		return nil
	}
	ordered := make([]TVLSample, len(samples))
	copy(ordered, samples)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	points := make([]model.TVLPoint, 0, len(ordered))
	last := len(ordered) - 1
	for i, sample := range ordered {
		value := TVLValue(sample.Balances, sample.Decimals, sample.Price)
		if i != last && value.LessThan(threshold) {
			continue
		}
		points = append(points, model.TVLPoint{
			Day:       sample.Timestamp.UTC().Format(DayLayout),
			TVL:       value,
			Timestamp: sample.Timestamp,
			Block:     sample.Block,
		})
	}
	return DedupByDay(points)
}

// DedupByDay keeps one point per day label, the one with the later timestamp.
// The result is ordered by timestamp.
func DedupByDay(points []model.TVLPoint) []model.TVLPoint {
	byDay := make(map[string]model.TVLPoint, len(points))
	for _, point := range points {
		current, ok := byDay[point.Day]
		if !ok || point.Timestamp.After(current.Timestamp) {
			byDay[point.Day] = point
		}
	}

	out := make([]model.TVLPoint, 0, len(byDay))
	for _, point := range byDay {
		out = append(out, point)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// CurrentTVL returns the value of the most recent point.
func CurrentTVL(series []model.TVLPoint) decimal.Decimal {
	if len(series) == 0 {
		return decimal.Zero
	}
	return series[len(series)-1].TVL
}
