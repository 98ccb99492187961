package aggregate

import (
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"statsScope/internal/model"
)

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func TestTVLValue(t *testing.T) {
	// 150 tokens at $2.50
	got := TVLValue([]*big.Int{tokens(100), tokens(30), tokens(20)}, 18, big.NewInt(250_000_000))
	if !got.Equal(decimal.RequireFromString("375")) {
		t.Fatalf("tvl mismatch: %s", got)
	}
	if got := TVLValue([]*big.Int{tokens(1)}, 18, nil); !got.IsZero() {
		t.Fatalf("expected zero without price, got %s", got)
	}
}

func TestDedupByDayKeepsLater(t *testing.T) {
	t1 := time.Date(2024, 6, 15, 1, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 6, 15, 23, 0, 0, 0, time.UTC)
	points := []model.TVLPoint{
		{Day: "06/15", TVL: decimal.NewFromInt(2), Timestamp: t2},
		{Day: "06/15", TVL: decimal.NewFromInt(1), Timestamp: t1},
	}
	got := DedupByDay(points)
	if len(got) != 1 {
		t.Fatalf("expected one point, got %d", len(got))
	}
	if !got[0].Timestamp.Equal(t2) {
		t.Fatalf("expected later point, got %v", got[0].Timestamp)
	}
}

func TestBuildTVLSeriesThreshold(t *testing.T) {
	day := 24 * time.Hour
	base := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	price := big.NewInt(100_000_000)
	samples := []TVLSample{
		{Block: 300, Timestamp: base.Add(2 * day), Decimals: 18, Price: price, Balances: []*big.Int{big.NewInt(0)}},
		{Block: 100, Timestamp: base, Decimals: 18, Price: price, Balances: []*big.Int{tokens(5)}},
		{Block: 200, Timestamp: base.Add(day), Decimals: 18, Price: price, Balances: []*big.Int{big.NewInt(1)}},
	}

	series := BuildTVLSeries(samples, decimal.RequireFromString("0.01"))
	if len(series) != 2 {
		t.Fatalf("expected 2 points, got %+v", series)
	}
	if series[0].Day != "06/10" || !series[0].TVL.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("first point mismatch: %+v", series[0])
	}
	// latest point is kept even at zero
	if series[1].Block != 300 || !series[1].TVL.IsZero() {
		t.Fatalf("latest point mismatch: %+v", series[1])
	}
	if !CurrentTVL(series).IsZero() {
		t.Fatalf("current tvl mismatch: %s", CurrentTVL(series))
	}
}
