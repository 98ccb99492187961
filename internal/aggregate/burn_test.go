package aggregate

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestBurnedAmount(t *testing.T) {
	got := BurnedAmount(1000, decimal.RequireFromString("0.1"), 500)
	if !got.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("burned mismatch: %s", got)
	}
}

func TestBurnedAmountZero(t *testing.T) {
	if got := BurnedAmount(0, decimal.NewFromInt(1), 500); !got.IsZero() {
		t.Fatalf("expected zero for no tickets, got %s", got)
	}
	if got := BurnedAmount(10, decimal.NewFromInt(1), 0); !got.IsZero() {
		t.Fatalf("expected zero for zero rate, got %s", got)
	}
}
