package aggregate

import (
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"statsScope/internal/model"
)

func purchase(block uint64, tickets interface{}) model.LogEvent {
	args := model.NewArgs()
	args.Set("buyer", "0x0000000000000000000000000000000000000001")
	args.Set(model.FieldTicketIDs, tickets)
	return model.LogEvent{Name: model.EventTicketsPurchased, BlockNumber: block, TxHash: "0xaa", LogIndex: block, Args: args}
}

func prize(block uint64, amount interface{}) model.LogEvent {
	args := model.NewArgs()
	args.Set(model.FieldPrizeAmount, amount)
	return model.LogEvent{Name: model.EventPrizeClaimed, BlockNumber: block, TxHash: "0xbb", LogIndex: block, Args: args}
}

func TestTicketCountListAndScalar(t *testing.T) {
	cases := []struct {
		name  string
		value interface{}
		want  uint64
	}{
		{"big list", []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3)}, 3},
		{"generic list", []interface{}{"1", "2"}, 2},
		{"uint list", []uint64{7}, 1},
		{"scalar", big.NewInt(9), 1},
		{"bytes32", [32]byte{1}, 1},
	}
	for _, tc := range cases {
		got, err := TicketCount(purchase(1, tc.value), model.FieldTicketIDs)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: count mismatch: %d != %d", tc.name, got, tc.want)
		}
	}
}

func TestTicketCountMissingField(t *testing.T) {
	ev := model.LogEvent{Name: model.EventTicketsPurchased, Args: model.NewArgs()}
	if _, err := TicketCount(ev, model.FieldTicketIDs); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestPrizeAmountParsing(t *testing.T) {
	got, err := PrizeAmount(prize(1, "0x10"), model.FieldPrizeAmount)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Int64() != 16 {
		t.Fatalf("amount mismatch: %s", got)
	}
	if _, err := PrizeAmount(prize(1, big.NewInt(-1)), model.FieldPrizeAmount); err == nil {
		t.Fatalf("expected error for negative amount")
	}
}

func TestReduceLottery(t *testing.T) {
	oneToken := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	twoTokens := new(big.Int).Mul(oneToken, big.NewInt(2))

	bad := prize(4, "not-a-number")
	broken := purchase(5, nil)
	broken.DecodeErr = "unpack data: short buffer"

	events := []model.LogEvent{
		prize(3, twoTokens),
		purchase(1, []*big.Int{big.NewInt(1), big.NewInt(2)}),
		purchase(2, big.NewInt(3)),
		prize(2, oneToken),
		bad,
		broken,
		{Name: "Unrelated", BlockNumber: 9},
	}

	asOf := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	params := LotteryParams{TokenDecimals: 18, TicketPrice: decimal.RequireFromString("0.1"), BurnRateBps: 500}
	stats := ReduceLottery(events, params, asOf, nil)

	if stats.TotalTicketsSold != 3 {
		t.Fatalf("tickets mismatch: %d", stats.TotalTicketsSold)
	}
	if !stats.TotalPrizesDistributed.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("prizes mismatch: %s", stats.TotalPrizesDistributed)
	}
	if !stats.BiggestWin.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("biggest win mismatch: %s", stats.BiggestWin)
	}
	if !stats.TotalBurned.Equal(decimal.RequireFromString("0.015")) {
		t.Fatalf("burned mismatch: %s", stats.TotalBurned)
	}
	if stats.PrizeCount != 2 {
		t.Fatalf("prize count mismatch: %d", stats.PrizeCount)
	}
	if stats.SkippedEvents != 2 {
		t.Fatalf("skipped mismatch: %d", stats.SkippedEvents)
	}
	if !stats.LastUpdated.Equal(asOf) {
		t.Fatalf("lastUpdated mismatch: %v", stats.LastUpdated)
	}
}

func TestReduceLotteryEmpty(t *testing.T) {
	stats := ReduceLottery(nil, LotteryParams{TokenDecimals: 18}, time.Now(), nil)
	if stats.TotalTicketsSold != 0 || !stats.TotalPrizesDistributed.IsZero() || !stats.BiggestWin.IsZero() {
		t.Fatalf("expected zero stats, got %+v", stats)
	}
}
