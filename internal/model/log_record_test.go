package model

import (
	"encoding/json"
	"math/big"
	"testing"
)

func TestArgsKeepInsertionOrder(t *testing.T) {
	args := NewArgs()
	args.Set("buyer", "0x1111111111111111111111111111111111111111")
	args.Set("roundId", big.NewInt(7))
	args.Set("ticketIds", []*big.Int{big.NewInt(1), big.NewInt(2)})
	args.Set("roundId", big.NewInt(8))

	keys := args.Keys()
	want := []string{"buyer", "roundId", "ticketIds"}
	if len(keys) != len(want) {
		t.Fatalf("keys mismatch: %v", keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("key %d: got %s want %s", i, keys[i], want[i])
		}
	}

	v, ok := args.Get("roundId")
	if !ok || v.(*big.Int).Int64() != 8 {
		t.Fatalf("roundId not overwritten: %v", v)
	}
}

func TestArgsMarshalOrdered(t *testing.T) {
	args := NewArgs()
	args.Set("z", 1)
	args.Set("a", "x")

	data, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `{"z":1,"a":"x"}` {
		t.Fatalf("unexpected json: %s", data)
	}
}

func TestLogEventID(t *testing.T) {
	ev := LogEvent{BlockNumber: 12, TxHash: "0xabc", LogIndex: 3}
	if ev.ID() != "12:0xabc:3" {
		t.Fatalf("unexpected id: %s", ev.ID())
	}
}
