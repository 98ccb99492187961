package indexer

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestParseAddresses(t *testing.T) {
	got, err := ParseAddresses([]string{" 0x0000000000000000000000000000000000000001", "", "0x00000000000000000000000000000000000000aa"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 addresses, got %d", len(got))
	}
	if _, err := ParseAddresses([]string{"0x123"}); err == nil {
		t.Fatalf("expected error for short address")
	}
}

func TestParseAddress(t *testing.T) {
	if _, err := ParseAddress("token-address", ""); err == nil {
		t.Fatalf("expected error for empty address")
	}
	addr, err := ParseAddress("token-address", "0x00000000000000000000000000000000000000aa")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != common.HexToAddress("0xaa") {
		t.Fatalf("address mismatch: %s", addr.Hex())
	}
}
