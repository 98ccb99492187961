package indexer

import (
	"reflect"
	"testing"
)

func TestSplitRange(t *testing.T) {
	got, err := SplitRange(100, 105, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []BlockRange{
		{From: 100, To: 101},
		{From: 102, To: 103},
		{From: 104, To: 105},
	}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
}

func TestSplitRangeSingle(t *testing.T) {
	got, err := SplitRange(5, 5, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []BlockRange{{From: 5, To: 5}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
}

func TestSplitRangeInvalid(t *testing.T) {
	if _, err := SplitRange(10, 9, 1); err == nil {
		t.Fatalf("expected error for invalid range")
	}
	if _, err := SplitRange(1, 10, 0); err == nil {
		t.Fatalf("expected error for zero batch size")
	}
}

func TestSplitEven(t *testing.T) {
	got := SplitEven(BlockRange{From: 0, To: 10000}, 8)
	if len(got) != 8 {
		t.Fatalf("expected 8 chunks, got %d", len(got))
	}
	if got[0].From != 0 || got[len(got)-1].To != 10000 {
		t.Fatalf("chunks do not cover range: %+v", got)
	}
	for i, r := range got {
		if r.Span() > 1250 {
			t.Fatalf("chunk %d too wide: %s", i, r)
		}
		if i > 0 && got[i-1].To+1 != r.From {
			t.Fatalf("chunk %d not contiguous: %s after %s", i, r, got[i-1])
		}
	}
}

func TestSplitEvenSmallRange(t *testing.T) {
	got := SplitEven(BlockRange{From: 7, To: 9}, 8)
	want := []BlockRange{{From: 7, To: 7}, {From: 8, To: 8}, {From: 9, To: 9}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
}
