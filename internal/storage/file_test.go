package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "snapshots"))
	ctx := context.Background()

	if _, ok, err := store.LoadSnapshot(ctx, "lottery:stats"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	fetched := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	snap, err := NewSnapshot("lottery:stats", map[string]int{"totalTicketsSold": 7}, fetched)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok, err := store.LoadSnapshot(ctx, "lottery:stats")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if string(got.Data) != `{"totalTicketsSold":7}` {
		t.Fatalf("data mismatch: %s", got.Data)
	}
	if !got.FetchedAt.Equal(fetched) {
		t.Fatalf("fetched_at mismatch: %v", got.FetchedAt)
	}

	if _, err := os.Stat(filepath.Join(dir, "snapshots", "lottery_stats.json")); err != nil {
		t.Fatalf("expected sanitized file name: %v", err)
	}
}

func TestFileStoreEmptyKey(t *testing.T) {
	store := NewFileStore(t.TempDir())
	if err := store.SaveSnapshot(context.Background(), Snapshot{}); err != ErrInvalidKey {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}
