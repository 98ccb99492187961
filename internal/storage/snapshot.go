// Package storage persists last-good metric snapshots and raw event dumps.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"statsScope/internal/model"
)

// ErrInvalidKey is returned for an empty snapshot key.
var ErrInvalidKey = errors.New("snapshot key required")

// Snapshot is the last successfully computed value of a metric.
type Snapshot struct {
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// SnapshotStore keeps one snapshot per metric key.
type SnapshotStore interface {
	LoadSnapshot(ctx context.Context, key string) (Snapshot, bool, error)
	SaveSnapshot(ctx context.Context, snap Snapshot) error
}

// EventSink receives retrieved events.
type EventSink interface {
	PutEvents(events []model.LogEvent) error
}

// TVLHistory receives computed TVL points.
type TVLHistory interface {
	UpsertTVLPoints(ctx context.Context, points []model.TVLPoint) error
}

// NopStore discards snapshots.
type NopStore struct{}

func (NopStore) LoadSnapshot(context.Context, string) (Snapshot, bool, error) {
	return Snapshot{}, false, nil
}

func (NopStore) SaveSnapshot(context.Context, Snapshot) error { return nil }

// NewSnapshot encodes value under key.
func NewSnapshot(key string, value any, fetchedAt time.Time) (Snapshot, error) {
	if key == "" {
		return Snapshot{}, ErrInvalidKey
	}
	data, err := json.Marshal(value)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Key: key, Data: data, FetchedAt: fetchedAt.UTC()}, nil
}
