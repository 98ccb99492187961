// Package redis keeps metric snapshots in Redis so replicas share the last
// good value.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"statsScope/internal/storage"
)

const defaultKeyPrefix = "statsscope:snapshot:"

type Config struct {
	Addr     string
	Password string
	DB       int
	// TTL bounds how long a snapshot survives without refresh. Zero keeps it.
	TTL    time.Duration
	Prefix string
}

// Store implements storage.SnapshotStore.
type Store struct {
	client *goredis.Client
	ttl    time.Duration
	prefix string
}

var _ storage.SnapshotStore = (*Store)(nil)

func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redis addr is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewStoreWithClient(client, cfg.TTL, cfg.Prefix), nil
}

func NewStoreWithClient(client *goredis.Client, ttl time.Duration, prefix string) *Store {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Store{client: client, ttl: ttl, prefix: prefix}
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(name string) string {
	return s.prefix + name
}

func (s *Store) LoadSnapshot(ctx context.Context, key string) (storage.Snapshot, bool, error) {
	if key == "" {
		return storage.Snapshot{}, false, storage.ErrInvalidKey
	}
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return storage.Snapshot{}, false, nil
		}
		return storage.Snapshot{}, false, fmt.Errorf("get snapshot: %w", err)
	}

	var snap storage.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return storage.Snapshot{}, false, fmt.Errorf("parse snapshot: %w", err)
	}
	return snap, true, nil
}

func (s *Store) SaveSnapshot(ctx context.Context, snap storage.Snapshot) error {
	if snap.Key == "" {
		return storage.ErrInvalidKey
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key(snap.Key), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("set snapshot: %w", err)
	}
	return nil
}
