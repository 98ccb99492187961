// Package cache is an in-process TTL store for computed metrics.
//
// Expiry is logical: a read past the TTL is a miss. Sweep and RunJanitor
// only reclaim memory.
package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Entry is one cached value with its bookkeeping.
type Entry struct {
	Key       string
	Value     any
	CreatedAt time.Time
	TTL       time.Duration
	// Version is the start time of the fetch that produced Value.
	Version time.Time
}

func (e Entry) expired(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.CreatedAt) > e.TTL
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the janitor logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Store is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
	logger  *zap.Logger
}

func New(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]Entry),
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the live value for key.
func (s *Store) Get(key string) (any, bool) {
	entry, ok := s.GetEntry(key)
	if !ok {
		return nil, false
	}
	return entry.Value, true
}

// GetEntry returns the live entry for key.
func (s *Store) GetEntry(key string) (Entry, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok || entry.expired(s.now()) {
		return Entry{}, false
	}
	return entry, true
}

// Set stores value unconditionally. A ttl of zero never expires.
func (s *Store) Set(key string, value any, ttl time.Duration) {
	now := s.now()
	s.mu.Lock()
	s.entries[key] = Entry{Key: key, Value: value, CreatedAt: now, TTL: ttl, Version: now}
	s.mu.Unlock()
}

// SetVersioned stores value only if no live entry was produced by a fetch
// that started later than startedAt. It reports whether the write happened.
func (s *Store) SetVersioned(key string, value any, ttl time.Duration, startedAt time.Time) bool {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.entries[key]; ok && !current.expired(now) && current.Version.After(startedAt) {
		return false
	}
	s.entries[key] = Entry{Key: key, Value: value, CreatedAt: now, TTL: ttl, Version: startedAt}
	return true
}

func (s *Store) Del(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Age is the time since the live entry was written.
func (s *Store) Age(key string) (time.Duration, bool) {
	entry, ok := s.GetEntry(key)
	if !ok {
		return 0, false
	}
	return s.now().Sub(entry.CreatedAt), true
}

// TTLRemaining is the time left before the live entry expires. Entries
// without a TTL report ok with a zero duration.
func (s *Store) TTLRemaining(key string) (time.Duration, bool) {
	entry, ok := s.GetEntry(key)
	if !ok {
		return 0, false
	}
	if entry.TTL <= 0 {
		return 0, true
	}
	return entry.TTL - s.now().Sub(entry.CreatedAt), true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Sweep drops expired entries and returns how many were removed.
func (s *Store) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.entries {
		if entry.expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// RunJanitor sweeps every interval until ctx is done.
func (s *Store) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Sweep(); removed > 0 {
				s.logger.Debug("cache sweep", zap.Int("removed", removed))
			}
		}
	}
}
