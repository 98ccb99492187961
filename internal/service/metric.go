// Package service computes, caches and pushes the public metrics.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"statsScope/internal/broadcast"
	"statsScope/internal/cache"
	"statsScope/internal/indexer"
	"statsScope/internal/storage"
	"statsScope/internal/telemetry"
)

// Source says where a returned value came from.
type Source string

const (
	SourceCache    Source = "cache"
	SourceFetch    Source = "fetch"
	SourceMemory   Source = "memory"
	SourceSnapshot Source = "snapshot"
	SourceNone     Source = "none"
)

// snapshotLoadTimeout bounds the snapshot read on the fallback path, which
// may run after the caller's context is already done.
const snapshotLoadTimeout = 2 * time.Second

// FetchFunc computes a fresh value of a metric.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Result is what readers of a metric get. Err is set when the value is a
// fallback for a failed computation.
type Result[T any] struct {
	Value     T
	Stale     bool
	Source    Source
	FetchedAt time.Time
	Err       error
}

// MetricConfig holds per-metric policy.
type MetricConfig struct {
	// Key is the cache and snapshot key.
	Key string
	// Topic and MessageType address broadcast messages.
	Topic       string
	MessageType string
	TTL         time.Duration
	// SoftRefresh is the age after which a read triggers a background refresh.
	SoftRefresh time.Duration
	// MaxJitter bounds the random delay before a background refresh.
	MaxJitter       time.Duration
	RefreshInterval time.Duration
	// FetchTimeout bounds one computation, independent of the caller.
	FetchTimeout time.Duration
}

// Deps are the collaborators shared by all metrics.
type Deps struct {
	Cache       *cache.Store
	Broadcaster *broadcast.Broadcaster
	Snapshots   storage.SnapshotStore
	Logger      *zap.Logger
	Now         func() time.Time
	Sleep       indexer.Sleeper
	// Jitter returns a delay in [0, max).
	Jitter func(max time.Duration) time.Duration
}

func (d Deps) normalized() Deps {
	if d.Cache == nil {
		d.Cache = cache.New()
	}
	if d.Broadcaster == nil {
		d.Broadcaster = broadcast.New(d.Logger)
	}
	if d.Snapshots == nil {
		d.Snapshots = storage.NopStore{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Sleep == nil {
		d.Sleep = indexer.SleepContext
	}
	if d.Jitter == nil {
		d.Jitter = randomJitter
	}
	return d
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}

// Metric runs the Idle -> Fetching -> Ready cycle for one key. Concurrent
// computations of the same key are collapsed into one.
type Metric[T any] struct {
	cfg    MetricConfig
	fetch  FetchFunc[T]
	deps   Deps
	logger *zap.Logger
	tracer trace.Tracer

	group      singleflight.Group
	refreshing atomic.Bool

	mu         sync.RWMutex
	baseCtx    context.Context
	lastGood   T
	lastGoodAt time.Time
	hasGood    bool
	wg         sync.WaitGroup
}

func NewMetric[T any](cfg MetricConfig, fetch FetchFunc[T], deps Deps) *Metric[T] {
	deps = deps.normalized()
	if cfg.MessageType == "" {
		cfg.MessageType = cfg.Topic
	}
	return &Metric[T]{
		cfg:     cfg,
		fetch:   fetch,
		deps:    deps,
		logger:  deps.Logger.With(zap.String("metric", cfg.Key)),
		tracer:  otel.Tracer("statsScope/service"),
		baseCtx: context.Background(),
	}
}

func (m *Metric[T]) Key() string { return m.cfg.Key }

// Get returns the cached value when present, refreshing it in the background
// once it is older than SoftRefresh. On a miss it computes synchronously.
func (m *Metric[T]) Get(ctx context.Context) Result[T] {
	if entry, ok := m.deps.Cache.GetEntry(m.cfg.Key); ok {
		if value, ok := entry.Value.(T); ok {
			res := Result[T]{Value: value, Source: SourceCache, FetchedAt: entry.Version}
			if m.cfg.SoftRefresh > 0 && m.deps.Now().Sub(entry.CreatedAt) > m.cfg.SoftRefresh {
				res.Stale = true
				m.Prefetch()
			}
			return res
		}
	}
	return m.compute(ctx)
}

// Refresh forces a new computation even when a background one is in flight.
// The cached value stays until the new result replaces it, so a failed
// refresh still leaves the last good value readable.
func (m *Metric[T]) Refresh(ctx context.Context) Result[T] {
	m.group.Forget(m.cfg.Key)
	return m.compute(ctx)
}

// Cached returns the newest value held in memory without computing.
func (m *Metric[T]) Cached() (T, bool) {
	if v, ok := m.deps.Cache.Get(m.cfg.Key); ok {
		if value, ok := v.(T); ok {
			return value, true
		}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastGood, m.hasGood
}

// CachedAny is Cached without the type parameter.
func (m *Metric[T]) CachedAny() (any, bool) {
	return m.Cached()
}

// Prefetch starts one jittered background refresh unless one is pending.
func (m *Metric[T]) Prefetch() {
	if !m.refreshing.CompareAndSwap(false, true) {
		return
	}
	ctx := m.context()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.refreshing.Store(false)

		if delay := m.deps.Jitter(m.cfg.MaxJitter); delay > 0 {
			if err := m.deps.Sleep(ctx, delay); err != nil {
				return
			}
		}
		if _, err := m.do(ctx); err != nil {
			m.logger.Warn("background refresh failed", zap.Error(err))
		}
	}()
}

// Run loads the persisted snapshot, computes once, then recomputes every
// RefreshInterval until ctx is done.
func (m *Metric[T]) Run(ctx context.Context) {
	m.mu.Lock()
	m.baseCtx = ctx
	m.mu.Unlock()

	m.restoreSnapshot(ctx)
	if _, err := m.do(ctx); err != nil {
		m.logger.Warn("initial refresh failed", zap.Error(err))
	}

	if m.cfg.RefreshInterval <= 0 {
		<-ctx.Done()
		m.wg.Wait()
		return
	}

	ticker := time.NewTicker(m.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.wg.Wait()
			return
		case <-ticker.C:
			if _, err := m.do(ctx); err != nil {
				m.logger.Warn("scheduled refresh failed", zap.Error(err))
			}
		}
	}
}

func (m *Metric[T]) context() context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.baseCtx
}

type outcome[T any] struct {
	value     T
	fetchedAt time.Time
}

// compute blocks until the shared computation finishes or ctx is done, in
// which case the fallback value is returned and the computation continues.
func (m *Metric[T]) compute(ctx context.Context) Result[T] {
	ch := m.group.DoChan(m.cfg.Key, func() (interface{}, error) {
		return m.refresh(m.context())
	})

	select {
	case <-ctx.Done():
		return m.fallback(ctx, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return m.fallback(ctx, res.Err)
		}
		out := res.Val.(outcome[T])
		return Result[T]{Value: out.value, Source: SourceFetch, FetchedAt: out.fetchedAt}
	}
}

func (m *Metric[T]) do(ctx context.Context) (outcome[T], error) {
	v, err, _ := m.group.Do(m.cfg.Key, func() (interface{}, error) {
		return m.refresh(ctx)
	})
	if err != nil {
		return outcome[T]{}, err
	}
	return v.(outcome[T]), nil
}

// refresh runs one computation and publishes its result.
func (m *Metric[T]) refresh(parent context.Context) (out outcome[T], err error) {
	ctx := parent
	if m.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, m.cfg.FetchTimeout)
		defer cancel()
	}
	ctx, span := m.tracer.Start(ctx, "service.refresh", trace.WithAttributes(attribute.String("metric", m.cfg.Key)))
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	started := m.deps.Now()
	value, err := m.fetch(ctx)
	if err != nil {
		return outcome[T]{}, fmt.Errorf("compute %s: %w", m.cfg.Key, err)
	}

	if !m.deps.Cache.SetVersioned(m.cfg.Key, value, m.cfg.TTL, started) {
		m.logger.Debug("discard result of older fetch")
		if cached, ok := m.Cached(); ok {
			return outcome[T]{value: cached, fetchedAt: started}, nil
		}
		return outcome[T]{value: value, fetchedAt: started}, nil
	}

	m.mu.Lock()
	m.lastGood = value
	m.lastGoodAt = started
	m.hasGood = true
	m.mu.Unlock()

	m.persist(ctx, value, started)
	if _, perr := m.deps.Broadcaster.Publish(m.cfg.Topic, m.cfg.MessageType, value); perr != nil {
		m.logger.Warn("publish failed", zap.Error(perr))
	}
	m.logger.Info("metric refreshed", zap.Duration("took", m.deps.Now().Sub(started)))
	return outcome[T]{value: value, fetchedAt: started}, nil
}

func (m *Metric[T]) persist(ctx context.Context, value T, fetchedAt time.Time) {
	snap, err := storage.NewSnapshot(m.cfg.Key, value, fetchedAt)
	if err != nil {
		m.logger.Warn("encode snapshot", zap.Error(err))
		return
	}
	if err := m.deps.Snapshots.SaveSnapshot(ctx, snap); err != nil {
		m.logger.Warn("save snapshot", zap.Error(err))
	}
}

// fallback returns the last good value from memory, then from the snapshot
// store, then the zero value. err is always carried along.
func (m *Metric[T]) fallback(ctx context.Context, err error) Result[T] {
	m.logger.Warn("serving fallback", zap.Error(err))

	m.mu.RLock()
	value, at, ok := m.lastGood, m.lastGoodAt, m.hasGood
	m.mu.RUnlock()
	if ok {
		return Result[T]{Value: value, Stale: true, Source: SourceMemory, FetchedAt: at, Err: err}
	}

	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), snapshotLoadTimeout)
	defer cancel()
	if value, at, ok := m.loadSnapshot(loadCtx); ok {
		return Result[T]{Value: value, Stale: true, Source: SourceSnapshot, FetchedAt: at, Err: err}
	}

	var zero T
	return Result[T]{Value: zero, Source: SourceNone, Err: err}
}

func (m *Metric[T]) loadSnapshot(ctx context.Context) (T, time.Time, bool) {
	var value T
	snap, ok, err := m.deps.Snapshots.LoadSnapshot(ctx, m.cfg.Key)
	if err != nil {
		m.logger.Warn("load snapshot", zap.Error(err))
		return value, time.Time{}, false
	}
	if !ok {
		return value, time.Time{}, false
	}
	if err := json.Unmarshal(snap.Data, &value); err != nil {
		m.logger.Warn("decode snapshot", zap.Error(err))
		return value, time.Time{}, false
	}
	return value, snap.FetchedAt, true
}

// restoreSnapshot seeds the in-memory last good value after a restart.
func (m *Metric[T]) restoreSnapshot(ctx context.Context) {
	value, at, ok := m.loadSnapshot(ctx)
	if !ok {
		return
	}
	m.mu.Lock()
	if !m.hasGood {
		m.lastGood, m.lastGoodAt, m.hasGood = value, at, true
	}
	m.mu.Unlock()
	m.logger.Info("restored snapshot", zap.Time("fetched_at", at))
}
