package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statsScope/internal/broadcast"
	"statsScope/internal/cache"
	"statsScope/internal/storage"
)

type testValue struct {
	N int `json:"n"`
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type memSnapshots struct {
	mu    sync.Mutex
	snaps map[string]storage.Snapshot
}

func newMemSnapshots() *memSnapshots {
	return &memSnapshots{snaps: make(map[string]storage.Snapshot)}
}

func (m *memSnapshots) LoadSnapshot(_ context.Context, key string) (storage.Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[key]
	return snap, ok, nil
}

func (m *memSnapshots) SaveSnapshot(_ context.Context, snap storage.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[snap.Key] = snap
	return nil
}

func testDeps(clock *fakeClock) Deps {
	return Deps{
		Cache:       cache.New(cache.WithClock(clock.Now)),
		Broadcaster: broadcast.New(nil),
		Snapshots:   newMemSnapshots(),
		Now:         clock.Now,
		Jitter:      func(time.Duration) time.Duration { return 0 },
	}
}

func testConfig() MetricConfig {
	return MetricConfig{
		Key:         "test",
		Topic:       "stats",
		TTL:         time.Hour,
		SoftRefresh: time.Minute,
	}
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)}
}

func TestColdReadsShareOneFetch(t *testing.T) {
	clock := newClock()
	var calls atomic.Int32
	release := make(chan struct{})
	m := NewMetric(testConfig(), func(ctx context.Context) (testValue, error) {
		calls.Add(1)
		<-release
		return testValue{N: 7}, nil
	}, testDeps(clock))

	const readers = 20
	var wg sync.WaitGroup
	results := make([]Result[testValue], readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.Get(context.Background())
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, res := range results {
		require.NoError(t, res.Err)
		assert.Equal(t, 7, res.Value.N)
	}
}

func TestFreshReadUsesCache(t *testing.T) {
	clock := newClock()
	var calls atomic.Int32
	m := NewMetric(testConfig(), func(ctx context.Context) (testValue, error) {
		return testValue{N: int(calls.Add(1))}, nil
	}, testDeps(clock))

	first := m.Get(context.Background())
	assert.Equal(t, SourceFetch, first.Source)

	second := m.Get(context.Background())
	assert.Equal(t, SourceCache, second.Source)
	assert.False(t, second.Stale)
	assert.Equal(t, 1, second.Value.N)
	assert.Equal(t, int32(1), calls.Load())
}

func TestStaleReadRefreshesInBackground(t *testing.T) {
	clock := newClock()
	var calls atomic.Int32
	m := NewMetric(testConfig(), func(ctx context.Context) (testValue, error) {
		return testValue{N: int(calls.Add(1))}, nil
	}, testDeps(clock))

	m.Get(context.Background())
	clock.Advance(2 * time.Minute)

	res := m.Get(context.Background())
	assert.True(t, res.Stale)
	assert.Equal(t, 1, res.Value.N)

	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		v, _ := m.Cached()
		return v.N == 2
	}, time.Second, 5*time.Millisecond)
}

func TestFailedRefreshServesLastGood(t *testing.T) {
	clock := newClock()
	fail := errors.New("all endpoints failed")
	var broken atomic.Bool
	m := NewMetric(testConfig(), func(ctx context.Context) (testValue, error) {
		if broken.Load() {
			return testValue{}, fail
		}
		return testValue{N: 3}, nil
	}, testDeps(clock))

	m.Get(context.Background())
	broken.Store(true)

	res := m.Refresh(context.Background())
	assert.ErrorIs(t, res.Err, fail)
	assert.True(t, res.Stale)
	assert.Equal(t, SourceMemory, res.Source)
	assert.Equal(t, 3, res.Value.N)
}

func TestColdFailureUsesSnapshot(t *testing.T) {
	clock := newClock()
	deps := testDeps(clock)
	snap, err := storage.NewSnapshot("test", testValue{N: 11}, clock.Now())
	require.NoError(t, err)
	require.NoError(t, deps.Snapshots.SaveSnapshot(context.Background(), snap))

	m := NewMetric(testConfig(), func(ctx context.Context) (testValue, error) {
		return testValue{}, errors.New("rate limited")
	}, deps)

	res := m.Get(context.Background())
	require.Error(t, res.Err)
	assert.Equal(t, SourceSnapshot, res.Source)
	assert.Equal(t, 11, res.Value.N)
}

func TestColdFailureWithoutHistoryReturnsZero(t *testing.T) {
	clock := newClock()
	m := NewMetric(testConfig(), func(ctx context.Context) (testValue, error) {
		return testValue{}, errors.New("boom")
	}, testDeps(clock))

	res := m.Get(context.Background())
	require.Error(t, res.Err)
	assert.Equal(t, SourceNone, res.Source)
	assert.Equal(t, 0, res.Value.N)
}

func TestSuccessPublishesAndPersists(t *testing.T) {
	clock := newClock()
	deps := testDeps(clock)
	sub := broadcast.NewChannelSubscriber(2)
	deps.Broadcaster.Subscribe("stats", sub)

	m := NewMetric(testConfig(), func(ctx context.Context) (testValue, error) {
		return testValue{N: 5}, nil
	}, deps)
	m.Get(context.Background())

	require.Len(t, sub.C(), 1)
	assert.JSONEq(t, `{"type":"stats","data":{"n":5}}`, string(<-sub.C()))

	snap, ok, err := deps.Snapshots.LoadSnapshot(context.Background(), "test")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"n":5}`, string(snap.Data))
}

func TestCallerTimeoutDoesNotCancelFetch(t *testing.T) {
	clock := newClock()
	release := make(chan struct{})
	done := make(chan struct{})
	m := NewMetric(testConfig(), func(ctx context.Context) (testValue, error) {
		defer close(done)
		select {
		case <-release:
			return testValue{N: 9}, nil
		case <-ctx.Done():
			return testValue{}, ctx.Err()
		}
	}, testDeps(clock))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	res := m.Get(ctx)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)

	close(release)
	<-done
	require.Eventually(t, func() bool {
		v, ok := m.Cached()
		return ok && v.N == 9
	}, time.Second, 5*time.Millisecond)
}

func TestRunRestoresSnapshotAndStops(t *testing.T) {
	clock := newClock()
	deps := testDeps(clock)
	snap, err := storage.NewSnapshot("test", testValue{N: 4}, clock.Now())
	require.NoError(t, err)
	require.NoError(t, deps.Snapshots.SaveSnapshot(context.Background(), snap))

	m := NewMetric(testConfig(), func(ctx context.Context) (testValue, error) {
		return testValue{}, errors.New("down")
	}, deps)

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(finished)
	}()

	require.Eventually(t, func() bool {
		v, ok := m.Cached()
		return ok && v.N == 4
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("run did not stop")
	}
}

func TestRefreshDoesNotJoinBackgroundFetch(t *testing.T) {
	clock := newClock()
	var calls atomic.Int32
	release := make(chan struct{})
	m := NewMetric(testConfig(), func(ctx context.Context) (testValue, error) {
		if calls.Add(1) == 1 {
			<-release
			return testValue{N: 1}, nil
		}
		return testValue{N: 2}, nil
	}, testDeps(clock))

	m.Prefetch()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	clock.Advance(time.Second)
	res := m.Refresh(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, SourceFetch, res.Source)
	assert.Equal(t, 2, res.Value.N)
	assert.Equal(t, int32(2), calls.Load())

	close(release)
	m.wg.Wait()

	v, ok := m.Cached()
	require.True(t, ok)
	assert.Equal(t, 2, v.N, "older background result must not overwrite the forced refresh")
}

func TestFailedRefreshKeepsCachedValue(t *testing.T) {
	clock := newClock()
	var broken atomic.Bool
	m := NewMetric(testConfig(), func(ctx context.Context) (testValue, error) {
		if broken.Load() {
			return testValue{}, errors.New("rate limited")
		}
		return testValue{N: 5}, nil
	}, testDeps(clock))

	m.Get(context.Background())
	broken.Store(true)
	clock.Advance(time.Second)

	res := m.Refresh(context.Background())
	require.Error(t, res.Err)
	assert.Equal(t, 5, res.Value.N)

	next := m.Get(context.Background())
	assert.NoError(t, next.Err)
	assert.Equal(t, SourceCache, next.Source)
	assert.Equal(t, 5, next.Value.N)
}
