package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/ilanhub/internal/cache"
	"github.com/odvcencio/ilanhub/internal/models"
)

type countingSource struct {
	mu    sync.Mutex
	cats  []models.Category
	calls atomic.Int32
	err   error
}

func (s *countingSource) ListCategories(ctx context.Context) ([]models.Category, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.Category, len(s.cats))
	copy(out, s.cats)
	return out, nil
}

func (s *countingSource) set(cats []models.Category) {
	s.mu.Lock()
	s.cats = cats
	s.mu.Unlock()
}

func sampleCategories() []models.Category {
	return []models.Category{
		{ID: 1, Name: "Vasıta"},
		{ID: 2, Name: "Otomobil", ParentID: ptr(1)},
		{ID: 3, Name: "Motosiklet", ParentID: ptr(1)},
	}
}

func TestResolverCachesDescendants(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{cats: sampleCategories()}
	reg := prometheus.NewRegistry()
	r := NewResolver(src, cache.NewMemory(), time.Minute).WithMetrics(reg)

	ids, err := r.AllChildCategoryIDs(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	ids, err = r.AllChildCategoryIDs(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)
	assert.EqualValues(t, 1, src.calls.Load())

	assert.Equal(t, 1.0, testutil.ToFloat64(r.lookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.lookups.WithLabelValues("miss")))
}

func TestResolverInvalidate(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{cats: sampleCategories()}
	r := NewResolver(src, cache.NewMemory(), time.Minute)

	_, err := r.AllChildCategoryIDs(ctx, 1)
	require.NoError(t, err)

	src.set(append(sampleCategories(), models.Category{ID: 4, Name: "Elektrikli", ParentID: ptr(2)}))
	ids, err := r.AllChildCategoryIDs(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids, "stale until invalidated")

	require.NoError(t, r.Invalidate(ctx))
	ids, err = r.AllChildCategoryIDs(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4}, ids)
}

// blockingSource holds every load until release is closed. It fails the load
// when the context it was handed is already done.
type blockingSource struct {
	countingSource
	started chan struct{}
	once    sync.Once
	release chan struct{}
}

func newBlockingSource() *blockingSource {
	return &blockingSource{
		countingSource: countingSource{cats: sampleCategories()},
		started:        make(chan struct{}),
		release:        make(chan struct{}),
	}
}

func (s *blockingSource) ListCategories(ctx context.Context) ([]models.Category, error) {
	s.once.Do(func() { close(s.started) })
	<-s.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.countingSource.ListCategories(ctx)
}

func TestResolverCollapsesConcurrentLoads(t *testing.T) {
	ctx := context.Background()
	src := newBlockingSource()
	r := NewResolver(src, cache.NewMemory(), time.Minute).WithMetrics(nil)

	const callers = 16
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids, err := r.AllChildCategoryIDs(ctx, 2)
			assert.NoError(t, err)
			assert.Equal(t, []int64{2}, ids)
		}()
	}
	// Every caller has missed the cache before the single load may finish.
	<-src.started
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(r.lookups.WithLabelValues("miss")) == callers
	}, 5*time.Second, time.Millisecond)
	close(src.release)
	wg.Wait()
	assert.EqualValues(t, 1, src.calls.Load())

	// Results are copies; mutating one must not leak into the cache.
	ids, _ := r.AllChildCategoryIDs(ctx, 1)
	ids[0] = 999
	again, _ := r.AllChildCategoryIDs(ctx, 1)
	assert.Equal(t, int64(1), again[0])
}

func TestResolverLoadSurvivesFirstCallerCancel(t *testing.T) {
	src := newBlockingSource()
	r := NewResolver(src, cache.NewMemory(), time.Minute).WithMetrics(nil)

	firstCtx, cancel := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() {
		_, err := r.AllChildCategoryIDs(firstCtx, 1)
		firstDone <- err
	}()
	<-src.started
	cancel()

	secondDone := make(chan []int64, 1)
	go func() {
		ids, err := r.AllChildCategoryIDs(context.Background(), 1)
		assert.NoError(t, err)
		secondDone <- ids
	}()
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(r.lookups.WithLabelValues("miss")) == 2
	}, 5*time.Second, time.Millisecond)
	close(src.release)

	assert.Equal(t, []int64{1, 2, 3}, <-secondDone)
	assert.NoError(t, <-firstDone)
	assert.EqualValues(t, 1, src.calls.Load())
}

func TestResolverReloadsAfterTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	src := &countingSource{cats: sampleCategories()}
	r := NewResolver(src, cache.NewMemoryWithClock(func() time.Time { return now }), time.Minute)

	_, err := r.AllChildCategoryIDs(ctx, 1)
	require.NoError(t, err)
	src.set(append(sampleCategories(), models.Category{ID: 4, Name: "Elektrikli", ParentID: ptr(2)}))

	now = now.Add(59 * time.Second)
	ids, err := r.AllChildCategoryIDs(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)
	assert.EqualValues(t, 1, src.calls.Load())

	now = now.Add(time.Second)
	ids, err = r.AllChildCategoryIDs(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4}, ids)
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestResolverInvalidateDropsOldNodes(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemory()
	r := NewResolver(&countingSource{cats: sampleCategories()}, mem, time.Minute)

	_, err := r.Tree(ctx)
	require.NoError(t, err)
	_, ok, _ := mem.Get(ctx, genKey("0", "nodes"))
	require.True(t, ok)

	require.NoError(t, r.Invalidate(ctx))
	_, ok, _ = mem.Get(ctx, genKey("0", "nodes"))
	assert.False(t, ok, "previous generation node list should be deleted")
}

func TestResolverSourceError(t *testing.T) {
	src := &countingSource{err: errors.New("db down")}
	r := NewResolver(src, nil, 0)
	_, err := r.AllChildCategoryIDs(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestResolverAncestors(t *testing.T) {
	src := &countingSource{cats: sampleCategories()}
	r := NewResolver(src, nil, 0)
	path, err := r.Ancestors(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, path)
}
