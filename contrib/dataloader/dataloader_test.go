package dataloader_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/atlas/contrib/dataloader"
	"github.com/syssam/atlas/dialect/sql"
	"github.com/syssam/atlas/internal/fixture"
	"github.com/syssam/atlas/mapper"
	"github.com/syssam/atlas/orm"
)

type entity struct {
	ID   int
	Name string
}

func TestOrderByKeys(t *testing.T) {
	t.Parallel()
	keyFn := func(e *entity) int { return e.ID }

	t.Run("all keys found", func(t *testing.T) {
		t.Parallel()
		values := []*entity{{ID: 3, Name: "third"}, {ID: 1, Name: "first"}, {ID: 2, Name: "second"}}
		result, errs := dataloader.OrderByKeys([]int{1, 2, 3}, values, keyFn)
		require.Len(t, result, 3)
		assert.Equal(t, "first", result[0].Name)
		assert.Equal(t, "second", result[1].Name)
		assert.Equal(t, "third", result[2].Name)
		assert.Equal(t, []error{nil, nil, nil}, errs)
	})

	t.Run("some keys missing", func(t *testing.T) {
		t.Parallel()
		values := []*entity{{ID: 1, Name: "first"}, {ID: 3, Name: "third"}}
		result, errs := dataloader.OrderByKeys([]int{1, 2, 3, 2}, values, keyFn)
		require.Len(t, result, 4)
		assert.Nil(t, result[1])
		assert.Nil(t, result[3])
		assert.NoError(t, errs[0])
		assert.ErrorIs(t, errs[1], dataloader.ErrNotFound)
		assert.ErrorIs(t, errs[3], dataloader.ErrNotFound)
	})

	t.Run("empty keys", func(t *testing.T) {
		t.Parallel()
		result, errs := dataloader.OrderByKeys(nil, []*entity{{ID: 1}}, keyFn)
		assert.Empty(t, result)
		assert.Empty(t, errs)
	})
}

func TestGroupByKey(t *testing.T) {
	t.Parallel()
	values := []*entity{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}, {ID: 1, Name: "c"}}
	groups := dataloader.GroupByKey(values, func(e *entity) int { return e.ID })
	require.Len(t, groups, 2)
	assert.Equal(t, []*entity{values[0], values[2]}, groups[1])

	ordered := dataloader.OrderGroupsByKeys([]int{2, 3, 1}, groups)
	require.Len(t, ordered, 3)
	assert.Equal(t, []*entity{values[1]}, ordered[0])
	assert.Nil(t, ordered[1])
	assert.Len(t, ordered[2], 2)
}

func TestContext(t *testing.T) {
	t.Parallel()
	type loaders struct{ Name string }
	ctx := dataloader.WithLoaders(context.Background(), &loaders{Name: "request"})
	assert.Equal(t, "request", dataloader.For[*loaders](ctx).Name)
	assert.Nil(t, dataloader.For[*loaders](context.Background()))
}

type forum struct {
	atlas *orm.Atlas
	stats *sql.StatsDriver
}

func newForum(t *testing.T) *forum {
	t.Helper()
	drv, err := fixture.Open(context.Background())
	require.NoError(t, err)
	stats := sql.NewStatsDriver(drv)
	c, err := orm.New(orm.WithDriver(stats))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	require.NoError(t, c.SetMappers(fixture.Mappers()...))
	return &forum{atlas: c.Atlas(), stats: stats}
}

func (f *forum) loader(t *testing.T, name string, with ...string) *dataloader.Loader {
	t.Helper()
	m, err := f.atlas.Mapper(name)
	require.NoError(t, err)
	return dataloader.New(m, with...)
}

func (f *forum) queries() int64 {
	n := f.stats.QueryStats().TotalQueries.Load()
	f.stats.QueryStats().Reset()
	return n
}

func TestLoader(t *testing.T) {
	ctx := context.Background()
	f := newForum(t)
	authors := f.loader(t, "Author", "threads")

	recs, errs := authors.LoadMany(ctx, []any{10, 1, 99, 10})
	assert.EqualValues(t, 2, f.queries(), "authors and their threads")
	require.Len(t, recs, 4)
	assert.Equal(t, "Alice", recs[0].Get("name"))
	assert.Equal(t, "Anna", recs[1].Get("name"))
	assert.Nil(t, recs[2])
	assert.ErrorIs(t, errs[2], dataloader.ErrNotFound)
	assert.Same(t, recs[0], recs[3])
	threads, ok := recs[0].Get("threads").(*mapper.RecordSet)
	require.True(t, ok)
	assert.Equal(t, 2, threads.Len())

	rec, err := authors.Load(ctx, int64(10))
	require.NoError(t, err)
	assert.Same(t, recs[0], rec)
	assert.EqualValues(t, 0, f.queries(), "cached")

	authors.Clear(10)
	rec, err = authors.Load(ctx, 10)
	require.NoError(t, err)
	assert.NotSame(t, recs[0], rec)
	assert.Same(t, recs[0].Row(), rec.Row(), "identity map")
	assert.EqualValues(t, 1, f.queries(), "threads only, the author row is mapped")

	_, err = authors.Load(ctx, 99)
	assert.ErrorIs(t, err, dataloader.ErrNotFound)
}

func TestLoaderPrime(t *testing.T) {
	ctx := context.Background()
	f := newForum(t)
	threads := f.loader(t, "Thread")

	rec, err := f.atlas.NewRecord("Thread", map[string]any{"thread_id": 42, "subject": "Primed"})
	require.NoError(t, err)
	threads.Prime(rec)
	got, err := threads.Load(ctx, 42)
	require.NoError(t, err)
	assert.Same(t, rec, got)
	assert.EqualValues(t, 0, f.queries())
}

func TestLoaderFetchError(t *testing.T) {
	ctx := context.Background()
	f := newForum(t)
	threads := f.loader(t, "Thread", "missing")

	_, errs := threads.LoadMany(ctx, []any{1, 2})
	require.Len(t, errs, 2)
	for _, err := range errs {
		assert.Error(t, err)
		assert.False(t, errors.Is(err, dataloader.ErrNotFound))
	}
}

func TestLoaderConcurrent(t *testing.T) {
	ctx := context.Background()
	f := newForum(t)
	authors := f.loader(t, "Author")

	var wg sync.WaitGroup
	for _, pk := range []any{1, 2, 3, 10} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := authors.Load(ctx, pk)
			assert.NoError(t, err)
			assert.NotNil(t, rec)
		}()
	}
	wg.Wait()
}
