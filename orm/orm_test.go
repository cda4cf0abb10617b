package orm_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/atlas"
	"github.com/syssam/atlas/config"
	"github.com/syssam/atlas/dialect"
	"github.com/syssam/atlas/dialect/sql"
	"github.com/syssam/atlas/internal/fixture"
	"github.com/syssam/atlas/mapper"
	"github.com/syssam/atlas/orm"
	"github.com/syssam/atlas/relationship"
	"github.com/syssam/atlas/table"
)

func forum(t *testing.T, opts ...orm.Option) *orm.Container {
	t.Helper()
	drv, err := fixture.Open(context.Background())
	require.NoError(t, err)
	c, err := orm.New(append([]orm.Option{orm.WithDriver(drv)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	require.NoError(t, c.SetMappers(fixture.Mappers()...))
	return c
}

func TestNew(t *testing.T) {
	_, err := orm.New()
	assert.Error(t, err, "no connection")

	_, err = orm.New(orm.WithConfig(&config.Config{Dialect: "oracle", DSN: "x"}))
	assert.ErrorContains(t, err, "unknown dialect")
}

func TestContainer(t *testing.T) {
	c := forum(t)
	require.NoError(t, c.Fix())
	assert.Equal(t, []string{"Author", "Reply", "Summary", "Tag", "Tagging", "Thread"}, c.Mappers().Names())

	var names []string
	for _, def := range c.Definitions() {
		names = append(names, def.Name)
	}
	assert.Equal(t, []string{"authors", "replies", "summaries", "taggings", "tags", "threads"}, names)

	err := c.SetMapper(orm.MapperDefinition{Name: "Thread", Table: fixture.Threads()})
	assert.ErrorIs(t, err, atlas.ErrInvalidDefinition, "duplicate mapper")
	err = c.SetMapper(orm.MapperDefinition{Table: fixture.Threads()})
	assert.ErrorIs(t, err, atlas.ErrInvalidDefinition, "empty name")
	err = c.SetMapper(orm.MapperDefinition{Name: "Broken", Table: table.Definition{Name: "broken"}})
	assert.ErrorIs(t, err, atlas.ErrInvalidDefinition, "invalid table")

	err = c.SetMapper(orm.MapperDefinition{
		Name:  "Topic",
		Table: fixture.Threads(),
		Relationships: func(rs *relationship.Relationships) error {
			_, err := rs.ManyToMany("tags", "Tag", "taggings")
			return err
		},
	})
	assert.ErrorIs(t, err, atlas.ErrInvalidDefinition, "unknown through relation")
	assert.False(t, c.Mappers().Has("Topic"), "rejected mappers are not registered")

	require.NoError(t, c.SetMapper(orm.MapperDefinition{
		Name:  "Topic",
		Table: fixture.Threads(),
		Relationships: func(rs *relationship.Relationships) error {
			_, err := rs.ManyToOne("starter", "Starter")
			return err
		},
	}))
	topic, err := c.Atlas().Mapper("Topic")
	require.NoError(t, err)
	thread, err := c.Atlas().Mapper("Thread")
	require.NoError(t, err)
	assert.Same(t, thread.Table(), topic.Table(), "mappers of one table share it")
	assert.ErrorIs(t, c.Fix(), atlas.ErrMapperNotFound)
}

func TestAtlasFetch(t *testing.T) {
	a := forum(t).Atlas()
	ctx := context.Background()

	thread, err := a.FetchRecord(ctx, "Thread", 1, "author", "replies", "tags")
	require.NoError(t, err)
	require.NotNil(t, thread)
	assert.Equal(t, "Alice", thread.Get("author").(*mapper.Record).Get("name"))
	assert.Equal(t, 2, thread.Get("replies").(*mapper.RecordSet).Len())
	assert.Equal(t, 2, thread.Get("tags").(*mapper.RecordSet).Len())

	author, err := a.FetchRecordBy(ctx, "Author", map[string]any{"name": "Anna"}, "threads")
	require.NoError(t, err)
	assert.Equal(t, int64(1), author.Get("author_id"))
	assert.Equal(t, 1, author.Get("threads").(*mapper.RecordSet).Len())

	set, err := a.FetchRecordSet(ctx, "Reply", []any{6, 1}, "thread")
	require.NoError(t, err)
	require.Equal(t, 2, set.Len())
	assert.Equal(t, "Thread 4", set.Records()[0].Get("thread").(*mapper.Record).Get("subject"))

	set, err = a.FetchRecordSetBy(ctx, "Thread", map[string]any{"author_id": []int{1, 10}})
	require.NoError(t, err)
	assert.Equal(t, 3, set.Len())

	n, err := a.Select("Reply", sql.EQ("thread_id", 4)).FetchCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = a.Select("Nope").FetchRecordSet(ctx)
	assert.ErrorIs(t, err, atlas.ErrMapperNotFound)
	_, err = a.FetchRecord(ctx, "Nope", 1)
	assert.ErrorIs(t, err, atlas.ErrMapperNotFound)
	_, err = a.NewRecordSet("Nope")
	assert.ErrorIs(t, err, atlas.ErrMapperNotFound)
}

func TestAtlasWrite(t *testing.T) {
	a := forum(t).Atlas()
	ctx := context.Background()

	author, err := a.NewRecord("Author", map[string]any{"name": "Dora"})
	require.NoError(t, err)
	require.NoError(t, a.Insert(ctx, author))
	id := author.Get("author_id")
	require.NotNil(t, id)

	set, err := a.NewRecordSet("Thread")
	require.NoError(t, err)
	thread, err := set.AppendNew(map[string]any{"author_id": id, "subject": "Hello"})
	require.NoError(t, err)
	require.NoError(t, a.Insert(ctx, thread))

	fetched, err := a.FetchRecord(ctx, "Author", id, "threads")
	require.NoError(t, err)
	assert.Same(t, author.Row(), fetched.Row(), "identity map")
	threads := fetched.Get("threads").(*mapper.RecordSet)
	require.Equal(t, 1, threads.Len())
	assert.Equal(t, "Hello", threads.Records()[0].Get("subject"))

	require.NoError(t, author.Set("email", "dora@example.com"))
	require.NoError(t, a.Update(ctx, author))
	require.NoError(t, a.Delete(ctx, thread))

	_, err = a.NewRecord("Author", map[string]any{"threads": "x"})
	assert.Error(t, err)
	assert.ErrorIs(t, a.Insert(ctx, mapper.NewRecord("Nope", nil, nil)), atlas.ErrMapperNotFound)
	assert.Error(t, a.Update(ctx, nil))
}

func TestWithTx(t *testing.T) {
	c := forum(t)
	a := c.Atlas()
	ctx := context.Background()

	err := a.WithTx(ctx, func(ctx context.Context) error {
		r, err := a.NewRecord("Tag", map[string]any{"name": "tx"})
		if err != nil {
			return err
		}
		if err := a.Insert(ctx, r); err != nil {
			return err
		}
		assert.ErrorIs(t, a.WithTx(ctx, func(context.Context) error { return nil }), atlas.ErrTxStarted)
		return nil
	})
	require.NoError(t, err)
	tag, err := a.FetchRecordBy(ctx, "Tag", map[string]any{"name": "tx"})
	require.NoError(t, err)
	require.NotNil(t, tag, "committed")

	abort := errors.New("abort")
	err = a.WithTx(ctx, func(ctx context.Context) error {
		r, err := a.NewRecord("Tag", map[string]any{"name": "rolled back"})
		require.NoError(t, err)
		require.NoError(t, a.Insert(ctx, r))
		return abort
	})
	assert.ErrorIs(t, err, abort)
	tag, err = a.FetchRecordBy(ctx, "Tag", map[string]any{"name": "rolled back"})
	require.NoError(t, err)
	assert.Nil(t, tag)

	tags, err := c.Tables().Get("tags")
	require.NoError(t, err)
	assert.Equal(t, 0, tags.IdentityMap().Len(), "identity maps cleared by the rollback")

	assert.PanicsWithValue(t, "boom", func() {
		_ = a.WithTx(ctx, func(ctx context.Context) error {
			_, err := a.FetchRecord(ctx, "Thread", 1)
			require.NoError(t, err)
			panic("boom")
		})
	})
	thread, err := a.FetchRecord(ctx, "Thread", 1)
	require.NoError(t, err, "connection released by the rollback")
	assert.NotNil(t, thread)
}

func TestWithTxRollbackError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	c, err := orm.New(orm.WithDriver(sql.OpenDB(dialect.Postgres, db)))
	require.NoError(t, err)

	cause := errors.New("cause")
	rollback := errors.New("connection lost")
	mock.ExpectBegin()
	mock.ExpectRollback().WillReturnError(rollback)
	err = c.Atlas().WithTx(context.Background(), func(context.Context) error { return cause })
	assert.ErrorIs(t, err, cause)
	var rerr *atlas.RollbackError
	require.ErrorAs(t, err, &rerr)
	assert.ErrorIs(t, rerr, rollback)

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(rollback)
	err = c.Atlas().WithTx(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, rollback)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithConfig(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	cfg, err := config.Parse([]byte(`
dialect: sqlite
dsn: ":memory:"
max_open_conns: 1
debug: true
slow_query_threshold: 1ns
cache:
  enabled: true
`))
	require.NoError(t, err)
	c, err := orm.New(orm.WithConfig(cfg), orm.WithLogger(logger))
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	drv, err := c.Connections().Default()
	require.NoError(t, err)
	require.NoError(t, drv.Exec(ctx, `CREATE TABLE tags (tag_id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL UNIQUE)`, []any{}, nil))
	require.NoError(t, c.SetMapper(orm.MapperDefinition{Name: "Tag", Table: fixture.Tags()}))

	a := c.Atlas()
	r, err := a.NewRecord("Tag", map[string]any{"name": "go"})
	require.NoError(t, err)
	require.NoError(t, a.Insert(ctx, r))

	dup, err := a.NewRecord("Tag", map[string]any{"name": "go"})
	require.NoError(t, err)
	err = a.Insert(ctx, dup)
	assert.True(t, atlas.IsConstraintError(err), "unique violation: %v", err)

	for range 2 {
		set, err := a.FetchRecordSetBy(ctx, "Tag", map[string]any{"name": "go"})
		require.NoError(t, err)
		assert.Equal(t, 1, set.Len())
	}

	out := buf.String()
	assert.Contains(t, out, "statement=")
	assert.Contains(t, out, "slow query detected")
	assert.Contains(t, out, "mapper registered")
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte(`msg=query statement="SELECT`)), "second select served from the cache")
}

func TestWithCache(t *testing.T) {
	cache := table.NewMemoryCache()
	a := forum(t, orm.WithCache(cache, time.Minute)).Atlas()
	ctx := context.Background()

	_, err := a.FetchRecordSetBy(ctx, "Thread", map[string]any{"author_id": 10})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())

	r, err := a.NewRecord("Thread", map[string]any{"author_id": 10, "subject": "Cached?"})
	require.NoError(t, err)
	require.NoError(t, a.Insert(ctx, r))
	assert.Equal(t, 0, cache.Len(), "writes invalidate the table")

	set, err := a.FetchRecordSetBy(ctx, "Thread", map[string]any{"author_id": 10})
	require.NoError(t, err)
	assert.Equal(t, 3, set.Len())
}

func TestWithTxCache(t *testing.T) {
	cache := table.NewMemoryCache()
	a := forum(t, orm.WithCache(cache, time.Minute)).Atlas()
	ctx := context.Background()

	_, err := a.FetchRecordSetBy(ctx, "Tag", map[string]any{"name": "go"})
	require.NoError(t, err)
	require.Equal(t, 1, cache.Len())

	stale := atlas.CacheKey{Table: "threads", Operation: "select", Statement: "SELECT before commit"}
	err = a.WithTx(ctx, func(ctx context.Context) error {
		r, err := a.NewRecord("Thread", map[string]any{"author_id": 10, "subject": "In tx"})
		if err != nil {
			return err
		}
		if err := a.Insert(ctx, r); err != nil {
			return err
		}
		// A read outside the transaction caches rows the commit makes stale.
		return cache.Set(ctx, stale.String(), []byte{0}, 0)
	})
	require.NoError(t, err)
	data, err := cache.Get(ctx, stale.String())
	require.NoError(t, err)
	assert.Nil(t, data, "the commit drops the written table entries")
	assert.Equal(t, 1, cache.Len(), "other tables keep theirs")
}
