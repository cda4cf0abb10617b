package table

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/atlas"
)

func threadsDef() *Definition {
	return &Definition{
		Name:       "threads",
		PrimaryKey: "thread_id",
		Columns: []Column{
			{Name: "thread_id", Type: TypeInt},
			{Name: "author_id", Type: TypeInt, Nullable: true},
			{Name: "subject", Type: TypeString},
		},
	}
}

func TestDefinitionValidate(t *testing.T) {
	t.Parallel()
	require.NoError(t, threadsDef().Validate())

	tests := []struct {
		name string
		edit func(d *Definition)
	}{
		{"EmptyName", func(d *Definition) { d.Name = "" }},
		{"BadName", func(d *Definition) { d.Name = "threads; DROP" }},
		{"NoColumns", func(d *Definition) { d.Columns = nil }},
		{"DuplicateColumn", func(d *Definition) { d.Columns = append(d.Columns, Column{Name: "subject"}) }},
		{"UnknownType", func(d *Definition) { d.Columns[1].Type = "decimal" }},
		{"MissingPrimaryKey", func(d *Definition) { d.PrimaryKey = "id" }},
		{"AutoIncrementUUID", func(d *Definition) { d.AutoIncrement, d.UUIDKey = true, true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := threadsDef()
			tt.edit(d)
			err := d.Validate()
			require.Error(t, err)
			assert.True(t, atlas.IsInvalidDefinition(err))
		})
	}
}

func TestRowStatus(t *testing.T) {
	t.Parallel()
	r := newRow(threadsDef(), map[string]any{"thread_id": int64(1), "author_id": int64(10), "subject": "Hello"}, StatusClean)
	assert.Equal(t, StatusClean, r.Status())
	assert.Empty(t, r.Modified())

	require.NoError(t, r.Set("subject", "Changed"))
	assert.Equal(t, StatusModified, r.Status())
	assert.Equal(t, map[string]any{"subject": "Changed"}, r.Modified())

	require.NoError(t, r.Set("subject", "Hello"))
	assert.Equal(t, StatusClean, r.Status(), "restoring the initial value makes the row clean again")

	require.NoError(t, r.Set("author_id", 10))
	assert.Equal(t, StatusClean, r.Status(), "int and int64 of the same value are equal")

	require.NoError(t, r.Set("author_id", nil))
	assert.Equal(t, map[string]any{"author_id": nil}, r.Modified())

	err := r.Set("missing", 1)
	require.ErrorIs(t, err, atlas.ErrUnknownField)

	r.markDeleted()
	require.Error(t, r.Set("subject", "x"))
	assert.Equal(t, "deleted", r.Status().String())
}

func TestRowNew(t *testing.T) {
	t.Parallel()
	r := newRow(threadsDef(), map[string]any{"subject": "Hello"}, StatusNew)
	assert.Equal(t, StatusNew, r.Status())
	assert.Nil(t, r.PrimaryKey())
	assert.Equal(t, map[string]any{"subject": "Hello"}, r.Modified())
	assert.Equal(t, []string{"thread_id", "author_id", "subject"}, r.Columns())
	assert.True(t, r.Has("author_id"))
	assert.False(t, r.Has("missing"))

	r.values["thread_id"] = int64(5)
	r.markClean()
	assert.Equal(t, StatusClean, r.Status())
	assert.Equal(t, int64(5), r.Initial()["thread_id"])
}

func TestKey(t *testing.T) {
	t.Parallel()
	id := uuid.New()
	tests := []struct {
		in   any
		want string
	}{
		{nil, NullKey},
		{10, "10"},
		{int64(10), "10"},
		{int32(10), "10"},
		{uint64(10), "10"},
		{"10", "10"},
		{[]byte("abc"), "abc"},
		{id, id.String()},
		{1.5, "1.5"},
		{true, "true"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Key(tt.in))
	}
	assert.NotEqual(t, Key(nil), Key(""), "null and empty string are distinct keys")
}

func TestIdentityMap(t *testing.T) {
	t.Parallel()
	def := threadsDef()
	m := NewIdentityMap()
	r1 := newRow(def, map[string]any{"thread_id": int64(1), "subject": "a"}, StatusClean)
	require.NoError(t, m.Set(r1))
	require.NoError(t, m.Set(r1), "mapping the same row twice is allowed")

	got, ok := m.Get(1)
	require.True(t, ok)
	assert.Same(t, r1, got)

	dup := newRow(def, map[string]any{"thread_id": int64(1), "subject": "b"}, StatusClean)
	require.ErrorIs(t, m.Set(dup), atlas.ErrRowAlreadyMapped)

	require.Error(t, m.Set(newRow(def, nil, StatusNew)), "rows without primary key cannot be mapped")

	// getOrSet refreshes clean rows and keeps local changes of modified ones.
	same := m.getOrSet(def, map[string]any{"thread_id": int64(1), "subject": "fresh"})
	assert.Same(t, r1, same)
	assert.Equal(t, "fresh", r1.Get("subject"))
	require.NoError(t, r1.Set("subject", "local"))
	m.getOrSet(def, map[string]any{"thread_id": int64(1), "subject": "remote"})
	assert.Equal(t, "local", r1.Get("subject"))

	r2 := m.getOrSet(def, map[string]any{"thread_id": int64(2), "subject": "two"})
	assert.Equal(t, StatusClean, r2.Status())
	assert.Equal(t, 2, m.Len())

	m.Delete(int64(2))
	_, ok = m.Get(2)
	assert.False(t, ok)
	m.Reset()
	assert.Zero(t, m.Len())
}

func TestRowCacheCodec(t *testing.T) {
	t.Parallel()
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	in := []map[string]any{
		{"thread_id": int64(1), "subject": "Hello", "body": nil, "score": 1.5, "created_at": created},
		{"thread_id": int64(300000), "subject": "World", "body": "text", "score": 2.0, "created_at": created},
	}
	data, err := encodeRows(in)
	require.NoError(t, err)
	out, err := decodeRows(data)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, int64(1), out[0]["thread_id"])
	assert.Equal(t, int64(300000), out[1]["thread_id"])
	assert.Nil(t, out[0]["body"])
	assert.Equal(t, "text", out[1]["body"])
	assert.Equal(t, 1.5, out[0]["score"])
	assert.True(t, created.Equal(out[0]["created_at"].(time.Time)))

	_, err = decodeRows([]byte{0xc1})
	require.Error(t, err)
	_, err = decodeRows([]byte{0, 0xc1})
	require.Error(t, err)
	_, err = decodeRows(nil)
	require.Error(t, err)
}

func TestRowCacheCodecCompressed(t *testing.T) {
	t.Parallel()
	in := make([]map[string]any, 200)
	for i := range in {
		in[i] = map[string]any{"thread_id": int64(i), "subject": "The same subject over and over", "body": nil}
	}
	data, err := encodeRows(in)
	require.NoError(t, err)
	assert.Equal(t, codecZstd, data[0])

	out, err := decodeRows(data)
	require.NoError(t, err)
	require.Len(t, out, 200)
	assert.Equal(t, int64(199), out[199]["thread_id"])
	assert.Equal(t, "The same subject over and over", out[0]["subject"])

	small, err := encodeRows(in[:1])
	require.NoError(t, err)
	assert.Equal(t, codecRaw, small[0])
}

func TestMemoryCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Now()
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "threads:select:a", []byte("a"), 0))
	require.NoError(t, c.Set(ctx, "threads:select:b", []byte("b"), time.Minute))
	require.NoError(t, c.Set(ctx, "authors:select:a", []byte("c"), 0))

	v, err := c.Get(ctx, "threads:select:b")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), v)

	now = now.Add(2 * time.Minute)
	v, err = c.Get(ctx, "threads:select:b")
	require.NoError(t, err)
	assert.Nil(t, v, "expired")

	require.NoError(t, c.DeletePrefix(ctx, atlas.CacheKey{Table: "threads"}.Prefix()))
	v, _ = c.Get(ctx, "threads:select:a")
	assert.Nil(t, v)
	v, _ = c.Get(ctx, "authors:select:a")
	assert.Equal(t, []byte("c"), v)
	assert.Equal(t, 1, c.Len())
}
