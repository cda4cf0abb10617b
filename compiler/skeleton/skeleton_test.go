package skeleton

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"ariga.io/atlas/sql/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/atlas/dialect"
	"github.com/syssam/atlas/dialect/sql"
	sqlschema "github.com/syssam/atlas/dialect/sql/schema"
	"github.com/syssam/atlas/relationship"
	"github.com/syssam/atlas/table"

	_ "modernc.org/sqlite"
)

func forumSchema() *schema.Schema {
	authors := schema.NewTable("authors").AddColumns(
		schema.NewIntColumn("author_id", "integer"),
		schema.NewStringColumn("name", "text"),
	)
	authors.SetPrimaryKey(schema.NewPrimaryKey(authors.Columns[0]))

	replies := schema.NewTable("replies").AddColumns(
		schema.NewIntColumn("reply_id", "integer"),
		schema.NewNullIntColumn("author_id", "integer"),
		schema.NewNullIntColumn("editor_id", "integer"),
		schema.NewNullStringColumn("body", "text"),
	)
	replies.SetPrimaryKey(schema.NewPrimaryKey(replies.Columns[0]))
	replies.ForeignKeys = []*schema.ForeignKey{
		{Symbol: "replies_author", Table: replies, Columns: replies.Columns[1:2], RefTable: authors, RefColumns: authors.Columns[:1]},
		{Symbol: "replies_editor", Table: replies, Columns: replies.Columns[2:3], RefTable: authors, RefColumns: authors.Columns[:1]},
	}

	logs := schema.NewTable("audit_logs").AddColumns(schema.NewStringColumn("message", "text"))
	return schema.New("main").AddTables(replies, authors, logs)
}

func TestBuild(t *testing.T) {
	mappers, err := Build(forumSchema(), Config{Dialect: dialect.SQLite})
	require.NoError(t, err)
	require.Len(t, mappers, 2, "audit_logs has no primary key")

	author, reply := mappers[0], mappers[1]
	assert.Equal(t, "Author", author.Name)
	assert.Equal(t, "AuthorMapper", author.Func())
	assert.Equal(t, "authors.go", author.File())
	assert.Equal(t, "Reply", reply.Name)

	assert.Equal(t, table.Definition{
		Name:          "replies",
		PrimaryKey:    "reply_id",
		AutoIncrement: true,
		Columns: []table.Column{
			{Name: "reply_id", Type: table.TypeInt},
			{Name: "author_id", Type: table.TypeInt, Nullable: true},
			{Name: "editor_id", Type: table.TypeInt, Nullable: true},
			{Name: "body", Type: table.TypeText, Nullable: true},
		},
	}, reply.Table)

	assert.Equal(t, []*Relation{
		{Name: "author", Kind: relationship.ManyToOne, Foreign: "Author", NativeCol: "author_id", ForeignCol: "author_id"},
		{Name: "editor", Kind: relationship.ManyToOne, Foreign: "Author", NativeCol: "editor_id", ForeignCol: "author_id"},
	}, reply.Relations)
	assert.Equal(t, []*Relation{
		{Name: "replies", Kind: relationship.OneToMany, Foreign: "Reply", NativeCol: "author_id", ForeignCol: "author_id"},
		{Name: "editor_replies", Kind: relationship.OneToMany, Foreign: "Reply", NativeCol: "author_id", ForeignCol: "editor_id"},
	}, author.Relations)

	mappers, err = Build(forumSchema(), Config{Dialect: dialect.Postgres})
	require.NoError(t, err)
	assert.False(t, mappers[0].Table.AutoIncrement)

	_, err = Build(nil, Config{})
	assert.Error(t, err)
}

func TestMapperName(t *testing.T) {
	tests := map[string]string{
		"authors":     "Author",
		"replies":     "Reply",
		"summaries":   "Summary",
		"forum_posts": "ForumPost",
		"tag":         "Tag",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, want, MapperName(in))
		})
	}
}

func TestMapperFile(t *testing.T) {
	mappers, err := Build(forumSchema(), Config{Dialect: dialect.SQLite})
	require.NoError(t, err)

	code := MapperFile("forum", mappers[1]).GoString()
	assert.Contains(t, code, "Generated by atlas skeleton from table replies.")
	assert.Contains(t, code, "package forum")
	assert.Contains(t, code, `"github.com/syssam/atlas/orm"`)
	assert.Contains(t, code, "func ReplyMapper() orm.MapperDefinition {")
	assert.Contains(t, code, `rs.ManyToOne("author", "Author", relationship.On("author_id", "author_id"))`)
	assert.Contains(t, code, `rs.ManyToOne("editor", "Author", relationship.On("editor_id", "author_id"))`)
	assert.Contains(t, code, "table.TypeText")
	assert.Regexp(t, `AutoIncrement:\s+true`, code)
	assert.Len(t, regexpAll(`Nullable:\s+true`, code), 3)

	code = IndexFile("forum", mappers).GoString()
	assert.Contains(t, code, "func Mappers() []orm.MapperDefinition {")
	assert.Contains(t, code, "AuthorMapper()")
	assert.Contains(t, code, "ReplyMapper()")
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()
	drv, err := sql.Open(dialect.SQLite, ":memory:")
	require.NoError(t, err)
	drv.DB().SetMaxOpenConns(1)
	defer drv.Close()
	for _, stmt := range []string{
		`CREATE TABLE authors (author_id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL)`,
		`CREATE TABLE threads (thread_id INTEGER PRIMARY KEY AUTOINCREMENT, author_id INTEGER REFERENCES authors (author_id), subject TEXT NOT NULL)`,
	} {
		require.NoError(t, drv.Exec(ctx, stmt, []any{}, nil))
	}
	s, err := sqlschema.Inspect(ctx, drv, dialect.SQLite)
	require.NoError(t, err)

	target := filepath.Join(t.TempDir(), "forum")
	require.NoError(t, Generate(ctx, s, Config{Package: "forum", Target: target, Dialect: dialect.SQLite}))

	entries, err := os.ReadDir(target)
	require.NoError(t, err)
	var files []string
	for _, e := range entries {
		files = append(files, e.Name())
	}
	assert.ElementsMatch(t, []string{"authors.go", "threads.go", "mappers.go"}, files)

	threads, err := os.ReadFile(filepath.Join(target, "threads.go"))
	require.NoError(t, err)
	assert.Contains(t, string(threads), `rs.ManyToOne("author", "Author", relationship.On("author_id", "author_id"))`)
	authors, err := os.ReadFile(filepath.Join(target, "authors.go"))
	require.NoError(t, err)
	assert.Contains(t, string(authors), `rs.OneToMany("threads", "Thread", relationship.On("author_id", "author_id"))`)

	assert.Error(t, Generate(ctx, s, Config{Package: "forum"}))
}

func regexpAll(expr, s string) []string {
	return regexp.MustCompile(expr).FindAllString(s, -1)
}
