// Package fixture provides the forum schema used by integration tests: an
// in-memory SQLite database with authors, threads, replies, summaries,
// tags and taggings.
package fixture

import (
	"context"
	"fmt"

	"github.com/syssam/atlas/dialect"
	"github.com/syssam/atlas/dialect/sql"
	"github.com/syssam/atlas/table"

	_ "modernc.org/sqlite"
)

var ddl = []string{
	`CREATE TABLE authors (author_id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL, email TEXT)`,
	`CREATE TABLE threads (thread_id INTEGER PRIMARY KEY AUTOINCREMENT, author_id INTEGER, subject TEXT NOT NULL, body TEXT)`,
	`CREATE TABLE replies (reply_id INTEGER PRIMARY KEY AUTOINCREMENT, thread_id INTEGER NOT NULL, author_id INTEGER, body TEXT)`,
	`CREATE TABLE summaries (summary_id INTEGER PRIMARY KEY AUTOINCREMENT, thread_id INTEGER NOT NULL, reply_count INTEGER NOT NULL DEFAULT 0)`,
	`CREATE TABLE tags (tag_id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL UNIQUE)`,
	`CREATE TABLE taggings (tagging_id INTEGER PRIMARY KEY AUTOINCREMENT, thread_id INTEGER NOT NULL, tag_id INTEGER NOT NULL)`,
}

// The seed follows the Threads/Authors example: threads 1 and 2 belong to
// author 10, thread 3 references the missing author 99 and thread 5 has no
// author. Thread 4 has two summaries, to exercise the first match policy.
var seed = []string{
	`INSERT INTO authors (author_id, name, email) VALUES (1, 'Anna', 'anna@example.com'), (2, 'Bert', NULL), (3, 'Cleo', 'cleo@example.com'), (10, 'Alice', 'alice@example.com')`,
	`INSERT INTO threads (thread_id, author_id, subject, body) VALUES (1, 10, 'Thread 1', 'Body 1'), (2, 10, 'Thread 2', NULL), (3, 99, 'Thread 3', 'Body 3'), (4, 1, 'Thread 4', 'Body 4'), (5, NULL, 'Thread 5', NULL)`,
	`INSERT INTO replies (reply_id, thread_id, author_id, body) VALUES (1, 1, 1, 'Reply 1'), (2, 1, 2, 'Reply 2'), (3, 2, 3, 'Reply 3'), (4, 4, 1, 'Reply 4'), (5, 4, 10, 'Reply 5'), (6, 4, 2, 'Reply 6')`,
	`INSERT INTO summaries (summary_id, thread_id, reply_count) VALUES (1, 1, 2), (2, 2, 1), (3, 4, 3), (4, 4, 99)`,
	`INSERT INTO tags (tag_id, name) VALUES (1, 'go'), (2, 'sql'), (3, 'orm')`,
	`INSERT INTO taggings (tagging_id, thread_id, tag_id) VALUES (1, 1, 1), (2, 1, 3), (3, 2, 2), (4, 4, 1)`,
}

// Open opens a fresh in-memory database holding the forum schema and
// seed rows. The pool is limited to one connection, since every new
// connection to ":memory:" would see an empty database.
func Open(ctx context.Context) (*sql.Driver, error) {
	drv, err := sql.Open(dialect.SQLite, ":memory:")
	if err != nil {
		return nil, err
	}
	drv.DB().SetMaxOpenConns(1)
	for _, stmt := range append(append([]string{}, ddl...), seed...) {
		if err := drv.Exec(ctx, stmt, []any{}, nil); err != nil {
			drv.Close()
			return nil, fmt.Errorf("fixture: %w", err)
		}
	}
	return drv, nil
}

// Authors is the authors table definition.
func Authors() table.Definition {
	return table.Definition{
		Name:          "authors",
		PrimaryKey:    "author_id",
		AutoIncrement: true,
		Columns: []table.Column{
			{Name: "author_id", Type: table.TypeInt},
			{Name: "name", Type: table.TypeString},
			{Name: "email", Type: table.TypeString, Nullable: true},
		},
	}
}

// Threads is the threads table definition.
func Threads() table.Definition {
	return table.Definition{
		Name:          "threads",
		PrimaryKey:    "thread_id",
		AutoIncrement: true,
		Columns: []table.Column{
			{Name: "thread_id", Type: table.TypeInt},
			{Name: "author_id", Type: table.TypeInt, Nullable: true},
			{Name: "subject", Type: table.TypeString},
			{Name: "body", Type: table.TypeText, Nullable: true},
		},
	}
}

// Replies is the replies table definition.
func Replies() table.Definition {
	return table.Definition{
		Name:          "replies",
		PrimaryKey:    "reply_id",
		AutoIncrement: true,
		Columns: []table.Column{
			{Name: "reply_id", Type: table.TypeInt},
			{Name: "thread_id", Type: table.TypeInt},
			{Name: "author_id", Type: table.TypeInt, Nullable: true},
			{Name: "body", Type: table.TypeText, Nullable: true},
		},
	}
}

// Summaries is the summaries table definition.
func Summaries() table.Definition {
	return table.Definition{
		Name:          "summaries",
		PrimaryKey:    "summary_id",
		AutoIncrement: true,
		Columns: []table.Column{
			{Name: "summary_id", Type: table.TypeInt},
			{Name: "thread_id", Type: table.TypeInt},
			{Name: "reply_count", Type: table.TypeInt, Default: 0},
		},
	}
}

// Tags is the tags table definition.
func Tags() table.Definition {
	return table.Definition{
		Name:          "tags",
		PrimaryKey:    "tag_id",
		AutoIncrement: true,
		Columns: []table.Column{
			{Name: "tag_id", Type: table.TypeInt},
			{Name: "name", Type: table.TypeString},
		},
	}
}

// Taggings is the taggings table definition.
func Taggings() table.Definition {
	return table.Definition{
		Name:          "taggings",
		PrimaryKey:    "tagging_id",
		AutoIncrement: true,
		Columns: []table.Column{
			{Name: "tagging_id", Type: table.TypeInt},
			{Name: "thread_id", Type: table.TypeInt},
			{Name: "tag_id", Type: table.TypeInt},
		},
	}
}

// Tables returns every forum table definition.
func Tables() []table.Definition {
	return []table.Definition{Authors(), Threads(), Replies(), Summaries(), Tags(), Taggings()}
}
