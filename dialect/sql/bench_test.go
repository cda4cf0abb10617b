package sql

import (
	"testing"

	"github.com/syssam/atlas/dialect"
)

var benchDialects = []string{dialect.SQLite, dialect.MySQL, dialect.Postgres}

func BenchmarkInsertBuilder_Default(b *testing.B) {
	for _, d := range benchDialects {
		b.Run(d, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				Dialect(d).Insert("threads").Default().Returning("thread_id").Query()
			}
		})
	}
}

func BenchmarkInsertBuilder_Row(b *testing.B) {
	for _, d := range benchDialects {
		b.Run(d, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				Dialect(d).Insert("threads").
					Columns("thread_id", "author_id", "subject", "body", "created_at").
					Values(1, 2, "Hello", "World", "2009-11-10 23:00:00").
					Returning("thread_id").
					Query()
			}
		})
	}
}

func BenchmarkSelectBuilder_Stitch(b *testing.B) {
	ids := make([]any, 100)
	for i := range ids {
		ids[i] = i + 1
	}
	for _, d := range benchDialects {
		b.Run(d, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				Dialect(d).Select().
					From(Table("replies")).
					Where(In("thread_id", ids...)).
					Query()
			}
		})
	}
}

func BenchmarkSelectBuilder_WithJoins(b *testing.B) {
	for _, d := range benchDialects {
		b.Run(d, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				threads := Table("threads").As("t")
				authors := Table("authors").As("a")
				Dialect(d).Select(threads.C("subject"), authors.C("name")).
					From(threads).
					Join(authors).On(threads.C("author_id"), authors.C("author_id")).
					Where(And(NotNull(threads.C("body")), Or(GT(threads.C("thread_id"), 10), Contains(authors.C("name"), "a")))).
					OrderBy(Desc(threads.C("created_at"))).
					Limit(10).
					Offset(20).
					Query()
			}
		})
	}
}

func BenchmarkUpdateBuilder(b *testing.B) {
	for _, d := range benchDialects {
		b.Run(d, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				Dialect(d).Update("threads").
					Set("subject", "Hello").
					SetNull("body").
					Where(EQ("thread_id", 1)).
					Query()
			}
		})
	}
}

func BenchmarkDeleteBuilder(b *testing.B) {
	for _, d := range benchDialects {
		b.Run(d, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				Dialect(d).Delete("replies").
					Where(In("reply_id", 1, 2, 3)).
					Query()
			}
		})
	}
}
