// Package sql provides the SQL statement builders, the database/sql backed
// driver and the driver wrappers used by the table gateways.
//
// # Builder Types
//
//   - Builder: low-level string builder with identifier quoting and placeholders
//   - Selector: SELECT builder with joins, predicates, ordering and pagination
//   - InsertBuilder: INSERT builder with RETURNING support
//   - UpdateBuilder: UPDATE builder with SET and WHERE clauses
//   - DeleteBuilder: DELETE builder with WHERE predicates
//
// DialectBuilder is the query factory. It stamps every builder it creates
// with its dialect, so quoting and placeholders follow the connection:
//
//	q := sql.Dialect(dialect.Postgres)
//	q.Select().From(sql.Table("threads")).Where(sql.In("author_id", 1, 2))
//	// SELECT * FROM "threads" WHERE "author_id" IN ($1, $2)
//
// # Predicates
//
//	sql.EQ("name", "john")           // "name" = ?
//	sql.GT("reply_count", 10)        // "reply_count" > ?
//	sql.Contains("subject", "go")    // "subject" LIKE '%go%'
//	sql.IsNull("deleted_at")         // "deleted_at" IS NULL
//	sql.In("thread_id", 1, 2, 3)     // "thread_id" IN (?, ?, ?)
//	sql.In("thread_id")              // 1 = 0
//
// Or and Not parenthesize composite operands, and multiple Where calls
// on a selector are joined with AND.
//
// # Drivers
//
// Driver adapts a *sql.DB to dialect.Driver. StatsDriver counts statements
// and reports slow ones, DebugDriver logs each statement through log/slog.
// Both wrap any dialect.Driver and can be stacked.
//
// # Results
//
// ScanMaps and QueryMaps read result sets into column keyed maps, the
// shape table rows are built from. ConstraintOf classifies driver errors
// raised by unique, foreign key, not null and check constraints.
package sql
