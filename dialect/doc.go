// Package dialect holds the seam between the table gateways and a
// database connection.
//
// The connection locator hands out Driver values; a gateway reads with
// the locator's read connection and writes with its write connection. The
// dialect name of that driver picks the placeholder and quoting style of
// the statements built by dialect/sql. The names double as database/sql
// driver names: "sqlite" is registered by modernc.org/sqlite, "postgres"
// by github.com/lib/pq and "mysql" by github.com/go-sql-driver/mysql.
//
// A transaction travels in the context. Once a Tx is attached with
// NewTxContext, every gateway statement run with that context goes to the
// transaction, reads included, and the row cache is bypassed:
//
//	tx, err := drv.Tx(ctx)
//	if err != nil {
//	    return err
//	}
//	ctx = dialect.NewTxContext(ctx, tx)
//
// Most callers use orm.Atlas.WithTx, which also commits or rolls back and
// resets the identity maps after a rollback.
package dialect
