package sql

import (
	"context"
	"fmt"

	"github.com/syssam/atlas/dialect"
)

// ScanMaps scans all rows into column-name keyed maps and closes the rows.
// Byte slices are converted to strings, since MySQL returns text columns as
// []byte. The returned column slice holds the result column order.
func ScanMaps(rows ColumnScanner) ([]map[string]any, []string, error) {
	defer rows.Close()
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("sql/scan: failed getting column names: %w", err)
	}
	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("sql/scan: %w", err)
		}
		m := make(map[string]any, len(columns))
		for i, c := range columns {
			if b, ok := values[i].([]byte); ok {
				m[c] = string(b)
				continue
			}
			m[c] = values[i]
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return out, columns, nil
}

// QueryMaps runs the statement built by q on the given querier and scans
// the result with ScanMaps.
func QueryMaps(ctx context.Context, ex dialect.ExecQuerier, q Querier) ([]map[string]any, []string, error) {
	query, args := q.Query()
	if e, ok := q.(interface{ Err() error }); ok && e.Err() != nil {
		return nil, nil, e.Err()
	}
	if args == nil {
		args = []any{}
	}
	rows := &Rows{}
	if err := ex.Query(ctx, query, args, rows); err != nil {
		return nil, nil, err
	}
	return ScanMaps(rows)
}

// QueryInt runs a statement that selects a single integer, such as COUNT(*).
func QueryInt(ctx context.Context, ex dialect.ExecQuerier, q Querier) (int, error) {
	rows, columns, err := QueryMaps(ctx, ex, q)
	if err != nil {
		return 0, err
	}
	if len(rows) != 1 || len(columns) != 1 {
		return 0, fmt.Errorf("sql/scan: expected one value, got %d rows", len(rows))
	}
	switch v := rows[0][columns[0]].(type) {
	case int64:
		return int(v), nil
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		var n int
		if _, err := fmt.Sscan(v, &n); err != nil {
			return 0, fmt.Errorf("sql/scan: %w", err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("sql/scan: unexpected type %T for integer value", v)
	}
}
