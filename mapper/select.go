package mapper

import (
	"context"
	"reflect"
	"slices"

	"github.com/syssam/atlas/dialect/sql"
	"github.com/syssam/atlas/table"
)

// Select is a fetch over one mapper: a table selector plus the relations
// to stitch into the result.
type Select struct {
	mapper *Mapper
	sel    *sql.Selector
	with   []With
	err    error
}

// Failed returns a select whose terminals all fail with err.
func Failed(err error) *Select {
	return &Select{err: err}
}

// Mapper returns the mapper of the select.
func (s *Select) Mapper() *Mapper { return s.mapper }

// Selector returns the underlying table selector.
func (s *Select) Selector() *sql.Selector { return s.sel }

// Err returns the error of a failed select.
func (s *Select) Err() error { return s.err }

// Where appends predicates to the WHERE clause.
func (s *Select) Where(preds ...*sql.Predicate) *Select {
	if s.err != nil {
		return s
	}
	for _, p := range preds {
		s.sel.Where(p)
	}
	return s
}

// WhereEquals appends one predicate per column: IS NULL for nil values,
// IN for slices and = otherwise.
func (s *Select) WhereEquals(where map[string]any) *Select {
	if s.err != nil {
		return s
	}
	cols := make([]string, 0, len(where))
	for c := range where {
		cols = append(cols, c)
	}
	slices.Sort(cols)
	for _, c := range cols {
		s.sel.Where(equals(c, where[c]))
	}
	return s
}

func equals(col string, v any) *sql.Predicate {
	if v == nil {
		return sql.IsNull(col)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
		args := make([]any, rv.Len())
		for i := range args {
			args[i] = rv.Index(i).Interface()
		}
		return sql.In(col, args...)
	}
	return sql.EQ(col, v)
}

// OrderBy appends ORDER BY columns; see sql.Asc and sql.Desc.
func (s *Select) OrderBy(columns ...string) *Select {
	if s.err == nil {
		s.sel.OrderBy(columns...)
	}
	return s
}

// Limit sets the LIMIT clause.
func (s *Select) Limit(n int) *Select {
	if s.err == nil {
		s.sel.Limit(n)
	}
	return s
}

// Offset sets the OFFSET clause.
func (s *Select) Offset(n int) *Select {
	if s.err == nil {
		s.sel.Offset(n)
	}
	return s
}

// Modify calls fn with the underlying selector.
func (s *Select) Modify(fn func(*sql.Selector)) *Select {
	if s.err == nil && fn != nil {
		fn(s.sel)
	}
	return s
}

// With requests relations to be stitched into the fetched records.
func (s *Select) With(names ...string) *Select {
	for _, n := range names {
		s.with = append(s.with, With{Name: n})
	}
	return s
}

// WithFunc requests a relation whose foreign select is passed to fn.
func (s *Select) WithFunc(name string, fn func(*Select)) *Select {
	s.with = append(s.with, With{Name: name, Custom: fn})
	return s
}

// prepare returns a copy of the selector with the mapper's ModifySelect
// applied, so a Select can run more than once.
func (s *Select) prepare(ctx context.Context) *sql.Selector {
	c := &Select{mapper: s.mapper, sel: s.sel.Clone(), with: s.with}
	if fn := s.mapper.events.ModifySelect; fn != nil {
		fn(ctx, s.mapper, c)
	}
	return c.sel
}

// FetchRows returns the selected rows.
func (s *Select) FetchRows(ctx context.Context) ([]*table.Row, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.mapper.table.SelectRows(ctx, s.prepare(ctx))
}

// FetchRecord returns the first selected record, or nil when there is
// none.
func (s *Select) FetchRecord(ctx context.Context) (*Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	rows, err := s.mapper.table.SelectRows(ctx, s.prepare(ctx).Limit(1))
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	r := s.mapper.newRecord(rows[0])
	if err := s.mapper.stitch(ctx, r, s.with); err != nil {
		return nil, err
	}
	return r, nil
}

// FetchRecordSet returns the selected records; the set is empty when
// nothing matches.
func (s *Select) FetchRecordSet(ctx context.Context) (*RecordSet, error) {
	if s.err != nil {
		return nil, s.err
	}
	rows, err := s.mapper.table.SelectRows(ctx, s.prepare(ctx))
	if err != nil {
		return nil, err
	}
	set := s.mapper.newRecordSet(rows)
	if err := s.mapper.stitch(ctx, set, s.with); err != nil {
		return nil, err
	}
	return set, nil
}

// FetchCount returns the number of matching rows, ignoring order, limit
// and offset.
func (s *Select) FetchCount(ctx context.Context) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.mapper.table.Count(ctx, s.prepare(ctx))
}
