package table

import (
	"bytes"
	"fmt"
	"maps"
	"reflect"
	"strconv"

	"github.com/syssam/atlas"
)

// Status is the persistence state of a row.
type Status int

// Row statuses.
const (
	StatusNew Status = iota
	StatusClean
	StatusModified
	StatusDeleted
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusClean:
		return "clean"
	case StatusModified:
		return "modified"
	case StatusDeleted:
		return "deleted"
	default:
		return "Status(" + strconv.Itoa(int(s)) + ")"
	}
}

// Row holds the column values of one table row and remembers the values
// it was loaded or last saved with.
type Row struct {
	def     *Definition
	values  map[string]any
	initial map[string]any
	status  Status
}

func newRow(def *Definition, values map[string]any, status Status) *Row {
	r := &Row{def: def, values: make(map[string]any, len(def.Columns)), status: status}
	for _, c := range def.Columns {
		r.values[c.Name] = values[c.Name]
	}
	if status == StatusClean {
		r.initial = maps.Clone(r.values)
	}
	return r
}

// Table returns the table name of the row.
func (r *Row) Table() string { return r.def.Name }

// Status returns the row status.
func (r *Row) Status() Status { return r.status }

// Has reports whether the row has the named column.
func (r *Row) Has(col string) bool {
	_, ok := r.values[col]
	return ok
}

// Get returns the value of the named column, nil for unknown columns.
func (r *Row) Get(col string) any { return r.values[col] }

// Set sets a column value. Deleted rows cannot be changed.
func (r *Row) Set(col string, v any) error {
	if !r.Has(col) {
		return atlas.NewUnknownFieldError(r.def.Name, col)
	}
	if r.status == StatusDeleted {
		return fmt.Errorf("atlas: row of %s is deleted", r.def.Name)
	}
	r.values[col] = v
	if r.status == StatusClean && r.isModified() {
		r.status = StatusModified
	} else if r.status == StatusModified && !r.isModified() {
		r.status = StatusClean
	}
	return nil
}

// PrimaryKey returns the primary key value.
func (r *Row) PrimaryKey() any { return r.values[r.def.PrimaryKey] }

// Columns returns the column names in definition order.
func (r *Row) Columns() []string { return r.def.ColumnNames() }

// Values returns a copy of the column values.
func (r *Row) Values() map[string]any { return maps.Clone(r.values) }

// Initial returns a copy of the values the row was loaded or last saved with.
func (r *Row) Initial() map[string]any { return maps.Clone(r.initial) }

// Modified returns the columns whose value differs from the initial value.
// For new rows it returns every non-nil value.
func (r *Row) Modified() map[string]any {
	out := make(map[string]any)
	for _, c := range r.def.Columns {
		v := r.values[c.Name]
		if r.initial == nil {
			if v != nil {
				out[c.Name] = v
			}
			continue
		}
		if !equal(v, r.initial[c.Name]) {
			out[c.Name] = v
		}
	}
	return out
}

func (r *Row) isModified() bool {
	for k, v := range r.values {
		if !equal(v, r.initial[k]) {
			return true
		}
	}
	return false
}

func (r *Row) markClean() {
	r.initial = maps.Clone(r.values)
	r.status = StatusClean
}

func (r *Row) markDeleted() {
	r.status = StatusDeleted
}

// refresh replaces the values of a clean row with freshly selected ones.
// Columns the statement did not select keep their values.
func (r *Row) refresh(values map[string]any) {
	for _, c := range r.def.Columns {
		if v, ok := values[c.Name]; ok {
			r.values[c.Name] = v
		}
	}
	r.markClean()
}

func equal(a, b any) bool {
	if ab, ok := a.([]byte); ok {
		bb, ok := b.([]byte)
		return ok && bytes.Equal(ab, bb)
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if reflect.TypeOf(a).Comparable() && reflect.TypeOf(b).Comparable() && a == b {
		return true
	}
	return Key(a) == Key(b)
}

// NullKey is the key of nil values.
const NullKey = "\x00null"

// Key returns the string form of a column value used for identity map and
// grouping keys. Integers of any width and their decimal strings share a
// key, so a value read back from the database matches the one written.
func Key(v any) string {
	switch v := v.(type) {
	case nil:
		return NullKey
	case string:
		return v
	case []byte:
		return string(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
