package mapper

import (
	"encoding/json"

	"github.com/syssam/atlas"
	"github.com/syssam/atlas/table"
)

// Record is one row of a mapper plus its relation slots.
type Record struct {
	mapper  string
	row     *table.Row
	related *Related
}

// NewRecord returns a record of the named mapper.
func NewRecord(mapperName string, row *table.Row, related *Related) *Record {
	if related == nil {
		related = NewRelated()
	}
	return &Record{mapper: mapperName, row: row, related: related}
}

// MapperName returns the name of the mapper the record belongs to.
func (r *Record) MapperName() string { return r.mapper }

// Row returns the underlying row. Rows are shared through the table's
// identity map.
func (r *Record) Row() *table.Row { return r.row }

// Related returns the relation slots.
func (r *Record) Related() *Related { return r.related }

// Records returns the record itself, so a single record can be stitched
// like a set.
func (r *Record) Records() []*Record { return []*Record{r} }

// Has reports whether name is a column or a relation of the record.
func (r *Record) Has(name string) bool {
	return r.row.Has(name) || r.related.Has(name)
}

// Get returns a column value or a relation slot. Unknown names and unset
// slots return nil.
func (r *Record) Get(name string) any {
	if r.row.Has(name) {
		return r.row.Get(name)
	}
	return r.related.Get(name)
}

// Set assigns a column value or a relation slot.
func (r *Record) Set(name string, v any) error {
	switch {
	case r.row.Has(name):
		return r.row.Set(name, v)
	case r.related.Has(name):
		return r.related.Set(name, v)
	default:
		return atlas.NewUnknownFieldError(r.mapper, name)
	}
}

// Fields returns the column values and the set relation slots.
func (r *Record) Fields() map[string]any {
	out := r.row.Values()
	for k, v := range r.related.Fields() {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes the columns and the relation slots as one object.
func (r *Record) MarshalJSON() ([]byte, error) {
	out := r.row.Values()
	for _, n := range r.related.Names() {
		out[n] = r.related.Get(n)
	}
	return json.Marshal(out)
}
