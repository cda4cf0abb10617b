package relationship

import (
	"github.com/syssam/atlas/contrib/dataloader"
	"github.com/syssam/atlas/mapper"
	"github.com/syssam/atlas/table"
)

// NullKey is the group key of nil values.
const NullKey = table.NullKey

// Key returns the string form of a column value used to match native and
// foreign records. Values of different integer widths share a key.
func Key(v any) string {
	return table.Key(v)
}

// GroupRecords groups records by the value of col. Records with a nil
// value share NullKey; each group keeps the order of records.
func GroupRecords(records []*mapper.Record, col string) map[string][]*mapper.Record {
	return dataloader.GroupByKey(records, func(r *mapper.Record) string {
		return Key(r.Get(col))
	})
}

// buckets returns the group of every native record, in native order.
// Records with a nil value get no group.
func buckets(natives []*mapper.Record, col string, groups map[string][]*mapper.Record) [][]*mapper.Record {
	delete(groups, NullKey)
	keys := make([]string, len(natives))
	for i, n := range natives {
		keys[i] = Key(n.Get(col))
	}
	return dataloader.OrderGroupsByKeys(keys, groups)
}

// UniqueValues returns the distinct non-nil values of col in the order
// they are first seen.
func UniqueValues(records []*mapper.Record, col string) []any {
	seen := make(map[string]bool, len(records))
	var out []any
	for _, r := range records {
		v := r.Get(col)
		if v == nil {
			continue
		}
		k := Key(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out
}
