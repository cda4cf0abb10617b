package mapper

import (
	"encoding/json"
	"fmt"
	"iter"
	"slices"

	"github.com/syssam/atlas/table"
)

// RecordSet is an ordered collection of records of one mapper. Every
// record gets an integer key on append; keys stay with their record and
// are not reused after removal.
type RecordSet struct {
	mapper    string
	keys      []int
	records   map[int]*Record
	next      int
	newRecord func(fields map[string]any) (*Record, error)
}

// NewRecordSet returns a set of the named mapper holding the records.
func NewRecordSet(mapperName string, records ...*Record) *RecordSet {
	s := &RecordSet{mapper: mapperName, records: make(map[int]*Record, len(records))}
	for _, r := range records {
		s.Append(r)
	}
	return s
}

// MapperName returns the mapper name of the set.
func (s *RecordSet) MapperName() string { return s.mapper }

// Len returns the number of records.
func (s *RecordSet) Len() int { return len(s.keys) }

// IsEmpty reports whether the set has no records.
func (s *RecordSet) IsEmpty() bool { return len(s.keys) == 0 }

// Keys returns the record keys in order.
func (s *RecordSet) Keys() []int { return slices.Clone(s.keys) }

// Get returns the record with the key, nil if there is none.
func (s *RecordSet) Get(key int) *Record { return s.records[key] }

// Records returns the records in order.
func (s *RecordSet) Records() []*Record {
	out := make([]*Record, len(s.keys))
	for i, k := range s.keys {
		out[i] = s.records[k]
	}
	return out
}

// All iterates over the keys and records in order.
func (s *RecordSet) All() iter.Seq2[int, *Record] {
	return func(yield func(int, *Record) bool) {
		for _, k := range slices.Clone(s.keys) {
			if !yield(k, s.records[k]) {
				return
			}
		}
	}
}

// Append adds a record and returns its key.
func (s *RecordSet) Append(r *Record) int {
	k := s.next
	s.next++
	s.keys = append(s.keys, k)
	s.records[k] = r
	return k
}

// AppendNew creates a new record of the set's mapper and appends it.
func (s *RecordSet) AppendNew(fields map[string]any) (*Record, error) {
	if s.newRecord == nil {
		return nil, fmt.Errorf("atlas: record set of %s cannot create records", s.mapper)
	}
	r, err := s.newRecord(fields)
	if err != nil {
		return nil, err
	}
	s.Append(r)
	return r, nil
}

func matches(r *Record, where map[string]any) bool {
	for col, want := range where {
		if table.Key(r.Get(col)) != table.Key(want) {
			return false
		}
	}
	return true
}

// GetOneBy returns the first record whose fields equal the given values,
// nil if none does.
func (s *RecordSet) GetOneBy(where map[string]any) *Record {
	for _, k := range s.keys {
		if r := s.records[k]; matches(r, where) {
			return r
		}
	}
	return nil
}

// GetAllBy returns the matching records under their keys.
func (s *RecordSet) GetAllBy(where map[string]any) map[int]*Record {
	out := make(map[int]*Record)
	for _, k := range s.keys {
		if r := s.records[k]; matches(r, where) {
			out[k] = r
		}
	}
	return out
}

// RemoveOneBy removes and returns the first matching record.
func (s *RecordSet) RemoveOneBy(where map[string]any) *Record {
	for i, k := range s.keys {
		if r := s.records[k]; matches(r, where) {
			s.keys = slices.Delete(s.keys, i, i+1)
			delete(s.records, k)
			return r
		}
	}
	return nil
}

// RemoveAllBy removes and returns every matching record under its key.
func (s *RecordSet) RemoveAllBy(where map[string]any) map[int]*Record {
	out := make(map[int]*Record)
	kept := s.keys[:0]
	for _, k := range s.keys {
		if r := s.records[k]; matches(r, where) {
			out[k] = r
			delete(s.records, k)
			continue
		}
		kept = append(kept, k)
	}
	s.keys = kept
	return out
}

// MarshalJSON encodes the records as an array.
func (s *RecordSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Records())
}
