package mapper

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/syssam/atlas"
)

type noRecord struct{}

func (noRecord) String() string { return "NoRecord" }

// MarshalJSON encodes a missing match as false.
func (noRecord) MarshalJSON() ([]byte, error) { return []byte("false"), nil }

// NoRecord is the value of a to-one relation slot that was stitched but
// found no matching foreign record.
var NoRecord any = noRecord{}

// Related holds the relation slots of one Record. A slot is unset until
// its relation is stitched; then it holds a *Record, a *RecordSet or
// NoRecord.
type Related struct {
	names []string
	slots map[string]any
}

// NewRelated returns a Related with the given, unset slots.
func NewRelated(names ...string) *Related {
	return &Related{names: slices.Clone(names), slots: make(map[string]any, len(names))}
}

// Names returns the slot names.
func (r *Related) Names() []string { return slices.Clone(r.names) }

// Has reports whether the slot exists.
func (r *Related) Has(name string) bool { return slices.Contains(r.names, name) }

// IsSet reports whether the slot was stitched or assigned.
func (r *Related) IsSet(name string) bool {
	_, ok := r.slots[name]
	return ok
}

// Get returns the slot value, nil when unset.
func (r *Related) Get(name string) any { return r.slots[name] }

// Set assigns a slot.
func (r *Related) Set(name string, v any) error {
	if !r.Has(name) {
		return atlas.NewUnknownFieldError("", name)
	}
	switch v.(type) {
	case *Record, *RecordSet, noRecord:
	default:
		return fmt.Errorf("atlas: related %q: unexpected value type %T", name, v)
	}
	r.slots[name] = v
	return nil
}

// Unset clears a slot.
func (r *Related) Unset(name string) {
	delete(r.slots, name)
}

// Fields returns the set slots.
func (r *Related) Fields() map[string]any {
	out := make(map[string]any, len(r.slots))
	for _, n := range r.names {
		if v, ok := r.slots[n]; ok {
			out[n] = v
		}
	}
	return out
}

// MarshalJSON encodes the set slots; unset slots are null.
func (r *Related) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.names))
	for _, n := range r.names {
		out[n] = r.slots[n]
	}
	return json.Marshal(out)
}
