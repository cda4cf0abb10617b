package table

import (
	"fmt"
	"sync"

	"github.com/syssam/atlas"
)

// IdentityMap maps primary key values to the rows of one table, so a row
// selected twice is represented by one *Row.
type IdentityMap struct {
	mu   sync.Mutex
	rows map[string]*Row
}

// NewIdentityMap returns an empty identity map.
func NewIdentityMap() *IdentityMap {
	return &IdentityMap{rows: make(map[string]*Row)}
}

// Get returns the row mapped to the primary key.
func (m *IdentityMap) Get(pk any) (*Row, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[Key(pk)]
	return r, ok
}

// Set maps the row under its primary key. Mapping a different row under
// a key already in use fails with atlas.ErrRowAlreadyMapped.
func (m *IdentityMap) Set(r *Row) error {
	pk := r.PrimaryKey()
	if pk == nil {
		return fmt.Errorf("atlas: cannot map row of %s without primary key", r.Table())
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := Key(pk)
	if cur, ok := m.rows[k]; ok && cur != r {
		return fmt.Errorf("%w: %s %v", atlas.ErrRowAlreadyMapped, r.Table(), pk)
	}
	m.rows[k] = r
	return nil
}

// getOrSet returns the row mapped under the primary key of values, or
// maps a clean row built from values. A mapped clean row takes the
// selected values; rows with unsaved changes keep theirs. Values missing
// a column build a row that is returned but never mapped.
func (m *IdentityMap) getOrSet(def *Definition, values map[string]any) *Row {
	k := Key(values[def.PrimaryKey])
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rows[k]; ok {
		if r.status == StatusClean {
			r.refresh(values)
		}
		return r
	}
	r := newRow(def, values, StatusClean)
	if complete(def, values) {
		m.rows[k] = r
	}
	return r
}

func complete(def *Definition, values map[string]any) bool {
	for _, c := range def.Columns {
		if _, ok := values[c.Name]; !ok {
			return false
		}
	}
	return true
}

// Delete removes the primary key from the map.
func (m *IdentityMap) Delete(pk any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, Key(pk))
}

// Len returns the number of mapped rows.
func (m *IdentityMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// Reset removes all rows.
func (m *IdentityMap) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.rows)
}
