package table

import (
	"slices"
	"sync"

	"github.com/syssam/atlas"
)

// Locator resolves table names to Tables.
type Locator struct {
	mu     sync.RWMutex
	tables map[string]*Table
}

// NewLocator returns an empty Locator.
func NewLocator() *Locator {
	return &Locator{tables: make(map[string]*Table)}
}

// Set registers the table under its name, replacing any previous one.
func (l *Locator) Set(t *Table) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tables[t.Name()] = t
}

// Get returns the named table.
func (l *Locator) Get(name string) (*Table, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.tables[name]
	if !ok {
		return nil, atlas.NewTableNotFoundError(name)
	}
	return t, nil
}

// Has reports whether the table is registered.
func (l *Locator) Has(name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.tables[name]
	return ok
}

// Names returns the registered table names, sorted.
func (l *Locator) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.tables))
	for n := range l.tables {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
