package mapper

import (
	"slices"
	"sync"

	"github.com/syssam/atlas"
)

// Locator resolves mapper names to Mappers. Relations look their foreign
// mapper up here when they are first used.
type Locator struct {
	mu      sync.RWMutex
	mappers map[string]*Mapper
}

// NewLocator returns an empty Locator.
func NewLocator() *Locator {
	return &Locator{mappers: make(map[string]*Mapper)}
}

// Set registers the mapper under its name.
func (l *Locator) Set(m *Mapper) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mappers[m.Name()] = m
}

// Get returns the named mapper or a MapperNotFoundError.
func (l *Locator) Get(name string) (*Mapper, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.mappers[name]
	if !ok {
		return nil, atlas.NewMapperNotFoundError(name)
	}
	return m, nil
}

// Has reports whether the mapper is registered.
func (l *Locator) Has(name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.mappers[name]
	return ok
}

// Names returns the registered mapper names, sorted.
func (l *Locator) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.mappers))
	for n := range l.mappers {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Each calls fn for every mapper in name order.
func (l *Locator) Each(fn func(*Mapper)) {
	for _, n := range l.Names() {
		if m, err := l.Get(n); err == nil {
			fn(m)
		}
	}
}
