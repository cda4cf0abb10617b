package table

import (
	"context"
	"sync"
)

type writesCtxKey struct{}

// Writes collects the tables written through a context, so their caches
// can be dropped again once a transaction commits. Reads outside the
// transaction may cache rows that the commit makes stale.
type Writes struct {
	mu     sync.Mutex
	tables []*Table
}

// TrackWrites returns a context recording the tables written through it.
func TrackWrites(parent context.Context) (context.Context, *Writes) {
	w := &Writes{}
	return context.WithValue(parent, writesCtxKey{}, w), w
}

func (w *Writes) add(t *Table) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, cur := range w.tables {
		if cur == t {
			return
		}
	}
	w.tables = append(w.tables, t)
}

// Tables returns the written tables in first-write order.
func (w *Writes) Tables() []*Table {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*Table(nil), w.tables...)
}
