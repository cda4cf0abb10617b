// Package dataloader batches record lookups by primary key, for request
// scoped loading such as GraphQL resolvers that ask for one record at a
// time.
//
// A Loader fetches every key it has not seen in one query and caches the
// records for its lifetime:
//
//	m, err := a.Mapper("Author")
//	...
//	authors := dataloader.New(m, "threads")
//	recs, errs := authors.LoadMany(ctx, []any{10, 11, 10})
//
// Loaders are usually created per request and carried in the context:
//
//	ctx = dataloader.WithLoaders(ctx, &Loaders{Authors: authors})
//	loaders := dataloader.For[*Loaders](ctx)
package dataloader

import (
	"context"
	"errors"
	"sync"

	"github.com/syssam/atlas/mapper"
	"github.com/syssam/atlas/table"
)

// ErrNotFound is returned for a key without a record.
var ErrNotFound = errors.New("dataloader: record not found")

// KeyFunc extracts a key from a value.
type KeyFunc[K comparable, V any] func(V) K

// OrderByKeys returns values in the order of keys. A key without a value
// gets the zero value and ErrNotFound.
func OrderByKeys[K comparable, V any](keys []K, values []V, keyFn KeyFunc[K, V]) ([]V, []error) {
	lookup := make(map[K]V, len(values))
	for _, v := range values {
		lookup[keyFn(v)] = v
	}
	result := make([]V, len(keys))
	errs := make([]error, len(keys))
	for i, key := range keys {
		v, ok := lookup[key]
		if !ok {
			errs[i] = ErrNotFound
			continue
		}
		result[i] = v
	}
	return result, errs
}

// GroupByKey groups values by key, keeping their order within a group.
func GroupByKey[K comparable, V any](values []V, keyFn KeyFunc[K, V]) map[K][]V {
	result := make(map[K][]V)
	for _, v := range values {
		key := keyFn(v)
		result[key] = append(result[key], v)
	}
	return result
}

// OrderGroupsByKeys returns the group of every key, in key order.
func OrderGroupsByKeys[K comparable, V any](keys []K, groups map[K][]V) [][]V {
	result := make([][]V, len(keys))
	for i, key := range keys {
		result[i] = groups[key]
	}
	return result
}

// RecordKey keys a record by its primary key.
func RecordKey(r *mapper.Record) string {
	return table.Key(r.Row().PrimaryKey())
}

// Loader loads the records of one mapper by primary key. It is safe for
// concurrent use.
type Loader struct {
	m    *mapper.Mapper
	with []string

	mu    sync.Mutex
	cache map[string]*mapper.Record
}

// New returns a loader of m that stitches the named relations into the
// records it fetches.
func New(m *mapper.Mapper, with ...string) *Loader {
	return &Loader{m: m, with: with, cache: make(map[string]*mapper.Record)}
}

// Load returns the record with the primary key.
func (l *Loader) Load(ctx context.Context, pk any) (*mapper.Record, error) {
	recs, errs := l.LoadMany(ctx, []any{pk})
	return recs[0], errs[0]
}

// LoadMany returns the records of pks in order, fetching the keys not in
// the cache with one query. A key without a record gets nil and
// ErrNotFound. A failed query fails every uncached key.
func (l *Loader) LoadMany(ctx context.Context, pks []any) ([]*mapper.Record, []error) {
	keys := make([]string, len(pks))
	var missing []any
	seen := make(map[string]bool)
	l.mu.Lock()
	for i, pk := range pks {
		keys[i] = table.Key(pk)
		if _, ok := l.cache[keys[i]]; !ok && !seen[keys[i]] {
			seen[keys[i]] = true
			missing = append(missing, pk)
		}
	}
	l.mu.Unlock()

	var fetchErr error
	if len(missing) > 0 {
		set, err := l.m.FetchRecordSet(ctx, missing, l.with...)
		if err != nil {
			fetchErr = err
		} else {
			l.Prime(set.Records()...)
		}
	}

	l.mu.Lock()
	cached := make([]*mapper.Record, 0, len(keys))
	for _, k := range keys {
		if r, ok := l.cache[k]; ok {
			cached = append(cached, r)
		}
	}
	l.mu.Unlock()

	recs, errs := OrderByKeys(keys, cached, RecordKey)
	if fetchErr != nil {
		for i, k := range keys {
			if seen[k] && errs[i] != nil {
				errs[i] = fetchErr
			}
		}
	}
	return recs, errs
}

// Prime adds records to the cache, replacing cached records with the same
// primary key.
func (l *Loader) Prime(recs ...*mapper.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range recs {
		l.cache[RecordKey(r)] = r
	}
}

// Clear removes the primary keys from the cache.
func (l *Loader) Clear(pks ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, pk := range pks {
		delete(l.cache, table.Key(pk))
	}
}

type ctxKey struct{}

// WithLoaders returns a context carrying loaders.
func WithLoaders[T any](ctx context.Context, loaders T) context.Context {
	return context.WithValue(ctx, ctxKey{}, loaders)
}

// For returns the loaders carried by ctx, or the zero value.
func For[T any](ctx context.Context) T {
	v, _ := ctx.Value(ctxKey{}).(T)
	return v
}
