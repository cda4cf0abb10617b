package orm

import (
	"context"
	"errors"
	"fmt"

	"github.com/syssam/atlas"
	"github.com/syssam/atlas/dialect"
	"github.com/syssam/atlas/dialect/sql"
	"github.com/syssam/atlas/mapper"
	"github.com/syssam/atlas/table"
)

// Atlas is the entry point for fetching and writing records by mapper
// name.
type Atlas struct {
	c *Container
}

// Mapper returns the named mapper.
func (a *Atlas) Mapper(name string) (*mapper.Mapper, error) {
	return a.c.mappers.Get(name)
}

// Select starts a fetch on the named mapper. An unknown mapper yields a
// select whose terminals return the lookup error.
func (a *Atlas) Select(name string, preds ...*sql.Predicate) *mapper.Select {
	m, err := a.Mapper(name)
	if err != nil {
		return mapper.Failed(err)
	}
	return m.Select(preds...)
}

// FetchRecord returns the record of the named mapper with the primary
// key, or nil when there is none.
func (a *Atlas) FetchRecord(ctx context.Context, name string, pk any, with ...string) (*mapper.Record, error) {
	m, err := a.Mapper(name)
	if err != nil {
		return nil, err
	}
	return m.FetchRecord(ctx, pk, with...)
}

// FetchRecordBy returns the first record whose columns equal the values.
func (a *Atlas) FetchRecordBy(ctx context.Context, name string, where map[string]any, with ...string) (*mapper.Record, error) {
	m, err := a.Mapper(name)
	if err != nil {
		return nil, err
	}
	return m.FetchRecordBy(ctx, where, with...)
}

// FetchRecordSet returns the records with the primary keys.
func (a *Atlas) FetchRecordSet(ctx context.Context, name string, pks []any, with ...string) (*mapper.RecordSet, error) {
	m, err := a.Mapper(name)
	if err != nil {
		return nil, err
	}
	return m.FetchRecordSet(ctx, pks, with...)
}

// FetchRecordSetBy returns the records whose columns equal the values.
func (a *Atlas) FetchRecordSetBy(ctx context.Context, name string, where map[string]any, with ...string) (*mapper.RecordSet, error) {
	m, err := a.Mapper(name)
	if err != nil {
		return nil, err
	}
	return m.FetchRecordSetBy(ctx, where, with...)
}

// NewRecord returns a new, unsaved record of the named mapper.
func (a *Atlas) NewRecord(name string, fields map[string]any) (*mapper.Record, error) {
	m, err := a.Mapper(name)
	if err != nil {
		return nil, err
	}
	return m.NewRecord(fields)
}

// NewRecordSet returns a set of the named mapper.
func (a *Atlas) NewRecordSet(name string, records ...*mapper.Record) (*mapper.RecordSet, error) {
	m, err := a.Mapper(name)
	if err != nil {
		return nil, err
	}
	return m.NewRecordSet(records...), nil
}

func (a *Atlas) mapperOf(r *mapper.Record) (*mapper.Mapper, error) {
	if r == nil {
		return nil, errors.New("orm: nil record")
	}
	return a.Mapper(r.MapperName())
}

// Insert inserts a record through its mapper.
func (a *Atlas) Insert(ctx context.Context, r *mapper.Record) error {
	m, err := a.mapperOf(r)
	if err != nil {
		return err
	}
	return m.Insert(ctx, r)
}

// Update updates a record through its mapper.
func (a *Atlas) Update(ctx context.Context, r *mapper.Record) error {
	m, err := a.mapperOf(r)
	if err != nil {
		return err
	}
	return m.Update(ctx, r)
}

// Delete deletes a record through its mapper.
func (a *Atlas) Delete(ctx context.Context, r *mapper.Record) error {
	m, err := a.mapperOf(r)
	if err != nil {
		return err
	}
	return m.Delete(ctx, r)
}

// WithTx runs fn in a transaction on the write connection. The
// transaction is committed when fn returns nil and rolled back when it
// returns an error or panics. A rollback clears every identity map, since
// mapped rows may hold values that were never committed. A commit drops
// the cached selects of the written tables.
func (a *Atlas) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := dialect.TxFromContext(ctx); ok {
		return atlas.ErrTxStarted
	}
	drv, err := a.c.conns.Write()
	if err != nil {
		return err
	}
	tx, err := drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("orm: begin transaction: %w", err)
	}
	defer func() {
		if v := recover(); v != nil {
			_ = tx.Rollback()
			a.reset()
			panic(v)
		}
	}()
	txCtx, writes := table.TrackWrites(dialect.NewTxContext(ctx, tx))
	if err := fn(txCtx); err != nil {
		a.reset()
		if rerr := tx.Rollback(); rerr != nil {
			return errors.Join(err, &atlas.RollbackError{Err: rerr})
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		a.reset()
		return fmt.Errorf("orm: commit transaction: %w", err)
	}
	for _, t := range writes.Tables() {
		t.InvalidateCache(ctx)
	}
	return nil
}

func (a *Atlas) reset() {
	for _, name := range a.c.tables.Names() {
		if t, err := a.c.tables.Get(name); err == nil {
			t.IdentityMap().Reset()
		}
	}
	a.c.logger.Debug("identity maps reset after rollback")
}
