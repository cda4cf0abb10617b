package mapper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/syssam/atlas"
	"github.com/syssam/atlas/dialect/sql"
	"github.com/syssam/atlas/table"
)

// Stitchable is implemented by Record and RecordSet, the two targets a
// relation can be stitched into.
type Stitchable interface {
	MapperName() string
	Records() []*Record
}

// With requests a relation to be stitched into fetched records. Custom,
// if set, receives the select of the foreign mapper; it may filter it or
// request nested relations.
type With struct {
	Name   string
	Custom func(*Select)
}

// Relationships stitches related records into the records of one mapper.
type Relationships interface {
	// Fields returns the relation names in registration order.
	Fields() []string
	// Stitch fetches and assigns the requested relations.
	Stitch(ctx context.Context, target Stitchable, with []With) error
}

// Events are optional hooks around the writes and selects of a Mapper.
type Events struct {
	ModifySelect func(ctx context.Context, m *Mapper, sel *Select)

	BeforeInsert func(ctx context.Context, m *Mapper, r *Record) error
	AfterInsert  func(ctx context.Context, m *Mapper, r *Record) error
	BeforeUpdate func(ctx context.Context, m *Mapper, r *Record) error
	AfterUpdate  func(ctx context.Context, m *Mapper, r *Record) error
	BeforeDelete func(ctx context.Context, m *Mapper, r *Record) error
	AfterDelete  func(ctx context.Context, m *Mapper, r *Record) error
}

// Mapper turns the rows of one table into Records.
type Mapper struct {
	name   string
	table  *table.Table
	events Events
	rels   Relationships
	logger *slog.Logger
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithEvents sets the mapper events.
func WithEvents(e Events) Option {
	return func(m *Mapper) { m.events = e }
}

// WithRelationships sets the relationships of the mapper.
func WithRelationships(r Relationships) Option {
	return func(m *Mapper) { m.rels = r }
}

// WithLogger sets the mapper logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Mapper) {
		if l != nil {
			m.logger = l
		}
	}
}

// New returns a mapper over the table.
func New(name string, t *table.Table, opts ...Option) (*Mapper, error) {
	if name == "" {
		return nil, atlas.NewInvalidDefinitionError("mapper", name, "empty mapper name")
	}
	if t == nil {
		return nil, atlas.NewInvalidDefinitionError("mapper", name, "no table")
	}
	m := &Mapper{name: name, table: t, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Name returns the mapper name.
func (m *Mapper) Name() string { return m.name }

// Table returns the table gateway of the mapper.
func (m *Mapper) Table() *table.Table { return m.table }

// Relationships returns the relationships of the mapper, or nil.
func (m *Mapper) Relationships() Relationships { return m.rels }

// SetRelationships replaces the relationships of the mapper. Relations
// refer to their own mapper, so they are usually set after New.
func (m *Mapper) SetRelationships(r Relationships) { m.rels = r }

func (m *Mapper) relationNames() []string {
	if m.rels == nil {
		return nil
	}
	return m.rels.Fields()
}

func (m *Mapper) newRecord(row *table.Row) *Record {
	return NewRecord(m.name, row, NewRelated(m.relationNames()...))
}

func (m *Mapper) newRecordSet(rows []*table.Row) *RecordSet {
	s := m.NewRecordSet()
	for _, r := range rows {
		s.Append(m.newRecord(r))
	}
	return s
}

// NewRecord returns a new, unsaved record. Fields may name columns or
// relations.
func (m *Mapper) NewRecord(fields map[string]any) (*Record, error) {
	related := NewRelated(m.relationNames()...)
	cols := make(map[string]any, len(fields))
	for k, v := range fields {
		switch {
		case m.table.Definition().HasColumn(k):
			cols[k] = v
		case related.Has(k):
			if err := related.Set(k, v); err != nil {
				return nil, err
			}
		default:
			return nil, atlas.NewUnknownFieldError(m.name, k)
		}
	}
	row, err := m.table.NewRow(cols)
	if err != nil {
		return nil, err
	}
	return NewRecord(m.name, row, related), nil
}

// NewRecordSet returns a set of the mapper holding the records.
// AppendNew on the set creates records with NewRecord.
func (m *Mapper) NewRecordSet(records ...*Record) *RecordSet {
	s := NewRecordSet(m.name, records...)
	s.newRecord = m.NewRecord
	return s
}

// Select starts a fetch with the given predicates.
func (m *Mapper) Select(preds ...*sql.Predicate) *Select {
	s := &Select{mapper: m, sel: m.table.Select()}
	for _, p := range preds {
		s.sel.Where(p)
	}
	return s
}

// FetchRecord returns the record with the primary key, or nil when there
// is none.
func (m *Mapper) FetchRecord(ctx context.Context, pk any, with ...string) (*Record, error) {
	row, err := m.table.FetchRow(ctx, pk)
	if err != nil || row == nil {
		return nil, err
	}
	r := m.newRecord(row)
	if err := m.stitch(ctx, r, names(with)); err != nil {
		return nil, err
	}
	return r, nil
}

// FetchRecordBy returns the first record whose columns equal the values.
func (m *Mapper) FetchRecordBy(ctx context.Context, where map[string]any, with ...string) (*Record, error) {
	return m.Select().WhereEquals(where).With(with...).FetchRecord(ctx)
}

// FetchRecordSet returns the records with the primary keys in the
// requested order. Keys without a row are skipped.
func (m *Mapper) FetchRecordSet(ctx context.Context, pks []any, with ...string) (*RecordSet, error) {
	rows, err := m.table.FetchRows(ctx, pks)
	if err != nil {
		return nil, err
	}
	s := m.newRecordSet(rows)
	if err := m.stitch(ctx, s, names(with)); err != nil {
		return nil, err
	}
	return s, nil
}

// FetchRecordSetBy returns the records whose columns equal the values.
func (m *Mapper) FetchRecordSetBy(ctx context.Context, where map[string]any, with ...string) (*RecordSet, error) {
	return m.Select().WhereEquals(where).With(with...).FetchRecordSet(ctx)
}

func (m *Mapper) stitch(ctx context.Context, target Stitchable, with []With) error {
	if len(with) == 0 || len(target.Records()) == 0 {
		return nil
	}
	if m.rels == nil {
		return atlas.NewRelationNotFoundError(m.name, with[0].Name)
	}
	return m.rels.Stitch(ctx, target, with)
}

func (m *Mapper) check(op string, r *Record) error {
	if r == nil {
		return fmt.Errorf("atlas: %s %s: nil record", op, m.name)
	}
	if r.MapperName() != m.name {
		return fmt.Errorf("atlas: %s %s: record belongs to mapper %s", op, m.name, r.MapperName())
	}
	return nil
}

// Insert inserts a new record.
func (m *Mapper) Insert(ctx context.Context, r *Record) error {
	if err := m.check("insert", r); err != nil {
		return err
	}
	if err := run(ctx, m, r, m.events.BeforeInsert); err != nil {
		return err
	}
	if err := m.table.Insert(ctx, r.Row()); err != nil {
		return err
	}
	return run(ctx, m, r, m.events.AfterInsert)
}

// Update writes the changed columns of a record.
func (m *Mapper) Update(ctx context.Context, r *Record) error {
	if err := m.check("update", r); err != nil {
		return err
	}
	if err := run(ctx, m, r, m.events.BeforeUpdate); err != nil {
		return err
	}
	if err := m.table.Update(ctx, r.Row()); err != nil {
		return err
	}
	return run(ctx, m, r, m.events.AfterUpdate)
}

// Delete deletes a record.
func (m *Mapper) Delete(ctx context.Context, r *Record) error {
	if err := m.check("delete", r); err != nil {
		return err
	}
	if err := run(ctx, m, r, m.events.BeforeDelete); err != nil {
		return err
	}
	if err := m.table.Delete(ctx, r.Row()); err != nil {
		return err
	}
	return run(ctx, m, r, m.events.AfterDelete)
}

func run(ctx context.Context, m *Mapper, r *Record, fn func(context.Context, *Mapper, *Record) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, m, r)
}

func names(with []string) []With {
	if len(with) == 0 {
		return nil
	}
	out := make([]With, len(with))
	for i, n := range with {
		out[i] = With{Name: n}
	}
	return out
}
