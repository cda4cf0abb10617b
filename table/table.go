package table

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/syssam/atlas"
	"github.com/syssam/atlas/connection"
	"github.com/syssam/atlas/dialect"
	"github.com/syssam/atlas/dialect/sql"
)

// Events are optional hooks around the statements of a Table. Before and
// After hooks abort the operation by returning an error; Modify hooks
// may change the statement before it runs.
type Events struct {
	ModifySelect func(ctx context.Context, t *Table, sel *sql.Selector)

	BeforeInsert func(ctx context.Context, t *Table, row *Row) error
	ModifyInsert func(ctx context.Context, t *Table, row *Row, insert *sql.InsertBuilder)
	AfterInsert  func(ctx context.Context, t *Table, row *Row) error

	BeforeUpdate func(ctx context.Context, t *Table, row *Row) error
	ModifyUpdate func(ctx context.Context, t *Table, row *Row, update *sql.UpdateBuilder)
	AfterUpdate  func(ctx context.Context, t *Table, row *Row) error

	BeforeDelete func(ctx context.Context, t *Table, row *Row) error
	ModifyDelete func(ctx context.Context, t *Table, row *Row, del *sql.DeleteBuilder)
	AfterDelete  func(ctx context.Context, t *Table, row *Row) error
}

// Table is the gateway to one database table. Reads go to the locator's
// read connection, writes to its write connection. Both use the
// transaction carried by the context instead, if there is one.
type Table struct {
	def      Definition
	conns    *connection.Locator
	identity *IdentityMap
	events   Events
	logger   *slog.Logger
	cache    atlas.Cache
	cacheTTL time.Duration
}

// Option configures a Table.
type Option func(*Table)

// WithEvents sets the table events.
func WithEvents(e Events) Option {
	return func(t *Table) { t.events = e }
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(t *Table) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithCache caches selected rows. Every write to the table drops its
// cached entries.
func WithCache(c atlas.Cache, ttl time.Duration) Option {
	return func(t *Table) {
		t.cache = c
		t.cacheTTL = ttl
	}
}

// New validates the definition and returns a Table.
func New(def Definition, conns *connection.Locator, opts ...Option) (*Table, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if conns == nil {
		return nil, atlas.NewInvalidDefinitionError("table", def.Name, "no connection locator")
	}
	t := &Table{
		def:      def,
		conns:    conns,
		identity: NewIdentityMap(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Name returns the table name.
func (t *Table) Name() string { return t.def.Name }

// Definition returns the table definition.
func (t *Table) Definition() *Definition { return &t.def }

// PrimaryKey returns the primary key column name.
func (t *Table) PrimaryKey() string { return t.def.PrimaryKey }

// IdentityMap returns the identity map of the table.
func (t *Table) IdentityMap() *IdentityMap { return t.identity }

func (t *Table) reader(ctx context.Context) (dialect.ExecQuerier, string, error) {
	drv, err := t.conns.Read()
	if err != nil {
		return nil, "", err
	}
	if tx, ok := dialect.TxFromContext(ctx); ok {
		return tx, drv.Dialect(), nil
	}
	return drv, drv.Dialect(), nil
}

func (t *Table) writer(ctx context.Context) (dialect.ExecQuerier, string, error) {
	drv, err := t.conns.Write()
	if err != nil {
		return nil, "", err
	}
	if tx, ok := dialect.TxFromContext(ctx); ok {
		return tx, drv.Dialect(), nil
	}
	return drv, drv.Dialect(), nil
}

// Select returns a selector over the table. Without columns it selects
// every defined column.
func (t *Table) Select(columns ...string) *sql.Selector {
	if len(columns) == 0 {
		columns = t.def.ColumnNames()
	}
	return sql.Select(columns...).From(sql.Table(t.def.Name))
}

// SelectRows runs the selector and returns its rows through the identity
// map. A row already mapped is returned as is, refreshed with the
// selected values unless it has unsaved changes.
func (t *Table) SelectRows(ctx context.Context, sel *sql.Selector) ([]*Row, error) {
	ex, d, err := t.reader(ctx)
	if err != nil {
		return nil, err
	}
	sel.SetDialect(d)
	if t.events.ModifySelect != nil {
		t.events.ModifySelect(ctx, t, sel)
	}
	if err := sel.Err(); err != nil {
		return nil, atlas.NewQueryError(t.def.Name, "select", err)
	}
	values, err := t.selectValues(ctx, ex, sel)
	if err != nil {
		return nil, atlas.NewQueryError(t.def.Name, "select", err)
	}
	rows := make([]*Row, 0, len(values))
	for _, v := range values {
		if v[t.def.PrimaryKey] == nil {
			rows = append(rows, newRow(&t.def, v, StatusClean))
			continue
		}
		rows = append(rows, t.identity.getOrSet(&t.def, v))
	}
	t.logger.DebugContext(ctx, "table select", "table", t.def.Name, "rows", len(rows))
	return rows, nil
}

// Count returns the number of rows the selector matches.
func (t *Table) Count(ctx context.Context, sel *sql.Selector) (int, error) {
	ex, d, err := t.reader(ctx)
	if err != nil {
		return 0, err
	}
	sel = sel.Clone().SetDialect(d)
	if t.events.ModifySelect != nil {
		t.events.ModifySelect(ctx, t, sel)
	}
	n, err := sql.QueryInt(ctx, ex, sel.Count())
	if err != nil {
		return 0, atlas.NewQueryError(t.def.Name, "count", err)
	}
	return n, nil
}

func (t *Table) selectValues(ctx context.Context, ex dialect.ExecQuerier, sel *sql.Selector) ([]map[string]any, error) {
	_, inTx := dialect.TxFromContext(ctx)
	if t.cache == nil || inTx {
		values, _, err := sql.QueryMaps(ctx, ex, sel)
		return values, err
	}
	query, args := sel.Query()
	stmt, err := statementKey(query, args)
	if err != nil {
		t.logger.WarnContext(ctx, "table cache skipped", "table", t.def.Name, "error", err)
		values, _, err := sql.QueryMaps(ctx, ex, sel)
		return values, err
	}
	key := atlas.CacheKey{Table: t.def.Name, Operation: "select", Statement: stmt}
	if data, err := t.cache.Get(ctx, key.String()); err == nil && data != nil {
		if values, err := decodeRows(data); err == nil {
			return values, nil
		}
	}
	values, _, err := sql.QueryMaps(ctx, ex, sel)
	if err != nil {
		return nil, err
	}
	if data, err := encodeRows(values); err == nil {
		if err := t.cache.Set(ctx, key.String(), data, t.cacheTTL); err != nil {
			t.logger.WarnContext(ctx, "table cache set failed", "table", t.def.Name, "error", err)
		}
	}
	return values, nil
}

// invalidate drops the cached selects of the table and records the write
// for the transaction carried by ctx.
func (t *Table) invalidate(ctx context.Context) {
	if w, ok := ctx.Value(writesCtxKey{}).(*Writes); ok {
		w.add(t)
	}
	t.InvalidateCache(ctx)
}

// InvalidateCache drops every cached select of the table.
func (t *Table) InvalidateCache(ctx context.Context) {
	if t.cache == nil {
		return
	}
	prefix := atlas.CacheKey{Table: t.def.Name}.Prefix()
	if err := t.cache.DeletePrefix(ctx, prefix); err != nil {
		t.logger.WarnContext(ctx, "table cache invalidation failed", "table", t.def.Name, "error", err)
	}
}

// FetchRow returns the row with the given primary key, or nil when there
// is none. Rows held by the identity map are returned without a query.
func (t *Table) FetchRow(ctx context.Context, pk any) (*Row, error) {
	if r, ok := t.identity.Get(pk); ok {
		return r, nil
	}
	rows, err := t.SelectRows(ctx, t.Select().Where(sql.EQ(t.def.PrimaryKey, pk)))
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// FetchRows returns the rows with the given primary keys in the requested
// order. Keys missing from the identity map are selected with one query;
// keys without a row are skipped.
func (t *Table) FetchRows(ctx context.Context, pks []any) ([]*Row, error) {
	found := make(map[string]*Row, len(pks))
	var missing []any
	for _, pk := range pks {
		k := Key(pk)
		if _, ok := found[k]; ok {
			continue
		}
		if r, ok := t.identity.Get(pk); ok {
			found[k] = r
			continue
		}
		found[k] = nil
		missing = append(missing, pk)
	}
	if len(missing) > 0 {
		rows, err := t.SelectRows(ctx, t.Select().Where(sql.In(t.def.PrimaryKey, missing...)))
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			found[Key(r.PrimaryKey())] = r
		}
	}
	out := make([]*Row, 0, len(pks))
	seen := make(map[string]bool, len(pks))
	for _, pk := range pks {
		k := Key(pk)
		if r := found[k]; r != nil && !seen[k] {
			seen[k] = true
			out = append(out, r)
		}
	}
	return out, nil
}

// NewRow returns a new, unsaved row. Columns left unset take their
// default value.
func (t *Table) NewRow(values map[string]any) (*Row, error) {
	for col := range values {
		if !t.def.HasColumn(col) {
			return nil, atlas.NewUnknownFieldError(t.def.Name, col)
		}
	}
	init := make(map[string]any, len(t.def.Columns))
	for _, c := range t.def.Columns {
		if v, ok := values[c.Name]; ok {
			init[c.Name] = v
		} else {
			init[c.Name] = c.Default
		}
	}
	return newRow(&t.def, init, StatusNew), nil
}

// Insert inserts a new row and maps it in the identity map.
func (t *Table) Insert(ctx context.Context, row *Row) error {
	if row.Status() != StatusNew {
		return fmt.Errorf("atlas: insert %s: row is %s", t.def.Name, row.Status())
	}
	if t.events.BeforeInsert != nil {
		if err := t.events.BeforeInsert(ctx, t, row); err != nil {
			return err
		}
	}
	pk := t.def.PrimaryKey
	if t.def.UUIDKey && row.PrimaryKey() == nil {
		row.values[pk] = uuid.NewString()
	}
	ex, d, err := t.writer(ctx)
	if err != nil {
		return err
	}
	ins := sql.Dialect(d).Insert(t.def.Name)
	set := 0
	for _, c := range t.def.Columns {
		if v := row.values[c.Name]; v != nil {
			ins.Set(c.Name, v)
			set++
		}
	}
	if set == 0 {
		ins.Default()
	}
	autoPK := t.def.AutoIncrement && row.PrimaryKey() == nil
	if autoPK && d == dialect.Postgres {
		ins.Returning(pk)
	}
	if t.events.ModifyInsert != nil {
		t.events.ModifyInsert(ctx, t, row, ins)
	}
	switch {
	case autoPK && d == dialect.Postgres:
		values, _, err := sql.QueryMaps(ctx, ex, ins)
		if err != nil {
			return t.wrap("insert", err)
		}
		if len(values) != 1 {
			return &atlas.UnexpectedRowCountError{Table: t.def.Name, Op: "insert", Expected: 1, Actual: int64(len(values))}
		}
		row.values[pk] = values[0][pk]
	default:
		res, err := t.exec(ctx, ex, "insert", ins)
		if err != nil {
			return err
		}
		if autoPK {
			id, err := res.LastInsertId()
			if err != nil {
				return t.wrap("insert", err)
			}
			row.values[pk] = id
		}
	}
	row.markClean()
	if err := t.identity.Set(row); err != nil {
		return err
	}
	t.invalidate(ctx)
	t.logger.DebugContext(ctx, "table insert", "table", t.def.Name, "pk", row.PrimaryKey())
	if t.events.AfterInsert != nil {
		return t.events.AfterInsert(ctx, t, row)
	}
	return nil
}

// Update writes the modified columns of a row. A row without changes is
// not written.
func (t *Table) Update(ctx context.Context, row *Row) error {
	switch row.Status() {
	case StatusNew, StatusDeleted:
		return fmt.Errorf("atlas: update %s: row is %s", t.def.Name, row.Status())
	}
	if t.events.BeforeUpdate != nil {
		if err := t.events.BeforeUpdate(ctx, t, row); err != nil {
			return err
		}
	}
	changes := row.Modified()
	if len(changes) == 0 {
		return nil
	}
	ex, d, err := t.writer(ctx)
	if err != nil {
		return err
	}
	oldPK := row.initial[t.def.PrimaryKey]
	upd := sql.Dialect(d).Update(t.def.Name)
	for _, c := range t.def.Columns {
		v, ok := changes[c.Name]
		switch {
		case !ok:
		case v == nil:
			upd.SetNull(c.Name)
		default:
			upd.Set(c.Name, v)
		}
	}
	upd.Where(sql.EQ(t.def.PrimaryKey, oldPK))
	if t.events.ModifyUpdate != nil {
		t.events.ModifyUpdate(ctx, t, row, upd)
	}
	if err := t.execOne(ctx, ex, "update", upd); err != nil {
		return err
	}
	if Key(oldPK) != Key(row.PrimaryKey()) {
		t.identity.Delete(oldPK)
	}
	row.markClean()
	if err := t.identity.Set(row); err != nil {
		return err
	}
	t.invalidate(ctx)
	t.logger.DebugContext(ctx, "table update", "table", t.def.Name, "pk", row.PrimaryKey(), "columns", len(changes))
	if t.events.AfterUpdate != nil {
		return t.events.AfterUpdate(ctx, t, row)
	}
	return nil
}

// Delete deletes a row and removes it from the identity map.
func (t *Table) Delete(ctx context.Context, row *Row) error {
	switch row.Status() {
	case StatusNew, StatusDeleted:
		return fmt.Errorf("atlas: delete %s: row is %s", t.def.Name, row.Status())
	}
	if t.events.BeforeDelete != nil {
		if err := t.events.BeforeDelete(ctx, t, row); err != nil {
			return err
		}
	}
	ex, d, err := t.writer(ctx)
	if err != nil {
		return err
	}
	pk := row.initial[t.def.PrimaryKey]
	del := sql.Dialect(d).Delete(t.def.Name).Where(sql.EQ(t.def.PrimaryKey, pk))
	if t.events.ModifyDelete != nil {
		t.events.ModifyDelete(ctx, t, row, del)
	}
	if err := t.execOne(ctx, ex, "delete", del); err != nil {
		return err
	}
	row.markDeleted()
	t.identity.Delete(pk)
	t.invalidate(ctx)
	t.logger.DebugContext(ctx, "table delete", "table", t.def.Name, "pk", pk)
	if t.events.AfterDelete != nil {
		return t.events.AfterDelete(ctx, t, row)
	}
	return nil
}

func (t *Table) exec(ctx context.Context, ex dialect.ExecQuerier, op string, q sql.Querier) (sql.Result, error) {
	query, args := q.Query()
	if args == nil {
		args = []any{}
	}
	var res sql.Result
	if err := ex.Exec(ctx, query, args, &res); err != nil {
		return nil, t.wrap(op, err)
	}
	return res, nil
}

// execOne runs a single-row write and checks the affected row count.
func (t *Table) execOne(ctx context.Context, ex dialect.ExecQuerier, op string, q sql.Querier) error {
	res, err := t.exec(ctx, ex, op, q)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return t.wrap(op, err)
	}
	if n != 1 {
		return &atlas.UnexpectedRowCountError{Table: t.def.Name, Op: op, Expected: 1, Actual: n}
	}
	return nil
}

func (t *Table) wrap(op string, err error) error {
	if kind := sql.ConstraintOf(err); kind != sql.NoConstraint {
		return atlas.NewConstraintError(fmt.Sprintf("%s %s: %s", op, t.def.Name, kind), err)
	}
	var qe *atlas.QueryError
	if errors.As(err, &qe) {
		return err
	}
	return atlas.NewQueryError(t.def.Name, op, err)
}
