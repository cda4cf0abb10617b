package sql

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/syssam/atlas/dialect"
)

// Querier wraps the basic Query method that is implemented
// by the different builders in this package.
type Querier interface {
	// Query returns the query representation of the element
	// and its arguments (if any).
	Query() (string, []any)
}

// Builder is the base query builder for the SQL dsl. It writes the
// statement text, numbers placeholders for the configured dialect and
// collects the arguments.
type Builder struct {
	sb      *strings.Builder
	dialect string
	args    []any
	total   int
	errs    []error
}

func (b *Builder) init() {
	if b.sb == nil {
		b.sb = &strings.Builder{}
	}
}

// Dialect returns the dialect of the builder.
func (b *Builder) Dialect() string {
	return b.dialect
}

// SetDialect sets the builder dialect. It's used for garnering dialect specific queries.
func (b *Builder) SetDialect(dialect string) {
	b.dialect = dialect
}

// WriteString writes the given string as it is.
func (b *Builder) WriteString(s string) *Builder {
	b.init()
	b.sb.WriteString(s)
	return b
}

// WriteByte writes the given byte as it is.
func (b *Builder) WriteByte(c byte) *Builder {
	b.init()
	b.sb.WriteByte(c)
	return b
}

// Pad adds a space to the query if the last character is not a space.
func (b *Builder) Pad() *Builder {
	b.init()
	if n := b.sb.Len(); n > 0 && b.sb.String()[n-1] != ' ' {
		b.sb.WriteByte(' ')
	}
	return b
}

// Quote quotes the given identifier with the dialect quote character.
// Qualified names ("t.c") are quoted part by part; expressions and the
// star selector are left untouched.
func (b *Builder) Quote(ident string) string {
	if ident == "*" || strings.ContainsAny(ident, "()` \"") {
		return ident
	}
	q := `"`
	if b.dialect == dialect.MySQL {
		q = "`"
	}
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		if p == "*" {
			continue
		}
		parts[i] = q + p + q
	}
	return strings.Join(parts, ".")
}

// Ident writes the quoted identifier.
func (b *Builder) Ident(s string) *Builder {
	return b.WriteString(b.Quote(s))
}

// IdentComma writes the quoted identifiers separated by commas.
func (b *Builder) IdentComma(s ...string) *Builder {
	for i := range s {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Ident(s[i])
	}
	return b
}

// Arg appends an input argument to the builder and writes its placeholder.
func (b *Builder) Arg(a any) *Builder {
	b.total++
	b.args = append(b.args, a)
	if b.dialect == dialect.Postgres {
		return b.WriteString("$" + strconv.Itoa(b.total))
	}
	return b.WriteString("?")
}

// Args appends a list of arguments to the builder, separated by commas.
func (b *Builder) Args(a ...any) *Builder {
	for i := range a {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Arg(a[i])
	}
	return b
}

// AddError appends an error to the builder errors.
func (b *Builder) AddError(err error) *Builder {
	if err != nil {
		b.errs = append(b.errs, err)
	}
	return b
}

// Err returns a concatenated error of all errors encountered during
// the query-building, or were added manually by calling AddError.
func (b *Builder) Err() error {
	return errors.Join(b.errs...)
}

// String returns the accumulated string.
func (b *Builder) String() string {
	if b.sb == nil {
		return ""
	}
	return b.sb.String()
}

// Query implements the Querier interface.
func (b *Builder) Query() (string, []any) {
	return b.String(), b.args
}

// Predicate is a where predicate. Its functions write into the statement
// builder, so placeholders are numbered in statement order.
type Predicate struct {
	fns       []func(*Builder)
	composite bool
}

// P creates a new predicate.
//
//	P(func(b *Builder) {
//	    b.Ident("name").WriteString(" <> ").Arg("a8m")
//	})
func P(fns ...func(*Builder)) *Predicate {
	return &Predicate{fns: fns}
}

// Append appends a new function to the predicate.
func (p *Predicate) Append(f func(*Builder)) *Predicate {
	p.fns = append(p.fns, f)
	return p
}

func (p *Predicate) build(b *Builder) {
	for _, f := range p.fns {
		f(b)
	}
}

// Query returns the predicate text and arguments for the default dialect.
func (p *Predicate) Query() (string, []any) {
	b := &Builder{}
	p.build(b)
	return b.Query()
}

func (p *Predicate) nested(b *Builder) {
	if p.composite {
		b.WriteByte('(')
		p.build(b)
		b.WriteByte(')')
		return
	}
	p.build(b)
}

// SelectTable is a table reference in a FROM or JOIN clause.
type SelectTable struct {
	name  string
	as    string
	quote func(string) string
}

// Table returns a new table selector.
//
//	t1 := Table("users").As("u")
//	return Select(t1.C("name"))
func Table(name string) *SelectTable {
	return &SelectTable{name: name}
}

// As adds the AS clause to the table selector.
func (s *SelectTable) As(alias string) *SelectTable {
	s.as = alias
	return s
}

// Name returns the table name.
func (s *SelectTable) Name() string {
	return s.name
}

// C returns a qualified name for the given column.
func (s *SelectTable) C(column string) string {
	ref := s.name
	if s.as != "" {
		ref = s.as
	}
	return ref + "." + column
}

func (s *SelectTable) write(b *Builder) {
	b.Ident(s.name)
	if s.as != "" {
		b.WriteString(" AS ").Ident(s.as)
	}
}

type join struct {
	kind  string
	table *SelectTable
	on    *Predicate
}

// Selector is a builder for the `SELECT` statement.
type Selector struct {
	dialect  string
	columns  []string
	distinct bool
	from     *SelectTable
	joins    []join
	where    []*Predicate
	order    []string
	limit    *int
	offset   *int
	errs     []error
}

// Select returns a new selector for the `SELECT` statement.
//
//	t1 := Table("users").As("u")
//	t2 := Select().From(Table("groups")).Where(EQ("user_id", 10)).As("g")
//	return Select(t1.C("id"), t2.C("name")).
//			From(t1).
//			Join(t2).
//			On(t1.C("id"), t2.C("user_id"))
func Select(columns ...string) *Selector {
	return (&Selector{}).Select(columns...)
}

// Select changes the columns selection of the SELECT statement.
// Empty selection means all columns *.
func (s *Selector) Select(columns ...string) *Selector {
	s.columns = append(s.columns[:0:0], columns...)
	return s
}

// AppendSelect appends additional columns to the SELECT statement.
func (s *Selector) AppendSelect(columns ...string) *Selector {
	s.columns = append(s.columns, columns...)
	return s
}

// SelectedColumns returns the selected columns in the Selector.
func (s *Selector) SelectedColumns() []string {
	return append([]string(nil), s.columns...)
}

// Count sets the Select statement to be a `SELECT COUNT(*)`. Ordering,
// limit and offset do not apply to a count and are dropped.
func (s *Selector) Count() *Selector {
	s.columns = []string{"COUNT(*)"}
	s.order = nil
	s.limit, s.offset = nil, nil
	return s
}

// Distinct adds the DISTINCT keyword to the `SELECT` statement.
func (s *Selector) Distinct() *Selector {
	s.distinct = true
	return s
}

// From sets the source of `FROM` clause.
func (s *Selector) From(t *SelectTable) *Selector {
	s.from = t
	return s
}

// Table returns the selected table.
func (s *Selector) Table() *SelectTable {
	return s.from
}

// C returns a qualified name for the given column of the FROM table.
func (s *Selector) C(column string) string {
	if s.from == nil {
		return column
	}
	return s.from.C(column)
}

// Join appends a `JOIN` clause to the statement.
func (s *Selector) Join(t *SelectTable) *Selector {
	return s.join("JOIN", t)
}

// LeftJoin appends a `LEFT JOIN` clause to the statement.
func (s *Selector) LeftJoin(t *SelectTable) *Selector {
	return s.join("LEFT JOIN", t)
}

func (s *Selector) join(kind string, t *SelectTable) *Selector {
	s.joins = append(s.joins, join{kind: kind, table: t})
	return s
}

// On sets the `ON` clause of the last `JOIN` operation.
func (s *Selector) On(c1, c2 string) *Selector {
	return s.OnP(P(func(b *Builder) {
		b.Ident(c1).WriteString(" = ").Ident(c2)
	}))
}

// OnP sets or appends the given predicate for the `ON` clause of the last `JOIN` operation.
func (s *Selector) OnP(p *Predicate) *Selector {
	if len(s.joins) == 0 {
		s.errs = append(s.errs, errors.New("sql: ON without JOIN"))
		return s
	}
	j := &s.joins[len(s.joins)-1]
	if j.on == nil {
		j.on = p
	} else {
		j.on = And(j.on, p)
	}
	return s
}

// Where sets or appends the given predicate to the statement.
func (s *Selector) Where(p *Predicate) *Selector {
	if p != nil {
		s.where = append(s.where, p)
	}
	return s
}

// HasWhere reports whether the selector has a WHERE clause.
func (s *Selector) HasWhere() bool {
	return len(s.where) > 0
}

// OrderBy appends the `ORDER BY` clause to the `SELECT` statement.
// Columns may carry an ASC or DESC suffix, see Asc and Desc.
func (s *Selector) OrderBy(columns ...string) *Selector {
	s.order = append(s.order, columns...)
	return s
}

// Limit adds the `LIMIT` clause to the `SELECT` statement.
func (s *Selector) Limit(limit int) *Selector {
	s.limit = &limit
	return s
}

// Offset adds the `OFFSET` clause to the `SELECT` statement.
func (s *Selector) Offset(offset int) *Selector {
	s.offset = &offset
	return s
}

// Dialect returns the dialect of the selector.
func (s *Selector) Dialect() string {
	return s.dialect
}

// SetDialect sets the selector dialect.
func (s *Selector) SetDialect(dialect string) *Selector {
	s.dialect = dialect
	return s
}

// Clone returns a duplicate of the selector, including all associated steps.
func (s *Selector) Clone() *Selector {
	c := *s
	c.columns = append([]string(nil), s.columns...)
	c.joins = append([]join(nil), s.joins...)
	c.where = append([]*Predicate(nil), s.where...)
	c.order = append([]string(nil), s.order...)
	c.errs = append([]error(nil), s.errs...)
	return &c
}

// Err returns the errors recorded while building the selector.
func (s *Selector) Err() error {
	errs := s.errs
	if s.from == nil {
		errs = append(errs[:len(errs):len(errs)], errors.New("sql: missing FROM clause"))
	}
	return errors.Join(errs...)
}

// Query returns query representation of a `SELECT` statement.
func (s *Selector) Query() (string, []any) {
	b := &Builder{dialect: s.dialect}
	b.WriteString("SELECT ")
	if s.distinct {
		b.WriteString("DISTINCT ")
	}
	if len(s.columns) == 0 {
		b.WriteByte('*')
	} else {
		b.IdentComma(s.columns...)
	}
	if s.from != nil {
		b.WriteString(" FROM ")
		s.from.write(b)
	}
	for _, j := range s.joins {
		b.Pad().WriteString(j.kind).Pad()
		j.table.write(b)
		if j.on != nil {
			b.WriteString(" ON ")
			j.on.build(b)
		}
	}
	if len(s.where) > 0 {
		b.WriteString(" WHERE ")
		And(s.where...).build(b)
	}
	if len(s.order) > 0 {
		b.WriteString(" ORDER BY ")
		for i, c := range s.order {
			if i > 0 {
				b.WriteString(", ")
			}
			col, dir, ok := strings.Cut(c, " ")
			b.Ident(col)
			if ok {
				b.WriteByte(' ').WriteString(dir)
			}
		}
	}
	switch {
	case s.limit != nil:
		b.WriteString(" LIMIT ").WriteString(strconv.Itoa(*s.limit))
	case s.offset != nil && s.dialect == dialect.MySQL:
		b.WriteString(" LIMIT 18446744073709551615")
	case s.offset != nil && s.dialect == dialect.SQLite:
		b.WriteString(" LIMIT -1")
	}
	if s.offset != nil {
		b.WriteString(" OFFSET ").WriteString(strconv.Itoa(*s.offset))
	}
	return b.Query()
}

// Asc adds the ASC suffix to the given column.
func Asc(column string) string {
	return column + " ASC"
}

// Desc adds the DESC suffix to the given column.
func Desc(column string) string {
	return column + " DESC"
}

// InsertBuilder is a builder for `INSERT INTO` statement.
type InsertBuilder struct {
	dialect   string
	table     string
	columns   []string
	defaults  bool
	values    [][]any
	returning []string
}

// Insert creates a builder for the `INSERT INTO` statement.
//
//	Insert("users").
//		Columns("name", "age").
//		Values("a8m", 10).
//		Values("foo", 20)
func Insert(table string) *InsertBuilder {
	return &InsertBuilder{table: table}
}

// Columns sets the columns of the insert statement.
func (i *InsertBuilder) Columns(columns ...string) *InsertBuilder {
	i.columns = append(i.columns, columns...)
	return i
}

// Values append a value tuple for the insert statement.
func (i *InsertBuilder) Values(values ...any) *InsertBuilder {
	i.values = append(i.values, values)
	return i
}

// Set is a syntactic sugar API for inserting only one row.
func (i *InsertBuilder) Set(column string, v any) *InsertBuilder {
	i.columns = append(i.columns, column)
	if len(i.values) == 0 {
		i.values = append(i.values, []any{v})
	} else {
		i.values[0] = append(i.values[0], v)
	}
	return i
}

// Default sets the default values clause based on the dialect type.
func (i *InsertBuilder) Default() *InsertBuilder {
	i.defaults = true
	return i
}

// Returning adds the `RETURNING` clause to the insert statement.
// It is ignored by MySQL.
func (i *InsertBuilder) Returning(columns ...string) *InsertBuilder {
	i.returning = columns
	return i
}

// SetDialect sets the builder dialect.
func (i *InsertBuilder) SetDialect(dialect string) *InsertBuilder {
	i.dialect = dialect
	return i
}

// Query returns query representation of an `INSERT INTO` statement.
func (i *InsertBuilder) Query() (string, []any) {
	b := &Builder{dialect: i.dialect}
	b.WriteString("INSERT INTO ").Ident(i.table)
	switch {
	case i.defaults || len(i.columns) == 0:
		if i.dialect == dialect.MySQL {
			b.WriteString(" VALUES ()")
		} else {
			b.WriteString(" DEFAULT VALUES")
		}
	default:
		b.WriteString(" (").IdentComma(i.columns...).WriteString(") VALUES ")
		for j, v := range i.values {
			if j > 0 {
				b.WriteString(", ")
			}
			if len(v) != len(i.columns) {
				b.AddError(fmt.Errorf("sql: insert into %q: %d values for %d columns", i.table, len(v), len(i.columns)))
			}
			b.WriteByte('(').Args(v...).WriteByte(')')
		}
	}
	if len(i.returning) > 0 && i.dialect != dialect.MySQL {
		b.WriteString(" RETURNING ").IdentComma(i.returning...)
	}
	return b.Query()
}

// UpdateBuilder is a builder for `UPDATE` statement.
type UpdateBuilder struct {
	dialect string
	table   string
	columns []string
	values  []any
	nulls   []string
	where   []*Predicate
}

// Update creates a builder for the `UPDATE` statement.
//
//	Update("users").Set("name", "foo").Set("age", 10)
func Update(table string) *UpdateBuilder {
	return &UpdateBuilder{table: table}
}

// Set sets a column to a given value.
func (u *UpdateBuilder) Set(column string, v any) *UpdateBuilder {
	u.columns = append(u.columns, column)
	u.values = append(u.values, v)
	return u
}

// SetNull sets a column as null value.
func (u *UpdateBuilder) SetNull(column string) *UpdateBuilder {
	u.nulls = append(u.nulls, column)
	return u
}

// Where adds a where predicate for update statement.
func (u *UpdateBuilder) Where(p *Predicate) *UpdateBuilder {
	if p != nil {
		u.where = append(u.where, p)
	}
	return u
}

// Empty reports whether this builder does not contain update changes.
func (u *UpdateBuilder) Empty() bool {
	return len(u.columns) == 0 && len(u.nulls) == 0
}

// SetDialect sets the builder dialect.
func (u *UpdateBuilder) SetDialect(dialect string) *UpdateBuilder {
	u.dialect = dialect
	return u
}

// Query returns query representation of an `UPDATE` statement.
func (u *UpdateBuilder) Query() (string, []any) {
	b := &Builder{dialect: u.dialect}
	b.WriteString("UPDATE ").Ident(u.table).WriteString(" SET ")
	for i, c := range u.columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Ident(c).WriteString(" = ").Arg(u.values[i])
	}
	for i, c := range u.nulls {
		if i > 0 || len(u.columns) > 0 {
			b.WriteString(", ")
		}
		b.Ident(c).WriteString(" = NULL")
	}
	if len(u.where) > 0 {
		b.WriteString(" WHERE ")
		And(u.where...).build(b)
	}
	return b.Query()
}

// DeleteBuilder is a builder for `DELETE` statement.
type DeleteBuilder struct {
	dialect string
	table   string
	where   []*Predicate
}

// Delete creates a builder for the `DELETE` statement.
//
//	Delete("users").
//		Where(
//			Or(
//				EQ("name", "foo").
//				EQ("age", 10),
//			),
//		)
func Delete(table string) *DeleteBuilder {
	return &DeleteBuilder{table: table}
}

// Where appends a where predicate to the `DELETE` statement.
func (d *DeleteBuilder) Where(p *Predicate) *DeleteBuilder {
	if p != nil {
		d.where = append(d.where, p)
	}
	return d
}

// SetDialect sets the builder dialect.
func (d *DeleteBuilder) SetDialect(dialect string) *DeleteBuilder {
	d.dialect = dialect
	return d
}

// Query returns query representation of a `DELETE` statement.
func (d *DeleteBuilder) Query() (string, []any) {
	b := &Builder{dialect: d.dialect}
	b.WriteString("DELETE FROM ").Ident(d.table)
	if len(d.where) > 0 {
		b.WriteString(" WHERE ")
		And(d.where...).build(b)
	}
	return b.Query()
}

// DialectBuilder prefixes all root builders with the `Dialect` constructor.
// It is the query factory handed to table gateways.
type DialectBuilder struct {
	dialect string
}

// Dialect creates a new DialectBuilder with the given dialect name.
func Dialect(name string) *DialectBuilder {
	return &DialectBuilder{name}
}

// Name returns the dialect name of the factory.
func (d *DialectBuilder) Name() string {
	return d.dialect
}

// Select creates a Selector for the configured dialect.
//
//	Dialect(dialect.Postgres).
//		Select().From(Table("users"))
func (d *DialectBuilder) Select(columns ...string) *Selector {
	return Select(columns...).SetDialect(d.dialect)
}

// Insert creates an InsertBuilder for the configured dialect.
//
//	Dialect(dialect.Postgres).
//		Insert("users").Columns("age").Values(1)
func (d *DialectBuilder) Insert(table string) *InsertBuilder {
	return Insert(table).SetDialect(d.dialect)
}

// Update creates an UpdateBuilder for the configured dialect.
//
//	Dialect(dialect.Postgres).
//		Update("users").Set("name", "foo")
func (d *DialectBuilder) Update(table string) *UpdateBuilder {
	return Update(table).SetDialect(d.dialect)
}

// Delete creates a DeleteBuilder for the configured dialect.
//
//	Dialect(dialect.Postgres).
//		Delete().From("users")
func (d *DialectBuilder) Delete(table string) *DeleteBuilder {
	return Delete(table).SetDialect(d.dialect)
}
