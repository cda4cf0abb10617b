// Package skeleton generates mapper definitions from an inspected
// database schema. Every table with a single column primary key becomes a
// mapper, and every single column foreign key becomes a many-to-one
// relation on the referencing mapper and a one-to-many relation on the
// referenced one.
package skeleton

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"ariga.io/atlas/sql/mysql"
	"ariga.io/atlas/sql/postgres"
	"ariga.io/atlas/sql/schema"
	"ariga.io/atlas/sql/sqlite"
	"github.com/go-openapi/inflect"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/syssam/atlas/dialect"
	sqlschema "github.com/syssam/atlas/dialect/sql/schema"
	"github.com/syssam/atlas/relationship"
	"github.com/syssam/atlas/table"
)

// Config configures the generator.
type Config struct {
	// Package is the name of the generated package.
	Package string
	// Target is the output directory.
	Target string
	// Dialect of the inspected database. On SQLite an integer primary key
	// aliases the rowid and is treated as auto increment.
	Dialect string
	// Workers limits the files written in parallel. Zero means
	// GOMAXPROCS.
	Workers int
	Logger  *slog.Logger
}

func (c *Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// Mapper is the generated form of one table.
type Mapper struct {
	// Name is the mapper name, the singular of the table name.
	Name      string
	Table     table.Definition
	Relations []*Relation
}

// Func returns the name of the generated definition function.
func (m *Mapper) Func() string { return m.Name + "Mapper" }

// File returns the name of the generated file.
func (m *Mapper) File() string { return m.Table.Name + ".go" }

// Relation is a relation derived from a foreign key.
type Relation struct {
	Name       string
	Kind       relationship.Kind
	Foreign    string
	NativeCol  string
	ForeignCol string
}

// Build returns the mappers of the tables of s, sorted by table name.
// Tables without a single column primary key are skipped.
func Build(s *schema.Schema, cfg Config) ([]*Mapper, error) {
	if s == nil {
		return nil, fmt.Errorf("skeleton: nil schema")
	}
	tables := slices.Clone(s.Tables)
	slices.SortFunc(tables, func(a, b *schema.Table) int { return strings.Compare(a.Name, b.Name) })

	var (
		mappers []*Mapper
		byTable = make(map[string]*Mapper)
		names   = make(map[string]string)
	)
	for _, t := range tables {
		def, ok := definition(t, cfg.Dialect)
		if !ok {
			cfg.logger().Warn("table skipped, no single column primary key", "table", t.Name)
			continue
		}
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("skeleton: %w", err)
		}
		m := &Mapper{Name: MapperName(t.Name), Table: def}
		if other, ok := names[m.Name]; ok {
			return nil, fmt.Errorf("skeleton: tables %s and %s both map to %s", other, t.Name, m.Name)
		}
		names[m.Name] = t.Name
		mappers = append(mappers, m)
		byTable[t.Name] = m
	}
	for _, t := range tables {
		native, ok := byTable[t.Name]
		if !ok {
			continue
		}
		for _, fk := range t.ForeignKeys {
			if len(fk.Columns) != 1 || len(fk.RefColumns) != 1 || fk.RefTable == nil {
				continue
			}
			ref, ok := byTable[fk.RefTable.Name]
			if !ok {
				continue
			}
			col, refCol := fk.Columns[0].Name, fk.RefColumns[0].Name
			native.add(&Relation{
				Name:       manyToOneName(col, ref),
				Kind:       relationship.ManyToOne,
				Foreign:    ref.Name,
				NativeCol:  col,
				ForeignCol: refCol,
			})
			ref.add(&Relation{
				Name:       inflect.Pluralize(inflect.Underscore(native.Name)),
				Kind:       relationship.OneToMany,
				Foreign:    native.Name,
				NativeCol:  refCol,
				ForeignCol: col,
			}, col)
		}
	}
	return mappers, nil
}

// add appends r, renaming it when the name is taken by a column or an
// earlier relation. The first hint, when given, disambiguates the name.
func (m *Mapper) add(r *Relation, hint ...string) {
	base := r.Name
	if len(hint) > 0 && m.taken(base) {
		base = strings.TrimSuffix(hint[0], "_id") + "_" + base
	}
	name := base
	for i := 2; m.taken(name); i++ {
		name = fmt.Sprintf("%s_%d", base, i)
	}
	r.Name = name
	m.Relations = append(m.Relations, r)
}

func (m *Mapper) taken(name string) bool {
	if m.Table.HasColumn(name) {
		return true
	}
	return slices.ContainsFunc(m.Relations, func(r *Relation) bool { return r.Name == name })
}

func manyToOneName(col string, ref *Mapper) string {
	if name, ok := strings.CutSuffix(col, "_id"); ok && name != "" {
		return name
	}
	return inflect.Underscore(ref.Name)
}

// MapperName returns the mapper name of a table: the singular of the
// table name in PascalCase.
func MapperName(tableName string) string {
	return pascal(inflect.Singularize(tableName))
}

func pascal(s string) string {
	caser := cases.Title(language.English)
	var sb strings.Builder
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == '-' || r == ' ' }) {
		sb.WriteString(caser.String(part))
	}
	return sb.String()
}

func definition(t *schema.Table, name string) (table.Definition, bool) {
	if t.PrimaryKey == nil || len(t.PrimaryKey.Parts) != 1 || t.PrimaryKey.Parts[0].C == nil {
		return table.Definition{}, false
	}
	pk := t.PrimaryKey.Parts[0].C
	def := table.Definition{
		Name:       t.Name,
		PrimaryKey: pk.Name,
		Columns:    make([]table.Column, 0, len(t.Columns)),
	}
	for _, c := range t.Columns {
		col := table.Column{Name: c.Name, Type: table.TypeString}
		if c.Type != nil {
			col.Type = sqlschema.Portable(c.Type.Type)
			col.Nullable = c.Type.Null && c.Name != pk.Name
		}
		def.Columns = append(def.Columns, col)
	}
	def.AutoIncrement = autoIncrement(t, pk, name)
	return def, true
}

func autoIncrement(t *schema.Table, pk *schema.Column, name string) bool {
	if pk.Type == nil {
		return false
	}
	switch pk.Type.Type.(type) {
	case *postgres.SerialType:
		return true
	case *schema.IntegerType:
		if name == dialect.SQLite {
			return true
		}
	default:
		return false
	}
	for _, attrs := range [][]schema.Attr{pk.Attrs, t.Attrs} {
		for _, a := range attrs {
			switch a.(type) {
			case *sqlite.AutoIncrement, *mysql.AutoIncrement, *postgres.Identity:
				return true
			}
		}
	}
	return false
}
