// Package schema creates and checks database tables for table definitions.
// Inspection and DDL planning are done by the Atlas schema drivers.
package schema

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"ariga.io/atlas/sql/migrate"
	"ariga.io/atlas/sql/mysql"
	"ariga.io/atlas/sql/postgres"
	"ariga.io/atlas/sql/schema"
	"ariga.io/atlas/sql/sqlite"

	"github.com/syssam/atlas/dialect"
	"github.com/syssam/atlas/table"
)

// Open returns the Atlas driver of the dialect over db.
func Open(db schema.ExecQuerier, name string) (migrate.Driver, error) {
	switch name {
	case dialect.SQLite:
		return sqlite.Open(db)
	case dialect.Postgres:
		return postgres.Open(db)
	case dialect.MySQL:
		return mysql.Open(db)
	}
	return nil, fmt.Errorf("schema: unsupported dialect %q", name)
}

// Inspect returns the current schema of the connection, limited to the
// named tables when any are given.
func Inspect(ctx context.Context, db schema.ExecQuerier, name string, tables ...string) (*schema.Schema, error) {
	drv, err := Open(db, name)
	if err != nil {
		return nil, err
	}
	return inspect(ctx, drv, tables)
}

func inspect(ctx context.Context, drv migrate.Driver, tables []string) (*schema.Schema, error) {
	s, err := drv.InspectSchema(ctx, "", &schema.InspectOptions{Tables: tables})
	if err != nil {
		return nil, fmt.Errorf("schema: inspect: %w", err)
	}
	return s, nil
}

// Create creates the tables of defs that do not exist yet. Existing
// tables are left untouched.
func Create(ctx context.Context, db schema.ExecQuerier, name string, defs ...table.Definition) error {
	drv, changes, err := missing(ctx, db, name, defs)
	if err != nil || len(changes) == 0 {
		return err
	}
	if err := drv.ApplyChanges(ctx, changes); err != nil {
		return fmt.Errorf("schema: create tables: %w", err)
	}
	return nil
}

// Plan returns the statements Create would execute.
func Plan(ctx context.Context, db schema.ExecQuerier, name string, defs ...table.Definition) ([]string, error) {
	drv, changes, err := missing(ctx, db, name, defs)
	if err != nil || len(changes) == 0 {
		return nil, err
	}
	plan, err := drv.PlanChanges(ctx, "create", changes)
	if err != nil {
		return nil, fmt.Errorf("schema: plan: %w", err)
	}
	stmts := make([]string, len(plan.Changes))
	for i, c := range plan.Changes {
		stmts[i] = c.Cmd
	}
	return stmts, nil
}

// missing returns an AddTable change for every definition whose table is
// absent from the inspected schema.
func missing(ctx context.Context, db schema.ExecQuerier, name string, defs []table.Definition) (migrate.Driver, []schema.Change, error) {
	for i := range defs {
		if err := defs[i].Validate(); err != nil {
			return nil, nil, err
		}
	}
	drv, err := Open(db, name)
	if err != nil {
		return nil, nil, err
	}
	current, err := inspect(ctx, drv, names(defs))
	if err != nil {
		return nil, nil, err
	}
	var changes []schema.Change
	for i := range defs {
		if _, ok := current.Table(defs[i].Name); ok {
			continue
		}
		t, err := Table(name, &defs[i])
		if err != nil {
			return nil, nil, err
		}
		changes = append(changes, &schema.AddTable{
			T:     t,
			Extra: []schema.Clause{&schema.IfNotExists{}},
		})
	}
	return drv, changes, nil
}

func names(defs []table.Definition) []string {
	ns := make([]string, len(defs))
	for i := range defs {
		ns[i] = defs[i].Name
	}
	return ns
}

// Table converts a definition into the Atlas table of the dialect.
func Table(name string, def *table.Definition) (*schema.Table, error) {
	t := schema.NewTable(def.Name)
	for _, c := range def.Columns {
		typ, err := columnType(name, c.Type)
		if err != nil {
			return nil, fmt.Errorf("schema: %s.%s: %w", def.Name, c.Name, err)
		}
		pk := c.Name == def.PrimaryKey
		col := schema.NewColumn(c.Name).SetType(typ).SetNull(c.Nullable && !pk)
		if c.Default != nil {
			col.SetDefault(&schema.Literal{V: literal(name, c.Default)})
		}
		if pk && def.AutoIncrement {
			col.AddAttrs(autoIncrement(name))
		}
		t.AddColumns(col)
	}
	pk, _ := t.Column(def.PrimaryKey)
	t.SetPrimaryKey(schema.NewPrimaryKey(pk))
	return t, nil
}

func columnType(name string, typ table.ColumnType) (schema.Type, error) {
	switch typ {
	case table.TypeInt:
		if name == dialect.SQLite {
			return &schema.IntegerType{T: "integer"}, nil
		}
		return &schema.IntegerType{T: "bigint"}, nil
	case table.TypeString, "":
		if name == dialect.SQLite {
			return &schema.StringType{T: "text"}, nil
		}
		return &schema.StringType{T: "varchar", Size: 255}, nil
	case table.TypeText:
		return &schema.StringType{T: "text"}, nil
	case table.TypeBool:
		return &schema.BoolType{T: "boolean"}, nil
	case table.TypeFloat:
		switch name {
		case dialect.SQLite:
			return &schema.FloatType{T: "real"}, nil
		case dialect.MySQL:
			return &schema.FloatType{T: "double"}, nil
		}
		return &schema.FloatType{T: "double precision"}, nil
	case table.TypeTime:
		if name == dialect.SQLite {
			return &schema.TimeType{T: "datetime"}, nil
		}
		return &schema.TimeType{T: "timestamp"}, nil
	case table.TypeBytes:
		if name == dialect.Postgres {
			return &schema.BinaryType{T: "bytea"}, nil
		}
		return &schema.BinaryType{T: "blob"}, nil
	case table.TypeUUID:
		switch name {
		case dialect.Postgres:
			return &schema.UUIDType{T: "uuid"}, nil
		case dialect.MySQL:
			return &schema.StringType{T: "char", Size: 36}, nil
		}
		return &schema.StringType{T: "text"}, nil
	}
	return nil, fmt.Errorf("unknown column type %q", typ)
}

func autoIncrement(name string) schema.Attr {
	switch name {
	case dialect.Postgres:
		return &postgres.Identity{Generation: "BY DEFAULT"}
	case dialect.MySQL:
		return &mysql.AutoIncrement{}
	}
	return &sqlite.AutoIncrement{}
}

func literal(name string, v any) string {
	switch v := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case bool:
		if name == dialect.Postgres {
			return strconv.FormatBool(v)
		}
		if v {
			return "1"
		}
		return "0"
	}
	return fmt.Sprint(v)
}

// Portable returns the column type of a definition matching an inspected
// column type. Types without a portable form map to TypeString.
func Portable(t schema.Type) table.ColumnType {
	switch t := t.(type) {
	case *schema.IntegerType:
		return table.TypeInt
	case *schema.BoolType:
		return table.TypeBool
	case *schema.FloatType, *schema.DecimalType:
		return table.TypeFloat
	case *schema.TimeType:
		return table.TypeTime
	case *schema.BinaryType:
		return table.TypeBytes
	case *schema.UUIDType:
		return table.TypeUUID
	case *schema.StringType:
		if strings.Contains(strings.ToLower(t.T), "text") {
			return table.TypeText
		}
	}
	return table.TypeString
}
