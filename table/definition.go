// Package table provides table gateways: CRUD statements for one table, a
// per-table identity map and an optional row cache.
package table

import (
	"regexp"

	"github.com/syssam/atlas"
)

// ColumnType is the portable type of a column.
type ColumnType string

// Column types.
const (
	TypeInt    ColumnType = "int"
	TypeString ColumnType = "string"
	TypeText   ColumnType = "text"
	TypeBool   ColumnType = "bool"
	TypeFloat  ColumnType = "float"
	TypeTime   ColumnType = "time"
	TypeBytes  ColumnType = "bytes"
	TypeUUID   ColumnType = "uuid"
)

// Valid reports whether t is a known column type.
func (t ColumnType) Valid() bool {
	switch t {
	case TypeInt, TypeString, TypeText, TypeBool, TypeFloat, TypeTime, TypeBytes, TypeUUID:
		return true
	}
	return false
}

// Column describes one column of a table.
type Column struct {
	Name     string     `yaml:"name"`
	Type     ColumnType `yaml:"type"`
	Nullable bool       `yaml:"nullable,omitempty"`
	Default  any        `yaml:"default,omitempty"`
}

// Definition describes a table.
type Definition struct {
	Name          string   `yaml:"name"`
	Columns       []Column `yaml:"columns"`
	PrimaryKey    string   `yaml:"primary_key"`
	AutoIncrement bool     `yaml:"auto_increment,omitempty"`
	// UUIDKey assigns a random UUID to the primary key of inserted rows
	// that have none.
	UUIDKey bool `yaml:"uuid_key,omitempty"`
}

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks the definition. Failures are InvalidDefinitionErrors.
func (d *Definition) Validate() error {
	if !identRE.MatchString(d.Name) {
		return atlas.NewInvalidDefinitionError("table", d.Name, "invalid table name")
	}
	if len(d.Columns) == 0 {
		return atlas.NewInvalidDefinitionError("table", d.Name, "no columns")
	}
	seen := make(map[string]bool, len(d.Columns))
	for _, c := range d.Columns {
		if !identRE.MatchString(c.Name) {
			return atlas.NewInvalidDefinitionError("table", d.Name, "invalid column name %q", c.Name)
		}
		if seen[c.Name] {
			return atlas.NewInvalidDefinitionError("table", d.Name, "duplicate column %q", c.Name)
		}
		if c.Type != "" && !c.Type.Valid() {
			return atlas.NewInvalidDefinitionError("table", d.Name, "column %q has unknown type %q", c.Name, c.Type)
		}
		seen[c.Name] = true
	}
	if !seen[d.PrimaryKey] {
		return atlas.NewInvalidDefinitionError("table", d.Name, "primary key %q is not a column", d.PrimaryKey)
	}
	if d.AutoIncrement && d.UUIDKey {
		return atlas.NewInvalidDefinitionError("table", d.Name, "primary key cannot be both auto increment and uuid")
	}
	return nil
}

// ColumnNames returns the column names in definition order.
func (d *Definition) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the named column.
func (d *Definition) Column(name string) (Column, bool) {
	for _, c := range d.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// HasColumn reports whether the table has the named column.
func (d *Definition) HasColumn(name string) bool {
	_, ok := d.Column(name)
	return ok
}
