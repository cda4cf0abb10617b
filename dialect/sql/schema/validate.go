package schema

import (
	"context"
	"fmt"
	"strings"

	"ariga.io/atlas/sql/schema"

	"github.com/syssam/atlas/table"
)

// ValidationError represents a difference between a table definition and
// the database.
type ValidationError struct {
	Table   string
	Column  string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s.%s: %s", e.Table, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Table, e.Message)
}

// ValidationResult holds the results of schema validation.
type ValidationResult struct {
	Errors   []*ValidationError
	Warnings []*ValidationError
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings.
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// String returns a human-readable summary of the validation result.
func (r *ValidationResult) String() string {
	var sb strings.Builder
	if len(r.Errors) > 0 {
		sb.WriteString("Errors:\n")
		for _, e := range r.Errors {
			sb.WriteString("  - ")
			sb.WriteString(e.Error())
			sb.WriteString("\n")
		}
	}
	if len(r.Warnings) > 0 {
		sb.WriteString("Warnings:\n")
		for _, w := range r.Warnings {
			sb.WriteString("  - ")
			sb.WriteString(w.Error())
			sb.WriteString("\n")
		}
	}
	if !r.HasErrors() && !r.HasWarnings() {
		sb.WriteString("No issues found")
	}
	return sb.String()
}

func (r *ValidationResult) errorf(tbl, col, format string, args ...any) {
	r.Errors = append(r.Errors, &ValidationError{Table: tbl, Column: col, Message: fmt.Sprintf(format, args...)})
}

func (r *ValidationResult) warnf(tbl, col, format string, args ...any) {
	r.Warnings = append(r.Warnings, &ValidationError{Table: tbl, Column: col, Message: fmt.Sprintf(format, args...)})
}

// ValidateOption configures schema validation.
type ValidateOption func(*validateConfig)

type validateConfig struct {
	allowUnmapped bool
}

// AllowUnmappedColumns drops the warnings for database columns that no
// definition maps.
func AllowUnmappedColumns() ValidateOption {
	return func(c *validateConfig) {
		c.allowUnmapped = true
	}
}

// Validate compares the definitions with the tables of the database.
// Missing tables, missing columns and primary key mismatches are errors.
// Nullability and type differences and unmapped columns are warnings.
//
// Example:
//
//	result, err := schema.Validate(ctx, drv, dialect.Postgres, defs...)
//	if err != nil {
//	    return err
//	}
//	if result.HasErrors() {
//	    log.Fatal("schema mismatch:\n", result)
//	}
func Validate(ctx context.Context, db schema.ExecQuerier, name string, defs ...table.Definition) (*ValidationResult, error) {
	current, err := Inspect(ctx, db, name, names(defs)...)
	if err != nil {
		return nil, err
	}
	return ValidateSchema(current, defs), nil
}

// ValidateSchema compares the definitions with an inspected schema.
func ValidateSchema(current *schema.Schema, defs []table.Definition, opts ...ValidateOption) *ValidationResult {
	cfg := &validateConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	result := &ValidationResult{}
	for i := range defs {
		def := &defs[i]
		t, ok := current.Table(def.Name)
		if !ok {
			result.errorf(def.Name, "", "table does not exist")
			continue
		}
		validateTable(t, def, cfg, result)
	}
	return result
}

func validateTable(t *schema.Table, def *table.Definition, cfg *validateConfig, result *ValidationResult) {
	if pk := primaryKey(t); len(pk) != 1 || pk[0] != def.PrimaryKey {
		result.errorf(def.Name, "", "primary key is %q in the definition and (%s) in the database", def.PrimaryKey, strings.Join(pk, ", "))
	}
	for _, c := range def.Columns {
		col, ok := t.Column(c.Name)
		if !ok {
			result.errorf(def.Name, c.Name, "column does not exist")
			continue
		}
		if col.Type == nil {
			continue
		}
		if got := Portable(col.Type.Type); c.Type != "" && family(got) != family(c.Type) {
			result.warnf(def.Name, c.Name, "column type is %s in the definition and %s in the database", c.Type, got)
		}
		if c.Name == def.PrimaryKey {
			continue
		}
		switch {
		case c.Nullable && !col.Type.Null:
			result.warnf(def.Name, c.Name, "column is nullable in the definition but NOT NULL in the database")
		case !c.Nullable && col.Type.Null:
			result.warnf(def.Name, c.Name, "column is NOT NULL in the definition but nullable in the database")
		}
	}
	if cfg.allowUnmapped {
		return
	}
	for _, col := range t.Columns {
		if !def.HasColumn(col.Name) {
			result.warnf(def.Name, col.Name, "column is not mapped")
		}
	}
}

func primaryKey(t *schema.Table) []string {
	if t.PrimaryKey == nil {
		return nil
	}
	cols := make([]string, 0, len(t.PrimaryKey.Parts))
	for _, p := range t.PrimaryKey.Parts {
		if p.C != nil {
			cols = append(cols, p.C.Name)
		}
	}
	return cols
}

// family groups the types that share a Go representation.
func family(t table.ColumnType) table.ColumnType {
	switch t {
	case table.TypeText, table.TypeUUID, "":
		return table.TypeString
	}
	return t
}
