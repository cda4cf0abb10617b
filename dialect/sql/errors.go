package sql

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// PostgreSQL SQLSTATE codes for constraint violations (class 23).
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgNotNullViolation    = "23502"
	pgCheckViolation      = "23514"
)

// MySQL error numbers for constraint violations.
const (
	mysqlDuplicateEntry   = 1062
	mysqlBadNull          = 1048
	mysqlForeignKeyParent = 1451 // cannot delete or update a parent row
	mysqlForeignKeyChild  = 1452 // cannot add or update a child row
	mysqlCheckViolation   = 3819
)

// ConstraintKind classifies a driver error raised by a constraint violation.
type ConstraintKind int

// Constraint kinds.
const (
	NoConstraint ConstraintKind = iota
	UniqueConstraint
	ForeignKeyConstraint
	NotNullConstraint
	CheckConstraint
)

// String implements fmt.Stringer.
func (k ConstraintKind) String() string {
	switch k {
	case UniqueConstraint:
		return "unique"
	case ForeignKeyConstraint:
		return "foreign key"
	case NotNullConstraint:
		return "not null"
	case CheckConstraint:
		return "check"
	default:
		return "none"
	}
}

// ConstraintOf classifies err. Postgres and MySQL errors are matched by
// code; SQLite errors, which carry no exported code type, by message.
func ConstraintOf(err error) ConstraintKind {
	if err == nil {
		return NoConstraint
	}
	if pe := (*pq.Error)(nil); errors.As(err, &pe) {
		switch pe.Code {
		case pgUniqueViolation:
			return UniqueConstraint
		case pgForeignKeyViolation:
			return ForeignKeyConstraint
		case pgNotNullViolation:
			return NotNullConstraint
		case pgCheckViolation:
			return CheckConstraint
		}
		return NoConstraint
	}
	if me := (*mysql.MySQLError)(nil); errors.As(err, &me) {
		switch me.Number {
		case mysqlDuplicateEntry:
			return UniqueConstraint
		case mysqlForeignKeyParent, mysqlForeignKeyChild:
			return ForeignKeyConstraint
		case mysqlBadNull:
			return NotNullConstraint
		case mysqlCheckViolation:
			return CheckConstraint
		}
		return NoConstraint
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return UniqueConstraint
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return ForeignKeyConstraint
	case strings.Contains(msg, "NOT NULL constraint failed"):
		return NotNullConstraint
	case strings.Contains(msg, "CHECK constraint failed"):
		return CheckConstraint
	}
	return NoConstraint
}

// IsUniqueConstraintError reports if the error resulted from a uniqueness violation.
func IsUniqueConstraintError(err error) bool { return ConstraintOf(err) == UniqueConstraint }

// IsForeignKeyConstraintError reports if the error resulted from a foreign-key violation.
func IsForeignKeyConstraintError(err error) bool {
	return ConstraintOf(err) == ForeignKeyConstraint
}

// IsConstraintError reports if the error resulted from any constraint violation.
func IsConstraintError(err error) bool { return ConstraintOf(err) != NoConstraint }
