package atlas

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for common failures.
var (
	// ErrMapperNotFound is returned when a mapper name is not registered.
	ErrMapperNotFound = errors.New("atlas: mapper not found")

	// ErrTableNotFound is returned when a table name is not registered.
	ErrTableNotFound = errors.New("atlas: table not found")

	// ErrRelationNotFound is returned when a relation name is not defined
	// on a mapper.
	ErrRelationNotFound = errors.New("atlas: relation not found")

	// ErrInvalidDefinition is returned when a mapper, table or relation
	// definition is rejected at registration time.
	ErrInvalidDefinition = errors.New("atlas: invalid definition")

	// ErrUnknownField is returned when reading or writing a record field
	// that is neither a column nor a relation.
	ErrUnknownField = errors.New("atlas: unknown field")

	// ErrRowAlreadyMapped is returned when a row with the same primary key
	// is already held by an identity map.
	ErrRowAlreadyMapped = errors.New("atlas: row already in identity map")

	// ErrTxStarted is returned when attempting to start a new transaction
	// within an existing transaction.
	ErrTxStarted = errors.New("atlas: cannot start a transaction within a transaction")
)

// MapperNotFoundError reports a lookup of an unregistered mapper.
type MapperNotFoundError struct {
	Name string
}

// Error returns the error string.
func (e *MapperNotFoundError) Error() string {
	return fmt.Sprintf("atlas: mapper %q not found", e.Name)
}

// Is reports whether the target error matches ErrMapperNotFound.
func (e *MapperNotFoundError) Is(err error) bool {
	return err == ErrMapperNotFound
}

// NewMapperNotFoundError returns a new MapperNotFoundError.
func NewMapperNotFoundError(name string) *MapperNotFoundError {
	return &MapperNotFoundError{Name: name}
}

// IsMapperNotFound returns true if the error is a MapperNotFoundError.
func IsMapperNotFound(err error) bool {
	return err != nil && errors.Is(err, ErrMapperNotFound)
}

// TableNotFoundError reports a lookup of an unregistered table.
type TableNotFoundError struct {
	Name string
}

// Error returns the error string.
func (e *TableNotFoundError) Error() string {
	return fmt.Sprintf("atlas: table %q not found", e.Name)
}

// Is reports whether the target error matches ErrTableNotFound.
func (e *TableNotFoundError) Is(err error) bool {
	return err == ErrTableNotFound
}

// NewTableNotFoundError returns a new TableNotFoundError.
func NewTableNotFoundError(name string) *TableNotFoundError {
	return &TableNotFoundError{Name: name}
}

// RelationNotFoundError reports an unknown relation name on a mapper.
type RelationNotFoundError struct {
	Mapper string
	Name   string
}

// Error returns the error string.
func (e *RelationNotFoundError) Error() string {
	return fmt.Sprintf("atlas: relation %q not found on mapper %q", e.Name, e.Mapper)
}

// Is reports whether the target error matches ErrRelationNotFound.
func (e *RelationNotFoundError) Is(err error) bool {
	return err == ErrRelationNotFound
}

// NewRelationNotFoundError returns a new RelationNotFoundError.
func NewRelationNotFoundError(mapper, name string) *RelationNotFoundError {
	return &RelationNotFoundError{Mapper: mapper, Name: name}
}

// IsRelationNotFound returns true if the error is a RelationNotFoundError.
func IsRelationNotFound(err error) bool {
	return err != nil && errors.Is(err, ErrRelationNotFound)
}

// InvalidDefinitionError describes a definition rejected at registration.
type InvalidDefinitionError struct {
	Kind   string // "mapper", "table" or "relation"
	Name   string
	Reason string
}

// Error returns the error string.
func (e *InvalidDefinitionError) Error() string {
	return fmt.Sprintf("atlas: invalid %s definition %q: %s", e.Kind, e.Name, e.Reason)
}

// Is reports whether the target error matches ErrInvalidDefinition.
func (e *InvalidDefinitionError) Is(err error) bool {
	return err == ErrInvalidDefinition
}

// NewInvalidDefinitionError returns a new InvalidDefinitionError.
func NewInvalidDefinitionError(kind, name, format string, args ...any) *InvalidDefinitionError {
	return &InvalidDefinitionError{Kind: kind, Name: name, Reason: fmt.Sprintf(format, args...)}
}

// IsInvalidDefinition returns true if the error is an InvalidDefinitionError.
func IsInvalidDefinition(err error) bool {
	return err != nil && errors.Is(err, ErrInvalidDefinition)
}

// UnknownFieldError reports access to a field a record does not have.
type UnknownFieldError struct {
	Mapper string
	Field  string
}

// Error returns the error string.
func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("atlas: %s has no field %q", e.Mapper, e.Field)
}

// Is reports whether the target error matches ErrUnknownField.
func (e *UnknownFieldError) Is(err error) bool {
	return err == ErrUnknownField
}

// NewUnknownFieldError returns a new UnknownFieldError.
func NewUnknownFieldError(mapper, field string) *UnknownFieldError {
	return &UnknownFieldError{Mapper: mapper, Field: field}
}

// UnexpectedRowCountError is returned when a single-row write statement
// affects a different number of rows.
type UnexpectedRowCountError struct {
	Table    string
	Op       string
	Expected int64
	Actual   int64
}

// Error returns the error string.
func (e *UnexpectedRowCountError) Error() string {
	return fmt.Sprintf("atlas: %s %s affected %d rows, expected %d", e.Op, e.Table, e.Actual, e.Expected)
}

// IsUnexpectedRowCount returns true if the error is an UnexpectedRowCountError.
func IsUnexpectedRowCount(err error) bool {
	if err == nil {
		return false
	}
	var e *UnexpectedRowCountError
	return errors.As(err, &e)
}

// ConstraintError represents a database constraint violation error.
type ConstraintError struct {
	msg  string
	wrap error
}

// Error returns the error string.
func (e ConstraintError) Error() string {
	return fmt.Sprintf("atlas: constraint failed: %s", e.msg)
}

// Unwrap returns the underlying error.
func (e ConstraintError) Unwrap() error {
	return e.wrap
}

// NewConstraintError returns a new ConstraintError with the given message.
func NewConstraintError(msg string, wrap error) error {
	return ConstraintError{msg: msg, wrap: wrap}
}

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e ConstraintError
	return errors.As(err, &e)
}

// RollbackError wraps an error that occurred during a transaction rollback.
type RollbackError struct {
	Err error // Original error that triggered rollback
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("atlas: rollback failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RollbackError) Unwrap() error {
	return e.Err
}

// QueryError wraps a database error with the table and operation.
type QueryError struct {
	Entity string // Table or mapper name
	Op     string // Operation (e.g., "select", "insert", "stitch")
	Err    error  // Underlying error
}

// Error returns the error string.
func (e *QueryError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("atlas: querying %s (%s): %v", e.Entity, e.Op, e.Err)
	}
	return fmt.Sprintf("atlas: querying %s: %v", e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// NewQueryError returns a new QueryError.
func NewQueryError(entity, op string, err error) *QueryError {
	return &QueryError{Entity: entity, Op: op, Err: err}
}

// IsQueryError returns true if the error is a QueryError.
func IsQueryError(err error) bool {
	if err == nil {
		return false
	}
	var e *QueryError
	return errors.As(err, &e)
}
