package sql

import "strings"

// And combines all given predicates with AND between them.
func And(preds ...*Predicate) *Predicate {
	return junction("AND", preds...)
}

// Or combines all given predicates with OR between them.
func Or(preds ...*Predicate) *Predicate {
	return junction("OR", preds...)
}

func junction(op string, preds ...*Predicate) *Predicate {
	var ps []*Predicate
	for _, p := range preds {
		if p != nil {
			ps = append(ps, p)
		}
	}
	if len(ps) == 1 {
		return ps[0]
	}
	p := P(func(b *Builder) {
		for i, p := range ps {
			if i > 0 {
				b.WriteString(" " + op + " ")
			}
			p.nested(b)
		}
	})
	p.composite = true
	return p
}

// Not wraps the given predicate with the not predicate.
//
//	Not(Or(EQ("name", "foo"), EQ("name", "bar")))
func Not(pred *Predicate) *Predicate {
	return P(func(b *Builder) {
		b.WriteString("NOT (")
		pred.build(b)
		b.WriteByte(')')
	})
}

func binary(col, op string, v any) *Predicate {
	return P(func(b *Builder) {
		b.Ident(col).WriteString(" " + op + " ").Arg(v)
	})
}

// EQ returns a "=" predicate.
func EQ(col string, value any) *Predicate {
	return binary(col, "=", value)
}

// NEQ returns a "<>" predicate.
func NEQ(col string, value any) *Predicate {
	return binary(col, "<>", value)
}

// LT returns a "<" predicate.
func LT(col string, value any) *Predicate {
	return binary(col, "<", value)
}

// LTE returns a "<=" predicate.
func LTE(col string, value any) *Predicate {
	return binary(col, "<=", value)
}

// GT returns a ">" predicate.
func GT(col string, value any) *Predicate {
	return binary(col, ">", value)
}

// GTE returns a ">=" predicate.
func GTE(col string, value any) *Predicate {
	return binary(col, ">=", value)
}

// In returns the `IN` predicate. An empty value list matches nothing.
func In(col string, args ...any) *Predicate {
	return P(func(b *Builder) {
		if len(args) == 0 {
			b.WriteString("1 = 0")
			return
		}
		b.Ident(col).WriteString(" IN (").Args(args...).WriteByte(')')
	})
}

// InValues is an alias of In kept for generic callers holding typed slices.
func InValues[T any](col string, values ...T) *Predicate {
	return In(col, toAny(values)...)
}

// NotIn returns the `NOT IN` predicate. An empty value list matches everything.
func NotIn(col string, args ...any) *Predicate {
	return P(func(b *Builder) {
		if len(args) == 0 {
			b.WriteString("1 = 1")
			return
		}
		b.Ident(col).WriteString(" NOT IN (").Args(args...).WriteByte(')')
	})
}

// IsNull returns the `IS NULL` predicate.
func IsNull(col string) *Predicate {
	return P(func(b *Builder) {
		b.Ident(col).WriteString(" IS NULL")
	})
}

// NotNull returns the `IS NOT NULL` predicate.
func NotNull(col string) *Predicate {
	return P(func(b *Builder) {
		b.Ident(col).WriteString(" IS NOT NULL")
	})
}

// Like returns the `LIKE` predicate.
func Like(col, pattern string) *Predicate {
	return binary(col, "LIKE", pattern)
}

// HasPrefix is a helper predicate that checks prefix using the LIKE predicate.
func HasPrefix(col, prefix string) *Predicate {
	return Like(col, escapeLike(prefix)+"%")
}

// HasSuffix is a helper predicate that checks suffix using the LIKE predicate.
func HasSuffix(col, suffix string) *Predicate {
	return Like(col, "%"+escapeLike(suffix))
}

// Contains is a helper predicate that checks substring using the LIKE predicate.
func Contains(col, sub string) *Predicate {
	return Like(col, "%"+escapeLike(sub)+"%")
}

// Expr returns a predicate from a raw expression. Every "?" in the
// expression is replaced by the placeholder of the next argument.
//
//	Expr("LOWER(name) = ?", "a8m")
func Expr(expr string, args ...any) *Predicate {
	return P(func(b *Builder) {
		rest, next := expr, 0
		for {
			i := strings.IndexByte(rest, '?')
			if i < 0 || next >= len(args) {
				b.WriteString(rest)
				return
			}
			b.WriteString(rest[:i]).Arg(args[next])
			rest, next = rest[i+1:], next+1
		}
	})
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func toAny[T any](vs []T) []any {
	args := make([]any, len(vs))
	for i := range vs {
		args[i] = vs[i]
	}
	return args
}

// Column is a typed column name that provides type-safe predicate methods.
//
// Usage:
//
//	var AuthorID = sql.Column[int64]("author_id")
//	threads.Select(AuthorID.In(1, 2, 3))
type Column[T any] string

// Name returns the column name.
func (c Column[T]) Name() string { return string(c) }

// EQ returns a predicate that checks if the column equals the given value.
func (c Column[T]) EQ(v T) *Predicate {
	return EQ(string(c), v)
}

// NEQ returns a predicate that checks if the column does not equal the given value.
func (c Column[T]) NEQ(v T) *Predicate {
	return NEQ(string(c), v)
}

// In returns a predicate that checks if the column value is in the given list.
func (c Column[T]) In(vs ...T) *Predicate {
	return In(string(c), toAny(vs)...)
}

// NotIn returns a predicate that checks if the column value is not in the given list.
func (c Column[T]) NotIn(vs ...T) *Predicate {
	return NotIn(string(c), toAny(vs)...)
}

// GT returns a predicate that checks if the column is greater than the given value.
func (c Column[T]) GT(v T) *Predicate {
	return GT(string(c), v)
}

// GTE returns a predicate that checks if the column is greater than or equal to the given value.
func (c Column[T]) GTE(v T) *Predicate {
	return GTE(string(c), v)
}

// LT returns a predicate that checks if the column is less than the given value.
func (c Column[T]) LT(v T) *Predicate {
	return LT(string(c), v)
}

// LTE returns a predicate that checks if the column is less than or equal to the given value.
func (c Column[T]) LTE(v T) *Predicate {
	return LTE(string(c), v)
}

// IsNull returns a predicate that checks if the column is NULL.
func (c Column[T]) IsNull() *Predicate {
	return IsNull(string(c))
}

// NotNull returns a predicate that checks if the column is not NULL.
func (c Column[T]) NotNull() *Predicate {
	return NotNull(string(c))
}
