package privacy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/syssam/atlas/mapper"
)

// Policy decision sentinel errors.
//
// These errors are used as return values from rules to indicate how the
// policy evaluation should proceed. Use errors.Is() to check for them:
//
//	if errors.Is(err, privacy.Deny) { ... }
var (
	// Allow may be returned by rules to indicate that the policy
	// evaluation should terminate with an allow decision.
	Allow = errors.New("atlas/privacy: allow rule")

	// Deny may be returned by rules to indicate that the policy
	// evaluation should terminate with a deny decision.
	Deny = errors.New("atlas/privacy: deny rule")

	// Skip may be returned by rules to indicate that the policy
	// evaluation should continue to the next rule.
	Skip = errors.New("atlas/privacy: skip rule")
)

// Allowf returns a formatted wrapped Allow decision.
func Allowf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Allow)...)
}

// Denyf returns a formatted wrapped Deny decision.
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Deny)...)
}

// Skipf returns a formatted wrapped Skip decision.
func Skipf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Skip)...)
}

// Op is a set of write operations.
type Op uint

// Write operations.
const (
	OpInsert Op = 1 << iota
	OpUpdate
	OpDelete

	OpAll = OpInsert | OpUpdate | OpDelete
)

// Is reports whether o contains op.
func (o Op) Is(op Op) bool { return o&op != 0 }

func (o Op) String() string {
	var ops []string
	for _, op := range []struct {
		Op
		name string
	}{{OpInsert, "insert"}, {OpUpdate, "update"}, {OpDelete, "delete"}} {
		if o.Is(op.Op) {
			ops = append(ops, op.name)
		}
	}
	if len(ops) == 0 {
		return fmt.Sprintf("Op(%d)", uint(o))
	}
	return strings.Join(ops, "|")
}

// Rule decides whether a write of a record is allowed.
type Rule interface {
	Eval(ctx context.Context, op Op, r *mapper.Record) error
}

// RuleFunc type is an adapter which allows the use of ordinary functions
// as rules.
type RuleFunc func(ctx context.Context, op Op, r *mapper.Record) error

// Eval returns f(ctx, op, r).
func (f RuleFunc) Eval(ctx context.Context, op Op, r *mapper.Record) error {
	return f(ctx, op, r)
}

// AlwaysAllowRule returns a rule that always returns an Allow decision.
func AlwaysAllowRule() Rule {
	return RuleFunc(func(context.Context, Op, *mapper.Record) error { return Allow })
}

// AlwaysDenyRule returns a rule that always returns a Deny decision.
func AlwaysDenyRule() Rule {
	return RuleFunc(func(context.Context, Op, *mapper.Record) error { return Deny })
}

// ContextRule creates a rule from a context evaluation function. Returning
// nil is equivalent to returning Skip.
func ContextRule(eval func(context.Context) error) Rule {
	return RuleFunc(func(ctx context.Context, _ Op, _ *mapper.Record) error { return eval(ctx) })
}

// OnOperation evaluates the rule only on the given operations.
func OnOperation(rule Rule, op Op) Rule {
	return RuleFunc(func(ctx context.Context, o Op, r *mapper.Record) error {
		if o.Is(op) {
			return rule.Eval(ctx, o, r)
		}
		return Skip
	})
}

// DenyOperationRule returns a rule denying the operations.
func DenyOperationRule(op Op) Rule {
	return OnOperation(RuleFunc(func(_ context.Context, o Op, r *mapper.Record) error {
		return Denyf("atlas/privacy: %s of %s is not allowed", o, r.MapperName())
	}), op)
}

// AllowOperationRule returns a rule allowing the operations.
func AllowOperationRule(op Op) Rule {
	return OnOperation(AlwaysAllowRule(), op)
}

// Policy is an ordered list of rules. The first rule returning anything
// but Skip decides; a policy where every rule skips allows the write.
type Policy []Rule

// Eval evaluates the policy. An Allow decision yields nil.
func (p Policy) Eval(ctx context.Context, op Op, r *mapper.Record) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	for _, rule := range p {
		switch decision := rule.Eval(ctx, op, r); {
		case decision == nil || errors.Is(decision, Skip):
		case errors.Is(decision, Allow):
			return nil
		default:
			return decision
		}
	}
	return nil
}

// Events returns next with the policy evaluated before every insert,
// update and delete. A denied write never reaches the table, and the
// before event of next runs only once the policy allowed the write.
func (p Policy) Events(next mapper.Events) mapper.Events {
	e := next
	e.BeforeInsert = p.before(OpInsert, next.BeforeInsert)
	e.BeforeUpdate = p.before(OpUpdate, next.BeforeUpdate)
	e.BeforeDelete = p.before(OpDelete, next.BeforeDelete)
	return e
}

func (p Policy) before(op Op, next func(context.Context, *mapper.Mapper, *mapper.Record) error) func(context.Context, *mapper.Mapper, *mapper.Record) error {
	return func(ctx context.Context, m *mapper.Mapper, r *mapper.Record) error {
		if err := p.Eval(ctx, op, r); err != nil {
			return err
		}
		if next != nil {
			return next(ctx, m, r)
		}
		return nil
	}
}

type decisionCtxKey struct{}

// DecisionContext returns a context carrying a decision that overrides
// every policy, e.g. Allow for system jobs.
func DecisionContext(parent context.Context, decision error) context.Context {
	if decision == nil || errors.Is(decision, Skip) {
		return parent
	}
	return context.WithValue(parent, decisionCtxKey{}, decision)
}

// DecisionFromContext retrieves the policy decision from the context.
// An Allow decision is returned as nil.
func DecisionFromContext(ctx context.Context) (error, bool) {
	decision, ok := ctx.Value(decisionCtxKey{}).(error)
	if ok && errors.Is(decision, Allow) {
		decision = nil
	}
	return decision, ok
}
