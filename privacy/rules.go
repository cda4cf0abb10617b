package privacy

import (
	"context"
	"slices"

	"github.com/syssam/atlas/mapper"
	"github.com/syssam/atlas/table"
)

// Viewer represents the authenticated user making a request.
type Viewer interface {
	// GetID returns the viewer's unique identifier.
	GetID() string
	// GetRoles returns the viewer's roles.
	GetRoles() []string
	// GetTenantID returns the viewer's tenant identifier, or "" when
	// tenancy does not apply.
	GetTenantID() string
}

type viewerCtxKey struct{}

// WithViewer returns a new context with the viewer attached.
func WithViewer(ctx context.Context, viewer Viewer) context.Context {
	return context.WithValue(ctx, viewerCtxKey{}, viewer)
}

// ViewerFromContext retrieves the viewer from the context, or nil.
func ViewerFromContext(ctx context.Context) Viewer {
	v, _ := ctx.Value(viewerCtxKey{}).(Viewer)
	return v
}

// SimpleViewer is a basic implementation of the Viewer interface.
type SimpleViewer struct {
	UserID   string
	Roles    []string
	TenantID string
}

// GetID returns the user ID.
func (v *SimpleViewer) GetID() string { return v.UserID }

// GetRoles returns the user's roles.
func (v *SimpleViewer) GetRoles() []string { return v.Roles }

// GetTenantID returns the tenant ID.
func (v *SimpleViewer) GetTenantID() string { return v.TenantID }

// DenyIfNoViewer returns a rule that denies writes without a viewer.
//
// Example:
//
//	privacy.Policy{
//	    privacy.DenyIfNoViewer(),
//	    privacy.HasRole("admin"),
//	    privacy.IsOwner("author_id"),
//	    privacy.AlwaysDenyRule(),
//	}
func DenyIfNoViewer() Rule {
	return ContextRule(func(ctx context.Context) error {
		if ViewerFromContext(ctx) == nil {
			return Denyf("atlas/privacy: viewer required")
		}
		return Skip
	})
}

// HasRole returns a rule that allows the write if the viewer has the role.
func HasRole(role string) Rule {
	return HasAnyRole(role)
}

// HasAnyRole returns a rule that allows the write if the viewer has any of
// the roles.
func HasAnyRole(roles ...string) Rule {
	return ContextRule(func(ctx context.Context) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		for _, role := range roles {
			if slices.Contains(viewer.GetRoles(), role) {
				return Allow
			}
		}
		return Skip
	})
}

// IsOwner returns a rule that allows the write if the record's column
// holds the viewer's ID.
func IsOwner(col string) Rule {
	return RuleFunc(func(ctx context.Context, _ Op, r *mapper.Record) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil || !r.Has(col) || r.Get(col) == nil {
			return Skip
		}
		if table.Key(r.Get(col)) == viewer.GetID() {
			return Allow
		}
		return Skip
	})
}

// TenantRule returns a rule that denies the write if the record's column
// does not hold the viewer's tenant. Viewers without a tenant skip.
func TenantRule(col string) Rule {
	return RuleFunc(func(ctx context.Context, _ Op, r *mapper.Record) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil || viewer.GetTenantID() == "" || !r.Has(col) {
			return Skip
		}
		if table.Key(r.Get(col)) == viewer.GetTenantID() {
			return Skip
		}
		return Denyf("atlas/privacy: tenant mismatch")
	})
}
