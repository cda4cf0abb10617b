// Package privacy guards the writes of a mapper with ordered rules.
//
// A rule returns Allow, Deny or Skip. Rules run in order until one
// returns a final decision; a policy where every rule skips allows the
// write. Policies attach to a mapper through its events:
//
//	policy := privacy.Policy{
//	    privacy.DenyIfNoViewer(),
//	    privacy.HasRole("admin"),
//	    privacy.OnOperation(privacy.IsOwner("author_id"), privacy.OpUpdate|privacy.OpDelete),
//	    privacy.AllowOperationRule(privacy.OpInsert),
//	    privacy.AlwaysDenyRule(),
//	}
//	def := orm.MapperDefinition{
//	    Name:   "Thread",
//	    Table:  threads,
//	    Events: policy.Events(mapper.Events{}),
//	}
//
// The viewer travels in the context:
//
//	ctx = privacy.WithViewer(ctx, &privacy.SimpleViewer{UserID: "10", Roles: []string{"member"}})
//
// Reads are not filtered. A policy decision carried by the context, see
// DecisionContext, overrides every policy.
package privacy
