// Package acl applies ACL rule changes to records and collections. Rule
// sets are replaced wholesale: the whole batch is validated first, then the
// old edges are deleted and the new set inserted in one transaction, so a
// rejected batch leaves the object untouched.
package acl

import (
	"context"

	"github.com/sciforge/curator/errors"
	"github.com/sciforge/curator/graph"
	"github.com/sciforge/curator/ident"
	"github.com/sciforge/curator/logging"
	"github.com/sciforge/curator/model"
	"github.com/sciforge/curator/perm"
	"google.golang.org/grpc/codes"
)

// Rule is one ACL entry on an object. ID is a user id, or a group written
// as `g/<name>` on input and rendered as `g/<gid>` on output. Zero masks are
// omitted from responses.
type Rule struct {
	ID       string    `json:"id"`
	Grant    perm.Mask `json:"grant,omitempty"`
	InhGrant perm.Mask `json:"inhgrant,omitempty"`
}

// Guard validates and applies ACL mutations.
type Guard struct {
	g      graph.Store
	engine *perm.Engine
	res    *ident.Resolver
}

// NewGuard returns a Guard over the given store and engine.
func NewGuard(g graph.Store, engine *perm.Engine, res *ident.Resolver) *Guard {
	return &Guard{g: g, engine: engine, res: res}
}

// updateTxn declares the exact collection sets an ACL update touches.
var updateTxn = graph.TxnSpec{
	Read: []string{
		model.KindUser, model.KindProject, model.KindRecord,
		model.KindCollection, model.KindGroup,
		graph.EdgeOwner, graph.EdgeAdmin, graph.EdgeMember,
		graph.EdgeACL, graph.EdgeAlloc,
	},
	Write: []string{
		model.KindRecord, model.KindCollection, graph.EdgeACL,
	},
}

// Update replaces the object's ACL rules with the given set and returns the
// resulting rules. Non-admin clients need Share on the object and may not
// grant bits they do not hold themselves.
func (gd *Guard) Update(ctx context.Context, client *model.User, objectID string, rules []Rule) ([]Rule, error) {
	logging.Infow(ctx, "updating acl rules", "object", objectID, "client", client.ID, "rules", len(rules))

	isColl := model.Kind(objectID) == model.KindCollection
	if !isColl && model.Kind(objectID) != model.KindRecord {
		return nil, errors.Codef(codes.InvalidArgument, "invalid object type %q", objectID)
	}

	obj := &model.Object{}
	if err := gd.g.Get(ctx, objectID, obj); err != nil {
		if errors.Code(err) == codes.NotFound {
			return nil, errors.Codef(codes.NotFound, "object %q not found", objectID)
		}
		return nil, err
	}
	obj.ID = objectID

	ownerEdge, err := gd.g.FindEdge(ctx, graph.EdgeQuery{Label: graph.EdgeOwner, From: objectID})
	if err != nil {
		return nil, err
	}
	if ownerEdge == nil {
		return nil, errors.Codef(codes.Internal, "object %q has no owner", objectID)
	}
	ownerID := ownerEdge.To

	isAdmin, err := gd.engine.HasAdminPermObject(ctx, client, objectID)
	if err != nil {
		return nil, err
	}
	if !isAdmin {
		ok, err := gd.engine.HasPermissions(ctx, client.ID, obj, perm.Share, false, false)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.NewC("sharing permission required to update ACLs", codes.PermissionDenied)
		}
	}

	var clientPerm perm.Mask
	var curRules []Rule
	if !isAdmin {
		clientPerm, err = gd.engine.GetPermissions(ctx, client.ID, obj, perm.All, false)
		if err != nil {
			return nil, err
		}
		curRules, err = readRules(ctx, gd.g, objectID)
		if err != nil {
			return nil, err
		}
	}

	// Resolve and validate the full batch before touching any edges, so a
	// rejection mid-batch never leaves the object with partial rules.
	var aclMode uint8
	resolved := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		if !isColl && rule.InhGrant != 0 {
			return nil, errors.NewC("inherited permissions cannot be applied to data records", codes.InvalidArgument)
		}

		if model.Kind(rule.ID) == model.KindGroup {
			aclMode |= 2
			group, err := gd.res.GroupByName(ctx, ownerID, model.Key(rule.ID))
			if err != nil {
				if errors.Code(err) == codes.NotFound {
					return nil, errors.Codef(codes.NotFound, "group %q not found", rule.ID)
				}
				return nil, err
			}
			rule.ID = group.ID
		} else {
			aclMode |= 1
			ok, err := gd.g.Exists(ctx, rule.ID)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, errors.Codef(codes.NotFound, "user %q not found", rule.ID)
			}
		}

		if !isAdmin {
			if err := checkEscalation(rule, curRules, clientPerm); err != nil {
				return nil, err
			}
		}
		resolved = append(resolved, rule)
	}

	var result []Rule
	err = gd.g.WithTransaction(ctx, updateTxn, func(tx graph.Store) error {
		if err := tx.RemoveEdges(ctx, graph.EdgeQuery{Label: graph.EdgeACL, From: objectID}); err != nil {
			return err
		}
		for _, rule := range resolved {
			err := tx.PutEdge(ctx, graph.Edge{
				Label: graph.EdgeACL, From: objectID, To: rule.ID,
				Grant: uint16(rule.Grant), InhGrant: uint16(rule.InhGrant),
			})
			if err != nil {
				return err
			}
		}

		// Keep the 2-bit summary in sync: bit0 user rules, bit1 group rules.
		if err := tx.PatchVertex(ctx, objectID, map[string]any{"acls": aclMode}); err != nil {
			return err
		}

		result, err = gd.renderRules(ctx, tx, objectID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// View returns the object's current ACL rules. Requires admin rights or
// Share on the object.
func (gd *Guard) View(ctx context.Context, client *model.User, objectID string) ([]Rule, error) {
	if model.Kind(objectID) != model.KindCollection && model.Kind(objectID) != model.KindRecord {
		return nil, errors.Codef(codes.InvalidArgument, "invalid object type %q", objectID)
	}

	obj := &model.Object{}
	if err := gd.g.Get(ctx, objectID, obj); err != nil {
		if errors.Code(err) == codes.NotFound {
			return nil, errors.Codef(codes.NotFound, "object %q not found", objectID)
		}
		return nil, err
	}
	obj.ID = objectID

	isAdmin, err := gd.engine.HasAdminPermObject(ctx, client, objectID)
	if err != nil {
		return nil, err
	}
	if !isAdmin {
		ok, err := gd.engine.HasPermissions(ctx, client.ID, obj, perm.Share, false, false)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.NewC("sharing permission required to view ACLs", codes.PermissionDenied)
		}
	}
	return gd.renderRules(ctx, gd.g, objectID)
}

// checkEscalation enforces the non-admin constraint: the client may only
// flip bits it holds itself and may never touch the Share bit of an
// existing rule, and a brand-new rule must be a Share-free subset of the
// client's own grants.
//
// TODO confirm with product whether this check survives now that granting
// Share is meant to be unrestricted.
func checkEscalation(rule Rule, curRules []Rule, clientPerm perm.Mask) error {
	for _, old := range curRules {
		if old.ID != rule.ID {
			continue
		}
		if old.Grant != rule.Grant {
			chg := old.Grant ^ rule.Grant
			if chg&clientPerm != chg&^perm.Share {
				return errors.Codef(codes.PermissionDenied, "attempt to alter protected permissions on %q ACL", rule.ID)
			}
		}
		return nil
	}
	if rule.Grant&perm.Share != 0 || rule.Grant&clientPerm != rule.Grant {
		return errors.Codef(codes.PermissionDenied, "attempt to exceed controlled permissions on %q ACL", rule.ID)
	}
	return nil
}

func readRules(ctx context.Context, g graph.Store, objectID string) ([]Rule, error) {
	edges, err := g.Edges(ctx, graph.EdgeQuery{Label: graph.EdgeACL, From: objectID})
	if err != nil {
		return nil, err
	}
	rules := make([]Rule, 0, len(edges))
	for _, e := range edges {
		rules = append(rules, Rule{ID: e.To, Grant: perm.Mask(e.Grant), InhGrant: perm.Mask(e.InhGrant)})
	}
	return rules, nil
}

// renderRules reads back the object's rules with group targets rendered by
// name rather than internal id.
func (gd *Guard) renderRules(ctx context.Context, g graph.Store, objectID string) ([]Rule, error) {
	rules, err := readRules(ctx, g, objectID)
	if err != nil {
		return nil, err
	}
	for i, rule := range rules {
		if model.Kind(rule.ID) != model.KindGroup {
			continue
		}
		grp := &model.Group{}
		if err := g.Get(ctx, rule.ID, grp); err != nil {
			return nil, err
		}
		rules[i].ID = model.ID(model.KindGroup, grp.GID)
	}
	return rules, nil
}
