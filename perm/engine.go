package perm

import (
	"context"

	"github.com/sciforge/curator/errors"
	"github.com/sciforge/curator/graph"
	"github.com/sciforge/curator/ident"
	"github.com/sciforge/curator/model"
	"google.golang.org/grpc/codes"
)

// DefaultMaxDepth bounds the ancestor walk when no limit is configured.
const DefaultMaxDepth = 50

// Local holds the three separate permission contributions for one object:
// direct grants, direct inheritable grants, and bits inherited from
// ancestors. Used by listing/UI code, not for enforcement decisions.
type Local struct {
	Grant     Mask
	InhGrant  Mask
	Inherited Mask
}

// Engine evaluates a client's permissions on secured objects by walking
// ACL edges and the collection hierarchy.
//
// The engine does NOT check for ownership or admin privilege; callers that
// need those bypasses run HasAdminPermObject first. This split exists so
// that code filtering large listings of objects known not to be owned by
// the client does not pay for redundant ownership lookups on every item.
type Engine struct {
	g        graph.Store
	res      *ident.Resolver
	maxDepth int
}

// New returns an Engine over the given store. maxDepth bounds the ancestor
// walk; values <= 0 select DefaultMaxDepth.
func New(g graph.Store, res *ident.Resolver, maxDepth int) *Engine {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Engine{g: g, res: res, maxDepth: maxDepth}
}

// eval is the tri-state evaluator shared by the traversal routines. It
// returns (granted, decided): decided=false means keep looking.
func eval(req, found Mask, any bool) (bool, bool) {
	if any {
		if found&req != 0 {
			return true, true
		}
		return false, false
	}
	if found&req == req {
		return true, true
	}
	return false, false
}

// HasPermissions reports whether the client holds the requested permission
// bits on the object. With any=false every requested bit must be granted;
// with any=true a single granted bit suffices. With inherited=true the
// object's own inheritable grants also count toward the client's direct
// permissions on it.
func (e *Engine) HasPermissions(ctx context.Context, clientID string, obj *model.Object, req Mask, inherited, any bool) (bool, error) {
	var found Mask

	if obj.Public {
		found |= Public
		if granted, done := eval(req, found, any); done {
			return granted, nil
		}
	}

	if obj.ACLs&1 != 0 {
		grant, inhgrant, ok, err := e.userACL(ctx, obj.ID, clientID)
		if err != nil {
			return false, err
		}
		if ok {
			found |= grant
			if inherited {
				found |= inhgrant
			}
			if granted, done := eval(req, found, any); done {
				return granted, nil
			}
		}
	}

	if obj.ACLs&2 != 0 {
		grant, inhgrant, ok, err := e.groupACL(ctx, obj.ID, clientID)
		if err != nil {
			return false, err
		}
		if ok {
			found |= grant
			if inherited {
				found |= inhgrant
			}
			if granted, done := eval(req, found, any); done {
				return granted, nil
			}
		}
	}

	// Walk ancestors breadth-first. Only inheritable grants propagate down
	// the hierarchy, so direct grants on parents are ignored here.
	frontier := []string{obj.ID}
	for depth := 0; ; depth++ {
		if depth >= e.maxDepth {
			return false, errors.Codef(codes.Internal, "ancestor walk exceeded depth %d at %q", e.maxDepth, obj.ID)
		}
		parents, err := e.parents(ctx, frontier)
		if err != nil {
			return false, err
		}
		if len(parents) == 0 {
			return false, nil
		}
		for _, parent := range parents {
			if parent.Public {
				found |= Public
				if granted, done := eval(req, found, any); done {
					return granted, nil
				}
			}
			if parent.ACLs&1 != 0 {
				_, inhgrant, ok, err := e.userACL(ctx, parent.ID, clientID)
				if err != nil {
					return false, err
				}
				if ok {
					found |= inhgrant
					if granted, done := eval(req, found, any); done {
						return granted, nil
					}
				}
			}
			if parent.ACLs&2 != 0 {
				_, inhgrant, ok, err := e.groupACL(ctx, parent.ID, clientID)
				if err != nil {
					return false, err
				}
				if ok {
					found |= inhgrant
					if granted, done := eval(req, found, any); done {
						return granted, nil
					}
				}
			}
		}
		frontier = ids(parents)
	}
}

// GetPermissions returns the subset of req actually granted to the client
// on the object. It never fails on policy grounds; a partial result means a
// partial grant and callers must not treat nonzero as authorized.
func (e *Engine) GetPermissions(ctx context.Context, clientID string, obj *model.Object, req Mask, inherited bool) (Mask, error) {
	var found Mask

	if obj.Public {
		found |= Public
		if found&req == req {
			return req, nil
		}
	}

	if obj.ACLs&1 != 0 {
		grant, inhgrant, ok, err := e.userACL(ctx, obj.ID, clientID)
		if err != nil {
			return 0, err
		}
		if ok {
			found |= grant
			if inherited {
				found |= inhgrant
			}
			if found&req == req {
				return req, nil
			}
		}
	}

	if obj.ACLs&2 != 0 {
		grant, inhgrant, ok, err := e.groupACL(ctx, obj.ID, clientID)
		if err != nil {
			return 0, err
		}
		if ok {
			found |= grant
			if inherited {
				found |= inhgrant
			}
			if found&req == req {
				return req, nil
			}
		}
	}

	frontier := []string{obj.ID}
	for depth := 0; ; depth++ {
		if depth >= e.maxDepth {
			return 0, errors.Codef(codes.Internal, "ancestor walk exceeded depth %d at %q", e.maxDepth, obj.ID)
		}
		parents, err := e.parents(ctx, frontier)
		if err != nil {
			return 0, err
		}
		if len(parents) == 0 {
			return found & req, nil
		}
		for _, parent := range parents {
			if parent.Public {
				found |= Public
				if found&req == req {
					return req, nil
				}
			}
			if parent.ACLs&1 != 0 {
				_, inhgrant, ok, err := e.userACL(ctx, parent.ID, clientID)
				if err != nil {
					return 0, err
				}
				if ok {
					found |= inhgrant
					if found&req == req {
						return req, nil
					}
				}
			}
			if parent.ACLs&2 != 0 {
				_, inhgrant, ok, err := e.groupACL(ctx, parent.ID, clientID)
				if err != nil {
					return 0, err
				}
				if ok {
					found |= inhgrant
					if found&req == req {
						return req, nil
					}
				}
			}
		}
		frontier = ids(parents)
	}
}

// GetPermissionsLocal returns the three raw permission contributions for
// one object without masking. The inherited accumulator is only populated
// when getInherited is set; the walk stops early once it covers req.
func (e *Engine) GetPermissionsLocal(ctx context.Context, clientID string, obj *model.Object, getInherited bool, req Mask) (Local, error) {
	var p Local

	if obj.Public {
		p.Grant |= Public
		p.InhGrant |= Public
	}

	if obj.ACLs&1 != 0 {
		grant, inhgrant, _, err := e.userACL(ctx, obj.ID, clientID)
		if err != nil {
			return Local{}, err
		}
		p.Grant |= grant
		p.InhGrant |= inhgrant
	}

	if obj.ACLs&2 != 0 {
		grant, inhgrant, _, err := e.groupACL(ctx, obj.ID, clientID)
		if err != nil {
			return Local{}, err
		}
		p.Grant |= grant
		p.InhGrant |= inhgrant
	}

	if !getInherited {
		return p, nil
	}

	frontier := []string{obj.ID}
	for depth := 0; ; depth++ {
		if depth >= e.maxDepth {
			return Local{}, errors.Codef(codes.Internal, "ancestor walk exceeded depth %d at %q", e.maxDepth, obj.ID)
		}
		parents, err := e.parents(ctx, frontier)
		if err != nil {
			return Local{}, err
		}
		if len(parents) == 0 {
			return p, nil
		}
		for _, parent := range parents {
			if parent.Public {
				p.Inherited |= Public
			}
			if parent.ACLs&1 != 0 {
				_, inhgrant, _, err := e.userACL(ctx, parent.ID, clientID)
				if err != nil {
					return Local{}, err
				}
				p.Inherited |= inhgrant
			}
			if parent.ACLs&2 != 0 {
				_, inhgrant, _, err := e.groupACL(ctx, parent.ID, clientID)
				if err != nil {
					return Local{}, err
				}
				p.Inherited |= inhgrant
			}
			if req != 0 && req&p.Inherited == req {
				return p, nil
			}
		}
		frontier = ids(parents)
	}
}

// HasAdminPermObject reports whether the client holds administrative rights
// on an object: system admin, direct owner, owner or admin of the owning
// project, or (for records) the record's creator. A missing owner edge
// indicates a malformed object.
func (e *Engine) HasAdminPermObject(ctx context.Context, client *model.User, objectID string) (bool, error) {
	if client == nil {
		return false, nil
	}
	if client.IsAdmin {
		return true, nil
	}

	ownerEdge, err := e.g.FindEdge(ctx, graph.EdgeQuery{Label: graph.EdgeOwner, From: objectID})
	if err != nil {
		return false, err
	}
	if ownerEdge == nil {
		return false, errors.Codef(codes.Internal, "object %q has no owner", objectID)
	}
	ownerID := ownerEdge.To
	if ownerID == client.ID {
		return true, nil
	}

	if model.Kind(ownerID) == model.KindProject {
		adm, err := e.g.FindEdge(ctx, graph.EdgeQuery{Label: graph.EdgeAdmin, From: ownerID, To: client.ID})
		if err != nil {
			return false, err
		}
		if adm != nil {
			return true, nil
		}
		own, err := e.g.FindEdge(ctx, graph.EdgeQuery{Label: graph.EdgeOwner, From: ownerID, To: client.ID})
		if err != nil {
			return false, err
		}
		if own != nil {
			return true, nil
		}
	}

	if model.Kind(objectID) == model.KindRecord {
		rec := &model.Object{}
		if err := e.g.Get(ctx, objectID, rec); err != nil {
			if errors.Code(err) == codes.NotFound {
				return false, errors.Codef(codes.NotFound, "record %q not found", objectID)
			}
			return false, err
		}
		if rec.Creator == client.ID {
			return true, nil
		}
	}
	return false, nil
}

// HasPublicRead reports whether the object is anonymously readable: marked
// public itself (collections only) or reachable from a public ancestor.
func (e *Engine) HasPublicRead(ctx context.Context, objectID string) (bool, error) {
	if model.Kind(objectID) == model.KindCollection {
		col := &model.Object{}
		if err := e.g.Get(ctx, objectID, col); err != nil {
			return false, err
		}
		if col.Public {
			return true, nil
		}
	}

	frontier := []string{objectID}
	for depth := 0; ; depth++ {
		if depth >= e.maxDepth {
			return false, errors.Codef(codes.Internal, "ancestor walk exceeded depth %d at %q", e.maxDepth, objectID)
		}
		parents, err := e.parents(ctx, frontier)
		if err != nil {
			return false, err
		}
		if len(parents) == 0 {
			return false, nil
		}
		for _, parent := range parents {
			if parent.Public {
				return true, nil
			}
		}
		frontier = ids(parents)
	}
}

// userACL accumulates acl edges running directly from the object to the
// client.
func (e *Engine) userACL(ctx context.Context, objectID, clientID string) (grant, inhgrant Mask, found bool, err error) {
	edges, err := e.g.Edges(ctx, graph.EdgeQuery{Label: graph.EdgeACL, From: objectID, To: clientID})
	if err != nil {
		return 0, 0, false, err
	}
	for _, edge := range edges {
		grant |= Mask(edge.Grant)
		inhgrant |= Mask(edge.InhGrant)
	}
	return grant, inhgrant, len(edges) > 0, nil
}

// groupACL accumulates acl edges from the object to groups the client is a
// member of (a 2-hop walk: object -acl-> group -member-> client).
func (e *Engine) groupACL(ctx context.Context, objectID, clientID string) (grant, inhgrant Mask, found bool, err error) {
	edges, err := e.g.Edges(ctx, graph.EdgeQuery{Label: graph.EdgeACL, From: objectID})
	if err != nil {
		return 0, 0, false, err
	}
	for _, edge := range edges {
		if model.Kind(edge.To) != model.KindGroup {
			continue
		}
		member, err := e.g.FindEdge(ctx, graph.EdgeQuery{Label: graph.EdgeMember, From: edge.To, To: clientID})
		if err != nil {
			return 0, 0, false, err
		}
		if member == nil {
			continue
		}
		grant |= Mask(edge.Grant)
		inhgrant |= Mask(edge.InhGrant)
		found = true
	}
	return grant, inhgrant, found, nil
}

// parents fetches all direct parent collections of the frontier via inbound
// item edges, de-duplicated.
func (e *Engine) parents(ctx context.Context, frontier []string) ([]*model.Object, error) {
	seen := map[string]bool{}
	var out []*model.Object
	for _, id := range frontier {
		edges, err := e.g.Edges(ctx, graph.EdgeQuery{Label: graph.EdgeItem, To: id})
		if err != nil {
			return nil, err
		}
		for _, edge := range edges {
			if seen[edge.From] {
				continue
			}
			seen[edge.From] = true
			parent := &model.Object{}
			if err := e.g.Get(ctx, edge.From, parent); err != nil {
				return nil, err
			}
			parent.ID = edge.From
			out = append(out, parent)
		}
	}
	return out, nil
}

func ids(objs []*model.Object) []string {
	out := make([]string, len(objs))
	for i, o := range objs {
		out[i] = o.ID
	}
	return out
}
