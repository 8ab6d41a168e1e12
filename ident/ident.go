// Package ident resolves principals from the curation graph: users, groups,
// projects, and the roles that relate them. The permission engine and the
// path authorizer depend on it for everything identity-shaped so that graph
// layout details stay in one place.
package ident

import (
	"context"

	"github.com/sciforge/curator/errors"
	"github.com/sciforge/curator/graph"
	"github.com/sciforge/curator/model"
	"google.golang.org/grpc/codes"
)

// MembersGroup is the reserved group name holding a project's regular
// members.
const MembersGroup = "members"

// Resolver answers identity questions against a graph store.
type Resolver struct {
	g graph.Store
}

// New returns a Resolver backed by the given store.
func New(g graph.Store) *Resolver {
	return &Resolver{g: g}
}

// GetUser fetches a user document by id.
func (r *Resolver) GetUser(ctx context.Context, uid string) (*model.User, error) {
	u := &model.User{}
	if err := r.g.Get(ctx, uid, u); err != nil {
		if errors.Code(err) == codes.NotFound {
			return nil, errors.Codef(codes.NotFound, "user %q not found", uid)
		}
		return nil, err
	}
	return u, nil
}

// UserExists reports whether a user vertex exists.
func (r *Resolver) UserExists(ctx context.Context, uid string) (bool, error) {
	return r.g.Exists(ctx, uid)
}

// ProjectExists reports whether a project vertex exists.
func (r *Resolver) ProjectExists(ctx context.Context, pid string) (bool, error) {
	return r.g.Exists(ctx, pid)
}

// IsSystemAdmin reports whether the user carries the platform admin flag.
// A nil user (anonymous caller) is never an admin.
func (r *Resolver) IsSystemAdmin(u *model.User) bool {
	return u != nil && u.IsAdmin
}

// ProjectRole resolves the client's role on a project. Ownership wins over
// the manager role, which wins over plain membership.
func (r *Resolver) ProjectRole(ctx context.Context, clientID, projectID string) (model.ProjectRole, error) {
	e, err := r.g.FindEdge(ctx, graph.EdgeQuery{Label: graph.EdgeOwner, From: projectID, To: clientID})
	if err != nil {
		return model.ProjectNoRole, err
	}
	if e != nil {
		return model.ProjectAdmin, nil
	}

	e, err = r.g.FindEdge(ctx, graph.EdgeQuery{Label: graph.EdgeAdmin, From: projectID, To: clientID})
	if err != nil {
		return model.ProjectNoRole, err
	}
	if e != nil {
		return model.ProjectManager, nil
	}

	members, err := r.GroupByName(ctx, projectID, MembersGroup)
	if err != nil {
		if errors.Code(err) == codes.NotFound {
			return model.ProjectNoRole, nil
		}
		return model.ProjectNoRole, err
	}
	e, err = r.g.FindEdge(ctx, graph.EdgeQuery{Label: graph.EdgeMember, From: members.ID, To: clientID})
	if err != nil {
		return model.ProjectNoRole, err
	}
	if e != nil {
		return model.ProjectMember, nil
	}
	return model.ProjectNoRole, nil
}

// GroupByName resolves a group by name within an owner's namespace. Group
// names are only unique per owner, so the lookup walks the owner's groups
// rather than a global index.
func (r *Resolver) GroupByName(ctx context.Context, ownerID, name string) (*model.Group, error) {
	owned, err := r.g.Edges(ctx, graph.EdgeQuery{Label: graph.EdgeOwner, To: ownerID})
	if err != nil {
		return nil, err
	}
	for _, e := range owned {
		if model.Kind(e.From) != model.KindGroup {
			continue
		}
		grp := &model.Group{}
		if err := r.g.Get(ctx, e.From, grp); err != nil {
			return nil, err
		}
		if grp.GID == name {
			return grp, nil
		}
	}
	return nil, errors.Codef(codes.NotFound, "group %q not found for %q", name, ownerID)
}

// IsGroupMember reports whether the client has a member edge from the group.
func (r *Resolver) IsGroupMember(ctx context.Context, groupID, clientID string) (bool, error) {
	e, err := r.g.FindEdge(ctx, graph.EdgeQuery{Label: graph.EdgeMember, From: groupID, To: clientID})
	if err != nil {
		return false, err
	}
	return e != nil, nil
}

// HasAllocation reports whether the subject (a user or project) holds at
// least one repository allocation.
func (r *Resolver) HasAllocation(ctx context.Context, subjectID string) (bool, error) {
	e, err := r.g.FindEdge(ctx, graph.EdgeQuery{Label: graph.EdgeAlloc, From: subjectID})
	if err != nil {
		return false, err
	}
	return e != nil, nil
}

// Owner returns the id of the object's owning user or project. A secured
// object with no owner edge indicates graph corruption.
func (r *Resolver) Owner(ctx context.Context, objectID string) (string, error) {
	e, err := r.g.FindEdge(ctx, graph.EdgeQuery{Label: graph.EdgeOwner, From: objectID})
	if err != nil {
		return "", err
	}
	if e == nil {
		return "", errors.Codef(codes.Internal, "object %q has no owner", objectID)
	}
	return e.To, nil
}
