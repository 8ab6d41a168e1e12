package perm

import (
	"context"

	"github.com/sciforge/curator/errors"
	"github.com/sciforge/curator/graph"
	"github.com/sciforge/curator/model"
	"google.golang.org/grpc/codes"
)

// CheckObjectPerms reports whether the client holds the requested bits on
// an object resolved by id prefix. Projects answer from role composites;
// records and collections run the admin bypass then the evaluation engine.
// A zero req checks for All.
func (e *Engine) CheckObjectPerms(ctx context.Context, client *model.User, id string, req Mask) (bool, error) {
	if req == 0 {
		req = All
	}
	switch model.Kind(id) {
	case model.KindProject:
		role, err := e.res.ProjectRole(ctx, client.ID, id)
		if err != nil {
			return false, err
		}
		switch role {
		case model.ProjectNoRole:
			// Non-members can only view project info.
			return req == RdRec, nil
		case model.ProjectMember:
			return req&^Member == 0, nil
		case model.ProjectManager:
			return req&^Manager == 0, nil
		}
		return true, nil

	case model.KindRecord:
		admin, err := e.HasAdminPermObject(ctx, client, id)
		if err != nil {
			return false, err
		}
		if admin {
			return true, nil
		}
		obj, err := e.getObject(ctx, id)
		if err != nil {
			return false, err
		}
		if obj.Locked {
			return false, nil
		}
		return e.HasPermissions(ctx, client.ID, obj, req, false, false)

	case model.KindCollection:
		if req&Create != 0 {
			if err := e.requireOwnerAllocation(ctx, id); err != nil {
				return false, err
			}
		}
		admin, err := e.HasAdminPermObject(ctx, client, id)
		if err != nil {
			return false, err
		}
		if admin {
			return true, nil
		}
		obj, err := e.getObject(ctx, id)
		if err != nil {
			return false, err
		}
		return e.HasPermissions(ctx, client.ID, obj, req, false, false)
	}
	return false, errors.Codef(codes.InvalidArgument, "invalid id %q", id)
}

// GetObjectPerms returns the subset of req the client actually holds on an
// object resolved by id prefix. Potentially slower than CheckObjectPerms
// since it cannot short-circuit on the first decisive grant.
func (e *Engine) GetObjectPerms(ctx context.Context, client *model.User, id string, req Mask) (Mask, error) {
	if req == 0 {
		req = All
	}
	switch model.Kind(id) {
	case model.KindProject:
		role, err := e.res.ProjectRole(ctx, client.ID, id)
		if err != nil {
			return 0, err
		}
		switch role {
		case model.ProjectNoRole:
			return req & RdRec, nil
		case model.ProjectMember:
			return req & Member, nil
		case model.ProjectManager:
			return req & Manager, nil
		}
		return req, nil

	case model.KindRecord:
		admin, err := e.HasAdminPermObject(ctx, client, id)
		if err != nil {
			return 0, err
		}
		if admin {
			return req, nil
		}
		obj, err := e.getObject(ctx, id)
		if err != nil {
			return 0, err
		}
		if obj.Locked {
			return 0, nil
		}
		return e.GetPermissions(ctx, client.ID, obj, req, false)

	case model.KindCollection:
		admin, err := e.HasAdminPermObject(ctx, client, id)
		if err != nil {
			return 0, err
		}
		if admin {
			return req, nil
		}
		obj, err := e.getObject(ctx, id)
		if err != nil {
			return 0, err
		}
		return e.GetPermissions(ctx, client.ID, obj, req, false)
	}
	return 0, errors.Codef(codes.InvalidArgument, "invalid id %q", id)
}

func (e *Engine) getObject(ctx context.Context, id string) (*model.Object, error) {
	obj := &model.Object{}
	if err := e.g.Get(ctx, id, obj); err != nil {
		if errors.Code(err) == codes.NotFound {
			return nil, errors.Codef(codes.NotFound, "object %q not found", id)
		}
		return nil, err
	}
	obj.ID = id
	return obj, nil
}

// requireOwnerAllocation rejects collection creation when the collection's
// owner has no repository allocation to place new records on.
func (e *Engine) requireOwnerAllocation(ctx context.Context, collID string) error {
	ownerEdge, err := e.g.FindEdge(ctx, graph.EdgeQuery{Label: graph.EdgeOwner, From: collID})
	if err != nil {
		return err
	}
	if ownerEdge == nil {
		return errors.Codef(codes.Internal, "collection %q has no owner", collID)
	}
	ok, err := e.res.HasAllocation(ctx, ownerEdge.To)
	if err != nil {
		return err
	}
	if !ok {
		return errors.NewC("an allocation is required to create a collection", codes.PermissionDenied)
	}
	return nil
}
