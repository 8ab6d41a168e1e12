// Package authz implements path-based authorization for the data-transfer
// layer. A request names a client, an action, a repository, and a POSIX
// path; the path is classified relative to the repository root and a fixed
// per-(action, path type) strategy decides the outcome, consulting the
// permission engine and the record location graph.
package authz

import (
	"context"

	"github.com/google/uuid"
	"github.com/sciforge/curator/errors"
	"github.com/sciforge/curator/graph"
	"github.com/sciforge/curator/ident"
	"github.com/sciforge/curator/logging"
	"github.com/sciforge/curator/model"
	"github.com/sciforge/curator/perm"
	"google.golang.org/grpc/codes"
)

// Action is a data-transfer operation subject to path authorization.
type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionCreate Action = "create"
	ActionDelete Action = "delete"
	ActionChdir  Action = "chdir"
	ActionLookup Action = "lookup"
)

// ParseAction validates an action string from the transfer layer.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionRead, ActionWrite, ActionCreate, ActionDelete, ActionChdir, ActionLookup:
		return a, nil
	}
	return "", errors.Codef(codes.InvalidArgument, "invalid transfer action %q", s)
}

// strategy is the closed set of authorization behaviors a table cell can
// select.
type strategy int

const (
	stratNone strategy = iota
	stratDenied
	stratReadRecord
	stratCreateRecord
	stratLookupUser
	stratLookupProject
	stratLookupRepo
	stratLookupRecord
)

// strategyFor maps an (action, path type) pair to its strategy. Deletion is
// never permitted through the path interface; finer-grained read/write
// checks happen in the record layer, so most non-record paths get none.
func strategyFor(action Action, pt PathType) (strategy, error) {
	switch action {
	case ActionRead:
		if pt == PathUserRecord || pt == PathProjectRecord {
			return stratReadRecord, nil
		}
		return stratNone, nil
	case ActionWrite, ActionChdir:
		return stratNone, nil
	case ActionCreate:
		if pt == PathUserRecord || pt == PathProjectRecord {
			return stratCreateRecord, nil
		}
		return stratNone, nil
	case ActionDelete:
		return stratDenied, nil
	case ActionLookup:
		switch pt {
		case PathUser:
			return stratLookupUser, nil
		case PathProject:
			return stratLookupProject, nil
		case PathRepoBase, PathRepoRoot, PathRepo:
			return stratLookupRepo, nil
		case PathUserRecord, PathProjectRecord:
			return stratLookupRecord, nil
		}
	}
	return 0, errors.Codef(codes.InvalidArgument, "invalid transfer action %q", action)
}

// Authorizer answers path authorization requests.
type Authorizer struct {
	g      graph.Store
	engine *perm.Engine
	res    *ident.Resolver
}

// New returns an Authorizer over the given store and engine.
func New(g graph.Store, engine *perm.Engine, res *ident.Resolver) *Authorizer {
	return &Authorizer{g: g, engine: engine, res: res}
}

// Authorize checks whether the client may perform the action on the path
// within the repository. A nil client is an anonymous caller, which only
// publicly readable records admit. Returns nil when authorized.
func (a *Authorizer) Authorize(ctx context.Context, client *model.User, action Action, repoID, path string) error {
	reqID := uuid.NewString()
	clientID := "anonymous"
	if client != nil {
		clientID = client.ID
	}
	log := logging.FromContext(ctx).With("req", reqID)

	err := a.authorize(ctx, client, action, repoID, path)
	if err != nil {
		log.Warnw("authorization denied",
			"act", string(action), "client", clientID, "repo", repoID, "path", path, "error", err)
		return err
	}
	log.Infow("authorization granted",
		"act", string(action), "client", clientID, "repo", repoID, "path", path)
	return nil
}

func (a *Authorizer) authorize(ctx context.Context, client *model.User, action Action, repoID, path string) error {
	repo := &model.Repo{}
	if err := a.g.Get(ctx, repoID, repo); err != nil {
		if errors.Code(err) == codes.NotFound {
			return errors.Codef(codes.NotFound, "repo %q not found", repoID)
		}
		return err
	}
	if repo.Path == "" {
		return errors.Codef(codes.Internal, "repo %q has no path", repoID)
	}

	pt := ClassifyPath(repo, path)
	if pt == PathUnknown {
		return errors.Codef(codes.PermissionDenied,
			"unknown path, or path is not consistent with supported repository folder hierarchy: %q", path)
	}

	strat, err := strategyFor(action, pt)
	if err != nil {
		return err
	}

	switch strat {
	case stratNone:
		return nil
	case stratDenied:
		return errors.Codef(codes.PermissionDenied, "%s is not permitted on %q", action, path)
	case stratReadRecord:
		return a.recordAction(ctx, client, path, perm.RdData, ActionRead)
	case stratCreateRecord:
		return a.createRecord(ctx, client, path)
	case stratLookupRecord:
		return a.recordAction(ctx, client, path, perm.RdRec, ActionLookup)
	case stratLookupUser:
		return a.lookupUser(ctx, client, path)
	case stratLookupProject:
		return a.lookupProject(ctx, client, repoID, path)
	case stratLookupRepo:
		return a.lookupRepo(ctx, client, repoID)
	}
	return errors.Codef(codes.Internal, "unhandled authorization strategy for %s on %s", action, pt)
}

// recordActionAuthorized runs the admin bypass then the evaluation engine
// for one permission bit on a record.
func (a *Authorizer) recordActionAuthorized(ctx context.Context, client *model.User, recordID string, req perm.Mask) (bool, error) {
	admin, err := a.engine.HasAdminPermObject(ctx, client, recordID)
	if err != nil {
		return false, err
	}
	if admin {
		return true, nil
	}
	obj := &model.Object{}
	if err := a.g.Get(ctx, recordID, obj); err != nil {
		return false, err
	}
	obj.ID = recordID
	return a.engine.HasPermissions(ctx, client.ID, obj, req, false, false)
}

// recordAction authorizes read-shaped actions on a record path: the record
// must exist, the client must hold the permission bit (anonymous clients
// only pass on publicly readable records), and the path must match the
// record's storage location.
func (a *Authorizer) recordAction(ctx context.Context, client *model.User, path string, req perm.Mask, action Action) error {
	rec := NewRecord(a.g, recordKey(path))
	ok, err := rec.Exists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Codef(codes.NotFound, "record not found: %q", path)
	}

	if client == nil {
		pub, err := a.engine.HasPublicRead(ctx, rec.ID())
		if err != nil {
			return err
		}
		if !pub {
			return errors.Codef(codes.PermissionDenied, "unknown client does not have %s permissions on %q", action, path)
		}
	} else {
		ok, err := a.recordActionAuthorized(ctx, client, rec.ID(), req)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Codef(codes.PermissionDenied, "client %q does not have %s permissions on %q", client.ID, action, path)
		}
	}
	return rec.IsPathConsistent(ctx, path)
}

// createRecord authorizes writing a new file for an already-registered
// record. The registration must precede the transfer, so a missing record
// here is a denial rather than a not-found.
func (a *Authorizer) createRecord(ctx context.Context, client *model.User, path string) error {
	if client == nil {
		return errors.Codef(codes.PermissionDenied, "unknown client does not have create permissions on %q", path)
	}

	rec := NewRecord(a.g, recordKey(path))
	exists, err := rec.Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		// Records are registered before their files are transferred, so an
		// unregistered key can never produce a consistent path.
		return errors.Codef(codes.PermissionDenied, "invalid record specified: %q", path)
	}

	ok, err := a.recordActionAuthorized(ctx, client, rec.ID(), perm.WrData)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Codef(codes.PermissionDenied, "client %q does not have create permissions on %q", client.ID, path)
	}
	return rec.IsPathConsistent(ctx, path)
}

// lookupUser admits only the user whose home directory the path names.
func (a *Authorizer) lookupUser(ctx context.Context, client *model.User, path string) error {
	if client == nil {
		return errors.Codef(codes.PermissionDenied, "unknown client cannot look up %q", path)
	}
	userID := model.ID(model.KindUser, recordKey(path))
	if client.ID != userID {
		return errors.Codef(codes.PermissionDenied, "client %q cannot look up %q", client.ID, path)
	}
	return nil
}

// lookupProject admits clients with any role on the project, provided the
// project actually holds an allocation on this repository.
func (a *Authorizer) lookupProject(ctx context.Context, client *model.User, repoID, path string) error {
	if client == nil {
		return errors.Codef(codes.PermissionDenied, "unknown client cannot look up %q", path)
	}
	projectID := model.ID(model.KindProject, recordKey(path))
	ok, err := a.res.ProjectExists(ctx, projectID)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Codef(codes.NotFound, "project %q not found", projectID)
	}

	alloc, err := a.g.FindEdge(ctx, graph.EdgeQuery{Label: graph.EdgeAlloc, From: projectID, To: repoID})
	if err != nil {
		return err
	}
	if alloc == nil {
		return errors.Codef(codes.PermissionDenied, "project %q has no allocation on %q", projectID, repoID)
	}

	role, err := a.res.ProjectRole(ctx, client.ID, projectID)
	if err != nil {
		return err
	}
	if role == model.ProjectNoRole {
		return errors.Codef(codes.PermissionDenied, "client %q has no role on %q", client.ID, projectID)
	}
	return nil
}

// lookupRepo admits clients with any access path to the repository: a
// direct allocation, an allocation held by a project they own or
// administer, or one held by the owner of a group they belong to.
func (a *Authorizer) lookupRepo(ctx context.Context, client *model.User, repoID string) error {
	if client == nil {
		return errors.Codef(codes.PermissionDenied, "unknown client cannot look up repo %q", repoID)
	}

	alloc, err := a.g.FindEdge(ctx, graph.EdgeQuery{Label: graph.EdgeAlloc, From: client.ID, To: repoID})
	if err != nil {
		return err
	}
	if alloc != nil {
		return nil
	}

	for _, label := range []string{graph.EdgeOwner, graph.EdgeAdmin} {
		edges, err := a.g.Edges(ctx, graph.EdgeQuery{Label: label, To: client.ID})
		if err != nil {
			return err
		}
		for _, e := range edges {
			if model.Kind(e.From) != model.KindProject {
				continue
			}
			alloc, err := a.g.FindEdge(ctx, graph.EdgeQuery{Label: graph.EdgeAlloc, From: e.From, To: repoID})
			if err != nil {
				return err
			}
			if alloc != nil {
				return nil
			}
		}
	}

	// Group membership reaches the allocation of the group's owner.
	memberships, err := a.g.Edges(ctx, graph.EdgeQuery{Label: graph.EdgeMember, To: client.ID})
	if err != nil {
		return err
	}
	for _, m := range memberships {
		ownerEdge, err := a.g.FindEdge(ctx, graph.EdgeQuery{Label: graph.EdgeOwner, From: m.From})
		if err != nil {
			return err
		}
		if ownerEdge == nil {
			continue
		}
		alloc, err := a.g.FindEdge(ctx, graph.EdgeQuery{Label: graph.EdgeAlloc, From: ownerEdge.To, To: repoID})
		if err != nil {
			return err
		}
		if alloc != nil {
			return nil
		}
	}
	return errors.Codef(codes.PermissionDenied, "client %q has no access to repo %q", client.ID, repoID)
}
