package authz

import (
	"context"
	"strings"

	"github.com/sciforge/curator/errors"
	"github.com/sciforge/curator/graph"
	"github.com/sciforge/curator/model"
	"google.golang.org/grpc/codes"
)

// Record resolves a data record by key and validates its storage location
// against the ownership graph.
type Record struct {
	g   graph.Store
	key string
	id  string

	loc   *graph.Edge
	alloc *graph.Edge
}

// NewRecord wraps a record key (the final path component, without the `d/`
// prefix).
func NewRecord(g graph.Store, key string) *Record {
	return &Record{g: g, key: key, id: model.ID(model.KindRecord, key)}
}

// ID returns the record's document id.
func (r *Record) ID() string {
	return r.id
}

// Exists reports whether the record document is present.
func (r *Record) Exists(ctx context.Context) (bool, error) {
	return r.g.Exists(ctx, r.id)
}

// IsManaged loads the record's location and allocation edges. A record
// without them is not managed by the platform, which happens when files
// are placed on a repository out of band.
func (r *Record) IsManaged(ctx context.Context) (bool, error) {
	loc, err := r.g.FindEdge(ctx, graph.EdgeQuery{Label: graph.EdgeLoc, From: r.id})
	if err != nil {
		return false, err
	}
	if loc == nil {
		return false, nil
	}
	r.loc = loc

	alloc, err := r.g.FindEdge(ctx, graph.EdgeQuery{Label: graph.EdgeAlloc, From: loc.UID, To: loc.To})
	if err != nil {
		return false, err
	}
	r.alloc = alloc
	return alloc != nil, nil
}

// IsPathConsistent verifies that the supplied POSIX path matches the
// canonical path derived from the record's location. During a migration
// (loc carries new_repo) the path is checked against the new repository and
// allocation only. Returns nil when consistent.
func (r *Record) IsPathConsistent(ctx context.Context, path string) error {
	managed, err := r.IsManaged(ctx)
	if err != nil {
		return err
	}
	if r.loc == nil {
		return errors.NewC("permission denied, data is not managed by the platform", codes.PermissionDenied)
	}
	if !managed {
		return errors.Codef(codes.PermissionDenied, "permission denied, %q is not part of an allocation", r.key)
	}

	repoID := r.loc.To
	ownerID := r.loc.UID
	if r.loc.NewRepo != "" {
		repoID = r.loc.NewRepo
		if r.loc.NewOwner != "" {
			ownerID = r.loc.NewOwner
		}
		newAlloc, err := r.g.FindEdge(ctx, graph.EdgeQuery{Label: graph.EdgeAlloc, From: ownerID, To: repoID})
		if err != nil {
			return err
		}
		if newAlloc == nil {
			return errors.Codef(codes.PermissionDenied, "permission denied, %q is not part of an allocation", r.key)
		}
	}

	stored, err := r.canonicalPath(ctx, repoID, ownerID)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(path, "/") && strings.HasPrefix(stored, "/") {
		path = "/" + path
	}
	if stored != path {
		return errors.Codef(codes.PermissionDenied,
			"record path is not consistent with repo, expected path is %q, attempted path is %q", stored, path)
	}
	return nil
}

// canonicalPath computes where the record's file must live: the repo root,
// the owner-kind segment, the owner key, then the record key.
func (r *Record) canonicalPath(ctx context.Context, repoID, ownerID string) (string, error) {
	repo := &model.Repo{}
	if err := r.g.Get(ctx, repoID, repo); err != nil {
		if errors.Code(err) == codes.NotFound {
			return "", errors.Codef(codes.NotFound, "repo %q not found", repoID)
		}
		return "", err
	}
	if repo.Path == "" {
		return "", errors.Codef(codes.Internal, "repo %q has no path", repoID)
	}

	seg := "project"
	if model.Kind(ownerID) == model.KindUser {
		seg = "user"
	}
	return strings.TrimSuffix(repo.Path, "/") + "/" + seg + "/" + model.Key(ownerID) + "/" + r.key, nil
}
