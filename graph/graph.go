// Package graph defines the store interface over which all permission, ACL
// and path-authorization logic is expressed. The store holds JSON vertex
// documents addressed by `{prefix}/{key}` ids, and labeled directed edges
// between them with optional attributes.
//
// The interface is deliberately small: point lookups, existence checks,
// single-edge matches and one-hop edge listings. Multi-hop walks (ancestor
// inheritance, role chains) are guided by the callers so they can
// short-circuit as soon as an answer is determined.
//
// Implementations: memgraph (in-memory, tests and examples), sqlitegraph
// (SQLite), pggraph (PostgreSQL).
package graph

import (
	"context"

	"github.com/sciforge/curator/errors"
	"google.golang.org/grpc/codes"
)

// Edge labels used by the curation graph.
const (
	// EdgeOwner links a secured object, group or project to its owning user
	// or project. Every secured object has exactly one.
	EdgeOwner = "owner"
	// EdgeItem links a collection to a child collection or record.
	EdgeItem = "item"
	// EdgeACL links a secured object to a principal with grant/inhgrant masks.
	EdgeACL = "acl"
	// EdgeMember links a group to a member user.
	EdgeMember = "member"
	// EdgeAdmin links a project or repo to an administrator user.
	EdgeAdmin = "admin"
	// EdgeAlloc links a user or project to a repository it holds an
	// allocation on, with usage and limit attributes.
	EdgeAlloc = "alloc"
	// EdgeLoc links a record to the repository storing its raw data.
	EdgeLoc = "loc"
	// EdgeTop links a collection to a topic in the public catalog.
	EdgeTop = "top"
	// EdgeNote links an annotation to its subject.
	EdgeNote = "note"
)

// ErrNotFound is returned by Get when the vertex does not exist.
var ErrNotFound = errors.NewC("vertex not found", codes.NotFound)

// Edge is a directed, labeled relation between two vertices. Attribute
// fields are populated according to the label; unused attributes are zero.
type Edge struct {
	Label string `json:"-"`
	From  string `json:"from"`
	To    string `json:"to"`

	// ACL edges: directly granted bits and bits inherited by descendants.
	Grant    uint16 `json:"grant,omitempty"`
	InhGrant uint16 `json:"inhgrant,omitempty"`

	// Loc edges: effective owner at storage time, and migration target
	// repo/owner while a transfer is in flight.
	UID      string `json:"uid,omitempty"`
	NewRepo  string `json:"new_repo,omitempty"`
	NewOwner string `json:"new_owner,omitempty"`

	// Alloc edges: usage and limits.
	DataLimit int64 `json:"data_limit,omitempty"`
	DataSize  int64 `json:"data_size,omitempty"`
	RecLimit  int64 `json:"rec_limit,omitempty"`
	RecCount  int64 `json:"rec_count,omitempty"`
}

// EdgeQuery selects edges by label and endpoints. Label is required; empty
// From/To act as wildcards.
type EdgeQuery struct {
	Label string
	From  string
	To    string
}

// TxnSpec declares the exact vertex kinds and edge labels a transaction
// reads and writes. Writes outside the declared write set are rejected,
// which keeps mutation locking at least-privilege.
type TxnSpec struct {
	Read  []string
	Write []string
}

// Store is the graph datastore consumed by the permission engine, the ACL
// guard and the authorization strategies.
//
// Reads outside a transaction observe an individually consistent snapshot
// but are not synchronized with concurrent mutations: an access decision may
// be evaluated against ACL state that changes immediately afterward. This
// read-then-act staleness is inherent to the model.
type Store interface {
	// Exists reports whether a vertex with the given id exists.
	Exists(ctx context.Context, id string) (bool, error)

	// Get unmarshals the vertex document into doc. Returns ErrNotFound if
	// the vertex does not exist.
	Get(ctx context.Context, id string, doc any) error

	// FindEdge returns the first edge matching the query, or nil.
	FindEdge(ctx context.Context, q EdgeQuery) (*Edge, error)

	// Edges returns all edges matching the query.
	Edges(ctx context.Context, q EdgeQuery) ([]Edge, error)

	// PutVertex stores (or replaces) a vertex document.
	PutVertex(ctx context.Context, id string, doc any) error

	// PatchVertex merges the patch into the vertex document. A nil patch
	// value removes the field.
	PatchVertex(ctx context.Context, id string, patch map[string]any) error

	// PutEdge stores an edge.
	PutEdge(ctx context.Context, e Edge) error

	// RemoveEdges deletes all edges matching the query.
	RemoveEdges(ctx context.Context, q EdgeQuery) error

	// WithTransaction runs fn atomically with the declared read/write sets.
	// If fn returns an error the transaction rolls back and the error is
	// returned unchanged.
	WithTransaction(ctx context.Context, spec TxnSpec, fn func(tx Store) error) error
}

// Allowed reports whether a vertex kind or edge label is in the set.
func (s TxnSpec) Allowed(set []string, name string) bool {
	for _, n := range set {
		if n == name {
			return true
		}
	}
	return false
}

// CheckWrite returns an error unless name is in the transaction's write set.
func (s TxnSpec) CheckWrite(name string) error {
	if !s.Allowed(s.Write, name) {
		return errors.Codef(codes.Internal,
			"transaction wrote to undeclared collection %q", name)
	}
	return nil
}

// CheckRead returns an error unless name is in the transaction's read or
// write set.
func (s TxnSpec) CheckRead(name string) error {
	if !s.Allowed(s.Read, name) && !s.Allowed(s.Write, name) {
		return errors.Codef(codes.Internal,
			"transaction read from undeclared collection %q", name)
	}
	return nil
}
