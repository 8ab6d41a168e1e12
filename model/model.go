// Package model defines the vertex documents stored in the curation graph.
// Every document is addressed by a `{prefix}/{key}` id, where the prefix
// identifies the document kind: `u` user, `g` group, `p` project, `d` data
// record, `c` collection, `repo` repository.
package model

import "strings"

// Document kind prefixes.
const (
	KindUser       = "u"
	KindGroup      = "g"
	KindProject    = "p"
	KindRecord     = "d"
	KindCollection = "c"
	KindRepo       = "repo"
)

// User represents a platform user. Users may own records, collections and
// projects, and may be granted ACLs directly or through group membership.
type User struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	IsAdmin bool   `json:"is_admin,omitempty"`
}

// Group is a named set of users scoped to an owner (a user or project).
// Membership is recorded with `member` edges from the group to each user.
type Group struct {
	ID string `json:"id"`
	// UID is the id of the owning user or project. Group names are unique
	// only within their owner's namespace.
	UID   string `json:"uid"`
	GID   string `json:"gid"`
	Title string `json:"title,omitempty"`
}

// Project owns records and collections on behalf of a team. Project roles
// (owner, admin/manager, member) are resolved from `owner` and `admin` edges
// and the project's "members" group.
type Project struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// Repo is a data repository. Path is the POSIX root under which all managed
// record files live, laid out as `<path>/user/<key>/<record>` or
// `<path>/project/<key>/<record>`.
type Repo struct {
	ID       string `json:"id"`
	Path     string `json:"path"`
	Capacity int64  `json:"capacity,omitempty"`
}

// Object is the view of a secured object (record or collection) consumed by
// the permission engine. Both document kinds unmarshal into it.
type Object struct {
	ID      string `json:"id"`
	Owner   string `json:"owner,omitempty"`
	Creator string `json:"creator,omitempty"`

	// Public marks a collection subtree as anonymously readable at the
	// public composite level. Records are never public directly; they become
	// publicly readable through a public ancestor.
	Public bool `json:"public,omitempty"`

	// ACLs is a 2-bit summary kept in sync with the object's acl edges:
	// bit0 set iff any direct user ACL exists, bit1 iff any group ACL.
	// It lets the engine skip edge lookups entirely for unshared objects.
	ACLs uint8 `json:"acls,omitempty"`

	// Locked records grant nothing regardless of ACLs.
	Locked bool `json:"locked,omitempty"`
}

// ProjectRole is a client's role on a project.
type ProjectRole int

const (
	ProjectNoRole ProjectRole = iota
	ProjectMember
	ProjectManager
	ProjectAdmin
)

func (r ProjectRole) String() string {
	switch r {
	case ProjectMember:
		return "member"
	case ProjectManager:
		return "manager"
	case ProjectAdmin:
		return "admin"
	}
	return "none"
}

// Kind returns the document kind prefix of an id, or "" if the id is not of
// the form `{prefix}/{key}`.
func Kind(id string) string {
	i := strings.Index(id, "/")
	if i <= 0 || i == len(id)-1 {
		return ""
	}
	return id[:i]
}

// Key returns the portion of an id after the kind prefix.
func Key(id string) string {
	i := strings.Index(id, "/")
	if i < 0 {
		return id
	}
	return id[i+1:]
}

// ID joins a kind prefix and key into a document id.
func ID(kind, key string) string {
	return kind + "/" + key
}
