package authz

import (
	"strings"

	"github.com/sciforge/curator/model"
)

// PathType classifies a POSIX path relative to a repository root. The
// supported layout under a root is `user/<key>/<record>` and
// `project/<key>/<record>`.
type PathType int

const (
	PathUnknown PathType = iota
	// PathUser is `<root>/user/<key>`.
	PathUser
	// PathUserRecord is `<root>/user/<key>/<record>`.
	PathUserRecord
	// PathProject is `<root>/project/<key>`.
	PathProject
	// PathProjectRecord is `<root>/project/<key>/<record>`.
	PathProjectRecord
	// PathRepoBase is a strict ancestor of the root.
	PathRepoBase
	// PathRepoRoot is the root itself.
	PathRepoRoot
	// PathRepo is `<root>/user` or `<root>/project`.
	PathRepo
)

func (t PathType) String() string {
	switch t {
	case PathUser:
		return "user"
	case PathUserRecord:
		return "user-record"
	case PathProject:
		return "project"
	case PathProjectRecord:
		return "project-record"
	case PathRepoBase:
		return "repo-base"
	case PathRepoRoot:
		return "repo-root"
	case PathRepo:
		return "repo"
	}
	return "unknown"
}

// ClassifyPath determines what kind of path has been provided relative to
// the repository's root. One trailing slash is tolerated on either side.
func ClassifyPath(repo *model.Repo, path string) PathType {
	root := strings.TrimSuffix(repo.Path, "/")
	path = strings.TrimSuffix(path, "/")

	switch {
	case len(path) == len(root):
		if path != root {
			return PathUnknown
		}
		return PathRepoRoot
	case len(path) < len(root):
		if strings.HasPrefix(root, path+"/") {
			return PathRepoBase
		}
		return PathUnknown
	case !strings.HasPrefix(path, root+"/"):
		return PathUnknown
	}

	parts := splitPOSIX(path[len(root):])
	if len(parts) == 0 || (parts[0] != "user" && parts[0] != "project") {
		return PathUnknown
	}
	switch len(parts) {
	case 1:
		return PathRepo
	case 2:
		if parts[0] == "user" {
			return PathUser
		}
		return PathProject
	case 3:
		if parts[0] == "user" {
			return PathUserRecord
		}
		return PathProjectRecord
	}
	return PathUnknown
}

// splitPOSIX splits a path into its components, dropping empty segments
// from leading, trailing, or doubled slashes.
func splitPOSIX(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// recordKey returns the final path component, the record key on record
// paths.
func recordKey(path string) string {
	parts := splitPOSIX(path)
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}
