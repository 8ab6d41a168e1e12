package ident

import (
	"context"
	"testing"

	"github.com/sciforge/curator/errors"
	"github.com/sciforge/curator/graph"
	"github.com/sciforge/curator/graph/memgraph"
	"github.com/sciforge/curator/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestGetUser(t *testing.T) {
	ctx := context.Background()
	g := memgraph.New()
	require.NoError(t, g.PutVertex(ctx, "u/alice", model.User{ID: "u/alice", Name: "Alice"}))

	r := New(g)
	u, err := r.GetUser(ctx, "u/alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.Name)

	_, err = r.GetUser(ctx, "u/bob")
	assert.Equal(t, codes.NotFound, errors.Code(err))
}

func TestIsSystemAdmin(t *testing.T) {
	r := New(memgraph.New())
	assert.False(t, r.IsSystemAdmin(nil))
	assert.False(t, r.IsSystemAdmin(&model.User{ID: "u/alice"}))
	assert.True(t, r.IsSystemAdmin(&model.User{ID: "u/root", IsAdmin: true}))
}

func TestProjectRole(t *testing.T) {
	ctx := context.Background()
	g := memgraph.New()
	require.NoError(t, g.PutVertex(ctx, "p/proj", model.Project{ID: "p/proj"}))
	require.NoError(t, g.PutVertex(ctx, "g/proj-members", model.Group{
		ID: "g/proj-members", UID: "p/proj", GID: "members",
	}))
	require.NoError(t, g.PutEdge(ctx, graph.Edge{Label: graph.EdgeOwner, From: "p/proj", To: "u/owner"}))
	require.NoError(t, g.PutEdge(ctx, graph.Edge{Label: graph.EdgeOwner, From: "g/proj-members", To: "p/proj"}))
	require.NoError(t, g.PutEdge(ctx, graph.Edge{Label: graph.EdgeAdmin, From: "p/proj", To: "u/manager"}))
	require.NoError(t, g.PutEdge(ctx, graph.Edge{Label: graph.EdgeMember, From: "g/proj-members", To: "u/member"}))

	r := New(g)
	tests := []struct {
		client string
		want   model.ProjectRole
	}{
		{"u/owner", model.ProjectAdmin},
		{"u/manager", model.ProjectManager},
		{"u/member", model.ProjectMember},
		{"u/stranger", model.ProjectNoRole},
	}
	for _, tc := range tests {
		role, err := r.ProjectRole(ctx, tc.client, "p/proj")
		require.NoError(t, err)
		assert.Equal(t, tc.want, role, tc.client)
	}
}

func TestProjectRoleWithoutMembersGroup(t *testing.T) {
	ctx := context.Background()
	g := memgraph.New()
	require.NoError(t, g.PutVertex(ctx, "p/proj", model.Project{ID: "p/proj"}))
	require.NoError(t, g.PutEdge(ctx, graph.Edge{Label: graph.EdgeOwner, From: "p/proj", To: "u/owner"}))

	r := New(g)
	role, err := r.ProjectRole(ctx, "u/stranger", "p/proj")
	require.NoError(t, err)
	assert.Equal(t, model.ProjectNoRole, role)
}

func TestGroupByName(t *testing.T) {
	ctx := context.Background()
	g := memgraph.New()
	require.NoError(t, g.PutVertex(ctx, "g/1", model.Group{ID: "g/1", UID: "u/alice", GID: "friends"}))
	require.NoError(t, g.PutVertex(ctx, "g/2", model.Group{ID: "g/2", UID: "u/alice", GID: "lab"}))
	require.NoError(t, g.PutEdge(ctx, graph.Edge{Label: graph.EdgeOwner, From: "g/1", To: "u/alice"}))
	require.NoError(t, g.PutEdge(ctx, graph.Edge{Label: graph.EdgeOwner, From: "g/2", To: "u/alice"}))

	r := New(g)
	grp, err := r.GroupByName(ctx, "u/alice", "lab")
	require.NoError(t, err)
	assert.Equal(t, "g/2", grp.ID)

	_, err = r.GroupByName(ctx, "u/alice", "enemies")
	assert.Equal(t, codes.NotFound, errors.Code(err))

	// Same name under a different owner is a different namespace.
	_, err = r.GroupByName(ctx, "u/bob", "lab")
	assert.Equal(t, codes.NotFound, errors.Code(err))
}

func TestHasAllocation(t *testing.T) {
	ctx := context.Background()
	g := memgraph.New()
	require.NoError(t, g.PutEdge(ctx, graph.Edge{Label: graph.EdgeAlloc, From: "u/alice", To: "repo/main"}))

	r := New(g)
	ok, err := r.HasAllocation(ctx, "u/alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.HasAllocation(ctx, "u/bob")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOwner(t *testing.T) {
	ctx := context.Background()
	g := memgraph.New()
	require.NoError(t, g.PutEdge(ctx, graph.Edge{Label: graph.EdgeOwner, From: "d/1", To: "u/alice"}))

	r := New(g)
	owner, err := r.Owner(ctx, "d/1")
	require.NoError(t, err)
	assert.Equal(t, "u/alice", owner)

	_, err = r.Owner(ctx, "d/orphan")
	assert.Equal(t, codes.Internal, errors.Code(err))
}
