package perm

import (
	"context"
	"testing"

	"github.com/sciforge/curator/errors"
	"github.com/sciforge/curator/graph"
	"github.com/sciforge/curator/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestCheckObjectPermsProjectRoles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.g.PutVertex(ctx, "p/proj", model.Project{ID: "p/proj"}))
	require.NoError(t, f.g.PutVertex(ctx, "g/proj-members", model.Group{ID: "g/proj-members", UID: "p/proj", GID: "members"}))
	require.NoError(t, f.g.PutEdge(ctx, graph.Edge{Label: graph.EdgeOwner, From: "p/proj", To: "u/owner"}))
	require.NoError(t, f.g.PutEdge(ctx, graph.Edge{Label: graph.EdgeOwner, From: "g/proj-members", To: "p/proj"}))
	require.NoError(t, f.g.PutEdge(ctx, graph.Edge{Label: graph.EdgeAdmin, From: "p/proj", To: "u/manager"}))
	require.NoError(t, f.g.PutEdge(ctx, graph.Edge{Label: graph.EdgeMember, From: "g/proj-members", To: "u/member"}))

	tests := []struct {
		client string
		req    Mask
		want   bool
	}{
		{"u/stranger", RdRec, true},
		{"u/stranger", RdRec | List, false},
		{"u/member", Member, true},
		{"u/member", Share, false},
		{"u/manager", Manager, true},
		{"u/manager", WrData, false},
		{"u/owner", All, true},
	}
	for _, tc := range tests {
		got, err := f.e.CheckObjectPerms(ctx, &model.User{ID: tc.client}, "p/proj", tc.req)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s req=%s", tc.client, tc.req)
	}
}

func TestCheckObjectPermsLockedRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.putObject(t, model.Object{ID: "d/1", ACLs: 1, Locked: true}, "u/owner")
	f.putACL(t, "d/1", "u/bob", All, 0)

	got, err := f.e.CheckObjectPerms(ctx, &model.User{ID: "u/bob"}, "d/1", RdRec)
	require.NoError(t, err)
	assert.False(t, got)

	// The lock does not apply to the owner's admin bypass.
	got, err = f.e.CheckObjectPerms(ctx, &model.User{ID: "u/owner"}, "d/1", All)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestCheckObjectPermsCollectionCreateNeedsAllocation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.putObject(t, model.Object{ID: "c/1"}, "u/owner")

	_, err := f.e.CheckObjectPerms(ctx, &model.User{ID: "u/owner"}, "c/1", Create)
	assert.Equal(t, codes.PermissionDenied, errors.Code(err))

	require.NoError(t, f.g.PutEdge(ctx, graph.Edge{Label: graph.EdgeAlloc, From: "u/owner", To: "repo/main"}))
	got, err := f.e.CheckObjectPerms(ctx, &model.User{ID: "u/owner"}, "c/1", Create)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestCheckObjectPermsInvalidID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.e.CheckObjectPerms(ctx, &model.User{ID: "u/bob"}, "x/1", RdRec)
	assert.Equal(t, codes.InvalidArgument, errors.Code(err))
}

func TestGetObjectPermsProjectRoles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.g.PutVertex(ctx, "p/proj", model.Project{ID: "p/proj"}))
	require.NoError(t, f.g.PutVertex(ctx, "g/proj-members", model.Group{ID: "g/proj-members", UID: "p/proj", GID: "members"}))
	require.NoError(t, f.g.PutEdge(ctx, graph.Edge{Label: graph.EdgeOwner, From: "p/proj", To: "u/owner"}))
	require.NoError(t, f.g.PutEdge(ctx, graph.Edge{Label: graph.EdgeOwner, From: "g/proj-members", To: "p/proj"}))
	require.NoError(t, f.g.PutEdge(ctx, graph.Edge{Label: graph.EdgeMember, From: "g/proj-members", To: "u/member"}))

	tests := []struct {
		client string
		want   Mask
	}{
		{"u/stranger", RdRec},
		{"u/member", Member},
		{"u/owner", All},
	}
	for _, tc := range tests {
		got, err := f.e.GetObjectPerms(ctx, &model.User{ID: tc.client}, "p/proj", All)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, tc.client)
	}
}

func TestGetObjectPermsRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.putObject(t, model.Object{ID: "d/1", ACLs: 1}, "u/owner")
	f.putACL(t, "d/1", "u/bob", RdAll, 0)

	got, err := f.e.GetObjectPerms(ctx, &model.User{ID: "u/bob"}, "d/1", All)
	require.NoError(t, err)
	assert.Equal(t, RdAll, got)

	got, err = f.e.GetObjectPerms(ctx, &model.User{ID: "u/owner"}, "d/1", All)
	require.NoError(t, err)
	assert.Equal(t, All, got)
}

func TestGetObjectPermsLockedRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.putObject(t, model.Object{ID: "d/1", ACLs: 1, Locked: true}, "u/owner")
	f.putACL(t, "d/1", "u/bob", All, 0)

	got, err := f.e.GetObjectPerms(ctx, &model.User{ID: "u/bob"}, "d/1", All)
	require.NoError(t, err)
	assert.Equal(t, None, got)
}
