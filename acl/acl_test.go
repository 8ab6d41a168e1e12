package acl

import (
	"context"
	"testing"

	"github.com/sciforge/curator/errors"
	"github.com/sciforge/curator/graph"
	"github.com/sciforge/curator/graph/memgraph"
	"github.com/sciforge/curator/ident"
	"github.com/sciforge/curator/model"
	"github.com/sciforge/curator/perm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

type fixture struct {
	g     *memgraph.Store
	guard *Guard
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	g := memgraph.New()
	res := ident.New(g)
	engine := perm.New(g, res, 0)

	require.NoError(t, g.PutVertex(ctx, "u/owner", model.User{ID: "u/owner"}))
	require.NoError(t, g.PutVertex(ctx, "u/bob", model.User{ID: "u/bob"}))
	require.NoError(t, g.PutVertex(ctx, "u/carol", model.User{ID: "u/carol"}))
	require.NoError(t, g.PutVertex(ctx, "c/1", model.Object{ID: "c/1"}))
	require.NoError(t, g.PutVertex(ctx, "d/1", model.Object{ID: "d/1"}))
	require.NoError(t, g.PutEdge(ctx, graph.Edge{Label: graph.EdgeOwner, From: "c/1", To: "u/owner"}))
	require.NoError(t, g.PutEdge(ctx, graph.Edge{Label: graph.EdgeOwner, From: "d/1", To: "u/owner"}))
	require.NoError(t, g.PutVertex(ctx, "g/lab", model.Group{ID: "g/lab", UID: "u/owner", GID: "lab"}))
	require.NoError(t, g.PutEdge(ctx, graph.Edge{Label: graph.EdgeOwner, From: "g/lab", To: "u/owner"}))

	return &fixture{g: g, guard: NewGuard(g, engine, res)}
}

func (f *fixture) object(t *testing.T, id string) *model.Object {
	t.Helper()
	obj := &model.Object{}
	require.NoError(t, f.g.Get(context.Background(), id, obj))
	return obj
}

func TestUpdateAsOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rules, err := f.guard.Update(ctx, &model.User{ID: "u/owner"}, "c/1", []Rule{
		{ID: "u/bob", Grant: perm.RdAll, InhGrant: perm.List},
		{ID: "g/lab", Grant: perm.RdRec},
	})
	require.NoError(t, err)
	require.Len(t, rules, 2)

	byID := map[string]Rule{}
	for _, r := range rules {
		byID[r.ID] = r
	}
	assert.Equal(t, perm.RdAll, byID["u/bob"].Grant)
	assert.Equal(t, perm.List, byID["u/bob"].InhGrant)
	// Group targets come back rendered by name.
	assert.Equal(t, perm.RdRec, byID["g/lab"].Grant)

	assert.Equal(t, uint8(3), f.object(t, "c/1").ACLs)
}

func TestUpdateIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := &model.User{ID: "u/owner"}
	in := []Rule{{ID: "u/bob", Grant: perm.RdAll}}

	first, err := f.guard.Update(ctx, owner, "c/1", in)
	require.NoError(t, err)
	second, err := f.guard.Update(ctx, owner, "c/1", in)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	edges, err := f.g.Edges(ctx, graph.EdgeQuery{Label: graph.EdgeACL, From: "c/1"})
	require.NoError(t, err)
	assert.Len(t, edges, 1)
	assert.Equal(t, uint8(1), f.object(t, "c/1").ACLs)
}

func TestUpdateClearsRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := &model.User{ID: "u/owner"}

	_, err := f.guard.Update(ctx, owner, "c/1", []Rule{{ID: "u/bob", Grant: perm.RdAll}})
	require.NoError(t, err)

	rules, err := f.guard.Update(ctx, owner, "c/1", nil)
	require.NoError(t, err)
	assert.Empty(t, rules)
	assert.Equal(t, uint8(0), f.object(t, "c/1").ACLs)
}

func TestUpdateRejectsInheritedGrantOnRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.guard.Update(ctx, &model.User{ID: "u/owner"}, "d/1", []Rule{
		{ID: "u/bob", Grant: perm.RdAll, InhGrant: perm.List},
	})
	assert.Equal(t, codes.InvalidArgument, errors.Code(err))
}

func TestUpdateUnknownTargets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := &model.User{ID: "u/owner"}

	_, err := f.guard.Update(ctx, owner, "c/1", []Rule{{ID: "u/ghost", Grant: perm.RdRec}})
	assert.Equal(t, codes.NotFound, errors.Code(err))

	_, err = f.guard.Update(ctx, owner, "c/1", []Rule{{ID: "g/ghosts", Grant: perm.RdRec}})
	assert.Equal(t, codes.NotFound, errors.Code(err))
}

func TestUpdateRequiresShare(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.guard.Update(ctx, &model.User{ID: "u/bob"}, "c/1", []Rule{{ID: "u/carol", Grant: perm.RdRec}})
	assert.Equal(t, codes.PermissionDenied, errors.Code(err))
}

func TestUpdateEscalationGuard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := &model.User{ID: "u/owner"}

	// Bob holds share plus read bits, but nothing write-shaped.
	_, err := f.guard.Update(ctx, owner, "c/1", []Rule{
		{ID: "u/bob", Grant: perm.Share | perm.RdRec | perm.List},
	})
	require.NoError(t, err)

	bob := &model.User{ID: "u/bob"}

	// A new rule granting bits bob does not hold is rejected.
	_, err = f.guard.Update(ctx, bob, "c/1", []Rule{
		{ID: "u/bob", Grant: perm.Share | perm.RdRec | perm.List},
		{ID: "u/carol", Grant: perm.WrData},
	})
	assert.Equal(t, codes.PermissionDenied, errors.Code(err))

	// A new rule granting Share is rejected regardless.
	_, err = f.guard.Update(ctx, bob, "c/1", []Rule{
		{ID: "u/bob", Grant: perm.Share | perm.RdRec | perm.List},
		{ID: "u/carol", Grant: perm.Share},
	})
	assert.Equal(t, codes.PermissionDenied, errors.Code(err))

	// A subset of bob's own bits is allowed.
	rules, err := f.guard.Update(ctx, bob, "c/1", []Rule{
		{ID: "u/bob", Grant: perm.Share | perm.RdRec | perm.List},
		{ID: "u/carol", Grant: perm.RdRec},
	})
	require.NoError(t, err)
	assert.Len(t, rules, 2)
}

func TestUpdateEscalationGuardNoPartialApplication(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := &model.User{ID: "u/owner"}

	_, err := f.guard.Update(ctx, owner, "c/1", []Rule{
		{ID: "u/bob", Grant: perm.Share | perm.RdRec},
	})
	require.NoError(t, err)

	// The first rule is fine, the second escalates; nothing may change.
	_, err = f.guard.Update(ctx, &model.User{ID: "u/bob"}, "c/1", []Rule{
		{ID: "u/bob", Grant: perm.Share | perm.RdRec},
		{ID: "u/carol", Grant: perm.WrData},
	})
	require.Error(t, err)

	edges, err := f.g.Edges(ctx, graph.EdgeQuery{Label: graph.EdgeACL, From: "c/1"})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "u/bob", edges[0].To)
}

func TestUpdateAlterProtectedBits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := &model.User{ID: "u/owner"}

	_, err := f.guard.Update(ctx, owner, "c/1", []Rule{
		{ID: "u/bob", Grant: perm.Share | perm.RdRec},
		{ID: "u/carol", Grant: perm.Share | perm.RdRec},
	})
	require.NoError(t, err)

	// Bob may not strip carol's Share bit.
	_, err = f.guard.Update(ctx, &model.User{ID: "u/bob"}, "c/1", []Rule{
		{ID: "u/bob", Grant: perm.Share | perm.RdRec},
		{ID: "u/carol", Grant: perm.RdRec},
	})
	assert.Equal(t, codes.PermissionDenied, errors.Code(err))
}

func TestView(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := &model.User{ID: "u/owner"}

	_, err := f.guard.Update(ctx, owner, "c/1", []Rule{
		{ID: "u/bob", Grant: perm.Share | perm.RdRec},
		{ID: "g/lab", Grant: perm.List},
	})
	require.NoError(t, err)

	rules, err := f.guard.View(ctx, owner, "c/1")
	require.NoError(t, err)
	assert.Len(t, rules, 2)

	// Share on the object is enough to view.
	rules, err = f.guard.View(ctx, &model.User{ID: "u/bob"}, "c/1")
	require.NoError(t, err)
	assert.Len(t, rules, 2)

	_, err = f.guard.View(ctx, &model.User{ID: "u/carol"}, "c/1")
	assert.Equal(t, codes.PermissionDenied, errors.Code(err))
}
