package curator

import (
	"context"
	"testing"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"
	"github.com/sciforge/curator/authz"
	"github.com/sciforge/curator/config"
	"github.com/sciforge/curator/graph"
	"github.com/sciforge/curator/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, overrides map[string]interface{}) *koanf.Koanf {
	t.Helper()
	k := koanf.New(".")
	require.NoError(t, k.Load(confmap.Provider(map[string]interface{}{
		config.KeyMaxTraversalDepth:  50,
		config.KeyLoggingDevelopment: true,
	}, "."), nil))
	if overrides != nil {
		require.NoError(t, k.Load(confmap.Provider(overrides, "."), nil))
	}
	return k
}

func TestNewAssemblesWorkingSystem(t *testing.T) {
	ctx := context.Background()
	sys := New(WithConfig(testConfig(t, nil)))

	require.NoError(t, sys.Store.PutVertex(ctx, "repo/main", model.Repo{ID: "repo/main", Path: "/r"}))
	require.NoError(t, sys.Store.PutVertex(ctx, "u/alice", model.User{ID: "u/alice"}))
	require.NoError(t, sys.Store.PutVertex(ctx, "d/42", model.Object{ID: "d/42"}))
	require.NoError(t, sys.Store.PutEdge(ctx, graph.Edge{Label: graph.EdgeOwner, From: "d/42", To: "u/alice"}))
	require.NoError(t, sys.Store.PutEdge(ctx, graph.Edge{Label: graph.EdgeLoc, From: "d/42", To: "repo/main", UID: "u/alice"}))
	require.NoError(t, sys.Store.PutEdge(ctx, graph.Edge{Label: graph.EdgeAlloc, From: "u/alice", To: "repo/main"}))

	alice := &model.User{ID: "u/alice"}
	assert.NoError(t, sys.Authz.Authorize(ctx, alice, authz.ActionRead, "repo/main", "/r/user/alice/42"))

	err := sys.Authz.Authorize(ctx, alice, authz.ActionDelete, "repo/main", "/r/user/alice/42")
	assert.Error(t, err)
}
