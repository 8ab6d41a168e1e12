// Package curator assembles the permission engine, ACL guard and path
// authorizer for a deployment. Components can be used individually; this
// package provides the standard wiring from configuration.
//
// Example:
//
//	sys := curator.New(curator.WithStore(sqlitegraph.New("curator.db")))
//	err := sys.Authz.Authorize(ctx, client, authz.ActionRead, repoID, path)
package curator

import (
	"github.com/knadh/koanf/v2"
	"github.com/sciforge/curator/acl"
	"github.com/sciforge/curator/authz"
	"github.com/sciforge/curator/config"
	"github.com/sciforge/curator/graph"
	"github.com/sciforge/curator/graph/memgraph"
	"github.com/sciforge/curator/ident"
	"github.com/sciforge/curator/logging"
	"github.com/sciforge/curator/perm"
)

// System holds the assembled components sharing one graph store.
type System struct {
	Store  graph.Store
	Ident  *ident.Resolver
	Engine *perm.Engine
	ACL    *acl.Guard
	Authz  *authz.Authorizer
	Logger logging.Logger
}

// Option customizes the assembly.
type Option func(*builder)

// WithStore selects the graph store backend. The default is an in-memory
// store, suitable only for tests and experiments.
func WithStore(s graph.Store) Option {
	return func(b *builder) {
		b.store = s
	}
}

// WithConfig supplies a pre-loaded configuration instead of the standard
// file/env discovery.
func WithConfig(k *koanf.Koanf) Option {
	return func(b *builder) {
		b.conf = k
	}
}

type builder struct {
	store graph.Store
	conf  *koanf.Koanf
}

// New assembles a System from configuration.
func New(opts ...Option) *System {
	b := &builder{}
	for _, opt := range opts {
		opt(b)
	}
	if b.conf == nil {
		b.conf = config.MustNew()
	}
	if b.store == nil {
		b.store = memgraph.New()
	}

	var logger logging.Logger
	if b.conf.Bool(config.KeyLoggingDevelopment) {
		logger = logging.NewDevLogger()
	} else {
		logger = logging.NewProdLogger()
	}

	res := ident.New(b.store)
	engine := perm.New(b.store, res, b.conf.Int(config.KeyMaxTraversalDepth))
	return &System{
		Store:  b.store,
		Ident:  res,
		Engine: engine,
		ACL:    acl.NewGuard(b.store, engine, res),
		Authz:  authz.New(b.store, engine, res),
		Logger: logger,
	}
}
