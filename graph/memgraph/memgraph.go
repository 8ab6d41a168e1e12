// Package memgraph implements graph.Store in a purely in-memory manner. It
// backs the test suites and is suitable for examples and single-process
// deployments where persistence is handled elsewhere.
package memgraph

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sciforge/curator/graph"
	"github.com/sciforge/curator/model"
)

// New returns a store that provides transient, in-memory graph storage.
func New() *Store {
	return &Store{
		vertices: map[string][]byte{},
		edges:    map[string][]graph.Edge{},
	}
}

// Store is an in-memory graph.Store. Safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	// vertices[id] = JSON document
	vertices map[string][]byte
	// edges[label] = edge list
	edges map[string][]graph.Edge
}

var _ graph.Store = (*Store)(nil)

func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.vertices[id]
	return ok, nil
}

func (s *Store) Get(ctx context.Context, id string, doc any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(id, doc)
}

func (s *Store) get(id string, doc any) error {
	b, ok := s.vertices[id]
	if !ok {
		return graph.ErrNotFound
	}
	return json.Unmarshal(b, doc)
}

func (s *Store) FindEdge(ctx context.Context, q graph.EdgeQuery) (*graph.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.edges[q.Label] {
		if match(e, q) {
			out := e
			return &out, nil
		}
	}
	return nil, nil
}

func (s *Store) Edges(ctx context.Context, q graph.EdgeQuery) ([]graph.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []graph.Edge
	for _, e := range s.edges[q.Label] {
		if match(e, q) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) PutVertex(ctx context.Context, id string, doc any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vertices[id] = b
	return nil
}

func (s *Store) PatchVertex(ctx context.Context, id string, patch map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.patch(id, patch)
}

func (s *Store) patch(id string, patch map[string]any) error {
	b, ok := s.vertices[id]
	if !ok {
		return graph.ErrNotFound
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	for k, v := range patch {
		if v == nil {
			delete(doc, k)
		} else {
			doc[k] = v
		}
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	s.vertices[id] = b
	return nil
}

func (s *Store) PutEdge(ctx context.Context, e graph.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges[e.Label] = append(s.edges[e.Label], e)
	return nil
}

func (s *Store) RemoveEdges(ctx context.Context, q graph.EdgeQuery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeEdges(q)
	return nil
}

func (s *Store) removeEdges(q graph.EdgeQuery) {
	kept := s.edges[q.Label][:0]
	for _, e := range s.edges[q.Label] {
		if !match(e, q) {
			kept = append(kept, e)
		}
	}
	s.edges[q.Label] = kept
}

// WithTransaction runs fn under the store's write lock. The vertex and edge
// maps are snapshotted first and restored if fn fails, so a failed
// transaction leaves no partial state behind.
func (s *Store) WithTransaction(ctx context.Context, spec graph.TxnSpec, fn func(tx graph.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vsnap := make(map[string][]byte, len(s.vertices))
	for k, v := range s.vertices {
		vsnap[k] = v
	}
	esnap := make(map[string][]graph.Edge, len(s.edges))
	for k, v := range s.edges {
		esnap[k] = append([]graph.Edge(nil), v...)
	}

	err := fn(&txn{s: s, spec: spec})
	if err != nil {
		s.vertices = vsnap
		s.edges = esnap
	}
	return err
}

// txn exposes the store without re-locking and enforces the declared
// read/write sets.
type txn struct {
	s    *Store
	spec graph.TxnSpec
}

func (t *txn) Exists(ctx context.Context, id string) (bool, error) {
	if err := t.spec.CheckRead(model.Kind(id)); err != nil {
		return false, err
	}
	_, ok := t.s.vertices[id]
	return ok, nil
}

func (t *txn) Get(ctx context.Context, id string, doc any) error {
	if err := t.spec.CheckRead(model.Kind(id)); err != nil {
		return err
	}
	return t.s.get(id, doc)
}

func (t *txn) FindEdge(ctx context.Context, q graph.EdgeQuery) (*graph.Edge, error) {
	if err := t.spec.CheckRead(q.Label); err != nil {
		return nil, err
	}
	for _, e := range t.s.edges[q.Label] {
		if match(e, q) {
			out := e
			return &out, nil
		}
	}
	return nil, nil
}

func (t *txn) Edges(ctx context.Context, q graph.EdgeQuery) ([]graph.Edge, error) {
	if err := t.spec.CheckRead(q.Label); err != nil {
		return nil, err
	}
	var out []graph.Edge
	for _, e := range t.s.edges[q.Label] {
		if match(e, q) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *txn) PutVertex(ctx context.Context, id string, doc any) error {
	if err := t.spec.CheckWrite(model.Kind(id)); err != nil {
		return err
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	t.s.vertices[id] = b
	return nil
}

func (t *txn) PatchVertex(ctx context.Context, id string, patch map[string]any) error {
	if err := t.spec.CheckWrite(model.Kind(id)); err != nil {
		return err
	}
	return t.s.patch(id, patch)
}

func (t *txn) PutEdge(ctx context.Context, e graph.Edge) error {
	if err := t.spec.CheckWrite(e.Label); err != nil {
		return err
	}
	t.s.edges[e.Label] = append(t.s.edges[e.Label], e)
	return nil
}

func (t *txn) RemoveEdges(ctx context.Context, q graph.EdgeQuery) error {
	if err := t.spec.CheckWrite(q.Label); err != nil {
		return err
	}
	t.s.removeEdges(q)
	return nil
}

func (t *txn) WithTransaction(ctx context.Context, spec graph.TxnSpec, fn func(tx graph.Store) error) error {
	// Nested transactions reuse the outer lock and declarations.
	return fn(t)
}

func match(e graph.Edge, q graph.EdgeQuery) bool {
	if q.From != "" && e.From != q.From {
		return false
	}
	if q.To != "" && e.To != q.To {
		return false
	}
	return true
}
