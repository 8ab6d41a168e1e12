// Package sqlitegraph provides a SQLite implementation of graph.Store.
// Vertices are stored as JSON documents, edges as rows with a JSON attribute
// column.
//
// Examples:
//
//	store := sqlitegraph.New(":memory:")
//	store := sqlitegraph.New("file:curator.s3db", sqlitegraph.WithPrefix("cur_"))
package sqlitegraph

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/sciforge/curator/graph"
	"github.com/sciforge/curator/model"

	_ "github.com/mattn/go-sqlite3" // Register sqlite3 driver
)

// Option is a functional option for configuring the store.
type Option func(*Store)

// WithPrefix overrides the default table-name prefix of "curator_".
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New returns a store that provides sqlite backed graph storage; the tables
// are created optimistically on initialization. Any errors are considered
// non-recoverable and will panic.
func New(conn string, opts ...Option) *Store {
	db, err := sql.Open("sqlite3", conn)
	if err != nil {
		panic("failed to open sqlite connection: " + err.Error())
	}
	// A second pooled connection to :memory: would see a separate empty
	// database, and file databases rely on sqlite's own locking anyway.
	db.SetMaxOpenConns(1)
	s := &Store{
		db:     db,
		prefix: "curator_",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ensureTables()
	return s
}

// Store is a SQLite-backed graph.Store.
type Store struct {
	db     *sql.DB
	prefix string
}

var _ graph.Store = (*Store)(nil)

// querier abstracts *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) vtable() string { return s.prefix + "vertices" }
func (s *Store) etable() string { return s.prefix + "edges" }

func (s *Store) ensureTables() {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS ` + s.vtable() + ` (
		id TEXT PRIMARY KEY,
		doc TEXT NOT NULL
	);`)
	if err != nil {
		panic("failed to create vertex table: " + err.Error())
	}
	_, err = s.db.Exec(`CREATE TABLE IF NOT EXISTS ` + s.etable() + ` (
		label TEXT NOT NULL,
		from_id TEXT NOT NULL,
		to_id TEXT NOT NULL,
		doc TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS ` + s.prefix + `edges_from ON ` + s.etable() + ` (label, from_id);
	CREATE INDEX IF NOT EXISTS ` + s.prefix + `edges_to ON ` + s.etable() + ` (label, to_id);`)
	if err != nil {
		panic("failed to create edge table: " + err.Error())
	}
}

func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	return exists(ctx, s.db, s.vtable(), id)
}

func (s *Store) Get(ctx context.Context, id string, doc any) error {
	return get(ctx, s.db, s.vtable(), id, doc)
}

func (s *Store) FindEdge(ctx context.Context, q graph.EdgeQuery) (*graph.Edge, error) {
	return findEdge(ctx, s.db, s.etable(), q)
}

func (s *Store) Edges(ctx context.Context, q graph.EdgeQuery) ([]graph.Edge, error) {
	return listEdges(ctx, s.db, s.etable(), q)
}

func (s *Store) PutVertex(ctx context.Context, id string, doc any) error {
	return putVertex(ctx, s.db, s.vtable(), id, doc)
}

func (s *Store) PatchVertex(ctx context.Context, id string, patch map[string]any) error {
	return patchVertex(ctx, s.db, s.vtable(), id, patch)
}

func (s *Store) PutEdge(ctx context.Context, e graph.Edge) error {
	return putEdge(ctx, s.db, s.etable(), e)
}

func (s *Store) RemoveEdges(ctx context.Context, q graph.EdgeQuery) error {
	return removeEdges(ctx, s.db, s.etable(), q)
}

// WithTransaction runs fn inside a SQL transaction. The declared read/write
// sets are enforced by the wrapping store handed to fn.
func (s *Store) WithTransaction(ctx context.Context, spec graph.TxnSpec, fn func(tx graph.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&txn{s: s, tx: tx, spec: spec}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		tx.Rollback()
		return err
	}
	return nil
}

type txn struct {
	s    *Store
	tx   *sql.Tx
	spec graph.TxnSpec
}

func (t *txn) Exists(ctx context.Context, id string) (bool, error) {
	if err := t.spec.CheckRead(model.Kind(id)); err != nil {
		return false, err
	}
	return exists(ctx, t.tx, t.s.vtable(), id)
}

func (t *txn) Get(ctx context.Context, id string, doc any) error {
	if err := t.spec.CheckRead(model.Kind(id)); err != nil {
		return err
	}
	return get(ctx, t.tx, t.s.vtable(), id, doc)
}

func (t *txn) FindEdge(ctx context.Context, q graph.EdgeQuery) (*graph.Edge, error) {
	if err := t.spec.CheckRead(q.Label); err != nil {
		return nil, err
	}
	return findEdge(ctx, t.tx, t.s.etable(), q)
}

func (t *txn) Edges(ctx context.Context, q graph.EdgeQuery) ([]graph.Edge, error) {
	if err := t.spec.CheckRead(q.Label); err != nil {
		return nil, err
	}
	return listEdges(ctx, t.tx, t.s.etable(), q)
}

func (t *txn) PutVertex(ctx context.Context, id string, doc any) error {
	if err := t.spec.CheckWrite(model.Kind(id)); err != nil {
		return err
	}
	return putVertex(ctx, t.tx, t.s.vtable(), id, doc)
}

func (t *txn) PatchVertex(ctx context.Context, id string, patch map[string]any) error {
	if err := t.spec.CheckWrite(model.Kind(id)); err != nil {
		return err
	}
	return patchVertex(ctx, t.tx, t.s.vtable(), id, patch)
}

func (t *txn) PutEdge(ctx context.Context, e graph.Edge) error {
	if err := t.spec.CheckWrite(e.Label); err != nil {
		return err
	}
	return putEdge(ctx, t.tx, t.s.etable(), e)
}

func (t *txn) RemoveEdges(ctx context.Context, q graph.EdgeQuery) error {
	if err := t.spec.CheckWrite(q.Label); err != nil {
		return err
	}
	return removeEdges(ctx, t.tx, t.s.etable(), q)
}

func (t *txn) WithTransaction(ctx context.Context, spec graph.TxnSpec, fn func(tx graph.Store) error) error {
	// Nested transactions reuse the outer SQL transaction and declarations.
	return fn(t)
}

func exists(ctx context.Context, q querier, table, id string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+" WHERE id = ?", id).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func get(ctx context.Context, q querier, table, id string, doc any) error {
	var b []byte
	err := q.QueryRowContext(ctx, "SELECT doc FROM "+table+" WHERE id = ?", id).Scan(&b)
	if err == sql.ErrNoRows {
		return graph.ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(b, doc)
}

func putVertex(ctx context.Context, q querier, table, id string, doc any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		"INSERT INTO "+table+" (id, doc) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET doc = excluded.doc",
		id, b)
	return err
}

func patchVertex(ctx context.Context, q querier, table, id string, patch map[string]any) error {
	var doc map[string]any
	if err := get(ctx, q, table, id, &doc); err != nil {
		return err
	}
	for k, v := range patch {
		if v == nil {
			delete(doc, k)
		} else {
			doc[k] = v
		}
	}
	return putVertex(ctx, q, table, id, doc)
}

func putEdge(ctx context.Context, q querier, table string, e graph.Edge) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		"INSERT INTO "+table+" (label, from_id, to_id, doc) VALUES (?, ?, ?, ?)",
		e.Label, e.From, e.To, b)
	return err
}

func edgeWhere(q graph.EdgeQuery) (string, []any) {
	where := "label = ?"
	args := []any{q.Label}
	if q.From != "" {
		where += " AND from_id = ?"
		args = append(args, q.From)
	}
	if q.To != "" {
		where += " AND to_id = ?"
		args = append(args, q.To)
	}
	return where, args
}

func findEdge(ctx context.Context, q querier, table string, eq graph.EdgeQuery) (*graph.Edge, error) {
	where, args := edgeWhere(eq)
	var b []byte
	err := q.QueryRowContext(ctx, "SELECT doc FROM "+table+" WHERE "+where+" LIMIT 1", args...).Scan(&b)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e := graph.Edge{}
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, err
	}
	e.Label = eq.Label
	return &e, nil
}

func listEdges(ctx context.Context, q querier, table string, eq graph.EdgeQuery) ([]graph.Edge, error) {
	where, args := edgeWhere(eq)
	rows, err := q.QueryContext(ctx, "SELECT doc FROM "+table+" WHERE "+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []graph.Edge
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		e := graph.Edge{}
		if err := json.Unmarshal(b, &e); err != nil {
			return nil, err
		}
		e.Label = eq.Label
		out = append(out, e)
	}
	return out, rows.Err()
}

func removeEdges(ctx context.Context, q querier, table string, eq graph.EdgeQuery) error {
	where, args := edgeWhere(eq)
	_, err := q.ExecContext(ctx, "DELETE FROM "+table+" WHERE "+where, args...)
	return err
}
