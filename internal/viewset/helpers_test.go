package viewset_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"viewsets/internal/plan"
	"viewsets/internal/registry"
	"viewsets/internal/sqlstore"
	"viewsets/internal/store"
	"viewsets/internal/testfixture"
	"viewsets/internal/viewset"
)

// countingStore считает обращения к хранилищу на чтение
type countingStore struct {
	store.Store
	selects    atomic.Int64
	prefetches atomic.Int64

	mu    sync.Mutex
	paths []string
}

func (c *countingStore) Select(ctx context.Context, q *plan.Query) ([]store.Row, error) {
	c.selects.Add(1)
	return c.Store.Select(ctx, q)
}

func (c *countingStore) Prefetch(ctx context.Context, p *plan.Prefetch, keys []any) ([]store.Row, error) {
	c.prefetches.Add(1)
	c.mu.Lock()
	c.paths = append(c.paths, p.Path)
	c.mu.Unlock()
	return c.Store.Prefetch(ctx, p, keys)
}

func (c *countingStore) reset() {
	c.selects.Store(0)
	c.prefetches.Store(0)
	c.mu.Lock()
	c.paths = nil
	c.mu.Unlock()
}

type env struct {
	reg   *registry.Registry
	db    *sql.DB
	store *countingStore
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvFor(t, testfixture.Blog(t))
}

func newEnvFor(t *testing.T, reg *registry.Registry) *env {
	t.Helper()
	ctx := context.Background()

	db, err := sqlstore.Open(ctx, sqlstore.SQLite{}, filepath.Join(t.TempDir(), "viewsets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ddl, err := sqlstore.GenerateDDL(reg, sqlstore.SQLite{})
	require.NoError(t, err)
	require.NoError(t, sqlstore.ApplyDDL(ctx, db, ddl))

	return &env{reg: reg, db: db, store: &countingStore{Store: sqlstore.New(db, sqlstore.SQLite{})}}
}

func (e *env) viewset(t *testing.T, name string, opts ...viewset.Option) *viewset.Viewset {
	t.Helper()
	opts = append([]viewset.Option{
		viewset.WithPagination(100, 1000),
		viewset.WithFilters(),
		viewset.WithFieldSelection(),
	}, opts...)
	vs, err := viewset.New(e.reg, name, e.store, opts...)
	require.NoError(t, err)
	return vs
}

func create(t *testing.T, vs *viewset.Viewset, payload map[string]any) map[string]any {
	t.Helper()
	out, err := vs.Create(context.Background(), payload)
	require.NoError(t, err)
	return out
}

func list(t *testing.T, vs *viewset.Viewset, p viewset.Params) []map[string]any {
	t.Helper()
	seq, err := vs.List(context.Background(), p)
	require.NoError(t, err)
	out, err := viewset.Collect(seq)
	require.NoError(t, err)
	return out
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return sortStrings(out)
}
