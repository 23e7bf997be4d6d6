package sqlstore

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"viewsets/internal/errs"
	"viewsets/internal/plan"
	"viewsets/internal/store"
	"viewsets/internal/testfixture"
)

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, SQLite{}, filepath.Join(t.TempDir(), "blog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	exerciseStore(t, db, SQLite{})
}

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("postgres container in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("viewsets"),
		postgres.WithUsername("viewsets"),
		postgres.WithPassword("viewsets"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	db, err := Open(ctx, Postgres{}, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	exerciseStore(t, db, Postgres{})
}

// exerciseStore прогоняет одни и те же сценарии на любом диалекте
func exerciseStore(t *testing.T, db *sql.DB, d Dialect) {
	ctx := context.Background()
	reg := testfixture.Blog(t)
	ddl, err := GenerateDDL(reg, d)
	require.NoError(t, err)
	require.NoError(t, ApplyDDL(ctx, db, ddl))
	// повторное применение не падает
	require.NoError(t, ApplyDDL(ctx, db, ddl))

	st := New(db, d, WithDebug(testing.Verbose()))
	author, _ := reg.Describe("blog.Author")
	post, _ := reg.Describe("blog.Post")
	tag, _ := reg.Describe("blog.Tag")

	var authorID, postID any
	var tagIDs []any
	err = st.Write(ctx, func(ctx context.Context, w store.Writer) error {
		var err error
		if authorID, err = w.Insert(ctx, author, map[string]any{"nickname": "ann"}); err != nil {
			return err
		}
		for _, name := range []string{"go", "sql"} {
			id, err := w.Insert(ctx, tag, map[string]any{"name": name})
			if err != nil {
				return err
			}
			tagIDs = append(tagIDs, id)
		}
		postID, err = w.Insert(ctx, post, map[string]any{
			"title": "Hello", "slug": "hello", "author_id": authorID, "published": true,
		})
		if err != nil {
			return err
		}
		return w.ReplaceLinks(ctx, post.Field("tags"), postID, tagIDs)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), authorID)
	assert.Equal(t, int64(1), postID)

	t.Run("select with join", func(t *testing.T) {
		q := blogQuery(t, "blog.Post", "author(nickname),tags_ids", plan.Params{Key: postID})
		rows, err := st.Select(ctx, q)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "Hello", rows[0]["title"])
		assert.Equal(t, "ann", rows[0]["author__nickname"])
		assert.Equal(t, authorID, store.Key(rows[0]["author_id"]))

		require.Len(t, q.Prefetches, 1)
		links, err := st.Prefetch(ctx, q.Prefetches[0], []any{postID})
		require.NoError(t, err)
		require.Len(t, links, 2)
		for i, l := range links {
			assert.Equal(t, postID, store.Key(l[plan.ParentAlias]))
			assert.Equal(t, tagIDs[i], store.Key(l["id"]))
		}
	})

	t.Run("one statement for any number of keys", func(t *testing.T) {
		var buf bytes.Buffer
		logged := New(db, d, WithDebug(true), WithLogger(log.New(&buf, "", 0)))
		q := blogQuery(t, "blog.Author", "posts", plan.Params{})
		keys := make([]any, 0, 2001)
		for i := range 2001 {
			keys = append(keys, int64(i+1))
		}
		rows, err := logged.Prefetch(ctx, q.Prefetches[0], keys)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, authorID, store.Key(rows[0][plan.ParentAlias]))
		assert.Equal(t, 1, strings.Count(buf.String(), "SQL ["))

		buf.Reset()
		rows, err = logged.Prefetch(ctx, q.Prefetches[0], nil)
		require.NoError(t, err)
		assert.Empty(t, rows)
		assert.Zero(t, buf.Len())
	})

	t.Run("unique violation", func(t *testing.T) {
		err := st.Write(ctx, func(ctx context.Context, w store.Writer) error {
			_, err := w.Insert(ctx, author, map[string]any{"nickname": "ann"})
			return err
		})
		assert.True(t, errs.IsStore(err))
		assert.Equal(t, errs.CodeUniqueViolation, errs.CodeOf(err))
	})

	t.Run("foreign key violation", func(t *testing.T) {
		err := st.Write(ctx, func(ctx context.Context, w store.Writer) error {
			return w.ReplaceLinks(ctx, post.Field("tags"), postID, []any{int64(999)})
		})
		assert.Equal(t, errs.CodeFKViolation, errs.CodeOf(err))

		err = st.Write(ctx, func(ctx context.Context, w store.Writer) error {
			return w.ReplaceLinks(ctx, author.Field("posts"), authorID, []any{postID, int64(999)})
		})
		assert.Equal(t, errs.CodeFKViolation, errs.CodeOf(err))
	})

	t.Run("repeated link ids", func(t *testing.T) {
		err := st.Write(ctx, func(ctx context.Context, w store.Writer) error {
			if err := w.ReplaceLinks(ctx, author.Field("posts"), authorID, []any{postID, postID}); err != nil {
				return err
			}
			return w.ReplaceLinks(ctx, post.Field("tags"), postID, []any{tagIDs[0], tagIDs[0], tagIDs[1]})
		})
		require.NoError(t, err)
	})

	t.Run("rollback", func(t *testing.T) {
		boom := errors.New("boom")
		err := st.Write(ctx, func(ctx context.Context, w store.Writer) error {
			if _, err := w.Insert(ctx, author, map[string]any{"nickname": "bob"}); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		q := blogQuery(t, "blog.Author", "", plan.Params{})
		rows, err := st.Select(ctx, q)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "ann", rows[0]["nickname"])
	})

	t.Run("update and delete", func(t *testing.T) {
		var updated, missing, deleted int64
		err := st.Write(ctx, func(ctx context.Context, w store.Writer) error {
			var err error
			if updated, err = w.Update(ctx, post, postID, map[string]any{"title": "Hi"}); err != nil {
				return err
			}
			if missing, err = w.Update(ctx, post, int64(999), map[string]any{"title": "x"}); err != nil {
				return err
			}
			deleted, err = w.Delete(ctx, post, postID)
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), updated)
		assert.Zero(t, missing)
		assert.Equal(t, int64(1), deleted)

		// строки связи ушли каскадом
		q := blogQuery(t, "blog.Post", "tags_ids", plan.Params{})
		links, err := st.Prefetch(ctx, q.Prefetches[0], []any{postID})
		require.NoError(t, err)
		assert.Empty(t, links)
	})

	t.Run("empty values", func(t *testing.T) {
		var n int64
		err := st.Write(ctx, func(ctx context.Context, w store.Writer) error {
			var err error
			n, err = w.Update(ctx, tag, tagIDs[0], nil)
			return err
		})
		require.NoError(t, err)
		assert.Zero(t, n)
	})

}
