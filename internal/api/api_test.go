package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viewsets/internal/errs"
	"viewsets/internal/sqlstore"
	"viewsets/internal/testfixture"
	"viewsets/internal/viewset"
)

func newTestRouter(t *testing.T, sopts ...ServerOption) (*gin.Engine, *Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	reg := testfixture.Blog(t)

	db, err := sqlstore.Open(ctx, sqlstore.SQLite{}, filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	ddl, err := sqlstore.GenerateDDL(reg, sqlstore.SQLite{})
	require.NoError(t, err)
	require.NoError(t, sqlstore.ApplyDDL(ctx, db, ddl))

	srv, err := NewServer(reg, sqlstore.New(db, sqlstore.SQLite{}), []viewset.Option{
		viewset.WithPagination(20, 100),
		viewset.WithFilters(),
		viewset.WithFieldSelection(),
	}, sopts...)
	require.NoError(t, err)
	t.Cleanup(srv.Wait)
	return NewRouter(srv), srv
}

func do(t *testing.T, r http.Handler, method, path string, body any) (int, any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func codes(t *testing.T, body any) map[string]string {
	t.Helper()
	m, ok := body.(map[string]any)
	require.True(t, ok, "%v", body)
	list, ok := m["errors"].([]any)
	require.True(t, ok, "%v", body)
	out := map[string]string{}
	for _, e := range list {
		fe := e.(map[string]any)
		out[fe["field"].(string)] = fe["code"].(string)
	}
	return out
}

func TestCRUD(t *testing.T) {
	r, _ := newTestRouter(t)

	code, body := do(t, r, http.MethodPost, "/api/blog/Author", map[string]any{"nickname": "ann"})
	require.Equal(t, http.StatusCreated, code, "%v", body)
	author := body.(map[string]any)
	assert.Equal(t, "ann", author["nickname"])
	assert.Equal(t, []any{}, author["posts"])

	code, body = do(t, r, http.MethodPost, "/api/blog/Tag", map[string]any{"name": "go"})
	require.Equal(t, http.StatusCreated, code, "%v", body)

	code, body = do(t, r, http.MethodPost, "/api/blog/post", map[string]any{
		"title": "Hello", "slug": "hello", "author_id": author["id"], "tags_ids": []any{1},
	})
	require.Equal(t, http.StatusCreated, code, "%v", body)
	post := body.(map[string]any)
	assert.Equal(t, "http://example.com/hello/", post["url"])
	assert.Equal(t, 1.0, post["tag_count"])
	assert.Equal(t, false, post["published"])

	code, body = do(t, r, http.MethodGet, "/api/blog/Post?fields=slug,author(nickname)&published=false", nil)
	require.Equal(t, http.StatusOK, code, "%v", body)
	assert.Equal(t, []any{map[string]any{
		"id": 1.0, "title": "Hello", "slug": "hello",
		"author": map[string]any{"id": 1.0, "nickname": "ann"},
	}}, body)

	code, body = do(t, r, http.MethodGet, "/api/blog/Post/hello?fields=tags_ids", nil)
	require.Equal(t, http.StatusOK, code, "%v", body)
	assert.Equal(t, map[string]any{"id": 1.0, "title": "Hello", "tags_ids": []any{1.0}}, body)

	code, body = do(t, r, http.MethodPatch, "/api/blog/Post/1", map[string]any{"published": true})
	require.Equal(t, http.StatusOK, code, "%v", body)
	assert.Equal(t, true, body.(map[string]any)["published"])
	assert.Equal(t, "Hello", body.(map[string]any)["title"])

	// PUT требует обязательные поля, PATCH нет
	code, body = do(t, r, http.MethodPut, "/api/blog/Post/hello", map[string]any{"title": "Hi"})
	require.Equal(t, http.StatusUnprocessableEntity, code, "%v", body)
	assert.Equal(t, map[string]string{"slug": "required"}, codes(t, body))

	code, body = do(t, r, http.MethodPut, "/api/blog/Post/hello", map[string]any{"title": "Hi", "slug": "hi"})
	require.Equal(t, http.StatusOK, code, "%v", body)
	assert.Equal(t, "Hi", body.(map[string]any)["title"])
	assert.Equal(t, "hi", body.(map[string]any)["slug"])
	assert.Equal(t, true, body.(map[string]any)["published"])

	code, _ = do(t, r, http.MethodDelete, "/api/blog/Post/1", nil)
	assert.Equal(t, http.StatusNoContent, code)
	code, body = do(t, r, http.MethodGet, "/api/blog/Post/1", nil)
	assert.Equal(t, http.StatusNotFound, code, "%v", body)
}

func TestErrorStatus(t *testing.T) {
	r, _ := newTestRouter(t)
	code, body := do(t, r, http.MethodPost, "/api/blog/Author", map[string]any{"nickname": "ann"})
	require.Equal(t, http.StatusCreated, code, "%v", body)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		codes  map[string]string
	}{
		{"empty body", http.MethodPost, "/api/blog/Author", map[string]any{}, http.StatusUnprocessableEntity,
			map[string]string{"": "empty_body"}},
		{"missing required", http.MethodPost, "/api/blog/Post", map[string]any{"title": "x"}, http.StatusUnprocessableEntity,
			map[string]string{"slug": "required"}},
		{"unknown and readonly", http.MethodPost, "/api/blog/Post", map[string]any{"slug": "s", "title": "t", "bogus": 1, "url": "u"}, http.StatusBadRequest,
			map[string]string{"bogus": "unknown_field", "url": "readonly_field"}},
		{"unique", http.MethodPost, "/api/blog/Author", map[string]any{"nickname": "ann"}, http.StatusConflict,
			map[string]string{"": "unique_violation"}},
		{"foreign key", http.MethodPost, "/api/blog/Post", map[string]any{"slug": "s", "title": "t", "author_id": 99}, http.StatusConflict,
			map[string]string{"": "fk_violation"}},
		{"unknown field selection", http.MethodGet, "/api/blog/Post?fields=nope", nil, http.StatusBadRequest,
			map[string]string{"nope": "unknown_field"}},
		{"unknown filter", http.MethodGet, "/api/blog/Post?title=x", nil, http.StatusBadRequest,
			map[string]string{"title": "unknown_filter"}},
		{"bad limit", http.MethodGet, "/api/blog/Post?limit=abc", nil, http.StatusBadRequest,
			map[string]string{"limit": "type_mismatch"}},
		{"negative offset", http.MethodGet, "/api/blog/Post?offset=-1", nil, http.StatusBadRequest, nil},
		{"invalid lookup", http.MethodGet, "/api/blog/Tag/go", nil, http.StatusBadRequest,
			map[string]string{"id": "invalid_lookup"}},
		{"missing record", http.MethodDelete, "/api/blog/Author/bob", nil, http.StatusNotFound, nil},
		{"unknown entity", http.MethodGet, "/api/blog/Nope", nil, http.StatusNotFound,
			map[string]string{"entity": "not_found"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			code, body := do(t, r, c.method, c.path, c.body)
			assert.Equal(t, c.status, code, "%v", body)
			if c.codes != nil {
				assert.Equal(t, c.codes, codes(t, body))
			}
		})
	}
}

func TestReadOnlySchema(t *testing.T) {
	r, _ := newTestRouter(t, WithReadOnly("blog.Tag"))

	code, _ := do(t, r, http.MethodPost, "/api/blog/Tag", map[string]any{"name": "go"})
	assert.Equal(t, http.StatusMethodNotAllowed, code)
	code, _ = do(t, r, http.MethodDelete, "/api/blog/Tag/1", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, code)
	code, _ = do(t, r, http.MethodPut, "/api/blog/Tag/1", map[string]any{"name": "go"})
	assert.Equal(t, http.StatusMethodNotAllowed, code)
	code, _ = do(t, r, http.MethodPatch, "/api/blog/Tag/1", map[string]any{"name": "go"})
	assert.Equal(t, http.StatusMethodNotAllowed, code)
	code, body := do(t, r, http.MethodGet, "/api/blog/Tag", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{}, body)
}

func TestMeta(t *testing.T) {
	r, _ := newTestRouter(t)

	code, body := do(t, r, http.MethodGet, "/api/meta", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{
		map[string]any{"module": "blog", "entity": "Author", "table": "authors"},
		map[string]any{"module": "blog", "entity": "Post", "table": "posts"},
		map[string]any{"module": "blog", "entity": "Tag", "table": "tags"},
	}, body)

	code, body = do(t, r, http.MethodGet, "/api/meta/blog/post", nil)
	require.Equal(t, http.StatusOK, code)
	m := body.(map[string]any)
	assert.Equal(t, "Post", m["entity"])
	assert.Equal(t, "slug", m["lookup"])
	assert.Equal(t, []any{"id", "title"}, m["defaults"])
	assert.Equal(t, []any{"author", "published", "slug"}, m["filters"])

	byName := map[string]map[string]any{}
	for _, f := range m["fields"].([]any) {
		fm := f.(map[string]any)
		byName[fm["name"].(string)] = fm
	}
	assert.Equal(t, "to_one", byName["author"]["kind"])
	assert.Equal(t, "blog.Author", byName["author"]["refFQN"])
	assert.Equal(t, "slug", byName["url"]["depends"])
	assert.Equal(t, true, byName["url"]["readonly"])
	assert.Equal(t, true, byName["id"]["pk"])

	code, _ = do(t, r, http.MethodGet, "/api/meta/blog/Nope", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAdminLint(t *testing.T) {
	r, _ := newTestRouter(t)

	code, body := do(t, r, http.MethodPost, "/api/admin/lint", map[string]any{"dsl": testfixture.BlogDSL})
	require.Equal(t, http.StatusOK, code, "%v", body)
	assert.Equal(t, 3.0, body.(map[string]any)["entities"])

	bad := "module m\n\nentity A:\n  b: ref[Nope]\n  c: computed[d] fn=concat\n"
	code, body = do(t, r, http.MethodPost, "/api/admin/lint", map[string]any{"dsl": bad})
	require.Equal(t, http.StatusBadRequest, code)
	issues := body.(map[string]any)["issues"].([]any)
	got := map[string]string{}
	for _, is := range issues {
		im := is.(map[string]any)
		got[im["field"].(string)] = im["code"].(string)
	}
	assert.Equal(t, "unknown_target", got["m.A.b"])
	assert.Equal(t, "unknown_dependency", got["m.A.c"])

	code, _ = do(t, r, http.MethodPost, "/api/admin/lint", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestParseListParams(t *testing.T) {
	p, err := parseListParams(map[string][]string{
		"fields": {"title,author(nickname)"},
		"_limit": {"5"},
		"offset": {"10"},
		"sort":   {"-title, slug,"},
		"slug":   {"", "hello"},
		"empty":  {""},
	})
	require.NoError(t, err)
	assert.Equal(t, viewset.Params{
		Fields:  "title,author(nickname)",
		Limit:   5,
		Offset:  10,
		Sort:    []string{"-title", "slug"},
		Filters: map[string]string{"slug": "hello"},
	}, p)
}

func TestCheckCapabilities(t *testing.T) {
	reg := testfixture.Blog(t)
	bare, err := viewset.New(reg, "blog.Post", nil)
	require.NoError(t, err)

	p := viewset.Params{Filters: map[string]string{"slug": "a", "author": "1"}}
	err = checkCapabilities(bare, &p)
	assert.Equal(t, "unknown_filter", errs.CodeOf(err))

	p = viewset.Params{Fields: "content"}
	err = checkCapabilities(viewset.ReadOnly(bare), &p)
	assert.Equal(t, "bad_selection", errs.CodeOf(err))

	p = viewset.Params{Limit: 5, Offset: 10}
	require.NoError(t, checkCapabilities(bare, &p))
	assert.Zero(t, p.Limit)
	assert.Zero(t, p.Offset)

	full, err := viewset.New(reg, "blog.Post", nil, viewset.WithPagination(10, 20), viewset.WithFilters(), viewset.WithFieldSelection())
	require.NoError(t, err)
	p = viewset.Params{Fields: "content", Filters: map[string]string{"slug": "a"}, Limit: 5}
	require.NoError(t, checkCapabilities(viewset.ReadOnly(full), &p))
	assert.Equal(t, 5, p.Limit)
}
