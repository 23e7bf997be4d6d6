package project

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viewsets/internal/assemble"
	"viewsets/internal/errs"
	"viewsets/internal/fields"
	"viewsets/internal/registry"
	"viewsets/internal/resolve"
	"viewsets/internal/testfixture"
)

func blog(t *testing.T, name string) *registry.Schema {
	s, ok := testfixture.Blog(t).Describe(name)
	require.True(t, ok)
	return s
}

func TestFromStore(t *testing.T) {
	u := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	cases := []struct {
		name string
		t    registry.Type
		in   any
		want any
	}{
		{"int from string", registry.TypeInt, "42", int64(42)},
		{"int from int32", registry.TypeInt, int32(7), int64(7)},
		{"float from int", registry.TypeFloat, int64(2), 2.0},
		{"bool from sqlite", registry.TypeBool, int64(1), true},
		{"text from bytes", registry.TypeText, []byte("hi"), "hi"},
		{"uuid from pg", registry.TypeUUID, [16]byte(u), u.String()},
		{"json", registry.TypeJSON, `{"a":[1]}`, map[string]any{"a": []any{1.0}}},
		{"date", registry.TypeDate, "2024-01-02", "2024-01-02"},
		{"date from pg", registry.TypeDate, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), "2024-01-02"},
		{"datetime", registry.TypeDateTime, "2024-01-02T03:04:05Z", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"datetime from pg", registry.TypeDateTime, time.Date(2024, 1, 2, 5, 4, 5, 0, time.FixedZone("", 7200)), time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"null", registry.TypeInt, nil, nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := fromStore(c.t, c.in)
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}

	_, err := fromStore(registry.TypeInt, true)
	assert.Error(t, err)
	_, err = fromStore(registry.TypeDateTime, "yesterday")
	assert.Error(t, err)
}

func TestRecord(t *testing.T) {
	post := blog(t, "blog.Post")
	req, err := fields.Parse("url,tag_count,metadata,tags_ids")
	require.NoError(t, err)
	sel, err := resolve.Expand(post, req)
	require.NoError(t, err)

	tag := blog(t, "blog.Tag")
	rec := &assemble.Record{
		Schema: post,
		Key:    int64(1),
		Values: map[string]any{"id": int64(1), "title": "T", "slug": "s", "metadata": nil},
		One:    map[string]*assemble.Record{},
		Many: map[string][]*assemble.Record{"tags": {
			{Schema: tag, Key: int64(3), Values: map[string]any{"id": int64(3), "name": "go"}},
			{Schema: tag, Key: int64(5), Values: map[string]any{"id": int64(5), "name": "sql"}},
		}},
	}
	out, err := Record(post, rec, sel)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"id":        int64(1),
		"title":     "T",
		"url":       "http://example.com/s/",
		"tag_count": int64(2),
		"metadata":  map[string]any{},
		"tags_ids":  []any{int64(3), int64(5)},
	}, out)

	// default не разделяется между записями
	out["metadata"].(map[string]any)["x"] = 1
	again, err := Record(post, rec, sel)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, again["metadata"])
}

func TestRecordMissingRelation(t *testing.T) {
	post := blog(t, "blog.Post")
	rec := &assemble.Record{Schema: post, Values: map[string]any{}, One: map[string]*assemble.Record{}, Many: map[string][]*assemble.Record{}}
	_, err := Record(post, rec, fields.Selection{"tags": fields.Selection{"id": nil}})
	assert.Equal(t, errs.KindInternal, errs.KindOf(err))
}

func TestToStorageCreate(t *testing.T) {
	post := blog(t, "blog.Post")
	w, err := ToStorage(post, map[string]any{
		"title":     "Hello",
		"slug":      "hello",
		"author_id": 1.0,
		"tags_ids":  []any{2.0, 1.0, 2.0},
	}, Create)
	require.NoError(t, err)
	assert.Nil(t, w.Key)
	assert.Equal(t, map[string]any{
		"title":     "Hello",
		"slug":      "hello",
		"author_id": int64(1),
		"content":   "",
		"metadata":  "{}",
		"published": false,
	}, w.Values)
	require.Len(t, w.Links, 1)
	assert.Equal(t, "tags", w.Links[0].Field.Name)
	assert.Equal(t, []any{int64(2), int64(1)}, w.Links[0].IDs)
}

func TestToStoragePartial(t *testing.T) {
	post := blog(t, "blog.Post")
	w, err := ToStorage(post, map[string]any{"rating": 4, "metadata": map[string]any{"k": "v"}}, Partial)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"rating": 4.0, "metadata": `{"k":"v"}`}, w.Values)

	w, err = ToStorage(post, map[string]any{}, Partial)
	require.NoError(t, err)
	assert.Empty(t, w.Values)
}

func TestToStorageReplace(t *testing.T) {
	post := blog(t, "blog.Post")

	_, err := ToStorage(post, map[string]any{"title": "New"}, Replace)
	var issues errs.Issues
	require.ErrorAs(t, err, &issues)
	require.Len(t, issues, 1)
	assert.Equal(t, "slug", issues[0].Field)
	assert.Equal(t, errs.CodeRequired, issues[0].Code)

	// пишутся только переданные поля, defaults не подставляются
	w, err := ToStorage(post, map[string]any{"title": "New", "slug": "new"}, Replace)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "New", "slug": "new"}, w.Values)
}

func TestToStorageIssues(t *testing.T) {
	post := blog(t, "blog.Post")

	_, err := ToStorage(post, nil, Create)
	assert.Equal(t, errs.CodeEmptyBody, errs.CodeOf(err))

	_, err = ToStorage(post, map[string]any{
		"id":        5,
		"title":     3,
		"url":       "x",
		"author":    map[string]any{"id": 1},
		"published": "maybe",
		"bogus":     1,
		"tags_ids":  "1,2",
	}, Create)
	var issues errs.Issues
	require.ErrorAs(t, err, &issues)

	got := map[string]string{}
	for _, is := range issues {
		got[is.Field] = is.Code
	}
	assert.Equal(t, map[string]string{
		"author":    errs.CodeReadOnly,
		"bogus":     errs.CodeUnknownField,
		"id":        errs.CodeReadOnly,
		"published": errs.CodeTypeMismatch,
		"slug":      errs.CodeRequired,
		"tags_ids":  errs.CodeTypeMismatch,
		"title":     errs.CodeTypeMismatch,
		"url":       errs.CodeReadOnly,
	}, got)
	for i := 1; i < len(issues); i++ {
		assert.LessOrEqual(t, issues[i-1].Field, issues[i].Field)
	}
}

func TestStrictCoercion(t *testing.T) {
	_, err := toIntStrict(1.5)
	assert.Error(t, err)
	n, err := toIntStrict(3.0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	for _, big := range []float64{1e20, -1e20, math.Inf(1), math.NaN(), 9223372036854775808} {
		_, err = toIntStrict(big)
		assert.Error(t, err, "%v", big)
	}
	n, err = toIntStrict(-9223372036854775808.0)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MinInt64), n)

	b, err := toBoolStrict(" Off ")
	require.NoError(t, err)
	assert.False(t, b)

	v, err := toStorage(registry.TypeDateTime, "2024-01-02T05:04:05+02:00")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02T03:04:05Z", v)

	_, err = toStorage(registry.TypeDate, "02.01.2024")
	assert.Error(t, err)
}
