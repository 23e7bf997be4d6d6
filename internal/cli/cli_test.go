package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viewsets/internal/testfixture"
)

func dslDir(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blog.dsl"), []byte(src), 0o644))
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"lint", "ddl", "plan"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestInvalidFormat(t *testing.T) {
	_, err := run(t, "--format", "xml", "lint", dslDir(t, testfixture.BlogDSL))
	assert.ErrorContains(t, err, `invalid format "xml"`)
}

func TestLint(t *testing.T) {
	out, err := run(t, "lint", dslDir(t, testfixture.BlogDSL))
	require.NoError(t, err)
	assert.Equal(t, "ok: 3 entities\n", out)

	bad := dslDir(t, "module m\n\nentity A:\n  b: ref[Nope]\n")
	out, err = run(t, "--format", "json", "lint", bad)
	require.ErrorIs(t, err, ErrIssues)
	var res lintResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.Valid)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, "m.A.b", res.Issues[0].Field)
	assert.Equal(t, "unknown_target", res.Issues[0].Code)
}

func TestDDL(t *testing.T) {
	out, err := run(t, "ddl", "-d", "postgres", dslDir(t, testfixture.BlogDSL))
	require.NoError(t, err)
	assert.Contains(t, out, "-- 000_schemas_and_tables\n")
	assert.Contains(t, out, `create schema if not exists "blog";`)
	assert.Contains(t, out, "-- 300_link_tables\n")

	_, err = run(t, "ddl", "-d", "oracle", dslDir(t, testfixture.BlogDSL))
	assert.Error(t, err)
}

func TestPlan(t *testing.T) {
	dir := dslDir(t, testfixture.BlogDSL)
	out, err := run(t, "plan", dir, "blog.Author", "-f", "posts(tags)", "--sort", "-nickname", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, `primary: SELECT t0."id" AS "id", t0."nickname" AS "nickname" FROM "blog_authors" AS t0 ORDER BY t0."nickname" DESC, t0."id" LIMIT ?`)
	assert.Contains(t, out, "prefetch posts (level 0): ")
	assert.Contains(t, out, "prefetch posts.tags (level 1): ")

	out, err = run(t, "--format", "json", "plan", dir, "Post", "-f", "author(nickname)", "--filter", "published=true")
	require.NoError(t, err)
	var res planResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "blog.Post", res.Schema)
	assert.Equal(t, []string{"author"}, res.Paths.Joins)
	require.Len(t, res.SQL, 1)
	assert.Contains(t, res.SQL[0], `WHERE t0."published" = ?`)

	_, err = run(t, "plan", dir, "Post", "-f", "nope")
	assert.Error(t, err)
	_, err = run(t, "plan", dir, "Post", "--filter", "published")
	assert.ErrorContains(t, err, "bad filter")
}

func TestShippedSchemaIsValid(t *testing.T) {
	out, err := run(t, "lint", filepath.Join("..", "..", "dsl"))
	require.NoError(t, err, out)
	assert.Equal(t, "ok: 3 entities\n", out)
}
