package sqlstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viewsets/internal/testfixture"
)

func TestGenerateDDLSQLite(t *testing.T) {
	ddl, err := GenerateDDL(testfixture.Blog(t), SQLite{})
	require.NoError(t, err)

	tables := ddl[PhaseTables]
	assert.Contains(t, tables, `create table if not exists "blog_posts" (`)
	assert.Contains(t, tables, `"id" integer primary key autoincrement`)
	assert.Contains(t, tables, `"title" text not null`)
	assert.Contains(t, tables, `"published" integer null default 0`)
	assert.Contains(t, tables, `"author_id" integer null references "blog_authors"("id") on delete RESTRICT`)
	assert.Contains(t, tables, `create unique index if not exists "blog_post_slug_uq" on "blog_posts"("slug");`)
	assert.NotContains(t, tables, "create schema")
	assert.NotContains(t, tables, `"url"`)
	assert.NotContains(t, tables, `"tags"`)

	_, ok := ddl[PhaseFKs]
	assert.False(t, ok, "sqlite keeps references inline")
	assert.Contains(t, ddl[PhaseLinks], `create table if not exists "blog_post_tags" (`)
	assert.Contains(t, ddl[PhaseLinks], `primary key ("post_id", "tag_id")`)
}

func TestGenerateDDLPostgres(t *testing.T) {
	ddl, err := GenerateDDL(testfixture.Blog(t), Postgres{})
	require.NoError(t, err)

	assert.Contains(t, ddl[PhaseTables], `create schema if not exists "blog";`)
	assert.Contains(t, ddl[PhaseTables], `"id" bigint generated by default as identity primary key`)
	assert.Contains(t, ddl[PhaseTables], `"published" boolean null default false`)
	assert.Contains(t, ddl[PhaseTables], `"metadata" jsonb null`)
	assert.Contains(t, ddl[PhaseTables], `create unique index if not exists "post_slug_uq" on "blog"."posts"("slug");`)
	assert.Contains(t, ddl[PhaseFKs],
		`alter table "blog"."posts" add constraint "post_author_fk" foreign key ("author_id") references "blog"."authors"("id") on delete RESTRICT;`)
	assert.Contains(t, ddl[PhaseLinks], `"post_id" bigint not null references "blog"."posts"("id") on delete cascade`)
}
