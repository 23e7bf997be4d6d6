// Package testfixture содержит общую схему блога для тестов пакетов движка.
package testfixture

import (
	"testing"

	"github.com/stretchr/testify/require"

	"viewsets/internal/dsl"
	"viewsets/internal/registry"
)

const BlogDSL = `
module blog

entity Author:
  nickname: string required unique
  email: string
  posts: many[Post] by=author
  view:
    defaults(id, nickname)
    lookup(nickname)
    order(nickname)

entity Tag:
  name: string required unique
  view:
    defaults(id, name)
    order(name)

entity Post:
  title: string required
  slug: string required unique
  content: text default=''
  metadata: json default={}
  published: bool default=false
  rating: float
  author: ref[Author]
  tags: many[Tag] through=post_tags
  url: computed[slug] fn=template tmpl='http://example.com/{slug}/'
  tag_count: computed[tags] fn=count
  view:
    defaults(id, title)
    readonly(url)
    filter(slug, author, published)
    lookup(slug)
    order(-id)
`

// Entities разбирает DSL и индексирует по FQN.
func Entities(t testing.TB, src string) map[string]*dsl.Entity {
	t.Helper()
	ents, err := dsl.ParseString(src)
	require.NoError(t, err)
	idx, err := dsl.Index(ents)
	require.NoError(t, err)
	return idx
}

// Registry строит реестр из DSL; падает на ошибке конфигурации.
func Registry(t testing.TB, src string) *registry.Registry {
	t.Helper()
	reg, err := registry.Build(Entities(t, src), nil)
	require.NoError(t, err)
	return reg
}

// Blog собирает реестр из BlogDSL
func Blog(t testing.TB) *registry.Registry {
	return Registry(t, BlogDSL)
}
