// Package plan строит план запросов: один основной SELECT (колонки + LEFT JOIN
// для to-one) и по одному prefetch-запросу на каждую to-many связь.
package plan

import (
	"fmt"
	"sort"
	"strings"

	"viewsets/internal/errs"
	"viewsets/internal/registry"
	"viewsets/internal/resolve"
)

const (
	rootAlias = "t0"
	// ParentAlias: колонка prefetch-строки с ключом владельца
	ParentAlias = "__parent"
	pathSep     = "__"
)

// Column: выбранная колонка: Source.Column AS Alias
type Column struct {
	Alias  string
	Source string
	Column string
	Field  *registry.Field
}

// Join: LEFT JOIN to-one цели: Schema AS Alias ON Alias.pk = Parent.FK
type Join struct {
	Path   string // "author", "author.country"
	Alias  string
	Schema *registry.Schema
	Parent string
	FK     string
}

// Cond: равенство Source.Column = Value
type Cond struct {
	Source string
	Column string
	Value  any
}

type OrderBy struct {
	Source string
	Column string
	Desc   bool
}

// Page: пагинация основного запроса; Limit 0 = без ограничения
type Page struct {
	Limit  int
	Offset int
}

// Params: ограничения запроса от dispatch-слоя
type Params struct {
	Filters map[string]string
	Page    Page
	Order   []string // "-title", "slug"
	Lookup  string
	// Key: точное значение pk (чтение после записи); приоритетнее Lookup
	Key any
}

// Query: один SELECT по уровню схемы. Для основного запроса заполнены
// Where/Order/Page и Prefetches; для prefetch только колонки, join'ы и порядок.
type Query struct {
	Schema   *registry.Schema
	Table    string
	Alias    string
	Columns  []Column
	Joins    []Join
	Where    []Cond
	Order    []OrderBy
	Page     Page
	Resolved *resolve.Resolved

	// Prefetches: все to-many уровни плана, родители раньше детей.
	Prefetches []*Prefetch
}

// Prefetch описывает вторичный запрос: строки цели, чей ключ владельца входит в набор
// ключей, полученных уровнем выше.
type Prefetch struct {
	Path  string // "tags", "author.posts", "posts.tags"
	Field *registry.Field
	// Level: число prefetch-предков; уровни выполняются по очереди.
	Level int
	// Rows: путь prefetch-уровня, чьи строки дают ключи ("" = основной запрос).
	Rows string
	// Owner: путь записи-владельца внутри строк Rows ("" или путь join'а).
	Owner string
	// KeyAlias: колонка строк Rows с pk владельца.
	KeyAlias string
	IDsOnly  bool
	Query    *Query
}

// ParentColumn: колонка со ссылкой на владельца: в таблице связи или в таблице цели
func (p *Prefetch) ParentColumn() string { return p.Field.Link.OwnerColumn }

// Build строит план по результату resolve.Resolve.
func Build(r *resolve.Resolved, params Params) (*Query, error) {
	s := r.Schema
	q := level(r)
	q.Page = params.Page

	for _, name := range sortedKeys(params.Filters) {
		f, keysOnly, ok := s.FieldRef(name)
		if !ok || !(s.IsFilter(name) || keysOnly && f.Kind == registry.ToOne && s.IsFilter(f.Name)) {
			return nil, errs.Client(errs.CodeUnknownFilter, name, "unknown filter %q", name)
		}
		v, err := Coerce(f, params.Filters[name])
		if err != nil {
			return nil, err
		}
		q.Where = append(q.Where, Cond{Source: rootAlias, Column: f.Column, Value: v})
	}

	if params.Key != nil {
		q.Where = append(q.Where, Cond{Source: rootAlias, Column: s.PK.Column, Value: params.Key})
	} else if params.Lookup != "" {
		c, err := lookupCond(s, params.Lookup)
		if err != nil {
			return nil, err
		}
		q.Where = append(q.Where, c)
	}

	order, err := orderBy(s, params.Order)
	if err != nil {
		return nil, err
	}
	q.Order = order

	var b planner
	b.prefetches(r, "", 0)
	q.Prefetches = b.out
	return q, nil
}

// level: колонки и join'ы одного уровня (алиасы t0, t1, ...)
func level(r *resolve.Resolved) *Query {
	q := &Query{Schema: r.Schema, Table: r.Schema.Table, Alias: rootAlias, Resolved: r}
	n := 0
	var walk func(r *resolve.Resolved, alias, path string)
	walk = func(r *resolve.Resolved, alias, path string) {
		for _, f := range r.Columns {
			q.Columns = append(q.Columns, Column{Alias: aliasOf(path, f.Column), Source: alias, Column: f.Column, Field: f})
		}
		for _, name := range r.JoinNames() {
			j := r.Joins[name]
			fk := r.Schema.Field(name)
			n++
			a := fmt.Sprintf("t%d", n)
			p := joinPath(path, name)
			q.Joins = append(q.Joins, Join{Path: p, Alias: a, Schema: j.Schema, Parent: alias, FK: fk.Column})
			walk(j, a, p)
		}
	}
	walk(r, rootAlias, "")
	return q
}

type planner struct {
	out []*Prefetch
}

// prefetches добавляет prefetch на каждую to-many связь уровня r и его join'ов,
// затем рекурсивно уровни детей. Родители всегда идут раньше детей.
func (b *planner) prefetches(r *resolve.Resolved, rows string, lvl int) {
	type child struct {
		p  *Prefetch
		pr *resolve.Prefetch
	}
	var next []child
	var walk func(r *resolve.Resolved, owner string)
	walk = func(r *resolve.Resolved, owner string) {
		for _, name := range r.PrefetchNames() {
			pr := r.Prefetches[name]
			sub := level(pr.Resolved)
			sub.Order = stableOrder(pr.Schema)
			p := &Prefetch{
				Path:     joinPath(joinPath(rows, owner), name),
				Field:    pr.Field,
				Level:    lvl,
				Rows:     rows,
				Owner:    owner,
				KeyAlias: aliasOf(owner, r.Schema.PK.Column),
				IDsOnly:  pr.IDsOnly,
				Query:    sub,
			}
			b.out = append(b.out, p)
			next = append(next, child{p, pr})
		}
		for _, name := range r.JoinNames() {
			walk(r.Joins[name], joinPath(owner, name))
		}
	}
	walk(r, "")
	for _, c := range next {
		if !c.pr.IDsOnly {
			b.prefetches(c.pr.Resolved, c.p.Path, lvl+1)
		}
	}
}

// orderBy: запрошенный порядок -> order(...) схемы -> pk как последний ключ
func orderBy(s *registry.Schema, requested []string) ([]OrderBy, error) {
	var out []OrderBy
	seen := map[string]bool{}
	add := func(f *registry.Field, desc bool) {
		if seen[f.Column] {
			return
		}
		seen[f.Column] = true
		out = append(out, OrderBy{Source: rootAlias, Column: f.Column, Desc: desc})
	}
	for _, raw := range requested {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		desc := strings.HasPrefix(raw, "-")
		name := strings.TrimLeft(raw, "+-")
		f := s.Field(name)
		if f == nil || f.Kind != registry.Stored {
			return nil, errs.Client(errs.CodeUnknownField, name, "cannot sort by %q", name)
		}
		add(f, desc)
	}
	if len(out) == 0 {
		for _, o := range s.Order {
			add(o.Field, o.Desc)
		}
	}
	add(s.PK, false)
	return out, nil
}

// stableOrder: порядок строк prefetch: order(...) цели, затем pk
func stableOrder(s *registry.Schema) []OrderBy {
	out, _ := orderBy(s, nil)
	return out
}

func aliasOf(path, column string) string {
	if path == "" {
		return column
	}
	return strings.ReplaceAll(path, ".", pathSep) + pathSep + column
}

func joinPath(prefix, name string) string {
	if name == "" {
		return prefix
	}
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// AliasOf: алиас колонки column на join-пути path ("author", "id") -> "author__id"
func AliasOf(path, column string) string { return aliasOf(path, column) }

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
