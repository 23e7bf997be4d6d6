// Package assemble собирает записи из строк основного запроса и prefetch'ей.
package assemble

import (
	"viewsets/internal/plan"
	"viewsets/internal/registry"
	"viewsets/internal/resolve"
	"viewsets/internal/store"
)

// Record: промежуточная запись одного уровня схемы
type Record struct {
	Schema *registry.Schema
	Key    any
	// Values: колонки уровня по имени колонки (включая fk to-one)
	Values map[string]any
	// One: раскрытые to-one; nil, если fk пустой
	One map[string]*Record
	// Many: to-many по имени связи; пустой срез, если детей нет
	Many map[string][]*Record
}

// Assemble строит записи в порядке строк основного запроса и развешивает
// на них результаты prefetch'ей (prefetched: путь prefetch'а -> строки).
func Assemble(q *plan.Query, rows []store.Row, prefetched map[string][]store.Row) []*Record {
	levels := map[string][]*Record{}

	root := make([]*Record, 0, len(rows))
	for _, row := range rows {
		root = append(root, build(q.Resolved, row, ""))
	}
	levels[""] = root

	for _, p := range q.Prefetches {
		groups := map[any][]*Record{}
		var all []*Record
		for _, row := range prefetched[p.Path] {
			child := build(p.Query.Resolved, row, "")
			k := store.Key(row[plan.ParentAlias])
			groups[k] = append(groups[k], child)
			all = append(all, child)
		}
		levels[p.Path] = all

		for _, owner := range owners(levels[p.Rows], p.Owner) {
			kids := groups[store.Key(owner.Key)]
			if kids == nil {
				kids = []*Record{}
			}
			owner.Many[p.Field.Name] = kids
		}
	}
	return root
}

func build(r *resolve.Resolved, row store.Row, path string) *Record {
	rec := &Record{
		Schema: r.Schema,
		Values: make(map[string]any, len(r.Columns)),
		One:    map[string]*Record{},
		Many:   map[string][]*Record{},
	}
	for _, f := range r.Columns {
		rec.Values[f.Column] = row[plan.AliasOf(path, f.Column)]
	}
	rec.Key = store.Key(rec.Values[r.Schema.PK.Column])
	for _, name := range r.JoinNames() {
		p := name
		if path != "" {
			p = path + "." + name
		}
		j := r.Joins[name]
		if row[plan.AliasOf(p, j.Schema.PK.Column)] == nil {
			rec.One[name] = nil
			continue
		}
		rec.One[name] = build(j, row, p)
	}
	return rec
}

// owners: записи по пути join'ов внутри набора записей уровня
func owners(recs []*Record, path string) []*Record {
	if path == "" {
		return recs
	}
	name, rest := path, ""
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			name, rest = path[:i], path[i+1:]
			break
		}
	}
	var out []*Record
	for _, r := range recs {
		if one := r.One[name]; one != nil {
			out = append(out, one)
		}
	}
	return owners(out, rest)
}
