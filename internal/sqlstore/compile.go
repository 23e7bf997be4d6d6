package sqlstore

import (
	"fmt"
	"strings"

	"viewsets/internal/plan"
	"viewsets/internal/registry"
)

const linkAlias = "l"

// stmt собирает параметризованный SQL; значения никогда не вклеиваются в текст.
type stmt struct {
	d    Dialect
	sb   strings.Builder
	args []any
	err  error
}

func (s *stmt) w(parts ...string) *stmt {
	for _, p := range parts {
		s.sb.WriteString(p)
	}
	return s
}

func (s *stmt) arg(v any) string {
	s.args = append(s.args, v)
	return s.d.Placeholder(len(s.args))
}

func (s *stmt) keySet(column string, t registry.Type, keys []any) {
	v, err := s.d.KeysArg(t, keys)
	if err != nil && s.err == nil {
		s.err = err
	}
	s.w(s.d.KeySet(column, s.arg(v), t))
}

func (s *stmt) String() string { return s.sb.String() }

func col(alias, column string) string { return alias + "." + sqlIdent(column) }

func (s *stmt) columns(q *plan.Query) {
	for i, c := range q.Columns {
		if i > 0 {
			s.w(", ")
		}
		s.w(col(c.Source, c.Column), " AS ", sqlIdent(c.Alias))
	}
}

func (s *stmt) joins(q *plan.Query) {
	for _, j := range q.Joins {
		s.w(" LEFT JOIN ", s.d.Table(j.Schema), " AS ", j.Alias,
			" ON ", col(j.Alias, j.Schema.PK.Column), " = ", col(j.Parent, j.FK))
	}
}

func (s *stmt) order(q *plan.Query) {
	if len(q.Order) == 0 {
		return
	}
	parts := make([]string, len(q.Order))
	for i, o := range q.Order {
		parts[i] = col(o.Source, o.Column)
		if o.Desc {
			parts[i] += " DESC"
		}
	}
	s.w(" ORDER BY ", strings.Join(parts, ", "))
}

// CompileSelect компилирует основной запрос плана
func CompileSelect(d Dialect, q *plan.Query) (string, []any) {
	s := &stmt{d: d}
	s.w("SELECT ")
	s.columns(q)
	s.w(" FROM ", d.Table(q.Schema), " AS ", q.Alias)
	s.joins(q)
	for i, c := range q.Where {
		if i == 0 {
			s.w(" WHERE ")
		} else {
			s.w(" AND ")
		}
		s.w(col(c.Source, c.Column), " = ", s.arg(c.Value))
	}
	s.order(q)
	if q.Page.Limit > 0 {
		s.w(" LIMIT ", s.arg(q.Page.Limit))
		if q.Page.Offset > 0 {
			s.w(" OFFSET ", s.arg(q.Page.Offset))
		}
	}
	return s.String(), s.args
}

// CompilePrefetch компилирует вторичный запрос по набору ключей владельцев.
// Весь набор передаётся одним параметром: один prefetch, один SQL.
func CompilePrefetch(d Dialect, p *plan.Prefetch, keys []any) (string, []any, error) {
	q := p.Query
	link := p.Field.Link
	s := &stmt{d: d}
	owner := p.Field.Schema
	keyType := owner.PK.Type

	if link.Through == "" {
		// обратный внешний ключ: fk лежит в таблице цели
		s.w("SELECT ", col(q.Alias, link.OwnerColumn), " AS ", sqlIdent(plan.ParentAlias), ", ")
		s.columns(q)
		s.w(" FROM ", d.Table(q.Schema), " AS ", q.Alias)
		s.joins(q)
		s.w(" WHERE ")
		s.keySet(col(q.Alias, link.OwnerColumn), keyType, keys)
		s.order(q)
		return s.String(), s.args, s.err
	}

	parent := col(linkAlias, link.OwnerColumn)
	if p.IDsOnly {
		target := col(linkAlias, link.TargetColumn)
		s.w("SELECT ", parent, " AS ", sqlIdent(plan.ParentAlias), ", ",
			target, " AS ", sqlIdent(q.Schema.PK.Column),
			" FROM ", d.LinkTable(owner, link.Through), " AS ", linkAlias, " WHERE ")
		s.keySet(parent, keyType, keys)
		s.w(" ORDER BY ", parent, ", ", target)
		return s.String(), s.args, s.err
	}

	s.w("SELECT ", parent, " AS ", sqlIdent(plan.ParentAlias), ", ")
	s.columns(q)
	s.w(" FROM ", d.LinkTable(owner, link.Through), " AS ", linkAlias,
		" JOIN ", d.Table(q.Schema), " AS ", q.Alias,
		" ON ", col(q.Alias, q.Schema.PK.Column), " = ", col(linkAlias, link.TargetColumn))
	s.joins(q)
	s.w(" WHERE ")
	s.keySet(parent, keyType, keys)
	s.order(q)
	return s.String(), s.args, s.err
}

// Explain печатает SQL плана: основной запрос и prefetch'и.
func Explain(d Dialect, q *plan.Query) string {
	var b strings.Builder
	sqlText, _ := CompileSelect(d, q)
	fmt.Fprintf(&b, "primary: %s\n", sqlText)
	for _, p := range q.Prefetches {
		sqlText, _, _ := CompilePrefetch(d, p, nil)
		fmt.Fprintf(&b, "prefetch %s (level %d): %s\n", p.Path, p.Level, sqlText)
	}
	return b.String()
}
