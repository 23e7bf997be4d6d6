package resolve

import (
	"sort"

	"viewsets/internal/errs"
	"viewsets/internal/fields"
	"viewsets/internal/registry"
)

// Resolved: что нужно достать из хранилища для одного уровня схемы.
type Resolved struct {
	Schema *registry.Schema

	// Columns: хранимые поля и to-one поля (их fk-колонка), в порядке объявления; pk всегда первым.
	Columns []*registry.Field
	// Joins: to-one связи, раскрытые подполями; join'ятся в основной запрос.
	Joins map[string]*Resolved
	// Prefetches: to-many связи; никогда не join'ятся.
	Prefetches map[string]*Prefetch

	cols     map[*registry.Field]struct{}
	computed map[*registry.Field]struct{}
}

// Prefetch: to-many связь, которую надо догрузить отдельным запросом.
type Prefetch struct {
	*Resolved
	Field *registry.Field
	// IDsOnly: запрошены только ключи (tags_ids), строки цели не нужны.
	IDsOnly bool
}

func newResolved(s *registry.Schema) *Resolved {
	r := &Resolved{
		Schema:     s,
		Joins:      map[string]*Resolved{},
		Prefetches: map[string]*Prefetch{},
		cols:       map[*registry.Field]struct{}{},
		computed:   map[*registry.Field]struct{}{},
	}
	r.addColumn(s.PK)
	return r
}

func (r *Resolved) addColumn(f *registry.Field) {
	if _, ok := r.cols[f]; ok {
		return
	}
	r.cols[f] = struct{}{}
	r.Columns = append(r.Columns, f)
}

// Resolve раскрывает эффективный выбор (результат Expand) в колонки, join'ы и prefetch'и.
func Resolve(s *registry.Schema, effective fields.Selection) (*Resolved, error) {
	r := newResolved(s)
	if err := r.add(effective, ""); err != nil {
		return nil, err
	}
	r.finish()
	return r, nil
}

func (r *Resolved) add(sel fields.Selection, prefix string) error {
	s := r.Schema
	for _, name := range sel.Names() {
		sub := sel[name]
		f, keysOnly, ok := s.FieldRef(name)
		if !ok {
			return errs.Client(errs.CodeUnknownField, prefix+name, "unknown field %q", prefix+name)
		}
		switch f.Kind {
		case registry.Stored:
			r.addColumn(f)
		case registry.ToOne:
			r.addColumn(f)
			if keysOnly || len(sub) == 0 {
				continue
			}
			j, ok := r.Joins[f.Name]
			if !ok {
				j = newResolved(f.Target)
				r.Joins[f.Name] = j
			}
			if err := j.add(sub, prefix+name+"."); err != nil {
				return err
			}
		case registry.ToMany:
			p, ok := r.Prefetches[f.Name]
			if !ok {
				p = &Prefetch{Resolved: newResolved(f.Target), Field: f, IDsOnly: true}
				r.Prefetches[f.Name] = p
			}
			if keysOnly {
				continue
			}
			p.IDsOnly = false
			if err := p.add(sub, prefix+name+"."); err != nil {
				return err
			}
		case registry.Computed:
			if _, seen := r.computed[f]; seen {
				continue
			}
			r.computed[f] = struct{}{}
			deps, err := Deps(f)
			if err != nil {
				return err
			}
			if err := r.add(deps, prefix); err != nil {
				return err
			}
		}
	}
	return nil
}

// finish упорядочивает колонки по объявлению схемы (pk первым); SQL получается детерминированным.
func (r *Resolved) finish() {
	pos := make(map[*registry.Field]int, len(r.Schema.Fields()))
	for i, f := range r.Schema.Fields() {
		pos[f] = i
	}
	pk := r.Schema.PK
	sort.SliceStable(r.Columns, func(i, j int) bool {
		a, b := r.Columns[i], r.Columns[j]
		if a == pk || b == pk {
			return a == pk && b != pk
		}
		return pos[a] < pos[b]
	})
	for _, j := range r.Joins {
		j.finish()
	}
	for _, p := range r.Prefetches {
		p.finish()
	}
}

// JoinNames: имена join'ов в стабильном порядке
func (r *Resolved) JoinNames() []string { return sortedNames(r.Joins) }

// PrefetchNames: имена prefetch'ей в стабильном порядке
func (r *Resolved) PrefetchNames() []string { return sortedNames(r.Prefetches) }

// HasColumn сообщает, выбрана ли колонка поля
func (r *Resolved) HasColumn(f *registry.Field) bool {
	_, ok := r.cols[f]
	return ok
}

// Paths отдаёт плоское представление: колонки, to-one join'ы и to-many prefetch'и
// как пути через точку ("author.nickname", "tags").
type Paths struct {
	Columns    []string `json:"columns"`
	Joins      []string `json:"to_one_joins"`
	Prefetches []string `json:"to_many_prefetches"`
}

func (r *Resolved) Paths() Paths {
	var p Paths
	r.paths(&p, "")
	sort.Strings(p.Columns)
	sort.Strings(p.Joins)
	sort.Strings(p.Prefetches)
	return p
}

func (r *Resolved) paths(p *Paths, prefix string) {
	for _, f := range r.Columns {
		p.Columns = append(p.Columns, prefix+f.Column)
	}
	for _, name := range r.JoinNames() {
		p.Joins = append(p.Joins, prefix+name)
		r.Joins[name].paths(p, prefix+name+".")
	}
	for _, name := range r.PrefetchNames() {
		p.Prefetches = append(p.Prefetches, prefix+name)
		r.Prefetches[name].paths(p, prefix+name+".")
	}
}

func sortedNames[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
