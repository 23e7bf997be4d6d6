// Package viewset реализует движок viewset'а: retrieve/list/create/update/destroy
// поверх реестра полей и хранилища.
package viewset

import (
	"context"
	"fmt"
	"iter"
	"log"
	"sync/atomic"

	"viewsets/internal/assemble"
	"viewsets/internal/errs"
	"viewsets/internal/fetch"
	"viewsets/internal/fields"
	"viewsets/internal/plan"
	"viewsets/internal/project"
	"viewsets/internal/registry"
	"viewsets/internal/resolve"
	"viewsets/internal/store"
)

// Params: параметры запроса от dispatch-слоя
type Params struct {
	Fields  string            // fields=content,author(nickname)
	Filters map[string]string // только при WithFilters
	Limit   int               // 0 = по умолчанию
	Offset  int
	Sort    []string // -title, slug
}

// Lister, Retriever, Creator, Updater, Replacer, Destroyer: глагольные возможности;
// dispatch регистрирует маршруты по тому, что реализует значение.
type Lister interface {
	List(ctx context.Context, p Params) (iter.Seq2[map[string]any, error], error)
}

type Retriever interface {
	Retrieve(ctx context.Context, lookup string, p Params) (map[string]any, error)
}

type Creator interface {
	Create(ctx context.Context, payload map[string]any) (map[string]any, error)
}

type Updater interface {
	Update(ctx context.Context, lookup string, payload map[string]any) (map[string]any, error)
}

// Replacer: полное обновление (PUT); Updater: частичное (PATCH)
type Replacer interface {
	Replace(ctx context.Context, lookup string, payload map[string]any) (map[string]any, error)
}

type Destroyer interface {
	Destroy(ctx context.Context, lookup string) error
}

// Viewset реализует все глаголы.
type Viewset struct {
	schema *registry.Schema
	store  store.Store
	logger *log.Logger
	hooks  *hooks

	paginated            bool
	pageDefault, pageMax int
	filterable, fielded  bool
}

// New создаёт viewset для схемы name (FQN или уникальное имя сущности).
func New(reg *registry.Registry, name string, st store.Store, opts ...Option) (*Viewset, error) {
	s, ok := reg.Describe(name)
	if !ok {
		return nil, errs.Config(errs.CodeUnknownTarget, name, "unknown schema %q", name)
	}
	v := &Viewset{schema: s, store: st, logger: log.Default()}
	v.hooks = &hooks{logger: v.logger}
	for _, o := range opts {
		o(v)
	}
	return v, nil
}

func (v *Viewset) Schema() *registry.Schema { return v.schema }

// prepared: проверенный и спланированный запрос; I/O ещё не было
type prepared struct {
	effective fields.Selection
	query     *plan.Query
}

func (v *Viewset) prepare(p Params, lookup string, key any, full bool) (*prepared, error) {
	requested := fields.Selection{}
	switch {
	case full:
		requested = fields.Of(v.schema.ReadableFields()...)
	case v.fielded && p.Fields != "":
		sel, err := fields.Parse(p.Fields)
		if err != nil {
			return nil, errs.Client(errs.CodeBadSelection, "fields", "%v", err)
		}
		requested = sel
	}
	eff, err := resolve.Expand(v.schema, requested)
	if err != nil {
		return nil, err
	}
	r, err := resolve.Resolve(v.schema, eff)
	if err != nil {
		return nil, err
	}

	params := plan.Params{Order: p.Sort, Lookup: lookup, Key: key}
	if v.filterable {
		params.Filters = p.Filters
	}
	if lookup == "" && key == nil {
		page, err := v.page(p)
		if err != nil {
			return nil, err
		}
		params.Page = page
	} else {
		params.Page = plan.Page{Limit: 1}
	}
	q, err := plan.Build(r, params)
	if err != nil {
		return nil, err
	}
	return &prepared{effective: eff, query: q}, nil
}

func (v *Viewset) page(p Params) (plan.Page, error) {
	if p.Limit < 0 || p.Offset < 0 {
		return plan.Page{}, errs.Client(errs.CodeTypeMismatch, "limit", "limit and offset must be non-negative")
	}
	if !v.paginated {
		return plan.Page{}, nil
	}
	limit := p.Limit
	if limit == 0 {
		limit = v.pageDefault
	}
	limit = min(limit, v.pageMax)
	return plan.Page{Limit: limit, Offset: p.Offset}, nil
}

func (v *Viewset) records(ctx context.Context, pr *prepared) ([]*assemble.Record, error) {
	res, err := fetch.Run(ctx, v.store, pr.query)
	if err != nil {
		return nil, err
	}
	return assemble.Assemble(pr.query, res.Rows, res.Prefetched), nil
}

func (v *Viewset) one(ctx context.Context, pr *prepared, what string) (map[string]any, error) {
	recs, err := v.records(ctx, pr)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, errs.NotFound("%s %s not found", v.schema.Name, what)
	}
	return project.Record(v.schema, recs[0], pr.effective)
}

// Retrieve возвращает одну запись по pk или альтернативному уникальному ключу.
func (v *Viewset) Retrieve(ctx context.Context, lookup string, p Params) (map[string]any, error) {
	if lookup == "" {
		return nil, errs.Client(errs.CodeInvalidLookup, v.schema.PK.Name, "empty lookup")
	}
	pr, err := v.prepare(p, lookup, nil, false)
	if err != nil {
		return nil, err
	}
	return v.one(ctx, pr, quote(lookup))
}

// List проверяет и планирует запрос сразу, а обращается к хранилищу лениво:
// при первой итерации. Последовательность однопроходная.
func (v *Viewset) List(ctx context.Context, p Params) (iter.Seq2[map[string]any, error], error) {
	pr, err := v.prepare(p, "", nil, false)
	if err != nil {
		return nil, err
	}
	var used atomic.Bool
	return func(yield func(map[string]any, error) bool) {
		if !used.CompareAndSwap(false, true) {
			yield(nil, errs.Internal("list result can be consumed only once"))
			return
		}
		recs, err := v.records(ctx, pr)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, rec := range recs {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			m, err := project.Record(v.schema, rec, pr.effective)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(m, nil) {
				return
			}
		}
	}, nil
}

// Collect дочитывает последовательность List в срез.
func Collect(seq iter.Seq2[map[string]any, error]) ([]map[string]any, error) {
	out := []map[string]any{}
	for m, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Explain отдаёт план запроса без обращения к хранилищу
func (v *Viewset) Explain(p Params) (*plan.Query, error) {
	pr, err := v.prepare(p, "", nil, false)
	if err != nil {
		return nil, err
	}
	return pr.query, nil
}

// full: полная проекция записи (ответ на запись и состояние для хуков)
func (v *Viewset) full(ctx context.Context, lookup string, key any) (map[string]any, error) {
	pr, err := v.prepare(Params{}, lookup, key, true)
	if err != nil {
		return nil, err
	}
	what := quote(lookup)
	if key != nil {
		what = quote(key)
	}
	return v.one(ctx, pr, what)
}

// Create пишет запись и связи в одной транзакции, затем перечитывает её и шлёт post_save.
func (v *Viewset) Create(ctx context.Context, payload map[string]any) (map[string]any, error) {
	w, err := project.ToStorage(v.schema, payload, project.Create)
	if err != nil {
		return nil, err
	}
	var key any
	err = v.store.Write(ctx, func(ctx context.Context, tx store.Writer) error {
		k, err := tx.Insert(ctx, v.schema, w.Values)
		if err != nil {
			return err
		}
		key = k
		return v.links(ctx, tx, w, key)
	})
	if err != nil {
		return nil, err
	}
	after, err := v.full(ctx, "", key)
	if err != nil {
		return nil, err
	}
	v.hooks.fire(ctx, PostSave, Event{Schema: v.schema, Created: true, After: after})
	return after, nil
}

// Update частично обновляет запись по lookup.
func (v *Viewset) Update(ctx context.Context, lookup string, payload map[string]any) (map[string]any, error) {
	return v.update(ctx, lookup, payload, project.Partial)
}

// Replace обновляет запись телом, проверенным как полное: обязательные поля
// должны быть переданы. Записываются только переданные поля.
func (v *Viewset) Replace(ctx context.Context, lookup string, payload map[string]any) (map[string]any, error) {
	return v.update(ctx, lookup, payload, project.Replace)
}

func (v *Viewset) update(ctx context.Context, lookup string, payload map[string]any, mode project.Mode) (map[string]any, error) {
	w, err := project.ToStorage(v.schema, payload, mode)
	if err != nil {
		return nil, err
	}
	before, err := v.full(ctx, lookup, nil)
	if err != nil {
		return nil, err
	}
	key := before[v.schema.PK.Name]
	err = v.store.Write(ctx, func(ctx context.Context, tx store.Writer) error {
		if len(w.Values) > 0 {
			n, err := tx.Update(ctx, v.schema, key, w.Values)
			if err != nil {
				return err
			}
			if n == 0 {
				return errs.NotFound("%s %s not found", v.schema.Name, quote(lookup))
			}
		}
		return v.links(ctx, tx, w, key)
	})
	if err != nil {
		return nil, err
	}
	after, err := v.full(ctx, "", key)
	if err != nil {
		return nil, err
	}
	v.hooks.fire(ctx, PostSave, Event{Schema: v.schema, Before: before, After: after})
	return after, nil
}

// Destroy удаляет запись; post_delete получает последнее состояние.
func (v *Viewset) Destroy(ctx context.Context, lookup string) error {
	before, err := v.full(ctx, lookup, nil)
	if err != nil {
		return err
	}
	key := before[v.schema.PK.Name]
	err = v.store.Write(ctx, func(ctx context.Context, tx store.Writer) error {
		n, err := tx.Delete(ctx, v.schema, key)
		if err != nil {
			return err
		}
		if n == 0 {
			return errs.NotFound("%s %s not found", v.schema.Name, quote(lookup))
		}
		return nil
	})
	if err != nil {
		return err
	}
	v.hooks.fire(ctx, PostDelete, Event{Schema: v.schema, Before: before})
	return nil
}

func (v *Viewset) links(ctx context.Context, tx store.Writer, w *project.Write, key any) error {
	for _, l := range w.Links {
		if err := tx.ReplaceLinks(ctx, l.Field, key, l.IDs); err != nil {
			return err
		}
	}
	return nil
}

// readOnly: только list и retrieve; возможности остаются видны dispatch'у
type readOnly struct {
	Lister
	Retriever
	vs *Viewset
}

func (r readOnly) Pagination() (int, int, bool) { return r.vs.Pagination() }
func (r readOnly) Filterable() bool            { return r.vs.Filterable() }
func (r readOnly) Fielded() bool               { return r.vs.Fielded() }

// ReadOnly отдаёт viewset без глаголов записи.
func ReadOnly(v *Viewset) interface {
	Lister
	Retriever
} {
	return readOnly{Lister: v, Retriever: v, vs: v}
}

func quote(v any) string { return fmt.Sprintf("%q", fmt.Sprint(v)) }
