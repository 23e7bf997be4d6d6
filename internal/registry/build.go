package registry

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"viewsets/internal/dsl"
	"viewsets/internal/errs"
	"viewsets/internal/fields"
)

// Funcs: именованные функции для computed-полей (fn=...)
type Funcs map[string]ValueFunc

// Registry: неизменяемый после Build реестр схем, безопасен для конкурентного чтения.
type Registry struct {
	schemas map[string]*Schema
	names   []string
}

// Schemas: все схемы в порядке FQN
func (r *Registry) Schemas() []*Schema {
	out := make([]*Schema, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.schemas[n])
	}
	return out
}

type builder struct {
	reg     *Registry
	funcs   Funcs
	issues  errs.Issues
	targets map[*Field]string
	ents    map[*Schema]*dsl.Entity
}

func (b *builder) fail(code, field, format string, args ...any) {
	b.issues = append(b.issues, errs.Config(code, field, format, args...))
}

// Build строит реестр из DSL-сущностей. Все ошибки конфигурации собираются
// и возвращаются одной errs.Issues.
func Build(ents map[string]*dsl.Entity, funcs Funcs) (*Registry, error) {
	b := &builder{
		reg:     &Registry{schemas: make(map[string]*Schema, len(ents))},
		funcs:   Builtins(),
		targets: make(map[*Field]string),
		ents:    make(map[*Schema]*dsl.Entity, len(ents)),
	}
	for name, fn := range funcs {
		b.funcs[name] = fn
	}

	keys := make([]string, 0, len(ents))
	for k := range ents {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.reg.names = keys

	for _, k := range keys {
		e := ents[k]
		s := &Schema{
			Name:     e.FQN(),
			Module:   e.Module,
			Entity:   e.Name,
			Table:    safeTable(e.Name),
			byName:   make(map[string]*Field),
			readOnly: make(map[string]struct{}),
			filters:  make(map[string]struct{}),
			Unique:   e.Constraints.Unique,
		}
		b.reg.schemas[k] = s
		b.ents[s] = e
		b.declare(s, e)
	}
	for _, s := range b.reg.Schemas() {
		b.linkToOne(s)
	}
	for _, s := range b.reg.Schemas() {
		b.linkToMany(s)
	}
	for _, s := range b.reg.Schemas() {
		b.computed(s)
		b.view(s, b.ents[s])
		b.suffixes(s)
	}
	if len(b.issues) == 0 {
		b.cycles()
	}
	if len(b.issues) > 0 {
		return nil, b.issues
	}
	return b.reg, nil
}

func (b *builder) declare(s *Schema, e *dsl.Entity) {
	for _, df := range e.Fields {
		path := s.Name + "." + df.Name
		if _, dup := s.byName[df.Name]; dup {
			b.fail(errs.CodeDuplicateField, path, "duplicate field")
			continue
		}
		f := &Field{
			Name:     df.Name,
			Options:  df.Options,
			Schema:   s,
			Unique:   isTrue(df.Options["unique"]),
			Required: isTrue(df.Options["required"]),
		}
		switch df.Type {
		case "ref":
			f.Kind = ToOne
			f.Column = optOr(df.Options, "column", df.Name+FKSuffix)
			b.targets[f] = df.RefTarget
		case "many":
			f.Kind = ToMany
			b.targets[f] = df.RefTarget
		case "computed":
			f.Kind = Computed
			if df.Deps == "" {
				b.fail(errs.CodeUnknownDep, path, "computed field declares no dependencies")
				continue
			}
			sel, err := fields.Parse(df.Deps)
			if err != nil {
				b.fail(errs.CodeUnknownDep, path, "bad dependency list: %v", err)
				continue
			}
			f.Depends = sel
			f.DepList = topLevelNames(df.Deps)
		default:
			f.Kind = Stored
			f.Type = Type(df.Type)
			if _, ok := knownTypes[f.Type]; !ok {
				b.fail(errs.CodeBadType, path, "unknown type %q", df.Type)
				continue
			}
			f.Column = optOr(df.Options, "column", df.Name)
			f.PK = isTrue(df.Options["pk"])
			f.Auto = isTrue(df.Options["auto"])
			if raw, ok := df.Options["default"]; ok {
				v, err := parseDefault(f.Type, raw)
				if err != nil {
					b.fail(errs.CodeBadDefault, path, "default %q: %v", raw, err)
					continue
				}
				f.Default, f.HasDefault = v, true
			}
		}
		if f.PK {
			if s.PK != nil {
				b.fail(errs.CodeDuplicateField, path, "second primary key (first is %s)", s.PK.Name)
				continue
			}
			s.PK = f
		}
		s.byName[f.Name] = f
		s.fields = append(s.fields, f)
	}

	// pk по умолчанию: поле id, иначе неявный id int
	if s.PK == nil {
		if f := s.byName["id"]; f != nil && f.Kind == Stored {
			f.PK = true
			s.PK = f
		} else if f == nil {
			f := &Field{Name: "id", Kind: Stored, Type: TypeInt, Column: "id", PK: true, Auto: true, Schema: s}
			s.byName["id"] = f
			s.fields = append([]*Field{f}, s.fields...)
			s.PK = f
		} else {
			b.fail(errs.CodeBadType, s.Name+".id", "id must be a stored field or another field must be marked pk")
			return
		}
	}
	switch s.PK.Type {
	case TypeInt:
		s.PK.Auto = true
	case TypeString, TypeUUID:
	default:
		b.fail(errs.CodeBadType, s.PK.Path(), "primary key must be int, string or uuid, not %s", s.PK.Type)
	}
	s.PK.Unique = true
}

func (b *builder) target(f *Field) (*Schema, bool) {
	name := b.targets[f]
	t, ok := b.reg.lookupTarget(f.Schema.Module, name)
	if !ok {
		b.fail(errs.CodeUnknownTarget, f.Path(), "unknown relation target %q", name)
	}
	return t, ok
}

func (b *builder) linkToOne(s *Schema) {
	for _, f := range s.fields {
		if f.Kind != ToOne {
			continue
		}
		t, ok := b.target(f)
		if !ok {
			continue
		}
		f.Target = t
		if t.PK != nil {
			f.Type = t.PK.Type
		}
	}
}

func (b *builder) linkToMany(s *Schema) {
	for _, f := range s.fields {
		if f.Kind != ToMany {
			continue
		}
		t, ok := b.target(f)
		if !ok {
			continue
		}
		f.Target = t
		through, by := f.Options["through"], f.Options["by"]
		switch {
		case through != "" && by != "":
			b.fail(errs.CodeBadLink, f.Path(), "through= and by= are mutually exclusive")
		case through != "":
			l := &Link{
				Through:      through,
				OwnerColumn:  optOr(f.Options, "owner_col", snake(s.Entity)+FKSuffix),
				TargetColumn: optOr(f.Options, "target_col", snake(t.Entity)+FKSuffix),
			}
			if l.OwnerColumn == l.TargetColumn {
				b.fail(errs.CodeBadLink, f.Path(), "association columns collide (%s); set owner_col= / target_col=", l.OwnerColumn)
				continue
			}
			f.Link = l
		case by != "":
			r := t.byName[by]
			if r == nil || r.Kind != ToOne || r.Target != s {
				b.fail(errs.CodeBadLink, f.Path(), "by=%s must name a ref[%s] field of %s", by, s.Entity, t.Name)
				continue
			}
			f.Link = &Link{OwnerColumn: r.Column, Reverse: r}
		default:
			b.fail(errs.CodeBadLink, f.Path(), "many[...] needs through=<table> or by=<ref field>")
		}
	}
}

func (b *builder) computed(s *Schema) {
	for _, f := range s.fields {
		if f.Kind != Computed || f.Depends == nil {
			continue
		}
		b.checkSelection(f, s, f.Depends, "")
		name := f.Options["fn"]
		fn, ok := b.funcs[name]
		if !ok {
			b.fail(errs.CodeUnknownFunc, f.Path(), "unknown or missing fn=%q", name)
			continue
		}
		f.Func = fn
	}
}

// checkSelection проверяет, что все зависимости существуют (рекурсивно по связям)
func (b *builder) checkSelection(owner *Field, s *Schema, sel fields.Selection, prefix string) {
	for _, name := range sel.Names() {
		sub := sel[name]
		f, keysOnly, ok := s.FieldRef(name)
		if !ok {
			b.fail(errs.CodeUnknownDep, owner.Path(), "depends on unknown field %q", prefix+name)
			continue
		}
		if len(sub) == 0 {
			continue
		}
		if keysOnly || !f.IsRelation() || f.Target == nil {
			b.fail(errs.CodeUnknownDep, owner.Path(), "%q has no sub-fields", prefix+name)
			continue
		}
		b.checkSelection(owner, f.Target, sub, prefix+name+".")
	}
}

func (b *builder) view(s *Schema, e *dsl.Entity) {
	known := func(kind, name string) (*Field, bool) {
		f, _, ok := s.FieldRef(name)
		if !ok {
			b.fail(errs.CodeUnknownViewName, s.Name+"."+name, "unknown field in %s(...)", kind)
		}
		return f, ok
	}

	// без defaults(...) отдаём всё, кроме to-many
	if len(e.View.Defaults) == 0 {
		for _, f := range s.fields {
			if f.Kind != ToMany {
				s.defaults = append(s.defaults, f.Name)
			}
		}
	}
	for _, name := range e.View.Defaults {
		if _, ok := known("defaults", name); ok {
			s.defaults = append(s.defaults, name)
		}
	}

	for _, name := range e.View.ReadOnly {
		if _, ok := known("readonly", name); ok {
			s.readOnly[name] = struct{}{}
		}
	}
	for _, f := range s.fields {
		if f.Kind == Computed || f.PK {
			s.readOnly[f.Name] = struct{}{}
		}
		// by= с обязательным обратным fk: отвязать цель нельзя, поэтому x_ids не пишется
		if f.Kind == ToMany && f.Link != nil && f.Link.Reverse != nil && f.Link.Reverse.Required {
			s.readOnly[f.Name] = struct{}{}
		}
	}

	for _, name := range e.View.Filters {
		f, ok := known("filter", name)
		if !ok {
			continue
		}
		if f.Kind != Stored && f.Kind != ToOne {
			b.fail(errs.CodeUnknownViewName, s.Name+"."+name, "only stored and ref fields are filterable")
			continue
		}
		s.filters[name] = struct{}{}
	}

	if name := e.View.Lookup; name != "" {
		if f, ok := known("lookup", name); ok {
			switch {
			case f.Kind != Stored || f.PK:
				b.fail(errs.CodeLookupNotUnique, f.Path(), "lookup must be a stored non-pk column")
			case !f.Unique:
				b.fail(errs.CodeLookupNotUnique, f.Path(), "non-unique secondary lookup field")
			default:
				s.Lookup = f
			}
		}
	}

	for _, raw := range e.View.Order {
		name, desc := strings.TrimPrefix(strings.TrimPrefix(raw, "-"), "+"), strings.HasPrefix(raw, "-")
		f, ok := known("order", name)
		if !ok {
			continue
		}
		if f.Kind != Stored {
			b.fail(errs.CodeUnknownViewName, f.Path(), "only stored fields can order")
			continue
		}
		s.Order = append(s.Order, Order{Field: f, Desc: desc})
	}

	for _, set := range s.Unique {
		for _, name := range set {
			if f := s.byName[name]; f == nil || (f.Kind != Stored && f.Kind != ToOne) {
				b.fail(errs.CodeUnknownViewName, s.Name+"."+name, "unique(...) needs stored or ref fields")
			}
		}
	}
}

// suffixes: поле x_id/x_ids конфликтует с именем записи для связи x
func (b *builder) suffixes(s *Schema) {
	for _, f := range s.fields {
		if base, ok := strings.CutSuffix(f.Name, M2MSuffix); ok {
			if r := s.byName[base]; r != nil && r.Kind == ToMany {
				b.fail(errs.CodeReservedSuffix, f.Path(), "collides with the writer name of to-many %q", base)
			}
			continue
		}
		if base, ok := strings.CutSuffix(f.Name, FKSuffix); ok {
			if r := s.byName[base]; r != nil && r.Kind == ToOne {
				b.fail(errs.CodeReservedSuffix, f.Path(), "collides with the writer name of ref %q", base)
			}
		}
		if f.Kind == Stored {
			for _, r := range s.fields {
				if r.Kind == ToOne && r.Column == f.Column {
					b.fail(errs.CodeReservedSuffix, f.Path(), "column %q is the foreign key of %q", f.Column, r.Name)
				}
			}
		}
	}
}

func parseDefault(t Type, raw string) (any, error) {
	switch t {
	case TypeInt:
		return strconv.ParseInt(raw, 10, 64)
	case TypeFloat:
		return strconv.ParseFloat(raw, 64)
	case TypeBool:
		return strconv.ParseBool(raw)
	case TypeJSON:
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return raw, nil
	}
}

// topLevelNames: "a,b(c,d),e" -> [a b e]
func topLevelNames(raw string) []string {
	var out []string
	depth, start := 0, 0
	for i := 0; i <= len(raw); i++ {
		if i < len(raw) {
			switch raw[i] {
			case '(':
				depth++
				continue
			case ')':
				depth--
				continue
			case ',':
				if depth > 0 {
					continue
				}
			default:
				continue
			}
		}
		part := raw[start:i]
		if j := strings.IndexByte(part, '('); j >= 0 {
			part = part[:j]
		}
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
		start = i + 1
	}
	return out
}

func isTrue(v string) bool {
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func optOr(opts map[string]string, key, def string) string {
	if v := strings.TrimSpace(opts[key]); v != "" {
		return v
	}
	return def
}
