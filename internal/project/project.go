// Package project проецирует собранные записи в выходные отображения
// и разбирает payload записи в колонки хранилища.
package project

import (
	"viewsets/internal/assemble"
	"viewsets/internal/errs"
	"viewsets/internal/fields"
	"viewsets/internal/registry"
	"viewsets/internal/resolve"
)

// Record проецирует запись по эффективному выбору (результат resolve.Expand):
// в выходе ровно имена выбора. Computed-поля считаются по уже спроецированным
// зависимостям, без обращения к хранилищу.
func Record(s *registry.Schema, rec *assemble.Record, sel fields.Selection) (map[string]any, error) {
	out := make(map[string]any, len(sel))
	for _, name := range sel.Names() {
		v, err := value(s, rec, name, sel[name])
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

func value(s *registry.Schema, rec *assemble.Record, name string, sub fields.Selection) (any, error) {
	f, keysOnly, ok := s.FieldRef(name)
	if !ok {
		return nil, errs.Client(errs.CodeUnknownField, name, "unknown field %q", name)
	}
	switch f.Kind {
	case registry.Stored:
		return stored(f, rec.Values[f.Column])

	case registry.ToOne:
		if keysOnly || len(sub) == 0 {
			return stored(f, rec.Values[f.Column])
		}
		one, ok := rec.One[f.Name]
		if !ok {
			return nil, errs.Internal("%s: relation was not fetched", f.Path())
		}
		if one == nil {
			return nil, nil
		}
		return Record(f.Target, one, sub)

	case registry.ToMany:
		kids, ok := rec.Many[f.Name]
		if !ok {
			return nil, errs.Internal("%s: relation was not prefetched", f.Path())
		}
		out := make([]any, 0, len(kids))
		for _, kid := range kids {
			if keysOnly {
				k, err := stored(f.Target.PK, kid.Key)
				if err != nil {
					return nil, err
				}
				out = append(out, k)
				continue
			}
			m, err := Record(f.Target, kid, sub)
			if err != nil {
				return nil, err
			}
			out = append(out, m)
		}
		return out, nil

	case registry.Computed:
		deps, err := resolve.Deps(f)
		if err != nil {
			return nil, err
		}
		vals, err := Record(s, rec, deps)
		if err != nil {
			return nil, err
		}
		v, err := f.Func(f, vals)
		if err != nil {
			return nil, errs.Internal("%s: %v", f.Path(), err)
		}
		return v, nil
	}
	return nil, errs.Internal("%s: unknown field kind %s", f.Path(), f.Kind)
}

func stored(f *registry.Field, raw any) (any, error) {
	if raw == nil {
		if f.HasDefault {
			return cloneDefault(f), nil
		}
		return nil, nil
	}
	v, err := fromStore(f.Type, raw)
	if err != nil {
		return nil, errs.Internal("%s: %v", f.Path(), err)
	}
	return v, nil
}
