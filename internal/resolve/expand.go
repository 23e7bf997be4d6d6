// Package resolve раскрывает запрошенные поля в эффективный выбор и
// в набор колонок, to-one join'ов и to-many prefetch'ей.
package resolve

import (
	"sync"

	"viewsets/internal/errs"
	"viewsets/internal/fields"
	"viewsets/internal/registry"
)

// Expand строит эффективный выбор: defaults ∪ requested на каждом уровне.
// To-one без подполей остаётся свёрнутым (значение fk), to-many без подполей
// раскрывается в defaults цели. Неизвестный путь: клиентская ошибка.
func Expand(s *registry.Schema, requested fields.Selection) (fields.Selection, error) {
	sel := fields.Of(s.DefaultFields()...).Merge(requested.Clone())
	return expandLevel(s, sel, "")
}

func expandLevel(s *registry.Schema, sel fields.Selection, prefix string) (fields.Selection, error) {
	out := make(fields.Selection, len(sel))
	for _, name := range sel.Names() {
		path := prefix + name
		f, keysOnly, ok := s.FieldRef(name)
		if !ok {
			return nil, errs.Client(errs.CodeUnknownField, path, "unknown field %q", path)
		}
		sub, err := expandChild(f, keysOnly, sel[name], path)
		if err != nil {
			return nil, err
		}
		out[name] = sub
	}
	return out, nil
}

func expandChild(f *registry.Field, keysOnly bool, sub fields.Selection, path string) (fields.Selection, error) {
	if len(sub) > 0 && (keysOnly || !f.IsRelation()) {
		return nil, errs.Client(errs.CodeBadSelection, path, "field %q has no sub-fields", path)
	}
	switch {
	case keysOnly:
		return nil, nil
	case f.Kind == registry.ToMany, f.Kind == registry.ToOne && len(sub) > 0:
		return expandLevel(f.Target, fields.Of(f.Target.DefaultFields()...).Merge(sub.Clone()), path+".")
	}
	return nil, nil
}

var depCache sync.Map // *registry.Field -> fields.Selection

// Deps: эффективный выбор зависимостей computed-поля. Верхний уровень берётся
// как объявлен (без defaults), вложенные уровни раскрываются как в Expand.
// Реестр неизменяем, поэтому результат кэшируется.
func Deps(f *registry.Field) (fields.Selection, error) {
	if v, ok := depCache.Load(f); ok {
		return v.(fields.Selection), nil
	}
	sel, err := expandLevel(f.Schema, f.Depends, f.Name+":")
	if err != nil {
		return nil, err
	}
	depCache.Store(f, sel)
	return sel, nil
}
