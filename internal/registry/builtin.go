package registry

import (
	"fmt"
	"strings"
)

// Builtins: встроенные функции computed-полей:
//
//	template  fn=template tmpl='/posts/{slug}/'
//	concat    fn=concat sep=' '
//	count     длина первой to-many зависимости
//	coalesce  первое непустое значение
func Builtins() Funcs {
	return Funcs{
		"template": tmplFunc,
		"concat":   concatFunc,
		"count":    countFunc,
		"coalesce": coalesceFunc,
	}
}

func tmplFunc(f *Field, deps map[string]any) (any, error) {
	tmpl, ok := f.Options["tmpl"]
	if !ok {
		return nil, fmt.Errorf("%s: template needs tmpl=", f.Path())
	}
	var b strings.Builder
	for {
		i := strings.IndexByte(tmpl, '{')
		if i < 0 {
			break
		}
		j := strings.IndexByte(tmpl[i:], '}')
		if j < 0 {
			break
		}
		b.WriteString(tmpl[:i])
		b.WriteString(text(deps[strings.TrimSpace(tmpl[i+1:i+j])]))
		tmpl = tmpl[i+j+1:]
	}
	b.WriteString(tmpl)
	return b.String(), nil
}

func concatFunc(f *Field, deps map[string]any) (any, error) {
	sep, ok := f.Options["sep"]
	if !ok {
		sep = " "
	}
	parts := make([]string, 0, len(f.DepList))
	for _, name := range f.DepList {
		if v := deps[name]; v != nil {
			parts = append(parts, text(v))
		}
	}
	return strings.Join(parts, sep), nil
}

func countFunc(f *Field, deps map[string]any) (any, error) {
	if len(f.DepList) == 0 {
		return int64(0), nil
	}
	switch v := deps[f.DepList[0]].(type) {
	case nil:
		return int64(0), nil
	case []any:
		return int64(len(v)), nil
	default:
		return nil, fmt.Errorf("%s: count over %T", f.Path(), v)
	}
}

func coalesceFunc(f *Field, deps map[string]any) (any, error) {
	for _, name := range f.DepList {
		switch v := deps[name].(type) {
		case nil:
		case string:
			if v != "" {
				return v, nil
			}
		default:
			return v, nil
		}
	}
	return nil, nil
}

func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
