package registry

import (
	"strings"
	"unicode"
)

var reserved = map[string]struct{}{
	"user": {}, "select": {}, "table": {}, "insert": {}, "update": {}, "delete": {},
	"where": {}, "join": {}, "group": {}, "order": {}, "limit": {}, "offset": {},
	"primary": {}, "foreign": {}, "key": {}, "constraint": {}, "default": {},
	"from": {}, "into": {}, "values": {}, "unique": {}, "index": {}, "create": {},
	"drop": {}, "alter": {}, "schema": {}, "grant": {}, "revoke": {},
}

func isReserved(s string) bool { _, ok := reserved[strings.ToLower(s)]; return ok }

// элементарная плюрализация (достаточно для posts, tags, authors)
func plural(s string) string {
	if strings.HasSuffix(s, "s") {
		return s
	}
	return s + "s"
}

// snake: "BlogPost" -> "blog_post"
func snake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// table = plural(snake(entity)) с защитой keyword'ов
func safeTable(entity string) string {
	t := plural(snake(entity))
	if isReserved(t) {
		t = "e_" + t
	}
	return t
}

// Describe ищет схему по FQN ("module.Entity") или по уникальному имени сущности.
func (r *Registry) Describe(name string) (*Schema, bool) {
	if s, ok := r.schemas[name]; ok {
		return s, true
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false
	}
	if i := strings.IndexByte(name, '.'); i > 0 {
		for fqn, s := range r.schemas {
			if strings.EqualFold(fqn, name) {
				return s, true
			}
		}
		return nil, false
	}
	// модуля нет: ищем ИМЕНО ОДНО уникальное имя среди всех
	var found *Schema
	for _, s := range r.schemas {
		if strings.EqualFold(s.Entity, name) {
			if found != nil {
				return nil, false
			}
			found = s
		}
	}
	return found, found != nil
}

// lookupTarget: "Author" в том же модуле или "blog.Author"
func (r *Registry) lookupTarget(module, target string) (*Schema, bool) {
	if strings.Contains(target, ".") {
		s, ok := r.schemas[target]
		return s, ok
	}
	s, ok := r.schemas[module+"."+target]
	return s, ok
}
