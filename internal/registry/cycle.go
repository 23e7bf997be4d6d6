package registry

import (
	"strings"

	"viewsets/internal/errs"
	"viewsets/internal/fields"
)

// Узлы графа раскрытия: computed-поле (его зависимости) и defaults схемы
// (раскрываются под to-many и под to-one с явными подполями).
type node struct {
	field  *Field
	schema *Schema
}

func (n node) String() string {
	if n.field != nil {
		return n.field.Path()
	}
	return n.schema.Name + ".defaults"
}

const (
	white = iota
	gray
	black
)

type cycleWalker struct {
	color map[node]int
	stack []node
	found []string
}

// cycles ищет циклы в раскрытии computed-зависимостей и defaults связей.
// Любой такой цикл сделал бы разрешение полей бесконечным.
func (b *builder) cycles() {
	w := &cycleWalker{color: make(map[node]int)}
	for _, s := range b.reg.Schemas() {
		w.visit(node{schema: s})
		for _, f := range s.fields {
			if f.Kind == Computed {
				w.visit(node{field: f})
			}
		}
	}
	for _, c := range w.found {
		b.fail(errs.CodeDependencyCycle, c, "dependency cycle: %s", c)
	}
}

func (w *cycleWalker) visit(n node) {
	switch w.color[n] {
	case black:
		return
	case gray:
		i := len(w.stack) - 1
		for i > 0 && w.stack[i] != n {
			i--
		}
		parts := make([]string, 0, len(w.stack)-i+1)
		for _, m := range w.stack[i:] {
			parts = append(parts, m.String())
		}
		parts = append(parts, n.String())
		w.found = append(w.found, strings.Join(parts, " -> "))
		return
	}
	w.color[n] = gray
	w.stack = append(w.stack, n)
	if n.field != nil {
		w.selection(n.field.Schema, n.field.Depends)
	} else {
		for _, name := range n.schema.defaults {
			w.edge(n.schema, name, nil)
		}
	}
	w.stack = w.stack[:len(w.stack)-1]
	w.color[n] = black
}

func (w *cycleWalker) selection(s *Schema, sel fields.Selection) {
	for _, name := range sel.Names() {
		w.edge(s, name, sel[name])
	}
}

func (w *cycleWalker) edge(s *Schema, name string, sub fields.Selection) {
	f, keysOnly, ok := s.FieldRef(name)
	if !ok || keysOnly {
		return
	}
	switch f.Kind {
	case Computed:
		w.visit(node{field: f})
	case ToOne:
		if len(sub) > 0 {
			w.visit(node{schema: f.Target})
			w.selection(f.Target, sub)
		}
	case ToMany:
		w.visit(node{schema: f.Target})
		w.selection(f.Target, sub)
	}
}
