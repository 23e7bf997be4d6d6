// Package fields разбирает параметр fields=: "content,author(nickname),tags(name,slug)".
package fields

import (
	"fmt"
	"sort"
	"strings"
)

// Selection: дерево запрошенных полей: имя -> вложенный выбор (пустой = без подполей).
type Selection map[string]Selection

// Names: имена верхнего уровня в стабильном порядке
func (s Selection) Names() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Merge добавляет o в s (рекурсивно) и возвращает s.
func (s Selection) Merge(o Selection) Selection {
	for k, sub := range o {
		cur, ok := s[k]
		if !ok || cur == nil {
			if len(sub) > 0 {
				cur = Selection{}
			} else {
				s[k] = cur
				continue
			}
		}
		s[k] = cur.Merge(sub)
	}
	return s
}

func (s Selection) Clone() Selection {
	if s == nil {
		return nil
	}
	out := make(Selection, len(s))
	for k, v := range s {
		out[k] = v.Clone()
	}
	return out
}

// String печатает выбор обратно в синтаксис параметра.
func (s Selection) String() string {
	var b strings.Builder
	for i, name := range s.Names() {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(name)
		if sub := s[name]; len(sub) > 0 {
			b.WriteByte('(')
			b.WriteString(sub.String())
			b.WriteByte(')')
		}
	}
	return b.String()
}

// Of собирает плоский выбор из имён.
func Of(names ...string) Selection {
	s := make(Selection, len(names))
	for _, n := range names {
		s[n] = nil
	}
	return s
}

// SyntaxError: некорректный параметр fields
type SyntaxError struct {
	Input string
	Pos   int
	Msg   string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("fields %q: %s at offset %d", e.Input, e.Msg, e.Pos)
}

// Parse разбирает "a,b(c,d(e)),f". Пустая строка даёт пустой выбор.
func Parse(input string) (Selection, error) {
	p := &parser{in: input}
	sel, err := p.list(0)
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.in) {
		return nil, p.errorf("unexpected %q", p.in[p.pos])
	}
	return sel, nil
}

type parser struct {
	in  string
	pos int
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Input: p.in, Pos: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) skipSpace() {
	for p.pos < len(p.in) && (p.in[p.pos] == ' ' || p.in[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) list(depth int) (Selection, error) {
	sel := Selection{}
	for {
		p.skipSpace()
		if p.pos >= len(p.in) || p.in[p.pos] == ')' {
			if depth > 0 && len(sel) == 0 {
				return nil, p.errorf("empty sub-selection")
			}
			return sel, nil
		}
		if p.in[p.pos] == ',' {
			// допускаем лишние запятые: "a,,b" и хвостовую
			p.pos++
			continue
		}
		name := p.ident()
		if name == "" {
			return nil, p.errorf("expected field name, got %q", p.in[p.pos])
		}
		p.skipSpace()
		var sub Selection
		if p.pos < len(p.in) && p.in[p.pos] == '(' {
			p.pos++
			var err error
			sub, err = p.list(depth + 1)
			if err != nil {
				return nil, err
			}
			if p.pos >= len(p.in) || p.in[p.pos] != ')' {
				return nil, p.errorf("missing ')'")
			}
			p.pos++
		}
		if cur, ok := sel[name]; ok && cur != nil {
			sel[name] = cur.Merge(sub)
		} else {
			sel[name] = sub
		}
		p.skipSpace()
		if p.pos < len(p.in) && p.in[p.pos] != ',' && p.in[p.pos] != ')' {
			return nil, p.errorf("unexpected %q", p.in[p.pos])
		}
	}
}

func (p *parser) ident() string {
	start := p.pos
	for p.pos < len(p.in) {
		c := p.in[p.pos]
		if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			p.pos++
			continue
		}
		break
	}
	return p.in[start:p.pos]
}
