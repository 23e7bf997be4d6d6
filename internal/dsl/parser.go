package dsl

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	entityRe           = regexp.MustCompile(`^entity\s+(\w+):`)
	fieldRe            = regexp.MustCompile(`^\s*([\w_]+):\s*([^\s#]+)(.*)$`)
	refRe              = regexp.MustCompile(`^ref\[([A-Za-z0-9_.]+)\]$`)
	manyRe             = regexp.MustCompile(`^many\[([A-Za-z0-9_.]+)\]$`)
	computedRe         = regexp.MustCompile(`^computed\[(.*)\]$`)
	moduleRe           = regexp.MustCompile(`^\s*module\s+([A-Za-z0-9_.-]+)\s*$`)
	reConstraintsStart = regexp.MustCompile(`^\s*constraints\s*:\s*$`)
	reViewStart        = regexp.MustCompile(`^\s*view\s*:\s*$`)
	reUniqueLine       = regexp.MustCompile(`^\s*unique\s*\(\s*([^)]+)\s*\)\s*$`)
	reViewLine         = regexp.MustCompile(`^\s*(defaults|readonly|filter|lookup|order)\s*\(\s*([^)]*)\)\s*$`)
)

// tokenizer делит "k=v k2='v 2' tmpl=/{slug}/" на токены, не рвёт по пробелам внутри кавычек/скобок
func splitOptionTokens(s string) []string {
	var out []string
	var buf []rune
	inSingle, inDouble := false, false
	bracketDepth := 0

	flush := func() {
		if len(buf) > 0 {
			out = append(out, string(buf))
			buf = buf[:0]
		}
	}

	for _, r := range s {
		switch r {
		case '\'':
			if !inDouble && bracketDepth == 0 {
				inSingle = !inSingle
			}
			buf = append(buf, r)
		case '"':
			if !inSingle && bracketDepth == 0 {
				inDouble = !inDouble
			}
			buf = append(buf, r)
		case '[':
			if !inSingle && !inDouble {
				bracketDepth++
			}
			buf = append(buf, r)
		case ']':
			if !inSingle && !inDouble && bracketDepth > 0 {
				bracketDepth--
			}
			buf = append(buf, r)
		default:
			if (r == ' ' || r == '\t') && !inSingle && !inDouble && bracketDepth == 0 {
				flush()
				continue
			}
			buf = append(buf, r)
		}
	}
	flush()
	return out
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseString удобен для тестов и встраивания схем в код
func ParseString(src string) ([]*Entity, error) {
	return Parse(strings.NewReader(src))
}

// LoadEntities читает один .dsl файл и возвращает список Entity
func LoadEntities(path string) ([]*Entity, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Parse(file)
}

// Parse разбирает DSL построчно
func Parse(r io.Reader) ([]*Entity, error) {
	var entities []*Entity
	var current *Entity
	currentModule := ""
	block := "" // "", "constraints", "view"
	lineNo := 0

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// module ...
		if m := moduleRe.FindStringSubmatch(line); m != nil {
			currentModule = m[1]
			block = ""
			continue
		}

		// entity <Name>:
		if m := entityRe.FindStringSubmatch(line); m != nil {
			if current != nil {
				entities = append(entities, current)
			}
			current = &Entity{Name: m[1], Module: currentModule}
			block = ""
			continue
		}
		if current == nil {
			// игнорируем всё вне сущности
			continue
		}

		if reConstraintsStart.MatchString(line) {
			block = "constraints"
			continue
		}
		if reViewStart.MatchString(line) {
			block = "view"
			continue
		}

		switch block {
		case "constraints":
			if m := reUniqueLine.FindStringSubmatch(line); m != nil {
				if set := splitList(m[1]); len(set) > 0 {
					current.Constraints.Unique = append(current.Constraints.Unique, set)
				}
				continue
			}
			block = ""
		case "view":
			if m := reViewLine.FindStringSubmatch(line); m != nil {
				vals := splitList(m[2])
				switch m[1] {
				case "defaults":
					current.View.Defaults = append(current.View.Defaults, vals...)
				case "readonly":
					current.View.ReadOnly = append(current.View.ReadOnly, vals...)
				case "filter":
					current.View.Filters = append(current.View.Filters, vals...)
				case "order":
					current.View.Order = append(current.View.Order, vals...)
				case "lookup":
					if len(vals) != 1 {
						return nil, fmt.Errorf("line %d: lookup(...) takes exactly one field", lineNo)
					}
					current.View.Lookup = vals[0]
				}
				continue
			}
			block = ""
		}

		// Поля
		m := fieldRe.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("line %d: cannot parse %q", lineNo, line)
		}
		name := m[1]
		rawType := m[2]
		tail := m[3]

		// склейка оборванных типов со скобками: computed[a, b(c)]
		if strings.HasPrefix(rawType, "computed[") && !strings.HasSuffix(rawType, "]") {
			if idx := strings.Index(tail, "]"); idx >= 0 {
				rawType = rawType + tail[:idx+1]
				tail = tail[idx+1:]
			}
		}

		optsRaw := strings.TrimSpace(tail)
		// срезать комментарий
		if i := strings.IndexByte(optsRaw, '#'); i >= 0 {
			optsRaw = strings.TrimSpace(optsRaw[:i])
		}
		if strings.HasPrefix(strings.ToLower(optsRaw), "options:") {
			optsRaw = strings.TrimSpace(optsRaw[len("options:"):])
		}

		f := Field{
			Name:    name,
			Type:    strings.ToLower(rawType),
			Options: map[string]string{},
		}

		if mm := refRe.FindStringSubmatch(rawType); mm != nil {
			f.Type = "ref"
			f.RefTarget = strings.TrimSpace(mm[1])
		} else if mm := manyRe.FindStringSubmatch(rawType); mm != nil {
			f.Type = "many"
			f.RefTarget = strings.TrimSpace(mm[1])
		} else if mm := computedRe.FindStringSubmatch(rawType); mm != nil {
			f.Type = "computed"
			f.Deps = strings.ReplaceAll(strings.TrimSpace(mm[1]), " ", "")
		}

		for _, tok := range splitOptionTokens(optsRaw) {
			tok = strings.TrimSpace(strings.Trim(tok, ","))
			if tok == "" {
				continue
			}
			// флаг без значения → "true"
			if !strings.Contains(tok, "=") {
				f.Options[strings.ToLower(tok)] = "true"
				continue
			}
			kv := strings.SplitN(tok, "=", 2)
			k := strings.ToLower(strings.TrimSpace(kv[0]))
			v := strings.TrimSpace(kv[1])
			// снять кавычки, если есть
			if len(v) >= 2 {
				if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
					v = v[1 : len(v)-1]
				}
			}
			if k != "" {
				f.Options[k] = v
			}
		}

		current.Fields = append(current.Fields, f)
	}

	if current != nil {
		entities = append(entities, current)
	}
	return entities, scanner.Err()
}

// LoadAllEntities обходит каталог и собирает все *.dsl; ключ = FQN
func LoadAllEntities(root string) (map[string]*Entity, error) {
	result := make(map[string]*Entity)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), ".dsl") {
			return nil
		}

		ents, err := LoadEntities(path)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if err := collect(result, ents); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Index раскладывает сущности по FQN, проверяя модуль и дубликаты
func Index(ents []*Entity) (map[string]*Entity, error) {
	result := make(map[string]*Entity, len(ents))
	if err := collect(result, ents); err != nil {
		return nil, err
	}
	return result, nil
}

func collect(result map[string]*Entity, ents []*Entity) error {
	for _, e := range ents {
		if e == nil || e.Name == "" {
			return fmt.Errorf("empty entity name")
		}
		if e.Module == "" {
			return fmt.Errorf("entity %q has no module, add `module <name>` at the top", e.Name)
		}
		if _, exists := result[e.FQN()]; exists {
			return fmt.Errorf("duplicate entity %q in module %q", e.Name, e.Module)
		}
		result[e.FQN()] = e
	}
	return nil
}
