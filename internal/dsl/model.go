package dsl

// Entity описывает структуру сущности из DSL
type Entity struct {
	Module      string
	Name        string
	Fields      []Field
	Constraints Constraints
	View        View
}

// Constraints хранит блок constraints: (составные unique)
type Constraints struct {
	Unique [][]string
}

// View описывает блок view: что отдаём клиенту по умолчанию, что запрещено писать и т.д.
type View struct {
	Defaults []string // defaults(...)
	ReadOnly []string // readonly(...)
	Filters  []string // filter(...)
	Lookup   string   // lookup(slug): альтернативный уникальный ключ
	Order    []string // order(-id, slug)
}

// Field описывает поле сущности
type Field struct {
	Name      string
	Type      string            // string, int, json, ref, many, computed и т.д.
	RefTarget string            // ref[...] / many[...]
	Deps      string            // computed[...]: сырой список зависимостей
	Options   map[string]string // pk, required, unique, default, through, by, fn и прочие опции
}

// FQN возвращает "module.Name"
func (e *Entity) FQN() string { return e.Module + "." + e.Name }
