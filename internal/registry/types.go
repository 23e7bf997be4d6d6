package registry

import (
	"sort"
	"strings"

	"viewsets/internal/fields"
)

// Kind: вид поля схемы
type Kind int

const (
	Stored Kind = iota
	ToOne
	ToMany
	Computed
)

func (k Kind) String() string {
	switch k {
	case Stored:
		return "stored"
	case ToOne:
		return "to_one"
	case ToMany:
		return "to_many"
	case Computed:
		return "computed"
	}
	return "unknown"
}

// Type: объявленный тип хранимого поля
type Type string

const (
	TypeInt      Type = "int"
	TypeFloat    Type = "float"
	TypeString   Type = "string"
	TypeText     Type = "text"
	TypeBool     Type = "bool"
	TypeJSON     Type = "json"
	TypeDate     Type = "date"
	TypeDateTime Type = "datetime"
	TypeUUID     Type = "uuid"
)

var knownTypes = map[Type]struct{}{
	TypeInt: {}, TypeFloat: {}, TypeString: {}, TypeText: {}, TypeBool: {},
	TypeJSON: {}, TypeDate: {}, TypeDateTime: {}, TypeUUID: {},
}

// Суффиксы полей записи для связей: author_id, tags_ids
const (
	FKSuffix  = "_id"
	M2MSuffix = "_ids"
)

// ValueFunc вычисляет computed-поле по уже спроецированным значениям зависимостей.
// В хранилище не ходит.
type ValueFunc func(f *Field, deps map[string]any) (any, error)

// Link описывает to-many связь
type Link struct {
	Through      string // таблица связи; "" = обратный внешний ключ (by=)
	OwnerColumn  string // колонка со ссылкой на владельца (в through или в таблице цели)
	TargetColumn string // только для through: колонка со ссылкой на цель
	Reverse      *Field // только для by=: to-one поле цели, указывающее на владельца
}

// Field: дескриптор поля в реестре
type Field struct {
	Name    string
	Kind    Kind
	Type    Type   // Stored: тип колонки; ToOne: тип pk цели
	Column  string // Stored: колонка; ToOne: fk-колонка
	Target  *Schema
	Link    *Link
	Depends fields.Selection // Computed
	DepList []string         // Computed: зависимости верхнего уровня в порядке объявления
	Func    ValueFunc
	Options map[string]string

	PK, Auto, Unique, Required bool
	Default                    any
	HasDefault                 bool

	Schema *Schema // владелец
}

// Path: "module.Entity.field" для сообщений
func (f *Field) Path() string { return f.Schema.Name + "." + f.Name }

// IsRelation: to-one или to-many
func (f *Field) IsRelation() bool { return f.Kind == ToOne || f.Kind == ToMany }

// Order: элемент сортировки по умолчанию
type Order struct {
	Field *Field
	Desc  bool
}

// Schema: неизменяемое описание одной сущности
type Schema struct {
	Name   string // FQN: module.Entity
	Module string
	Entity string
	Table  string

	PK     *Field
	Lookup *Field // альтернативный уникальный ключ
	Order  []Order
	Unique [][]string

	fields   []*Field
	byName   map[string]*Field
	defaults []string
	readOnly map[string]struct{}
	filters  map[string]struct{}
}

// Fields: все объявленные поля в порядке объявления
func (s *Schema) Fields() []*Field { return s.fields }

// Field: объявленное поле по имени
func (s *Schema) Field(name string) *Field { return s.byName[name] }

// FieldRef понимает и псевдо-поля связей: author_id -> (author, true), tags_ids -> (tags, true).
func (s *Schema) FieldRef(name string) (f *Field, keysOnly bool, ok bool) {
	if f := s.byName[name]; f != nil {
		return f, false, true
	}
	if base, found := strings.CutSuffix(name, M2MSuffix); found {
		if f := s.byName[base]; f != nil && f.Kind == ToMany {
			return f, true, true
		}
	}
	if base, found := strings.CutSuffix(name, FKSuffix); found {
		if f := s.byName[base]; f != nil && f.Kind == ToOne {
			return f, true, true
		}
	}
	return nil, false, false
}

// DefaultFields: поля, отдаваемые без явного fields=
func (s *Schema) DefaultFields() []string { return append([]string(nil), s.defaults...) }

// ReadOnlyFields: поля, запрещённые в payload записи
func (s *Schema) ReadOnlyFields() []string { return sortedKeys(s.readOnly) }

func (s *Schema) IsReadOnly(name string) bool {
	_, ok := s.readOnly[name]
	return ok
}

// FilterNames: объявленные фильтры
func (s *Schema) FilterNames() []string { return sortedKeys(s.filters) }

func (s *Schema) IsFilter(name string) bool {
	_, ok := s.filters[name]
	return ok
}

// ReadableFields: все объявленные поля (полная проекция после записи)
func (s *Schema) ReadableFields() []string {
	out := make([]string, 0, len(s.fields))
	for _, f := range s.fields {
		out = append(out, f.Name)
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
