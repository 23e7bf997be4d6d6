package viewset

import (
	"log"
)

// Option: подключаемая возможность viewset'а (пагинация, фильтры, выбор полей, хуки)
type Option func(*Viewset)

// WithPagination включает limit/offset: def по умолчанию, max как потолок.
func WithPagination(def, max int) Option {
	return func(v *Viewset) {
		if def <= 0 {
			def = 100
		}
		if max < def {
			max = def
		}
		v.pageDefault, v.pageMax, v.paginated = def, max, true
	}
}

// WithFilters разрешает фильтры, объявленные в filter(...) схемы.
func WithFilters() Option { return func(v *Viewset) { v.filterable = true } }

// WithFieldSelection разрешает параметр fields=.
func WithFieldSelection() Option { return func(v *Viewset) { v.fielded = true } }

// WithHooks добавляет пост-коммит хуки.
func WithHooks(hooks ...Hook) Option {
	return func(v *Viewset) { v.hooks.add(hooks...) }
}

func WithLogger(l *log.Logger) Option {
	return func(v *Viewset) {
		v.logger = l
		v.hooks.logger = l
	}
}

// Paginated: dispatch проверяет, включена ли пагинация
type Paginated interface {
	Pagination() (def, max int, ok bool)
}

// Filterable: включены ли фильтры
type Filterable interface {
	Filterable() bool
}

// Fielded: включён ли fields=
type Fielded interface {
	Fielded() bool
}

func (v *Viewset) Pagination() (int, int, bool) { return v.pageDefault, v.pageMax, v.paginated }
func (v *Viewset) Filterable() bool            { return v.filterable }
func (v *Viewset) Fielded() bool               { return v.fielded }
