// Package store описывает границу движка с хранилищем.
package store

import (
	"context"
	"fmt"

	"viewsets/internal/plan"
	"viewsets/internal/registry"
)

// Row хранит строку результата: алиас колонки -> сырое значение драйвера
type Row map[string]any

// Reader: чтение по плану: основной запрос и prefetch по набору ключей.
type Reader interface {
	Select(ctx context.Context, q *plan.Query) ([]Row, error)
	Prefetch(ctx context.Context, p *plan.Prefetch, keys []any) ([]Row, error)
}

// Writer: операции внутри одной транзакции записи.
type Writer interface {
	// Insert возвращает pk новой строки (сгенерированный или переданный).
	Insert(ctx context.Context, s *registry.Schema, values map[string]any) (any, error)
	Update(ctx context.Context, s *registry.Schema, key any, values map[string]any) (int64, error)
	Delete(ctx context.Context, s *registry.Schema, key any) (int64, error)
	// ReplaceLinks заменяет набор связанных ключей to-many связи владельца.
	ReplaceLinks(ctx context.Context, f *registry.Field, owner any, ids []any) error
}

// Store: Reader плюс транзакционная запись. fn выполняется в одной транзакции;
// ошибка fn откатывает всё.
type Store interface {
	Reader
	Write(ctx context.Context, fn func(ctx context.Context, w Writer) error) error
}

// Key нормализует значение ключа для сравнения между запросами:
// целые приводятся к int64, []byte к string.
func Key(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int16:
		return int64(x)
	case uint32:
		return int64(x)
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	}
	return v
}
