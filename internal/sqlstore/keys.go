package sqlstore

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"viewsets/internal/registry"
)

// int64Keys приводит ключи владельцев к int64 для int pk.
func int64Keys(keys []any) ([]int64, error) {
	out := make([]int64, 0, len(keys))
	for _, k := range keys {
		switch x := k.(type) {
		case int64:
			out = append(out, x)
		case int:
			out = append(out, int64(x))
		case int32:
			out = append(out, int64(x))
		case int16:
			out = append(out, int64(x))
		case uint32:
			out = append(out, int64(x))
		case string:
			n, err := strconv.ParseInt(x, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("key %q is not an integer", x)
			}
			out = append(out, n)
		default:
			return nil, fmt.Errorf("key %v (%T) is not an integer", k, k)
		}
	}
	return out, nil
}

func stringKeys(keys []any) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		switch x := k.(type) {
		case string:
			out = append(out, x)
		case []byte:
			out = append(out, string(x))
		case [16]byte:
			out = append(out, uuid.UUID(x).String())
		case fmt.Stringer:
			out = append(out, x.String())
		default:
			out = append(out, fmt.Sprint(x))
		}
	}
	return out
}

// Postgres: набор ключей уходит одним массивом, pgx кодирует []int64/[]string.
func (Postgres) KeySet(column, placeholder string, t registry.Type) string {
	arr := "text[]"
	switch t {
	case registry.TypeInt:
		arr = "bigint[]"
	case registry.TypeUUID:
		arr = "uuid[]"
	}
	return column + " = ANY(" + placeholder + "::" + arr + ")"
}

func (Postgres) KeysArg(t registry.Type, keys []any) (any, error) {
	if t == registry.TypeInt {
		return int64Keys(keys)
	}
	return stringKeys(keys), nil
}

// SQLite: набор ключей уходит одним JSON-массивом и разворачивается json_each.
func (SQLite) KeySet(column, placeholder string, _ registry.Type) string {
	return column + " IN (SELECT value FROM json_each(" + placeholder + "))"
}

func (SQLite) KeysArg(t registry.Type, keys []any) (any, error) {
	var v any = stringKeys(keys)
	if t == registry.TypeInt {
		ints, err := int64Keys(keys)
		if err != nil {
			return nil, err
		}
		v = ints
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
