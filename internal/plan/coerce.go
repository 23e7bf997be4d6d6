package plan

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"viewsets/internal/errs"
	"viewsets/internal/registry"
)

// Coerce приводит строковое значение из запроса к типу колонки поля.
// Для to-one берётся тип pk цели.
func Coerce(f *registry.Field, raw string) (any, error) {
	v, err := coerceType(f.Type, strings.TrimSpace(raw))
	if err != nil {
		return nil, errs.Client(errs.CodeTypeMismatch, f.Name, "%s: expected %s, got %q", f.Name, f.Type, raw)
	}
	return v, nil
}

func coerceType(t registry.Type, raw string) (any, error) {
	switch t {
	case registry.TypeInt:
		return strconv.ParseInt(raw, 10, 64)
	case registry.TypeFloat:
		return strconv.ParseFloat(raw, 64)
	case registry.TypeBool:
		return strconv.ParseBool(raw)
	case registry.TypeUUID:
		u, err := uuid.Parse(raw)
		if err != nil {
			return nil, err
		}
		return u.String(), nil
	case registry.TypeDate:
		return time.Parse(time.DateOnly, raw)
	case registry.TypeDateTime:
		return time.Parse(time.RFC3339, raw)
	default:
		return raw, nil
	}
}

// lookupCond: pk, если значение приводится к типу pk; иначе альтернативный
// уникальный ключ; иначе клиентская ошибка.
func lookupCond(s *registry.Schema, raw string) (Cond, error) {
	if v, err := coerceType(s.PK.Type, raw); err == nil {
		return Cond{Source: rootAlias, Column: s.PK.Column, Value: v}, nil
	}
	alt := s.Lookup
	if alt == nil {
		return Cond{}, errs.Client(errs.CodeInvalidLookup, s.PK.Name, "lookup %q is not a valid %s", raw, s.PK.Type)
	}
	if !alt.Unique {
		return Cond{}, errs.Config(errs.CodeLookupNotUnique, alt.Path(), "non-unique secondary lookup field")
	}
	v, err := coerceType(alt.Type, raw)
	if err != nil {
		return Cond{}, errs.Client(errs.CodeInvalidLookup, alt.Name, "lookup %q is not a valid %s", raw, alt.Type)
	}
	return Cond{Source: rootAlias, Column: alt.Column, Value: v}, nil
}
