package project

import (
	"encoding/json"
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"viewsets/internal/errs"
	"viewsets/internal/registry"
)

// Write: payload, разложенный по колонкам хранилища
type Write struct {
	Schema *registry.Schema
	// Values: колонка -> значение в форме для хранилища
	Values map[string]any
	// Key: pk, заданный клиентом или сгенерированный (string/uuid auto); nil для int auto
	Key   any
	Links []Link
}

// Link: новый набор ключей to-many связи (поле x_ids)
type Link struct {
	Field *registry.Field
	IDs   []any
}

// Mode: вид записи
type Mode int

const (
	// Create: defaults, required и генерация pk
	Create Mode = iota
	// Replace: PUT, тело проверяется как полное: обязательные поля без default должны быть
	Replace
	// Partial: PATCH, только переданные поля
	Partial
)

// ToStorage проверяет payload и раскладывает его в колонки. Ошибки клиента
// собираются все сразу (errs.Issues). Пишутся только переданные поля,
// mode влияет на проверку полноты.
func ToStorage(s *registry.Schema, payload map[string]any, mode Mode) (*Write, error) {
	create := mode == Create
	if create && len(payload) == 0 {
		return nil, errs.Client(errs.CodeEmptyBody, "", "empty request body")
	}
	w := &Write{Schema: s, Values: map[string]any{}}
	var issues errs.Issues
	fail := func(code, field, format string, args ...any) {
		issues = append(issues, errs.Client(code, field, format, args...))
	}

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	given := map[*registry.Field]struct{}{}
	for _, name := range keys {
		val := payload[name]
		f, keysOnly, ok := s.FieldRef(name)
		if !ok {
			fail(errs.CodeUnknownField, name, "Field '%s' is unknown", name)
			continue
		}
		given[f] = struct{}{}
		if f.PK {
			if !create || f.Auto {
				fail(errs.CodeReadOnly, name, "Field '%s' is read-only", name)
				continue
			}
		} else if s.IsReadOnly(f.Name) || s.IsReadOnly(name) || f.Kind == registry.Computed {
			fail(errs.CodeReadOnly, name, "Field '%s' is read-only", name)
			continue
		}

		switch f.Kind {
		case registry.Stored:
			if val == nil {
				if f.Required {
					fail(errs.CodeRequired, name, "Field '%s' is required", name)
					continue
				}
				w.Values[f.Column] = nil
				continue
			}
			v, err := toStorage(f.Type, val)
			if err != nil {
				fail(errs.CodeTypeMismatch, name, "Field '%s' %v", name, err)
				continue
			}
			if f.PK {
				w.Key = v
			}
			w.Values[f.Column] = v

		case registry.ToOne:
			if !keysOnly {
				fail(errs.CodeReadOnly, name, "Field '%s' is read-only, write '%s%s' instead", name, name, registry.FKSuffix)
				continue
			}
			if val == nil {
				if f.Required {
					fail(errs.CodeRequired, name, "Field '%s' is required", name)
					continue
				}
				w.Values[f.Column] = nil
				continue
			}
			v, err := toStorage(f.Type, val)
			if err != nil {
				fail(errs.CodeTypeMismatch, name, "Field '%s' %v", name, err)
				continue
			}
			w.Values[f.Column] = v

		case registry.ToMany:
			if !keysOnly {
				fail(errs.CodeReadOnly, name, "Field '%s' is read-only, write '%s%s' instead", name, name, registry.M2MSuffix)
				continue
			}
			arr, ok := val.([]any)
			if !ok && val != nil {
				fail(errs.CodeTypeMismatch, name, "Field '%s' must be an array of ids", name)
				continue
			}
			ids := make([]any, 0, len(arr))
			seen := map[any]struct{}{}
			bad := false
			for i, el := range arr {
				v, err := toStorage(f.Target.PK.Type, el)
				if err != nil {
					fail(errs.CodeTypeMismatch, name, "Field '%s' element %d: %v", name, i, err)
					bad = true
					break
				}
				if _, dup := seen[v]; dup {
					continue
				}
				seen[v] = struct{}{}
				ids = append(ids, v)
			}
			if !bad {
				w.Links = append(w.Links, Link{Field: f, IDs: ids})
			}
		}
	}

	if create {
		for _, f := range s.Fields() {
			if _, ok := given[f]; ok {
				continue
			}
			switch {
			case f.PK:
				if w.Key != nil {
					continue
				}
				switch {
				case f.Type == registry.TypeString && f.Auto:
					w.Key = ulid.Make().String()
					w.Values[f.Column] = w.Key
				case f.Type == registry.TypeUUID && f.Auto:
					w.Key = uuid.NewString()
					w.Values[f.Column] = w.Key
				case f.Type != registry.TypeInt:
					fail(errs.CodeRequired, f.Name, "Field '%s' is required", f.Name)
				}
			case f.Kind == registry.Stored || f.Kind == registry.ToOne:
				if f.HasDefault {
					w.Values[f.Column] = storageDefault(f)
					continue
				}
				if f.Required {
					fail(errs.CodeRequired, f.Name, "Field '%s' is required", f.Name)
				}
			}
		}
	}

	if mode == Replace {
		for _, f := range s.Fields() {
			if _, ok := given[f]; ok || f.PK || !f.Required || f.HasDefault {
				continue
			}
			if f.Kind == registry.Stored || f.Kind == registry.ToOne {
				fail(errs.CodeRequired, f.Name, "Field '%s' is required", f.Name)
			}
		}
	}

	sort.Slice(w.Links, func(i, j int) bool { return w.Links[i].Field.Name < w.Links[j].Field.Name })
	if len(issues) > 0 {
		sortIssues(issues)
		return nil, issues
	}
	return w, nil
}

func sortIssues(is errs.Issues) {
	sort.SliceStable(is, func(i, j int) bool { return is[i].Field < is[j].Field })
}

// toStorage: строгая проверка типа значения из JSON и форма для хранилища
func toStorage(t registry.Type, v any) (any, error) {
	switch t {
	case registry.TypeString, registry.TypeText:
		return toStringStrict(v)
	case registry.TypeInt:
		return toIntStrict(v)
	case registry.TypeFloat:
		return toFloatStrict(v)
	case registry.TypeBool:
		return toBoolStrict(v)
	case registry.TypeUUID:
		s, err := toStringStrict(v)
		if err != nil {
			return nil, err
		}
		u, err := uuid.Parse(s)
		if err != nil {
			return nil, errors.New("must be uuid")
		}
		return u.String(), nil
	case registry.TypeDate:
		s, err := toStringStrict(v)
		if err != nil {
			return nil, err
		}
		if _, err := time.Parse(time.DateOnly, s); err != nil {
			return nil, errors.New("must match YYYY-MM-DD")
		}
		return s, nil
	case registry.TypeDateTime:
		s, err := toStringStrict(v)
		if err != nil {
			return nil, err
		}
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, errors.New("must be RFC3339 datetime")
		}
		return ts.UTC().Format(time.RFC3339Nano), nil
	case registry.TypeJSON:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, errors.New("must be JSON")
		}
		return string(b), nil
	}
	return v, nil
}

func toStringStrict(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return "", errors.New("must be string")
}

func toIntStrict(v any) (int64, error) {
	switch t := v.(type) {
	case float64:
		// JSON числа приходят как float64: проверяем целостность
		// и диапазон: int64(t) вне [-2^63, 2^63) не определён
		if t != math.Trunc(t) || t < math.MinInt64 || t >= math.MaxInt64 {
			return 0, errors.New("must be integer")
		}
		return int64(t), nil
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case json.Number:
		return t.Int64()
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0, errors.New("must be integer")
		}
		return n, nil
	default:
		return 0, errors.New("must be integer")
	}
}

func toFloatStrict(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int64:
		return float64(t), nil
	case int:
		return float64(t), nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, errors.New("must be float")
		}
		return f, nil
	default:
		return 0, errors.New("must be float")
	}
}

func toBoolStrict(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "y", "on":
			return true, nil
		case "false", "0", "no", "n", "off":
			return false, nil
		}
	}
	return false, errors.New("must be boolean")
}
