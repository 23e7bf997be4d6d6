package project

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"viewsets/internal/registry"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// fromStore приводит сырое значение драйвера к объявленному типу.
// Бизнес-правила не проверяются: значение пришло из хранилища.
func fromStore(t registry.Type, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case registry.TypeInt:
		switch x := v.(type) {
		case int64:
			return x, nil
		case int32:
			return int64(x), nil
		case int:
			return int64(x), nil
		case float64:
			return int64(x), nil
		case string:
			return strconv.ParseInt(x, 10, 64)
		}
	case registry.TypeFloat:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		case int64:
			return float64(x), nil
		case string:
			return strconv.ParseFloat(x, 64)
		}
	case registry.TypeBool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case int64:
			return x != 0, nil
		case string:
			return strconv.ParseBool(x)
		}
	case registry.TypeString, registry.TypeText:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		}
		return fmt.Sprint(v), nil
	case registry.TypeUUID:
		switch x := v.(type) {
		case string:
			return x, nil
		case [16]byte:
			return uuid.UUID(x).String(), nil
		case []byte:
			return string(x), nil
		}
	case registry.TypeJSON:
		var raw []byte
		switch x := v.(type) {
		case string:
			raw = []byte(x)
		case []byte:
			raw = x
		default:
			return v, nil
		}
		var out any
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
		return out, nil
	case registry.TypeDate:
		// дата отдаётся в той же форме, в какой принимается: YYYY-MM-DD
		ts, err := parseTime(v)
		if err != nil {
			return nil, err
		}
		return ts.Format(time.DateOnly), nil
	case registry.TypeDateTime:
		ts, err := parseTime(v)
		if err != nil {
			return nil, err
		}
		return ts.UTC(), nil
	default:
		return v, nil
	}
	return nil, fmt.Errorf("cannot read %T as %s", v, t)
}

func parseTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized time %q", x)
	}
	return time.Time{}, fmt.Errorf("cannot read %T as time", v)
}

// storageDefault: значение по умолчанию в форме для записи
func storageDefault(f *registry.Field) any {
	if f.Type == registry.TypeJSON {
		b, _ := json.Marshal(f.Default)
		return string(b)
	}
	return f.Default
}

// cloneDefault: копия default для выдачи (json-значения изменяемы)
func cloneDefault(f *registry.Field) any {
	switch v := f.Default.(type) {
	case map[string]any, []any:
		b, _ := json.Marshal(v)
		var out any
		_ = json.Unmarshal(b, &out)
		return out
	}
	return f.Default
}
