package registry

import (
	"errors"

	"viewsets/internal/dsl"
	"viewsets/internal/errs"
)

// Issue: одна проблема конфигурации в плоском виде (для CLI и /api/meta)
type Issue struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Lint собирает Build и раскладывает ошибки по Issue. nil: всё чисто.
func Lint(ents map[string]*dsl.Entity, funcs Funcs) []Issue {
	_, err := Build(ents, funcs)
	if err == nil {
		return nil
	}
	var issues errs.Issues
	if !errors.As(err, &issues) {
		return []Issue{{Code: errs.CodeOf(err), Message: err.Error()}}
	}
	out := make([]Issue, 0, len(issues))
	for _, e := range issues {
		out = append(out, Issue{Field: e.Field, Code: e.Code, Message: e.Message})
	}
	return out
}
