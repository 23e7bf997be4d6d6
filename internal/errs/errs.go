// Package errs описывает типизированные ошибки движка.
package errs

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindConfig   Kind = "config"
	KindClient   Kind = "client"
	KindNotFound Kind = "not_found"
	KindStore    Kind = "store"
	KindHook     Kind = "hook"
	KindInternal Kind = "internal"
)

// Коды ошибок для клиента и стора
const (
	CodeUnknownField    = "unknown_field"
	CodeUnknownFilter   = "unknown_filter"
	CodeBadSelection    = "bad_selection"
	CodeTypeMismatch    = "type_mismatch"
	CodeReadOnly        = "readonly_field"
	CodeRequired        = "required"
	CodeEmptyBody       = "empty_body"
	CodeInvalidLookup   = "invalid_lookup"
	CodeNotFound        = "not_found"
	CodeUniqueViolation = "unique_violation"
	CodeFKViolation     = "fk_violation"
	CodeStore           = "store"
)

// Коды ошибок конфигурации (registry)
const (
	CodeDuplicateField  = "duplicate_field"
	CodeBadType         = "bad_type"
	CodeBadDefault      = "bad_default"
	CodeUnknownTarget   = "unknown_target"
	CodeBadLink         = "bad_link"
	CodeUnknownDep      = "unknown_dependency"
	CodeDependencyCycle = "dependency_cycle"
	CodeUnknownFunc     = "unknown_func"
	CodeReservedSuffix  = "reserved_suffix"
	CodeLookupNotUnique = "lookup_not_unique"
	CodeUnknownViewName = "unknown_view_field"
)

type Error struct {
	Kind    Kind
	Code    string
	Field   string // поле/путь, к которому относится ошибка
	Op      string // подоперация стора: "insert blog.posts", "link blog.Post.tags"
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

func Config(code, field, format string, args ...any) *Error {
	return &Error{Kind: KindConfig, Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}

func Client(code, field, format string, args ...any) *Error {
	return &Error{Kind: KindClient, Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Store оборачивает ошибку хранилища; code = CodeStore или код нарушения ограничения.
func Store(code, op string, err error) *Error {
	msg := "database error"
	switch code {
	case CodeUniqueViolation:
		msg = "unique constraint violated"
	case CodeFKViolation:
		msg = "foreign key constraint violated"
	}
	return &Error{Kind: KindStore, Code: code, Op: op, Message: msg, Err: err}
}

func Hook(name string, err error) *Error {
	return &Error{Kind: KindHook, Op: name, Message: "hook failed", Err: err}
}

func Internal(format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...)}
}

// KindOf возвращает вид ошибки; для нетипизированных KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }
func IsClient(err error) bool   { return KindOf(err) == KindClient }
func IsConfig(err error) bool   { return KindOf(err) == KindConfig }
func IsStore(err error) bool    { return KindOf(err) == KindStore }

// Issues: ошибки конфигурации или payload, собранные за один проход.
type Issues []*Error

func (is Issues) Error() string {
	if len(is) == 1 {
		return is[0].Error()
	}
	return fmt.Sprintf("%s (and %d more)", is[0].Error(), len(is)-1)
}

// Unwrap позволяет errors.As достать первую ошибку.
func (is Issues) Unwrap() []error {
	out := make([]error, 0, len(is))
	for _, e := range is {
		out = append(out, e)
	}
	return out
}
