package sqlstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"viewsets/internal/errs"
	"viewsets/internal/registry"
)

// Dialect: различия SQL между Postgres и SQLite
type Dialect interface {
	Name() string
	// Placeholder: n-й параметр, с 1
	Placeholder(n int) string
	// Table: полное имя таблицы схемы (с кавычками)
	Table(s *registry.Schema) string
	// LinkTable: полное имя таблицы связи through= для владельца s
	LinkTable(s *registry.Schema, through string) string
	ColumnType(t registry.Type) string
	// AutoPK: объявление автоинкрементного int pk
	AutoPK(col string) string
	// KeySet: условие "column входит в набор ключей" с одним параметром на весь набор,
	// чтобы prefetch оставался одним запросом при любом числе владельцев
	KeySet(column, placeholder string, t registry.Type) string
	// KeysArg упаковывает ключи владельцев (тип pk t) в этот параметр
	KeysArg(t registry.Type, keys []any) (any, error)
	// Classify превращает ошибку драйвера в код нарушения ограничения (или errs.CodeStore)
	Classify(err error) string
}

// DialectByName: "postgres" | "sqlite"
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "postgres", "pg", "pgx":
		return Postgres{}, nil
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	}
	return nil, fmt.Errorf("unknown sql dialect %q", name)
}

func sqlIdent(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` }

// Postgres: $n, таблицы в схеме модуля
type Postgres struct{}

func (Postgres) Name() string               { return "postgres" }
func (Postgres) Placeholder(n int) string   { return fmt.Sprintf("$%d", n) }
func (Postgres) AutoPK(col string) string   { return sqlIdent(col) + " bigint generated by default as identity primary key" }
func (Postgres) Table(s *registry.Schema) string {
	return sqlIdent(s.Module) + "." + sqlIdent(s.Table)
}
func (Postgres) LinkTable(s *registry.Schema, through string) string {
	return sqlIdent(s.Module) + "." + sqlIdent(through)
}

func (Postgres) ColumnType(t registry.Type) string {
	switch t {
	case registry.TypeInt:
		return "bigint"
	case registry.TypeFloat:
		return "double precision"
	case registry.TypeBool:
		return "boolean"
	case registry.TypeJSON:
		return "jsonb"
	case registry.TypeDate:
		return "date"
	case registry.TypeDateTime:
		return "timestamp with time zone"
	case registry.TypeUUID:
		return "uuid"
	}
	return "text"
}

func (Postgres) Classify(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return errs.CodeUniqueViolation
		case "23503":
			return errs.CodeFKViolation
		}
	}
	return errs.CodeStore
}

// SQLite: ?, имя таблицы с префиксом модуля (схем нет)
type SQLite struct{}

func (SQLite) Name() string             { return "sqlite" }
func (SQLite) Placeholder(int) string   { return "?" }
func (SQLite) AutoPK(col string) string { return sqlIdent(col) + " integer primary key autoincrement" }
func (SQLite) Table(s *registry.Schema) string {
	return sqlIdent(s.Module + "_" + s.Table)
}
func (SQLite) LinkTable(s *registry.Schema, through string) string {
	return sqlIdent(s.Module + "_" + through)
}

func (SQLite) ColumnType(t registry.Type) string {
	switch t {
	case registry.TypeInt, registry.TypeBool:
		return "integer"
	case registry.TypeFloat:
		return "real"
	}
	return "text"
}

func (SQLite) Classify(err error) string {
	var e *sqlite.Error
	if !errors.As(err, &e) {
		return errs.CodeStore
	}
	switch e.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return errs.CodeUniqueViolation
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return errs.CodeFKViolation
	}
	// без расширенных кодов различаем по тексту
	if e.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		msg := e.Error()
		switch {
		case strings.Contains(msg, "UNIQUE constraint"):
			return errs.CodeUniqueViolation
		case strings.Contains(msg, "FOREIGN KEY constraint"):
			return errs.CodeFKViolation
		}
	}
	return errs.CodeStore
}
