// Package sqlstore реализует store.Store поверх database/sql
// для Postgres (pgx) и SQLite (modernc).
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sort"
	"strings"

	"viewsets/internal/errs"
	"viewsets/internal/plan"
	"viewsets/internal/registry"
	"viewsets/internal/store"
)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store: store.Store над *sql.DB
type Store struct {
	db     *sql.DB
	d      Dialect
	debug  bool
	logger *log.Logger
}

type Option func(*Store)

// WithDebug логирует каждый выполненный SQL
func WithDebug(on bool) Option { return func(s *Store) { s.debug = on } }

func WithLogger(l *log.Logger) Option { return func(s *Store) { s.logger = l } }

func New(db *sql.DB, d Dialect, opts ...Option) *Store {
	s := &Store{db: db, d: d, logger: log.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Dialect() Dialect { return s.d }
func (s *Store) DB() *sql.DB      { return s.db }

var _ store.Store = (*Store)(nil)

func (s *Store) logSQL(sqlText string, args []any) {
	if s.debug {
		s.logger.Printf("SQL [%s]: %s %v", s.d.Name(), sqlText, args)
	}
}

func (s *Store) Select(ctx context.Context, q *plan.Query) ([]store.Row, error) {
	sqlText, args := CompileSelect(s.d, q)
	rows, err := s.query(ctx, s.db, sqlText, args)
	if err != nil {
		return nil, errs.Store(s.d.Classify(err), "select "+q.Schema.Name, err)
	}
	return rows, nil
}

// Prefetch выполняет ровно один SQL на весь набор ключей.
func (s *Store) Prefetch(ctx context.Context, p *plan.Prefetch, keys []any) ([]store.Row, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	op := "prefetch " + p.Field.Path()
	sqlText, args, err := CompilePrefetch(s.d, p, keys)
	if err != nil {
		return nil, errs.Internal("%s: %v", op, err)
	}
	rows, err := s.query(ctx, s.db, sqlText, args)
	if err != nil {
		return nil, errs.Store(s.d.Classify(err), op, err)
	}
	return rows, nil
}

func (s *Store) query(ctx context.Context, qr queryer, sqlText string, args []any) ([]store.Row, error) {
	s.logSQL(sqlText, args)
	rows, err := qr.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []store.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(store.Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Write выполняет fn в одной транзакции.
func (s *Store) Write(ctx context.Context, fn func(ctx context.Context, w store.Writer) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Store(errs.CodeStore, "begin", err)
	}
	if err := fn(ctx, &writer{s: s, tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errs.Store(s.d.Classify(err), "commit", err)
	}
	return nil
}

type writer struct {
	s  *Store
	tx *sql.Tx
}

func (w *writer) exec(ctx context.Context, op, sqlText string, args []any) (int64, error) {
	w.s.logSQL(sqlText, args)
	res, err := w.tx.ExecContext(ctx, sqlText, args...)
	if err != nil {
		return 0, errs.Store(w.s.d.Classify(err), op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errs.Store(errs.CodeStore, op, err)
	}
	return n, nil
}

func (w *writer) Insert(ctx context.Context, sc *registry.Schema, values map[string]any) (any, error) {
	d := w.s.d
	st := &stmt{d: d}
	st.w("INSERT INTO ", d.Table(sc))
	cols := sortedCols(values)
	if len(cols) == 0 {
		st.w(" DEFAULT VALUES")
	} else {
		ph := make([]string, len(cols))
		quoted := make([]string, len(cols))
		for i, c := range cols {
			quoted[i] = sqlIdent(c)
			ph[i] = st.arg(values[c])
		}
		st.w(" (", strings.Join(quoted, ", "), ") VALUES (", strings.Join(ph, ", "), ")")
	}
	st.w(" RETURNING ", sqlIdent(sc.PK.Column))

	op := "insert " + sc.Name
	rows, err := w.s.query(ctx, w.tx, st.String(), st.args)
	if err != nil {
		return nil, errs.Store(d.Classify(err), op, err)
	}
	if len(rows) != 1 {
		return nil, errs.Store(errs.CodeStore, op, fmt.Errorf("insert returned %d rows", len(rows)))
	}
	return store.Key(rows[0][sc.PK.Column]), nil
}

func (w *writer) Update(ctx context.Context, sc *registry.Schema, key any, values map[string]any) (int64, error) {
	d := w.s.d
	cols := sortedCols(values)
	if len(cols) == 0 {
		return 0, nil
	}
	st := &stmt{d: d}
	st.w("UPDATE ", d.Table(sc), " SET ")
	for i, c := range cols {
		if i > 0 {
			st.w(", ")
		}
		st.w(sqlIdent(c), " = ", st.arg(values[c]))
	}
	st.w(" WHERE ", sqlIdent(sc.PK.Column), " = ", st.arg(key))
	return w.exec(ctx, "update "+sc.Name, st.String(), st.args)
}

func (w *writer) Delete(ctx context.Context, sc *registry.Schema, key any) (int64, error) {
	st := &stmt{d: w.s.d}
	st.w("DELETE FROM ", w.s.d.Table(sc), " WHERE ", sqlIdent(sc.PK.Column), " = ", st.arg(key))
	return w.exec(ctx, "delete "+sc.Name, st.String(), st.args)
}

// ReplaceLinks для through= пересоздаёт строки связи, для by= перевешивает fk у целей.
func (w *writer) ReplaceLinks(ctx context.Context, f *registry.Field, owner any, ids []any) error {
	d := w.s.d
	link := f.Link
	op := "link " + f.Path()

	if link.Through == "" {
		table := d.Table(f.Target)
		fk := sqlIdent(link.OwnerColumn)
		st := &stmt{d: d}
		st.w("UPDATE ", table, " SET ", fk, " = NULL WHERE ", fk, " = ", st.arg(owner))
		if _, err := w.exec(ctx, op, st.String(), st.args); err != nil {
			return err
		}
		ids = uniqueKeys(ids)
		if len(ids) == 0 {
			return nil
		}
		st = &stmt{d: d}
		st.w("UPDATE ", table, " SET ", fk, " = ", st.arg(owner), " WHERE ")
		st.keySet(sqlIdent(f.Target.PK.Column), f.Target.PK.Type, ids)
		if st.err != nil {
			return errs.Internal("%s: %v", op, st.err)
		}
		n, err := w.exec(ctx, op, st.String(), st.args)
		if err != nil {
			return err
		}
		if n != int64(len(ids)) {
			return errs.Store(errs.CodeFKViolation, op, fmt.Errorf("%d of %d related rows exist", n, len(ids)))
		}
		return nil
	}

	table := d.LinkTable(f.Schema, link.Through)
	st := &stmt{d: d}
	st.w("DELETE FROM ", table, " WHERE ", sqlIdent(link.OwnerColumn), " = ", st.arg(owner))
	if _, err := w.exec(ctx, op, st.String(), st.args); err != nil {
		return err
	}
	ids = uniqueKeys(ids)
	if len(ids) == 0 {
		return nil
	}
	st = &stmt{d: d}
	st.w("INSERT INTO ", table, " (", sqlIdent(link.OwnerColumn), ", ", sqlIdent(link.TargetColumn), ") VALUES ")
	for i, id := range ids {
		if i > 0 {
			st.w(", ")
		}
		st.w("(", st.arg(owner), ", ", st.arg(id), ")")
	}
	_, err := w.exec(ctx, op, st.String(), st.args)
	return err
}

// uniqueKeys убирает повторы, сохраняя порядок: счётчик затронутых строк
// сравнивается с числом различных ключей.
func uniqueKeys(ids []any) []any {
	seen := make(map[any]struct{}, len(ids))
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		k := store.Key(id)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, id)
	}
	return out
}

func sortedCols(values map[string]any) []string {
	out := make([]string, 0, len(values))
	for k := range values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
