// Package fetch исполняет план: основной запрос, затем prefetch'и по уровням.
package fetch

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"viewsets/internal/plan"
	"viewsets/internal/store"
)

const tracerName = "viewsets/fetch"

// Result: сырые строки основного запроса и prefetch'ей (по пути prefetch'а)
type Result struct {
	Rows       []store.Row
	Prefetched map[string][]store.Row
}

// Run выполняет основной запрос и все prefetch'и. Prefetch'и одного уровня
// независимы и идут параллельно; первая ошибка или отмена ctx отменяет
// остальные, частичный результат не возвращается.
func Run(ctx context.Context, r store.Reader, q *plan.Query) (*Result, error) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "fetch "+q.Schema.Name, trace.WithAttributes(
		attribute.String("viewsets.schema", q.Schema.Name),
		attribute.Int("viewsets.prefetches", len(q.Prefetches)),
	))
	defer span.End()

	res, err := run(ctx, tracer, r, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("viewsets.rows", len(res.Rows)))
	return res, nil
}

func run(ctx context.Context, tracer trace.Tracer, r store.Reader, q *plan.Query) (*Result, error) {
	rows, err := r.Select(ctx, q)
	if err != nil {
		return nil, err
	}
	res := &Result{Rows: rows, Prefetched: make(map[string][]store.Row, len(q.Prefetches))}
	levelRows := map[string][]store.Row{"": rows}

	for _, level := range Levels(q) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out := make([][]store.Row, len(level))
		g, gctx := errgroup.WithContext(ctx)
		for i, p := range level {
			keys := Keys(levelRows[p.Rows], p.KeyAlias)
			if len(keys) == 0 {
				// владельцев нет: запрос не нужен
				continue
			}
			g.Go(func() error {
				pctx, span := tracer.Start(gctx, "prefetch "+p.Path, trace.WithAttributes(
					attribute.String("viewsets.relation", p.Field.Path()),
					attribute.Int("viewsets.keys", len(keys)),
				))
				defer span.End()
				rows, err := r.Prefetch(pctx, p, keys)
				if err != nil {
					span.RecordError(err)
					span.SetStatus(codes.Error, err.Error())
					return err
				}
				out[i] = rows
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		for i, p := range level {
			res.Prefetched[p.Path] = out[i]
			levelRows[p.Path] = out[i]
		}
	}
	return res, nil
}

// Levels группирует prefetch'и плана по уровню вложенности
func Levels(q *plan.Query) [][]*plan.Prefetch {
	var out [][]*plan.Prefetch
	for _, p := range q.Prefetches {
		for len(out) <= p.Level {
			out = append(out, nil)
		}
		out[p.Level] = append(out[p.Level], p)
	}
	return out
}

// Keys: уникальные непустые ключи колонки alias в порядке появления
func Keys(rows []store.Row, alias string) []any {
	seen := make(map[any]struct{}, len(rows))
	var out []any
	for _, row := range rows {
		v := row[alias]
		if v == nil {
			continue
		}
		k := store.Key(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
