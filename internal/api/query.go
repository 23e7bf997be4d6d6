package api

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"viewsets/internal/errs"
	"viewsets/internal/viewset"
)

// parseListParams: fields, limit/offset, sort (с алиасами _limit/_offset/_sort);
// все остальные ключи: фильтры по равенству.
func parseListParams(q url.Values) (viewset.Params, error) {
	p := viewset.Params{Fields: strings.TrimSpace(first(q, "fields", "_fields"))}

	var err error
	if p.Limit, err = intParam(q, "limit", "_limit"); err != nil {
		return p, err
	}
	if p.Offset, err = intParam(q, "offset", "_offset"); err != nil {
		return p, err
	}

	for _, part := range strings.Split(first(q, "sort", "_sort"), ",") {
		if part = strings.TrimSpace(part); part != "" {
			p.Sort = append(p.Sort, part)
		}
	}

	for key, vals := range q {
		switch key {
		case "fields", "limit", "offset", "sort",
			"_fields", "_limit", "_offset", "_sort":
			continue
		}
		for _, v := range vals {
			if strings.TrimSpace(v) == "" {
				continue
			}
			if p.Filters == nil {
				p.Filters = map[string]string{}
			}
			p.Filters[key] = v
			break
		}
	}
	return p, nil
}

// checkCapabilities отклоняет параметры, которые viewset не поддерживает:
// фильтры без WithFilters, fields= без WithFieldSelection. Без пагинации
// limit/offset игнорируются.
func checkCapabilities(h any, p *viewset.Params) error {
	if len(p.Filters) > 0 {
		if f, ok := h.(viewset.Filterable); !ok || !f.Filterable() {
			name := sortedNames(p.Filters)[0]
			return errs.Client(errs.CodeUnknownFilter, name, "filtering is not enabled")
		}
	}
	if p.Fields != "" {
		if f, ok := h.(viewset.Fielded); !ok || !f.Fielded() {
			return errs.Client(errs.CodeBadSelection, "fields", "field selection is not enabled")
		}
	}
	if pg, ok := h.(viewset.Paginated); !ok {
		p.Limit, p.Offset = 0, 0
	} else if _, _, on := pg.Pagination(); !on {
		p.Limit, p.Offset = 0, 0
	}
	return nil
}

func sortedNames(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func first(q url.Values, keys ...string) string {
	for _, k := range keys {
		if v := q.Get(k); v != "" {
			return v
		}
	}
	return ""
}

func intParam(q url.Values, keys ...string) (int, error) {
	v := strings.TrimSpace(first(q, keys...))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errs.Client(errs.CodeTypeMismatch, keys[0], "%s must be an integer", keys[0])
	}
	return n, nil
}
