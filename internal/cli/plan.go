package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"viewsets/internal/resolve"
	"viewsets/internal/sqlstore"
	"viewsets/internal/viewset"
)

type planResult struct {
	Schema string        `json:"schema"`
	Paths  resolve.Paths `json:"paths"`
	SQL    []string      `json:"sql"`
}

func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		dialect, fieldsArg, sortArg string
		filters                     []string
		limit, offset               int
	)
	cmd := &cobra.Command{
		Use:   "plan <dsl-dir> <schema>",
		Short: "Show the queries a list request would issue",
		Long: `Resolves a field selection against a schema and prints the primary
query plus one prefetch query per to-many relation, without touching a database.`,
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := sqlstore.DialectByName(dialect)
			if err != nil {
				return err
			}
			reg, err := loadRegistry(rootOpts, cmd.ErrOrStderr(), args[0])
			if err != nil {
				return err
			}
			vs, err := viewset.New(reg, args[1], nil,
				viewset.WithPagination(100, 1000), viewset.WithFilters(), viewset.WithFieldSelection())
			if err != nil {
				return err
			}

			p := viewset.Params{Fields: fieldsArg, Limit: limit, Offset: offset}
			for _, s := range strings.Split(sortArg, ",") {
				if s = strings.TrimSpace(s); s != "" {
					p.Sort = append(p.Sort, s)
				}
			}
			for _, kv := range filters {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("bad filter %q, want name=value", kv)
				}
				if p.Filters == nil {
					p.Filters = map[string]string{}
				}
				p.Filters[strings.TrimSpace(k)] = v
			}

			q, err := vs.Explain(p)
			if err != nil {
				return err
			}
			explain := strings.TrimRight(sqlstore.Explain(d, q), "\n")
			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				return writeJSON(out, planResult{
					Schema: q.Schema.Name,
					Paths:  q.Resolved.Paths(),
					SQL:    strings.Split(explain, "\n"),
				})
			}
			fmt.Fprintln(out, explain)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dialect, "dialect", "d", "sqlite", "SQL dialect (sqlite|postgres)")
	cmd.Flags().StringVarP(&fieldsArg, "fields", "f", "", "field selection, e.g. content,author(nickname)")
	cmd.Flags().StringVar(&sortArg, "sort", "", "sort, e.g. -title,slug")
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "equality filter name=value (repeatable)")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")
	return cmd
}
