package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"viewsets/internal/sqlstore"
)

func NewDDLCommand(rootOpts *RootOptions) *cobra.Command {
	var dialect string
	cmd := &cobra.Command{
		Use:          "ddl <dsl-dir>",
		Short:        "Print create-if-not-exists DDL for the schemas",
		Args:         cobra.ExactArgs(1),
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
			ddl, err := sqlstore.GenerateDDL(reg, d)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				return writeJSON(out, ddl)
			}
			phases := make([]string, 0, len(ddl))
			for k := range ddl {
				phases = append(phases, k)
			}
			sort.Strings(phases)
			for _, p := range phases {
				fmt.Fprintf(out, "-- %s\n%s\n", p, ddl[p])
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&dialect, "dialect", "d", "sqlite", "SQL dialect (sqlite|postgres)")
	return cmd
}
