package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"viewsets/internal/registry"
)

// ErrIssues: схема с ошибками; вывод уже напечатан
var ErrIssues = errors.New("schema has blocking issues")

type lintResult struct {
	Valid  bool             `json:"valid"`
	Issues []registry.Issue `json:"issues,omitempty"`
}

func NewLintCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "lint <dsl-dir>",
		Short:         "Check DSL schemas and report every configuration error",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ents, err := loadEntities(rootOpts, cmd.ErrOrStderr(), args[0])
			if err != nil {
				return err
			}
			issues := registry.Lint(ents, nil)
			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				if err := writeJSON(out, lintResult{Valid: len(issues) == 0, Issues: issues}); err != nil {
					return err
				}
			} else if len(issues) == 0 {
				fmt.Fprintf(out, "ok: %d entities\n", len(ents))
			} else {
				for _, is := range issues {
					fmt.Fprintf(out, "%s: [%s] %s\n", is.Field, is.Code, is.Message)
				}
			}
			if len(issues) > 0 {
				return ErrIssues
			}
			return nil
		},
	}
}
