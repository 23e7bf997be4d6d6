// Package cli содержит команды viewsetctl: проверка DSL, DDL и план запросов без сервера.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"viewsets/internal/dsl"
	"viewsets/internal/registry"
)

// RootOptions: глобальные флаги всех команд
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
}

var ValidFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "viewsetctl",
		Short: "viewsetctl - viewset schema tooling",
		Long:  "Checks viewset DSL schemas, prints their DDL and the query plans behind field selections.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewLintCommand(opts))
	cmd.AddCommand(NewDDLCommand(opts))
	cmd.AddCommand(NewPlanCommand(opts))
	return cmd
}

func loadEntities(opts *RootOptions, w io.Writer, dir string) (map[string]*dsl.Entity, error) {
	ents, err := dsl.LoadAllEntities(dir)
	if err != nil {
		return nil, fmt.Errorf("load DSL: %w", err)
	}
	if opts.Verbose {
		fmt.Fprintf(w, "loaded %d entities from %s\n", len(ents), dir)
	}
	return ents, nil
}

func loadRegistry(opts *RootOptions, w io.Writer, dir string) (*registry.Registry, error) {
	ents, err := loadEntities(opts, w, dir)
	if err != nil {
		return nil, err
	}
	return registry.Build(ents, nil)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
