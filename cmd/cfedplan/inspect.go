// inspect.go implements the 'cfedplan edges' and 'cfedplan analyze' commands.
package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kolkov/cfedplanner/internal/cfed/cfg"
	"github.com/kolkov/cfedplanner/internal/cfed/printer"
	"github.com/kolkov/cfedplanner/planner"
)

func newEdgesCmd(a *app) *cobra.Command {
	return newInspectCmd(a, "edges", "Print the successor edges of every block", printer.Edges)
}

func newAnalyzeCmd(a *app) *cobra.Command {
	return newInspectCmd(a, "analyze", "Print edge and block statistics", printer.Analysis)
}

// newInspectCmd builds a read-only command that renders one report per
// function of a CFG file to stdout.
func newInspectCmd(a *app, name, short string, render func(io.Writer, *cfg.Function) error) *cobra.Command {
	var function string
	cmd := &cobra.Command{
		Use:   name + " <cfg.yaml>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fns, err := planner.LoadFunctions(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, fn := range fns {
				if function != "" && fn.Name != function {
					continue
				}
				a.logger.Debug("rendering report", zap.String("report", name), zap.String("function", fn.Name))
				fmt.Fprintf(out, "Function: %s\n", fn.Name)
				if err := render(out, fn); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&function, "function", "", "Only this function")
	return cmd
}
