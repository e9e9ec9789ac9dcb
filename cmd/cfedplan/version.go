package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kolkov/cfedplanner/planner"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := planner.GetInfo()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "cfedplan version %s\n", info.Version)
			fmt.Fprintf(out, "CFG format %s, config format %s\n", info.CFGFormat, info.ConfigFormat)
			fmt.Fprintf(out, "techniques: %s\n", strings.Join(info.Techniques, ", "))
			return nil
		},
	}
}
