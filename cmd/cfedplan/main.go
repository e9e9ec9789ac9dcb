// Package main implements the cfedplan CLI tool.
//
// The cfedplan tool plans control-flow error detection for the functions
// of a CFG file exported by the compiler. It works by:
//
//  1. Loading the CFG file and the planner configuration
//  2. Running the selected technique on every function
//  3. Writing the diagnostics and the protected listing per function
//
// Usage:
//
//	cfedplan plan program.cfg.yaml              # Plan with the default configuration
//	cfedplan plan --config cfed.yaml prog.yaml  # Plan with a configuration file
//	cfedplan edges program.cfg.yaml             # Print the edge listing
//	cfedplan analyze program.cfg.yaml           # Print edge and block statistics
//	cfedplan version                            # Show version information
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// app carries the state shared by all commands.
type app struct {
	verbose bool
	logger  *zap.Logger
	ownLog  bool // logger was built here and must be synced
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "cfedplan",
		Short: "cfedplan - control-flow error detection planner",
		Long: `cfedplan plans compile-time control-flow error detection for Cortex-M code.

It reads the CFGs of a compilation unit, runs one signature-monitoring technique
(CFCSS, RACFED, SCFC, SEDSR, ECCA, RSCFC, SIED, YACCA, YACCA_Fast) on every
function and writes, per function, the diagnostics and the planned
instrumentation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.logger != nil {
				return nil
			}
			config := zap.NewProductionConfig()
			if a.verbose {
				config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			logger, err := config.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			a.logger = logger
			a.ownLog = true
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.ownLog {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging")

	root.AddCommand(newPlanCmd(a))
	root.AddCommand(newEdgesCmd(a))
	root.AddCommand(newAnalyzeCmd(a))
	root.AddCommand(newVersionCmd())
	return root
}

func main() {
	if err := newRootCmd(&app{}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
