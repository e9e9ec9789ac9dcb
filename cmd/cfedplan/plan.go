// plan.go implements the 'cfedplan plan' command.
package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kolkov/cfedplanner/planner"
)

// planFlags holds the command-line overrides of the configuration.
type planFlags struct {
	config     string
	technique  string
	isa        string
	selective  bool
	intra      bool
	seed       uint64
	seedPolicy string
	function   string
	out        string
}

// newPlanCmd creates the 'cfedplan plan' command.
//
// Flow:
//  1. Load the configuration file, or start from the defaults
//  2. Apply the flags that were set explicitly
//  3. Plan every function of the CFG file and write the reports
//  4. Print one line per function
//
// Example:
//
//	cfedplan plan --technique RSCFC --isa cortex-m0 --intra program.cfg.yaml
func newPlanCmd(a *app) *cobra.Command {
	var f planFlags
	cmd := &cobra.Command{
		Use:   "plan <cfg.yaml>",
		Short: "Plan control-flow error detection for every function",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := resolveConfig(cmd, f)
			if err != nil {
				return err
			}
			p, err := planner.New(conf, a.logger)
			if err != nil {
				return err
			}
			rep, err := p.RunFile(args[0])
			if rep != nil {
				printReport(cmd.OutOrStdout(), rep)
			}
			return err
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.config, "config", "c", "", "Configuration file (YAML)")
	fl.StringVarP(&f.technique, "technique", "t", "", "Detection technique (CFCSS, RACFED, SCFC, SEDSR, ECCA, RSCFC, SIED, YACCA, YACCA_Fast)")
	fl.StringVar(&f.isa, "isa", "", "Target CPU or architecture family (e.g. cortex-m3, ARMv6M)")
	fl.BoolVar(&f.selective, "selective", false, "Check signatures only in exit blocks")
	fl.BoolVar(&f.intra, "intra", false, "Add intra-block jump detection (fullCFED)")
	fl.Uint64Var(&f.seed, "seed", 0, "Seed for randomized signatures")
	fl.StringVar(&f.seedPolicy, "seed-policy", "", "Seeding policy: stream or per-function")
	fl.StringVar(&f.function, "function", "", "Plan only this function")
	fl.StringVarP(&f.out, "out", "o", "", "Output directory")
	return cmd
}

// resolveConfig merges the configuration file with the explicitly set
// flags. Flags win.
func resolveConfig(cmd *cobra.Command, f planFlags) (planner.Config, error) {
	conf := planner.DefaultConfig()
	if f.config != "" {
		var err error
		if conf, err = planner.LoadConfig(f.config); err != nil {
			return conf, err
		}
	}
	changed := cmd.Flags().Changed
	if changed("technique") {
		conf.Technique = f.technique
	}
	if changed("isa") {
		conf.ISA = f.isa
	}
	if changed("selective") {
		conf.SelectiveLevel = 0
		if f.selective {
			conf.SelectiveLevel = 1
		}
	}
	if changed("intra") {
		conf.TechniqueType = "SigMon"
		if f.intra {
			conf.TechniqueType = "fullCFED"
		}
	}
	if changed("seed") {
		conf.Seed = f.seed
	}
	if changed("seed-policy") {
		conf.SeedPolicy = f.seedPolicy
	}
	if changed("function") {
		conf.Function = f.function
	}
	if changed("out") {
		conf.OutputDir = f.out
	}
	return conf, nil
}

func printReport(w io.Writer, rep *planner.Report) {
	for _, r := range rep.Results {
		switch {
		case r.Skipped:
			fmt.Fprintf(w, "%s: skipped\n", r.Function)
		case r.Err != nil:
			fmt.Fprintf(w, "%s: failed (%s)\n", r.Function, planner.Kind(r.Err))
		default:
			fmt.Fprintf(w, "%s: %d actions -> %s\n", r.Function, len(r.Plan.Actions()), rep.Dirs[r.Function])
		}
	}
	fmt.Fprintf(w, "planned %d of %d functions\n", rep.Planned(), len(rep.Results))
}
