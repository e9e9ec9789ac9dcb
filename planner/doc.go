// Package planner plans compile-time control-flow error detection for
// functions of a Cortex-M program.
//
// A control-flow error is a jump to a place the program's control-flow
// graph does not allow, typically caused by a bit flip in the program
// counter or a branch target. Signature-monitoring techniques detect such
// errors by keeping a run-time signature in a reserved register, updating
// it at block boundaries and comparing it with the value each block
// expects. The planner decides which instructions to insert where; an
// emission backend applies the plan.
//
// # Quick Start
//
// Plan every function of a CFG file and write the reports:
//
//	$ cfedplan plan --technique SIED --isa cortex-m3 program.cfg.yaml
//
// From Go:
//
//	conf := planner.DefaultConfig()
//	conf.Technique = "SIED"
//	p, err := planner.New(conf, logger)
//	if err != nil {
//		return err
//	}
//	report, err := p.RunFile("program.cfg.yaml")
//
// # Techniques
//
// Nine techniques are available: CFCSS, RACFED, SCFC, SEDSR, ECCA, RSCFC,
// SIED, YACCA and YACCA_Fast. RACFED, RSCFC and SIED also have an
// intra-block form (technique type fullCFED), which detects jumps into the
// middle of a block, and a selective form (selective level 1), which only
// checks the signature in exit blocks.
//
// ECCA and YACCA need a hardware divider and CFCSS, SCFC, SIED and
// YACCA_Fast need conditional execution, so on ARMv6-M only RACFED, SEDSR
// and RSCFC can be planned.
//
// # Errors
//
// Every planning failure is a [PlanError] of one of three kinds:
//   - [ErrConfiguration]: unknown technique or ISA, a capability the
//     target lacks, a malformed CFG
//   - [ErrUnsupportedMode]: intra-block or selective form requested for a
//     technique without one
//   - [ErrConstraintViolation]: the function does not fit the technique,
//     for example more than 32 blocks for a bitmask scheme
//
// A failed function gets no plan at all.
//
// # Output
//
// [Planner.Run] writes, per function, the directory <output_dir>/<name>
// holding RTL.txt (input instructions), Edges.txt, Analysis.txt and
// RTL_Protected.txt (the plan). An existing directory is renamed first.
package planner
