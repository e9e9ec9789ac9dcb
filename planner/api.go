package planner

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/kolkov/cfedplanner/internal/cfed/cfg"
	"github.com/kolkov/cfedplanner/internal/cfed/config"
	"github.com/kolkov/cfedplanner/internal/cfed/engine"
	"github.com/kolkov/cfedplanner/internal/cfed/plan"
	"github.com/kolkov/cfedplanner/internal/cfed/planerr"
	"github.com/kolkov/cfedplanner/internal/cfed/printer"
)

// Types shared with the internal packages.
type (
	// Config is the planner configuration, usually loaded from YAML.
	Config = config.Config

	// Function is the CFG snapshot of one function.
	Function = cfg.Function

	// Plan is the instrumentation plan of one function.
	Plan = plan.Plan

	// Result is the outcome for one function of a batch run.
	Result = engine.Result

	// PlanError is the error type of every planning failure.
	PlanError = planerr.PlanError
)

// Error kinds. Test with errors.Is.
var (
	ErrConfiguration       = planerr.ErrConfiguration
	ErrUnsupportedMode     = planerr.ErrUnsupportedMode
	ErrConstraintViolation = planerr.ErrConstraintViolation

	// ErrSkipped is returned by Plan for functions excluded by the
	// noProtection attribute or the function filter.
	ErrSkipped = engine.ErrSkipped
)

// DefaultConfig returns the configuration the plugin uses when no
// arguments are given: RACFED on a Cortex-M3, signature monitoring only.
func DefaultConfig() Config { return config.Default() }

// LoadConfig reads and validates a YAML configuration file. Keys missing
// from the file keep their DefaultConfig values.
func LoadConfig(path string) (Config, error) { return config.Load(path) }

// LoadFunctions reads and validates a CFG file.
func LoadFunctions(path string) ([]*Function, error) {
	f, err := cfg.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return f.Functions, nil
}

// Planner plans functions with one configuration and stores the reports.
//
// Thread Safety: NOT thread-safe. The stream seed policy threads one
// random generator through consecutive functions.
type Planner struct {
	conf   Config
	engine *engine.Engine
	writer *printer.Writer
	log    *zap.Logger
}

// New validates conf and creates a Planner. A nil logger disables logging.
//
// Example:
//
//	conf := planner.DefaultConfig()
//	conf.Technique = "SIED"
//	p, err := planner.New(conf, logger)
func New(conf Config, log *zap.Logger) (*Planner, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := conf.Validate(); err != nil {
		return nil, planerr.Configuration("invalid configuration").WithCause(err)
	}
	eng, err := engine.New(conf.EngineOptions(), log)
	if err != nil {
		return nil, err
	}
	return &Planner{
		conf:   conf,
		engine: eng,
		writer: printer.NewWriter(conf.OutputDir, log),
		log:    log,
	}, nil
}

// Config returns the configuration the planner was built with.
func (p *Planner) Config() Config { return p.conf }

// Plan plans a single function without writing reports.
func (p *Planner) Plan(fn *Function) (*Plan, error) { return p.engine.Plan(fn) }

// PlanAll plans every function in order without writing reports. The
// error combines the failures of all functions.
func (p *Planner) PlanAll(fns []*Function) ([]Result, error) { return p.engine.PlanAll(fns) }

// Report is the outcome of a planning run that stores its output.
type Report struct {
	Results []Result
	Dirs    map[string]string // function name to report directory
}

// Planned returns the number of functions that received a plan.
func (r *Report) Planned() int {
	n := 0
	for _, res := range r.Results {
		if res.Plan != nil {
			n++
		}
	}
	return n
}

// Run plans fns and writes the reports of every function that was not
// skipped. A failed function still gets its diagnostics, but no protected
// listing. Planning and write failures are combined in the error; the
// report is returned either way.
func (p *Planner) Run(fns []*Function) (*Report, error) {
	results, errs := p.engine.PlanAll(fns)
	rep := &Report{Results: results, Dirs: make(map[string]string)}
	for i, res := range results {
		if res.Skipped {
			continue
		}
		dir, err := p.writer.Write(fns[i], res.Plan)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("function %s: %w", res.Function, err))
			continue
		}
		rep.Dirs[res.Function] = dir
	}
	p.log.Info("planning finished",
		zap.Int("functions", len(fns)),
		zap.Int("planned", rep.Planned()),
		zap.Int("failed", len(multierr.Errors(errs))),
		zap.String("output", p.conf.OutputDir),
	)
	return rep, errs
}

// RunFile loads a CFG file and runs the planner on every function in it.
func (p *Planner) RunFile(path string) (*Report, error) {
	fns, err := LoadFunctions(path)
	if err != nil {
		return nil, err
	}
	return p.Run(fns)
}

// Kind returns the error kind of err, or nil when err is not a planning
// failure.
func Kind(err error) error {
	for _, k := range []error{ErrConfiguration, ErrUnsupportedMode, ErrConstraintViolation} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
