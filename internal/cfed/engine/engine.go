// Package engine drives instrumentation planning for one function at a
// time.
//
// The pipeline is strictly sequential:
//
//	validate -> factory -> normalize branches -> count original instructions
//	-> compute variables -> anchor error -> full or selective dispatch
//	-> setup -> save/restore -> plan
//
// A failure at any step returns a nil plan and a *planerr.PlanError
// annotated with the function and technique; no partial plan escapes.
//
// Thread Safety: an Engine is NOT thread-safe. Under the stream seed
// policy the random state carries from one function to the next, so the
// order of Plan calls is part of the output.
package engine

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/kolkov/cfedplanner/internal/cfed/cfg"
	"github.com/kolkov/cfedplanner/internal/cfed/isa"
	"github.com/kolkov/cfedplanner/internal/cfed/plan"
	"github.com/kolkov/cfedplanner/internal/cfed/planerr"
	"github.com/kolkov/cfedplanner/internal/cfed/technique"
)

// SeedPolicy selects how RACFED's random source is seeded.
type SeedPolicy string

// Seed policies.
const (
	// SeedStream continues one generator across every function.
	SeedStream SeedPolicy = "stream"
	// SeedPerFunction reseeds from Seed and the function name, so a
	// function's plan does not depend on which functions came before it.
	SeedPerFunction SeedPolicy = "per-function"
)

// ErrSkipped is returned for functions the engine leaves alone: marked
// no-protection or filtered out by Options.Function.
var ErrSkipped = errors.New("function skipped")

// Options configure an Engine.
type Options struct {
	Technique  string
	ISA        string // family or CPU name
	Selective  bool
	IntraBlock bool
	Function   string // plan only this function when non-empty
	Seed       uint64
	SeedPolicy SeedPolicy
}

// Engine plans functions with one technique/ISA configuration.
type Engine struct {
	opts   Options
	target isa.Target
	log    *zap.Logger
	rnd    *rand.Rand
}

// New creates an engine. A nil logger disables logging.
func New(opts Options, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch opts.SeedPolicy {
	case "":
		opts.SeedPolicy = SeedStream
	case SeedStream, SeedPerFunction:
	default:
		return nil, planerr.Configuration("unknown seed policy %q", opts.SeedPolicy).
			WithSuggestion("Use stream or per-function")
	}
	e := &Engine{
		opts:   opts,
		target: isa.Target{Family: isa.Parse(opts.ISA)},
		log:    log,
	}
	e.rnd = rand.New(rand.NewPCG(opts.Seed, opts.Seed))
	return e, nil
}

// Options returns the engine's configuration.
func (e *Engine) Options() Options { return e.opts }

func (e *Engine) source(fn string) *rand.Rand {
	if e.opts.SeedPolicy != SeedPerFunction {
		return e.rnd
	}
	h := fnv.New64a()
	h.Write([]byte(fn))
	return rand.New(rand.NewPCG(e.opts.Seed, h.Sum64()))
}

// Plan runs the pipeline on fn. Skipped functions return ErrSkipped.
func (e *Engine) Plan(fn *cfg.Function) (*plan.Plan, error) {
	log := e.log.With(zap.String("function", fn.Name), zap.String("technique", e.opts.Technique))

	if fn.NoProtection || (e.opts.Function != "" && e.opts.Function != fn.Name) {
		log.Debug("skipping function", zap.Bool("no_protection", fn.NoProtection))
		return nil, ErrSkipped
	}

	p, err := e.plan(fn, log)
	if err != nil {
		err = planerr.Annotate(err, fn.Name, e.opts.Technique)
		log.Warn("planning failed", zap.Error(err))
		return nil, err
	}
	log.Info("function planned",
		zap.Int("blocks", len(p.Blocks)),
		zap.Int("actions", len(p.Actions())),
		zap.Int("setup", p.Count(plan.HookSetup)),
		zap.Int("begin", p.Count(plan.HookBegin)),
		zap.Int("middle", p.Count(plan.HookMiddle)),
		zap.Int("end", p.Count(plan.HookEnd)),
		zap.Int("intra", p.Count(plan.HookIntra)),
		zap.Int("splits", len(p.Splits)),
	)
	return p, nil
}

func (e *Engine) plan(fn *cfg.Function, log *zap.Logger) (*plan.Plan, error) {
	if err := fn.Validate(); err != nil {
		return nil, planerr.Configuration("malformed CFG").WithCause(err)
	}
	if len(fn.Blocks) == 0 {
		return nil, planerr.Configuration("function has no blocks")
	}

	tech, err := technique.New(e.opts.Technique, e.target, technique.Options{
		IntraBlock: e.opts.IntraBlock,
		Selective:  e.opts.Selective,
		Rand:       e.source(fn.Name),
	})
	if err != nil {
		return nil, err
	}
	if tech.Roles() > isa.MaxRoles {
		return nil, planerr.Configuration("%s claims %d registers, at most %d available", tech.Name(), tech.Roles(), isa.MaxRoles)
	}

	norm, splits := e.target.NormalizeBranches(fn)
	log.Debug("branches normalized", zap.Int("splits", len(splits)))

	b := plan.NewBuilder(norm)
	for _, s := range splits {
		b.AddSplit(s)
	}

	orig := make([]int, len(norm.Blocks))
	for i, blk := range norm.Blocks {
		orig[i] = blk.OriginalCount()
	}
	tech.Attach(b, orig)

	if err := tech.CalcVariables(); err != nil {
		return nil, err
	}
	log.Debug("variables computed", zap.Int64s("signatures", tech.Tables().Signatures))

	anchor := b.AnchorError()
	log.Debug("error anchor placed", zap.Int("block", anchor.AfterBlock), zap.Int("after", anchor.AfterInsn))

	if err := e.dispatch(tech, len(norm.Blocks)); err != nil {
		return nil, err
	}
	if err := tech.InsertSetup(); err != nil {
		return nil, fmt.Errorf("setup: %w", err)
	}
	e.target.SaveRestore(b, tech.Roles())

	return b.Build(plan.Plan{
		Technique:  tech.Name(),
		ISA:        e.target.Family.String(),
		Selective:  e.opts.Selective,
		IntraBlock: e.opts.IntraBlock,
		Roles:      tech.Roles(),
		Registers:  e.target.Registers(tech.Roles()),
	}), nil
}

// dispatch runs the per-block hooks in block id order: intra, middle,
// begin, end.
func (e *Engine) dispatch(tech *technique.Technique, n int) error {
	middle, begin, end := tech.InsertMiddle, tech.InsertBegin, tech.InsertEnd
	if e.opts.Selective {
		middle, begin, end = tech.InsertSelMiddle, tech.InsertSelBegin, tech.InsertSelEnd
	}
	for id := 0; id < n; id++ {
		if e.opts.IntraBlock {
			if err := tech.InsertIntraBlockJumpDetection(id); err != nil {
				return err
			}
		}
		if err := middle(id); err != nil {
			return err
		}
		if err := begin(id); err != nil {
			return err
		}
		if err := end(id); err != nil {
			return err
		}
	}
	return nil
}

// Result is the outcome for one function of PlanAll.
type Result struct {
	Function string
	Plan     *plan.Plan
	Skipped  bool
	Err      error
}

// PlanAll plans every function in order. A failing function does not stop
// the others; the returned error combines every failure.
func (e *Engine) PlanAll(fns []*cfg.Function) ([]Result, error) {
	results := make([]Result, 0, len(fns))
	var errs error
	for _, fn := range fns {
		p, err := e.Plan(fn)
		r := Result{Function: fn.Name, Plan: p}
		switch {
		case errors.Is(err, ErrSkipped):
			r.Skipped = true
		case err != nil:
			r.Err = err
			errs = multierr.Append(errs, err)
		}
		results = append(results, r)
	}
	return results, errs
}
