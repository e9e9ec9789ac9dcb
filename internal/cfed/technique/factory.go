package technique

import (
	"math/rand/v2"

	"github.com/kolkov/cfedplanner/internal/cfed/isa"
	"github.com/kolkov/cfedplanner/internal/cfed/planerr"
)

// Options select the optional modes of a technique.
type Options struct {
	IntraBlock bool
	Selective  bool
	// Rand drives RACFED's signature draws. Nil uses a fixed-seed PCG
	// source, so plans are reproducible by default.
	Rand Rand
}

// strategy is what every technique implementation provides.
type strategy interface {
	table() hooks
	shared() *base
}

// entry is one row of the technique registry.
type entry struct {
	roles int
	needs []isa.Capability
}

var registry = map[Kind]entry{
	CFCSS:     {roles: 2, needs: []isa.Capability{isa.CondExec}},
	RACFED:    {roles: 1},
	SCFC:      {roles: 2, needs: []isa.Capability{isa.CondExec}},
	SEDSR:     {roles: 1},
	ECCA:      {roles: 2, needs: []isa.Capability{isa.HardwareDivide}},
	RSCFC:     {roles: 2},
	SIED:      {roles: 3, needs: []isa.Capability{isa.CondExec}},
	YACCA:     {roles: 3, needs: []isa.Capability{isa.HardwareDivide}},
	YACCAFast: {roles: 3, needs: []isa.Capability{isa.CondExec}},
}

// New constructs the technique called name for target.
//
// Unknown names, unsupported ISA families and missing instruction forms
// are ConfigurationErrors. Requesting a mode the technique has no form for
// is an UnsupportedModeError.
func New(name string, target isa.Target, opts Options) (*Technique, error) {
	kind, ok := ParseKind(name)
	if !ok {
		return nil, planerr.Configuration("unknown technique %q", name).
			WithSuggestion("Use one of CFCSS, RACFED, SCFC, SEDSR, ECCA, RSCFC, SIED, YACCA, YACCA_Fast")
	}
	if !target.Family.Supported() {
		return nil, planerr.Configuration("unsupported ISA family %s", target.Family).
			WithSuggestion("Target an ARMv6-M or ARMv7-M CPU")
	}
	row := registry[kind]
	for _, c := range row.needs {
		if !target.Has(c) {
			return nil, planerr.Configuration("%s needs %s, which %s lacks", kind, c, target.Family).
				WithSuggestion("Use RACFED, SEDSR or RSCFC on this target")
		}
	}

	b := base{kind: kind, target: target, intra: opts.IntraBlock}
	var s strategy
	switch kind {
	case CFCSS:
		s = newCFCSS(b)
	case RACFED:
		rnd := opts.Rand
		if rnd == nil {
			rnd = rand.New(rand.NewPCG(0, 0))
		}
		s = newRACFED(b, rnd)
	case SCFC:
		s = newSCFC(b)
	case SEDSR:
		s = newSEDSR(b)
	case ECCA:
		s = newECCA(b)
	case RSCFC:
		s = newRSCFC(b)
	case SIED:
		s = newSIED(b)
	case YACCA:
		s = newYACCA(b)
	case YACCAFast:
		s = newYACCAFast(b)
	}
	t := &Technique{kind: kind, roles: row.roles, base: s.shared(), h: s.table()}

	if opts.IntraBlock && !t.Supports(ModeIntraBlock) {
		return nil, planerr.UnsupportedMode(t.Name(), string(ModeIntraBlock))
	}
	if opts.Selective && !t.Supports(ModeSelective) {
		return nil, planerr.UnsupportedMode(t.Name(), string(ModeSelective))
	}
	return t, nil
}
