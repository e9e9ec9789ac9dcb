// Package technique implements the nine control-flow error detection
// techniques and the factory that selects one.
//
// Every technique follows the same life cycle, driven by the engine:
//
//  1. New (factory) validates the technique/ISA/mode combination
//  2. Attach hands over the function's plan builder and the per-block
//     count of original instructions
//  3. CalcVariables computes the signature and auxiliary tables once
//  4. the per-block hooks (intra, middle, begin, end, or their selective
//     counterparts) insert actions into block drafts
//  5. InsertSetup initializes the technique's registers in block 0
//
// The set of techniques is closed: a Technique is one Kind plus a hook
// table built inside this package. A nil hook means the technique has no
// sound form for that mode, and calling it yields an UnsupportedModeError.
package technique

import (
	"fmt"
	"strings"

	"github.com/kolkov/cfedplanner/internal/cfed/cfg"
	"github.com/kolkov/cfedplanner/internal/cfed/isa"
	"github.com/kolkov/cfedplanner/internal/cfed/plan"
	"github.com/kolkov/cfedplanner/internal/cfed/planerr"
)

// Kind enumerates the techniques.
type Kind int

// Techniques.
const (
	CFCSS Kind = iota
	RACFED
	SCFC
	SEDSR
	ECCA
	RSCFC
	SIED
	YACCA
	YACCAFast
)

var kindNames = [...]string{"CFCSS", "RACFED", "SCFC", "SEDSR", "ECCA", "RSCFC", "SIED", "YACCA", "YACCA_Fast"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Kinds returns every technique in declaration order.
func Kinds() []Kind {
	return []Kind{CFCSS, RACFED, SCFC, SEDSR, ECCA, RSCFC, SIED, YACCA, YACCAFast}
}

// ParseKind resolves a technique name, case-insensitively.
func ParseKind(name string) (Kind, bool) {
	for i, n := range kindNames {
		if strings.EqualFold(n, name) {
			return Kind(i), true
		}
	}
	return 0, false
}

// Mode is an optional planning mode.
type Mode string

// Modes a technique may or may not support.
const (
	ModeSelective  Mode = "selective"
	ModeIntraBlock Mode = "intra-block"
)

// hooks is the dispatch table of one technique. Nil entries are
// unsupported modes.
type hooks struct {
	calcVariables func() error
	intra         func(d *plan.Draft) error
	begin         func(d *plan.Draft) error
	middle        func(d *plan.Draft) error
	end           func(d *plan.Draft) error
	selBegin      func(d *plan.Draft) error
	selMiddle     func(d *plan.Draft) error
	selEnd        func(d *plan.Draft) error
	setup         func(d *plan.Draft) error
	tables        func() Tables
}

// Tables exposes the computed signature and auxiliary tables.
type Tables struct {
	Signatures []int64
	Aux        map[string][]int64
}

// Technique is one constructed detection technique.
//
// Thread Safety: NOT thread-safe. One Technique per function.
type Technique struct {
	kind  Kind
	roles int
	base  *base
	h     hooks
}

// Kind returns the technique's kind.
func (t *Technique) Kind() Kind { return t.kind }

// Name returns the technique's name.
func (t *Technique) Name() string { return t.kind.String() }

// Roles returns the number of register roles the technique claims.
func (t *Technique) Roles() int { return t.roles }

// Supports reports whether the technique has a form for mode.
func (t *Technique) Supports(m Mode) bool {
	switch m {
	case ModeSelective:
		return t.h.selBegin != nil && t.h.selMiddle != nil && t.h.selEnd != nil
	case ModeIntraBlock:
		return t.h.intra != nil
	}
	return false
}

// Attach binds the technique to the builder of the function being planned.
// orig holds the original instruction count of every block.
func (t *Technique) Attach(b *plan.Builder, orig []int) {
	t.base.b = b
	t.base.fn = b.Function()
	t.base.orig = orig
}

// CalcVariables computes the technique's tables.
func (t *Technique) CalcVariables() error {
	return t.h.calcVariables()
}

// Tables returns the computed tables.
func (t *Technique) Tables() Tables {
	return t.h.tables()
}

// InsertIntraBlockJumpDetection adds the intra-block layer to block id.
func (t *Technique) InsertIntraBlockJumpDetection(id int) error {
	return t.call(t.h.intra, ModeIntraBlock, id)
}

// InsertBegin adds the block-entry check.
func (t *Technique) InsertBegin(id int) error { return t.call(t.h.begin, "", id) }

// InsertMiddle adds the mid-block update.
func (t *Technique) InsertMiddle(id int) error { return t.call(t.h.middle, "", id) }

// InsertEnd adds the block-exit update.
func (t *Technique) InsertEnd(id int) error { return t.call(t.h.end, "", id) }

// InsertSelBegin is the selective form of InsertBegin.
func (t *Technique) InsertSelBegin(id int) error { return t.call(t.h.selBegin, ModeSelective, id) }

// InsertSelMiddle is the selective form of InsertMiddle.
func (t *Technique) InsertSelMiddle(id int) error { return t.call(t.h.selMiddle, ModeSelective, id) }

// InsertSelEnd is the selective form of InsertEnd.
func (t *Technique) InsertSelEnd(id int) error { return t.call(t.h.selEnd, ModeSelective, id) }

// InsertSetup initializes the registers in block 0.
func (t *Technique) InsertSetup() error { return t.call(t.h.setup, "", 0) }

func (t *Technique) call(hook func(*plan.Draft) error, mode Mode, id int) error {
	if hook == nil {
		return planerr.UnsupportedMode(t.Name(), string(mode))
	}
	return hook(t.base.b.Draft(id))
}

// Relations used by the checks.
const (
	eq = cfg.EQ
	ne = cfg.NE
)

// nop is the hook of a step a technique leaves empty.
func nop(*plan.Draft) error { return nil }

// maxAttempts bounds every rejection-sampling loop.
const maxAttempts = 1 << 16

// bitmaskWidth is the register width of bitmask signatures.
const bitmaskWidth = 32

// Rand is the random source of RACFED.
type Rand interface {
	Int64N(n int64) int64
}

// base holds what every technique shares.
type base struct {
	kind   Kind
	target isa.Target
	intra  bool
	fn     *cfg.Function
	b      *plan.Builder
	orig   []int
}

func (s *base) n() int { return len(s.fn.Blocks) }

func (s *base) shared() *base { return s }

// checkBitmask rejects functions with more blocks than a register has bits.
func (s *base) checkBitmask() error {
	if s.n() > bitmaskWidth {
		return planerr.Constraint(bitmaskWidth, "%s supports at most %d blocks, function has %d", s.kind, bitmaskWidth, s.n()).
			WithSuggestion("Use RACFED, ECCA or YACCA for functions with many blocks")
	}
	return nil
}

// successors splits the real successors of blk into the taken branch and
// the fallthrough (id+1). Missing entries are -1.
func successors(blk *cfg.Block) (taken, fall int) {
	taken, fall = -1, -1
	for _, s := range blk.RealSuccs() {
		if s == blk.ID+1 {
			fall = s
		} else {
			taken = s
		}
	}
	return taken, fall
}

// branchCodes returns the relation of the conditional jump and its negation.
func branchCodes(blk *cfg.Block, jump *cfg.Insn) (taken, fall cfg.Code, err error) {
	if jump == nil {
		return "", "", planerr.Constraint(blk.ID, "two successors but no conditional jump")
	}
	taken, ok := jump.CondCode()
	if !ok {
		return "", "", planerr.Constraint(blk.ID, "conditional jump %d has no condition", jump.ID)
	}
	fall, err = cfg.Contrary(taken)
	if err != nil {
		return "", "", planerr.Constraint(blk.ID, "cannot negate branch condition").WithCause(err)
	}
	return taken, fall, nil
}

// successorMask is the bitmask of the real successor ids of blk.
func successorMask(blk *cfg.Block, n int) uint32 {
	var m uint32
	for _, s := range blk.RealSuccs() {
		if s < n {
			m |= 1 << uint(s)
		}
	}
	return m
}

func u32s(v []uint32) []int64 {
	out := make([]int64, len(v))
	for i, x := range v {
		out[i] = int64(x)
	}
	return out
}

func ints(v []int) []int64 {
	out := make([]int64, len(v))
	for i, x := range v {
		out[i] = int64(x)
	}
	return out
}
