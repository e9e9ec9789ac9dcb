// Package sim executes the inserted actions of a plan along a block path.
//
// Original instructions are not executed. Their only observable effect on
// the checks is the condition flags: when a block ends in a conditional
// jump, the flags report the branch outcome the path takes, so a
// conditional action guarded by the jump's relation (or its contrary)
// behaves as on hardware. An inserted compare replaces those flags with
// real values until the next original compare.
//
// Paths may contain edges the CFG does not have, and a step may enter a
// block past its first items. Both model control-flow errors: the plan
// detects them when a check branches to the error anchor.
package sim

import (
	"fmt"
	"math/bits"

	"github.com/kolkov/cfedplanner/internal/cfed/cfg"
	"github.com/kolkov/cfedplanner/internal/cfed/plan"
)

// Step enters Block, skipping its first Skip items.
type Step struct {
	Block int
	Skip  int
}

// Result is the outcome of one run.
type Result struct {
	Detected bool
	Block    int // block of the failing check, -1 when nothing was detected
	Regs     []uint32
}

// flags is the condition state: either a synthetic compare of two values
// or the outcome of the block's original conditional jump.
type flags struct {
	synthetic bool
	a, b      uint32
	rel       cfg.Code
	taken     bool
}

func (f flags) holds(c cfg.Code) (bool, error) {
	if f.synthetic {
		return cfg.Holds(c, f.a, f.b), nil
	}
	if f.rel == "" {
		return false, fmt.Errorf("condition %s evaluated without flags", c)
	}
	if c == f.rel {
		return f.taken, nil
	}
	contrary, err := cfg.Contrary(f.rel)
	if err == nil && c == contrary {
		return !f.taken, nil
	}
	return false, fmt.Errorf("condition %s not derivable from branch relation %s", c, f.rel)
}

// Run executes p along the given block ids.
func Run(p *plan.Plan, blocks ...int) (Result, error) {
	steps := make([]Step, len(blocks))
	for i, b := range blocks {
		steps[i] = Step{Block: b}
	}
	return RunSteps(p, steps...)
}

// RunSteps executes p along steps. The last step runs to the end of its
// block.
func RunSteps(p *plan.Plan, steps ...Step) (Result, error) {
	m := &machine{regs: make([]uint32, max(p.Roles, 1))}
	for i, s := range steps {
		if s.Block < 0 || s.Block >= len(p.Blocks) {
			return Result{}, fmt.Errorf("step %d: no block %d", i, s.Block)
		}
		next := -1
		if i+1 < len(steps) {
			next = steps[i+1].Block
		}
		detected, err := m.block(p.Blocks[s.Block], s.Skip, next)
		if err != nil {
			return Result{}, fmt.Errorf("block %d: %w", s.Block, err)
		}
		if detected {
			return Result{Detected: true, Block: s.Block, Regs: m.regs}, nil
		}
	}
	return Result{Block: -1, Regs: m.regs}, nil
}

type machine struct {
	regs []uint32
	f    flags
}

// block runs one block; next is the block the path continues with.
func (m *machine) block(bp plan.BlockPlan, skip, next int) (bool, error) {
	taken := next != bp.ID+1
	rel := cfg.Code("")
	for i := len(bp.Items) - 1; i >= 0; i-- {
		it := bp.Items[i]
		if it.Inserted() || !it.Insn.IsReal() {
			continue
		}
		if it.Insn.IsCondJump() {
			rel, _ = it.Insn.CondCode()
		}
		break
	}
	if rel != "" {
		m.f = flags{rel: rel, taken: taken}
	}
	for i := skip; i < len(bp.Items); i++ {
		it := bp.Items[i]
		if !it.Inserted() {
			insn := it.Insn
			switch {
			case insn.IsCompare() && rel != "":
				m.f = flags{rel: rel, taken: taken}
			case insn.IsCondJump():
				if taken {
					return false, nil
				}
			case insn.IsJump():
				return false, nil
			}
			continue
		}
		hit, err := m.exec(*it.Action)
		if err != nil {
			return false, fmt.Errorf("item %d (%s): %w", i, it.Action.Render(nil), err)
		}
		if hit {
			return true, nil
		}
	}
	return false, nil
}

func (m *machine) val(o plan.Operand) uint32 {
	if o.IsReg {
		return m.regs[o.Role]
	}
	return uint32(o.Imm)
}

// exec runs one action and reports whether it branched to the anchor.
func (m *machine) exec(a plan.Action) (bool, error) {
	if int(a.Dst) >= len(m.regs) {
		return false, fmt.Errorf("role %d out of range", a.Dst)
	}
	switch a.Op {
	case plan.OpMov:
		m.regs[a.Dst] = m.val(a.Args[0])
	case plan.OpCondMov, plan.OpCondAdd:
		ok, err := m.f.holds(a.Cond)
		if err != nil || !ok {
			return false, err
		}
		if a.Op == plan.OpCondMov {
			m.regs[a.Dst] = m.val(a.Args[0])
		} else {
			m.regs[a.Dst] = m.val(a.Args[0]) + m.val(a.Args[1])
		}
	case plan.OpCmp:
		m.f = flags{synthetic: true, a: m.regs[a.Dst], b: m.val(a.Args[0])}
	case plan.OpBranch:
		return m.f.holds(a.Cond)
	case plan.OpCmpBranch:
		m.f = flags{synthetic: true, a: m.regs[a.Dst], b: m.val(a.Args[0])}
		return m.f.holds(a.Cond)
	case plan.OpAdd:
		m.regs[a.Dst] = m.val(a.Args[0]) + m.val(a.Args[1])
	case plan.OpSub:
		m.regs[a.Dst] = m.val(a.Args[0]) - m.val(a.Args[1])
	case plan.OpMul:
		m.regs[a.Dst] = m.val(a.Args[0]) * m.val(a.Args[1])
	case plan.OpUDiv:
		// Division by zero yields zero on ARM.
		if d := m.val(a.Args[1]); d != 0 {
			m.regs[a.Dst] = m.val(a.Args[0]) / d
		} else {
			m.regs[a.Dst] = 0
		}
	case plan.OpAnd:
		m.regs[a.Dst] = m.val(a.Args[0]) & m.val(a.Args[1])
	case plan.OpXor:
		m.regs[a.Dst] = m.val(a.Args[0]) ^ m.val(a.Args[1])
	case plan.OpNot:
		m.regs[a.Dst] = ^m.val(a.Args[0])
	case plan.OpRotate:
		m.regs[a.Dst] = bits.RotateLeft32(m.val(a.Args[0]), int(a.Args[1].Imm))
	case plan.OpLabel, plan.OpCall, plan.OpSave, plan.OpRestore:
	default:
		return false, fmt.Errorf("unknown op %q", a.Op)
	}
	return false, nil
}
