package isa

import (
	"github.com/kolkov/cfedplanner/internal/cfed/cfg"
	"github.com/kolkov/cfedplanner/internal/cfed/plan"
)

// NormalizeBranches rewrites every compare-and-branch-zero into a compare
// against zero followed by a plain conditional jump, so checks can be placed
// between the two. Only ARMv7-M has the fused form; other families return
// fn unchanged. The input is never modified.
func (t Target) NormalizeBranches(fn *cfg.Function) (*cfg.Function, []plan.Split) {
	if t.Family != ARMv7M {
		return fn, nil
	}
	var out *cfg.Function
	var splits []plan.Split
	nextID := fn.MaxInsnID() + 1

	for bi, b := range fn.Blocks {
		for _, insn := range b.Insns {
			if !insn.IsCBZ() {
				continue
			}
			if out == nil {
				out = fn.Clone()
			}
			rel, _ := insn.CondCode()
			reg := cbzRegister(insn)
			cmpID := nextID
			nextID++
			splits = append(splits, plan.Split{Block: b.ID, Jump: insn.ID, Compare: cmpID, Reg: reg, Condition: rel})

			nb := out.Blocks[bi]
			// Earlier splits in this block shifted the clone's indices.
			pos := indexOf(nb.Insns, insn.ID)
			jump := cfg.CondJumpInsn(insn.ID, rel)
			nb.Insns[pos] = jump
			nb.Insns = append(nb.Insns[:pos], append([]*cfg.Insn{cfg.CompareInsn(cmpID, reg, 0)}, nb.Insns[pos:]...)...)
		}
	}
	if out == nil {
		return fn, nil
	}
	return out, splits
}

func cbzRegister(insn *cfg.Insn) int64 {
	var reg int64
	var walk func(e *cfg.Expr) bool
	walk = func(e *cfg.Expr) bool {
		if e == nil || e.Code == cfg.CodeAsmOperands {
			return false
		}
		if e.Code == cfg.CodeIfThenElse && len(e.Ops) > 0 && e.Ops[0] != nil {
			for _, op := range e.Ops[0].Ops {
				if op.Code == cfg.CodeReg {
					reg = op.Value
					return true
				}
			}
		}
		for _, op := range e.Ops {
			if walk(op) {
				return true
			}
		}
		return false
	}
	walk(insn.Pattern)
	return reg
}

func indexOf(seq []*cfg.Insn, id int) int {
	for i, insn := range seq {
		if insn.ID == id {
			return i
		}
	}
	return -1
}
