// Package plan holds instrumentation actions and the per-function plan the
// detection techniques build.
//
// A technique never touches the CFG snapshot. It works on a Draft per block:
// a working copy of the block's instruction list into which actions are
// inserted. Every inserted action gets a synthetic instruction node that
// classifies like the instruction it will become (a compare is a compare, a
// conditional move is conditionally executed, a branch is a conditional
// jump), so locators re-resolved against the draft see earlier insertions.
//
// Building is two-phase, like collecting insertion points before applying
// them: drafts accumulate in a Builder and only Build turns them into an
// immutable Plan. A failed technique simply drops its Builder, so no partial
// instrumentation escapes.
package plan

import (
	"fmt"
	"strings"

	"github.com/kolkov/cfedplanner/internal/cfed/cfg"
)

// Op is the kind of an instrumentation action.
type Op string

// Instrumentation actions understood by the emission backend.
const (
	OpCmp       Op = "cmp"        // compare Dst with Args[0]
	OpBranch    Op = "branch"     // branch to Anchor when Cond holds
	OpCmpBranch Op = "cmp_branch" // compare Dst with Args[0], branch when Cond holds
	OpMov       Op = "mov"        // Dst = Args[0]
	OpCondMov   Op = "cond_mov"   // if Cond: Dst = Args[0]
	OpAdd       Op = "add"        // Dst = Args[0] + Args[1]
	OpCondAdd   Op = "cond_add"   // if Cond: Dst = Args[0] + Args[1]
	OpSub       Op = "sub"        // Dst = Args[0] - Args[1]
	OpMul       Op = "mul"        // Dst = Args[0] * Args[1]
	OpUDiv      Op = "udiv"       // Dst = Args[0] / Args[1], unsigned
	OpAnd       Op = "and"        // Dst = Args[0] & Args[1]
	OpXor       Op = "xor"        // Dst = Args[0] ^ Args[1]
	OpNot       Op = "not"        // Dst = ^Args[0]
	OpRotate    Op = "rotate"     // Dst = Args[0] rotated left by Args[1]
	OpLabel     Op = "label"      // define Anchor
	OpCall      Op = "call"       // call Anchor
	OpSave      Op = "save"       // push Roles
	OpRestore   Op = "restore"    // pop Roles
)

// Role is a logical register claimed by a technique. The ISA binds roles to
// physical registers.
type Role int

// Operand is a register role or an immediate.
type Operand struct {
	IsReg bool
	Role  Role
	Imm   int64
}

// R returns a register operand.
func R(r Role) Operand { return Operand{IsReg: true, Role: r} }

// Imm returns an immediate operand.
func Imm(v int64) Operand { return Operand{Imm: v} }

// Action is one abstract instruction to insert.
type Action struct {
	Op     Op
	Cond   cfg.Code // relation of conditional forms
	Dst    Role
	Args   []Operand
	Anchor string // label for branch, label and call
	Roles  []Role // save/restore
}

// Names of the error anchor and its handler.
const (
	ErrorLabel   = "cfed_error"
	ErrorHandler = "CFED_Detected"
)

// Mov returns Dst = v.
func Mov(dst Role, v int64) Action { return Action{Op: OpMov, Dst: dst, Args: []Operand{Imm(v)}} }

// MovReg returns Dst = src.
func MovReg(dst, src Role) Action { return Action{Op: OpMov, Dst: dst, Args: []Operand{R(src)}} }

// CondMov returns if cond: Dst = v.
func CondMov(cond cfg.Code, dst Role, v int64) Action {
	return Action{Op: OpCondMov, Cond: cond, Dst: dst, Args: []Operand{Imm(v)}}
}

// Cmp compares r with an immediate.
func Cmp(r Role, v int64) Action { return Action{Op: OpCmp, Dst: r, Args: []Operand{Imm(v)}} }

// CmpReg compares two registers.
func CmpReg(a, b Role) Action { return Action{Op: OpCmp, Dst: a, Args: []Operand{R(b)}} }

// Branch jumps to the error anchor when cond holds.
func Branch(cond cfg.Code) Action { return Action{Op: OpBranch, Cond: cond, Anchor: ErrorLabel} }

// CmpBranch compares r with v and jumps to the error anchor when cond holds.
func CmpBranch(cond cfg.Code, r Role, v int64) Action {
	return Action{Op: OpCmpBranch, Cond: cond, Dst: r, Args: []Operand{Imm(v)}, Anchor: ErrorLabel}
}

// Add returns r = r + v.
func Add(r Role, v int64) Action { return arith(OpAdd, r, R(r), Imm(v)) }

// AddTo returns dst = src + v.
func AddTo(dst, src Role, v int64) Action { return arith(OpAdd, dst, R(src), Imm(v)) }

// CondAdd returns if cond: r = r + v.
func CondAdd(cond cfg.Code, r Role, v int64) Action {
	a := arith(OpCondAdd, r, R(r), Imm(v))
	a.Cond = cond
	return a
}

// Sub returns r = r - v.
func Sub(r Role, v int64) Action { return arith(OpSub, r, R(r), Imm(v)) }

// Mul returns dst = a * b.
func Mul(dst, a, b Role) Action { return arith(OpMul, dst, R(a), R(b)) }

// UDiv returns dst = a / b.
func UDiv(dst, a, b Role) Action { return arith(OpUDiv, dst, R(a), R(b)) }

// And returns r = r & v.
func And(r Role, v int64) Action { return arith(OpAnd, r, R(r), Imm(v)) }

// AndReg returns r = r & s.
func AndReg(r, s Role) Action { return arith(OpAnd, r, R(r), R(s)) }

// Xor returns r = r ^ v.
func Xor(r Role, v int64) Action { return arith(OpXor, r, R(r), Imm(v)) }

// XorReg returns r = r ^ s.
func XorReg(r, s Role) Action { return arith(OpXor, r, R(r), R(s)) }

// Not returns r = ^r.
func Not(r Role) Action { return Action{Op: OpNot, Dst: r, Args: []Operand{R(r)}} }

// Rotate returns dst = rotl(src, n).
func Rotate(dst, src Role, n int64) Action { return arith(OpRotate, dst, R(src), Imm(n)) }

func arith(op Op, dst Role, a, b Operand) Action {
	return Action{Op: op, Dst: dst, Args: []Operand{a, b}}
}

// Binding renders a role as a physical register name.
type Binding func(Role) string

// LogicalBinding renders roles as role0, role1, ...
func LogicalBinding(r Role) string { return fmt.Sprintf("role%d", r) }

// Render formats the action in assembly-like syntax.
func (a Action) Render(bind Binding) string {
	if bind == nil {
		bind = LogicalBinding
	}
	op := func(o Operand) string {
		if o.IsReg {
			return bind(o.Role)
		}
		return fmt.Sprintf("#%d", o.Imm)
	}
	args := make([]string, 0, len(a.Args))
	for _, o := range a.Args {
		args = append(args, op(o))
	}
	switch a.Op {
	case OpBranch:
		return fmt.Sprintf("b%s %s", a.Cond, a.Anchor)
	case OpCmpBranch:
		return fmt.Sprintf("cmp_b%s %s, %s, %s", a.Cond, bind(a.Dst), args[0], a.Anchor)
	case OpLabel:
		return a.Anchor + ":"
	case OpCall:
		return "bl " + a.Anchor
	case OpSave, OpRestore:
		regs := make([]string, len(a.Roles))
		for i, r := range a.Roles {
			regs[i] = bind(r)
		}
		return fmt.Sprintf("%s {%s}", a.Op, strings.Join(regs, ", "))
	case OpCmp:
		return fmt.Sprintf("cmp %s, %s", bind(a.Dst), args[0])
	}
	name := string(a.Op)
	if a.Cond != "" {
		name = fmt.Sprintf("%s.%s", a.Op, a.Cond)
	}
	return fmt.Sprintf("%s %s, %s", name, bind(a.Dst), strings.Join(args, ", "))
}

// insn builds the synthetic instruction node that stands for a in a draft.
func (a Action) insn(id int) *cfg.Insn {
	regs := func() []*cfg.Expr {
		out := []*cfg.Expr{cfg.Reg(int64(a.Dst))}
		for _, o := range a.Args {
			if o.IsReg {
				out = append(out, cfg.Reg(int64(o.Role)))
			} else {
				out = append(out, cfg.Const(o.Imm))
			}
		}
		return out
	}
	switch a.Op {
	case OpCmp:
		return &cfg.Insn{ID: id, Kind: cfg.KindInsn, Pattern: cfg.E(cfg.CodeSet, cfg.E(cfg.CodeReg), cfg.E(cfg.CodeCompare, regs()...))}
	case OpBranch, OpCmpBranch:
		cond := cfg.E(a.Cond, regs()...)
		return &cfg.Insn{ID: id, Kind: cfg.KindJump, Pattern: cfg.E(cfg.CodeSet, cfg.E(cfg.CodePC), cfg.E(cfg.CodeIfThenElse, cond, cfg.E(cfg.CodeLabelRef), cfg.E(cfg.CodePC)))}
	case OpCondMov, OpCondAdd:
		return &cfg.Insn{ID: id, Kind: cfg.KindInsn, Pattern: cfg.E(cfg.CodeCondExec, cfg.E(a.Cond), cfg.E(cfg.CodeSet, regs()...))}
	case OpLabel:
		return &cfg.Insn{ID: id, Kind: cfg.KindCodeLabel}
	case OpCall:
		return &cfg.Insn{ID: id, Kind: cfg.KindCall, Pattern: cfg.E(cfg.CodeCall, cfg.E(cfg.CodeLabelRef))}
	case OpSave, OpRestore:
		return &cfg.Insn{ID: id, Kind: cfg.KindInsn, Pattern: cfg.E(cfg.CodeAsmOperands)}
	}
	return &cfg.Insn{ID: id, Kind: cfg.KindInsn, Pattern: cfg.E(cfg.CodeSet, regs()...)}
}
