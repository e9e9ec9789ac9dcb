package cfg

import "fmt"

// Kind is the container type of an instruction node.
type Kind string

// Instruction kinds. Only insn, jump_insn and call_insn are real
// (executable) instructions; the rest are annotations.
const (
	KindInsn      Kind = "insn"
	KindJump      Kind = "jump_insn"
	KindCall      Kind = "call_insn"
	KindDebug     Kind = "debug_insn"
	KindNote      Kind = "note"
	KindCodeLabel Kind = "code_label"
	KindBarrier   Kind = "barrier"
)

// Insn is one node of a block's instruction list. ID is an opaque identity
// used only to anchor insertion points.
type Insn struct {
	ID      int   `yaml:"id"`
	Kind    Kind  `yaml:"kind"`
	Pattern *Expr `yaml:"pattern,omitempty"`
}

func (i *Insn) String() string {
	if i.Pattern == nil {
		return fmt.Sprintf("%d %s", i.ID, i.Kind)
	}
	return fmt.Sprintf("%d %s %s", i.ID, i.Kind, i.Pattern)
}

// IsReal reports whether the node is an executable, non-debug instruction.
func (i *Insn) IsReal() bool {
	return i.Kind == KindInsn || i.Kind == KindJump || i.Kind == KindCall
}

// IsInsnLike reports whether the node carries a pattern at all (real or debug).
func (i *Insn) IsInsnLike() bool {
	return i.IsReal() || i.Kind == KindDebug
}

// IsJump reports whether the node is a jump_insn, returns included.
func (i *Insn) IsJump() bool { return i.Kind == KindJump }

// IsCall reports whether the node is a call_insn.
func (i *Insn) IsCall() bool { return i.Kind == KindCall }

// IsCompare reports whether the pattern contains a compare.
func (i *Insn) IsCompare() bool { return i.Pattern.Contains(CodeCompare) }

// IsCondExec reports whether the instruction is conditionally executed.
func (i *Insn) IsCondExec() bool { return i.Pattern.Contains(CodeCondExec) }

// IsReturn reports whether the pattern contains a return or simple_return.
func (i *Insn) IsReturn() bool {
	return i.Pattern.Contains(CodeReturn) || i.Pattern.Contains(CodeSimpleReturn)
}

func (i *Insn) topIs(code Code) bool {
	return i.IsInsnLike() && i.Pattern != nil && i.Pattern.Code == code
}

// IsUse reports whether the instruction is a bare use marker.
func (i *Insn) IsUse() bool { return i.topIs(CodeUse) }

// IsUnspec reports whether the instruction is a bare unspec.
func (i *Insn) IsUnspec() bool { return i.topIs(CodeUnspec) }

// IsUnspecVolatile reports whether the instruction is a bare unspec_volatile.
func (i *Insn) IsUnspecVolatile() bool { return i.topIs(CodeUnspecVolatile) }

// IsClobber reports whether the instruction is a bare clobber.
func (i *Insn) IsClobber() bool { return i.topIs(CodeClobber) }

// IsCondJump reports whether the instruction is a conditional jump.
func (i *Insn) IsCondJump() bool {
	if i.IsReturn() {
		return false
	}
	return i.IsJump() && i.Pattern.Contains(CodeIfThenElse)
}

// IsCBZ reports whether the instruction is a compare-and-branch-on-zero
// (a parallel holding an if_then_else against const_int 0).
func (i *Insn) IsCBZ() bool {
	p := i.Pattern
	return i.IsJump() && p.Contains(CodeParallel) && p.Contains(CodeIfThenElse) && p.ContainsConst(0)
}

// CondCode returns the relation governing a conditional jump.
func (i *Insn) CondCode() (Code, bool) {
	ite := i.Pattern.find(CodeIfThenElse)
	if ite == nil || len(ite.Ops) == 0 || ite.Ops[0] == nil {
		return "", false
	}
	return ite.Ops[0].Code, true
}

// IsOriginalCountable reports whether the instruction counts as original
// program work: real and not a use/unspec/clobber marker.
func (i *Insn) IsOriginalCountable() bool {
	return i.IsReal() && !i.IsUse() && !i.IsUnspec() && !i.IsClobber() && !i.IsUnspecVolatile()
}

// IsVerifiable reports whether an intra-block check may follow the
// instruction: real, not a use marker, not a jump and not a call.
func (i *Insn) IsVerifiable() bool {
	return i.IsReal() && !i.IsUse() && !i.IsJump() && !i.IsCall()
}

func (k Kind) String() string { return string(k) }
