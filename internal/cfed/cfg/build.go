package cfg

// Instruction constructors for the patterns the planner cares about. They
// mirror the shapes a Thumb-2 backend produces.

// SetInsn builds a plain register move r<dst> = const.
func SetInsn(id int, dst, value int64) *Insn {
	return &Insn{ID: id, Kind: KindInsn, Pattern: E(CodeSet, Reg(dst), Const(value))}
}

// CompareInsn builds cc = compare(r<reg>, const).
func CompareInsn(id int, reg, value int64) *Insn {
	return &Insn{ID: id, Kind: KindInsn, Pattern: E(CodeSet, Reg(ccReg), E(CodeCompare, Reg(reg), Const(value)))}
}

// CondJumpInsn builds pc = if_then_else(rel cc 0, label, pc).
func CondJumpInsn(id int, rel Code) *Insn {
	cond := E(rel, Reg(ccReg), Const(0))
	return &Insn{ID: id, Kind: KindJump, Pattern: E(CodeSet, E(CodePC), E(CodeIfThenElse, cond, E(CodeLabelRef), E(CodePC)))}
}

// CBZInsn builds a compare-and-branch on r<reg>; rel is EQ for cbz and NE
// for cbnz.
func CBZInsn(id int, rel Code, reg int64) *Insn {
	cond := E(rel, Reg(reg), Const(0))
	jump := E(CodeSet, E(CodePC), E(CodeIfThenElse, cond, E(CodeLabelRef), E(CodePC)))
	return &Insn{ID: id, Kind: KindJump, Pattern: E(CodeParallel, jump, E(CodeClobber, Reg(ccReg)))}
}

// JumpInsn builds an unconditional jump.
func JumpInsn(id int) *Insn {
	return &Insn{ID: id, Kind: KindJump, Pattern: E(CodeSet, E(CodePC), E(CodeLabelRef))}
}

// ReturnInsn builds a simple return.
func ReturnInsn(id int) *Insn {
	return &Insn{ID: id, Kind: KindJump, Pattern: E(CodeSimpleReturn)}
}

// CallInsn builds a call.
func CallInsn(id int) *Insn {
	return &Insn{ID: id, Kind: KindCall, Pattern: E(CodeCall, E(CodeMem, Reg(0)), Const(0))}
}

// UseInsn builds a use marker.
func UseInsn(id int, reg int64) *Insn {
	return &Insn{ID: id, Kind: KindInsn, Pattern: E(CodeUse, Reg(reg))}
}

// NoteInsn builds a basic-block note.
func NoteInsn(id int) *Insn {
	return &Insn{ID: id, Kind: KindNote}
}

// ccReg is the condition-code register number used in built patterns.
const ccReg = 100

// Build assembles a function from successor lists. Predecessor lists are
// derived in block id order, block 0 first receiving the entry sentinel.
// bodies[i], when present, becomes the instruction list of block i.
func Build(name string, succs [][]int, bodies ...[]*Insn) *Function {
	fn := &Function{Name: name, Blocks: make([]*Block, len(succs))}
	for i := range succs {
		fn.Blocks[i] = &Block{ID: i, Succs: append([]int(nil), succs[i]...)}
		if i < len(bodies) {
			fn.Blocks[i].Insns = bodies[i]
		}
	}
	if len(fn.Blocks) > 0 {
		fn.Blocks[0].Preds = []int{EntryID}
	}
	DerivePreds(fn)
	return fn
}

// DerivePreds appends predecessor edges implied by the successor lists to
// every block that declares none. Block 0 keeps the entry sentinel.
func DerivePreds(fn *Function) {
	missing := make([]bool, len(fn.Blocks))
	for i, b := range fn.Blocks {
		missing[i] = len(b.Preds) == 0 || (i == 0 && len(b.Preds) == 1 && b.Preds[0] == EntryID)
		if i == 0 && len(b.Preds) == 0 {
			b.Preds = []int{EntryID}
		}
	}
	for _, b := range fn.Blocks {
		for _, s := range b.Succs {
			if s >= 0 && s < len(fn.Blocks) && missing[s] {
				fn.Blocks[s].Preds = append(fn.Blocks[s].Preds, b.ID)
			}
		}
	}
}

// Clone returns a deep copy of the function.
func (f *Function) Clone() *Function {
	c := &Function{Name: f.Name, NoProtection: f.NoProtection, Blocks: make([]*Block, len(f.Blocks))}
	for i, b := range f.Blocks {
		nb := &Block{
			ID:    b.ID,
			Preds: append([]int(nil), b.Preds...),
			Succs: append([]int(nil), b.Succs...),
			Insns: make([]*Insn, len(b.Insns)),
		}
		for j, insn := range b.Insns {
			nb.Insns[j] = &Insn{ID: insn.ID, Kind: insn.Kind, Pattern: insn.Pattern.Clone()}
		}
		c.Blocks[i] = nb
	}
	return c
}
