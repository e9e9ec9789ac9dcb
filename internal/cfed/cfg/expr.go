// Package cfg - Read-only control-flow graph snapshot and instruction classification.
//
// This package is the facade every detection technique plans against. A
// Function is an immutable snapshot of one compiled function: its basic
// blocks in a stable id order, the ordered instruction list of each block,
// and predecessor/successor edges including the two sentinel nodes (entry
// and exit) of the host compiler's CFG.
//
// Instruction classification is structural: each Insn carries a pattern
// tree (Expr) and the predicates search that tree recursively. The search
// never descends into an inline-assembly operand list (CodeAsmOperands),
// whose contents are opaque.
//
// Locators (FirstReal, MiddleReal, LastReal, LastRealSafe) work on any
// instruction sequence, not only on a Block, so that a planner can re-resolve
// them against a working copy of the block after earlier insertions.
//
// Thread Safety: A Function is never mutated after Validate and is safe for
// concurrent readers.
package cfg

import (
	"fmt"
	"strings"
)

// Code identifies the operation of one pattern node.
type Code string

// Pattern codes understood by the classifier.
const (
	CodeSet            Code = "set"
	CodeCompare        Code = "compare"
	CodeCondExec       Code = "cond_exec"
	CodeReturn         Code = "return"
	CodeSimpleReturn   Code = "simple_return"
	CodeUse            Code = "use"
	CodeUnspec         Code = "unspec"
	CodeUnspecVolatile Code = "unspec_volatile"
	CodeClobber        Code = "clobber"
	CodeIfThenElse     Code = "if_then_else"
	CodeParallel       Code = "parallel"
	CodeConstInt       Code = "const_int"
	CodeReg            Code = "reg"
	CodeLabelRef       Code = "label_ref"
	CodePC             Code = "pc"
	CodeCall           Code = "call"
	CodeMem            Code = "mem"
	CodePlus           Code = "plus"
	CodeMinus          Code = "minus"
	CodeAsmOperands    Code = "asm_operands"
)

// Comparison relations. The unordered relations only occur on floating
// point compares and have no integer contrary.
const (
	EQ  Code = "eq"
	NE  Code = "ne"
	GT  Code = "gt"
	LE  Code = "le"
	GTU Code = "gtu"
	LEU Code = "leu"
	LT  Code = "lt"
	GE  Code = "ge"
	LTU Code = "ltu"
	GEU Code = "geu"

	Unordered Code = "unordered"
	Ordered   Code = "ordered"
	UNEQ      Code = "uneq"
	LTGT      Code = "ltgt"
	UNGE      Code = "unge"
	UNGT      Code = "ungt"
	UNLE      Code = "unle"
	UNLT      Code = "unlt"
)

// Expr is one node of an instruction pattern.
//
// Value is only meaningful for CodeConstInt (the constant) and CodeReg (the
// register number).
type Expr struct {
	Code  Code    `yaml:"code"`
	Value int64   `yaml:"value,omitempty"`
	Ops   []*Expr `yaml:"ops,omitempty"`
}

// E builds a pattern node.
func E(code Code, ops ...*Expr) *Expr {
	return &Expr{Code: code, Ops: ops}
}

// Const builds a const_int node.
func Const(v int64) *Expr {
	return &Expr{Code: CodeConstInt, Value: v}
}

// Reg builds a register node.
func Reg(n int64) *Expr {
	return &Expr{Code: CodeReg, Value: n}
}

// String renders the pattern in RTL-like prefix form.
func (e *Expr) String() string {
	if e == nil {
		return "nil"
	}
	switch e.Code {
	case CodeConstInt:
		return fmt.Sprintf("(const_int %d)", e.Value)
	case CodeReg:
		return fmt.Sprintf("(reg r%d)", e.Value)
	}
	if len(e.Ops) == 0 {
		return "(" + string(e.Code) + ")"
	}
	parts := make([]string, 0, len(e.Ops)+1)
	parts = append(parts, string(e.Code))
	for _, op := range e.Ops {
		parts = append(parts, op.String())
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// Contains reports whether code occurs anywhere in the tree rooted at e.
// The search stops at inline-assembly operand lists.
func (e *Expr) Contains(code Code) bool {
	if e == nil {
		return false
	}
	if e.Code == code {
		return true
	}
	if e.Code == CodeAsmOperands {
		return false
	}
	for _, op := range e.Ops {
		if op.Contains(code) {
			return true
		}
	}
	return false
}

// ContainsConst reports whether a const_int with value v occurs in the tree.
func (e *Expr) ContainsConst(v int64) bool {
	if e == nil {
		return false
	}
	switch e.Code {
	case CodeConstInt:
		return e.Value == v
	case CodeAsmOperands:
		return false
	}
	for _, op := range e.Ops {
		if op.ContainsConst(v) {
			return true
		}
	}
	return false
}

// find returns the first node with the given code, depth first.
func (e *Expr) find(code Code) *Expr {
	if e == nil {
		return nil
	}
	if e.Code == code {
		return e
	}
	if e.Code == CodeAsmOperands {
		return nil
	}
	for _, op := range e.Ops {
		if found := op.find(code); found != nil {
			return found
		}
	}
	return nil
}

// Clone returns a deep copy of the tree.
func (e *Expr) Clone() *Expr {
	if e == nil {
		return nil
	}
	c := &Expr{Code: e.Code, Value: e.Value}
	if len(e.Ops) > 0 {
		c.Ops = make([]*Expr, len(e.Ops))
		for i, op := range e.Ops {
			c.Ops[i] = op.Clone()
		}
	}
	return c
}
