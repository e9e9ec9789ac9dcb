package cfg

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// Sentinel node ids of the host CFG.
const (
	EntryID = -2
	ExitID  = -1
)

// Block is one basic block. Edge order is significant: it decides the
// primary predecessor of multi-predecessor blocks.
type Block struct {
	ID    int     `yaml:"id"`
	Insns []*Insn `yaml:"insns"`
	Preds []int   `yaml:"preds"`
	Succs []int   `yaml:"succs"`
}

// IsExitBlock reports whether the only successor of b is the exit sentinel.
func (b *Block) IsExitBlock() bool {
	return len(b.Succs) == 1 && b.Succs[0] == ExitID
}

// FirstReal returns the first real instruction of b, or nil.
func (b *Block) FirstReal() *Insn { return at(b.Insns, FirstReal(b.Insns)) }

// LastReal returns the last real instruction of b, or nil.
func (b *Block) LastReal() *Insn { return at(b.Insns, LastReal(b.Insns)) }

// MiddleReal returns the middle anchor of b, or nil for the block head.
func (b *Block) MiddleReal() *Insn { return at(b.Insns, MiddleReal(b.Insns)) }

// LastRealSafe returns the safe tail anchor of b, or nil for the block head.
func (b *Block) LastRealSafe() *Insn { return at(b.Insns, LastRealSafe(b.Insns)) }

// OriginalCount returns the number of real instructions that are not
// use/unspec/clobber markers.
func (b *Block) OriginalCount() int {
	n := 0
	for _, insn := range b.Insns {
		if insn.IsOriginalCountable() {
			n++
		}
	}
	return n
}

// VerifiableCount returns the number of instructions an intra-block check
// may follow.
func (b *Block) VerifiableCount() int {
	n := 0
	for _, insn := range b.Insns {
		if insn.IsVerifiable() {
			n++
		}
	}
	return n
}

// RealSuccs returns the successors that are blocks of the function.
func (b *Block) RealSuccs() []int {
	out := make([]int, 0, len(b.Succs))
	for _, s := range b.Succs {
		if s >= 0 {
			out = append(out, s)
		}
	}
	return out
}

// RealPreds returns the predecessors that are blocks of the function.
func (b *Block) RealPreds() []int {
	out := make([]int, 0, len(b.Preds))
	for _, p := range b.Preds {
		if p >= 0 {
			out = append(out, p)
		}
	}
	return out
}

func at(seq []*Insn, idx int) *Insn {
	if idx < 0 || idx >= len(seq) {
		return nil
	}
	return seq[idx]
}

// Function is the CFG snapshot of one compiled function.
type Function struct {
	Name         string   `yaml:"name"`
	NoProtection bool     `yaml:"no_protection,omitempty"`
	Blocks       []*Block `yaml:"blocks"`
}

// Block returns the block with the given id, or nil.
func (f *Function) Block(id int) *Block {
	if id < 0 || id >= len(f.Blocks) {
		return nil
	}
	return f.Blocks[id]
}

// MaxInsnID returns the largest instruction id in the function.
func (f *Function) MaxInsnID() int {
	maxID := 0
	for _, b := range f.Blocks {
		for _, insn := range b.Insns {
			if insn.ID > maxID {
				maxID = insn.ID
			}
		}
	}
	return maxID
}

// LastInsn returns the final instruction node of the function, skipping
// trailing empty blocks.
func (f *Function) LastInsn() (*Block, *Insn) {
	for i := len(f.Blocks) - 1; i >= 0; i-- {
		b := f.Blocks[i]
		if len(b.Insns) > 0 {
			return b, b.Insns[len(b.Insns)-1]
		}
	}
	if len(f.Blocks) == 0 {
		return nil, nil
	}
	return f.Blocks[len(f.Blocks)-1], nil
}

// Validate checks the snapshot invariants every planner relies on: dense
// block ids, symmetric edges without duplicates, a predecessor for every
// block, unique instruction ids and a name usable as a file name. All
// problems are reported together.
func (f *Function) Validate() error {
	err := checkName(f.Name)
	if len(f.Blocks) == 0 {
		return multierr.Append(err, fmt.Errorf("function %q has no blocks", f.Name))
	}
	n := len(f.Blocks)
	valid := func(id int) bool { return id == EntryID || id == ExitID || (id >= 0 && id < n) }
	seenInsn := make(map[int]int)

	for i, b := range f.Blocks {
		if b == nil {
			err = multierr.Append(err, fmt.Errorf("block %d is nil", i))
			continue
		}
		if b.ID != i {
			err = multierr.Append(err, fmt.Errorf("block at index %d has id %d", i, b.ID))
		}
		if len(b.Preds) == 0 {
			err = multierr.Append(err, fmt.Errorf("block %d has no predecessors", i))
		}
		err = multierr.Append(err, checkEdges(f, i, "successor", b.Succs, valid))
		err = multierr.Append(err, checkEdges(f, i, "predecessor", b.Preds, valid))
		for _, insn := range b.Insns {
			if insn == nil {
				err = multierr.Append(err, fmt.Errorf("block %d holds a nil instruction", i))
				continue
			}
			if other, dup := seenInsn[insn.ID]; dup {
				err = multierr.Append(err, fmt.Errorf("instruction id %d used in blocks %d and %d", insn.ID, other, i))
			}
			seenInsn[insn.ID] = i
		}
	}
	return err
}

// checkName rejects names that cannot name a report directory.
func checkName(name string) error {
	switch {
	case name == "":
		return errors.New("function name is empty")
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("function name %q contains a path separator", name)
	case strings.Contains(name, ".."):
		return fmt.Errorf("function name %q contains \"..\"", name)
	}
	return nil
}

func checkEdges(f *Function, id int, what string, edges []int, valid func(int) bool) error {
	var err error
	seen := make(map[int]bool, len(edges))
	for _, e := range edges {
		if !valid(e) {
			err = multierr.Append(err, fmt.Errorf("block %d: %s %d out of range", id, what, e))
			continue
		}
		if seen[e] {
			err = multierr.Append(err, fmt.Errorf("block %d: duplicate %s %d", id, what, e))
		}
		seen[e] = true
		if e < 0 {
			continue
		}
		other := f.Blocks[e]
		if other == nil {
			continue
		}
		back := other.Preds
		if what == "predecessor" {
			back = other.Succs
		}
		if !contains(back, id) {
			err = multierr.Append(err, fmt.Errorf("block %d: %s %d has no matching back edge", id, what, e))
		}
	}
	return err
}

func contains(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
