package plan

import (
	"fmt"

	"github.com/kolkov/cfedplanner/internal/cfed/cfg"
)

// HeadID stands for the block head in a Point.
const HeadID = -1

// Point is a resolved insertion point: after the original instruction
// After of block Block, or at the block start when After is HeadID.
type Point struct {
	Block int
	After int
}

func (p Point) String() string {
	if p.After == HeadID {
		return fmt.Sprintf("bb%d:head", p.Block)
	}
	return fmt.Sprintf("bb%d:after(%d)", p.Block, p.After)
}

// Placed is one action with its insertion point, in emission order.
type Placed struct {
	Point  Point
	Action Action
	Hook   Hook
	InsnID int // synthetic id of the inserted instruction
}

// Split records a compare-and-branch-zero rewritten into compare + branch.
type Split struct {
	Block     int
	Jump      int      // id of the rewritten jump
	Compare   int      // id of the new compare
	Reg       int64    // register tested against zero
	Condition cfg.Code // relation of the plain conditional jump
}

// Anchor is the single error sink of a function: a label and one call to
// the handler, after the final instruction of the last block.
type Anchor struct {
	Label      string
	Handler    string
	AfterBlock int
	AfterInsn  int // HeadID when the last block is empty
}

// Actions returns the anchor's label and call.
func (a Anchor) Actions() []Action {
	return []Action{{Op: OpLabel, Anchor: a.Label}, {Op: OpCall, Anchor: a.Handler}}
}

// BlockPlan is the final item order of one block.
type BlockPlan struct {
	ID    int
	Items []Item
}

// Plan is the immutable instrumentation plan of one function.
type Plan struct {
	Function   string
	Technique  string
	ISA        string
	Selective  bool
	IntraBlock bool
	Roles      int
	Registers  []int // physical register per role
	Splits     []Split
	Blocks     []BlockPlan
	Anchor     Anchor
}

// Actions returns every inserted action in block order, each tagged with
// the original instruction it follows.
func (p *Plan) Actions() []Placed {
	var out []Placed
	for _, b := range p.Blocks {
		after := HeadID
		for _, it := range b.Items {
			if !it.Inserted() {
				after = it.Insn.ID
				continue
			}
			out = append(out, Placed{Point: Point{Block: b.ID, After: after}, Action: *it.Action, Hook: it.Hook, InsnID: it.Insn.ID})
		}
	}
	return out
}

// Count returns the number of actions a hook produced.
func (p *Plan) Count(hook Hook) int {
	n := 0
	for _, b := range p.Blocks {
		for _, it := range b.Items {
			if it.Inserted() && it.Hook == hook {
				n++
			}
		}
	}
	return n
}

// BlockActions returns the inserted actions of one block in order.
func (p *Plan) BlockActions(id int) []Action {
	var out []Action
	for _, it := range p.Blocks[id].Items {
		if it.Inserted() {
			out = append(out, *it.Action)
		}
	}
	return out
}

// Binding renders roles with the plan's physical registers.
func (p *Plan) Binding() Binding {
	return func(r Role) string {
		if int(r) < len(p.Registers) {
			return fmt.Sprintf("r%d", p.Registers[r])
		}
		return LogicalBinding(r)
	}
}

// Builder accumulates drafts for every block of one function.
//
// Thread Safety: NOT thread-safe. One Builder per function.
type Builder struct {
	fn     *cfg.Function
	drafts []*Draft
	nextID int
	anchor Anchor
	splits []Split
}

// NewBuilder creates drafts mirroring every block of fn. Synthetic
// instruction ids start above the largest id in fn.
func NewBuilder(fn *cfg.Function) *Builder {
	b := &Builder{fn: fn, nextID: fn.MaxInsnID() + 1}
	b.drafts = make([]*Draft, len(fn.Blocks))
	for i, blk := range fn.Blocks {
		d := &Draft{Block: blk, b: b}
		for _, insn := range blk.Insns {
			d.items = append(d.items, Item{Insn: insn})
			d.seq = append(d.seq, insn)
		}
		b.drafts[i] = d
	}
	return b
}

// Function returns the snapshot being planned.
func (b *Builder) Function() *cfg.Function { return b.fn }

// Draft returns the draft of block id.
func (b *Builder) Draft(id int) *Draft { return b.drafts[id] }

// NewInsnID reserves a fresh instruction id.
func (b *Builder) NewInsnID() int { return b.allocID() }

func (b *Builder) allocID() int {
	id := b.nextID
	b.nextID++
	return id
}

// AddSplit records a branch normalization.
func (b *Builder) AddSplit(s Split) { b.splits = append(b.splits, s) }

// AnchorError places the error anchor after the function's final
// instruction.
func (b *Builder) AnchorError() Anchor {
	blk, insn := b.fn.LastInsn()
	b.anchor = Anchor{Label: ErrorLabel, Handler: ErrorHandler, AfterInsn: HeadID}
	if blk != nil {
		b.anchor.AfterBlock = blk.ID
	}
	if insn != nil {
		b.anchor.AfterInsn = insn.ID
	}
	return b.anchor
}

// Build freezes the drafts into a Plan.
func (b *Builder) Build(p Plan) *Plan {
	p.Function = b.fn.Name
	p.Anchor = b.anchor
	p.Splits = append([]Split(nil), b.splits...)
	p.Blocks = make([]BlockPlan, len(b.drafts))
	for i, d := range b.drafts {
		p.Blocks[i] = BlockPlan{ID: d.Block.ID, Items: append([]Item(nil), d.items...)}
	}
	return &p
}
