package plan

import "github.com/kolkov/cfedplanner/internal/cfed/cfg"

// Hook names the planning step that produced an action.
type Hook string

// Planning hooks.
const (
	HookOriginal Hook = ""
	HookSetup    Hook = "setup"
	HookBegin    Hook = "begin"
	HookMiddle   Hook = "middle"
	HookEnd      Hook = "end"
	HookIntra    Hook = "intra"
	HookSave     Hook = "save"
	HookRestore  Hook = "restore"
	HookAnchor   Hook = "anchor"
)

// Item is one node of a block draft: an original instruction or an
// inserted action with its synthetic instruction node.
type Item struct {
	Insn   *cfg.Insn
	Action *Action // nil for original instructions
	Hook   Hook
}

// Inserted reports whether the item was added by planning.
func (it Item) Inserted() bool { return it.Action != nil }

// Draft is the working copy of one block. Positions returned by the locator
// methods are only valid until the next insertion; hooks re-resolve them.
type Draft struct {
	Block *cfg.Block
	items []Item
	seq   []*cfg.Insn
	b     *Builder
}

// Seq returns the instruction view of the draft.
func (d *Draft) Seq() []*cfg.Insn { return d.seq }

// Items returns the items of the draft.
func (d *Draft) Items() []Item { return d.items }

// Len returns the number of items.
func (d *Draft) Len() int { return len(d.items) }

// At returns the instruction at pos, or nil for the block head.
func (d *Draft) At(pos int) *cfg.Insn {
	if pos < 0 || pos >= len(d.seq) {
		return nil
	}
	return d.seq[pos]
}

// First returns the position of the first real instruction.
func (d *Draft) First() int { return cfg.FirstReal(d.seq) }

// Middle returns the middle insertion anchor.
func (d *Draft) Middle() int { return cfg.MiddleReal(d.seq) }

// Last returns the position of the last real instruction.
func (d *Draft) Last() int { return cfg.LastReal(d.seq) }

// LastSafe returns the safe tail anchor.
func (d *Draft) LastSafe() int { return cfg.LastRealSafe(d.seq) }

// Before inserts actions as a contiguous run immediately before pos and
// returns the position of the last inserted item. pos == cfg.Head inserts
// right after the block's leading label and note nodes.
func (d *Draft) Before(pos int, hook Hook, actions ...Action) int {
	if pos < 0 {
		pos = d.headLen()
	}
	return d.insert(pos, hook, actions)
}

// After inserts actions as a contiguous run immediately after pos and
// returns the position of the last inserted item, so calls chain:
//
//	p := d.Before(d.First(), HookBegin, plan.Cmp(0, 1))
//	d.After(p, HookBegin, plan.Branch(cfg.NE))
func (d *Draft) After(pos int, hook Hook, actions ...Action) int {
	if pos < 0 {
		return d.insert(d.headLen(), hook, actions)
	}
	return d.insert(pos+1, hook, actions)
}

// headLen counts the leading label and note nodes that open the block.
func (d *Draft) headLen() int {
	n := 0
	for _, it := range d.items {
		if it.Inserted() || (it.Insn.Kind != cfg.KindCodeLabel && it.Insn.Kind != cfg.KindNote) {
			break
		}
		n++
	}
	return n
}

// Place inserts before or after pos depending on after.
func (d *Draft) Place(pos int, after bool, hook Hook, actions ...Action) int {
	if after {
		return d.After(pos, hook, actions...)
	}
	return d.Before(pos, hook, actions...)
}

func (d *Draft) insert(at int, hook Hook, actions []Action) int {
	if len(actions) == 0 {
		return at - 1
	}
	if at > len(d.items) {
		at = len(d.items)
	}
	added := make([]Item, len(actions))
	for i := range actions {
		a := actions[i]
		added[i] = Item{Insn: a.insn(d.b.allocID()), Action: &a, Hook: hook}
	}
	d.items = append(d.items[:at], append(added, d.items[at:]...)...)
	d.seq = d.seq[:0]
	for _, it := range d.items {
		d.seq = append(d.seq, it.Insn)
	}
	return at + len(actions) - 1
}
