package technique

import "github.com/kolkov/cfedplanner/internal/cfed/plan"

// yaccaFast is YACCA without the division: the running signature is
// compared against every predecessor prime and an error counter collects
// the mismatches. Exactly len(preds)-1 mismatches is the valid outcome.
type yaccaFast struct {
	base
	yaccaUpdate
	previous [][]uint32
}

func newYACCAFast(b base) *yaccaFast { return &yaccaFast{base: b} }

func (y *yaccaFast) table() hooks {
	return hooks{
		calcVariables: y.calcVariables,
		begin:         y.begin,
		middle:        nop,
		end:           y.end,
		setup:         y.setup,
		tables: func() Tables {
			counts := make([]int64, len(y.previous))
			for i, p := range y.previous {
				counts[i] = int64(len(p))
			}
			return Tables{Signatures: u32s(y.sig), Aux: y.aux(map[string][]int64{"previous_count": counts})}
		},
	}
}

func (y *yaccaFast) calcVariables() error {
	y.compute(&y.base)
	y.previous = make([][]uint32, y.n())
	for i, blk := range y.fn.Blocks {
		for _, pred := range blk.RealPreds() {
			y.previous[i] = append(y.previous[i], y.sig[pred])
		}
	}
	y.previous[0] = []uint32{1}
	return nil
}

// test emits the membership check at pos, before it unless after is set.
func (y *yaccaFast) test(d *plan.Draft, pos int, after bool, hook plan.Hook) int {
	prev := y.previous[d.Block.ID]
	switch len(prev) {
	case 0:
		return pos
	case 1:
		return d.Place(pos, after, hook,
			plan.Mov(yaccaAux, int64(prev[0])), plan.CmpReg(yaccaSig, yaccaAux), plan.Branch(ne))
	}
	actions := make([]plan.Action, 0, 3*len(prev)+3)
	for _, p := range prev {
		actions = append(actions,
			plan.Mov(yaccaAux, int64(p)),
			plan.CmpReg(yaccaSig, yaccaAux),
			plan.CondAdd(ne, yaccaTmp, 1))
	}
	misses := int64(len(prev) - 1)
	actions = append(actions, plan.Cmp(yaccaTmp, misses), plan.Branch(ne), plan.Sub(yaccaTmp, misses))
	return d.Place(pos, after, hook, actions...)
}

func (y *yaccaFast) begin(d *plan.Draft) error {
	y.test(d, d.First(), false, plan.HookBegin)
	return nil
}

func (y *yaccaFast) end(d *plan.Draft) error {
	if d.Block.IsExitBlock() && y.orig[d.Block.ID] == 1 {
		return nil
	}
	p := d.LastSafe()
	if at := d.At(p); at == nil || !at.IsJump() {
		p = y.test(d, p, true, plan.HookEnd)
	}
	y.update(d, p)
	return nil
}

func (y *yaccaFast) setup(d *plan.Draft) error {
	d.Before(d.First(), plan.HookSetup, plan.Mov(yaccaSig, 1), plan.Mov(yaccaTmp, 0))
	return nil
}
