package technique

import "github.com/kolkov/cfedplanner/internal/cfed/plan"

// ECCA register roles.
const (
	eccaR0 plan.Role = 0
	eccaR1 plan.Role = 1
)

// ecca implements Enhanced Control Checking with Assertions. Every block
// has a prime signature; on entry one of the two registers must equal it,
// which the product (r0-sig)*(r1-sig) == 0 checks.
type ecca struct {
	base
	sig   []uint32
	next1 []uint32 // fallthrough successor signature
	next2 []uint32 // taken successor signature
}

func newECCA(b base) *ecca { return &ecca{base: b} }

func (e *ecca) table() hooks {
	return hooks{
		calcVariables: e.calcVariables,
		begin:         e.begin,
		middle:        nop,
		end:           e.end,
		setup:         e.setup,
		tables: func() Tables {
			return Tables{Signatures: u32s(e.sig), Aux: map[string][]int64{"next1": u32s(e.next1), "next2": u32s(e.next2)}}
		},
	}
}

func (e *ecca) calcVariables() error {
	n := e.n()
	e.sig = primes(n)
	e.next1 = make([]uint32, n)
	e.next2 = make([]uint32, n)
	for i, blk := range e.fn.Blocks {
		if blk.IsExitBlock() {
			continue
		}
		for _, s := range blk.RealSuccs() {
			if s == i+1 {
				e.next1[i] = e.sig[s]
			} else {
				e.next2[i] = e.sig[s]
			}
		}
	}
	return nil
}

func (e *ecca) begin(d *plan.Draft) error {
	sig := int64(e.sig[d.Block.ID])
	actions := []plan.Action{
		plan.Sub(eccaR0, sig),
		plan.Sub(eccaR1, sig),
		plan.Mul(eccaR0, eccaR0, eccaR1),
		plan.Cmp(eccaR0, 0),
		plan.Branch(ne),
	}
	if !d.Block.IsExitBlock() {
		actions = append(actions,
			plan.Rotate(eccaR1, eccaR0, 1),
			plan.Add(eccaR0, 1),
			plan.Add(eccaR1, 1),
			plan.UDiv(eccaR0, eccaR0, eccaR1),
			plan.Mov(eccaR1, sig+1),
			plan.UDiv(eccaR0, eccaR1, eccaR0),
		)
	}
	d.Before(d.First(), plan.HookBegin, actions...)
	return nil
}

func (e *ecca) end(d *plan.Draft) error {
	if d.Block.IsExitBlock() {
		return nil
	}
	id := d.Block.ID
	last := d.Last()
	after := d.At(last) == nil || !d.At(last).IsJump()
	d.Place(last, after, plan.HookEnd,
		plan.Sub(eccaR0, int64(e.sig[id])+1),
		plan.AddTo(eccaR1, eccaR0, int64(e.next2[id])),
		plan.Add(eccaR0, int64(e.next1[id])))
	return nil
}

func (e *ecca) setup(d *plan.Draft) error {
	d.Before(d.First(), plan.HookSetup, plan.Mov(eccaR0, int64(e.sig[0])))
	return nil
}
