package technique

import (
	"math"
	"math/bits"

	"github.com/kolkov/cfedplanner/internal/cfed/plan"
	"github.com/kolkov/cfedplanner/internal/cfed/planerr"
)

// YACCA register roles, shared with YACCA_Fast.
const (
	yaccaSig plan.Role = 0 // running signature
	yaccaAux plan.Role = 1 // expected predecessor value
	yaccaTmp plan.Role = 2 // scratch / error counter
)

// noM1 marks a block whose update skips the AND with M1.
const noM1 = -1

// yaccaEntryM2 turns the setup value 1 into the first prime, 5.
const yaccaEntryM2 = 4

// yaccaUpdate holds the M1/M2 tables both YACCA variants use to move the
// running signature from a predecessor's value to the block's own.
type yaccaUpdate struct {
	sig []uint32
	m1  []int64
	m2  []uint32
}

func (u *yaccaUpdate) compute(s *base) {
	n := s.n()
	u.sig = primes(n)
	u.m1 = make([]int64, n)
	u.m2 = make([]uint32, n)
	for i, blk := range s.fn.Blocks {
		preds := blk.RealPreds()
		u.m1[i] = noM1
		if len(preds) > 1 && i != 0 {
			u.m1[i] = int64(closure(u.sig, preds))
		}
		mask := uint32(math.MaxUint32)
		if u.m1[i] != noM1 {
			mask = uint32(u.m1[i])
		}
		if len(preds) == 0 {
			u.m2[i] = u.sig[i]
			continue
		}
		u.m2[i] = (u.sig[preds[0]] & mask) ^ u.sig[i]
	}
	u.m2[0] = yaccaEntryM2
}

// closure folds the predecessor signatures into the mask of bits they
// share: each step xors in the next signature and inverts the result
// within its bit length.
func closure(sig []uint32, preds []int) uint32 {
	m := sig[preds[0]]
	for _, p := range preds[1:] {
		m ^= sig[p]
		m ^= xorMask(m)
	}
	return m
}

// xorMask is the all-ones mask covering the significant bits of m.
func xorMask(m uint32) uint32 {
	l := bits.Len32(m)
	if l == 0 {
		l = 1
	}
	return uint32(1)<<uint(l) - 1
}

// update appends the M1/M2 signature update after pos.
func (u *yaccaUpdate) update(d *plan.Draft, pos int) {
	id := d.Block.ID
	if u.m1[id] != noM1 {
		pos = d.After(pos, plan.HookEnd, plan.And(yaccaSig, u.m1[id]))
	}
	d.After(pos, plan.HookEnd, plan.Xor(yaccaSig, int64(u.m2[id])))
}

func (u *yaccaUpdate) aux(extra map[string][]int64) map[string][]int64 {
	extra["m1"] = u.m1
	extra["m2"] = u32s(u.m2)
	return extra
}

// yacca implements Yet Another Control-flow Checking using Assertions.
// PREVIOUS is the product of the predecessor primes; the check divides it
// by the running signature and multiplies back.
type yacca struct {
	base
	yaccaUpdate
	previous []uint32
}

func newYACCA(b base) *yacca { return &yacca{base: b} }

func (y *yacca) table() hooks {
	return hooks{
		calcVariables: y.calcVariables,
		begin:         y.begin,
		middle:        nop,
		end:           y.end,
		setup:         y.setup,
		tables: func() Tables {
			return Tables{Signatures: u32s(y.sig), Aux: y.aux(map[string][]int64{"previous": u32s(y.previous)})}
		},
	}
}

func (y *yacca) calcVariables() error {
	y.compute(&y.base)
	y.previous = make([]uint32, y.n())
	for i, blk := range y.fn.Blocks {
		p := uint64(1)
		for _, pred := range blk.RealPreds() {
			p *= uint64(y.sig[pred])
			if p > math.MaxUint32 {
				return planerr.Constraint(i, "product of %d predecessor signatures overflows 32 bits", len(blk.RealPreds())).
					WithSuggestion("Use YACCA_Fast, which compares predecessors one by one")
			}
		}
		y.previous[i] = uint32(p)
	}
	y.previous[0] = 0
	return nil
}

// test checks that the running signature divides PREVIOUS, which the
// auxiliary register holds from the block's entry on.
func (y *yacca) test(d *plan.Draft, pos int, hook plan.Hook) int {
	return d.After(pos, hook,
		plan.UDiv(yaccaTmp, yaccaAux, yaccaSig),
		plan.Mul(yaccaTmp, yaccaTmp, yaccaSig),
		plan.CmpReg(yaccaTmp, yaccaAux),
		plan.Branch(ne))
}

func (y *yacca) begin(d *plan.Draft) error {
	p := d.Before(d.First(), plan.HookBegin, plan.Mov(yaccaAux, int64(y.previous[d.Block.ID])))
	y.test(d, p, plan.HookBegin)
	return nil
}

func (y *yacca) end(d *plan.Draft) error {
	if d.Block.IsExitBlock() && y.orig[d.Block.ID] == 1 {
		return nil
	}
	p := d.LastSafe()
	if at := d.At(p); at == nil || !at.IsJump() {
		p = y.test(d, p, plan.HookEnd)
	}
	y.update(d, p)
	return nil
}

func (y *yacca) setup(d *plan.Draft) error {
	d.Before(d.First(), plan.HookSetup, plan.Mov(yaccaSig, 1))
	return nil
}
