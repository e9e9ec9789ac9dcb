package technique

import (
	"github.com/kolkov/cfedplanner/internal/cfed/cfg"
	"github.com/kolkov/cfedplanner/internal/cfed/isa"
	"github.com/kolkov/cfedplanner/internal/cfed/plan"
	"github.com/kolkov/cfedplanner/internal/cfed/planerr"
)

const racfedSig plan.Role = 0

// racfed implements Random Additive Control Flow Error Detection.
//
// Each block gets a random signature and a random "sub-random previous"
// value. On entry the register holds signature+srp of the block; the begin
// check subtracts srp and compares against the signature. The intra-block
// layer adds random deltas after ordinary instructions and the end hook adds
// whatever brings the register to the successor's signature+srp.
type racfed struct {
	base
	rnd Rand
	lim isa.Limits
	sig []int64
	srp []int64
	acc []int64 // accumulated intra-block deltas
}

func newRACFED(b base, rnd Rand) *racfed {
	return &racfed{base: b, rnd: rnd, lim: b.target.Limits()}
}

func (r *racfed) table() hooks {
	return hooks{
		calcVariables: r.calcVariables,
		intra:         r.intraBlock,
		begin:         r.begin,
		middle:        nop,
		end:           r.end,
		selBegin:      r.selBegin,
		selMiddle:     nop,
		selEnd:        r.end,
		setup:         r.setup,
		tables: func() Tables {
			return Tables{Signatures: r.sig, Aux: map[string][]int64{"sub_ran_prev": r.srp, "intra_acc": r.acc}}
		},
	}
}

func (r *racfed) calcVariables() error {
	n := r.n()
	if int64(n) > r.lim.CmpLimit {
		return planerr.Constraint(n-1, "RACFED needs %d unique signatures, only %d available", n, r.lim.CmpLimit)
	}
	r.sig = make([]int64, n)
	r.srp = make([]int64, n)
	r.acc = make([]int64, n)

	for id := 0; id < n; id++ {
		found := false
		for attempt := 0; attempt < maxAttempts && !found; attempt++ {
			sig, ok := r.drawSignature(id)
			if !ok {
				break
			}
			r.sig[id] = sig
			srp := r.rnd.Int64N(r.lim.SubRanPrevLimit)
			if r.uniqueSum(id, sig+srp) {
				r.srp[id] = srp
				found = true
			}
		}
		if !found {
			return planerr.Constraint(id, "no unique signature sum within (%d, %d) after %d attempts", r.lim.Lower, r.lim.Upper, maxAttempts)
		}
	}
	return nil
}

func (r *racfed) drawSignature(id int) (int64, bool) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		sig := r.rnd.Int64N(r.lim.CmpLimit) + 1
		unique := true
		for i := 0; i < id; i++ {
			if r.sig[i] == sig {
				unique = false
				break
			}
		}
		if unique {
			return sig, true
		}
	}
	return 0, false
}

func (r *racfed) uniqueSum(id int, sum int64) bool {
	if !r.lim.InRange(sum) {
		return false
	}
	for i := 0; i < id; i++ {
		if r.sig[i]+r.srp[i] == sum {
			return false
		}
	}
	return true
}

// Sum returns the register value expected on entry of block id.
func (r *racfed) Sum(id int) int64 { return r.sig[id] + r.srp[id] }

func (r *racfed) intraBlock(d *plan.Draft) error {
	id := d.Block.ID
	if r.orig[id] <= 2 {
		return nil
	}
	for i := 0; i < d.Len(); i++ {
		if !r.intraCandidate(d, i) {
			continue
		}
		v, err := r.intraValue(id)
		if err != nil {
			return err
		}
		d.After(i, plan.HookIntra, plan.Add(racfedSig, v))
		r.acc[id] += v
		i++
	}
	return nil
}

// intraCandidate excludes jumps, the instruction before a jump, the block's
// final node, calls and use/unspec/clobber markers.
func (r *racfed) intraCandidate(d *plan.Draft, i int) bool {
	insn := d.At(i)
	if !insn.IsReal() || insn.IsJump() || i == d.Len()-1 {
		return false
	}
	if next := d.At(i + 1); next != nil && next.IsJump() {
		return false
	}
	return !insn.IsUse() && !insn.IsCall() && !insn.IsUnspec() && !insn.IsClobber() && !insn.IsUnspecVolatile()
}

func (r *racfed) intraValue(id int) (int64, error) {
	span := r.lim.Span()
	cur := r.sig[id] + r.acc[id]
	for attempt := 0; attempt < maxAttempts; attempt++ {
		cand := r.rnd.Int64N(span) - span/2
		if cand != 0 && r.lim.InRange(cur+cand) {
			return cand, nil
		}
	}
	return 0, planerr.Constraint(id, "no intra-block delta keeps the register within (%d, %d)", r.lim.Lower, r.lim.Upper)
}

// check compares the register with v after position p and branches to the
// error anchor on mismatch.
func (r *racfed) check(d *plan.Draft, p int, hook plan.Hook, v int64) {
	if r.target.FusedCompareBranch() {
		d.After(p, hook, plan.CmpBranch(ne, racfedSig, v))
		return
	}
	d.After(p, hook, plan.Cmp(racfedSig, v), plan.Branch(ne))
}

func (r *racfed) begin(d *plan.Draft) error {
	id := d.Block.ID
	attach := d.First()
	if r.orig[id] == 0 {
		attach = cfg.Head
	}
	condAttach := d.At(attach) != nil && d.At(attach).IsCondJump()
	p := d.Before(attach, plan.HookBegin, plan.Add(racfedSig, -r.srp[id]))
	// A lone conditional jump consumes flags set in the previous block.
	if r.orig[id] != 1 || !condAttach {
		r.check(d, p, plan.HookBegin, r.sig[id])
	}
	return nil
}

func (r *racfed) selBegin(d *plan.Draft) error {
	id := d.Block.ID
	p := d.Before(d.First(), plan.HookBegin, plan.Add(racfedSig, -r.srp[id]))
	if d.Block.IsExitBlock() {
		r.check(d, p, plan.HookBegin, r.sig[id])
	}
	return nil
}

// adjust is the delta from this block's running value to the entry value
// of succ.
func (r *racfed) adjust(id, succ int) int64 {
	return r.Sum(succ) - (r.sig[id] + r.acc[id])
}

func (r *racfed) end(d *plan.Draft) error {
	blk := d.Block
	if len(blk.Succs) == 0 {
		return nil
	}
	id := blk.ID
	taken, fall := successors(blk)
	last := d.Last()
	insn := d.At(last)
	exit := blk.IsExitBlock()

	switch {
	case r.orig[id] == 0 && !exit:
		s, err := pick(blk, fall, taken)
		if err != nil {
			return err
		}
		d.After(last, plan.HookEnd, plan.Add(racfedSig, r.adjust(id, s)))

	case insn != nil && insn.IsCondJump():
		takenRel, fallRel, err := branchCodes(blk, insn)
		if err != nil {
			return err
		}
		if taken < 0 || fall < 0 {
			return planerr.Constraint(id, "conditional block needs two successors, has %v", blk.Succs)
		}
		if r.target.Has(isa.CondExec) {
			d.Before(last, plan.HookEnd,
				plan.CondAdd(takenRel, racfedSig, r.adjust(id, taken)),
				plan.CondAdd(fallRel, racfedSig, r.adjust(id, fall)))
			return nil
		}
		// No conditional add: the taken delta is applied before the jump and
		// the fallthrough path corrects the remainder after it.
		takenAdj := r.adjust(id, taken)
		p := d.Before(last, plan.HookEnd, plan.Add(racfedSig, takenAdj))
		d.After(p+1, plan.HookEnd, plan.Add(racfedSig, r.adjust(id, fall)-takenAdj))

	case exit:
		if r.orig[id] > 1 {
			ret := r.rnd.Int64N(254)
			p := d.Before(last, plan.HookEnd, plan.Add(racfedSig, ret-(r.sig[id]+r.acc[id])))
			r.check(d, p, plan.HookEnd, ret)
		}

	case insn != nil && insn.IsJump():
		s, err := pick(blk, taken, fall)
		if err != nil {
			return err
		}
		d.Before(last, plan.HookEnd, plan.Add(racfedSig, r.adjust(id, s)))

	case insn != nil && insn.IsCall():
		s, err := pick(blk, fall, taken)
		if err != nil {
			return err
		}
		d.Before(last, plan.HookEnd, plan.Add(racfedSig, r.adjust(id, s)))

	default:
		s, err := pick(blk, fall, taken)
		if err != nil {
			return err
		}
		d.After(last, plan.HookEnd, plan.Add(racfedSig, r.adjust(id, s)))
	}
	return nil
}

// pick returns the preferred successor, or the other one when the preferred
// edge does not exist.
func pick(blk *cfg.Block, preferred, other int) (int, error) {
	if preferred >= 0 {
		return preferred, nil
	}
	if other >= 0 {
		return other, nil
	}
	return 0, planerr.Constraint(blk.ID, "no successor block to hand the signature to")
}

func (r *racfed) setup(d *plan.Draft) error {
	d.Before(d.First(), plan.HookSetup, plan.Mov(racfedSig, r.Sum(0)))
	return nil
}
