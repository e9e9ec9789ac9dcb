package technique

import "github.com/kolkov/cfedplanner/internal/cfed/plan"

// RSCFC register roles.
const (
	rscfcSig  plan.Role = 0 // running signature
	rscfcMask plan.Role = 1 // intra-block instruction mask
)

// maxIntraBits caps the intra-block mask at the register width.
const maxIntraBits = 32

// rscfc implements Relationship Signatures for Control Flow Checking. The
// signature of a block is the bitmask of its successors plus one extra bit;
// each block owns a singleton locator bit that must be set on entry.
type rscfc struct {
	base
	sig        []uint32
	locator    []uint32
	verifiable []int
}

func newRSCFC(b base) *rscfc { return &rscfc{base: b} }

func (r *rscfc) table() hooks {
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
			return Tables{Signatures: u32s(r.sig), Aux: map[string][]int64{"locator": u32s(r.locator), "verifiable": ints(r.verifiable)}}
		},
	}
}

func (r *rscfc) calcVariables() error {
	if err := r.checkBitmask(); err != nil {
		return err
	}
	n := r.n()
	r.sig = make([]uint32, n)
	r.locator = make([]uint32, n)
	r.verifiable = make([]int, n)
	for i, blk := range r.fn.Blocks {
		r.verifiable[i] = blk.VerifiableCount()
		r.sig[i] = uint32(1)<<uint(n) | successorMask(blk, n)
		r.locator[i] = 1 << uint(i)
	}
	return nil
}

func (r *rscfc) intraBlock(d *plan.Draft) error {
	id := d.Block.ID
	count := r.verifiable[id]
	if count == 0 {
		return nil
	}
	idx := 0
	for i := 0; i < d.Len() && idx < count && idx < maxIntraBits; i++ {
		if d.Items()[i].Inserted() || !d.At(i).IsVerifiable() {
			continue
		}
		i = d.After(i, plan.HookIntra, plan.Xor(rscfcMask, int64(uint32(1)<<uint(idx))))
		idx++
	}
	var mask uint32
	for i := 0; i < count && i < maxIntraBits; i++ {
		mask |= 1 << uint(i)
	}
	d.Before(d.First(), plan.HookIntra, plan.Mov(rscfcMask, int64(mask)))
	return nil
}

func (r *rscfc) begin(d *plan.Draft) error {
	d.Before(d.First(), plan.HookBegin,
		plan.And(rscfcSig, int64(r.locator[d.Block.ID])), plan.Cmp(rscfcSig, 0), plan.Branch(eq))
	return nil
}

func (r *rscfc) selBegin(d *plan.Draft) error {
	p := d.Before(d.First(), plan.HookBegin, plan.And(rscfcSig, int64(r.locator[d.Block.ID])))
	if d.Block.IsExitBlock() {
		d.After(p, plan.HookBegin, plan.Cmp(rscfcSig, 0), plan.Branch(eq))
	}
	return nil
}

func (r *rscfc) end(d *plan.Draft) error {
	if d.Block.IsExitBlock() {
		return nil
	}
	id := d.Block.ID
	last := d.Last()
	after := d.At(last) == nil || !d.At(last).IsJump()
	actions := []plan.Action{plan.Xor(rscfcSig, int64(r.locator[id])), plan.Not(rscfcSig)}
	if r.intra && r.verifiable[id] != 0 {
		actions = append(actions, plan.Not(rscfcMask), plan.AndReg(rscfcSig, rscfcMask))
	}
	actions = append(actions, plan.And(rscfcSig, int64(r.sig[id])))
	d.Place(last, after, plan.HookEnd, actions...)
	return nil
}

func (r *rscfc) setup(d *plan.Draft) error {
	d.Before(d.First(), plan.HookSetup, plan.Mov(rscfcSig, 1))
	return nil
}
