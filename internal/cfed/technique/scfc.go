package technique

import "github.com/kolkov/cfedplanner/internal/cfed/plan"

// SCFC register roles.
const (
	scfcSig plan.Role = 0 // successor bitmask of the previous block
	scfcID  plan.Role = 1 // id of the block control must reach next
)

// scfc implements Software-Implemented Control Flow Checking: a block-id
// register names the expected next block and a bitmask register holds the
// legal successors of the previous block.
type scfc struct {
	base
	sig []uint32
}

func newSCFC(b base) *scfc { return &scfc{base: b} }

func (s *scfc) table() hooks {
	return hooks{
		calcVariables: s.calcVariables,
		begin:         s.begin,
		middle:        s.middle,
		end:           s.end,
		setup:         s.setup,
		tables:        func() Tables { return Tables{Signatures: u32s(s.sig)} },
	}
}

func (s *scfc) calcVariables() error {
	if err := s.checkBitmask(); err != nil {
		return err
	}
	s.sig = make([]uint32, s.n())
	for i, blk := range s.fn.Blocks {
		s.sig[i] = successorMask(blk, s.n())
	}
	return nil
}

func (s *scfc) begin(d *plan.Draft) error {
	d.Before(d.First(), plan.HookBegin, plan.Cmp(scfcID, int64(d.Block.ID)), plan.Branch(ne))
	return nil
}

func (s *scfc) middle(d *plan.Draft) error {
	id := d.Block.ID
	actions := []plan.Action{plan.And(scfcSig, 1<<uint(id)), plan.Cmp(scfcSig, 0), plan.Branch(eq)}
	if !d.Block.IsExitBlock() {
		actions = append(actions, plan.Mov(scfcSig, int64(s.sig[id])))
	}
	d.Place(d.Middle(), s.orig[id] != 1, plan.HookMiddle, actions...)
	return nil
}

func (s *scfc) end(d *plan.Draft) error {
	taken, fall := successors(d.Block)
	last := d.Last()
	switch {
	case taken >= 0 && fall >= 0:
		takenRel, fallRel, err := branchCodes(d.Block, d.At(last))
		if err != nil {
			return err
		}
		d.Before(last, plan.HookEnd,
			plan.CondMov(takenRel, scfcID, int64(taken)),
			plan.CondMov(fallRel, scfcID, int64(fall)))
	case fall >= 0:
		d.After(last, plan.HookEnd, plan.Mov(scfcID, int64(fall)))
	case taken >= 0:
		d.Before(last, plan.HookEnd, plan.Mov(scfcID, int64(taken)))
	}
	return nil
}

func (s *scfc) setup(d *plan.Draft) error {
	d.Before(d.First(), plan.HookSetup, plan.Mov(scfcSig, 1), plan.Mov(scfcID, 0))
	return nil
}
