package technique

import "github.com/kolkov/cfedplanner/internal/cfed/plan"

const sedsrSig plan.Role = 0

// sedsr implements signature-based error detection with a single successor
// register. Compared to SCFC the block-id register and end hook are gone.
type sedsr struct {
	base
	sig []uint32
}

func newSEDSR(b base) *sedsr { return &sedsr{base: b} }

func (s *sedsr) table() hooks {
	return hooks{
		calcVariables: s.calcVariables,
		begin:         s.begin,
		middle:        s.middle,
		end:           nop,
		setup:         s.setup,
		tables:        func() Tables { return Tables{Signatures: u32s(s.sig)} },
	}
}

func (s *sedsr) calcVariables() error {
	if err := s.checkBitmask(); err != nil {
		return err
	}
	s.sig = make([]uint32, s.n())
	for i, blk := range s.fn.Blocks {
		s.sig[i] = successorMask(blk, s.n())
	}
	return nil
}

func (s *sedsr) begin(d *plan.Draft) error {
	d.Before(d.First(), plan.HookBegin,
		plan.And(sedsrSig, 1<<uint(d.Block.ID)), plan.Cmp(sedsrSig, 0), plan.Branch(eq))
	return nil
}

func (s *sedsr) middle(d *plan.Draft) error {
	if d.Block.IsExitBlock() {
		return nil
	}
	id := d.Block.ID
	d.Place(d.Middle(), s.orig[id] != 1, plan.HookMiddle, plan.Mov(sedsrSig, int64(s.sig[id])))
	return nil
}

func (s *sedsr) setup(d *plan.Draft) error {
	d.Before(d.First(), plan.HookSetup, plan.Mov(sedsrSig, 1))
	return nil
}
