package technique

import "github.com/kolkov/cfedplanner/internal/cfed/plan"

// SIED register roles.
const (
	siedCounter plan.Role = 0 // intra-block instruction counter
	siedSum     plan.Role = 1 // branch flag plus block signature
	siedY       plan.Role = 2 // expected sum
)

// sied implements Self-checking Instructions Error Detection. A block
// ends by loading the flag and expected value of the branch it takes; the
// successor adds its own signature to the flag and compares the two.
type sied struct {
	base
	sig        []int64
	yTaken     []int64
	yFall      []int64
	verifiable []int
}

func newSIED(b base) *sied { return &sied{base: b} }

func (s *sied) table() hooks {
	return hooks{
		calcVariables: s.calcVariables,
		intra:         s.intraBlock,
		begin:         s.begin,
		middle:        nop,
		end:           s.end,
		selBegin:      s.selBegin,
		selMiddle:     nop,
		selEnd:        s.end,
		setup:         s.setup,
		tables: func() Tables {
			return Tables{Signatures: s.sig, Aux: map[string][]int64{
				"y_taken": s.yTaken, "y_fall": s.yFall, "verifiable": ints(s.verifiable),
			}}
		},
	}
}

func (s *sied) calcVariables() error {
	n := s.n()
	s.sig = make([]int64, n)
	s.yTaken = make([]int64, n)
	s.yFall = make([]int64, n)
	s.verifiable = make([]int, n)
	for i, blk := range s.fn.Blocks {
		s.sig[i] = int64(i+1) * 5
		s.verifiable[i] = blk.VerifiableCount()
	}
	for i, blk := range s.fn.Blocks {
		if blk.IsExitBlock() {
			continue
		}
		taken, fall := successors(blk)
		switch {
		case taken >= 0 && fall >= 0:
			s.yTaken[i], s.yFall[i] = s.sig[taken]+1, s.sig[fall]
		case fall >= 0:
			s.yFall[i] = s.sig[fall]
		case taken >= 0:
			s.yTaken[i] = s.sig[taken]
		}
	}
	return nil
}

func (s *sied) intraBlock(d *plan.Draft) error {
	id := d.Block.ID
	count := s.verifiable[id]
	if count == 0 {
		return nil
	}
	done := 0
	for i := 0; i < d.Len() && done < count; i++ {
		if d.Items()[i].Inserted() || !d.At(i).IsVerifiable() {
			continue
		}
		i = d.After(i, plan.HookIntra, plan.Sub(siedCounter, 1))
		done++
	}
	d.Before(d.First(), plan.HookIntra, plan.Mov(siedCounter, int64(count)))
	return nil
}

func (s *sied) begin(d *plan.Draft) error {
	s.check(d)
	return nil
}

func (s *sied) selBegin(d *plan.Draft) error {
	if d.Block.IsExitBlock() {
		s.check(d)
	}
	return nil
}

// check verifies the counter left by the predecessor, then the branch sum.
// The sum goes after the counter reload when the block has one.
func (s *sied) check(d *plan.Draft) {
	id := d.Block.ID
	p := d.First()
	after := s.intra && s.verifiable[id] > 0
	if s.intra && id != 0 {
		p = d.Before(p, plan.HookBegin, plan.Cmp(siedCounter, 0), plan.Branch(ne))
		after = true
	}
	p = d.Place(p, after, plan.HookBegin, plan.Add(siedSum, s.sig[id]))
	d.After(p, plan.HookBegin, plan.CmpReg(siedSum, siedY), plan.Branch(ne))
}

func (s *sied) end(d *plan.Draft) error {
	if d.Block.IsExitBlock() {
		return nil
	}
	id := d.Block.ID
	last := d.Last()
	jump := d.At(last)
	switch {
	case jump != nil && jump.IsCondJump():
		taken, fall, err := branchCodes(d.Block, jump)
		if err != nil {
			return err
		}
		d.Before(last, plan.HookEnd,
			plan.CondMov(taken, siedSum, 1),
			plan.CondMov(taken, siedY, s.yTaken[id]),
			plan.CondMov(fall, siedSum, 0),
			plan.CondMov(fall, siedY, s.yFall[id]))
	case jump != nil && jump.IsJump():
		d.Before(last, plan.HookEnd, plan.Mov(siedSum, 0), plan.Mov(siedY, s.yTaken[id]))
	default:
		d.After(last, plan.HookEnd, plan.Mov(siedSum, 0), plan.Mov(siedY, s.yFall[id]))
	}
	return nil
}

func (s *sied) setup(d *plan.Draft) error {
	d.Before(d.First(), plan.HookSetup, plan.Mov(siedSum, 0), plan.Mov(siedY, s.sig[0]))
	return nil
}
