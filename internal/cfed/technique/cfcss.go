package technique

import (
	"github.com/kolkov/cfedplanner/internal/cfed/plan"
)

// CFCSS register roles.
const (
	cfcssSig plan.Role = 0 // runtime signature
	cfcssAdj plan.Role = 1 // run-time adjusting signature D
)

// path is one CFG edge with the adjusting value its source must load.
type path struct {
	start, end int
	update     uint32
}

// cfcss implements Control-Flow Checking by Software Signatures: signature
// 1<<id, differential signatures against a primary predecessor, and an
// adjusting register for blocks with several predecessors.
type cfcss struct {
	base
	sig   []uint32
	diff  []uint32
	paths []path
}

func newCFCSS(b base) *cfcss { return &cfcss{base: b} }

func (c *cfcss) table() hooks {
	return hooks{
		calcVariables: c.calcVariables,
		begin:         c.begin,
		middle:        nop,
		end:           c.end,
		setup:         c.setup,
		tables: func() Tables {
			upd := make([]int64, 0, len(c.paths))
			for _, p := range c.paths {
				upd = append(upd, int64(p.update))
			}
			return Tables{Signatures: u32s(c.sig), Aux: map[string][]int64{"diff": u32s(c.diff), "path_update": upd}}
		},
	}
}

func (c *cfcss) calcVariables() error {
	if err := c.checkBitmask(); err != nil {
		return err
	}
	n := c.n()
	c.sig = make([]uint32, n)
	c.diff = make([]uint32, n)
	c.paths = c.paths[:0]
	for i, blk := range c.fn.Blocks {
		c.sig[i] = 1 << uint(i)
		for _, s := range blk.Succs {
			c.paths = append(c.paths, path{start: i, end: s})
		}
	}

	for i, blk := range c.fn.Blocks {
		if i == 0 {
			c.diff[0] = c.sig[0]
			continue
		}
		preds := c.primaryFirst(i, blk.RealPreds())
		if len(preds) == 0 {
			c.diff[i] = c.sig[i]
			continue
		}
		primary := preds[0]
		c.diff[i] = c.sig[i] ^ c.sig[primary]
		for _, p := range preds[1:] {
			c.setUpdate(p, i, c.sig[p]^c.sig[primary])
		}
	}
	return nil
}

// primaryFirst moves a self-loop predecessor to the front.
func (c *cfcss) primaryFirst(id int, preds []int) []int {
	for i := 1; i < len(preds); i++ {
		if preds[i] == id {
			preds[0], preds[i] = preds[i], preds[0]
		}
	}
	return preds
}

func (c *cfcss) setUpdate(start, end int, v uint32) {
	for i := range c.paths {
		if c.paths[i].start == start && c.paths[i].end == end {
			c.paths[i].update = v
		}
	}
}

// Diff returns the differential signature of block id.
func (c *cfcss) Diff(id int) uint32 { return c.diff[id] }

// Update returns the adjusting value of edge start->end.
func (c *cfcss) Update(start, end int) uint32 {
	for _, p := range c.paths {
		if p.start == start && p.end == end {
			return p.update
		}
	}
	return 0
}

func (c *cfcss) begin(d *plan.Draft) error {
	blk := d.Block
	actions := []plan.Action{plan.Xor(cfcssSig, int64(c.diff[blk.ID]))}
	if len(blk.Preds) > 1 {
		actions = append(actions, plan.XorReg(cfcssSig, cfcssAdj))
	}
	actions = append(actions, plan.Cmp(cfcssSig, int64(c.sig[blk.ID])), plan.Branch(ne))
	d.Before(d.First(), plan.HookBegin, actions...)
	return nil
}

func (c *cfcss) end(d *plan.Draft) error {
	blk := d.Block
	if blk.IsExitBlock() {
		return nil
	}
	last := d.Last()
	if insn := d.At(last); insn != nil && insn.IsCondJump() {
		takenRel, fallRel, err := branchCodes(blk, insn)
		if err != nil {
			return err
		}
		var takenUpd, fallUpd uint32
		for _, p := range c.paths {
			if p.start != blk.ID {
				continue
			}
			if p.end != blk.ID+1 {
				takenUpd = p.update
			} else {
				fallUpd = p.update
			}
		}
		if takenUpd == fallUpd {
			d.Before(last, plan.HookEnd, plan.Mov(cfcssAdj, int64(takenUpd)))
			return nil
		}
		d.Before(last, plan.HookEnd,
			plan.CondMov(takenRel, cfcssAdj, int64(takenUpd)),
			plan.CondMov(fallRel, cfcssAdj, int64(fallUpd)))
		return nil
	}

	var upd uint32
	for _, p := range c.paths {
		if p.start == blk.ID {
			upd = p.update
		}
	}
	d.Before(last, plan.HookEnd, plan.Mov(cfcssAdj, int64(upd)))
	return nil
}

func (c *cfcss) setup(d *plan.Draft) error {
	d.Before(d.First(), plan.HookSetup, plan.Mov(cfcssSig, 0), plan.Mov(cfcssAdj, 0))
	return nil
}
