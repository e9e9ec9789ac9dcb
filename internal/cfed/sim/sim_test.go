package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolkov/cfedplanner/internal/cfed/cfg"
	"github.com/kolkov/cfedplanner/internal/cfed/plan"
)

func diamond() *cfg.Function {
	return cfg.Build("diamond",
		[][]int{{1, 2}, {3}, {3}, {cfg.ExitID}},
		[]*cfg.Insn{cfg.NoteInsn(1), cfg.SetInsn(2, 0, 1), cfg.CompareInsn(3, 0, 0), cfg.CondJumpInsn(4, cfg.EQ)},
		[]*cfg.Insn{cfg.NoteInsn(5), cfg.SetInsn(6, 1, 1), cfg.JumpInsn(7)},
		[]*cfg.Insn{cfg.NoteInsn(8), cfg.SetInsn(9, 1, 2)},
		[]*cfg.Insn{cfg.NoteInsn(10), cfg.ReturnInsn(11)},
	)
}

func TestCheckOnPath(t *testing.T) {
	b := plan.NewBuilder(diamond())
	d0 := b.Draft(0)
	d0.After(d0.First(), plan.HookBegin, plan.Mov(0, 5))
	d3 := b.Draft(3)
	d3.Before(d3.First(), plan.HookBegin, plan.Cmp(0, 5), plan.Branch(cfg.NE))
	p := b.Build(plan.Plan{Roles: 1})

	res, err := Run(p, 0, 2, 3)
	require.NoError(t, err)
	assert.False(t, res.Detected)
	assert.Equal(t, -1, res.Block)
	assert.Equal(t, []uint32{5}, res.Regs)

	res, err = Run(p, 3)
	require.NoError(t, err)
	assert.True(t, res.Detected)
	assert.Equal(t, 3, res.Block)
}

func TestBranchOutcomeDrivesConditionalActions(t *testing.T) {
	b := plan.NewBuilder(diamond())
	d0 := b.Draft(0)
	d0.Before(d0.Last(), plan.HookEnd, plan.CondMov(cfg.EQ, 0, 7), plan.CondMov(cfg.NE, 0, 9))
	p := b.Build(plan.Plan{Roles: 1})

	// block 2 is the taken target of the eq jump
	res, err := Run(p, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), res.Regs[0])

	res, err = Run(p, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(9), res.Regs[0])
}

func TestSyntheticCompareOverridesBranchFlags(t *testing.T) {
	b := plan.NewBuilder(diamond())
	d0 := b.Draft(0)
	d0.Before(d0.Last(), plan.HookEnd, plan.Mov(0, 3), plan.Cmp(0, 4), plan.CondAdd(cfg.LTU, 0, 10))
	p := b.Build(plan.Plan{Roles: 1})

	res, err := Run(p, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(13), res.Regs[0])
}

func TestSkipModelsJumpIntoBlock(t *testing.T) {
	b := plan.NewBuilder(diamond())
	d2 := b.Draft(2)
	d2.Before(d2.First(), plan.HookBegin, plan.Mov(0, 1))
	d2.After(d2.Last(), plan.HookEnd, plan.CmpBranch(cfg.NE, 0, 1))
	p := b.Build(plan.Plan{Roles: 1})

	res, err := RunSteps(p, Step{Block: 2})
	require.NoError(t, err)
	assert.False(t, res.Detected)

	res, err = RunSteps(p, Step{Block: 2, Skip: 2})
	require.NoError(t, err)
	assert.True(t, res.Detected)
}

func TestArithmetic(t *testing.T) {
	b := plan.NewBuilder(diamond())
	d2 := b.Draft(2)
	d2.After(d2.Last(), plan.HookEnd,
		plan.Mov(0, 12), plan.Mov(1, 0),
		plan.UDiv(2, 0, 1), // divide by zero
		plan.Rotate(1, 0, 30),
		plan.Not(0),
	)
	p := b.Build(plan.Plan{Roles: 3})

	res, err := Run(p, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint32{^uint32(12), 3, 0}, res.Regs)
}

func TestErrors(t *testing.T) {
	b := plan.NewBuilder(diamond())
	d2 := b.Draft(2)
	d2.After(d2.Last(), plan.HookEnd, plan.CondMov(cfg.EQ, 0, 1))
	p := b.Build(plan.Plan{Roles: 1})

	_, err := Run(p, 7)
	assert.Error(t, err)

	// block 2 has no conditional jump to read flags from
	_, err = Run(p, 2)
	assert.Error(t, err)
}
