package isa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolkov/cfedplanner/internal/cfed/cfg"
	"github.com/kolkov/cfedplanner/internal/cfed/plan"
)

// TestParse tests family and CPU name resolution.
func TestParse(t *testing.T) {
	tests := []struct {
		name string
		want Family
	}{
		{"cortex-m0", ARMv6M},
		{"Cortex-M0plus", ARMv6M},
		{"cortex-m4", ARMv7M},
		{"ARMv7M", ARMv7M},
		{"armv6-m", ARMv6M},
		{"cortex-m33", ARMv8M},
		{"x86", Unknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Parse(tt.name), tt.name)
	}
}

// TestTarget tests that only ARMv6-M and ARMv7-M are supported, and their
// register and instruction capabilities.
func TestTarget(t *testing.T) {
	assert.False(t, ARMv8M.Supported())
	assert.False(t, Unknown.Supported())

	v6 := Target{Family: ARMv6M}
	assert.True(t, v6.Family.Supported())
	assert.Equal(t, []int{7, 5}, v6.Registers(2))
	assert.True(t, v6.FusedCompareBranch())
	assert.False(t, v6.Has(CondExec))

	v7 := Target{Family: ARMv7M}
	assert.True(t, v7.Family.Supported())
	assert.Equal(t, []int{11, 10, 9}, v7.Registers(3))
	assert.True(t, v7.Has(HardwareDivide))
}

// TestLimits tests RACFED bounds per family.
func TestLimits(t *testing.T) {
	v7 := Target{Family: ARMv7M}.Limits()
	assert.Equal(t, int64(6436), v7.Span())
	assert.True(t, v7.InRange(-2340))
	assert.False(t, v7.InRange(4095))

	v6 := Target{Family: ARMv6M}.Limits()
	assert.Equal(t, int64(255), v6.Span())
	assert.False(t, v6.InRange(0))
	assert.True(t, v6.InRange(254))
}

// TestNormalizeBranches tests CBZ splitting on ARMv7-M only.
func TestNormalizeBranches(t *testing.T) {
	fn := cfg.Build("f",
		[][]int{{1, 2}, {2}, {cfg.ExitID}},
		[]*cfg.Insn{cfg.NoteInsn(1), cfg.SetInsn(2, 3, 0), cfg.CBZInsn(3, cfg.NE, 3)},
		[]*cfg.Insn{cfg.SetInsn(4, 0, 0)},
		[]*cfg.Insn{cfg.ReturnInsn(5)},
	)

	same, splits := Target{Family: ARMv6M}.NormalizeBranches(fn)
	assert.Same(t, fn, same)
	assert.Empty(t, splits)

	out, splits := Target{Family: ARMv7M}.NormalizeBranches(fn)
	require.Len(t, splits, 1)
	assert.Equal(t, plan.Split{Block: 0, Jump: 3, Compare: 6, Reg: 3, Condition: cfg.NE}, splits[0])

	insns := out.Blocks[0].Insns
	require.Len(t, insns, 4)
	assert.True(t, insns[2].IsCompare())
	assert.True(t, insns[3].IsCondJump())
	assert.False(t, insns[3].IsCBZ())
	assert.True(t, fn.Blocks[0].Insns[2].IsCBZ(), "input must stay untouched")
}

// TestSaveRestore tests save placement at entry and restores at exits.
func TestSaveRestore(t *testing.T) {
	fn := cfg.Build("f",
		[][]int{{1, 2}, {cfg.ExitID}, {cfg.ExitID}},
		[]*cfg.Insn{cfg.SetInsn(1, 0, 0), cfg.CompareInsn(2, 0, 0), cfg.CondJumpInsn(3, cfg.EQ)},
		[]*cfg.Insn{cfg.ReturnInsn(4)},
		[]*cfg.Insn{cfg.SetInsn(5, 0, 1), cfg.ReturnInsn(6)},
	)
	b := plan.NewBuilder(fn)
	Target{Family: ARMv7M}.SaveRestore(b, 2)
	p := b.Build(plan.Plan{})

	assert.Equal(t, 1, p.Count(plan.HookSave))
	assert.Equal(t, 2, p.Count(plan.HookRestore))
	assert.Equal(t, plan.OpSave, p.Blocks[0].Items[0].Action.Op)
	assert.Equal(t, plan.OpRestore, p.Blocks[2].Items[1].Action.Op)
	assert.Equal(t, []plan.Role{0, 1}, p.Blocks[2].Items[1].Action.Roles)
}
