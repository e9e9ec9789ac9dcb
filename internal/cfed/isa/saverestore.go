package isa

import (
	"github.com/kolkov/cfedplanner/internal/cfed/plan"
)

// SaveRestore preserves the claimed roles across the function: one save at
// the very start of the entry block and one restore before the last real
// instruction of every exit block. It runs after every other insertion.
func (t Target) SaveRestore(b *plan.Builder, roles int) {
	if roles == 0 {
		return
	}
	list := make([]plan.Role, roles)
	for i := range list {
		list[i] = plan.Role(i)
	}
	b.Draft(0).After(-1, plan.HookSave, plan.Action{Op: plan.OpSave, Roles: list})

	for _, blk := range b.Function().Blocks {
		if !blk.IsExitBlock() {
			continue
		}
		d := b.Draft(blk.ID)
		d.Before(d.Last(), plan.HookRestore, plan.Action{Op: plan.OpRestore, Roles: list})
	}
}
