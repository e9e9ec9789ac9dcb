package technique

import (
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolkov/cfedplanner/internal/cfed/cfg"
	"github.com/kolkov/cfedplanner/internal/cfed/isa"
	"github.com/kolkov/cfedplanner/internal/cfed/plan"
	"github.com/kolkov/cfedplanner/internal/cfed/planerr"
)

var (
	v6m = isa.Target{Family: isa.ARMv6M}
	v7m = isa.Target{Family: isa.ARMv7M}
)

func diamond() *cfg.Function {
	return cfg.Build("diamond",
		[][]int{{1, 2}, {3}, {3}, {cfg.ExitID}},
		[]*cfg.Insn{cfg.NoteInsn(1), cfg.SetInsn(2, 0, 1), cfg.CompareInsn(3, 0, 0), cfg.CondJumpInsn(4, cfg.EQ)},
		[]*cfg.Insn{cfg.NoteInsn(5), cfg.SetInsn(6, 1, 1), cfg.JumpInsn(7)},
		[]*cfg.Insn{cfg.NoteInsn(8), cfg.SetInsn(9, 1, 2)},
		[]*cfg.Insn{cfg.NoteInsn(10), cfg.UseInsn(11, 0), cfg.ReturnInsn(12)},
	)
}

// chain builds n blocks in a line, the last one returning.
func chain(n int) *cfg.Function {
	succs := make([][]int, n)
	bodies := make([][]*cfg.Insn, n)
	id := 1
	for i := range succs {
		succs[i] = []int{i + 1}
		bodies[i] = []*cfg.Insn{cfg.NoteInsn(id), cfg.SetInsn(id+1, 0, int64(i))}
		id += 2
	}
	succs[n-1] = []int{cfg.ExitID}
	bodies[n-1] = append(bodies[n-1], cfg.ReturnInsn(id))
	return cfg.Build("chain", succs, bodies...)
}

// prepare constructs name and runs CalcVariables on fn.
func prepare(t *testing.T, name string, target isa.Target, fn *cfg.Function, opts Options) (*Technique, error) {
	t.Helper()
	tech, err := New(name, target, opts)
	require.NoError(t, err)
	b := plan.NewBuilder(fn)
	orig := make([]int, len(fn.Blocks))
	for i, blk := range fn.Blocks {
		orig[i] = blk.OriginalCount()
	}
	tech.Attach(b, orig)
	return tech, tech.CalcVariables()
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		name string
		want Kind
		ok   bool
	}{
		{"RACFED", RACFED, true},
		{"yacca_fast", YACCAFast, true},
		{"Sied", SIED, true},
		{"CFCSS2", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseKind(tt.name)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("ParseKind(%q) = %v, %v; want %v, %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
	assert.Equal(t, "YACCA_Fast", YACCAFast.String())
	assert.Len(t, Kinds(), 9)
}

// TestFactoryRoles tests the register role count of every technique.
func TestFactoryRoles(t *testing.T) {
	want := map[Kind]int{
		CFCSS: 2, RACFED: 1, SCFC: 2, SEDSR: 1, ECCA: 2,
		RSCFC: 2, SIED: 3, YACCA: 3, YACCAFast: 3,
	}
	for _, k := range Kinds() {
		tech, err := New(k.String(), v7m, Options{})
		require.NoError(t, err, k)
		assert.Equal(t, want[k], tech.Roles(), k)
		assert.Equal(t, k, tech.Kind())
	}
}

func TestFactoryErrors(t *testing.T) {
	tests := []struct {
		name   string
		tech   string
		target isa.Target
		opts   Options
		kind   error
	}{
		{"unknown technique", "CFCSS2", v7m, Options{}, planerr.ErrConfiguration},
		{"unknown family", "RACFED", isa.Target{}, Options{}, planerr.ErrConfiguration},
		{"v8m recognized only", "RACFED", isa.Target{Family: isa.ARMv8M}, Options{}, planerr.ErrConfiguration},
		{"cfcss needs condexec", "CFCSS", v6m, Options{}, planerr.ErrConfiguration},
		{"sied needs condexec", "SIED", v6m, Options{}, planerr.ErrConfiguration},
		{"ecca needs divide", "ECCA", v6m, Options{}, planerr.ErrConfiguration},
		{"yacca needs divide", "YACCA", v6m, Options{}, planerr.ErrConfiguration},
		{"ecca intra", "ECCA", v7m, Options{IntraBlock: true}, planerr.ErrUnsupportedMode},
		{"scfc selective", "SCFC", v7m, Options{Selective: true}, planerr.ErrUnsupportedMode},
		{"yacca selective", "YACCA", v7m, Options{Selective: true}, planerr.ErrUnsupportedMode},
		{"cfcss intra", "CFCSS", v7m, Options{IntraBlock: true}, planerr.ErrUnsupportedMode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.tech, tt.target, tt.opts)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}

// TestFactoryModes tests which techniques accept the optional modes.
func TestFactoryModes(t *testing.T) {
	for _, name := range []string{"RACFED", "RSCFC", "SIED"} {
		tech, err := New(name, v7m, Options{IntraBlock: true, Selective: true})
		require.NoError(t, err, name)
		assert.True(t, tech.Supports(ModeIntraBlock))
		assert.True(t, tech.Supports(ModeSelective))
	}
	_, err := New("RACFED", v6m, Options{IntraBlock: true, Selective: true})
	require.NoError(t, err)
	_, err = New("RSCFC", v6m, Options{})
	require.NoError(t, err)
}

// TestUnsupportedHook tests that calling a hook the technique lacks
// fails without touching the draft.
func TestUnsupportedHook(t *testing.T) {
	fn := diamond()
	tech, err := prepare(t, "SCFC", v7m, fn, Options{})
	require.NoError(t, err)

	err = tech.InsertSelBegin(1)
	assert.ErrorIs(t, err, planerr.ErrUnsupportedMode)
	err = tech.InsertIntraBlockJumpDetection(1)
	assert.ErrorIs(t, err, planerr.ErrUnsupportedMode)
	assert.Equal(t, len(fn.Blocks[1].Insns), tech.base.b.Draft(1).Len())
}

// TestCFCSSDiamond tests the differential signatures of a diamond whose
// merge block takes B1 as primary predecessor.
func TestCFCSSDiamond(t *testing.T) {
	tech, err := prepare(t, "CFCSS", v7m, diamond(), Options{})
	require.NoError(t, err)

	tables := tech.Tables()
	assert.Equal(t, []int64{1, 2, 4, 8}, tables.Signatures)
	assert.Equal(t, []int64{1, 3, 5, 10}, tables.Aux["diff"])
	// Edges in order: 0->1, 0->2, 1->3, 2->3, 3->exit.
	assert.Equal(t, []int64{0, 0, 0, 6, 0}, tables.Aux["path_update"])
}

// TestCFCSSSelfLoop tests that a self-loop predecessor becomes primary.
func TestCFCSSSelfLoop(t *testing.T) {
	fn := cfg.Build("loop",
		[][]int{{1}, {1, 2}, {cfg.ExitID}},
		[]*cfg.Insn{cfg.NoteInsn(1), cfg.SetInsn(2, 0, 0)},
		[]*cfg.Insn{cfg.NoteInsn(3), cfg.CompareInsn(4, 0, 9), cfg.CondJumpInsn(5, cfg.NE)},
		[]*cfg.Insn{cfg.NoteInsn(6), cfg.ReturnInsn(7)},
	)
	tech, err := prepare(t, "CFCSS", v7m, fn, Options{})
	require.NoError(t, err)
	diff := tech.Tables().Aux["diff"]
	// sig(1) ^ sig(1): the loop edge is primary, entry from 0 adjusts.
	assert.Equal(t, int64(0), diff[1])
}

func TestBitmaskCap(t *testing.T) {
	for _, name := range []string{"CFCSS", "SCFC", "SEDSR", "RSCFC"} {
		t.Run(name, func(t *testing.T) {
			_, err := prepare(t, name, v7m, chain(33), Options{})
			require.Error(t, err)
			assert.ErrorIs(t, err, planerr.ErrConstraintViolation)

			_, err = prepare(t, name, v7m, chain(32), Options{})
			assert.NoError(t, err)
		})
	}
}

func TestRACFEDSignatures(t *testing.T) {
	for _, target := range []isa.Target{v6m, v7m} {
		t.Run(target.Family.String(), func(t *testing.T) {
			lim := target.Limits()
			tech, err := prepare(t, "RACFED", target, chain(40), Options{Rand: rand.New(rand.NewPCG(1, 2))})
			require.NoError(t, err)
			tables := tech.Tables()

			seenSig := map[int64]bool{}
			seenSum := map[int64]bool{}
			for i, sig := range tables.Signatures {
				srp := tables.Aux["sub_ran_prev"][i]
				assert.True(t, sig >= 1 && sig <= lim.CmpLimit, "sig %d out of range", sig)
				assert.True(t, srp >= 0 && srp < lim.SubRanPrevLimit, "srp %d out of range", srp)
				assert.True(t, lim.InRange(sig+srp), "sum %d out of range", sig+srp)
				assert.False(t, seenSig[sig], "duplicate signature %d", sig)
				assert.False(t, seenSum[sig+srp], "duplicate sum %d", sig+srp)
				seenSig[sig] = true
				seenSum[sig+srp] = true
			}
		})
	}
}

// TestRACFEDDeterministic tests that equal seeds give equal tables.
func TestRACFEDDeterministic(t *testing.T) {
	run := func() Tables {
		tech, err := prepare(t, "RACFED", v7m, chain(12), Options{Rand: rand.New(rand.NewPCG(7, 7))})
		require.NoError(t, err)
		return tech.Tables()
	}
	if diff := cmp.Diff(run(), run()); diff != "" {
		t.Errorf("tables differ (-first +second):\n%s", diff)
	}
}

func TestRACFEDTooManyBlocks(t *testing.T) {
	_, err := prepare(t, "RACFED", v7m, chain(255), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, planerr.ErrConstraintViolation)
}

func TestPrimes(t *testing.T) {
	assert.Equal(t, []uint32{5, 7, 11, 13, 17, 19}, primes(6))
	assert.Empty(t, primes(0))
}

func TestECCANext(t *testing.T) {
	tech, err := prepare(t, "ECCA", v7m, diamond(), Options{})
	require.NoError(t, err)
	tables := tech.Tables()
	assert.Equal(t, []int64{5, 7, 11, 13}, tables.Signatures)
	assert.Equal(t, []int64{7, 0, 13, 0}, tables.Aux["next1"])
	assert.Equal(t, []int64{11, 13, 0, 0}, tables.Aux["next2"])
}

func TestSIEDBranchValues(t *testing.T) {
	tech, err := prepare(t, "SIED", v7m, diamond(), Options{})
	require.NoError(t, err)
	tables := tech.Tables()
	assert.Equal(t, []int64{5, 10, 15, 20}, tables.Signatures)
	assert.Equal(t, []int64{16, 20, 0, 0}, tables.Aux["y_taken"])
	assert.Equal(t, []int64{10, 0, 20, 0}, tables.Aux["y_fall"])
	assert.Equal(t, []int64{2, 1, 1, 0}, tables.Aux["verifiable"])
}

func TestRSCFCSignatures(t *testing.T) {
	tech, err := prepare(t, "RSCFC", v7m, diamond(), Options{})
	require.NoError(t, err)
	tables := tech.Tables()
	assert.Equal(t, []int64{16 | 2 | 4, 16 | 8, 16 | 8, 16}, tables.Signatures)
	assert.Equal(t, []int64{1, 2, 4, 8}, tables.Aux["locator"])
}

func TestYACCATables(t *testing.T) {
	tech, err := prepare(t, "YACCA", v7m, diamond(), Options{})
	require.NoError(t, err)
	tables := tech.Tables()
	m1 := tables.Aux["m1"]
	// Single-predecessor blocks and block 0 skip the AND.
	assert.Equal(t, int64(noM1), m1[0])
	assert.Equal(t, int64(noM1), m1[1])
	assert.Equal(t, int64(noM1), m1[2])
	assert.Equal(t, int64(closure([]uint32{5, 7, 11, 13}, []int{1, 2})), m1[3])
	assert.Equal(t, int64(yaccaEntryM2), tables.Aux["m2"][0])
	assert.Equal(t, []int64{0, 5, 5, 7 * 11}, tables.Aux["previous"])

	// Both predecessors of the merge block agree under M1, so one M2
	// serves both incoming edges.
	m := uint32(m1[3])
	assert.Equal(t, uint32(7)&m, uint32(11)&m)
}

// TestYACCAClosure pins the M1 fold. Each step xors in the next signature and
// inverts within the bit length, so the result is not the bitwise AND of the
// inputs: 2^4=6, 6^7=1, 1^8=9, 9^15=6.
func TestYACCAClosure(t *testing.T) {
	sigs := []uint32{2, 4, 8}
	assert.Equal(t, uint32(6), closure(sigs, []int{0, 1, 2}))
	assert.Equal(t, uint32(1), closure(sigs, []int{0, 1}))
	assert.Equal(t, sigs[2], closure(sigs, []int{2}))

	// every inversion mask of the fold has no gap
	m := sigs[0]
	for _, s := range sigs[1:] {
		m ^= s
		mask := xorMask(m)
		assert.Zero(t, mask&(mask+1), "mask %#x has a gap", mask)
		m ^= mask
	}
	assert.Equal(t, uint32(6), m)

	for _, v := range []uint32{0, 1, 2, 6, 9, 0x80000000, 0xffffffff} {
		mask := xorMask(v)
		assert.GreaterOrEqual(t, mask, v)
		// Contiguous: mask+1 is a power of two (or wraps to zero).
		assert.Zero(t, mask&(mask+1), "mask %#x has a gap", mask)
	}
}

func TestYACCAOverflow(t *testing.T) {
	succs := [][]int{{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}}
	for i := 1; i <= 10; i++ {
		succs = append(succs, []int{11})
	}
	succs = append(succs, []int{cfg.ExitID})
	_, err := prepare(t, "YACCA", v7m, cfg.Build("switch", succs), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, planerr.ErrConstraintViolation)

	tech, err := prepare(t, "YACCA_Fast", v7m, cfg.Build("switch", succs), Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(10), tech.Tables().Aux["previous_count"][11])
}
