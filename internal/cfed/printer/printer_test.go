package printer

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kolkov/cfedplanner/internal/cfed/cfg"
	"github.com/kolkov/cfedplanner/internal/cfed/engine"
	"github.com/kolkov/cfedplanner/internal/cfed/plan"
)

func diamond() *cfg.Function {
	return cfg.Build("diamond",
		[][]int{{2, 1}, {3}, {3}, {cfg.ExitID}},
		[]*cfg.Insn{cfg.NoteInsn(1), cfg.SetInsn(2, 0, 1), cfg.CompareInsn(3, 0, 0), cfg.CondJumpInsn(4, cfg.EQ)},
		[]*cfg.Insn{cfg.NoteInsn(5), cfg.SetInsn(6, 1, 1), cfg.JumpInsn(7)},
		[]*cfg.Insn{cfg.NoteInsn(8), cfg.SetInsn(9, 1, 2)},
		[]*cfg.Insn{cfg.NoteInsn(10), cfg.UseInsn(11, 0), cfg.ReturnInsn(12)},
	)
}

func planned(t *testing.T, fn *cfg.Function) *plan.Plan {
	t.Helper()
	e, err := engine.New(engine.Options{Technique: "SEDSR", ISA: "cortex-m3", Seed: 1}, zaptest.NewLogger(t))
	require.NoError(t, err)
	p, err := e.Plan(fn)
	require.NoError(t, err)
	return p
}

func TestEdges(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Edges(&buf, diamond()))

	want := "BB: 0\n\t0 --> 1\n\t0 --> 2\n\n" +
		"BB: 1\n\t1 --> 3\n\n" +
		"BB: 2\n\t2 --> 3\n\n" +
		"BB: 3\n\t3 --> exit\n\n"
	assert.Equal(t, want, buf.String())
}

func TestAnalyze(t *testing.T) {
	s := Analyze(diamond())
	assert.Equal(t, Stats{Edges: 5, Unconditional: 3, Conditional: 2, Blocks: 4, Lengths: []int{3, 2, 1, 2}}, s)

	var buf bytes.Buffer
	require.NoError(t, Analysis(&buf, diamond()))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "Edge Analysis:\n\tTotal amount of edges: 5\n"))
	assert.Contains(t, out, "\tNumber of conditional edges: 2\n"+rule+"Block Analysis:\n")
	assert.Contains(t, out, "\tLength of basic block 3: 2\n")
}

func TestListing(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Listing(&buf, diamond()))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, "Function: diamond", lines[0])
	assert.Equal(t, "BB: 0", lines[1])
	assert.Equal(t, "\t1 note", lines[2])
	assert.Len(t, lines, 1+4+12)
}

func TestProtected(t *testing.T) {
	p := planned(t, diamond())

	var buf bytes.Buffer
	require.NoError(t, Protected(&buf, p))
	out := buf.String()

	assert.Contains(t, out, "Technique: SEDSR (ARMv7M)\n")
	assert.Contains(t, out, "Registers: r11\n")
	assert.Contains(t, out, "save {r11}")
	assert.Contains(t, out, "; setup")
	assert.Contains(t, out, "beq cfed_error")
	assert.Contains(t, out, "\t+ cfed_error:\n\t+ bl CFED_Detected\n")

	inserted := strings.Count(out, "\t+ ")
	assert.Equal(t, len(p.Actions())+2, inserted)
}

func TestWriterRenamesExisting(t *testing.T) {
	root := filepath.Join(t.TempDir(), "out")
	w := NewWriter(root, zaptest.NewLogger(t))
	fn := diamond()

	dir, err := w.Write(fn, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "diamond"), dir)
	for _, name := range []string{ListingFile, EdgesFile, AnalysisFile} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
	assert.NoFileExists(t, filepath.Join(dir, ProtectedFile))

	dir, err = w.Write(fn, planned(t, fn))
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, ProtectedFile))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	var moved string
	for _, e := range entries {
		if e.Name() != "diamond" {
			moved = e.Name()
		}
	}
	assert.True(t, strings.HasPrefix(moved, "diamond_"), moved)
	assert.Len(t, moved, len("diamond_")+8)
	assert.NoFileExists(t, filepath.Join(root, moved, ProtectedFile))
}

func TestWriterBadRoot(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	_, err := NewWriter(file, nil).Dir("f")
	assert.Error(t, err)
}

func TestWriterStaysInsideRoot(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "out")
	w := NewWriter(root, zaptest.NewLogger(t))

	kept, err := w.Dir("f")
	require.NoError(t, err)

	for _, name := range []string{"", ".", "..", "../escaped", "a/../../escaped"} {
		_, err := w.Dir(name)
		assert.Error(t, err, "name %q", name)
	}
	assert.DirExists(t, kept)
	assert.NoDirExists(t, filepath.Join(base, "escaped"))

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "root was moved or a sibling was created")
}
