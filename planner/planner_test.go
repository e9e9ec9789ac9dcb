package planner

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap/zaptest"

	"github.com/kolkov/cfedplanner/internal/cfed/cfg"
	"github.com/kolkov/cfedplanner/internal/cfed/printer"
)

func diamond(name string) *Function {
	return cfg.Build(name,
		[][]int{{1, 2}, {3}, {3}, {cfg.ExitID}},
		[]*cfg.Insn{cfg.NoteInsn(1), cfg.SetInsn(2, 0, 1), cfg.CompareInsn(3, 0, 0), cfg.CondJumpInsn(4, cfg.EQ)},
		[]*cfg.Insn{cfg.NoteInsn(5), cfg.SetInsn(6, 1, 1), cfg.JumpInsn(7)},
		[]*cfg.Insn{cfg.NoteInsn(8), cfg.SetInsn(9, 1, 2)},
		[]*cfg.Insn{cfg.NoteInsn(10), cfg.UseInsn(11, 0), cfg.ReturnInsn(12)},
	)
}

// wide has more blocks than any bitmask technique accepts.
func wide() *Function {
	succs := make([][]int, 40)
	for i := range succs {
		succs[i] = []int{i + 1}
	}
	succs[len(succs)-1] = []int{cfg.ExitID}
	bodies := make([][]*cfg.Insn, len(succs))
	for i := range bodies {
		bodies[i] = []*cfg.Insn{cfg.NoteInsn(2*i + 1), cfg.SetInsn(2*i+2, 0, int64(i))}
	}
	return cfg.Build("wide", succs, bodies...)
}

func newPlanner(t *testing.T, mutate func(*Config)) *Planner {
	t.Helper()
	conf := DefaultConfig()
	conf.OutputDir = filepath.Join(t.TempDir(), "out")
	if mutate != nil {
		mutate(&conf)
	}
	p, err := New(conf, zaptest.NewLogger(t))
	require.NoError(t, err)
	return p
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	conf := DefaultConfig()
	conf.Technique = "NOPE"
	conf.SelectiveLevel = 3

	_, err := New(conf, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.Equal(t, ErrConfiguration, Kind(err))
}

func TestRun(t *testing.T) {
	p := newPlanner(t, nil)

	skipped := diamond("skipped")
	skipped.NoProtection = true
	rep, err := p.Run([]*Function{diamond("main"), skipped})
	require.NoError(t, err)

	require.Len(t, rep.Results, 2)
	assert.Equal(t, 1, rep.Planned())
	assert.True(t, rep.Results[1].Skipped)
	assert.NotContains(t, rep.Dirs, "skipped")

	dir := rep.Dirs["main"]
	require.NotEmpty(t, dir)
	for _, name := range []string{printer.ListingFile, printer.EdgesFile, printer.AnalysisFile, printer.ProtectedFile} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
}

func TestRunKeepsGoingAfterFailure(t *testing.T) {
	p := newPlanner(t, func(c *Config) { c.Technique = "SEDSR" })

	rep, err := p.Run([]*Function{wide(), diamond("main")})
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 1)
	assert.Equal(t, ErrConstraintViolation, Kind(err))

	assert.Nil(t, rep.Results[0].Plan)
	assert.NotNil(t, rep.Results[1].Plan)

	// diagnostics only for the failed function
	assert.FileExists(t, filepath.Join(rep.Dirs["wide"], printer.EdgesFile))
	assert.NoFileExists(t, filepath.Join(rep.Dirs["wide"], printer.ProtectedFile))
	assert.FileExists(t, filepath.Join(rep.Dirs["main"], printer.ProtectedFile))
}

func TestRunFile(t *testing.T) {
	data, err := cfg.Marshal(diamond("a"), diamond("b"))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "unit.cfg.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	p := newPlanner(t, func(c *Config) {
		c.Technique = "SIED"
		c.Function = "b"
	})
	rep, err := p.RunFile(path)
	require.NoError(t, err)
	assert.True(t, rep.Results[0].Skipped)
	assert.Equal(t, 1, rep.Planned())
	assert.Len(t, rep.Dirs, 1)

	_, err = p.RunFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestGetInfo(t *testing.T) {
	info := GetInfo()
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, cfg.FormatVersion, info.CFGFormat)
	assert.Len(t, info.Techniques, 9)
	assert.Equal(t, "YACCA_Fast", info.Techniques[8])
}

func TestKind(t *testing.T) {
	assert.Nil(t, Kind(nil))
	assert.Nil(t, Kind(errors.New("plain")))
}

func TestShippedExamples(t *testing.T) {
	conf, err := LoadConfig(filepath.Join("..", "examples", "cfed.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "SIED", conf.Technique)
	assert.True(t, conf.IntraBlock())
	conf.OutputDir = t.TempDir()

	p, err := New(conf, zaptest.NewLogger(t))
	require.NoError(t, err)
	rep, err := p.RunFile(filepath.Join("..", "examples", "sum.cfg.yaml"))
	require.NoError(t, err)

	require.Len(t, rep.Results, 2)
	assert.NotNil(t, rep.Results[0].Plan)
	assert.True(t, rep.Results[1].Skipped)
}

func TestRunRejectsUnsafeNames(t *testing.T) {
	base := t.TempDir()
	p := newPlanner(t, func(c *Config) { c.OutputDir = filepath.Join(base, "out") })

	rep, err := p.Run([]*Function{diamond("f"), diamond(""), diamond("../escaped")})
	require.Error(t, err)
	assert.Equal(t, ErrConfiguration, Kind(err))

	assert.NotNil(t, rep.Results[0].Plan)
	assert.NotNil(t, rep.Results[1].Err)
	assert.NotNil(t, rep.Results[2].Err)

	assert.Equal(t, map[string]string{"f": filepath.Join(base, "out", "f")}, rep.Dirs)
	assert.FileExists(t, filepath.Join(rep.Dirs["f"], printer.ProtectedFile))
	assert.NoDirExists(t, filepath.Join(base, "escaped"))
}
