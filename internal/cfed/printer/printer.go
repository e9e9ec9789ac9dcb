// Package printer renders the text reports written next to every planned
// function: the input instruction listing, the edge listing, the block
// analysis and the protected listing of the plan.
//
// Reports for function f go to <root>/<f>. A directory left over from an
// earlier run is kept under a new name so that nothing is overwritten.
package printer

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kolkov/cfedplanner/internal/cfed/cfg"
	"github.com/kolkov/cfedplanner/internal/cfed/plan"
)

// Report file names.
const (
	ListingFile   = "RTL.txt"
	EdgesFile     = "Edges.txt"
	AnalysisFile  = "Analysis.txt"
	ProtectedFile = "RTL_Protected.txt"
)

const rule = "------------------------------------------------------------------------\n"

// Edges writes the successor edges of every block.
//
//	BB: 0
//		0 --> 1
//		0 --> 2
//
// Edges to the exit sentinel are written as "exit".
func Edges(w io.Writer, fn *cfg.Function) error {
	bw := bufio.NewWriter(w)
	for _, b := range fn.Blocks {
		fmt.Fprintf(bw, "BB: %d\n", b.ID)
		succs := append([]int(nil), b.Succs...)
		if len(succs) == 2 {
			sort.Ints(succs)
		}
		for _, s := range succs {
			fmt.Fprintf(bw, "\t%d --> %s\n", b.ID, node(s))
		}
		bw.WriteString("\n")
	}
	return bw.Flush()
}

func node(id int) string {
	switch id {
	case cfg.ExitID:
		return "exit"
	case cfg.EntryID:
		return "entry"
	}
	return fmt.Sprint(id)
}

// Stats summarizes the shape of a function.
type Stats struct {
	Edges         int
	Unconditional int
	Conditional   int
	Blocks        int
	Lengths       []int // real instructions per block
}

// Analyze counts edges and block lengths. A block with two successors
// contributes two conditional edges, any other edge is unconditional.
func Analyze(fn *cfg.Function) Stats {
	s := Stats{Blocks: len(fn.Blocks), Lengths: make([]int, len(fn.Blocks))}
	for i, b := range fn.Blocks {
		s.Edges += len(b.Succs)
		if len(b.Succs) == 2 {
			s.Conditional += 2
		} else {
			s.Unconditional += len(b.Succs)
		}
		s.Lengths[i] = cfg.CountReal(b.Insns)
	}
	return s
}

// Analysis writes the edge and block statistics of fn.
func Analysis(w io.Writer, fn *cfg.Function) error {
	s := Analyze(fn)
	bw := bufio.NewWriter(w)
	bw.WriteString("Edge Analysis:\n")
	fmt.Fprintf(bw, "\tTotal amount of edges: %d\n", s.Edges)
	fmt.Fprintf(bw, "\tNumber of unconditional edges: %d\n", s.Unconditional)
	fmt.Fprintf(bw, "\tNumber of conditional edges: %d\n", s.Conditional)
	bw.WriteString(rule)
	bw.WriteString("Block Analysis:\n")
	fmt.Fprintf(bw, "\tTotal amount of basic blocks: %d\n", s.Blocks)
	for i, n := range s.Lengths {
		fmt.Fprintf(bw, "\tLength of basic block %d: %d\n", i, n)
	}
	return bw.Flush()
}

// Listing writes the instruction list of every block of fn.
func Listing(w io.Writer, fn *cfg.Function) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "Function: %s\n", fn.Name)
	for _, b := range fn.Blocks {
		fmt.Fprintf(bw, "BB: %d\n", b.ID)
		for _, insn := range b.Insns {
			fmt.Fprintf(bw, "\t%s\n", insn)
		}
	}
	return bw.Flush()
}

// Protected writes the final item order of p. Inserted actions are
// rendered with the plan's physical registers and tagged with their hook.
// The error anchor follows the last block.
func Protected(w io.Writer, p *plan.Plan) error {
	bind := p.Binding()
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "Function: %s\n", p.Function)
	fmt.Fprintf(bw, "Technique: %s (%s)", p.Technique, p.ISA)
	if p.Selective {
		bw.WriteString(" selective")
	}
	if p.IntraBlock {
		bw.WriteString(" intra-block")
	}
	bw.WriteString("\n")
	regs := make([]string, len(p.Registers))
	for i, r := range p.Registers {
		regs[i] = fmt.Sprintf("r%d", r)
	}
	fmt.Fprintf(bw, "Registers: %s\n", strings.Join(regs, ", "))
	for _, s := range p.Splits {
		fmt.Fprintf(bw, "Split: bb%d jump %d -> cmp r%d, #0 (%d) + b%s\n", s.Block, s.Jump, s.Reg, s.Compare, s.Condition)
	}
	bw.WriteString(rule)
	for _, b := range p.Blocks {
		fmt.Fprintf(bw, "BB: %d\n", b.ID)
		for _, it := range b.Items {
			if it.Inserted() {
				fmt.Fprintf(bw, "\t+ %-40s ; %s\n", it.Action.Render(bind), it.Hook)
				continue
			}
			fmt.Fprintf(bw, "\t  %s\n", it.Insn)
		}
	}
	bw.WriteString(rule)
	fmt.Fprintf(bw, "Anchor after %s:\n", plan.Point{Block: p.Anchor.AfterBlock, After: p.Anchor.AfterInsn})
	for _, a := range p.Anchor.Actions() {
		fmt.Fprintf(bw, "\t+ %s\n", a.Render(bind))
	}
	return bw.Flush()
}

// Writer stores the reports of each function under Root.
type Writer struct {
	Root   string
	logger *zap.Logger
}

// NewWriter creates a Writer rooted at root. A nil logger disables logging.
func NewWriter(root string, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{Root: root, logger: logger}
}

// Dir prepares <Root>/<function> and returns its path. An existing
// directory is renamed with a random suffix first. The directory must lie
// strictly inside Root.
func (w *Writer) Dir(function string) (string, error) {
	dir := filepath.Join(w.Root, function)
	rel, err := filepath.Rel(w.Root, dir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("function name %q does not name a directory inside %s", function, w.Root)
	}
	if err := os.MkdirAll(w.Root, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output root %s: %w", w.Root, err)
	}
	if _, err := os.Stat(dir); err == nil {
		old := dir + "_" + uuid.New().String()[:8]
		if err := os.Rename(dir, old); err != nil {
			return "", fmt.Errorf("failed to move existing output %s: %w", dir, err)
		}
		w.logger.Debug("moved existing output", zap.String("from", dir), zap.String("to", old))
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to inspect output %s: %w", dir, err)
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output %s: %w", dir, err)
	}
	return dir, nil
}

// Write stores every report of fn. The protected listing is written only
// when p is not nil. It returns the function's output directory.
func (w *Writer) Write(fn *cfg.Function, p *plan.Plan) (string, error) {
	dir, err := w.Dir(fn.Name)
	if err != nil {
		return "", err
	}
	files := []report{
		{ListingFile, func(out io.Writer) error { return Listing(out, fn) }},
		{EdgesFile, func(out io.Writer) error { return Edges(out, fn) }},
		{AnalysisFile, func(out io.Writer) error { return Analysis(out, fn) }},
	}
	if p != nil {
		files = append(files, report{ProtectedFile, func(out io.Writer) error { return Protected(out, p) }})
	}
	for _, f := range files {
		if err := writeFile(filepath.Join(dir, f.name), f.render); err != nil {
			return "", err
		}
	}
	w.logger.Debug("reports written", zap.String("function", fn.Name), zap.String("dir", dir))
	return dir, nil
}

type report struct {
	name   string
	render func(io.Writer) error
}

func writeFile(path string, render func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()
	if err := render(f); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
