package cfg

// Head is the locator result meaning "the block head": inserting after it
// (or before it) places code at the very start of the block.
const Head = -1

// CountReal returns the number of real instructions in seq.
func CountReal(seq []*Insn) int {
	n := 0
	for _, insn := range seq {
		if insn.IsReal() {
			n++
		}
	}
	return n
}

// FirstReal returns the index of the first real instruction, or Head.
func FirstReal(seq []*Insn) int {
	for i, insn := range seq {
		if insn.IsReal() {
			return i
		}
	}
	return Head
}

// LastReal returns the index of the last real instruction, or Head.
func LastReal(seq []*Insn) int {
	for i := len(seq) - 1; i >= 0; i-- {
		if seq[i].IsReal() {
			return i
		}
	}
	return Head
}

// PrevReal returns the index of the closest real instruction before i.
func PrevReal(seq []*Insn, i int) int {
	for j := i - 1; j >= 0; j-- {
		if seq[j].IsReal() {
			return j
		}
	}
	return Head
}

// NthReal returns the index of the n-th (1-based) real instruction. n <= 0
// yields Head.
func NthReal(seq []*Insn, n int) int {
	if n <= 0 {
		return Head
	}
	count := 0
	for i, insn := range seq {
		if insn.IsReal() {
			count++
			if count == n {
				return i
			}
		}
	}
	return Head
}

// MiddleReal returns the middle insertion anchor of seq.
//
// The real-instruction count is halved, then the walk steps back over jumps
// and conditionally executed instructions. A compare candidate is replaced by
// the node before it so nothing lands between a compare and its consumer.
// A single-instruction sequence uses that instruction unless it is a return.
//
// Code inserted after the returned index is in the middle of the block.
func MiddleReal(seq []*Insn) int {
	total := CountReal(seq)
	if total == 1 {
		idx := NthReal(seq, 1)
		if seq[idx].IsReturn() {
			return idx - 1
		}
		return idx
	}
	idx := NthReal(seq, total/2)
	for idx != Head && (seq[idx].IsJump() || seq[idx].IsCondExec()) {
		idx = PrevReal(seq, idx)
	}
	if idx != Head && seq[idx].IsCompare() {
		idx--
	}
	return idx
}

// LastRealSafe returns the last index after which code can be inserted
// without separating a terminator from its setup: before a trailing return
// or unconditional jump, and before the compare governing a conditional jump.
// When a conditional jump has no compare in the block the index before the
// jump is used.
func LastRealSafe(seq []*Insn) int {
	last := LastReal(seq)
	if last == Head {
		return Head
	}
	insn := seq[last]
	switch {
	case insn.IsReturn():
		return last - 1
	case insn.IsJump() && !insn.IsCondJump():
		return last - 1
	case insn.IsJump():
		for i := last - 1; i >= 0; i-- {
			if seq[i].IsCompare() {
				return i - 1
			}
		}
		return last - 1
	}
	return last
}
