package cfg

import "testing"

// TestLocators tests the real-instruction locators on typical block shapes.
func TestLocators(t *testing.T) {
	tests := []struct {
		name     string
		seq      []*Insn
		first    int
		middle   int
		last     int
		lastSafe int
	}{
		{
			name:     "empty block",
			seq:      []*Insn{NoteInsn(1)},
			first:    Head,
			middle:   -1,
			last:     Head,
			lastSafe: Head,
		},
		{
			name:     "single move",
			seq:      []*Insn{NoteInsn(1), SetInsn(2, 0, 1)},
			first:    1,
			middle:   1,
			last:     1,
			lastSafe: 1,
		},
		{
			name:     "single return",
			seq:      []*Insn{NoteInsn(1), ReturnInsn(2)},
			first:    1,
			middle:   0,
			last:     1,
			lastSafe: 0,
		},
		{
			name: "compare and branch",
			seq: []*Insn{
				NoteInsn(1), SetInsn(2, 0, 1), SetInsn(3, 1, 1), CompareInsn(4, 1, 0), CondJumpInsn(5, NE),
			},
			first:    1,
			middle:   2, // count 4, second real is a move
			last:     4,
			lastSafe: 2,
		},
		{
			name: "middle lands on compare",
			seq: []*Insn{
				NoteInsn(1), SetInsn(2, 0, 1), CompareInsn(3, 1, 0), CondJumpInsn(4, NE), JumpInsn(5),
			},
			first:    1,
			middle:   1,
			last:     4,
			lastSafe: 3,
		},
		{
			name:     "middle walks back over jumps",
			seq:      []*Insn{NoteInsn(1), SetInsn(2, 0, 1), JumpInsn(3)},
			first:    1,
			middle:   1,
			last:     2,
			lastSafe: 1,
		},
		{
			name:     "cond jump without compare",
			seq:      []*Insn{SetInsn(1, 0, 1), CBZInsn(2, EQ, 0)},
			first:    0,
			middle:   0,
			last:     1,
			lastSafe: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FirstReal(tt.seq); got != tt.first {
				t.Errorf("FirstReal() = %d, want %d", got, tt.first)
			}
			if got := MiddleReal(tt.seq); got != tt.middle {
				t.Errorf("MiddleReal() = %d, want %d", got, tt.middle)
			}
			if got := LastReal(tt.seq); got != tt.last {
				t.Errorf("LastReal() = %d, want %d", got, tt.last)
			}
			if got := LastRealSafe(tt.seq); got != tt.lastSafe {
				t.Errorf("LastRealSafe() = %d, want %d", got, tt.lastSafe)
			}
		})
	}
}

// TestNthReal tests 1-based real instruction lookup.
func TestNthReal(t *testing.T) {
	seq := []*Insn{NoteInsn(1), SetInsn(2, 0, 0), {ID: 3, Kind: KindDebug}, SetInsn(4, 0, 0)}
	if got := NthReal(seq, 2); got != 3 {
		t.Errorf("NthReal(2) = %d, want 3", got)
	}
	if got := NthReal(seq, 0); got != Head {
		t.Errorf("NthReal(0) = %d, want Head", got)
	}
	if got := NthReal(seq, 5); got != Head {
		t.Errorf("NthReal(5) = %d, want Head", got)
	}
}
