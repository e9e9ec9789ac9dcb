// Package isa - Target instruction-set collaborator of the planner.
//
// The planner never emits machine instructions. This package supplies what
// the core needs to know about the target: which physical registers back the
// logical roles, the immediate ranges RACFED may use, which instruction forms
// exist (conditional execution, hardware divide, fused compare-and-branch),
// the compare-and-branch-zero normalization, and where register save/restore
// goes.
//
// Supported families:
//
//	ARMv6-M  cortex-m0, cortex-m0plus, cortex-m1 (and small-multiply variants)
//	ARMv7-M  cortex-m3, cortex-m4, cortex-m7
//	ARMv8-M  cortex-m23, cortex-m33 (recognized, not supported)
package isa

import "strings"

// Family is an ARM M-profile architecture family.
type Family int

// Families.
const (
	Unknown Family = iota
	ARMv6M
	ARMv7M
	ARMv8M
)

func (f Family) String() string {
	switch f {
	case ARMv6M:
		return "ARMv6M"
	case ARMv7M:
		return "ARMv7M"
	case ARMv8M:
		return "ARMv8M"
	}
	return "unknown"
}

var cpus = map[string]Family{
	"cortex-m0":                    ARMv6M,
	"cortex-m0plus":                ARMv6M,
	"cortex-m0plus.small-multiply": ARMv6M,
	"cortex-m0.small-multiply":     ARMv6M,
	"cortex-m1":                    ARMv6M,
	"cortex-m1.small-multiply":     ARMv6M,
	"cortex-m3":                    ARMv7M,
	"cortex-m4":                    ARMv7M,
	"cortex-m7":                    ARMv7M,
	"cortex-m23":                   ARMv8M,
	"cortex-m33":                   ARMv8M,
	"cortex-m33+nodsp":             ARMv8M,
}

// Parse resolves a family name ("ARMv7M", "armv7-m") or a CPU name
// ("cortex-m4") to a Family. Unknown names yield Unknown.
func Parse(name string) Family {
	n := strings.ToLower(strings.TrimSpace(name))
	if f, ok := cpus[n]; ok {
		return f
	}
	switch strings.ReplaceAll(n, "-", "") {
	case "armv6m":
		return ARMv6M
	case "armv7m":
		return ARMv7M
	case "armv8m":
		return ARMv8M
	}
	return Unknown
}

// Limits are RACFED's numeric bounds. Signatures are drawn from
// [1, CmpLimit], sub-random values from [0, SubRanPrevLimit), and every
// signature register value must lie strictly between Lower and Upper.
type Limits struct {
	CmpLimit        int64
	SubRanPrevLimit int64
	Lower           int64
	Upper           int64
}

// InRange reports whether v lies strictly inside the register range.
func (l Limits) InRange(v int64) bool {
	return v > l.Lower && v < l.Upper
}

// Span is the width used for intra-block deltas: Upper + |Lower|.
func (l Limits) Span() int64 {
	lower := l.Lower
	if lower < 0 {
		lower = -lower
	}
	return l.Upper + lower
}

// Capability is an instruction form a technique may need.
type Capability int

// Capabilities.
const (
	CondExec Capability = iota
	HardwareDivide
)

func (c Capability) String() string {
	if c == CondExec {
		return "conditional execution"
	}
	return "hardware divide"
}

// Target describes one ISA family.
type Target struct {
	Family Family
}

// Supported reports whether the planner can target the family.
func (f Family) Supported() bool {
	return f == ARMv6M || f == ARMv7M
}

// Registers returns the physical registers backing roles 0..n-1.
func (t Target) Registers(n int) []int {
	var regs []int
	switch t.Family {
	case ARMv6M:
		regs = []int{7, 5, 4}
	default:
		regs = []int{11, 10, 9}
	}
	if n > len(regs) {
		n = len(regs)
	}
	return append([]int(nil), regs[:n]...)
}

// MaxRoles is the number of registers a technique may claim.
const MaxRoles = 3

// Limits returns RACFED's numeric bounds for the family.
func (t Target) Limits() Limits {
	if t.Family == ARMv7M {
		return Limits{CmpLimit: 254, SubRanPrevLimit: 1500, Lower: -2341, Upper: 4095}
	}
	return Limits{CmpLimit: 254, SubRanPrevLimit: 255, Lower: 0, Upper: 255}
}

// Has reports whether the family offers an instruction form.
func (t Target) Has(c Capability) bool {
	return t.Family == ARMv7M
}

// FusedCompareBranch reports whether checks use a single compare-and-branch
// instead of compare + conditional branch.
func (t Target) FusedCompareBranch() bool {
	return t.Family == ARMv6M
}
