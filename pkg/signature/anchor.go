package signature

import (
	"github.com/blacktop/ureflect/pkg/process"
)

// Anchor locates a global through a RIP-relative instruction.
type Anchor struct {
	// The pattern matching the instruction sequence.
	Pattern Signature

	// Offset from the start of the match to the 4-byte signed displacement.
	Displacement uint64

	// Bytes between the end of the displacement field and the end of the
	// instruction; 4 for a plain RIP-relative operand, 8 when an imm32 follows.
	InstructionEnd uint64
}

// NewAnchor parses pattern and returns an Anchor; it panics on a malformed pattern.
func NewAnchor(pattern string, displacement, instructionEnd uint64) Anchor {
	return Anchor{
		Pattern:        MustParse(pattern),
		Displacement:   displacement,
		InstructionEnd: instructionEnd,
	}
}

// Target returns the absolute address encoded by a displacement disp read at
// match+Displacement.
func (a Anchor) Target(match process.Address, disp int32) process.Address {
	field := match.Add(a.Displacement)
	return process.Address(int64(field) + int64(a.InstructionEnd) + int64(disp))
}

// Resolve scans [base, base+size) for the anchor and decodes the address it references.
func (a Anchor) Resolve(r process.Reader, base process.Address, size uint64) (process.Address, bool) {
	match, ok := a.Pattern.Scan(r, base, size)
	if !ok {
		return 0, false
	}
	disp, err := process.ReadInt32(r, match.Add(a.Displacement))
	if err != nil {
		return 0, false
	}
	return a.Target(match, disp), true
}

// FirstMatch tries each anchor in order and returns the first address resolved.
func FirstMatch(r process.Reader, base process.Address, size uint64, anchors ...Anchor) (process.Address, int, bool) {
	for i, a := range anchors {
		if addr, ok := a.Resolve(r, base, size); ok {
			return addr, i, true
		}
	}
	return 0, -1, false
}
