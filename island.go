// Completion: 100% - Island insertion complete
package backend

import (
	"fmt"
	"os"
)

// Island insertion keeps short-displacement fixups resolvable as the
// buffer grows. The encoder asks IslandNeeded before every instruction;
// when true it emits an unconditional jump over an island, and inside the
// island every open rel8 fixup is promoted to a rel32 veneer: a plain far
// jump to the original label, with the rel8 bytes re-pointed at the
// veneer. Fixups created by the following instruction know their own
// offsets and are covered by the margin.

const (
	islandPadByte = 0xCC   // INT3
	veneerSize    = maxJmp // one far jump per promoted fixup
)

// rel8Deadline returns the lowest offset by which some pending
// short-range fixup must be resolved or redirected, and how many such
// fixups are pending.
func (cb *CodeBuffer) rel8Deadline() (uint32, int) {
	var deadline int64 = -1
	n := 0
	for _, f := range cb.fixups {
		if f.class == DispRel8 {
			n++
			limit := int64(f.useOffset) + int64(f.class.fieldSize()) + f.class.maxForward()
			if deadline < 0 || limit < deadline {
				deadline = limit
			}
		}
	}
	if n == 0 {
		return 0, 0
	}
	return uint32(deadline), n
}

// IslandNeeded reports whether emitting additionalBytes more could push a
// pending fixup past its encodable range. The margin reserves room for
// the jump around a later island, a veneer per pending fixup, and one
// more veneer for a fixup the next instruction may create; as long as the
// check runs before every instruction, every veneer lands inside every
// pending fixup's range.
func (cb *CodeBuffer) IslandNeeded(additionalBytes uint32) bool {
	deadline, n := cb.rel8Deadline()
	if n == 0 {
		return false
	}
	next := int64(cb.CurOffset()) + int64(additionalBytes) + maxJmp + int64(veneerSize)*int64(n+1)
	return next > int64(deadline)
}

// EmitIsland promotes every pending rel8 fixup to a rel32 veneer emitted
// at the current offset, then pads the island out to sizeHint bytes. The
// caller has already emitted the jump around the island and binds its
// label afterwards.
func (cb *CodeBuffer) EmitIsland(sizeHint uint32) {
	cb.checkWritable()
	if cb.arch != ArchX86_64 {
		internalError("no island encoding for %s", cb.arch)
	}
	start := cb.CurOffset()

	promoted := 0
	remaining := cb.fixups[:0]
	for _, f := range cb.fixups {
		if f.class != DispRel8 {
			remaining = append(remaining, f)
			continue
		}
		veneer := cb.CurOffset()

		// Re-point the rel8 field at the veneer; its displacement is now
		// final and must be encodable, or the island came too late.
		disp := int64(veneer) - (int64(f.useOffset) + 1)
		if disp < -128 || disp > 127 {
			internalError("veneer at %d unreachable from rel8 fixup at %d", veneer, f.useOffset)
		}
		cb.text.Bytes()[f.useOffset] = byte(int8(disp))

		// The veneer continues to the original label with full range.
		cb.Put1(0xE9)
		field := cb.CurOffset()
		cb.Put4(0)
		remaining = append(remaining, fixupRecord{
			useOffset: field,
			class:     DispRel32,
			label:     f.label,
		})
		promoted++
	}
	cb.fixups = remaining

	for cb.CurOffset() < start+sizeHint {
		cb.Put1(islandPadByte)
	}

	if VerboseMode {
		fmt.Fprintf(os.Stderr, "\nisland at %d: %d veneers, %d bytes\n",
			start, promoted, cb.CurOffset()-start)
	}
}
