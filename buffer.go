// Completion: 100% - Code buffer complete
package backend

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
)

// CodeBuffer is the append-only byte sink one function compilation writes
// machine code into. It owns the label table, the pending-fixup set and
// the reloc/trap/call-site/stack-map side tables. Exactly one goroutine
// writes a buffer; nothing here is shared across functions.

// Label names a position in the text section. Labels start unbound and
// must be bound exactly once before the buffer is finalized.
type Label int32

const unboundOffset = -1

// DispClass enumerates the supported displacement encodings for branch
// immediates. The reference point of both classes is the end of the
// immediate field.
type DispClass int

const (
	DispRel8  DispClass = iota // signed 8-bit displacement
	DispRel32                  // signed 32-bit displacement
)

func (c DispClass) String() string {
	switch c {
	case DispRel8:
		return "rel8"
	case DispRel32:
		return "rel32"
	default:
		return "disp?"
	}
}

// fieldSize returns the width of the immediate field in bytes.
func (c DispClass) fieldSize() uint32 {
	switch c {
	case DispRel8:
		return 1
	case DispRel32:
		return 4
	default:
		internalError("field size of unknown displacement class %d", c)
		return 0
	}
}

// maxForward returns the largest forward distance from the reference
// point that the class can encode.
func (c DispClass) maxForward() int64 {
	switch c {
	case DispRel8:
		return 127
	case DispRel32:
		return 1<<31 - 1
	default:
		internalError("range of unknown displacement class %d", c)
		return 0
	}
}

type fixupRecord struct {
	useOffset uint32 // offset of the immediate field in the text section
	class     DispClass
	label     Label
}

// Reloc asks the linker/loader to patch a site it can see by symbol.
type Reloc struct {
	Offset uint32
	Kind   RelocKind
	Symbol string
	Addend int64
}

// TrapSite records where and why emitted code can trap.
type TrapSite struct {
	Offset uint32
	Code   TrapCode
}

// CallSite records the end offset of a call instruction.
type CallSite struct {
	Offset uint32
}

// StackMapSite records a safepoint bitmap at a call's end offset.
type StackMapSite struct {
	Offset uint32
	Map    []byte
}

type CodeBuffer struct {
	arch Arch
	text bytes.Buffer

	labelOffsets []int32 // indexed by Label; unboundOffset until bound
	fixups       []fixupRecord

	relocs    []Reloc
	traps     []TrapSite
	callSites []CallSite
	stackMaps []StackMapSite

	finalized bool
}

func NewCodeBuffer(arch Arch) *CodeBuffer {
	return &CodeBuffer{arch: arch}
}

// CurOffset returns the current write cursor.
func (cb *CodeBuffer) CurOffset() uint32 {
	return uint32(cb.text.Len())
}

func (cb *CodeBuffer) checkWritable() {
	if cb.finalized {
		internalError("write to finalized code buffer")
	}
}

// PutBytes appends bs and advances the cursor.
func (cb *CodeBuffer) PutBytes(bs []byte) {
	cb.checkWritable()
	cb.text.Write(bs)
	if VerboseMode {
		for _, b := range bs {
			fmt.Fprintf(os.Stderr, " %02x", b)
		}
	}
}

// Put1 appends a single byte.
func (cb *CodeBuffer) Put1(b byte) {
	cb.checkWritable()
	cb.text.WriteByte(b)
	if VerboseMode {
		fmt.Fprintf(os.Stderr, " %02x", b)
	}
}

// Put4 appends a 32-bit value, little-endian.
func (cb *CodeBuffer) Put4(v uint32) {
	var bs [4]byte
	binary.LittleEndian.PutUint32(bs[:], v)
	cb.PutBytes(bs[:])
}

// Put8 appends a 64-bit value, little-endian.
func (cb *CodeBuffer) Put8(v uint64) {
	var bs [8]byte
	binary.LittleEndian.PutUint64(bs[:], v)
	cb.PutBytes(bs[:])
}

// NewLabel mints a fresh unbound label.
func (cb *CodeBuffer) NewLabel() Label {
	l := Label(len(cb.labelOffsets))
	cb.labelOffsets = append(cb.labelOffsets, unboundOffset)
	return l
}

// Bound reports whether the label has been bound.
func (cb *CodeBuffer) Bound(l Label) bool {
	return cb.labelOffset(l) != unboundOffset
}

func (cb *CodeBuffer) labelOffset(l Label) int32 {
	if l < 0 || int(l) >= len(cb.labelOffsets) {
		internalError("unknown label L%d", l)
	}
	return cb.labelOffsets[l]
}

// BindLabel fixes the label at the current offset and immediately patches
// every pending fixup that references it.
func (cb *CodeBuffer) BindLabel(l Label) {
	cb.checkWritable()
	if cb.Bound(l) {
		internalError("label L%d bound twice", l)
	}
	offset := cb.CurOffset()
	cb.labelOffsets[l] = int32(offset)
	if VerboseMode {
		fmt.Fprintf(os.Stderr, "\nbind L%d at offset %d\n", l, offset)
	}

	remaining := cb.fixups[:0]
	for _, f := range cb.fixups {
		if f.label == l {
			cb.patchFixup(f)
		} else {
			remaining = append(remaining, f)
		}
	}
	cb.fixups = remaining
}

// UseLabelAt records that the displacement field at useOffset refers to
// label. Bound labels are patched immediately; unbound ones leave a
// fixup resolved at bind time.
func (cb *CodeBuffer) UseLabelAt(useOffset uint32, l Label, class DispClass) {
	cb.checkWritable()
	f := fixupRecord{useOffset: useOffset, class: class, label: l}
	if cb.Bound(l) {
		cb.patchFixup(f)
		return
	}
	cb.fixups = append(cb.fixups, f)
}

// patchFixup writes the displacement from f's reference point to its
// (bound) target into the already-emitted bytes. The island policy must
// keep every fixup in range, so an unencodable displacement here is a
// backend bug.
func (cb *CodeBuffer) patchFixup(f fixupRecord) {
	target := cb.labelOffset(f.label)
	if target == unboundOffset {
		internalError("patching fixup against unbound label L%d", f.label)
	}
	refPoint := int64(f.useOffset) + int64(f.class.fieldSize())
	disp := int64(target) - refPoint

	text := cb.text.Bytes()
	switch f.class {
	case DispRel8:
		if disp < -128 || disp > 127 {
			internalError("rel8 displacement %d out of range at offset %d (island policy violated)",
				disp, f.useOffset)
		}
		text[f.useOffset] = byte(int8(disp))
	case DispRel32:
		if disp < -(1<<31) || disp > 1<<31-1 {
			internalError("rel32 displacement %d out of range at offset %d", disp, f.useOffset)
		}
		binary.LittleEndian.PutUint32(text[f.useOffset:], uint32(int32(disp)))
	default:
		internalError("patch of unknown displacement class %d", f.class)
	}

	if VerboseMode {
		fmt.Fprintf(os.Stderr, "patch %s at %d -> L%d (disp %d)\n",
			f.class, f.useOffset, f.label, disp)
	}
}

// DeferTrap records a trap site at the current offset.
func (cb *CodeBuffer) DeferTrap(code TrapCode) {
	cb.checkWritable()
	cb.traps = append(cb.traps, TrapSite{Offset: cb.CurOffset(), Code: code})
}

// AddReloc records a relocation at the current offset.
func (cb *CodeBuffer) AddReloc(kind RelocKind, symbol string, addend int64) {
	cb.checkWritable()
	cb.relocs = append(cb.relocs, Reloc{
		Offset: cb.CurOffset(),
		Kind:   kind,
		Symbol: symbol,
		Addend: addend,
	})
}

// AddCallSite records a call site at the current offset.
func (cb *CodeBuffer) AddCallSite() {
	cb.checkWritable()
	cb.callSites = append(cb.callSites, CallSite{Offset: cb.CurOffset()})
}

// AddStackMap records a safepoint bitmap at the current offset.
func (cb *CodeBuffer) AddStackMap(m []byte) {
	cb.checkWritable()
	cb.stackMaps = append(cb.stackMaps, StackMapSite{Offset: cb.CurOffset(), Map: m})
}

// Object is the finalized result of one function compilation: the
// committed bytes plus the side tables downstream linking, unwinding and
// safepoint stages consume. Immutable once produced.
type Object struct {
	Arch      Arch
	Text      []byte
	Relocs    []Reloc
	Traps     []TrapSite
	CallSites []CallSite
	StackMaps []StackMapSite
}

// Finalize checks that every label was bound and every fixup patched,
// then snapshots the buffer into an Object. Violations are fatal: a
// dangling fixup would silently branch to offset zero.
func (cb *CodeBuffer) Finalize() *Object {
	if len(cb.fixups) > 0 {
		f := cb.fixups[0]
		internalError("%d unresolved fixups at finalize (first: %s at offset %d -> L%d)",
			len(cb.fixups), f.class, f.useOffset, f.label)
	}
	for l, off := range cb.labelOffsets {
		if off == unboundOffset {
			internalError("label L%d never bound", l)
		}
	}
	cb.finalized = true
	if DebugMode {
		fmt.Fprintf(os.Stderr, "finalize: %d bytes, %d labels, %d relocs, %d traps, %d call sites, %d stack maps\n",
			cb.text.Len(), len(cb.labelOffsets), len(cb.relocs), len(cb.traps),
			len(cb.callSites), len(cb.stackMaps))
	}

	text := make([]byte, cb.text.Len())
	copy(text, cb.text.Bytes())
	return &Object{
		Arch:      cb.arch,
		Text:      text,
		Relocs:    cb.relocs,
		Traps:     cb.traps,
		CallSites: cb.callSites,
		StackMaps: cb.stackMaps,
	}
}
