// Completion: 100% - Frame builder complete
package backend

import (
	"fmt"
	"os"
)

// Stack frame construction. Given the ABI classification results and the
// register allocator's clobber set, this computes a concrete layout and
// synthesizes the prologue/epilogue as ordinary instructions, fed through
// the same encoder as the function body.
//
// Layout, from the post-prologue stack pointer upward:
//
//	[ outgoing argument area ]
//	[ fixed frame storage    ]
//	[ clobber save area      ]  one word per saved register, 16-aligned
//	[ alignment padding      ]
//	[ return address         ]  <- caller SP
//
// No frame pointer register is established: every slot is addressed
// relative to SP, and the single SP adjustment in the prologue is mirrored
// exactly by the epilogue, so the two sequences always encode to the same
// number of bytes.

// RegSave is one callee-saved register and its SP-relative save slot.
type RegSave struct {
	Reg    string
	Offset int64
}

// FrameLayout is the computed stack geometry of one function. It is
// produced once, after register allocation, and consumed read-only by the
// prologue/epilogue generators and by downstream unwind and stack-map
// stages.
type FrameLayout struct {
	FixedFrameSize     int64
	ClobberAreaSize    int64
	OutgoingArgsSize   int64
	SPAdjust           int64 // the single prologue SP decrement
	FPToCallerSPOffset int64 // post-prologue SP to caller SP at entry
	ClobberSaves       []RegSave
	Required           bool
}

// FrameRequired decides whether the function needs a real frame. The same
// predicate is used by the save generator, the restore generator and any
// upstream size estimator; they must never diverge.
func FrameRequired(cc CallingConvention, isLeaf bool, stackArgsBytes int64, clobbers []string, fixedFrameSize int64) bool {
	if !isLeaf || stackArgsBytes > 0 || fixedFrameSize > 0 {
		return true
	}
	return len(calleeSavedClobbers(cc, clobbers)) > 0
}

// calleeSavedClobbers intersects the allocator's clobber set with the
// convention's callee-saved table, in table order so layouts are
// deterministic. Registers outside the table are caller-saved by
// construction and need no save code.
func calleeSavedClobbers(cc CallingConvention, clobbers []string) []string {
	clobbered := regSet(clobbers)
	var saves []string
	for _, r := range cc.CalleeSavedRegs() {
		if clobbered[r] {
			saves = append(saves, r)
		}
	}
	return saves
}

// BuildFrame computes the frame layout for one function.
func BuildFrame(cc CallingConvention, fixedFrameStorage, outgoingArgs, stackArgsBytes int64, clobbers []string, isLeaf bool) (*FrameLayout, error) {
	saves := calleeSavedClobbers(cc, clobbers)
	for _, r := range saves {
		if lookupReg(cc.Arch(), r).Class != ClassInt {
			return nil, unsupportedf(r, "saving float callee-saved registers")
		}
	}

	word := cc.WordBytes()
	clobberArea := alignTo(int64(len(saves))*word, 16)
	slotBase := addSize(outgoingArgs, fixedFrameStorage)

	layout := &FrameLayout{
		FixedFrameSize:   fixedFrameStorage,
		ClobberAreaSize:  clobberArea,
		OutgoingArgsSize: outgoingArgs,
		Required:         FrameRequired(cc, isLeaf, stackArgsBytes, clobbers, fixedFrameStorage),
	}
	for i, r := range saves {
		layout.ClobberSaves = append(layout.ClobberSaves, RegSave{
			Reg:    r,
			Offset: addSize(slotBase, int64(i)*word),
		})
	}

	total := addSize(slotBase, clobberArea)
	if layout.Required && !isLeaf {
		// Keep SP 16-aligned at call sites: entry SP is 8 past alignment
		// because of the pushed return address.
		total = alignTo(addSize(total, word), 16) - word
	} else {
		total = alignTo(total, 16)
	}
	layout.SPAdjust = total
	layout.FPToCallerSPOffset = addSize(total, word)

	if VerboseMode {
		fmt.Fprintf(os.Stderr, "frame (%s): adjust %d, clobber area %d, %d saves, required=%v\n",
			cc.Name(), layout.SPAdjust, layout.ClobberAreaSize, len(layout.ClobberSaves), layout.Required)
	}
	return layout, nil
}

// GenClobberSave returns the prologue: one SP decrement, then a store per
// clobbered callee-saved register at increasing offsets above the fixed
// frame area.
func GenClobberSave(layout *FrameLayout) []Instr {
	if !layout.Required {
		return nil
	}
	instrs := []Instr{{Op: AdjustSP, Imm: -layout.SPAdjust}}
	for _, save := range layout.ClobberSaves {
		instrs = append(instrs, Instr{
			Op:   StoreStack,
			Src:  save.Reg,
			Base: "rsp",
			Off:  save.Offset,
		})
	}
	return instrs
}

// GenClobberRestore returns the epilogue mirror of GenClobberSave: reload
// every saved register from its recorded slot, then undo the SP
// adjustment. Byte for byte it is the same size as the save sequence.
func GenClobberRestore(layout *FrameLayout) []Instr {
	if !layout.Required {
		return nil
	}
	var instrs []Instr
	for _, save := range layout.ClobberSaves {
		instrs = append(instrs, Instr{
			Op:   LoadStack,
			Dst:  save.Reg,
			Base: "rsp",
			Off:  save.Offset,
		})
	}
	return append(instrs, Instr{Op: AdjustSP, Imm: layout.SPAdjust})
}
