// Completion: 100% - ABI classification complete
package backend

import (
	"fmt"
	"os"
)

// ABI classification: assigns every parameter or result of a function to a
// register or a stack slot, according to the chosen calling convention.
// The IR layer supplies the purpose tag for each value; this layer only
// consumes it. Register allocation never happens here.

// ValueType is the lowered machine type of a parameter or result.
type ValueType int

const (
	I8 ValueType = iota
	I16
	I32
	I64
	U8
	U16
	U32
	U64
	F32
	F64
	Ptr
)

func (t ValueType) String() string {
	switch t {
	case I8:
		return "i8"
	case I16:
		return "i16"
	case I32:
		return "i32"
	case I64:
		return "i64"
	case U8:
		return "u8"
	case U16:
		return "u16"
	case U32:
		return "u32"
	case U64:
		return "u64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	case Ptr:
		return "ptr"
	default:
		return "unknown"
	}
}

// SizeBytes returns the in-memory size of the type.
func (t ValueType) SizeBytes() int64 {
	switch t {
	case I8, U8:
		return 1
	case I16, U16:
		return 2
	case I32, U32, F32:
		return 4
	case I64, U64, F64, Ptr:
		return 8
	default:
		internalError("size of unknown value type %d", t)
		return 0
	}
}

// Signed reports whether the type sign-extends when widened.
func (t ValueType) Signed() bool {
	switch t {
	case I8, I16, I32, I64:
		return true
	default:
		return false
	}
}

// RegClassOf returns the register file the type is passed in.
func (t ValueType) RegClassOf() RegClass {
	switch t {
	case F32, F64:
		return ClassFloat
	default:
		return ClassInt
	}
}

// ExtMode says how a sub-word value is widened to a full register.
type ExtMode int

const (
	ExtNone ExtMode = iota
	ExtSigned
	ExtZero
)

// ArgPurpose tags why a parameter or result exists. It is supplied by the
// IR layer, never inferred here.
type ArgPurpose int

const (
	PurposeNormal       ArgPurpose = iota // ordinary value
	PurposeContext                        // implicit context pointer
	PurposeStackLimit                     // stack-limit value
	PurposeStructReturn                   // pointer to caller-allocated return area
	PurposeByRef                          // large aggregate in caller-provided stack space
)

func (p ArgPurpose) String() string {
	switch p {
	case PurposeNormal:
		return "normal"
	case PurposeContext:
		return "context"
	case PurposeStackLimit:
		return "stack_limit"
	case PurposeStructReturn:
		return "struct_return"
	case PurposeByRef:
		return "by_ref"
	default:
		return "unknown"
	}
}

// ArgParam is one parameter or result awaiting classification. Size is
// only meaningful for PurposeByRef aggregates.
type ArgParam struct {
	Type    ValueType
	Purpose ArgPurpose
	Size    int64
}

// SlotKind discriminates the ArgSlot variants.
type SlotKind int

const (
	SlotRegister SlotKind = iota
	SlotStack
	SlotStructByRef
)

// ArgSlot is the classified location of one parameter or result. Produced
// once per value and never mutated.
type ArgSlot struct {
	Kind    SlotKind
	Reg     string  // SlotRegister
	Offset  int64   // SlotStack, SlotStructByRef: byte offset into the arg area
	Size    int64   // SlotStructByRef: aggregate size, 8-byte aligned
	Type    ValueType
	Ext     ExtMode
	Purpose ArgPurpose
}

func (s ArgSlot) String() string {
	switch s.Kind {
	case SlotRegister:
		return fmt.Sprintf("reg(%s, %s, %s)", s.Reg, s.Type, s.Purpose)
	case SlotStack:
		return fmt.Sprintf("stack(+%d, %s, %s)", s.Offset, s.Type, s.Purpose)
	case SlotStructByRef:
		return fmt.Sprintf("byref(+%d, %d bytes)", s.Offset, s.Size)
	default:
		return "slot(?)"
	}
}

// Classify walks params (or results, when isResults is set) in declaration
// order and assigns each one a slot. Independent cursors walk the integer
// and float register files; values that miss their file spill to
// 8-byte-aligned stack slots. By-ref aggregates always take stack space
// and never consume a register. When classifying results under a
// convention that passes an implicit return-area pointer, and the result
// stack region is non-empty, one extra Stack slot for that pointer is
// appended and its index returned (otherwise -1). The returned stack byte
// total is rounded up to the convention's stack alignment.
func Classify(cc CallingConvention, args []ArgParam, isResults, needsRetArea bool) (slots []ArgSlot, stackBytes int64, retAreaIdx int, err error) {
	intRegs := cc.IntArgRegs()
	floatRegs := cc.FloatArgRegs()
	if isResults {
		intRegs = cc.IntReturnRegs()
		floatRegs = cc.FloatReturnRegs()
	}

	intIdx, floatIdx := 0, 0
	var stackOff int64
	if !isResults {
		// The caller-reserved shadow area sits below any stack-passed
		// argument.
		stackOff = cc.ShadowSpaceSize()
	}
	retAreaIdx = -1

	for i, arg := range args {
		switch arg.Purpose {
		case PurposeNormal, PurposeContext, PurposeStackLimit, PurposeStructReturn, PurposeByRef:
			// recognized
		default:
			// A purpose this classifier does not know is an IR-layer bug;
			// mis-classifying it silently would corrupt the frame.
			internalError("unrecognized ABI purpose %d for arg %d", arg.Purpose, i)
		}

		if arg.Purpose == PurposeByRef {
			size := arg.Size
			if size <= 0 {
				internalError("by-ref aggregate arg %d has size %d", i, size)
			}
			off := alignTo(stackOff, 8)
			size = alignTo(size, 8)
			slots = append(slots, ArgSlot{
				Kind:    SlotStructByRef,
				Offset:  off,
				Size:    size,
				Type:    Ptr,
				Purpose: arg.Purpose,
			})
			stackOff = addSize(off, size)
			continue
		}

		ext, extErr := cc.ArgExtension(arg.Type)
		if extErr != nil {
			return nil, 0, -1, extErr
		}

		var regs []string
		var cursor *int
		if arg.Type.RegClassOf() == ClassFloat {
			regs, cursor = floatRegs, &floatIdx
		} else {
			regs, cursor = intRegs, &intIdx
		}

		if *cursor < len(regs) {
			slots = append(slots, ArgSlot{
				Kind:    SlotRegister,
				Reg:     regs[*cursor],
				Type:    arg.Type,
				Ext:     ext,
				Purpose: arg.Purpose,
			})
			*cursor++
		} else {
			off := alignTo(stackOff, 8)
			slots = append(slots, ArgSlot{
				Kind:    SlotStack,
				Offset:  off,
				Type:    arg.Type,
				Ext:     ext,
				Purpose: arg.Purpose,
			})
			stackOff = addSize(off, alignTo(arg.Type.SizeBytes(), 8))
		}
	}

	if isResults && needsRetArea && cc.NeedsRetArea() && stackOff > 0 {
		off := alignTo(stackOff, 8)
		slots = append(slots, ArgSlot{
			Kind:    SlotStack,
			Offset:  off,
			Type:    Ptr,
			Purpose: PurposeStructReturn,
		})
		retAreaIdx = len(slots) - 1
		stackOff = addSize(off, 8)
	}

	stackBytes = alignTo(stackOff, cc.StackAlignment())

	if VerboseMode {
		kind := "params"
		if isResults {
			kind = "results"
		}
		fmt.Fprintf(os.Stderr, "classify %s (%s): %d slots, %d stack bytes\n",
			kind, cc.Name(), len(slots), stackBytes)
		for _, s := range slots {
			fmt.Fprintf(os.Stderr, "  %s\n", s)
		}
	}

	return slots, stackBytes, retAreaIdx, nil
}
