// Completion: 100% - Instruction set complete
package backend

// Abstract machine instructions. Operands are already concrete physical
// registers or computed frame offsets; this layer only encodes. The Op set
// is closed: every encoder dispatches on it with an exhaustive switch, so
// adding a variant forces every encoder to handle it.

// Op tags an instruction variant.
type Op int

const (
	Nop Op = iota // bookkeeping pseudo, emits nothing
	ArgMarshal    // parameter/result marshaling pseudo, emits nothing
	MovRegReg
	MovImm
	LoadStack  // load Dst from [rsp+Off] or [rbp+Off]
	StoreStack // store Src to [rsp+Off] or [rbp+Off]
	AddRegReg
	SubRegReg
	CmpRegReg
	AdjustSP // add Imm to the stack pointer (negative grows the frame)
	PushReg
	PopReg
	Jmp
	CondBr      // two-arm: relocatable jcc to Target, then jmp to Else
	CondBrShort // one rel8 jcc to Target
	OneWayCondBr
	Call
	CallInd
	TrapIf
	Ud2
	JumpTable
	Ret
)

func (op Op) String() string {
	switch op {
	case Nop:
		return "nop"
	case ArgMarshal:
		return "arg_marshal"
	case MovRegReg:
		return "mov_rr"
	case MovImm:
		return "mov_imm"
	case LoadStack:
		return "load_stack"
	case StoreStack:
		return "store_stack"
	case AddRegReg:
		return "add_rr"
	case SubRegReg:
		return "sub_rr"
	case CmpRegReg:
		return "cmp_rr"
	case AdjustSP:
		return "adjust_sp"
	case PushReg:
		return "push"
	case PopReg:
		return "pop"
	case Jmp:
		return "jmp"
	case CondBr:
		return "cond_br"
	case CondBrShort:
		return "cond_br8"
	case OneWayCondBr:
		return "one_way_cond_br"
	case Call:
		return "call"
	case CallInd:
		return "call_ind"
	case TrapIf:
		return "trap_if"
	case Ud2:
		return "ud2"
	case JumpTable:
		return "jump_table"
	case Ret:
		return "ret"
	default:
		return "op?"
	}
}

// Condition codes for conditional branches
type JumpCondition int

const (
	JumpEqual          JumpCondition = iota // JE/JZ - equal/zero
	JumpNotEqual                            // JNE/JNZ - not equal/not zero
	JumpGreater                             // JG/JNLE - greater (signed)
	JumpGreaterOrEqual                      // JGE/JNL - greater or equal (signed)
	JumpLess                                // JL/JNGE - less (signed)
	JumpLessOrEqual                         // JLE/JNG - less or equal (signed)
	JumpAbove                               // JA/JNBE - above (unsigned)
	JumpAboveOrEqual                        // JAE/JNB - above or equal (unsigned)
	JumpBelow                               // JB/JNAE - below (unsigned)
	JumpBelowOrEqual                        // JBE/JNA - below or equal (unsigned)
	JumpParity                              // JP - parity/NaN
	JumpNotParity                           // JNP - not parity/not NaN
	numJumpConditions
)

func (c JumpCondition) String() string {
	switch c {
	case JumpEqual:
		return "je"
	case JumpNotEqual:
		return "jne"
	case JumpGreater:
		return "jg"
	case JumpGreaterOrEqual:
		return "jge"
	case JumpLess:
		return "jl"
	case JumpLessOrEqual:
		return "jle"
	case JumpAbove:
		return "ja"
	case JumpAboveOrEqual:
		return "jae"
	case JumpBelow:
		return "jb"
	case JumpBelowOrEqual:
		return "jbe"
	case JumpParity:
		return "jp"
	case JumpNotParity:
		return "jnp"
	default:
		return "jcc?"
	}
}

// invertedJumpCondition maps each condition to its logical negation. The
// inverted form is always taken from this table, never derived at the call
// site, so the inverted and non-inverted encodings cannot drift apart.
var invertedJumpCondition = [numJumpConditions]JumpCondition{
	JumpEqual:          JumpNotEqual,
	JumpNotEqual:       JumpEqual,
	JumpGreater:        JumpLessOrEqual,
	JumpGreaterOrEqual: JumpLess,
	JumpLess:           JumpGreaterOrEqual,
	JumpLessOrEqual:    JumpGreater,
	JumpAbove:          JumpBelowOrEqual,
	JumpAboveOrEqual:   JumpBelow,
	JumpBelow:          JumpAboveOrEqual,
	JumpBelowOrEqual:   JumpAbove,
	JumpParity:         JumpNotParity,
	JumpNotParity:      JumpParity,
}

// Invert returns the negated condition.
func (c JumpCondition) Invert() JumpCondition {
	if c < 0 || c >= numJumpConditions {
		internalError("invert of unknown condition %d", c)
	}
	return invertedJumpCondition[c]
}

// TrapCode identifies why a trap site traps.
type TrapCode int

const (
	TrapUnreachable TrapCode = iota
	TrapStackOverflow
	TrapIntegerOverflow
	TrapIntegerDivisionByZero
	TrapBadConversion
	TrapHeapOutOfBounds
	TrapTableOutOfBounds
)

// RelocKind identifies how the linker patches a relocation site.
type RelocKind int

const (
	RelocCallPCRel4 RelocKind = iota // 4-byte PC-relative call displacement
	RelocAbs8                        // 8-byte absolute address
)

// Instr is one abstract instruction. Which fields are meaningful depends
// on Op; unused fields stay zero.
type Instr struct {
	Op       Op
	Dst      string
	Src      string
	Imm      int64
	Base     string // LoadStack/StoreStack base register (rsp or rbp)
	Off      int64  // LoadStack/StoreStack displacement
	Cond     JumpCondition
	Target   Label
	Else     Label
	Sym      string // Call target symbol
	StackMap []byte // Call: safepoint bitmap pushed at the end offset, nil for none
	TrapCode TrapCode
	Targets  []Label // JumpTable entries
}

// Worst-case encoded sizes on x86-64, one entry per variant. The upstream
// layout planner reserves this much space per instruction before emission;
// the encoder checks the bound on every emit.
const (
	maxMovRegReg = 3  // REX + 89 /r
	maxMovImm    = 10 // REX + B8+rd + imm64
	maxLoadStore = 8  // REX + 8B/89 + ModRM + SIB + disp32
	maxALU       = 3  // REX + op + ModRM
	maxAdjustSP  = 7  // REX + 81 /r + imm32
	maxPushPop   = 2  // REX.B + 50+rd / 58+rd
	maxJmp       = 5  // E9 + rel32
	maxJcc       = 6  // 0F 8x + rel32
	maxJccShort  = 2  // 7x + rel8
	maxCall      = 5  // E8 + rel32
	maxCallInd   = 3  // REX + FF /2
	maxUd2       = 2  // 0F 0B
)

// WorstCaseSize returns the maximum number of bytes the instruction can
// encode to on x86-64. JumpTable's bound covers the dispatch sequence
// plus the table, not any island emitted before it.
func WorstCaseSize(inst *Instr) int {
	switch inst.Op {
	case Nop, ArgMarshal:
		return 0
	case MovRegReg:
		return maxMovRegReg
	case MovImm:
		return maxMovImm
	case LoadStack, StoreStack:
		return maxLoadStore
	case AddRegReg, SubRegReg, CmpRegReg:
		return maxALU
	case AdjustSP:
		return maxAdjustSP
	case PushReg, PopReg:
		return maxPushPop
	case Jmp:
		return maxJmp
	case CondBr:
		return maxJcc + maxJmp
	case CondBrShort:
		return maxJccShort
	case OneWayCondBr:
		return maxJccShort + maxJmp
	case Call:
		return maxCall
	case CallInd:
		return maxCallInd
	case TrapIf:
		return maxJccShort + maxUd2
	case Ud2:
		return maxUd2
	case JumpTable:
		// lea+lea+movsxd+add+add+jmp dispatch, then one rel32 entry per
		// target. The island the encoder may emit first is not part of
		// this instruction's budget.
		return 32 + 4*len(inst.Targets)
	case Ret:
		// Bare ret. The epilogue is expanded into ordinary instructions
		// upstream, each with its own budget.
		return 1
	default:
		internalError("worst-case size of unknown op %d", inst.Op)
		return 0
	}
}
