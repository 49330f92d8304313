// Completion: 100% - Helper module complete
package backend

// Calling convention policies.
//
// Each supported platform gets one flat struct implementing the
// CallingConvention interface:
// - System V AMD64 ABI (Linux, macOS, BSD)
// - Microsoft x64 ABI (Windows)
// - ARM64 AAPCS
// - RISC-V LP64D calling convention
//
// A convention is chosen once per function and is immutable. Everything
// the classifier and frame builder need is a pure function of the
// convention, with no mutable globals, since many functions may be
// encoded concurrently.

// CallingConvention defines the interface for platform-specific calling
// conventions.
type CallingConvention interface {
	// Name returns a stable identifier for diagnostics.
	Name() string

	// Arch returns the instruction set the convention applies to.
	Arch() Arch

	// IntArgRegs returns the ordered integer argument registers.
	IntArgRegs() []string

	// FloatArgRegs returns the ordered float argument registers.
	FloatArgRegs() []string

	// IntReturnRegs returns the ordered integer result registers.
	IntReturnRegs() []string

	// FloatReturnRegs returns the ordered float result registers.
	FloatReturnRegs() []string

	// CallerSavedRegs returns registers the caller must save before a call.
	CallerSavedRegs() []string

	// CalleeSavedRegs returns registers the callee must save/restore, in
	// the order clobber-save slots are laid out.
	CalleeSavedRegs() []string

	// ShadowSpaceSize returns the size of shadow space required
	// (Windows: 32, others: 0).
	ShadowSpaceSize() int64

	// StackAlignment returns the required stack alignment (usually 16).
	StackAlignment() int64

	// WordBytes returns the native word size in bytes.
	WordBytes() int64

	// NeedsRetArea reports whether the convention passes an implicit
	// pointer to a caller-allocated return-value area when results spill
	// to the stack.
	NeedsRetArea() bool

	// ArgExtension selects how a sub-word integer argument is widened to
	// a full register. Conventions without a decided policy return an
	// *UnsupportedError rather than guessing.
	ArgExtension(t ValueType) (ExtMode, error)

	// StackLimitCheck returns the instructions that compare SP against a
	// stack-limit value, or an *UnsupportedError where that policy is a
	// named gap.
	StackLimitCheck(limitReg string) ([]Instr, error)
}

// NewCallingConvention selects the convention for an arch/OS pair.
func NewCallingConvention(arch Arch, osName string) (CallingConvention, error) {
	switch arch {
	case ArchX86_64:
		if osName == "windows" {
			return &MicrosoftX64{}, nil
		}
		return &SystemVAMD64{}, nil
	case ArchARM64:
		return &AAPCS64{}, nil
	case ArchRiscv64:
		return &Riscv64CC{}, nil
	default:
		return nil, unsupportedf("", "calling convention for architecture %s", arch)
	}
}

// SystemVAMD64 implements the System V AMD64 calling convention
// (Linux, macOS, BSD).
type SystemVAMD64 struct{}

func (cc *SystemVAMD64) Name() string { return "sysv_amd64" }
func (cc *SystemVAMD64) Arch() Arch   { return ArchX86_64 }

func (cc *SystemVAMD64) IntArgRegs() []string {
	return []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"}
}

func (cc *SystemVAMD64) FloatArgRegs() []string {
	return []string{"xmm0", "xmm1", "xmm2", "xmm3", "xmm4", "xmm5", "xmm6", "xmm7"}
}

func (cc *SystemVAMD64) IntReturnRegs() []string {
	return []string{"rax", "rdx"}
}

func (cc *SystemVAMD64) FloatReturnRegs() []string {
	return []string{"xmm0", "xmm1"}
}

func (cc *SystemVAMD64) CallerSavedRegs() []string {
	return []string{"rax", "rcx", "rdx", "rsi", "rdi", "r8", "r9", "r10", "r11",
		"xmm0", "xmm1", "xmm2", "xmm3", "xmm4", "xmm5", "xmm6", "xmm7",
		"xmm8", "xmm9", "xmm10", "xmm11", "xmm12", "xmm13", "xmm14", "xmm15"}
}

func (cc *SystemVAMD64) CalleeSavedRegs() []string {
	return []string{"rbx", "rbp", "r12", "r13", "r14", "r15"}
}

func (cc *SystemVAMD64) ShadowSpaceSize() int64 { return 0 }
func (cc *SystemVAMD64) StackAlignment() int64  { return 16 }
func (cc *SystemVAMD64) WordBytes() int64       { return 8 }
func (cc *SystemVAMD64) NeedsRetArea() bool     { return true }

func (cc *SystemVAMD64) ArgExtension(t ValueType) (ExtMode, error) {
	// Sub-word integers are widened by the signedness of their type.
	switch t {
	case I8, I16, I32:
		if t.Signed() {
			return ExtSigned, nil
		}
		return ExtZero, nil
	default:
		return ExtNone, nil
	}
}

func (cc *SystemVAMD64) StackLimitCheck(limitReg string) ([]Instr, error) {
	return []Instr{
		{Op: CmpRegReg, Dst: "rsp", Src: limitReg},
		{Op: TrapIf, Cond: JumpBelowOrEqual, TrapCode: TrapStackOverflow},
	}, nil
}

// MicrosoftX64 implements the Microsoft x64 calling convention (Windows).
type MicrosoftX64 struct{}

func (cc *MicrosoftX64) Name() string { return "win_x64" }
func (cc *MicrosoftX64) Arch() Arch   { return ArchX86_64 }

func (cc *MicrosoftX64) IntArgRegs() []string {
	return []string{"rcx", "rdx", "r8", "r9"}
}

func (cc *MicrosoftX64) FloatArgRegs() []string {
	// Float args use XMM0-XMM3, sharing positions with integer args.
	return []string{"xmm0", "xmm1", "xmm2", "xmm3"}
}

func (cc *MicrosoftX64) IntReturnRegs() []string {
	return []string{"rax"}
}

func (cc *MicrosoftX64) FloatReturnRegs() []string {
	return []string{"xmm0"}
}

func (cc *MicrosoftX64) CallerSavedRegs() []string {
	return []string{"rax", "rcx", "rdx", "r8", "r9", "r10", "r11",
		"xmm0", "xmm1", "xmm2", "xmm3", "xmm4", "xmm5"}
}

func (cc *MicrosoftX64) CalleeSavedRegs() []string {
	return []string{"rbx", "rbp", "rdi", "rsi", "r12", "r13", "r14", "r15",
		"xmm6", "xmm7", "xmm8", "xmm9", "xmm10", "xmm11", "xmm12", "xmm13",
		"xmm14", "xmm15"}
}

func (cc *MicrosoftX64) ShadowSpaceSize() int64 { return 32 }
func (cc *MicrosoftX64) StackAlignment() int64  { return 16 }
func (cc *MicrosoftX64) WordBytes() int64       { return 8 }
func (cc *MicrosoftX64) NeedsRetArea() bool     { return true }

func (cc *MicrosoftX64) ArgExtension(t ValueType) (ExtMode, error) {
	// MSVC leaves the upper bits of sub-word arguments undefined.
	return ExtNone, nil
}

func (cc *MicrosoftX64) StackLimitCheck(limitReg string) ([]Instr, error) {
	return []Instr{
		{Op: CmpRegReg, Dst: "rsp", Src: limitReg},
		{Op: TrapIf, Cond: JumpBelowOrEqual, TrapCode: TrapStackOverflow},
	}, nil
}

// AAPCS64 implements the ARM64 Procedure Call Standard.
type AAPCS64 struct{}

func (cc *AAPCS64) Name() string { return "aapcs64" }
func (cc *AAPCS64) Arch() Arch   { return ArchARM64 }

func (cc *AAPCS64) IntArgRegs() []string {
	return []string{"x0", "x1", "x2", "x3", "x4", "x5", "x6", "x7"}
}

func (cc *AAPCS64) FloatArgRegs() []string {
	return []string{"d0", "d1", "d2", "d3", "d4", "d5", "d6", "d7"}
}

func (cc *AAPCS64) IntReturnRegs() []string {
	return []string{"x0", "x1"}
}

func (cc *AAPCS64) FloatReturnRegs() []string {
	return []string{"d0", "d1"}
}

func (cc *AAPCS64) CallerSavedRegs() []string {
	return []string{"x0", "x1", "x2", "x3", "x4", "x5", "x6", "x7",
		"x8", "x9", "x10", "x11", "x12", "x13", "x14", "x15",
		"d0", "d1", "d2", "d3", "d4", "d5", "d6", "d7"}
}

func (cc *AAPCS64) CalleeSavedRegs() []string {
	return []string{"x19", "x20", "x21", "x22", "x23", "x24",
		"x25", "x26", "x27", "x28", "x29", "x30"}
}

func (cc *AAPCS64) ShadowSpaceSize() int64 { return 0 }
func (cc *AAPCS64) StackAlignment() int64  { return 16 }
func (cc *AAPCS64) WordBytes() int64       { return 8 }
func (cc *AAPCS64) NeedsRetArea() bool     { return false }

func (cc *AAPCS64) ArgExtension(t ValueType) (ExtMode, error) {
	// AAPCS64 leaves narrowing to the callee.
	return ExtNone, nil
}

func (cc *AAPCS64) StackLimitCheck(limitReg string) ([]Instr, error) {
	return nil, unsupportedf("", "stack-limit check on %s", cc.Name())
}

// Riscv64CC implements the RISC-V LP64D calling convention. Several policy
// points of the sampled ABI are still undecided; those methods return
// explicit not-yet-supported errors instead of a guessed default.
type Riscv64CC struct{}

func (cc *Riscv64CC) Name() string { return "riscv64_lp64d" }
func (cc *Riscv64CC) Arch() Arch   { return ArchRiscv64 }

func (cc *Riscv64CC) IntArgRegs() []string {
	return []string{"a0", "a1", "a2", "a3", "a4", "a5", "a6", "a7"}
}

func (cc *Riscv64CC) FloatArgRegs() []string {
	return []string{"fa0", "fa1", "fa2", "fa3", "fa4", "fa5", "fa6", "fa7"}
}

func (cc *Riscv64CC) IntReturnRegs() []string {
	return []string{"a0", "a1"}
}

func (cc *Riscv64CC) FloatReturnRegs() []string {
	return []string{"fa0", "fa1"}
}

func (cc *Riscv64CC) CallerSavedRegs() []string {
	return []string{"ra", "t0", "t1", "t2", "t3", "t4", "t5", "t6",
		"a0", "a1", "a2", "a3", "a4", "a5", "a6", "a7",
		"ft0", "ft1", "ft2", "ft3", "ft4", "ft5", "ft6", "ft7",
		"fa0", "fa1", "fa2", "fa3", "fa4", "fa5", "fa6", "fa7"}
}

func (cc *Riscv64CC) CalleeSavedRegs() []string {
	return []string{"s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7",
		"s8", "s9", "s10", "s11",
		"fs0", "fs1", "fs2", "fs3", "fs4", "fs5", "fs6", "fs7",
		"fs8", "fs9", "fs10", "fs11"}
}

func (cc *Riscv64CC) ShadowSpaceSize() int64 { return 0 }
func (cc *Riscv64CC) StackAlignment() int64  { return 16 }
func (cc *Riscv64CC) WordBytes() int64       { return 8 }
func (cc *Riscv64CC) NeedsRetArea() bool     { return true }

func (cc *Riscv64CC) ArgExtension(t ValueType) (ExtMode, error) {
	switch t {
	case I8, I16, I32, U8, U16, U32:
		// Undecided policy: RV64 keeps 32-bit values sign-extended
		// regardless of type signedness, which the IR layer does not
		// model yet.
		return ExtNone, unsupportedf("", "argument extension mode for %s on %s", t, cc.Name())
	default:
		return ExtNone, nil
	}
}

func (cc *Riscv64CC) StackLimitCheck(limitReg string) ([]Instr, error) {
	return nil, unsupportedf("", "stack-limit check on %s", cc.Name())
}

func regSet(regs []string) map[string]bool {
	set := make(map[string]bool, len(regs))
	for _, r := range regs {
		set[r] = true
	}
	return set
}
