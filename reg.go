// Completion: 100% - Utility module complete
package backend

// Register definitions for all supported architectures

// Arch identifies an instruction set.
type Arch int

const (
	ArchX86_64 Arch = iota
	ArchARM64
	ArchRiscv64
)

func (a Arch) String() string {
	switch a {
	case ArchX86_64:
		return "x86_64"
	case ArchARM64:
		return "aarch64"
	case ArchRiscv64:
		return "riscv64"
	default:
		return "unknown"
	}
}

// RegClass separates the independent register files an ABI walks with
// separate cursors.
type RegClass int

const (
	ClassInt RegClass = iota
	ClassFloat
)

type Register struct {
	Name     string
	Size     int      // Size in bits
	Encoding uint8    // Encoding for instruction generation
	Class    RegClass // Register file the register belongs to
}

// x86_64 registers
var x86_64Registers = map[string]Register{
	// 64-bit general purpose registers
	"rax": {Name: "rax", Size: 64, Encoding: 0, Class: ClassInt},
	"rcx": {Name: "rcx", Size: 64, Encoding: 1, Class: ClassInt},
	"rdx": {Name: "rdx", Size: 64, Encoding: 2, Class: ClassInt},
	"rbx": {Name: "rbx", Size: 64, Encoding: 3, Class: ClassInt},
	"rsp": {Name: "rsp", Size: 64, Encoding: 4, Class: ClassInt},
	"rbp": {Name: "rbp", Size: 64, Encoding: 5, Class: ClassInt},
	"rsi": {Name: "rsi", Size: 64, Encoding: 6, Class: ClassInt},
	"rdi": {Name: "rdi", Size: 64, Encoding: 7, Class: ClassInt},
	"r8":  {Name: "r8", Size: 64, Encoding: 8, Class: ClassInt},
	"r9":  {Name: "r9", Size: 64, Encoding: 9, Class: ClassInt},
	"r10": {Name: "r10", Size: 64, Encoding: 10, Class: ClassInt},
	"r11": {Name: "r11", Size: 64, Encoding: 11, Class: ClassInt},
	"r12": {Name: "r12", Size: 64, Encoding: 12, Class: ClassInt},
	"r13": {Name: "r13", Size: 64, Encoding: 13, Class: ClassInt},
	"r14": {Name: "r14", Size: 64, Encoding: 14, Class: ClassInt},
	"r15": {Name: "r15", Size: 64, Encoding: 15, Class: ClassInt},

	// SSE registers (float arguments and returns)
	"xmm0":  {Name: "xmm0", Size: 128, Encoding: 0, Class: ClassFloat},
	"xmm1":  {Name: "xmm1", Size: 128, Encoding: 1, Class: ClassFloat},
	"xmm2":  {Name: "xmm2", Size: 128, Encoding: 2, Class: ClassFloat},
	"xmm3":  {Name: "xmm3", Size: 128, Encoding: 3, Class: ClassFloat},
	"xmm4":  {Name: "xmm4", Size: 128, Encoding: 4, Class: ClassFloat},
	"xmm5":  {Name: "xmm5", Size: 128, Encoding: 5, Class: ClassFloat},
	"xmm6":  {Name: "xmm6", Size: 128, Encoding: 6, Class: ClassFloat},
	"xmm7":  {Name: "xmm7", Size: 128, Encoding: 7, Class: ClassFloat},
	"xmm8":  {Name: "xmm8", Size: 128, Encoding: 8, Class: ClassFloat},
	"xmm9":  {Name: "xmm9", Size: 128, Encoding: 9, Class: ClassFloat},
	"xmm10": {Name: "xmm10", Size: 128, Encoding: 10, Class: ClassFloat},
	"xmm11": {Name: "xmm11", Size: 128, Encoding: 11, Class: ClassFloat},
	"xmm12": {Name: "xmm12", Size: 128, Encoding: 12, Class: ClassFloat},
	"xmm13": {Name: "xmm13", Size: 128, Encoding: 13, Class: ClassFloat},
	"xmm14": {Name: "xmm14", Size: 128, Encoding: 14, Class: ClassFloat},
	"xmm15": {Name: "xmm15", Size: 128, Encoding: 15, Class: ClassFloat},
}

// ARM64 registers (the subset the ABI layer needs)
var arm64Registers = buildARM64Registers()

func buildARM64Registers() map[string]Register {
	m := make(map[string]Register)
	for i := 0; i <= 30; i++ {
		name := "x" + itoa(i)
		m[name] = Register{Name: name, Size: 64, Encoding: uint8(i), Class: ClassInt}
	}
	m["sp"] = Register{Name: "sp", Size: 64, Encoding: 31, Class: ClassInt}
	for i := 0; i <= 31; i++ {
		name := "d" + itoa(i)
		m[name] = Register{Name: name, Size: 64, Encoding: uint8(i), Class: ClassFloat}
	}
	return m
}

// RISC-V 64 registers
var riscv64Registers = buildRiscv64Registers()

func buildRiscv64Registers() map[string]Register {
	m := make(map[string]Register)
	names := []string{
		"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
		"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
		"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
		"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
	}
	for i, name := range names {
		m[name] = Register{Name: name, Size: 64, Encoding: uint8(i), Class: ClassInt}
	}
	fnames := []string{
		"ft0", "ft1", "ft2", "ft3", "ft4", "ft5", "ft6", "ft7",
		"fs0", "fs1", "fa0", "fa1", "fa2", "fa3", "fa4", "fa5",
		"fa6", "fa7", "fs2", "fs3", "fs4", "fs5", "fs6", "fs7",
		"fs8", "fs9", "fs10", "fs11", "ft8", "ft9", "ft10", "ft11",
	}
	for i, name := range fnames {
		m[name] = Register{Name: name, Size: 64, Encoding: uint8(i), Class: ClassFloat}
	}
	return m
}

func registersFor(arch Arch) map[string]Register {
	switch arch {
	case ArchX86_64:
		return x86_64Registers
	case ArchARM64:
		return arm64Registers
	case ArchRiscv64:
		return riscv64Registers
	default:
		internalError("no register table for arch %d", arch)
		return nil
	}
}

// lookupReg resolves a register name for an architecture. Operands reach
// the backend already register-allocated, so a miss is a backend bug, not
// bad input.
func lookupReg(arch Arch, name string) Register {
	r, ok := registersFor(arch)[name]
	if !ok {
		internalError("unknown %s register %q", arch, name)
	}
	return r
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [4]byte
	n := len(buf)
	for i > 0 {
		n--
		buf[n] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[n:])
}
