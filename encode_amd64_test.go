package backend

import (
	"bytes"
	"testing"
)

func encodeOne(t *testing.T, inst Instr) []byte {
	t.Helper()
	return encodeSeq(t, []Instr{inst})
}

func checkBytes(t *testing.T, got, expected []byte) {
	t.Helper()
	if !bytes.Equal(got, expected) {
		t.Errorf("Expected % x, got % x", expected, got)
	}
}

func TestEncodeMovRegReg(t *testing.T) {
	checkBytes(t, encodeOne(t, Instr{Op: MovRegReg, Dst: "rax", Src: "rbx"}),
		[]byte{0x48, 0x89, 0xD8})
	checkBytes(t, encodeOne(t, Instr{Op: MovRegReg, Dst: "r9", Src: "r10"}),
		[]byte{0x4D, 0x89, 0xD1})
	checkBytes(t, encodeOne(t, Instr{Op: MovRegReg, Dst: "rdi", Src: "rsp"}),
		[]byte{0x48, 0x89, 0xE7})
}

func TestEncodeMovImm(t *testing.T) {
	checkBytes(t, encodeOne(t, Instr{Op: MovImm, Dst: "rcx", Imm: 1}),
		[]byte{0x48, 0xC7, 0xC1, 0x01, 0x00, 0x00, 0x00})
	checkBytes(t, encodeOne(t, Instr{Op: MovImm, Dst: "rax", Imm: -1}),
		[]byte{0x48, 0xC7, 0xC0, 0xFF, 0xFF, 0xFF, 0xFF})
	checkBytes(t, encodeOne(t, Instr{Op: MovImm, Dst: "rdx", Imm: 0x123456789A}),
		[]byte{0x48, 0xBA, 0x9A, 0x78, 0x56, 0x34, 0x12, 0x00, 0x00, 0x00})
	checkBytes(t, encodeOne(t, Instr{Op: MovImm, Dst: "r8", Imm: 7}),
		[]byte{0x49, 0xC7, 0xC0, 0x07, 0x00, 0x00, 0x00})
}

func TestEncodeALU(t *testing.T) {
	checkBytes(t, encodeOne(t, Instr{Op: AddRegReg, Dst: "rax", Src: "rcx"}),
		[]byte{0x48, 0x01, 0xC8})
	checkBytes(t, encodeOne(t, Instr{Op: SubRegReg, Dst: "rsi", Src: "r15"}),
		[]byte{0x4C, 0x29, 0xFE})
	checkBytes(t, encodeOne(t, Instr{Op: CmpRegReg, Dst: "rax", Src: "rbx"}),
		[]byte{0x48, 0x39, 0xD8})
}

func TestEncodeStackSlots(t *testing.T) {
	checkBytes(t, encodeOne(t, Instr{Op: StoreStack, Src: "rbx", Base: "rsp", Off: 16}),
		[]byte{0x48, 0x89, 0x9C, 0x24, 0x10, 0x00, 0x00, 0x00})
	checkBytes(t, encodeOne(t, Instr{Op: LoadStack, Dst: "r12", Base: "rsp", Off: 8}),
		[]byte{0x4C, 0x8B, 0xA4, 0x24, 0x08, 0x00, 0x00, 0x00})
	// r12 as base needs the same SIB escape as rsp.
	checkBytes(t, encodeOne(t, Instr{Op: StoreStack, Src: "rax", Base: "r12", Off: 0}),
		[]byte{0x49, 0x89, 0x84, 0x24, 0x00, 0x00, 0x00, 0x00})
}

func TestEncodeAdjustSP(t *testing.T) {
	checkBytes(t, encodeOne(t, Instr{Op: AdjustSP, Imm: -24}),
		[]byte{0x48, 0x83, 0xEC, 0x18})
	checkBytes(t, encodeOne(t, Instr{Op: AdjustSP, Imm: 24}),
		[]byte{0x48, 0x83, 0xC4, 0x18})
	checkBytes(t, encodeOne(t, Instr{Op: AdjustSP, Imm: -200}),
		[]byte{0x48, 0x81, 0xEC, 0xC8, 0x00, 0x00, 0x00})
	checkBytes(t, encodeOne(t, Instr{Op: AdjustSP, Imm: 200}),
		[]byte{0x48, 0x81, 0xC4, 0xC8, 0x00, 0x00, 0x00})
}

func TestEncodePushPop(t *testing.T) {
	checkBytes(t, encodeOne(t, Instr{Op: PushReg, Dst: "rbx"}), []byte{0x53})
	checkBytes(t, encodeOne(t, Instr{Op: PushReg, Dst: "r12"}), []byte{0x41, 0x54})
	checkBytes(t, encodeOne(t, Instr{Op: PopReg, Dst: "rbx"}), []byte{0x5B})
	checkBytes(t, encodeOne(t, Instr{Op: PopReg, Dst: "r15"}), []byte{0x41, 0x5F})
}

func TestEncodeRet(t *testing.T) {
	checkBytes(t, encodeOne(t, Instr{Op: Ret}), []byte{0xC3})
}

// TestEncodeCondBr checks that the two-way branch always emits both the
// conditional arm and the unconditional fallthrough arm.
func TestEncodeCondBr(t *testing.T) {
	cb := NewCodeBuffer(ArchX86_64)
	enc, err := NewEncoder(&SystemVAMD64{}, cb)
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}
	taken, fall := cb.NewLabel(), cb.NewLabel()
	if err := enc.Emit(&Instr{Op: CondBr, Cond: JumpLess, Target: taken, Else: fall}); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	cb.BindLabel(taken)
	enc.Emit(&Instr{Op: Ret})
	cb.BindLabel(fall)
	enc.Emit(&Instr{Op: Ret})

	checkBytes(t, cb.Finalize().Text, []byte{
		0x0F, 0x8C, 0x05, 0x00, 0x00, 0x00, // jl taken
		0xE9, 0x01, 0x00, 0x00, 0x00, // jmp fall
		0xC3,
		0xC3,
	})
}

// TestEncodeOneWayCondBr checks both shapes: the direct short form when
// a bound target is in rel8 range, and the inverted hop over a far jump
// when it is not.
func TestEncodeOneWayCondBr(t *testing.T) {
	cb := NewCodeBuffer(ArchX86_64)
	enc, err := NewEncoder(&SystemVAMD64{}, cb)
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}
	l := cb.NewLabel()
	cb.BindLabel(l)
	enc.Emit(&Instr{Op: MovRegReg, Dst: "rax", Src: "rbx"})
	enc.Emit(&Instr{Op: OneWayCondBr, Cond: JumpEqual, Target: l})
	checkBytes(t, cb.Finalize().Text, []byte{
		0x48, 0x89, 0xD8,
		0x74, 0xFB, // je -5
	})

	cb = NewCodeBuffer(ArchX86_64)
	enc, _ = NewEncoder(&SystemVAMD64{}, cb)
	far := cb.NewLabel()
	enc.Emit(&Instr{Op: OneWayCondBr, Cond: JumpEqual, Target: far})
	cb.BindLabel(far)
	enc.Emit(&Instr{Op: Ret})
	checkBytes(t, cb.Finalize().Text, []byte{
		0x75, 0x05, // jne over the far jump
		0xE9, 0x00, 0x00, 0x00, 0x00,
		0xC3,
	})
}

// TestEncodeCall checks the reloc, call-site and stack-map records of a
// direct call.
func TestEncodeCall(t *testing.T) {
	cb := NewCodeBuffer(ArchX86_64)
	enc, err := NewEncoder(&SystemVAMD64{}, cb)
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}
	if err := enc.Emit(&Instr{Op: Call, Sym: "memcpy", StackMap: []byte{0x01}}); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	obj := cb.Finalize()

	checkBytes(t, obj.Text, []byte{0xE8, 0x00, 0x00, 0x00, 0x00})
	if len(obj.Relocs) != 1 {
		t.Fatalf("Expected 1 reloc, got %d", len(obj.Relocs))
	}
	r := obj.Relocs[0]
	if r.Offset != 1 || r.Kind != RelocCallPCRel4 || r.Symbol != "memcpy" || r.Addend != -4 {
		t.Errorf("Bad reloc: %+v", r)
	}
	if len(obj.CallSites) != 1 || obj.CallSites[0].Offset != 5 {
		t.Errorf("Call site must record the end of the call: %+v", obj.CallSites)
	}
	if len(obj.StackMaps) != 1 || obj.StackMaps[0].Offset != 5 {
		t.Errorf("Stack map must share the call site offset: %+v", obj.StackMaps)
	}
}

func TestEncodeCallIndirect(t *testing.T) {
	checkBytes(t, encodeOne(t, Instr{Op: CallInd, Dst: "rax"}), []byte{0xFF, 0xD0})
	checkBytes(t, encodeOne(t, Instr{Op: CallInd, Dst: "r12"}), []byte{0x41, 0xFF, 0xD4})
}

// TestEncodeTrapIf checks the inverted hop over the ud2 and the trap
// table entry pointing at the ud2 itself.
func TestEncodeTrapIf(t *testing.T) {
	cb := NewCodeBuffer(ArchX86_64)
	enc, err := NewEncoder(&SystemVAMD64{}, cb)
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}
	if err := enc.Emit(&Instr{Op: TrapIf, Cond: JumpBelow, TrapCode: TrapStackOverflow}); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	obj := cb.Finalize()

	checkBytes(t, obj.Text, []byte{0x73, 0x02, 0x0F, 0x0B})
	if len(obj.Traps) != 1 || obj.Traps[0].Offset != 2 || obj.Traps[0].Code != TrapStackOverflow {
		t.Errorf("Bad trap table: %+v", obj.Traps)
	}
}

func TestEncodeUd2(t *testing.T) {
	cb := NewCodeBuffer(ArchX86_64)
	enc, err := NewEncoder(&SystemVAMD64{}, cb)
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}
	if err := enc.Emit(&Instr{Op: Ud2, TrapCode: TrapUnreachable}); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	obj := cb.Finalize()
	checkBytes(t, obj.Text, []byte{0x0F, 0x0B})
	if len(obj.Traps) != 1 || obj.Traps[0].Offset != 0 {
		t.Errorf("Bad trap table: %+v", obj.Traps)
	}
}

// TestConditionInversionInvolution checks the inversion table is total,
// a genuine involution, and never maps a condition to itself.
func TestConditionInversionInvolution(t *testing.T) {
	for c := JumpCondition(0); c < numJumpConditions; c++ {
		inv := c.Invert()
		if inv == c {
			t.Errorf("%s inverts to itself", c)
		}
		if inv.Invert() != c {
			t.Errorf("%s inverts to %s which inverts to %s", c, inv, inv.Invert())
		}
	}
}

// TestConditionNames checks that every condition formats to a distinct
// mnemonic and out-of-range values do not.
func TestConditionNames(t *testing.T) {
	seen := make(map[string]bool)
	for c := JumpCondition(0); c < numJumpConditions; c++ {
		name := c.String()
		if name == "jcc?" {
			t.Errorf("Condition %d has no mnemonic", int(c))
		}
		if seen[name] {
			t.Errorf("Mnemonic %s used twice", name)
		}
		seen[name] = true
	}
	if numJumpConditions.String() != "jcc?" {
		t.Errorf("Out-of-range condition formats as %s", numJumpConditions.String())
	}
}

// TestShortLongOpcodePairing checks the fixed distance between the short
// and near forms of every conditional jump.
func TestShortLongOpcodePairing(t *testing.T) {
	for c := JumpCondition(0); c < numJumpConditions; c++ {
		long, short := jccLongOpcode(c), jccShortOpcode(c)
		if long < 0x80 || long > 0x8F {
			t.Errorf("%s: near opcode %02x outside 0F 8x", c, long)
		}
		if short != long-0x10 {
			t.Errorf("%s: short opcode %02x does not pair with near %02x", c, short, long)
		}
	}
}

// TestWorstCaseSizeHolds emits a spread of instructions and relies on
// the encoder's internal budget check to fail the test on violation.
func TestWorstCaseSizeHolds(t *testing.T) {
	instrs := []Instr{
		{Op: MovRegReg, Dst: "r15", Src: "r8"},
		{Op: MovImm, Dst: "rax", Imm: 1 << 40},
		{Op: LoadStack, Dst: "r13", Base: "rsp", Off: 1 << 20},
		{Op: StoreStack, Src: "rbp", Base: "rsp", Off: 0},
		{Op: AddRegReg, Dst: "rax", Src: "rbx"},
		{Op: AdjustSP, Imm: -(1 << 16)},
		{Op: PushReg, Dst: "r8"},
		{Op: PopReg, Dst: "r8"},
		{Op: CallInd, Dst: "r11"},
		{Op: Ud2},
		{Op: Ret},
	}
	encodeSeq(t, instrs)
}

func TestEncoderRejectsOtherArchitectures(t *testing.T) {
	for _, cc := range []CallingConvention{&AAPCS64{}, &Riscv64CC{}} {
		cb := NewCodeBuffer(cc.Arch())
		if _, err := NewEncoder(cc, cb); err == nil {
			t.Errorf("%s must not get an encoder", cc.Name())
		}
	}
}

// TestJumpTableRejectsBadIndex checks the index-register guard: r10 and
// r11 are the dispatch scratch registers, and rsp's encoding is the SIB
// "no index" marker, which would silently dispatch to entry 0.
func TestJumpTableRejectsBadIndex(t *testing.T) {
	cb := NewCodeBuffer(ArchX86_64)
	enc, err := NewEncoder(&SystemVAMD64{}, cb)
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}
	l := cb.NewLabel()
	cb.BindLabel(l)
	for _, reg := range []string{"r10", "r11", "rsp"} {
		err := enc.Emit(&Instr{Op: JumpTable, Dst: reg, Targets: []Label{l}})
		if err == nil {
			t.Fatalf("Jump table with %s index must be rejected", reg)
		}
		if _, ok := err.(*UnsupportedError); !ok {
			t.Errorf("%s: expected *UnsupportedError, got %T", reg, err)
		}
	}
	// r12 shares rsp's low encoding bits but is addressable through REX.X.
	if err := enc.Emit(&Instr{Op: JumpTable, Dst: "r12", Targets: []Label{l}}); err != nil {
		t.Errorf("r12 index must be accepted: %v", err)
	}
}

func TestFloatOperandFatal(t *testing.T) {
	cb := NewCodeBuffer(ArchX86_64)
	enc, err := NewEncoder(&SystemVAMD64{}, cb)
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}
	expectInternalError(t, "Integer op on xmm0", func() {
		enc.Emit(&Instr{Op: MovRegReg, Dst: "xmm0", Src: "rax"})
	})
}
