// Completion: 100% - x86-64 encoder complete
package backend

// x86-64 per-instruction encoder. This is the only ISA-specific file in
// the emission path: everything above it speaks abstract instructions and
// displacement classes. Encodings follow the Intel SDM; REX prefixes are
// composed from the operand encodings in the register table.

// Encoder turns abstract instructions into bytes in a CodeBuffer.
type Encoder struct {
	cc CallingConvention
	cb *CodeBuffer
}

// NewEncoder creates an encoder for the convention's architecture. Only
// x86-64 has an encoder; other architectures are rejected, never
// approximated.
func NewEncoder(cc CallingConvention, cb *CodeBuffer) (*Encoder, error) {
	if cc.Arch() != ArchX86_64 {
		return nil, unsupportedf("", "instruction encoder for %s", cc.Arch())
	}
	return &Encoder{cc: cc, cb: cb}, nil
}

// Emit encodes one instruction. The number of bytes written is checked
// against the instruction's declared worst-case size; exceeding it would
// invalidate upstream layout decisions and is fatal.
func (e *Encoder) Emit(inst *Instr) error {
	worst := WorstCaseSize(inst)

	// Keep every open short-range fixup resolvable: if this instruction
	// could strand one, jump over an island of veneers first.
	if e.cb.IslandNeeded(uint32(worst)) {
		around := e.cb.NewLabel()
		e.jmpTo(around)
		e.cb.EmitIsland(0)
		e.cb.BindLabel(around)
	}

	start := e.cb.CurOffset()
	if err := e.emit(inst); err != nil {
		return err
	}
	if written := int(e.cb.CurOffset() - start); written > worst {
		internalError("%s wrote %d bytes, worst-case size is %d", inst.Op, written, worst)
	}
	return nil
}

func (e *Encoder) emit(inst *Instr) error {
	switch inst.Op {
	case Nop, ArgMarshal:
		// bookkeeping only

	case MovRegReg:
		dst, src := e.intReg(inst.Dst), e.intReg(inst.Src)
		e.cb.PutBytes([]byte{rexRB(src, dst), 0x89, modrmRegReg(src, dst)})

	case MovImm:
		dst := e.intReg(inst.Dst)
		if fitsInt32(inst.Imm) {
			// mov r/m64, imm32 (sign-extended)
			e.cb.PutBytes([]byte{rexB(dst), 0xC7, 0xC0 | dst.Encoding&7})
			e.cb.Put4(uint32(int32(inst.Imm)))
		} else {
			// mov r64, imm64
			e.cb.PutBytes([]byte{rexB(dst), 0xB8 + dst.Encoding&7})
			e.cb.Put8(uint64(inst.Imm))
		}

	case LoadStack:
		dst, base := e.intReg(inst.Dst), e.intReg(inst.Base)
		e.memOp(0x8B, dst, base, inst.Off)

	case StoreStack:
		src, base := e.intReg(inst.Src), e.intReg(inst.Base)
		e.memOp(0x89, src, base, inst.Off)

	case AddRegReg:
		dst, src := e.intReg(inst.Dst), e.intReg(inst.Src)
		e.cb.PutBytes([]byte{rexRB(src, dst), 0x01, modrmRegReg(src, dst)})

	case SubRegReg:
		dst, src := e.intReg(inst.Dst), e.intReg(inst.Src)
		e.cb.PutBytes([]byte{rexRB(src, dst), 0x29, modrmRegReg(src, dst)})

	case CmpRegReg:
		dst, src := e.intReg(inst.Dst), e.intReg(inst.Src)
		e.cb.PutBytes([]byte{rexRB(src, dst), 0x39, modrmRegReg(src, dst)})

	case AdjustSP:
		e.adjustSP(inst.Imm)

	case PushReg:
		r := e.intReg(inst.Dst)
		if r.Encoding >= 8 {
			e.cb.Put1(0x41)
		}
		e.cb.Put1(0x50 + r.Encoding&7)

	case PopReg:
		r := e.intReg(inst.Dst)
		if r.Encoding >= 8 {
			e.cb.Put1(0x41)
		}
		e.cb.Put1(0x58 + r.Encoding&7)

	case Jmp:
		e.jmpTo(inst.Target)

	case CondBr:
		// Both arms are always emitted: the relocatable jcc for the
		// taken edge, then an unconditional jump for the fallthrough
		// edge, so the buffer stays valid before layout is final.
		e.jccLong(inst.Cond, inst.Target)
		e.jmpTo(inst.Else)

	case CondBrShort:
		e.cb.Put1(jccShortOpcode(inst.Cond))
		field := e.cb.CurOffset()
		e.cb.Put1(0)
		e.cb.UseLabelAt(field, inst.Target, DispRel8)

	case OneWayCondBr:
		// When the direct rel8 form cannot reach, emit the inverted
		// condition hopping over a far jump. The inverted predicate
		// comes from the lookup table.
		if e.rel8Reaches(inst.Target) {
			e.cb.Put1(jccShortOpcode(inst.Cond))
			field := e.cb.CurOffset()
			e.cb.Put1(0)
			e.cb.UseLabelAt(field, inst.Target, DispRel8)
		} else {
			e.cb.PutBytes([]byte{jccShortOpcode(inst.Cond.Invert()), maxJmp})
			e.jmpTo(inst.Target)
		}

	case Call:
		e.cb.Put1(0xE8)
		e.cb.AddReloc(RelocCallPCRel4, inst.Sym, -4)
		e.cb.Put4(0)
		e.cb.AddCallSite()
		if inst.StackMap != nil {
			e.cb.AddStackMap(inst.StackMap)
		}

	case CallInd:
		r := e.intReg(inst.Dst)
		if r.Encoding >= 8 {
			e.cb.Put1(0x41)
		}
		e.cb.PutBytes([]byte{0xFF, 0xD0 | r.Encoding&7})
		e.cb.AddCallSite()
		if inst.StackMap != nil {
			e.cb.AddStackMap(inst.StackMap)
		}

	case TrapIf:
		// Inverted jcc over a ud2; the trap table points at the ud2.
		e.cb.PutBytes([]byte{jccShortOpcode(inst.Cond.Invert()), maxUd2})
		e.cb.DeferTrap(inst.TrapCode)
		e.cb.PutBytes([]byte{0x0F, 0x0B})

	case Ud2:
		e.cb.DeferTrap(inst.TrapCode)
		e.cb.PutBytes([]byte{0x0F, 0x0B})

	case JumpTable:
		return e.emitJumpTable(inst)

	case Ret:
		e.cb.Put1(0xC3)

	default:
		internalError("encoder reached unknown op %d", inst.Op)
	}
	return nil
}

// emitJumpTable emits the indexed dispatch and its table. The table is
// size-unbounded, so the island policy is consulted first; entries are
// self-relative rel32 words resolved through ordinary fixups.
func (e *Encoder) emitJumpTable(inst *Instr) error {
	if len(inst.Targets) == 0 {
		internalError("jump table with no targets")
	}
	idx := e.intReg(inst.Dst)
	if idx.Encoding == 10 || idx.Encoding == 11 {
		return unsupportedf(inst.Op.String(), "jump table index in scratch register %s", inst.Dst)
	}
	if idx.Encoding == 4 {
		// Encoding 4 in the SIB index field means "no index": the dispatch
		// would ignore the register entirely and always take entry 0.
		return unsupportedf(inst.Op.String(), "jump table index in %s", inst.Dst)
	}

	table := e.cb.NewLabel()

	// lea r11, [rip + table]
	e.cb.PutBytes([]byte{0x4C, 0x8D, 0x1D})
	field := e.cb.CurOffset()
	e.cb.Put4(0)
	e.cb.UseLabelAt(field, table, DispRel32)

	// lea r11, [r11 + idx*4] -> r11 = address of the selected entry
	rex := byte(0x4C) | 0x01 // R for r11, B for r11 base
	if idx.Encoding >= 8 {
		rex |= 0x02 // X
	}
	e.cb.PutBytes([]byte{rex, 0x8D, 0x1C, 0x80 | (idx.Encoding&7)<<3 | 0x03})

	// movsxd r10, dword [r11]
	e.cb.PutBytes([]byte{0x4D, 0x63, 0x13})

	// add r11, 4 -> entry reference point (end of the rel32 field)
	e.cb.PutBytes([]byte{0x49, 0x83, 0xC3, 0x04})

	// add r11, r10 ; jmp r11
	e.cb.PutBytes([]byte{0x4D, 0x01, 0xD3})
	e.cb.PutBytes([]byte{0x41, 0xFF, 0xE3})

	e.cb.BindLabel(table)
	for _, t := range inst.Targets {
		entry := e.cb.CurOffset()
		e.cb.Put4(0)
		e.cb.UseLabelAt(entry, t, DispRel32)
	}
	return nil
}

func (e *Encoder) adjustSP(imm int64) {
	opcode, modrm := byte(0x81), byte(0xC4) // add rsp, imm32
	v := imm
	if imm < 0 {
		opcode, modrm = 0x81, 0xEC // sub rsp, imm32
		v = -imm
	}
	if v < 0 || v > 1<<31-1 {
		internalError("stack adjustment %d exceeds imm32", imm)
	}
	if v <= 127 {
		// 83 /0 and /5: sign-extended imm8 forms
		e.cb.PutBytes([]byte{0x48, 0x83, modrm, byte(v)})
		return
	}
	e.cb.PutBytes([]byte{0x48, opcode, modrm})
	e.cb.Put4(uint32(int32(v)))
}

// memOp encodes opcode /r with a [base+disp32] operand.
func (e *Encoder) memOp(opcode byte, reg, base Register, off int64) {
	if off < -(1<<31) || off > 1<<31-1 {
		internalError("frame displacement %d exceeds disp32", off)
	}
	rex := byte(0x48)
	if reg.Encoding >= 8 {
		rex |= 0x04
	}
	if base.Encoding >= 8 {
		rex |= 0x01
	}
	modrm := byte(0x80) | (reg.Encoding&7)<<3 | base.Encoding&7
	e.cb.PutBytes([]byte{rex, opcode, modrm})
	if base.Encoding&7 == 4 {
		e.cb.Put1(0x24) // SIB: rsp/r12 base
	}
	e.cb.Put4(uint32(int32(off)))
}

func (e *Encoder) jmpTo(l Label) {
	e.cb.Put1(0xE9)
	field := e.cb.CurOffset()
	e.cb.Put4(0)
	e.cb.UseLabelAt(field, l, DispRel32)
}

func (e *Encoder) jccLong(cond JumpCondition, l Label) {
	e.cb.PutBytes([]byte{0x0F, jccLongOpcode(cond)})
	field := e.cb.CurOffset()
	e.cb.Put4(0)
	e.cb.UseLabelAt(field, l, DispRel32)
}

// rel8Reaches reports whether a short jcc emitted here could reach an
// already-bound label.
func (e *Encoder) rel8Reaches(l Label) bool {
	if !e.cb.Bound(l) {
		return false
	}
	disp := int64(e.cb.labelOffset(l)) - (int64(e.cb.CurOffset()) + maxJccShort)
	return disp >= -128 && disp <= 127
}

// intReg resolves an integer-class operand register.
func (e *Encoder) intReg(name string) Register {
	r := lookupReg(ArchX86_64, name)
	if r.Class != ClassInt {
		internalError("integer operand expected, got %s register %q", r.Class.classString(), name)
	}
	return r
}

func (c RegClass) classString() string {
	if c == ClassFloat {
		return "float"
	}
	return "int"
}

func rexRB(reg, rm Register) byte {
	rex := byte(0x48)
	if reg.Encoding >= 8 {
		rex |= 0x04
	}
	if rm.Encoding >= 8 {
		rex |= 0x01
	}
	return rex
}

func rexB(rm Register) byte {
	if rm.Encoding >= 8 {
		return 0x49
	}
	return 0x48
}

func modrmRegReg(reg, rm Register) byte {
	return 0xC0 | (reg.Encoding&7)<<3 | rm.Encoding&7
}

func fitsInt32(v int64) bool {
	return v >= -(1<<31) && v <= 1<<31-1
}

// jccLongOpcode returns the second byte of the near (0F 8x, rel32)
// conditional jump encoding.
func jccLongOpcode(cond JumpCondition) byte {
	switch cond {
	case JumpEqual:
		return 0x84 // je
	case JumpNotEqual:
		return 0x85 // jne
	case JumpGreater:
		return 0x8F // jg
	case JumpGreaterOrEqual:
		return 0x8D // jge
	case JumpLess:
		return 0x8C // jl
	case JumpLessOrEqual:
		return 0x8E // jle
	case JumpAbove:
		return 0x87 // ja
	case JumpAboveOrEqual:
		return 0x83 // jae
	case JumpBelow:
		return 0x82 // jb
	case JumpBelowOrEqual:
		return 0x86 // jbe
	case JumpParity:
		return 0x8A // jp
	case JumpNotParity:
		return 0x8B // jnp
	default:
		internalError("near opcode for unknown condition %d", cond)
		return 0
	}
}

// jccShortOpcode returns the short (7x, rel8) conditional jump opcode.
func jccShortOpcode(cond JumpCondition) byte {
	return jccLongOpcode(cond) - 0x10
}
