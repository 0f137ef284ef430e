package amd64

import (
	"github.com/asmforge/ngen/backend"
	"github.com/asmforge/ngen/internal/diag"
	"github.com/asmforge/ngen/ir"
)

// AsmOut is the shared X86-64 encoder: a dispatch table from opcode to a
// small function that writes modRM/REX-encoded bytes through a
// backend.Output sink, run once per sizing pass and once per code pass
// exactly as the surrounding Binary.Compile driver does for every target.
//
// Modeled on instr_encoding.go's (REX prefix construction,
// modRM/SIB byte layout, the opcode-to-encoding-function dispatch shape);
// ngen's version is condensed to the operand forms ngen's RemoveInvalid
// pass is guaranteed to produce (register, register-relative with a
// 32-bit displacement, and small immediates) rather than wazero's full
// vector-instruction surface.
type AsmOut struct {
	Logger *diag.Logger
}

func (a *AsmOut) Encode(l *ir.Listing, frame *backend.FrameInfo, out backend.Output) error {
	for i, instr := range l.Instrs() {
		for _, lbl := range l.LabelsBefore(i) {
			out.PlaceLabel(lbl)
		}
		if err := a.encodeOne(instr, frame, out); err != nil {
			return err
		}
	}
	for _, lbl := range l.LabelsBefore(l.Len()) {
		out.PlaceLabel(lbl)
	}
	if l.ExceptionAware {
		return a.encodeActiveBlocksTable(l, frame, out)
	}
	return nil
}

// encodeActiveBlocksTable appends spec.md §6's active-blocks table after
// the function's code: pointer-aligned, per-variable metadata (free
// function pointer or all-zero if none, frame offset, activation id), then
// one (label offset, packed fn-state) pair per entry Layout recorded, in
// emission order, terminated by a pointer-sized count. The runtime
// unwinder binary-searches this by PC once the code is published.
func (a *AsmOut) encodeActiveBlocksTable(l *ir.Listing, frame *backend.FrameInfo, out backend.Output) error {
	for out.Pos()%8 != 0 {
		out.WriteBytes([]byte{0})
	}

	for _, v := range l.Vars() {
		if v.Policy.FreeFunc == nil {
			out.WriteBytes(make([]byte, 8))
		} else {
			out.Relocate(backend.RelocRawPointer, v.Policy.FreeFunc, ir.Label(0))
			out.WriteBytes(make([]byte, 8))
		}
		out.WriteBytes(le32(frame.VarOffsets[v.ID]))
		out.WriteBytes(le32(int32(v.ActivationID())))
	}

	for _, entry := range frame.ActiveBlocks {
		off, ok := out.LabelOffset(entry.CodeLabel)
		if !ok {
			return ir.NewInvalidValue(0, "active-blocks entry references a label that was never placed")
		}
		out.WriteBytes(le32(int32(off)))
		out.WriteBytes(le32(int32(entry.State())))
	}

	count := int64(len(frame.ActiveBlocks))
	out.WriteBytes([]byte{
		byte(count), byte(count >> 8), byte(count >> 16), byte(count >> 24),
		byte(count >> 32), byte(count >> 40), byte(count >> 48), byte(count >> 56),
	})
	return nil
}

func (a *AsmOut) encodeOne(instr ir.Instr, frame *backend.FrameInfo, out backend.Output) error {
	switch instr.Opcode {
	case ir.OpNop:
		out.WriteBytes([]byte{0x90})
	case ir.OpRet:
		out.WriteBytes([]byte{0xC3})
	case ir.OpPush:
		return a.encodePush(instr, frame, out)
	case ir.OpPop:
		return a.encodePop(instr, frame, out)
	case ir.OpMov:
		return a.encodeMov(instr, frame, out)
	case ir.OpLea:
		return a.encodeLea(instr, frame, out)
	case ir.OpAdd, ir.OpSub, ir.OpAnd, ir.OpOr, ir.OpXor, ir.OpCmp:
		return a.encodeArith(instr, frame, out)
	case ir.OpCall:
		return a.encodeCall(instr, out)
	case ir.OpJmp:
		return a.encodeJmp(instr, out)
	default:
		return ir.NewInvalidValue(instr.Pos(), "amd64 encoder has no rule for this opcode yet")
	}
	return nil
}

// regField maps a Reg's slot to the 3-bit encoding field plus whether a
// REX.B/R/X extension bit is needed (slots 8-15, r8-r15).
func regField(r ir.Reg) (field byte, ext bool) {
	slot := r.Slot()
	return slot & 0x7, slot >= 8
}

func rexPrefix(w, r, x, b bool) byte {
	rex := byte(0x40)
	if w {
		rex |= 0x08
	}
	if r {
		rex |= 0x04
	}
	if x {
		rex |= 0x02
	}
	if b {
		rex |= 0x01
	}
	return rex
}

func modRMReg(mod, reg, rm byte) byte { return mod<<6 | (reg&7)<<3 | (rm & 7) }

func le32(v int32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func (a *AsmOut) encodePush(instr ir.Instr, frame *backend.FrameInfo, out backend.Output) error {
	if instr.Src.Kind != ir.OperandReg {
		return ir.NewInvalidValue(instr.Pos(), "push only supports a register operand")
	}
	field, ext := regField(instr.Src.Reg)
	if ext {
		out.WriteBytes([]byte{rexPrefix(false, false, false, true)})
	}
	out.WriteBytes([]byte{0x50 + field})
	return nil
}

func (a *AsmOut) encodePop(instr ir.Instr, frame *backend.FrameInfo, out backend.Output) error {
	if instr.Dest.Kind != ir.OperandReg {
		return ir.NewInvalidValue(instr.Pos(), "pop only supports a register operand")
	}
	field, ext := regField(instr.Dest.Reg)
	if ext {
		out.WriteBytes([]byte{rexPrefix(false, false, false, true)})
	}
	out.WriteBytes([]byte{0x58 + field})
	return nil
}

// encodeMov handles reg<-reg, reg<-imm32, and reg<-[reg+disp32]/[reg+disp32]<-reg,
// the three forms the legalization pass guarantees by the time AsmOut sees
// a mov.
func (a *AsmOut) encodeMov(instr ir.Instr, frame *backend.FrameInfo, out backend.Output) error {
	w := instr.Dest.Size == ir.Size64

	switch {
	case instr.Dest.Kind == ir.OperandReg && instr.Src.Kind == ir.OperandReg:
		df, dExt := regField(instr.Dest.Reg)
		sf, sExt := regField(instr.Src.Reg)
		out.WriteBytes([]byte{rexPrefix(w, sExt, false, dExt), 0x89, modRMReg(0b11, sf, df)})
		return nil
	case instr.Dest.Kind == ir.OperandReg && instr.Src.Kind == ir.OperandConst:
		df, dExt := regField(instr.Dest.Reg)
		out.WriteBytes([]byte{rexPrefix(w, false, false, dExt), 0xC7, modRMReg(0b11, 0, df)})
		out.WriteBytes(le32(int32(instr.Src.Imm)))
		return nil
	case instr.Dest.Kind == ir.OperandReg && instr.Src.Kind == ir.OperandRegRel:
		return encodeRegRelMove(instr.Dest.Reg, instr.Src, w, 0x8B, out)
	case instr.Dest.Kind == ir.OperandRegRel && instr.Src.Kind == ir.OperandReg:
		return encodeRegRelMove(instr.Src.Reg, instr.Dest, w, 0x89, out)
	case instr.Dest.Kind == ir.OperandVar:
		// Frame-relative variable access resolves to an rbp-relative
		// register-indirect move once Layout has assigned an offset.
		off, ok := frame.VarOffsets[instr.Dest.Var.ID]
		if !ok {
			return ir.NewInvalidValue(instr.Pos(), "variable has no assigned frame offset")
		}
		synth := ir.RegRelOperand(instr.Dest.Size, RBP(ir.Size64), ir.Offset(off))
		if instr.Src.Kind == ir.OperandReg {
			return encodeRegRelMove(instr.Src.Reg, synth, w, 0x89, out)
		}
		// mov [rbp+off], imm
		_, dExt := regField(RBP(ir.Size64))
		out.WriteBytes([]byte{rexPrefix(w, false, false, dExt), 0xC7, modRMReg(0b10, 0, 5)})
		out.WriteBytes(le32(int32(off)))
		out.WriteBytes(le32(int32(instr.Src.Imm)))
		return nil
	default:
		return ir.NewInvalidValue(instr.Pos(), "unsupported mov operand combination")
	}
}

func encodeRegRelMove(reg ir.Reg, mem ir.Operand, w bool, opcode byte, out backend.Output) error {
	rf, rExt := regField(reg)
	bf, bExt := regField(mem.Reg)
	out.WriteBytes([]byte{rexPrefix(w, rExt, false, bExt), opcode, modRMReg(0b10, rf, bf)})
	if bf == 4 {
		out.WriteBytes([]byte{0x24}) // SIB: base==rsp/r12 needs an explicit SIB byte
	}
	out.WriteBytes(le32(int32(mem.Offset)))
	return nil
}

func (a *AsmOut) encodeLea(instr ir.Instr, frame *backend.FrameInfo, out backend.Output) error {
	if instr.Dest.Kind != ir.OperandReg {
		return ir.NewInvalidValue(instr.Pos(), "lea requires a register destination")
	}
	switch instr.Src.Kind {
	case ir.OperandRegRel:
		return encodeRegRelMove(instr.Dest.Reg, instr.Src, instr.Dest.Size == ir.Size64, 0x8D, out)
	case ir.OperandVar:
		off, ok := frame.VarOffsets[instr.Src.Var.ID]
		if !ok {
			return ir.NewInvalidValue(instr.Pos(), "variable has no assigned frame offset")
		}
		synth := ir.RegRelOperand(instr.Dest.Size, RBP(ir.Size64), ir.Offset(off))
		return encodeRegRelMove(instr.Dest.Reg, synth, instr.Dest.Size == ir.Size64, 0x8D, out)
	default:
		return ir.NewInvalidValue(instr.Pos(), "unsupported lea source operand")
	}
}

// arithOpcodeExt maps each two-register-operand arithmetic opcode to its
// /r opcode byte (register-destination form) and its modRM reg-field
// extension (the `/digit` used by the imm32 form).
var arithOpcodeExt = map[ir.Opcode]struct {
	rmOpcode byte
	digit    byte
}{
	ir.OpAdd: {0x01, 0},
	ir.OpSub: {0x29, 5},
	ir.OpAnd: {0x21, 4},
	ir.OpOr:  {0x09, 1},
	ir.OpXor: {0x31, 6},
	ir.OpCmp: {0x39, 7},
}

func (a *AsmOut) encodeArith(instr ir.Instr, frame *backend.FrameInfo, out backend.Output) error {
	enc, ok := arithOpcodeExt[instr.Opcode]
	if !ok {
		return ir.NewInvalidValue(instr.Pos(), "unsupported arithmetic opcode")
	}
	w := instr.Dest.Size == ir.Size64

	if instr.Dest.Kind == ir.OperandReg && instr.Src.Kind == ir.OperandReg {
		df, dExt := regField(instr.Dest.Reg)
		sf, sExt := regField(instr.Src.Reg)
		out.WriteBytes([]byte{rexPrefix(w, sExt, false, dExt), enc.rmOpcode, modRMReg(0b11, sf, df)})
		return nil
	}
	if instr.Dest.Kind == ir.OperandReg && instr.Src.Kind == ir.OperandConst {
		df, dExt := regField(instr.Dest.Reg)
		out.WriteBytes([]byte{rexPrefix(w, false, false, dExt), 0x81, modRMReg(0b11, enc.digit, df)})
		out.WriteBytes(le32(int32(instr.Src.Imm)))
		return nil
	}
	return ir.NewInvalidValue(instr.Pos(), "unsupported arithmetic operand combination")
}

func (a *AsmOut) encodeCall(instr ir.Instr, out backend.Output) error {
	out.WriteBytes([]byte{0xE8})
	return a.writeRel32Target(instr.Src, out)
}

func (a *AsmOut) encodeJmp(instr ir.Instr, out backend.Output) error {
	if instr.JumpCond == ir.CondAlways {
		out.WriteBytes([]byte{0xE9})
	} else {
		cc, err := conditionCode(instr.JumpCond)
		if err != nil {
			return err
		}
		out.WriteBytes([]byte{0x0F, 0x80 + cc})
	}
	return a.writeRel32Target(instr.Src, out)
}

// writeRel32Target emits the 4-byte rel32 field for a call/jmp whose target
// is either an intra-listing Label (resolved directly once placed, or
// recorded as a same-listing relocation otherwise) or an external Ref (always
// a relocation, since its address is only known at GC-publish time).
func (a *AsmOut) writeRel32Target(src ir.Operand, out backend.Output) error {
	switch src.Kind {
	case ir.OperandLabel:
		if off, ok := out.LabelOffset(src.Label); ok {
			rel := int32(off - (out.Pos() + 4))
			out.WriteBytes(le32(rel))
			return nil
		}
		out.Relocate(backend.RelocJumpRelative4, nil, src.Label)
		out.WriteBytes(le32(0))
		return nil
	case ir.OperandRef:
		out.Relocate(backend.RelocJumpRelative4, src.Ref, ir.Label(0))
		out.WriteBytes(le32(0))
		return nil
	default:
		return ir.NewInvalidValue(0, "call/jmp target must be a label or an external ref")
	}
}

func conditionCode(c ir.CondFlag) (byte, error) {
	switch c {
	case ir.CondEqual:
		return 0x4, nil
	case ir.CondNotEqual:
		return 0x5, nil
	case ir.CondLess:
		return 0xC, nil
	case ir.CondLessEqual:
		return 0xE, nil
	case ir.CondGreater:
		return 0xF, nil
	case ir.CondGreaterEqual:
		return 0xD, nil
	case ir.CondBelow:
		return 0x2, nil
	case ir.CondBelowEqual:
		return 0x6, nil
	case ir.CondAbove:
		return 0x7, nil
	case ir.CondAboveEqual:
		return 0x3, nil
	case ir.CondOverflow:
		return 0x0, nil
	case ir.CondNotOverflow:
		return 0x1, nil
	case ir.CondSign:
		return 0x8, nil
	case ir.CondNotSign:
		return 0x9, nil
	default:
		return 0, ir.NewInvalidValue(0, "unsupported condition code")
	}
}
