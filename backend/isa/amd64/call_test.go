package amd64

import (
	"testing"

	"github.com/asmforge/ngen/backend"
	"github.com/asmforge/ngen/ir"
	"github.com/stretchr/testify/require"
)

// simRegs interprets a mov/lea-only instruction sequence against an initial
// register file, keyed by ir.Reg.AliasKey, and returns the final values.
// setRegisters never emits anything else, so this is enough to check its
// output is a correct permutation rather than just "well-formed".
func simRegs(t *testing.T, initial map[uint8]int64, instrs []ir.Instr) map[uint8]int64 {
	t.Helper()
	regs := map[uint8]int64{}
	for k, v := range initial {
		regs[k] = v
	}
	for _, instr := range instrs {
		require.Equal(t, ir.OpMov, instr.Opcode, "setRegisters should only ever emit mov")
		require.Equal(t, ir.OperandReg, instr.Dest.Kind)
		var v int64
		switch instr.Src.Kind {
		case ir.OperandReg:
			v = regs[instr.Src.Reg.AliasKey()]
		case ir.OperandConst:
			v = instr.Src.Imm
		default:
			t.Fatalf("unexpected source operand kind %v", instr.Src.Kind)
		}
		regs[instr.Dest.Reg.AliasKey()] = v
	}
	return regs
}

func regArg(dst, src ir.Reg) placedArg {
	return placedArg{param: backend.Param{Reg: dst}, operand: ir.RegOperand(src)}
}

func constArg(dst ir.Reg, v int64) placedArg {
	return placedArg{param: backend.Param{Reg: dst}, operand: ir.ConstOperand(dst.Size(), v)}
}

func TestSetRegistersNoCycleChainTopDown(t *testing.T) {
	// dst order given already matches the dependency order: rdi:=rsi,
	// rsi:=rdx, rdx:=5. No move reads a register another move has already
	// overwritten, so no recursion or scratch use should be needed.
	args := []placedArg{
		regArg(RDI(ir.Size64), RSI(ir.Size64)),
		regArg(RSI(ir.Size64), RDX(ir.Size64)),
		constArg(RDX(ir.Size64), 5),
	}
	initial := map[uint8]int64{
		RDI(ir.Size64).AliasKey(): 100,
		RSI(ir.Size64).AliasKey(): 200,
		RDX(ir.Size64).AliasKey(): 300,
	}
	out := setRegisters(args, R10(ir.Size64))
	final := simRegs(t, initial, out)

	require.Equal(t, int64(200), final[RDI(ir.Size64).AliasKey()], "rdi should get rsi's original value")
	require.Equal(t, int64(300), final[RSI(ir.Size64).AliasKey()], "rsi should get rdx's original value")
	require.Equal(t, int64(5), final[RDX(ir.Size64).AliasKey()])
}

func TestSetRegistersNoCycleChainReversedInput(t *testing.T) {
	// Same chain, fed in the opposite (dependency-violating) order: this is
	// exactly the case that needs the reader-before-writer recursion, since
	// a naive in-order emission would clobber rdx and rsi before their
	// final readers run.
	args := []placedArg{
		constArg(RDX(ir.Size64), 5),
		regArg(RSI(ir.Size64), RDX(ir.Size64)),
		regArg(RDI(ir.Size64), RSI(ir.Size64)),
	}
	initial := map[uint8]int64{
		RDI(ir.Size64).AliasKey(): 100,
		RSI(ir.Size64).AliasKey(): 200,
		RDX(ir.Size64).AliasKey(): 300,
	}
	out := setRegisters(args, R10(ir.Size64))
	final := simRegs(t, initial, out)

	require.Equal(t, int64(200), final[RDI(ir.Size64).AliasKey()], "rdi should still get rsi's original value")
	require.Equal(t, int64(300), final[RSI(ir.Size64).AliasKey()], "rsi should still get rdx's original value")
	require.Equal(t, int64(5), final[RDX(ir.Size64).AliasKey()])

	require.Equal(t, ir.OpMov, out[0].Opcode)
	require.True(t, ir.AliasOf(out[0].Dest.Reg, RDI(ir.Size64)), "rdi's move must be emitted first, before rsi is overwritten")
	require.True(t, ir.AliasOf(out[1].Dest.Reg, RSI(ir.Size64)), "rsi's move must come before rdx is overwritten")
	require.True(t, ir.AliasOf(out[2].Dest.Reg, RDX(ir.Size64)))
}

func TestSetRegistersBreaksTwoRegisterSwap(t *testing.T) {
	// rdi:=rsi, rsi:=rdi is a genuine cycle: neither side can go first
	// without losing the other's original value, so the scratch register
	// must carry one side across.
	args := []placedArg{
		regArg(RDI(ir.Size64), RSI(ir.Size64)),
		regArg(RSI(ir.Size64), RDI(ir.Size64)),
	}
	initial := map[uint8]int64{
		RDI(ir.Size64).AliasKey(): 11,
		RSI(ir.Size64).AliasKey(): 22,
	}
	out := setRegisters(args, R10(ir.Size64))

	usesScratch := false
	for _, instr := range out {
		if ir.AliasOf(instr.Dest.Reg, R10(ir.Size64)) || (instr.Src.Kind == ir.OperandReg && ir.AliasOf(instr.Src.Reg, R10(ir.Size64))) {
			usesScratch = true
		}
	}
	require.True(t, usesScratch, "a true 2-register swap cannot be resolved without the scratch register")

	final := simRegs(t, initial, out)
	require.Equal(t, int64(22), final[RDI(ir.Size64).AliasKey()], "rdi must end up holding rsi's original value")
	require.Equal(t, int64(11), final[RSI(ir.Size64).AliasKey()], "rsi must end up holding rdi's original value")
}

func TestSetRegistersBreaksThreeRegisterRotation(t *testing.T) {
	// rdi:=rsi, rsi:=rdx, rdx:=rdi is a 3-cycle.
	args := []placedArg{
		regArg(RDI(ir.Size64), RSI(ir.Size64)),
		regArg(RSI(ir.Size64), RDX(ir.Size64)),
		regArg(RDX(ir.Size64), RDI(ir.Size64)),
	}
	initial := map[uint8]int64{
		RDI(ir.Size64).AliasKey(): 1,
		RSI(ir.Size64).AliasKey(): 2,
		RDX(ir.Size64).AliasKey(): 3,
	}
	out := setRegisters(args, R10(ir.Size64))
	final := simRegs(t, initial, out)

	require.Equal(t, int64(2), final[RDI(ir.Size64).AliasKey()])
	require.Equal(t, int64(3), final[RSI(ir.Size64).AliasKey()])
	require.Equal(t, int64(1), final[RDX(ir.Size64).AliasKey()])
}

func TestSetRegistersLeavesNonCyclicRegisterAlone(t *testing.T) {
	// rdi:=rcx (no other move reads or writes rdi/rcx) should pass straight
	// through untouched, with no scratch involvement at all.
	args := []placedArg{regArg(RDI(ir.Size64), RCX(ir.Size64))}
	out := setRegisters(args, R10(ir.Size64))
	require.Len(t, out, 1)
	require.Equal(t, ir.OpMov, out[0].Opcode)
	require.True(t, ir.AliasOf(out[0].Dest.Reg, RDI(ir.Size64)))
	require.True(t, ir.AliasOf(out[0].Src.Reg, RCX(ir.Size64)))
}

func TestPushStackArgSmallValuePushesDirectly(t *testing.T) {
	pa := placedArg{
		param:   backend.Param{InMemory: true, Size: 8, StackOffset: 0},
		operand: ir.RegOperand(RAX(ir.Size64)),
	}
	out := pushStackArg(pa)
	require.Len(t, out, 1)
	require.Equal(t, ir.OpPush, out[0].Opcode)
	require.Equal(t, ir.OperandReg, out[0].Src.Kind)
	require.True(t, ir.AliasOf(out[0].Src.Reg, RAX(ir.Size64)))
}

func TestPushStackArgChunksOversizedAggregateHighOffsetFirst(t *testing.T) {
	// A 24-byte Simple value sourced from a Var: three eightbytes, pushed
	// highest offset first so the resulting stack layout has increasing
	// addresses matching increasing offsets.
	l := ir.NewListing()
	v := l.NewVar(l.Root(), 24, ir.FreePolicy{})
	pa := placedArg{
		param:   backend.Param{InMemory: true, Size: 24},
		operand: ir.VarOperand(v, 0),
	}
	out := pushStackArg(pa)
	require.Len(t, out, 3)
	for _, instr := range out {
		require.Equal(t, ir.OpPush, instr.Opcode)
		require.Equal(t, ir.OperandVar, instr.Src.Kind)
		require.Same(t, v, instr.Src.Var)
	}
	require.Equal(t, ir.Offset(16), out[0].Src.Offset, "highest eightbyte pushed first")
	require.Equal(t, ir.Offset(8), out[1].Src.Offset)
	require.Equal(t, ir.Offset(0), out[2].Src.Offset, "lowest eightbyte (closest to the return address once pushed) last")
}

func TestPushStackArgChunksNonMultipleOfEightSizesLastChunk(t *testing.T) {
	l := ir.NewListing()
	v := l.NewVar(l.Root(), 12, ir.FreePolicy{})
	pa := placedArg{
		param:   backend.Param{InMemory: true, Size: 12},
		operand: ir.VarOperand(v, 0),
	}
	out := pushStackArg(pa)
	require.Len(t, out, 2)
	require.Equal(t, ir.Offset(8), out[0].Src.Offset)
	require.Equal(t, ir.Size32, out[0].Src.Size, "the trailing 4 bytes of a 12-byte value only need a 32-bit push")
	require.Equal(t, ir.Offset(0), out[1].Src.Offset)
	require.Equal(t, ir.Size64, out[1].Src.Size)
}

func TestPushStackArgComplexParamPushesItsTemporaryAddress(t *testing.T) {
	l := ir.NewListing()
	v := l.NewVar(l.Root(), 32, ir.FreePolicy{})
	pa := placedArg{
		param:  backend.Param{InMemory: true, Size: 8},
		addrOf: v,
	}
	out := pushStackArg(pa)
	require.Len(t, out, 1)
	require.Equal(t, ir.OpPush, out[0].Opcode)
	require.Equal(t, ir.OperandVar, out[0].Src.Kind)
	require.Same(t, v, out[0].Src.Var)
}
