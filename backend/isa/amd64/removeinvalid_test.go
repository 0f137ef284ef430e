package amd64

import (
	"testing"

	"github.com/asmforge/ngen/ir"
	"github.com/stretchr/testify/require"
)

func findOpcode(instrs []ir.Instr, op ir.Opcode) int {
	for i, instr := range instrs {
		if instr.Opcode == op {
			return i
		}
	}
	return -1
}

func TestLowerDivisionEmitsZeroCheckForRegisterDivisor(t *testing.T) {
	l := ir.NewListing()
	l.Prolog()
	l.IDiv(ir.RegOperand(RAX(ir.Size64)), ir.RegOperand(RCX(ir.Size64)))
	l.Epilog()

	arena := NewArena(VariantSysV, false, nil)
	require.NoError(t, arena.RemoveInvalid().Run(l, arena))

	instrs := l.Instrs()
	cmpAt := findOpcode(instrs, ir.OpCmp)
	require.GreaterOrEqual(t, cmpAt, 0, "a register divisor must be checked against zero")
	require.True(t, ir.AliasOf(instrs[cmpAt].Dest.Reg, RCX(ir.Size64)), "the check compares the divisor, not the dividend")
	require.Equal(t, int64(0), instrs[cmpAt].Src.Imm)

	jeAt := findOpcode(instrs, ir.OpJmp)
	require.Greater(t, jeAt, cmpAt)
	require.Equal(t, ir.CondEqual, instrs[jeAt].JumpCond, "the guard jump must be conditional on the comparison being equal (divisor == 0)")

	callAt := findOpcode(instrs, ir.OpCall)
	require.GreaterOrEqual(t, callAt, 0)
	require.Same(t, ir.DivisionByZeroRaiser, instrs[callAt].Src.Ref)

	idivAt := findOpcode(instrs, ir.OpIDiv)
	require.GreaterOrEqual(t, idivAt, 0)
	require.Greater(t, idivAt, jeAt, "the guard must run before the division it protects")
}

func TestLowerDivisionSkipsCheckForNonzeroConstantDivisor(t *testing.T) {
	l := ir.NewListing()
	l.Prolog()
	l.IDiv(ir.RegOperand(RAX(ir.Size64)), ir.ConstOperand(ir.Size64, 4))
	l.Epilog()

	arena := NewArena(VariantSysV, false, nil)
	require.NoError(t, arena.RemoveInvalid().Run(l, arena))

	instrs := l.Instrs()
	require.Equal(t, -1, findOpcode(instrs, ir.OpCmp), "a provably nonzero constant divisor needs no runtime check")
	require.Equal(t, -1, findOpcode(instrs, ir.OpCall), "and so never calls the division-by-zero raiser")
	require.GreaterOrEqual(t, findOpcode(instrs, ir.OpIDiv), 0)
}

func TestLowerDivisionByteModuloRecoversRemainderFromAH(t *testing.T) {
	l := ir.NewListing()
	l.Prolog()
	l.IMod(ir.RegOperand(RAX(ir.Size8)), ir.RegOperand(RCX(ir.Size8)))
	l.Epilog()

	arena := NewArena(VariantSysV, false, nil)
	require.NoError(t, arena.RemoveInvalid().Run(l, arena))

	instrs := l.Instrs()
	shrAt := findOpcode(instrs, ir.OpShr)
	require.GreaterOrEqual(t, shrAt, 0, "an 8-bit modulo must shift ah down into al since x86 has no 8-bit rdx")
	require.Equal(t, ir.Size16, instrs[shrAt].Dest.Size)
	require.Equal(t, int64(8), instrs[shrAt].Src.Imm)
}
