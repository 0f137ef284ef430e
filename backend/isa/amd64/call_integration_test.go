package amd64

import (
	"testing"

	"github.com/asmforge/ngen/ir"
	"github.com/stretchr/testify/require"
)

var int64Type = ir.PrimitiveType(ir.PrimInteger, ir.Uniform(8, 8))

// TestLowerCallsPlacesTwoIntegerArgsInSysVOrder builds `result := add(a, b)`
// for two plain int64 locals and checks the call is lowered into loads of
// rdi/rsi (SysV's first two integer argument registers) from a and b,
// followed by the call itself and a copy of rax into the result.
func TestLowerCallsPlacesTwoIntegerArgsInSysVOrder(t *testing.T) {
	l := ir.NewListing()
	l.Prolog()
	a := l.NewVar(l.Root(), 8, ir.FreePolicy{})
	b := l.NewVar(l.Root(), 8, ir.FreePolicy{})
	res := l.NewVar(l.Root(), 8, ir.FreePolicy{})
	addFn := &ir.Ref{Name: "add"}

	l.FnParam(int64Type, ir.VarOperand(a, 0), false)
	l.FnParam(int64Type, ir.VarOperand(b, 0), false)
	l.FnCall(ir.RefOperand(addFn, ir.Size64), ir.VarOperand(res, 0), int64Type, false, false)
	l.Epilog()

	arena := NewArena(VariantSysV, false, nil)
	frame, err := arena.Transform(l)
	require.NoError(t, err)
	require.NotNil(t, frame)

	instrs := l.Instrs()

	rdiLoad := -1
	rsiLoad := -1
	callAt := -1
	for i, instr := range instrs {
		switch instr.Opcode {
		case ir.OpMov:
			if instr.Dest.Kind == ir.OperandReg && ir.AliasOf(instr.Dest.Reg, RDI(ir.Size64)) && instr.Src.Kind == ir.OperandVar && instr.Src.Var == a {
				rdiLoad = i
			}
			if instr.Dest.Kind == ir.OperandReg && ir.AliasOf(instr.Dest.Reg, RSI(ir.Size64)) && instr.Src.Kind == ir.OperandVar && instr.Src.Var == b {
				rsiLoad = i
			}
		case ir.OpCall:
			if instr.Src.Kind == ir.OperandRef && instr.Src.Ref == addFn {
				callAt = i
			}
		}
	}

	require.GreaterOrEqual(t, rdiLoad, 0, "first argument must load into rdi")
	require.GreaterOrEqual(t, rsiLoad, 0, "second argument must load into rsi")
	require.Greater(t, callAt, rdiLoad, "register loads must precede the call")
	require.Greater(t, callAt, rsiLoad, "register loads must precede the call")

	resultStore := -1
	for i := callAt + 1; i < len(instrs); i++ {
		instr := instrs[i]
		if instr.Opcode == ir.OpMov && instr.Dest.Kind == ir.OperandVar && instr.Dest.Var == res &&
			instr.Src.Kind == ir.OperandReg && ir.AliasOf(instr.Src.Reg, RAX(ir.Size64)) {
			resultStore = i
			break
		}
	}
	require.GreaterOrEqual(t, resultStore, 0, "the call's rax result must be copied into the destination variable")
}

// TestLowerCallsPushesOverflowArgumentsAfterTheSixthOnTheStack exercises
// spec.md §4.6's stack-argument path: SysV has 6 integer argument
// registers, so a 7th integer argument must be pushed rather than placed in
// a register.
func TestLowerCallsPushesOverflowArgumentsAfterTheSixthOnTheStack(t *testing.T) {
	l := ir.NewListing()
	l.Prolog()
	vars := make([]*ir.Var, 7)
	for i := range vars {
		vars[i] = l.NewVar(l.Root(), 8, ir.FreePolicy{})
	}
	fn := &ir.Ref{Name: "sum7"}
	for _, v := range vars {
		l.FnParam(int64Type, ir.VarOperand(v, 0), false)
	}
	l.FnCall(ir.RefOperand(fn, ir.Size64), ir.NoOperand(), ir.TypeDesc{Kind: ir.TypeDescPrimitive, PrimKind: ir.PrimNone}, false, false)
	l.Epilog()

	arena := NewArena(VariantSysV, false, nil)
	_, err := arena.Transform(l)
	require.NoError(t, err)

	instrs := l.Instrs()
	pushAt := -1
	callAt := -1
	for i, instr := range instrs {
		if instr.Opcode == ir.OpPush && instr.Src.Kind == ir.OperandVar && instr.Src.Var == vars[6] {
			pushAt = i
		}
		if instr.Opcode == ir.OpCall {
			callAt = i
		}
	}
	require.GreaterOrEqual(t, pushAt, 0, "the 7th integer argument overflows SysV's 6 integer registers onto the stack")
	require.Greater(t, callAt, pushAt, "the stack push must happen before the call")
}
