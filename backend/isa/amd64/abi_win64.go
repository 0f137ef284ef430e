package amd64

import (
	"github.com/asmforge/ngen/backend"
	"github.com/asmforge/ngen/ir"
)

// win64IntRegs/win64VecRegs are spec.md §4.3's Win64 argument registers:
// "4 integer regs (rcx,rdx,r8,r9), 4 vector regs (xmm0..3)". Win64 pairs
// slot i of the int pool with slot i of the vector pool (an argument
// always consumes one slot from each index, even if it only needs one
// register), which is why both pools are indexed together here rather
// than independently like SysV's.
var (
	win64IntRegs = []ir.Reg{RCX(ir.Size64), RDX(ir.Size64), R8(ir.Size64), R9(ir.Size64)}
	win64VecRegs = []ir.Reg{XMM(0), XMM(1), XMM(2), XMM(3)}
)

// Win64ShadowSpace is the caller-reserved scratch area spec.md §4.3
// requires ("32-byte shadow space always reserved by the caller").
const Win64ShadowSpace = 32

// Win64 is the Win64 Params classifier of spec.md §4.3.
type Win64 struct {
	slot          int
	hasThis       bool
	stackOff      int32
	regs          []backend.Param
	stack         []backend.Param
}

// NewWin64 builds a Win64 classifier. hasThis reflects spec.md §4.3's
// "If the function has an implicit this, the result pointer occupies slot
// 1, otherwise slot 0" rule, decided once up front because it changes
// where a memory-return's hidden pointer goes.
func NewWin64(hasThis bool) *Win64 { return &Win64{hasThis: hasThis} }

func (p *Win64) Add(id backend.ParamID, t ir.TypeDesc) []backend.Param {
	var size uint32
	var real bool
	switch t.Kind {
	case ir.TypeDescPrimitive:
		size, real = t.Sz.Bytes64, t.PrimKind == ir.PrimReal
	case ir.TypeDescComplex:
		size, real = 8, false // passed by pointer
	default: // Simple
		if t.Sz.Bytes64 <= 8 {
			size, real = t.Sz.Bytes64, t.IsFloatOnly() && len(t.Members) == 1
		} else {
			size, real = 8, false // larger than 8 bytes: passed by pointer
		}
	}
	return p.assign(id, size, real)
}

func (p *Win64) assign(id backend.ParamID, size uint32, real bool) []backend.Param {
	if p.slot >= len(win64IntRegs) {
		off := int32(ir.Align(int64(p.stackOff), 8))
		pa := backend.Param{ID: id, Size: size, InMemory: true, StackOffset: off}
		p.stackOff = off + 8
		p.stack = append(p.stack, pa)
		return []backend.Param{pa}
	}
	reg := win64IntRegs[p.slot]
	if real {
		reg = win64VecRegs[p.slot]
	}
	p.slot++
	pa := backend.Param{ID: id, Size: size, Reg: reg}
	p.regs = append(p.regs, pa)
	return []backend.Param{pa}
}

// Result implements spec.md §4.3's Win64 result rule: a this-receiving
// member function's hidden result pointer occupies slot 1 (rdx), a
// free function's occupies slot 0 (rcx).
func (p *Win64) Result(t ir.TypeDesc) backend.Result {
	memReg := func() ir.Reg {
		if p.hasThis {
			return win64IntRegs[1]
		}
		return win64IntRegs[0]
	}

	switch t.Kind {
	case ir.TypeDescPrimitive:
		if t.PrimKind == ir.PrimNone {
			return backend.Result{Kind: backend.ResultRegisters}
		}
		reg := RAX(ir.Size64)
		if t.PrimKind == ir.PrimReal {
			reg = XMM(0)
		}
		return backend.Result{Kind: backend.ResultRegisters, Params: []backend.Param{{ID: backend.ReturnID, Size: t.Sz.Bytes64, Reg: reg}}}
	case ir.TypeDescComplex:
		return backend.Result{Kind: backend.ResultMemory, MemoryReg: memReg()}
	default:
		if t.Sz.Bytes64 <= 8 {
			reg := RAX(ir.Size64)
			if t.IsFloatOnly() && len(t.Members) == 1 {
				reg = XMM(0)
			}
			return backend.Result{Kind: backend.ResultRegisters, Params: []backend.Param{{ID: backend.ReturnID, Size: t.Sz.Bytes64, Reg: reg}}}
		}
		return backend.Result{Kind: backend.ResultMemory, MemoryReg: memReg()}
	}
}

func (p *Win64) Registers() []backend.Param  { return p.regs }
func (p *Win64) StackSlots() []backend.Param { return p.stack }

// CalleeDestroyParams is true on Win64: spec.md §4.3, "the callee is
// responsible for destroying complex parameters."
func (p *Win64) CalleeDestroyParams() bool { return true }

func (p *Win64) StackArgAreaSize() int32 {
	total := Win64ShadowSpace + p.stackOff
	return int32(ir.Align(int64(total), 16))
}
