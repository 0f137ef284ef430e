package amd64

import (
	"github.com/asmforge/ngen/backend"
	"github.com/asmforge/ngen/ir"
)

// sysvIntRegs/sysvVecRegs are spec.md §4.3's SysV AMD64 argument registers,
// consumed in this fixed order: "6 integer regs (rdi,rsi,rdx,rcx,r8,r9), 8
// vector regs (xmm0..7)".
var (
	sysvIntRegs = []ir.Reg{RDI(ir.Size64), RSI(ir.Size64), RDX(ir.Size64), RCX(ir.Size64), R8(ir.Size64), R9(ir.Size64)}
	sysvVecRegs = []ir.Reg{XMM(0), XMM(1), XMM(2), XMM(3), XMM(4), XMM(5), XMM(6), XMM(7)}
)

// SysV is the AMD64 SysV Params classifier of spec.md §4.3, grounded on
// the teacher's abiImpl.setABIArgs two-pool (int/float) allocator,
// generalized to ngen's eightbyte classification for Simple aggregates
// (wazero never needs this: WebAssembly has no aggregate value types).
type SysV struct {
	intUsed, vecUsed int
	stackOff         int32
	regs             []backend.Param
	stack            []backend.Param
}

func NewSysV() *SysV { return &SysV{} }

func (p *SysV) Add(id backend.ParamID, t ir.TypeDesc) []backend.Param {
	switch t.Kind {
	case ir.TypeDescComplex:
		return p.addByPointer(id, t.Size32())
	case ir.TypeDescPrimitive:
		return p.addPrimitive(id, t)
	default: // Simple
		return p.addSimple(id, t)
	}
}

func (p *SysV) addPrimitive(id backend.ParamID, t ir.TypeDesc) []backend.Param {
	if t.PrimKind == ir.PrimReal {
		return p.assign1(id, t.Sz.Bytes64, true)
	}
	return p.assign1(id, t.Sz.Bytes64, false)
}

func (p *SysV) addByPointer(id backend.ParamID, size uint32) []backend.Param {
	return p.assign1(id, 8, false)
}

// addSimple classifies a Simple aggregate into 8-byte "eightbytes", each
// eightbyte going to an integer register unless every primitive touching
// it is real-typed, per spec.md §4.3: "each eightbyte is classified as
// integer or SSE by examining the primitives it contains (any integer
// component forces integer class)".
func (p *SysV) addSimple(id backend.ParamID, t ir.TypeDesc) []backend.Param {
	size := t.Sz.Bytes64
	if size > 16 {
		return p.assignStack(id, size) // too big: pass on stack as raw bytes
	}
	numEightbytes := (size + 7) / 8
	classes := make([]bool, numEightbytes) // true == SSE-only so far
	for i := range classes {
		classes[i] = true
	}
	for _, m := range t.Members {
		eb := uint32(m.Offset) / 8
		if eb >= numEightbytes {
			continue
		}
		if m.Prim.PrimKind != ir.PrimReal {
			classes[eb] = false
		}
	}

	needInt, needVec := 0, 0
	for _, sse := range classes {
		if sse {
			needVec++
		} else {
			needInt++
		}
	}
	if p.intUsed+needInt > len(sysvIntRegs) || p.vecUsed+needVec > len(sysvVecRegs) {
		return p.assignStack(id, size)
	}

	out := make([]backend.Param, 0, numEightbytes)
	for i, sse := range classes {
		eightSize := size - uint32(i)*8
		if eightSize > 8 {
			eightSize = 8
		}
		var reg ir.Reg
		if sse {
			reg = sysvVecRegs[p.vecUsed]
			p.vecUsed++
		} else {
			reg = sysvIntRegs[p.intUsed]
			p.intUsed++
		}
		pa := backend.Param{ID: id, Size: eightSize, OffsetInValue: uint32(i) * 8, Reg: reg}
		out = append(out, pa)
		p.regs = append(p.regs, pa)
	}
	return out
}

func (p *SysV) assign1(id backend.ParamID, size uint32, real bool) []backend.Param {
	var pa backend.Param
	if real {
		if p.vecUsed < len(sysvVecRegs) {
			pa = backend.Param{ID: id, Size: size, Reg: sysvVecRegs[p.vecUsed]}
			p.vecUsed++
			p.regs = append(p.regs, pa)
			return []backend.Param{pa}
		}
	} else if p.intUsed < len(sysvIntRegs) {
		pa = backend.Param{ID: id, Size: size, Reg: sysvIntRegs[p.intUsed]}
		p.intUsed++
		p.regs = append(p.regs, pa)
		return []backend.Param{pa}
	}
	return p.assignStack(id, size)
}

func (p *SysV) assignStack(id backend.ParamID, size uint32) []backend.Param {
	off := ir.Align(int64(p.stackOff), 8)
	pa := backend.Param{ID: id, Size: size, InMemory: true, StackOffset: int32(off)}
	p.stackOff = int32(off) + int32(size)
	p.stack = append(p.stack, pa)
	return []backend.Param{pa}
}

// Result follows spec.md §4.3's rule: "the same rule with an implicit
// first rdi pointer when in memory; in that case id = returnId is inserted
// at position 0."
func (p *SysV) Result(t ir.TypeDesc) backend.Result {
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
		return backend.Result{Kind: backend.ResultMemory, MemoryReg: RDI(ir.Size64)}
	default:
		size := t.Sz.Bytes64
		if size > 16 {
			return backend.Result{Kind: backend.ResultMemory, MemoryReg: RDI(ir.Size64)}
		}
		rp := &SysV{}
		params := rp.addSimple(backend.ReturnID, t)
		return backend.Result{Kind: backend.ResultRegisters, Params: params}
	}
}

func (p *SysV) Registers() []backend.Param  { return p.regs }
func (p *SysV) StackSlots() []backend.Param { return p.stack }
func (p *SysV) CalleeDestroyParams() bool   { return false }
func (p *SysV) StackArgAreaSize() int32     { return int32(ir.Align(int64(p.stackOff), 16)) }
