// Package backend hosts the target-independent pipeline contracts: the
// per-ABI parameter classifier (Params/Result), the per-target factory
// (Arena), the legalization/layout/emission stage interfaces, and the
// GC/output/relocation plumbing that ties them together into Binary.
//
// Grounded on the teacher's backend.Machine (machine.go) and
// backend.FunctionABI (abi.go): wazero's Machine is one big per-ISA
// interface that a Compiler drives through Lower*/RegAlloc/Encode stages,
// and FunctionABI is a generic classifier parameterized over a
// FunctionABIRegInfo describing which real registers carry args/results.
// ngen generalizes both ideas: Params plays FunctionABI's role but over
// ir.TypeDesc (primitive/complex/simple) rather than ssa.Type, and Arena
// plays Machine's role as the per-target entry point, but split into the
// four separate stage interfaces spec.md §2 names (RemoveInvalid, Layout,
// AsmOut, Output) instead of one omnibus interface, since those stages
// really do run as four independent passes here, not one lowering loop.
package backend

import "github.com/asmforge/ngen/ir"

// ParamID names an original parameter slot. Several Params may share the
// same ParamID when one value is split across two registers (lo/hi
// eightbytes of a SysV aggregate, for instance).
type ParamID int32

// ReturnID is the synthetic ParamID used for the implicit result-memory
// pointer inserted at slot 0 when a result is returned via memory.
const ReturnID ParamID = -1

// Param is one (id, size, offset-within-value, memory?) assignment
// produced by a Params classifier, per spec.md §4.3.
type Param struct {
	ID ParamID
	// Size is this slice's footprint in bytes (== the whole value's size
	// unless it was split across multiple Params).
	Size uint32
	// OffsetInValue is where, within the original multi-register value,
	// this Param's bytes start. Zero for anything that isn't split.
	OffsetInValue uint32
	// InMemory is true when this Param is passed on the stack rather than
	// in a register.
	InMemory bool
	// Reg is valid when !InMemory.
	Reg ir.Reg
	// StackOffset is valid when InMemory: the byte offset from the base of
	// the argument area.
	StackOffset int32
}

// ResultKind distinguishes how a classified return value is produced.
type ResultKind uint8

const (
	// ResultRegisters means the value (or its pieces) come back in one or
	// more registers, described by Result.Params.
	ResultRegisters ResultKind = iota
	// ResultMemory means the callee writes the value through a pointer
	// supplied by the caller, carried in Result.MemoryReg.
	ResultMemory
)

// Result is what a Params classifier produces for a function's return
// value.
type Result struct {
	Kind ResultKind
	// Params is populated when Kind == ResultRegisters.
	Params []Param
	// MemoryReg is populated when Kind == ResultMemory: the register that
	// holds the result's destination address, both at the call site
	// (caller loads it) and on callee entry (callee receives it).
	MemoryReg ir.Reg
}

// Params is the abstract per-ABI classifier of spec.md §4.3. A target
// package's ABI type (amd64.SysV, amd64.Win64) implements it;
// RemoveInvalid's fnCall/fnParam/fnRet lowering is the only consumer.
type Params interface {
	// Add classifies one parameter, in declaration order, returning the
	// Param slice it was assigned to (usually length 1; length 2 for a
	// SysV aggregate split across two eightbytes).
	Add(id ParamID, t ir.TypeDesc) []Param

	// Result classifies the function's return type.
	Result(t ir.TypeDesc) Result

	// Registers iterates the (register, Param) pairs assigned so far, in
	// ABI order.
	Registers() []Param
	// StackSlots iterates the (stackOffset, Param) pairs assigned so far,
	// in increasing offset order.
	StackSlots() []Param

	// CalleeDestroyParams reports whether destruction of complex
	// parameters is the callee's responsibility (true for Win64) or the
	// caller's (false elsewhere).
	CalleeDestroyParams() bool

	// StackArgAreaSize is the total byte size reserved for stack-passed
	// arguments, already padded per the ABI's rule (e.g. Win64's 32-byte
	// shadow space is included here even when unused).
	StackArgAreaSize() int32
}
