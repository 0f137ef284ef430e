package amd64

import (
	"github.com/asmforge/ngen/backend"
	"github.com/asmforge/ngen/internal/diag"
	"github.com/asmforge/ngen/ir"
	"github.com/asmforge/ngen/unwind/dwarfcfi"
	"github.com/asmforge/ngen/unwind/seh"
)

// Variant selects which of the two X86-64 calling conventions an Arena
// targets; everything else in this package (RemoveInvalid, Layout, AsmOut)
// is shared between them.
type Variant uint8

const (
	VariantSysV Variant = iota
	VariantWin64
)

// Arena wires together the shared X86-64 passes with the variant-specific
// Params classifier, callee-saved set, and unwind producer. One Arena
// serves one (variant, hasThis) combination; a caller compiling both a
// SysV and a Win64 build of the same listing constructs two.
//
// Modeled on the per-ISA constructor pattern (isa/amd64/machine.go's
// NewBackend), generalized to pick a Params implementation by Variant
// instead of wazero's single fixed Go-calling-convention classifier.
type Arena struct {
	Variant     Variant
	HasThis     bool
	ShadowSpace int32
	Logger      *diag.Logger

	removeInvalid *RemoveInvalid
	layout        *Layout
	asmOut        *AsmOut
	unwind        backend.UnwindProducer
}

func NewArena(variant Variant, hasThis bool, logger *diag.Logger) *Arena {
	if logger == nil {
		logger = diag.Default()
	}
	a := &Arena{Variant: variant, HasThis: hasThis, Logger: logger}
	if variant == VariantWin64 {
		a.ShadowSpace = Win64ShadowSpace
	}
	a.removeInvalid = &RemoveInvalid{Logger: logger}
	a.layout = &Layout{ShadowSpace: a.ShadowSpace, Logger: logger}
	a.asmOut = &AsmOut{Logger: logger}
	if variant == VariantWin64 {
		a.unwind = seh.New()
	} else {
		a.unwind = dwarfcfi.New(dwarfReturnRegister, dwarfRegNum)
	}
	return a
}

func (a *Arena) NewParams() backend.Params {
	if a.Variant == VariantWin64 {
		return NewWin64(a.HasThis)
	}
	return NewSysV()
}

func (a *Arena) RemoveInvalid() backend.RemoveInvalid { return a.removeInvalid }
func (a *Arena) Layout() backend.Layout               { return a.layout }
func (a *Arena) AsmOut() backend.AsmOut               { return a.asmOut }
func (a *Arena) Unwind() backend.UnwindProducer        { return a.unwind }

func (a *Arena) CalleeSavedRegs() ir.RegSet {
	set := ir.RegSet{}
	for _, r := range calleeSavedCommon {
		set = set.Add(r, ir.StateLive64)
	}
	if a.Variant == VariantWin64 {
		set = set.Add(RSI(ir.Size64), ir.StateLive64)
		set = set.Add(RDI(ir.Size64), ir.StateLive64)
	}
	return set
}

func (a *Arena) ScratchRegs() [2]ir.Reg { return scratchPair }

func (a *Arena) PointerSize() uint32 { return 8 }

func (a *Arena) Transform(l *ir.Listing) (*backend.FrameInfo, error) {
	return backend.RunTransform(l, a)
}

// dwarfReturnRegister is DWARF's register number for the return address
// column on X86-64 (register 16, per the x86-64 psABI's DWARF register
// mapping).
const dwarfReturnRegister = 16

// dwarfRegNum maps an amd64 integer-bank slot to its X86-64 psABI DWARF
// register number; the two numberings agree for rax, rbx and r8-r15 but
// diverge for rcx/rdx and rsp/rbp/rsi/rdi.
func dwarfRegNum(slot uint8) uint8 {
	table := map[uint8]uint8{
		slotRAX: 0, slotRDX: 1, slotRCX: 2, slotRBX: 3,
		slotRSI: 4, slotRDI: 5, slotRBP: 6, slotRSP: 7,
		slotR8: 8, slotR9: 9, slotR10: 10, slotR11: 11,
		slotR12: 12, slotR13: 13, slotR14: 14, slotR15: 15,
	}
	return table[slot]
}
