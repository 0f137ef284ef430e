package backend

import "github.com/asmforge/ngen/ir"

// RemoveInvalid is the per-target legalization pass of spec.md §4.4: it
// rewrites a Listing in place so every instruction that survives conforms
// to the target's legal operand forms (register/memory constraints, split
// immediates, spills, lowered fnParam/fnCall/fnRet).
//
// Grounded on the teacher's Machine.LowerInstr: a single entry point
// invoked per instruction, walking the listing and substituting legalized
// sequences. ngen's version additionally needs the liveness.Result (to
// pick scratch registers from the free set, per spec.md §4.4 step 5) and
// the Arena it was built from (for Params/ScratchRegs), so Run takes the
// whole Listing and the Arena rather than being a bare per-instruction
// callback.
type RemoveInvalid interface {
	// Run legalizes l in place. No liveness result is passed in; an
	// implementation that needs one runs liveness.Analyze itself (spec.md
	// §8's idempotence property assumes a fresh liveness.Analyze per
	// invocation).
	Run(l *ir.Listing, arena Arena) error
}

// Layout is the per-target frame-layout pass of spec.md §4.5: stack-offset
// assignment, prolog/epilog emission, beginBlock/endBlock destruction
// sequences, jmpBlock and activate. fnRet/fnRetRef are lowered earlier, by
// RemoveInvalid.
type Layout interface {
	// Run lays out l's frame and rewrites its prolog/epilog/scoping
	// pseudo-ops into concrete instruction sequences, in place.
	Run(l *ir.Listing, arena Arena) (*FrameInfo, error)
}

// FrameInfo is Layout's output: the computed frame shape, handed to AsmOut
// (for prolog bytes) and to the unwind-metadata producers (for CFA/SEH
// descriptions), per spec.md §4.5/§6.
type FrameInfo struct {
	// TotalSize is the 16-byte-aligned total frame size below the saved
	// frame pointer.
	TotalSize int32
	// CalleeSaved is the set of callee-saved registers this function
	// clobbers and must therefore save/restore, in save order.
	CalleeSaved []ir.Reg
	// VarOffsets maps each ir.VarID to its frame-pointer-relative offset.
	VarOffsets map[ir.VarID]int32
	// ActiveBlocks is the emitted exception table of spec.md §6's
	// "active-blocks table layout", in emission order.
	ActiveBlocks []ir.ActiveBlock
}

// AsmOut is the per-target machine-code emitter of spec.md §4.7: a
// dispatch table from opcode to an encoding routine that writes bytes
// through an Output sink.
//
// Grounded on the teacher's Machine.Encode(ctx) plus the isa/amd64 and
// isa/arm64 instr_encoding.go files' per-opcode byte-writing functions;
// ngen keeps the same "encode(instr, out)" shape but runs it twice (once
// per Output implementation) exactly as spec.md §4.7 describes, rather
// than wazero's single-pass-then-relocate model.
type AsmOut interface {
	// Encode writes l's instructions (already legalized and laid out) to
	// out, consulting frame for prolog/epilog byte sequences.
	Encode(l *ir.Listing, frame *FrameInfo, out Output) error
}
