package backend

import "github.com/asmforge/ngen/ir"

// Arena is the per-target factory of spec.md §2/§4.3: it builds the
// RemoveInvalid/Layout/AsmOut trio for one target, the Params classifier
// for the calling convention in effect, and the callee-saved filter
// liveness.Analyze needs for the call-family rule.
//
// Grounded on the teacher's per-ISA constructor pattern (each of
// isa/amd64, isa/arm64 exposes a NewBackend(...) that wires a Machine);
// ngen keeps that one-constructor-per-target shape but returns this
// smaller struct of stage values instead of one Machine, since ngen's
// stages are genuinely separable (spec.md's AsmOut never calls back into
// RemoveInvalid, unlike wazero's Lower*/RegAlloc/Encode loop).
type Arena interface {
	// NewParams returns a fresh, empty Params classifier for this target's
	// calling convention.
	NewParams() Params

	// RemoveInvalid returns this target's legalization pass.
	RemoveInvalid() RemoveInvalid

	// Layout returns this target's frame-layout pass.
	Layout() Layout

	// AsmOut returns this target's machine-code emitter.
	AsmOut() AsmOut

	// Unwind returns the unwind-metadata producer for this target/OS
	// combination (dwarfcfi on POSIX, seh on Windows).
	Unwind() UnwindProducer

	// CalleeSavedRegs returns the registers this ABI guarantees survive a
	// call, for use as liveness.CalleeSavedFilter via RegSet.Intersect.
	CalleeSavedRegs() ir.RegSet

	// ScratchRegs returns the two registers RemoveInvalid's call lowering
	// is always free to clobber (x16/x17 on AArch64; an unused caller-save
	// pair on x86/x64), per spec.md §4.6 step 2.
	ScratchRegs() [2]ir.Reg

	// PointerSize is 4 on X86-32, 8 otherwise.
	PointerSize() uint32

	// Transform runs RemoveInvalid then Layout over l in place, per
	// spec.md §2's data-flow description of Arena.transform, returning the
	// frame shape Layout computed.
	Transform(l *ir.Listing) (*FrameInfo, error)
}
