package backend

import (
	"github.com/asmforge/ngen/ir"
	"github.com/pkg/errors"
)

// Binary is the top-level compiled function of spec.md §2/§3: owner of
// the GC-allocated code memory, its relocation sidecar, and its unwind
// metadata. Compile is the single entry point that runs the whole
// pipeline described in spec.md §2's "Data flow" paragraph.
//
// Grounded on the teacher's compileLocalFunctions driver
// (internal/engine/wazevo/engine.go's call into Machine.Encode after
// RegAlloc/PostRegAlloc), generalized to ngen's four-stage Arena and to a
// movable GC-allocated block instead of a fixed Go-owned byte slice.
type Binary struct {
	Code   []byte
	GcCode *GcCode
	Frame  *FrameInfo

	// Relocations is retained for inspection/testing; the GC contract
	// (via GcCode.Refs' CodeUpdaters) is what actually gets invoked on
	// move.
	Relocations []RelocationInfo
}

// Compile runs Arena.Transform (RemoveInvalid then Layout), sizes the
// result with a LabelOutput pass, allocates code through gc, emits with a
// CodeOutput pass, appends unwind metadata, and publishes the GcCode
// sidecar. Any malformed-IR or target-capacity error aborts with the
// offending instruction's position, per spec.md §7.
func Compile(l *ir.Listing, arena Arena, gc GC, opts Options) (*Binary, error) {
	frame, err := arena.Transform(l)
	if err != nil {
		return nil, errors.Wrap(err, "transform")
	}

	sizing := NewLabelOutput()
	if err := arena.AsmOut().Encode(l, frame, sizing); err != nil {
		return nil, errors.Wrap(err, "size pass")
	}
	// The unwind producer appends its own bytes after the code (spec.md
	// §6), so the sizing pass must run it too — otherwise sizing.Pos()
	// undercounts the allocation by exactly the unwind record's length.
	if err := arena.Unwind().Emit(frame, sizing); err != nil {
		return nil, errors.Wrap(err, "unwind metadata size pass")
	}

	// Conservative relocation-slot estimate: one slot per ref operand plus
	// one for the unwind record itself. A real implementation would count
	// exactly during the sizing pass; ngen keeps the estimate simple and
	// lets CodeOutput.Relocations grow past it only in pathological cases,
	// at which point AllocCode's contract is violated and the GC is
	// expected to reject it.
	relocSlots := countRefs(l) + 1
	code := gc.AllocCode(nil, int(sizing.Pos()), relocSlots)

	emit := NewCodeOutput(code, sizing.labels)
	if err := arena.AsmOut().Encode(l, frame, emit); err != nil {
		opts.logger().Fail(err, "code emission failed after successful sizing pass")
		return nil, errors.Wrap(err, "code pass")
	}

	if err := arena.Unwind().Emit(frame, emit); err != nil {
		return nil, errors.Wrap(err, "unwind metadata")
	}

	if emit.Overflowed() {
		err := errors.Errorf("code emission wrote past the %d-byte sizing estimate", sizing.Pos())
		opts.logger().Fail(err, "code pass overran its allocation")
		return nil, err
	}

	gcCode := gc.CodeRefs(code)
	gcCode.Refs = append(gcCode.Refs, relocsToGcRefs(emit.Relocations)...)

	return &Binary{Code: code, GcCode: gcCode, Frame: frame, Relocations: emit.Relocations}, nil
}

func countRefs(l *ir.Listing) int {
	n := 0
	for _, instr := range l.Instrs() {
		if instr.Dest.Kind == ir.OperandRef || instr.Src.Kind == ir.OperandRef {
			n++
		}
	}
	return n
}

func relocsToGcRefs(relocs []RelocationInfo) []GcCodeRef {
	out := make([]GcCodeRef, 0, len(relocs))
	for _, r := range relocs {
		var kind GcCodeRefKind
		switch r.Kind {
		case RelocJumpRelative4:
			kind = RefJump
		case RelocInsideSelf:
			kind = RefInside
		case RelocRawPointer:
			kind = RefRawPtr
		case RelocGCPointer:
			kind = RefPtrStorage
		case RelocRelativeStatic:
			kind = RefRelative
		case RelocUnwindInfo:
			kind = RefUnwindInfo
		}
		out = append(out, GcCodeRef{Offset: uint32(r.Offset), Kind: kind, Pointer: r.Ref})
	}
	return out
}
