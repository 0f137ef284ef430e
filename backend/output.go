package backend

import "github.com/asmforge/ngen/ir"

// RelocationKind tags the kind of fixup a relocation site needs once the
// final code address (and any referenced GC object's address) is known,
// per spec.md §4.7.
type RelocationKind uint8

const (
	RelocJumpRelative4 RelocationKind = iota
	RelocInsideSelf
	RelocRawPointer
	RelocGCPointer
	RelocRelativeStatic
	RelocUnwindInfo
)

// RelocationInfo is one pending fixup recorded by a CodeOutput while
// emitting, grounded on the teacher's backend.RelocationInfo
// (isa/arm64/machine_relocation.go consumes the analogous shape): an
// instruction byte offset plus what it refers to and how.
type RelocationInfo struct {
	Offset int64
	Kind   RelocationKind
	Ref    *ir.Ref
	// FuncLabel is set instead of Ref for intra-listing call/jump targets.
	FuncLabel ir.Label
}

// Output is the emission sink AsmOut writes through, per spec.md §4.7.
// Two concrete implementations exist: LabelOutput (size/label-offset
// counting pass) and CodeOutput (byte-writing pass into GC-allocated
// memory). Running AsmOut twice, once per implementation, is the "two
// passes" spec.md §2 and §4.7 both describe.
type Output interface {
	// Pos returns the number of bytes written so far.
	Pos() int64

	// WriteBytes appends raw encoded bytes.
	WriteBytes(b []byte)

	// PlaceLabel records that label lbl resolves to the current position.
	PlaceLabel(lbl ir.Label)

	// LabelOffset returns a previously placed label's byte offset. Valid
	// to call during CodeOutput's pass because LabelOutput's pass always
	// runs first and the offsets are threaded in; undefined during
	// LabelOutput's own pass for a label not yet placed (backward
	// references are fine, forward ones are resolved in the second pass
	// only).
	LabelOffset(lbl ir.Label) (int64, bool)

	// Relocate records a pending fixup at the current position.
	Relocate(kind RelocationKind, ref *ir.Ref, target ir.Label)

	// IsSizingPass reports whether this Output is a LabelOutput (true) or
	// a CodeOutput (false). amd64's AsmOut does not consult it.
	IsSizingPass() bool
}

// LabelOutput is spec.md §4.7's first-pass sink: "counts bytes, records
// label offsets, and (on Win64) tracks the number of unwind codes and
// prolog size."
type LabelOutput struct {
	pos          int64
	labels       map[ir.Label]int64
	UnwindCodes  int
	PrologSize   int64
	sawProlog    bool
}

func NewLabelOutput() *LabelOutput {
	return &LabelOutput{labels: map[ir.Label]int64{}}
}

func (o *LabelOutput) Pos() int64            { return o.pos }
func (o *LabelOutput) WriteBytes(b []byte)   { o.pos += int64(len(b)) }
func (o *LabelOutput) PlaceLabel(lbl ir.Label) {
	o.labels[lbl] = o.pos
	if !o.sawProlog {
		o.PrologSize = o.pos
	}
}
func (o *LabelOutput) LabelOffset(lbl ir.Label) (int64, bool) { off, ok := o.labels[lbl]; return off, ok }
func (o *LabelOutput) Relocate(RelocationKind, *ir.Ref, ir.Label) {}
func (o *LabelOutput) IsSizingPass() bool                        { return true }

// NoteEndOfProlog marks that subsequent PlaceLabel calls no longer extend
// PrologSize. Nothing in this module calls it, so PrologSize is the offset
// of the last label placed.
func (o *LabelOutput) NoteEndOfProlog() { o.sawProlog = true }

// CodeOutput is spec.md §4.7's second-pass sink: "writes into a
// GC-allocated code block, records relocations ... into the per-allocation
// sidecar, and attaches CodeUpdaters that the GC invokes when targets
// move."
type CodeOutput struct {
	code        []byte
	pos         int64
	labels      map[ir.Label]int64
	Relocations []RelocationInfo

	// overflow latches once a write would run past the allocated buffer.
	// Compile checks this after the code pass finishes and fails the whole
	// compilation rather than letting the silently short write stand, per
	// spec.md §7's "never silently produce incorrect code" policy.
	overflow bool
}

func NewCodeOutput(code []byte, labels map[ir.Label]int64) *CodeOutput {
	return &CodeOutput{code: code, labels: labels}
}

func (o *CodeOutput) Pos() int64 { return o.pos }

func (o *CodeOutput) WriteBytes(b []byte) {
	end := o.pos + int64(len(b))
	if end > int64(len(o.code)) {
		o.overflow = true
		if o.pos < int64(len(o.code)) {
			copy(o.code[o.pos:], b)
		}
		o.pos = end
		return
	}
	copy(o.code[o.pos:end], b)
	o.pos = end
}

// Overflowed reports whether any WriteBytes call ran past the end of the
// allocated code buffer — the sizing pass under-counted the bytes AsmOut
// or the unwind producer actually emit.
func (o *CodeOutput) Overflowed() bool { return o.overflow }

func (o *CodeOutput) PlaceLabel(lbl ir.Label) { o.labels[lbl] = o.pos }

func (o *CodeOutput) LabelOffset(lbl ir.Label) (int64, bool) { off, ok := o.labels[lbl]; return off, ok }

func (o *CodeOutput) Relocate(kind RelocationKind, ref *ir.Ref, target ir.Label) {
	o.Relocations = append(o.Relocations, RelocationInfo{Offset: o.pos, Kind: kind, Ref: ref, FuncLabel: target})
}

func (o *CodeOutput) IsSizingPass() bool { return false }

// Code returns the underlying code buffer written so far.
func (o *CodeOutput) Code() []byte { return o.code }
