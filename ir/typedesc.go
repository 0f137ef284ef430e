package ir

// PrimKind is the scalar category of a Primitive TypeDesc.
type PrimKind byte

const (
	PrimNone PrimKind = iota
	PrimPointer
	PrimInteger
	PrimReal
)

// TypeDescKind tags the TypeDesc union: Primitive, Complex, or Simple.
// Grounded on spec.md §3; no direct wazero analogue exists (wasm has no
// aggregate calling-convention classification), but it is the type the
// teacher's backend.ABIArg/FunctionABI.setABIArgs would consume if wazero's
// ssa.Type carried aggregates, so it is shaped to slot into that same
// Params.add/Params.result call pattern (see backend/params.go).
type TypeDescKind byte

const (
	TypeDescPrimitive TypeDescKind = iota
	TypeDescComplex
	TypeDescSimple
)

// TypeDesc is the calling-convention classifier's input: a tagged variant
// over Primitive/Complex/Simple, per spec.md §3.
type TypeDesc struct {
	Kind TypeDescKind

	// Primitive fields.
	PrimKind PrimKind
	Sz       Size

	// Complex fields: a non-trivially-copyable type, passed by pointer and
	// constructed/destroyed through explicit functions rather than a raw
	// copy.
	CopyCtor *Ref
	Dtor     *Ref

	// Simple fields: a trivially-copyable aggregate, described as a sorted
	// (by Offset) sequence of Primitive members. SysV eightbyte
	// classification and AArch64 HFA detection both walk this slice.
	Members []SimpleMember
}

// SimpleMember is one field of a Simple TypeDesc.
type SimpleMember struct {
	Prim   TypeDesc // Kind == TypeDescPrimitive
	Offset Offset
}

// PrimitiveType builds a Primitive TypeDesc.
func PrimitiveType(kind PrimKind, sz Size) TypeDesc {
	return TypeDesc{Kind: TypeDescPrimitive, PrimKind: kind, Sz: sz}
}

// ComplexType builds a Complex TypeDesc.
func ComplexType(sz Size, copyCtor, dtor *Ref) TypeDesc {
	return TypeDesc{Kind: TypeDescComplex, Sz: sz, CopyCtor: copyCtor, Dtor: dtor}
}

// SimpleType builds a Simple TypeDesc from a set of members; members are
// sorted by Offset to match spec.md §3's "sorted sequence of Primitives".
func SimpleType(sz Size, members []SimpleMember) TypeDesc {
	sorted := append([]SimpleMember(nil), members...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Offset < sorted[j-1].Offset; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return TypeDesc{Kind: TypeDescSimple, Sz: sz, Members: sorted}
}

// Size32 and Size64 return the width-specific byte size of the type.
func (t TypeDesc) Size32() uint32 { return t.Sz.Bytes32 }
func (t TypeDesc) Size64() uint32 { return t.Sz.Bytes64 }

// IsFloatOnly reports whether every leaf member (or the type itself, if
// Primitive) is a real (floating-point) value — used by AArch64's
// homogeneous-floating-point-aggregate (HFA) detection.
func (t TypeDesc) IsFloatOnly() bool {
	switch t.Kind {
	case TypeDescPrimitive:
		return t.PrimKind == PrimReal
	case TypeDescSimple:
		for _, m := range t.Members {
			if !m.Prim.IsFloatOnly() {
				return false
			}
		}
		return len(t.Members) > 0
	default:
		return false
	}
}

// HFAElementSize returns the element size in bytes of an HFA, valid only
// when IsFloatOnly reports true for a Simple type whose members are all the
// same width.
func (t TypeDesc) HFAElementSize() uint32 {
	if t.Kind != TypeDescSimple || len(t.Members) == 0 {
		return 0
	}
	return t.Members[0].Prim.Size64()
}
