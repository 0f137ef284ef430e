package ir

// OperandKind tags the variant carried by an Operand. Grounded on
// backend/isa/amd64/operands.go's `operand`/`amode` kind-tagged structs;
// spec.md §9's Design Notes calls for lifting that per-ISA pattern into one
// architecture-neutral tagged union, which is what Operand is.
type OperandKind byte

const (
	OperandNone OperandKind = iota
	OperandConst
	OperandDualConst
	OperandReg
	OperandRegRel
	OperandLabelRel
	OperandVar
	OperandLabel
	OperandBlock
	OperandRef
	OperandCond
	OperandSourcePos
)

// CondFlag is a processor-neutral condition used by jmp/setCond; each ISA's
// AsmOut maps it to the architecture's native condition code (grounded on
// backend/isa/arm64/cond.go's Cond enum + String table).
type CondFlag byte

const (
	CondAlways CondFlag = iota
	CondEqual
	CondNotEqual
	CondLess
	CondLessEqual
	CondGreater
	CondGreaterEqual
	CondBelow
	CondBelowEqual
	CondAbove
	CondAboveEqual
	CondOverflow
	CondNotOverflow
	CondSign
	CondNotSign
)

// Negate returns the logical complement of c, used when an instruction
// selection pass inverts a branch to fall through instead of jump.
func (c CondFlag) Negate() CondFlag {
	switch c {
	case CondEqual:
		return CondNotEqual
	case CondNotEqual:
		return CondEqual
	case CondLess:
		return CondGreaterEqual
	case CondLessEqual:
		return CondGreater
	case CondGreater:
		return CondLessEqual
	case CondGreaterEqual:
		return CondLess
	case CondBelow:
		return CondAboveEqual
	case CondBelowEqual:
		return CondAbove
	case CondAbove:
		return CondBelowEqual
	case CondAboveEqual:
		return CondBelow
	case CondOverflow:
		return CondNotOverflow
	case CondNotOverflow:
		return CondOverflow
	case CondSign:
		return CondNotSign
	case CondNotSign:
		return CondSign
	default:
		panic("BUG: cannot negate CondAlways")
	}
}

// Ref is a symbolic external reference: a foreign function, a runtime
// helper, or a GC-visible object. Its concrete address may not be known
// until link/publish time, so every use of a Ref in an Operand is tracked
// by Output as a relocation site (see backend.RelocationInfo).
type Ref struct {
	Name string
	// GCVisible marks a Ref whose target the garbage collector must trace
	// (an owned object pointer), as opposed to a plain code/data address.
	GCVisible bool
}

// Operand is a tagged union over every value an Instr's dest/src can name.
// Grounded on spec.md §3's Operand data model and the amd64 `operand`/
// `amode` split it abstracts over. The logical Size is carried separately
// from the size implied by the backing storage so that reading a narrower
// slice of a wider Var ("read a smaller field") is expressed purely by
// narrowing the Operand's size, without touching the Var itself.
type Operand struct {
	Kind OperandKind
	Size SizeCode

	// OperandConst / OperandRegRel / OperandVar / OperandLabelRel offset.
	Imm    int64
	Imm64  int64 // second word of OperandDualConst (64-bit-target value)
	Offset Offset

	Reg   Reg
	Label Label
	Block *Block
	Var   *Var
	Ref   *Ref
	Cond  CondFlag

	// SourcePos is only meaningful when Kind == OperandSourcePos; it is
	// opaque to ngen (source-position propagation is out of scope per
	// spec.md §1) and carried through purely so a host frontend can stash
	// its own encoding on a `location` pseudo-op.
	SourcePos uint64
}

func NoOperand() Operand { return Operand{Kind: OperandNone} }

func ConstOperand(size SizeCode, v int64) Operand {
	return Operand{Kind: OperandConst, Size: size, Imm: v}
}

// DualConstOperand carries two literal values, one read when the target is
// 32-bit (v32) and one when it is 64-bit (v64): e.g. the before-lowering
// representation of a pointer-sized constant such as a vtable layout tag.
func DualConstOperand(size SizeCode, v32, v64 int64) Operand {
	return Operand{Kind: OperandDualConst, Size: size, Imm: v32, Imm64: v64}
}

func RegOperand(r Reg) Operand {
	return Operand{Kind: OperandReg, Size: r.Size(), Reg: r}
}

func RegRelOperand(size SizeCode, base Reg, offset Offset) Operand {
	return Operand{Kind: OperandRegRel, Size: size, Reg: base, Offset: offset}
}

func LabelRelOperand(size SizeCode, l Label, offset Offset) Operand {
	return Operand{Kind: OperandLabelRel, Size: size, Label: l, Offset: offset}
}

func VarOperand(v *Var, offset Offset) Operand {
	return Operand{Kind: OperandVar, Size: SizeCode(bytesToSizeCode(v.Size)), Var: v, Offset: offset}
}

// VarOperandSized narrows the logical size of a Var reference, e.g. to read
// only the low 32 bits of a 64-bit local.
func VarOperandSized(v *Var, offset Offset, size SizeCode) Operand {
	return Operand{Kind: OperandVar, Size: size, Var: v, Offset: offset}
}

func LabelOperand(l Label) Operand {
	return Operand{Kind: OperandLabel, Label: l}
}

func BlockOperand(b *Block) Operand {
	return Operand{Kind: OperandBlock, Block: b}
}

func RefOperand(r *Ref, size SizeCode) Operand {
	return Operand{Kind: OperandRef, Size: size, Ref: r}
}

func CondOperand(c CondFlag) Operand {
	return Operand{Kind: OperandCond, Cond: c}
}

func SourcePosOperand(pos uint64) Operand {
	return Operand{Kind: OperandSourcePos, SourcePos: pos}
}

func bytesToSizeCode(bytes uint32) SizeCode {
	switch {
	case bytes <= 1:
		return Size8
	case bytes <= 2:
		return Size16
	case bytes <= 4:
		return Size32
	case bytes <= 8:
		return Size64
	default:
		return Size128
	}
}

// IsMemory reports whether the operand addresses memory rather than a
// register or an immediate; RemoveInvalid's "one operand in a register"
// legalization rule keys off this.
func (o Operand) IsMemory() bool {
	switch o.Kind {
	case OperandRegRel, OperandLabelRel, OperandVar:
		return true
	default:
		return false
	}
}

// IsImmediate reports whether the operand is a compile-time constant value.
func (o Operand) IsImmediate() bool {
	return o.Kind == OperandConst || o.Kind == OperandDualConst
}
