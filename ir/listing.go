package ir

// Listing is the ordered pseudo-instruction stream for one function, plus
// its scope tree and variable table (spec.md §3). It is built through the
// factory methods below, then handed to backend.Arena.Transform.
type Listing struct {
	instrs []Instr

	// labelsBefore[i] are the labels that resolve to the byte offset of
	// instrs[i]; labelsBefore[len(instrs)] is the virtual end-of-listing
	// label set, per spec.md §3 ("a label lives before the instruction it
	// is attached to, including a virtual label at the end").
	labelsBefore map[int][]Label
	labelAt      map[Label]int
	labelAlloc   labelAllocator

	root     *Block
	blocks   []*Block
	blockSeq BlockID

	vars    []*Var
	varSeq  VarID

	ResultType    TypeDesc
	HasResult     bool
	IsMemberFunc  bool
	ExceptionAware bool

	// blockStack tracks lexical nesting as the Listing is built, so
	// BeginBlock/EndBlock can validate against spec.md §3's invariants
	// immediately rather than only during Layout.
	blockStack []*Block
	ended      map[BlockID]bool
}

// NewListing creates an empty Listing with its synthetic root block.
func NewListing() *Listing {
	l := &Listing{
		labelsBefore: map[int][]Label{},
		labelAt:      map[Label]int{},
		ended:        map[BlockID]bool{},
	}
	l.root = &Block{ID: 0}
	l.blocks = append(l.blocks, l.root)
	l.blockStack = []*Block{l.root}
	return l
}

// Root returns the synthetic root block. The prolog/epilog implicitly
// begin/end it (spec.md §3).
func (l *Listing) Root() *Block { return l.root }

// CurrentBlock returns the innermost block considered lexically active at
// the point the next instruction will be appended.
func (l *Listing) CurrentBlock() *Block { return l.blockStack[len(l.blockStack)-1] }

// NewBlock allocates a child block of parent. It does not emit beginBlock;
// callers follow with l.BeginBlock.
func (l *Listing) NewBlock(parent *Block) *Block {
	if parent == nil {
		parent = l.root
	}
	l.blockSeq++
	b := &Block{ID: l.blockSeq, Parent: parent}
	l.blocks = append(l.blocks, b)
	return b
}

// NewVar declares a variable owned by block, with the given size and free
// policy.
func (l *Listing) NewVar(block *Block, size uint32, policy FreePolicy) *Var {
	if block == nil {
		block = l.root
	}
	l.varSeq++
	v := &Var{ID: l.varSeq, Size: size, Block: block, Policy: policy}
	l.vars = append(l.vars, v)
	block.addVar(v)
	return v
}

// Vars returns every variable declared in the Listing, in declaration order.
func (l *Listing) Vars() []*Var { return l.vars }

// Blocks returns every block in the Listing, including the root, in
// allocation order.
func (l *Listing) Blocks() []*Block { return l.blocks }

// NewLabel allocates a Label not yet attached to any position.
func (l *Listing) NewLabel() Label { return l.labelAlloc.alloc() }

// PlaceLabel attaches lbl to the position the next instruction will occupy
// (or to the virtual end label if called with no further Emit calls).
func (l *Listing) PlaceLabel(lbl Label) {
	if _, dup := l.labelAt[lbl]; dup {
		panic("BUG: label placed twice")
	}
	pos := len(l.instrs)
	l.labelAt[lbl] = pos
	l.labelsBefore[pos] = append(l.labelsBefore[pos], lbl)
}

// LabelsBefore returns the labels that resolve to the position of instrs[i]
// (or the virtual end label when i == len(Instrs())).
func (l *Listing) LabelsBefore(i int) []Label { return l.labelsBefore[i] }

// LabelPosition returns the instruction index a label was placed before.
func (l *Listing) LabelPosition(lbl Label) (int, bool) {
	p, ok := l.labelAt[lbl]
	return p, ok
}

// Instrs returns the instruction stream built so far.
func (l *Listing) Instrs() []Instr { return l.instrs }

// Len returns the number of instructions emitted so far.
func (l *Listing) Len() int { return len(l.instrs) }

// emit appends instr, stamping its position, and returns that position (the
// instruction's index in the Listing).
func (l *Listing) emit(instr Instr) int {
	instr.Mode = ModeOf(instr.Opcode)
	instr.pos = len(l.instrs)
	l.instrs = append(l.instrs, instr)
	return instr.pos
}

// --- data movement ---

func (l *Listing) Mov(dest, src Operand) int  { return l.emit(Instr{Opcode: OpMov, Dest: dest, Src: src}) }
func (l *Listing) Swap(dest, src Operand) int { return l.emit(Instr{Opcode: OpSwap, Dest: dest, Src: src}) }
func (l *Listing) Lea(dest, src Operand) int  { return l.emit(Instr{Opcode: OpLea, Dest: dest, Src: src}) }
func (l *Listing) Push(src Operand) int       { return l.emit(Instr{Opcode: OpPush, Src: src}) }
func (l *Listing) Pop(dest Operand) int       { return l.emit(Instr{Opcode: OpPop, Dest: dest}) }
func (l *Listing) PushFlags() int             { return l.emit(Instr{Opcode: OpPushFlags}) }
func (l *Listing) PopFlags() int              { return l.emit(Instr{Opcode: OpPopFlags}) }

// --- integer arithmetic / bit ops (share a dest-read-write shape) ---

func (l *Listing) binary(op Opcode, dest, src Operand) int {
	return l.emit(Instr{Opcode: op, Dest: dest, Src: src})
}

func (l *Listing) Add(dest, src Operand) int  { return l.binary(OpAdd, dest, src) }
func (l *Listing) Adc(dest, src Operand) int  { return l.binary(OpAdc, dest, src) }
func (l *Listing) Sub(dest, src Operand) int  { return l.binary(OpSub, dest, src) }
func (l *Listing) Sbb(dest, src Operand) int  { return l.binary(OpSbb, dest, src) }
func (l *Listing) Mul(dest, src Operand) int  { return l.binary(OpMul, dest, src) }
func (l *Listing) IDiv(dest, src Operand) int { return l.binary(OpIDiv, dest, src) }
func (l *Listing) UDiv(dest, src Operand) int { return l.binary(OpUDiv, dest, src) }
func (l *Listing) IMod(dest, src Operand) int { return l.binary(OpIMod, dest, src) }
func (l *Listing) UMod(dest, src Operand) int { return l.binary(OpUMod, dest, src) }
func (l *Listing) Cmp(dest, src Operand) int  { return l.binary(OpCmp, dest, src) }
func (l *Listing) Test(dest, src Operand) int { return l.binary(OpTest, dest, src) }
func (l *Listing) And(dest, src Operand) int  { return l.binary(OpAnd, dest, src) }
func (l *Listing) Or(dest, src Operand) int   { return l.binary(OpOr, dest, src) }
func (l *Listing) Xor(dest, src Operand) int  { return l.binary(OpXor, dest, src) }
func (l *Listing) Not(dest Operand) int       { return l.emit(Instr{Opcode: OpNot, Dest: dest}) }
func (l *Listing) Shl(dest, src Operand) int  { return l.binary(OpShl, dest, src) }
func (l *Listing) Shr(dest, src Operand) int  { return l.binary(OpShr, dest, src) }
func (l *Listing) Sar(dest, src Operand) int  { return l.binary(OpSar, dest, src) }

func (l *Listing) ICast(dest, src Operand) int { return l.emit(Instr{Opcode: OpICast, Dest: dest, Src: src}) }
func (l *Listing) UCast(dest, src Operand) int { return l.emit(Instr{Opcode: OpUCast, Dest: dest, Src: src}) }

// --- floating point ---

func (l *Listing) FAdd(dest, src Operand) int  { return l.binary(OpFAdd, dest, src) }
func (l *Listing) FSub(dest, src Operand) int  { return l.binary(OpFSub, dest, src) }
func (l *Listing) FNeg(dest Operand) int       { return l.emit(Instr{Opcode: OpFNeg, Dest: dest}) }
func (l *Listing) FMul(dest, src Operand) int  { return l.binary(OpFMul, dest, src) }
func (l *Listing) FDiv(dest, src Operand) int  { return l.binary(OpFDiv, dest, src) }
func (l *Listing) FCmp(dest, src Operand) int  { return l.binary(OpFCmp, dest, src) }
func (l *Listing) FCast(dest, src Operand) int { return l.emit(Instr{Opcode: OpFCast, Dest: dest, Src: src}) }
func (l *Listing) FCastI(dest, src Operand) int { return l.emit(Instr{Opcode: OpFCastI, Dest: dest, Src: src}) }
func (l *Listing) FCastU(dest, src Operand) int { return l.emit(Instr{Opcode: OpFCastU, Dest: dest, Src: src}) }
func (l *Listing) ICastF(dest, src Operand) int { return l.emit(Instr{Opcode: OpICastF, Dest: dest, Src: src}) }
func (l *Listing) UCastF(dest, src Operand) int { return l.emit(Instr{Opcode: OpUCastF, Dest: dest, Src: src}) }
func (l *Listing) Fld(src Operand) int          { return l.emit(Instr{Opcode: OpFld, Src: src}) }
func (l *Listing) Fstp(dest Operand) int        { return l.emit(Instr{Opcode: OpFstp, Dest: dest}) }

// --- control flow ---

func (l *Listing) Jmp(cond CondFlag, target Operand) int {
	return l.emit(Instr{Opcode: OpJmp, Src: target, JumpCond: cond})
}

func (l *Listing) Call(target Operand) int { return l.emit(Instr{Opcode: OpCall, Src: target}) }
func (l *Listing) Ret() int                { return l.emit(Instr{Opcode: OpRet}) }

func (l *Listing) SetCond(dest Operand, cond CondFlag) int {
	return l.emit(Instr{Opcode: OpSetCond, Dest: dest, JumpCond: cond})
}

// --- pseudo ---

func (l *Listing) Nop() int              { return l.emit(Instr{Opcode: OpNop}) }
func (l *Listing) Dat(data Operand) int  { return l.emit(Instr{Opcode: OpDat, Src: data}) }
func (l *Listing) LblOffset(dest Operand, lbl Label) int {
	return l.emit(Instr{Opcode: OpLblOffset, Dest: dest, Src: LabelOperand(lbl)})
}
func (l *Listing) Align(bytes int64) int {
	return l.emit(Instr{Opcode: OpAlign, Src: ConstOperand(Size64, bytes)})
}
func (l *Listing) AlignAs(bytes int64) int {
	return l.emit(Instr{Opcode: OpAlignAs, Src: ConstOperand(Size64, bytes)})
}
func (l *Listing) ThreadLocal(dest Operand, ref *Ref) int {
	return l.emit(Instr{Opcode: OpThreadLocal, Dest: dest, Src: RefOperand(ref, dest.Size)})
}

// --- scoping ---

func (l *Listing) Prolog() int { return l.emit(Instr{Opcode: OpProlog}) }
func (l *Listing) Epilog() int { return l.emit(Instr{Opcode: OpEpilog}) }

// BeginBlock opens b, which must be a not-yet-begun child of the current
// block. Raises BlockBeginError otherwise (spec.md §4.8, §8).
func (l *Listing) BeginBlock(b *Block) (int, error) {
	cur := l.CurrentBlock()
	if b.Parent != cur || l.ended[b.ID] {
		return 0, NewBlockBeginError(len(l.instrs), b.ID, cur.ID)
	}
	pos := l.emit(Instr{Opcode: OpBeginBlock, Dest: BlockOperand(b)})
	l.blockStack = append(l.blockStack, b)
	return pos, nil
}

// EndBlock closes the current block, which must be b. Raises BlockEndError
// otherwise, or if b was already ended (spec.md §3: "a block cannot be
// re-entered after endBlock").
func (l *Listing) EndBlock(b *Block) (int, error) {
	cur := l.CurrentBlock()
	if cur != b || cur == l.root || l.ended[b.ID] {
		return 0, NewBlockEndError(len(l.instrs), b.ID)
	}
	pos := l.emit(Instr{Opcode: OpEndBlock, Dest: BlockOperand(b)})
	l.blockStack = l.blockStack[:len(l.blockStack)-1]
	l.ended[b.ID] = true
	return pos, nil
}

// JmpBlock destroys blocks back to (but not including) target, then jumps
// to lbl, without changing the lexical nesting recorded by BeginBlock/
// EndBlock (spec.md §4.5).
func (l *Listing) JmpBlock(lbl Label, target *Block) (int, error) {
	if !l.CurrentBlock().IsAncestor(target) {
		return 0, NewBlockEndError(len(l.instrs), target.ID)
	}
	pos := l.emit(Instr{Opcode: OpJmpBlock, Dest: BlockOperand(target), Src: LabelOperand(lbl)})
	return pos, nil
}

// Activate marks v as constructed. v must have FreeInactive set and not
// already be activated (spec.md §4.5's `activate` semantics).
func (l *Listing) Activate(v *Var) (int, error) {
	if !v.Policy.FreeInactive || v.activated {
		return 0, NewVariableActivationError(len(l.instrs), v.ID)
	}
	pos := l.emit(Instr{Opcode: OpActivate, Dest: VarOperand(v, 0)})
	v.activated = true
	return pos, nil
}

func (l *Listing) Preserve(reg Operand) int { return l.emit(Instr{Opcode: OpPreserve, Src: reg}) }
func (l *Listing) Location(pos uint64) int  { return l.emit(Instr{Opcode: OpLocation, Src: SourcePosOperand(pos)}) }
func (l *Listing) Meta(payload Operand) int { return l.emit(Instr{Opcode: OpMeta, Src: payload}) }

// --- high-level calls ---

// FnParam enumerates one typed, by-value parameter ahead of a following
// fnCall/fnCallRef. byRef selects fnParamRef, whose operand is already an
// address (spec.md SPEC_FULL.md addition: fnParamRef/fnRetRef).
func (l *Listing) FnParam(typ TypeDesc, value Operand, byRef bool) int {
	op := OpFnParam
	if byRef {
		op = OpFnParamRef
	}
	return l.emit(Instr{Opcode: op, Src: value, Type: typ, HasType: true})
}

// FnCall emits the call itself: target names the callee (a label/Ref/
// register operand), result is where the ABI's return value lands, and
// resultType describes it (TypeDescPrimitive with PrimNone for void).
func (l *Listing) FnCall(target Operand, result Operand, resultType TypeDesc, memberCall, byRef bool) int {
	op := OpFnCall
	if byRef {
		op = OpFnCallRef
	}
	return l.emit(Instr{Opcode: op, Dest: result, Src: target, Type: resultType, HasType: true, MemberCall: memberCall})
}

// FnRet lowers the function's return: value is copied into the ABI's result
// location per resultType. byRef selects fnRetRef (value is already a
// pointer to the result).
func (l *Listing) FnRet(value Operand, resultType TypeDesc, byRef bool) int {
	op := OpFnRet
	if byRef {
		op = OpFnRetRef
	}
	return l.emit(Instr{Opcode: op, Src: value, Type: resultType, HasType: true})
}

// PrecedingParams walks backward from the fnCall/fnCallRef at pos over the
// contiguous run of fnParam/fnParamRef instructions that feed it, returning
// them in argument order. Grounded on spec.md §4.6 ("builds a ParamInfo
// vector"): ngen represents that vector implicitly as the IR's own
// preceding-instruction run rather than a separate side table.
func (l *Listing) PrecedingParams(pos int) []Instr {
	start := pos
	for start > 0 {
		op := l.instrs[start-1].Opcode
		if op != OpFnParam && op != OpFnParamRef {
			break
		}
		start--
	}
	return l.instrs[start:pos]
}
