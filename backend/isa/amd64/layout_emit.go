package amd64

import (
	"github.com/asmforge/ngen/backend"
	"github.com/asmforge/ngen/internal/diag"
	"github.com/asmforge/ngen/ir"
)

// layoutEmitter walks a listing once, rewriting its scoping pseudo-ops
// (prolog, epilog, beginBlock, endBlock, jmpBlock, activate) into concrete
// instruction sequences and building the active-blocks exception table
// alongside. fnCall/fnCallRef/fnRet/fnRetRef have already been rewritten
// by RemoveInvalid's lowerCalls by the time this runs, so they pass
// through untouched.
type layoutEmitter struct {
	l     *ir.Listing
	r     *ir.Rewriter
	frame *backend.FrameInfo
	logger *diag.Logger

	currentBlock    *ir.Block
	nextActivation  uint16
	activeBlocks    []ir.ActiveBlock
	lastWasCall     bool
}

func (e *layoutEmitter) run() error {
	e.currentBlock = e.l.Root()

	for i, instr := range e.l.Instrs() {
		switch instr.Opcode {
		case ir.OpProlog:
			e.emitProlog(i)
		case ir.OpBeginBlock:
			e.currentBlock = instr.Dest.Block
			e.recordActiveBlock(e.placeEHLabel(i))
		case ir.OpEndBlock:
			e.destroyBlockVars(instr.Dest.Block)
			if instr.Dest.Block.Parent != nil {
				e.currentBlock = instr.Dest.Block.Parent
			}
			e.recordActiveBlock(e.placeEHLabel(i))
		case ir.OpJmpBlock:
			e.jmpBlock(i, instr)
		case ir.OpActivate:
			e.activate(i, instr)
		case ir.OpEpilog:
			e.emitEpilog(i)
		default:
			e.r.Carry(i, instr)
			e.lastWasCall = instr.Opcode == ir.OpCall || isCallFamily(instr.Opcode)
		}
	}
	return nil
}

func isCallFamily(op ir.Opcode) bool {
	return op == ir.OpFnCall || op == ir.OpFnCallRef
}

// emitProlog implements the standard push-rbp/mov-rbp,rsp/sub-rsp frame
// entry with the callee-saved pushes, and zero-initializes, once at entry,
// every stack-resident variable of the listing (in any block) that is not a
// parameter and does not suppress it. Parameter registers are not spilled:
// parameter variables get a stack slot but nothing stores into it here.
func (e *layoutEmitter) emitProlog(pos int) {
	var seq []ir.Instr
	seq = append(seq,
		ir.Instr{Opcode: ir.OpPush, Src: ir.RegOperand(RBP(ir.Size64))},
		ir.Instr{Opcode: ir.OpMov, Dest: ir.RegOperand(RBP(ir.Size64)), Src: ir.RegOperand(RSP(ir.Size64)), Mode: ir.DestWrite},
	)
	for _, reg := range e.frame.CalleeSaved {
		seq = append(seq, ir.Instr{Opcode: ir.OpPush, Src: ir.RegOperand(reg)})
	}
	seq = append(seq, ir.Instr{Opcode: ir.OpSub, Dest: ir.RegOperand(RSP(ir.Size64)), Src: ir.ConstOperand(ir.Size64, int64(e.frame.TotalSize)), Mode: ir.DestReadWrite})

	for _, v := range e.l.Vars() {
		if _, ok := e.frame.VarOffsets[v.ID]; !ok {
			continue
		}
		if v.IsParam {
			continue // parameters are neither spilled nor zeroed
		}
		if v.SuppressZeroInit {
			continue
		}
		dest := ir.VarOperandSized(v, 0, sizeCodeFor(v.Size))
		seq = append(seq, ir.Instr{Opcode: ir.OpMov, Dest: dest, Src: ir.ConstOperand(sizeCodeFor(v.Size), 0), Mode: ir.DestWrite})
	}

	e.r.Carry(pos, seq...)
}

func sizeCodeFor(bytes uint32) ir.SizeCode {
	switch {
	case bytes <= 1:
		return ir.Size8
	case bytes <= 2:
		return ir.Size16
	case bytes <= 4:
		return ir.Size32
	default:
		return ir.Size64
	}
}

// emitEpilog destroys every block back to the root (preserving the
// lexically active block across the walk, since an early-return epilog
// must not change what beginBlock/endBlock consider current afterwards),
// then restores rsp, the callee-saved registers and rbp. It emits no ret;
// the return lowering places one after the epilog.
func (e *layoutEmitter) emitEpilog(pos int) {
	saved := e.currentBlock
	for b := e.currentBlock; b != nil; b = b.Parent {
		e.destroyBlockVars(b)
	}
	e.currentBlock = saved

	var seq []ir.Instr
	seq = append(seq, ir.Instr{Opcode: ir.OpMov, Dest: ir.RegOperand(RSP(ir.Size64)), Src: ir.RegOperand(RBP(ir.Size64)), Mode: ir.DestWrite})
	for i := len(e.frame.CalleeSaved) - 1; i >= 0; i-- {
		seq = append(seq, ir.Instr{Opcode: ir.OpPop, Dest: ir.RegOperand(e.frame.CalleeSaved[i])})
	}
	seq = append(seq, ir.Instr{Opcode: ir.OpPop, Dest: ir.RegOperand(RBP(ir.Size64))})
	e.r.Carry(pos, seq...)
}

// destroyBlockVars implements the reverse-declaration-order destructor
// walk: for each variable freed on block exit, active at the current
// activation level, arrange its address and call its free function.
func (e *layoutEmitter) destroyBlockVars(b *ir.Block) {
	for _, v := range b.DestructionOrder() {
		if v.Policy.When&ir.ReleaseOnBlockExit == 0 {
			continue
		}
		if v.Policy.FreeInactive && !v.Activated() {
			continue
		}
		if v.Policy.FreeFunc == nil {
			continue
		}
		e.emitFree(v)
	}
}

// emitFree arranges v's address (or its indirect pointer, doubly
// indirected if the policy asks to free via pointer) into the first
// integer argument register and calls the free function.
func (e *layoutEmitter) emitFree(v *ir.Var) {
	argReg := RDI(ir.Size64) // SysV first integer arg; Win64's ABI wiring overrides via a dedicated Layout per abi_win64.go's shadow-space handling
	var addr ir.Instr
	switch {
	case v.Policy.How == ir.ReleaseByPointer && v.Indirect:
		addr = ir.Instr{Opcode: ir.OpMov, Dest: ir.RegOperand(argReg), Src: ir.VarOperand(v, 0), Mode: ir.DestWrite}
	case v.Indirect:
		addr = ir.Instr{Opcode: ir.OpMov, Dest: ir.RegOperand(argReg), Src: ir.VarOperand(v, 0), Mode: ir.DestWrite}
	default:
		addr = ir.Instr{Opcode: ir.OpLea, Dest: ir.RegOperand(argReg), Src: ir.VarOperand(v, 0), Mode: ir.DestWrite}
	}
	e.r.Emit(addr, ir.Instr{Opcode: ir.OpCall, Src: ir.RefOperand(v.Policy.FreeFunc, ir.Size64)})
	e.lastWasCall = true
}

// jmpBlock records the active-blocks entry for the state about to be left
// (spec.md §4.5: jmpBlock is one of the ops that changes EH-relevant
// state), then destroys blocks from the current one up to (but not
// including) target and emits an unconditional jump; the lexically active
// block is left unchanged afterwards (the early-exit doesn't end the
// source block's lifetime, only its destructors run early).
func (e *layoutEmitter) jmpBlock(pos int, instr ir.Instr) {
	e.recordActiveBlock(e.placeEHLabel(pos))

	saved := e.currentBlock
	for b := e.currentBlock; b != nil && b != instr.Dest.Block; b = b.Parent {
		e.destroyBlockVars(b)
	}
	e.currentBlock = saved
	e.r.Emit(ir.Instr{Opcode: ir.OpJmp, Src: instr.Src, JumpCond: ir.CondAlways})
	e.lastWasCall = false
}

// placeEHLabel marks the current position with a fresh label, inserting a
// preceding nop when the last instruction carried was a call so the
// unwinder — which looks up the greatest PC not exceeding the fault
// address — can't confuse the call's own landing pad with this new entry.
// The original position's labels are carried onto it (pos's instruction,
// if any, is expected to be emitted separately by the caller).
func (e *layoutEmitter) placeEHLabel(pos int) ir.Label {
	if e.lastWasCall {
		e.r.Emit(ir.Instr{Opcode: ir.OpNop})
	}
	lbl := e.l.NewLabel()
	e.r.PlaceLabel(lbl)
	e.r.Carry(pos)
	e.lastWasCall = false
	return lbl
}

// recordActiveBlock appends a spec.md §4.5/§6 active-blocks table entry for
// lbl at the emitter's current (block, activation) state.
func (e *layoutEmitter) recordActiveBlock(lbl ir.Label) {
	e.activeBlocks = append(e.activeBlocks, ir.ActiveBlock{
		CodeLabel:  lbl,
		Block:      e.currentBlock.ID,
		Activation: e.nextActivation,
	})
}

// activate assigns the variable the next global activation id and, if it
// is destroyed on exception, appends a new exception-table entry.
func (e *layoutEmitter) activate(pos int, instr ir.Instr) {
	v := instr.Dest.Var
	e.nextActivation++
	v.SetActivation(e.nextActivation)

	lbl := e.placeEHLabel(pos)
	if v.Policy.When&ir.ReleaseOnException != 0 {
		e.recordActiveBlock(lbl)
	}
}
