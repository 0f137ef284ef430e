package amd64

import (
	"github.com/asmforge/ngen/backend"
	"github.com/asmforge/ngen/ir"
)

// lowerCalls rewrites every fnCall/fnCallRef group (together with its
// preceding run of fnParam/fnParamRef instructions) into concrete
// argument-placement and call instructions, and every fnRet/fnRetRef into
// a copy to the ABI's result location followed by epilog/ret.
//
// Grounded on the teacher's abi_go_call.go call-sequence builder: walk the
// call's parameter list once, classify each argument through the ABI, and
// emit register loads before the call instruction itself. ngen's call
// groups aren't individual SSA values though — they're whole runs of
// high-level fnParam pseudo-ops collected via Listing.PrecedingParams, so
// this walks the listing position-by-position looking for fnCall/fnCallRef
// instead of being driven by an SSA use list.
func lowerCalls(l *ir.Listing, arena backend.Arena) error {
	r := l.NewRewriter()
	instrs := l.Instrs()

	skip := map[int]bool{}
	for i, instr := range instrs {
		if skip[i] {
			continue
		}
		switch instr.Opcode {
		case ir.OpFnParam, ir.OpFnParamRef:
			// Read back through PrecedingParams at the call; only the labels
			// placed here are kept.
			r.Carry(i)
		case ir.OpFnCall, ir.OpFnCallRef:
			params := l.PrecedingParams(i)
			for _, p := range params {
				skip[p.Pos()] = true
			}
			lowerOneCall(l, r, arena, i, instr, params)
		case ir.OpFnRet, ir.OpFnRetRef:
			lowerOneReturn(r, arena, i, instr)
		default:
			r.Carry(i, instr)
		}
	}
	r.Finish()
	return nil
}

// placedArg pairs one classified backend.Param back up with the operand it
// reads from. addrOf is set instead of a plain value operand for a complex
// parameter: its temporary was constructed in place, and what the ABI
// actually wants in the register/stack slot is that temporary's address,
// not its bytes.
type placedArg struct {
	param   backend.Param
	typ     ir.TypeDesc
	operand ir.Operand
	addrOf  *ir.Var
}

// lowerOneCall implements the full call-lowering algorithm of spec.md §4.6:
// classify every parameter through arena's Params (step 1), reserve two
// scratch registers the rest of the pass is free to clobber (step 2),
// copy-construct complex parameters into fresh block-local temporaries
// (step 3), push stack arguments eightbyte by eightbyte straight from their
// source operands, making no block-local copy of an oversized by-value
// aggregate (steps 4-5), place register arguments while
// breaking register-to-register cycles (step 6), emit the call itself with
// the block-closing discipline each ABI's destroy-ownership rule requires
// (step 7), and retrieve the result (step 8).
func lowerOneCall(l *ir.Listing, r *ir.Rewriter, arena backend.Arena, pos int, instr ir.Instr, params []ir.Instr) {
	cc := arena.NewParams()
	scratch := arena.ScratchRegs()

	groups := make([][]placedArg, len(params))
	hasComplex := false
	hasStackArgs := false
	for idx, p := range params {
		assigned := cc.Add(backend.ParamID(idx), p.Type)
		group := make([]placedArg, len(assigned))
		for i, pa := range assigned {
			if ir.AliasOf(pa.Reg, scratch[0]) || ir.AliasOf(pa.Reg, scratch[1]) {
				panic("BUG: ABI classifier assigned an argument to a reserved scratch register")
			}
			group[i] = placedArg{param: pa, typ: p.Type, operand: p.Src}
			if pa.InMemory {
				hasStackArgs = true
			}
		}
		groups[idx] = group
		if p.Type.Kind == ir.TypeDescComplex {
			hasComplex = true
		}
	}

	var seq []ir.Instr
	var block *ir.Block
	openBlock := func() {
		if block != nil {
			return
		}
		// Parented at the root rather than whatever block lexically
		// encloses this call site: by the time this pass runs, the
		// listing's block-nesting stack has already unwound back to the
		// root for every call in the function, and nothing cheaper than a
		// full position-to-block index is available to recover the real
		// enclosing block. A temporary scoped to root still destructs
		// correctly on every path out of the call (exception or normal);
		// it is only overbroad if a jmpBlock from an outer scope could
		// somehow skip past it without running through endBlock, which
		// the call lowering's own emitted jmp never does.
		block = l.NewBlock(l.Root())
		bpos, err := l.BeginBlock(block)
		if err == nil {
			seq = append(seq, l.Instrs()[bpos])
		}
	}

	// Step 3: a complex parameter's value is copy-constructed into a fresh
	// block-local temporary before anything else touches the ABI's
	// registers, because the constructor call itself clobbers every
	// caller-saved register. The temporary is freed on exception
	// unconditionally (a throw mid-construction of a *later* parameter must
	// still unwind this one) and, on an ABI where the caller owns
	// destruction, freed again on normal block exit once the call has run.
	for idx, p := range params {
		if p.Type.Kind != ir.TypeDescComplex {
			continue
		}
		openBlock()

		when := ir.ReleaseOnException
		if !cc.CalleeDestroyParams() {
			when |= ir.ReleaseOnBlockExit
		}
		v := l.NewVar(block, p.Type.Size64(), ir.FreePolicy{
			When:         when,
			How:          ir.ReleaseByPointer,
			FreeInactive: true,
			FreeFunc:     p.Type.Dtor,
		})
		v.SuppressZeroInit = true

		seq = append(seq,
			ir.Instr{Opcode: ir.OpLea, Dest: ir.RegOperand(RDI(ir.Size64)), Src: ir.VarOperand(v, 0), Mode: ir.DestWrite},
			ir.Instr{Opcode: ir.OpMov, Dest: ir.RegOperand(RSI(ir.Size64)), Src: p.Src, Mode: ir.DestWrite},
			ir.Instr{Opcode: ir.OpCall, Src: ir.RefOperand(p.Type.CopyCtor, ir.Size64)},
		)
		if apos, err := l.Activate(v); err == nil {
			seq = append(seq, l.Instrs()[apos])
		}

		for i := range groups[idx] {
			groups[idx][i].addrOf = v
		}
	}

	// Step 4/5: stack-passed arguments are pushed in reverse declaration
	// order, closest-to-the-call first, so the final layout reads with
	// increasing offsets away from the return address. A param wider than
	// one register's worth of bytes (an oversized Simple aggregate the ABI
	// still chose to classify onto the stack, rather than by pointer) is
	// pushed one eightbyte at a time, highest offset first, straight out of
	// its own backing storage — it already lives in memory outside the
	// call's fresh stack region, so no staging copy is needed to keep the
	// in-flight pushes from clobbering the source.
	if hasStackArgs {
		for i := len(groups) - 1; i >= 0; i-- {
			for _, pa := range groups[i] {
				if !pa.param.InMemory {
					continue
				}
				seq = append(seq, pushStackArg(pa)...)
			}
		}
	}

	// Step 6: register-passed arguments, placed with setRegister's
	// cycle-breaking discipline (processed in ABI order).
	var regArgs []placedArg
	for _, group := range groups {
		for _, pa := range group {
			if !pa.param.InMemory {
				regArgs = append(regArgs, pa)
			}
		}
	}
	seq = append(seq, setRegisters(regArgs, scratch[0])...)

	result := cc.Result(instr.Type)
	if result.Kind == backend.ResultMemory && instr.Dest.Kind != ir.OperandNone {
		seq = append(seq, ir.Instr{Opcode: ir.OpLea, Dest: ir.RegOperand(result.MemoryReg), Src: instr.Dest, Mode: ir.DestWrite})
	}

	// Step 7: on Win64 the callee destroys by-value complex parameters, so
	// the temporaries' block must end, and their destructors must have
	// logically passed ownership, before the call executes; our own
	// destructor calls never run for them (When carries no
	// ReleaseOnBlockExit in that case). On SysV the caller destroys them
	// after the call returns, so the block stays open across the call
	// itself and is only closed afterward — with the call's result, if any,
	// first stashed in r15 (never otherwise used by this pass) since the
	// destructor calls that follow clobber every caller-saved register,
	// rax included.
	savedResult := ir.Operand{}
	closeBeforeCall := block != nil && cc.CalleeDestroyParams()
	closeAfterCall := block != nil && !cc.CalleeDestroyParams()

	if closeBeforeCall {
		if epos, err := l.EndBlock(block); err == nil {
			seq = append(seq, l.Instrs()[epos])
		}
	}

	seq = append(seq, ir.Instr{Opcode: ir.OpCall, Src: instr.Src})

	if closeAfterCall && result.Kind == backend.ResultRegisters && len(result.Params) > 0 {
		savedResult = ir.RegOperand(R15(ir.Size64))
		seq = append(seq, ir.Instr{Opcode: ir.OpMov, Dest: savedResult, Src: ir.RegOperand(result.Params[0].Reg), Mode: ir.DestWrite})
	}
	if closeAfterCall {
		if epos, err := l.EndBlock(block); err == nil {
			seq = append(seq, l.Instrs()[epos])
		}
	}

	// Step 8: retrieve the result.
	if instr.Dest.Kind != ir.OperandNone {
		switch {
		case result.Kind == backend.ResultRegisters && len(result.Params) > 0 && savedResult.Kind != ir.OperandNone:
			seq = append(seq, ir.Instr{Opcode: ir.OpMov, Dest: instr.Dest, Src: savedResult, Mode: ir.DestWrite})
		case result.Kind == backend.ResultRegisters && len(result.Params) > 0:
			seq = append(seq, ir.Instr{Opcode: ir.OpMov, Dest: instr.Dest, Src: ir.RegOperand(result.Params[0].Reg), Mode: ir.DestWrite})
		}
	}

	if stackBytes := cc.StackArgAreaSize(); stackBytes > 0 && !cc.CalleeDestroyParams() {
		seq = append(seq, ir.Instr{Opcode: ir.OpAdd, Dest: ir.RegOperand(RSP(ir.Size64)), Src: ir.ConstOperand(ir.Size64, int64(stackBytes)), Mode: ir.DestReadWrite})
	}

	r.Carry(pos, seq...)
}

// pushStackArg emits one parameter's stack-argument pushes, highest
// eightbyte offset first so the sequence of pushes lays the bytes out with
// increasing addresses matching increasing OffsetInValue.
func pushStackArg(pa placedArg) []ir.Instr {
	if pa.addrOf != nil {
		return []ir.Instr{{Opcode: ir.OpPush, Src: ir.VarOperand(pa.addrOf, 0)}}
	}
	if pa.param.Size <= 8 {
		return []ir.Instr{{Opcode: ir.OpPush, Src: pa.operand}}
	}

	n := (pa.param.Size + 7) / 8
	var out []ir.Instr
	for i := int(n) - 1; i >= 0; i-- {
		off := ir.Offset(i * 8)
		chunkSize := pa.param.Size - uint32(i)*8
		if chunkSize > 8 {
			chunkSize = 8
		}
		var chunk ir.Operand
		switch pa.operand.Kind {
		case ir.OperandVar:
			chunk = ir.VarOperandSized(pa.operand.Var, pa.operand.Offset+off, sizeCodeFor(chunkSize))
		case ir.OperandRegRel:
			chunk = ir.RegRelOperand(sizeCodeFor(chunkSize), pa.operand.Reg, pa.operand.Offset+off)
		default:
			chunk = pa.operand
		}
		out = append(out, ir.Instr{Opcode: ir.OpPush, Src: chunk})
	}
	return out
}

// regMove is one register-argument placement setRegisters may need to
// reorder around a cycle. override/hasOverride let a cycle-breaking step
// redirect a not-yet-finalized move to read from scratch instead of the
// register its source originally named.
type regMove struct {
	pa          placedArg
	dst         ir.Reg
	override    ir.Operand
	hasOverride bool
}

// setRegisters implements spec.md §4.6 step 6: assign every register
// argument, in ABI order, to its destination register.
//
// Writing into a destination register d is only safe once whichever move
// still needs d's *current* contents as its own source has already run —
// call that move reader(d). setRegisters performs reader(d) before
// finalizing d itself, recursively. A chain terminates at a register no
// other move reads from; a true cycle closes back on a register still
// mid-move on the call stack, which is where the scratch register comes
// in: d's current value is saved to scratch and reader(d) is redirected to
// read scratch instead of d once *it* finalizes, so the save always
// precedes the only instruction that would otherwise have clobbered it.
func setRegisters(args []placedArg, scratch ir.Reg) []ir.Instr {
	moves := make([]*regMove, len(args))
	byReaderSrc := map[uint8]*regMove{} // keyed by the register a move reads from
	for i, pa := range args {
		moves[i] = &regMove{pa: pa, dst: pa.param.Reg}
	}
	for _, m := range moves {
		if m.pa.addrOf == nil && m.pa.operand.Kind == ir.OperandReg {
			byReaderSrc[m.pa.operand.Reg.AliasKey()] = m
		}
	}

	const (
		unvisited = iota
		inProgress
		done
	)
	status := make(map[uint8]int, len(moves))

	var out []ir.Instr
	var perform func(m *regMove)
	perform = func(m *regMove) {
		key := m.dst.AliasKey()
		if status[key] == done {
			return
		}
		status[key] = inProgress

		if w, ok := byReaderSrc[key]; ok {
			switch status[w.dst.AliasKey()] {
			case inProgress:
				out = append(out, ir.Instr{Opcode: ir.OpMov, Dest: ir.RegOperand(scratch), Src: ir.RegOperand(m.dst), Mode: ir.DestWrite})
				w.override, w.hasOverride = ir.RegOperand(scratch), true
			case unvisited:
				perform(w)
			}
		}

		if m.pa.addrOf != nil {
			out = append(out, ir.Instr{Opcode: ir.OpLea, Dest: ir.RegOperand(m.dst), Src: ir.VarOperand(m.pa.addrOf, 0), Mode: ir.DestWrite})
		} else {
			src := m.pa.operand
			if m.hasOverride {
				src = m.override
			}
			out = append(out, ir.Instr{Opcode: ir.OpMov, Dest: ir.RegOperand(m.dst), Src: src, Mode: ir.DestWrite})
		}
		status[key] = done
	}

	for _, m := range moves {
		perform(m)
	}
	return out
}

func lowerOneReturn(r *ir.Rewriter, arena backend.Arena, pos int, instr ir.Instr) {
	cc := arena.NewParams()
	result := cc.Result(instr.Type)

	var seq []ir.Instr
	switch result.Kind {
	case backend.ResultRegisters:
		if len(result.Params) > 0 {
			seq = append(seq, ir.Instr{Opcode: ir.OpMov, Dest: ir.RegOperand(result.Params[0].Reg), Src: instr.Src, Mode: ir.DestWrite})
		}
	case backend.ResultMemory:
		seq = append(seq, ir.Instr{Opcode: ir.OpMov, Dest: ir.RegRelOperand(instr.Src.Size, result.MemoryReg, 0), Src: instr.Src, Mode: ir.DestWrite})
		seq = append(seq, ir.Instr{Opcode: ir.OpMov, Dest: ir.RegOperand(RAX(ir.Size64)), Src: ir.RegOperand(result.MemoryReg), Mode: ir.DestWrite})
	}
	seq = append(seq, ir.Instr{Opcode: ir.OpEpilog}, ir.Instr{Opcode: ir.OpRet})
	r.Carry(pos, seq...)
}
