// Package liveness implements spec.md §4.2's UsedRegs analysis: a backwards
// live-register data-flow pass over an ir.Listing producing, per
// instruction, the set of physical registers that must be preserved at that
// point.
//
// Grounded on the block-order-with-worklist shape of the teacher's
// backend/regalloc/regalloc.go liveness pass, deliberately stopping short of
// that file's graph-coloring allocator: spec.md §1 excludes register
// allocation beyond local live-set tracking, so only the liveness fixpoint
// is adapted here, not backend/regalloc/coloring.go or assign.go.
package liveness

import "github.com/asmforge/ngen/ir"

// CalleeSavedFilter narrows a RegSet down to the registers the current
// target's ABI guarantees survive a call (spec.md §4.2: "intersect with the
// ABI's callee-saved set via Arena.removeFnRegs"). Declared as a plain
// function type here, rather than importing the backend package's Arena
// interface, to keep liveness free of a dependency cycle (backend depends
// on liveness, not the other way around).
type CalleeSavedFilter func(ir.RegSet) ir.RegSet

// Result is the outcome of Analyze: the live-in register set for every
// instruction, indexed the same as ir.Listing.Instrs(), plus the live-out
// set for the whole listing (index == l.Len()).
type Result struct {
	liveIn []ir.RegSet
}

// LiveIn returns the set of registers live immediately before instrs[i].
func (r *Result) LiveIn(i int) ir.RegSet { return r.liveIn[i] }

// LiveOut returns the set of registers live immediately after instrs[i],
// which by construction equals LiveIn(i+1).
func (r *Result) LiveOut(i int) ir.RegSet { return r.liveIn[i+1] }

// Analyze runs the backwards fixpoint over l and returns live-in sets for
// every instruction. removeFnRegs implements the target's callee-saved
// filter for the call-family rule.
func Analyze(l *ir.Listing, removeFnRegs CalleeSavedFilter) *Result {
	a := &analyzer{
		l:            l,
		removeFnRegs: removeFnRegs,
		liveIn:       make([]ir.RegSet, l.Len()+1),
		computed:     make([]bool, l.Len()+1),
		labelLiveIn:  map[ir.Label]ir.RegSet{},
		labelSeen:    map[ir.Label]bool{},
		backEdges:    map[ir.Label][]int{},
	}
	a.collectBackEdgeUsers()
	a.computed[l.Len()] = true // live-out of the whole function is the empty set
	a.runFrom(l.Len() - 1)
	a.drainWorklist()
	return &Result{liveIn: a.liveIn}
}

type analyzer struct {
	l            *ir.Listing
	removeFnRegs CalleeSavedFilter

	liveIn   []ir.RegSet
	computed []bool

	labelLiveIn map[ir.Label]ir.RegSet
	labelSeen   map[ir.Label]bool

	// backEdges[lbl] is every jmp instruction position whose target is
	// lbl; when lbl's live-in set is (re)computed and changes, those
	// positions are queued for re-traversal.
	backEdges map[ir.Label][]int

	worklist []int
}

// collectBackEdgeUsers records, for every label referenced by a jmp
// instruction's target operand, the jmp's own position.
func (a *analyzer) collectBackEdgeUsers() {
	for i, instr := range a.l.Instrs() {
		if instr.Opcode != ir.OpJmp {
			continue
		}
		if instr.Src.Kind == ir.OperandLabel {
			lbl := instr.Src.Label
			a.backEdges[lbl] = append(a.backEdges[lbl], i)
		}
	}
}

// runFrom performs the backward walk starting with instruction index
// `from`'s live-out already established in a.liveIn[from+1], continuing
// down to index 0. It halts early, mid-retraversal, the moment a freshly
// computed live-in set equals the value already stored there (spec.md
// §4.2: "A re-traversal halts as soon as the computed set stops differing
// from the stored set at a line").
func (a *analyzer) runFrom(from int) {
	if from < 0 {
		return
	}
	liveOut := a.liveIn[from+1]
	for i := from; i >= 0; i-- {
		instr := &a.l.Instrs()[i]
		newLive := a.step(i, instr, liveOut)

		if a.computed[i] && eq(newLive, a.liveIn[i]) {
			return
		}
		a.liveIn[i] = newLive
		a.computed[i] = true
		a.noteLabels(i, newLive)
		liveOut = newLive
	}
}

// noteLabels updates labelLiveIn for any label attached before instrs[i],
// queuing that label's back-edge jmp sites for re-traversal when the value
// changed (or is being seen for the first time).
func (a *analyzer) noteLabels(i int, live ir.RegSet) {
	for _, lbl := range a.l.LabelsBefore(i) {
		prev, seen := a.labelLiveIn[lbl]
		if seen && eq(prev, live) {
			continue
		}
		a.labelLiveIn[lbl] = live
		a.labelSeen[lbl] = true
		for _, pos := range a.backEdges[lbl] {
			a.worklist = append(a.worklist, pos)
		}
	}
}

func (a *analyzer) drainWorklist() {
	for len(a.worklist) > 0 {
		pos := a.worklist[len(a.worklist)-1]
		a.worklist = a.worklist[:len(a.worklist)-1]
		a.runFrom(pos)
	}
}

// step applies one instruction's liveness rule (spec.md §4.2) and returns
// the resulting live-in set.
func (a *analyzer) step(i int, instr *ir.Instr, liveOut ir.RegSet) ir.RegSet {
	switch instr.Opcode {
	case ir.OpEndBlock, ir.OpJmpBlock, ir.OpProlog:
		return ir.RegSet{}
	case ir.OpJmp:
		if instr.JumpCond == ir.CondAlways && instr.Src.Kind != ir.OperandLabel {
			// Unconditional jmp to a non-label (computed/indirect) target:
			// we cannot know where control resumes, so nothing survives.
			return ir.RegSet{}
		}
		if instr.Src.Kind == ir.OperandLabel {
			target := a.labelLiveIn[instr.Src.Label]
			if instr.JumpCond == ir.CondAlways {
				return target
			}
			// Conditional jump: control may fall through too.
			return target.Union(liveOut)
		}
		return liveOut
	case ir.OpBeginBlock, ir.OpSwap:
		return liveOut
	case ir.OpFnCall, ir.OpFnCallRef, ir.OpCall:
		if a.removeFnRegs != nil {
			return a.removeFnRegs(liveOut)
		}
		return liveOut
	default:
		if isXorSelf(instr) {
			return liveOut.Remove(instr.Dest.Reg)
		}
		return a.defaultStep(instr, liveOut)
	}
}

func isXorSelf(instr *ir.Instr) bool {
	return instr.Opcode == ir.OpXor &&
		instr.Dest.Kind == ir.OperandReg && instr.Src.Kind == ir.OperandReg &&
		ir.AliasOf(instr.Dest.Reg, instr.Src.Reg)
}

func (a *analyzer) defaultStep(instr *ir.Instr, liveOut ir.RegSet) ir.RegSet {
	out := liveOut

	if instr.Dest.Kind == ir.OperandRegRel {
		out = out.Add(instr.Dest.Reg, stateFor(instr.Dest.Reg))
	}
	if instr.Src.Kind == ir.OperandRegRel {
		out = out.Add(instr.Src.Reg, stateFor(instr.Src.Reg))
	}

	switch instr.Mode {
	case ir.DestWrite, ir.DestReadWrite:
		if instr.Dest.Kind == ir.OperandReg {
			out = out.Remove(instr.Dest.Reg)
		}
	}
	switch instr.Mode {
	case ir.DestRead, ir.DestReadWrite:
		if instr.Dest.Kind == ir.OperandReg {
			out = out.Add(instr.Dest.Reg, stateFor(instr.Dest.Reg))
		}
	}
	if instr.Src.Kind == ir.OperandReg {
		out = out.Add(instr.Src.Reg, stateFor(instr.Src.Reg))
	}
	return out
}

func stateFor(r ir.Reg) ir.LiveState {
	if r.Size() == ir.Size64 {
		return ir.StateLive64
	}
	return ir.StateLive32
}

func eq(a, b ir.RegSet) bool { return a == b }
