package amd64

import (
	"github.com/asmforge/ngen/backend"
	"github.com/asmforge/ngen/internal/diag"
	"github.com/asmforge/ngen/ir"
	"github.com/asmforge/ngen/liveness"
)

// Layout is the shared X86-64 frame-layout pass: stack-offset assignment,
// prolog/epilog emission, begin/endBlock destruction, and fnRet
// finalization. The two ABIs differ in one detail, carried via
// ShadowSpace: Win64 reserves 32 bytes below the return address that the
// callee may use to spill its own register parameters before the second
// stack-pointer adjustment, so exception unwinding can still read them;
// SysV's ShadowSpace is zero.
//
// Grounded on the teacher's machine_pro_epi_logue.go (push rbp; mov
// rbp,rsp; sub rsp,N prolog shape, restore-and-ret epilog shape) and
// stack.go (frame-size accounting), generalized with the destructor-walk
// and exception-table bookkeeping that file never needs (wazero has no
// language-level object lifetime to track).
type Layout struct {
	ShadowSpace int32
	Logger      *diag.Logger
}

func (lay *Layout) Run(l *ir.Listing, arena backend.Arena) (*backend.FrameInfo, error) {
	filter := func(s ir.RegSet) ir.RegSet { return s.Intersect(arena.CalleeSavedRegs()) }
	live := liveness.Analyze(l, filter)

	calleeSaved := collectCalleeSaved(live, l.Len(), arena.CalleeSavedRegs())
	varOffsets, frameSize := assignVarOffsets(l, int32(len(calleeSaved))*8+lay.ShadowSpace)

	frame := &backend.FrameInfo{
		TotalSize:   alignUp16(frameSize),
		CalleeSaved: calleeSaved,
		VarOffsets:  varOffsets,
	}

	r := l.NewRewriter()
	emitter := &layoutEmitter{l: l, r: r, frame: frame, logger: lay.Logger}
	if err := emitter.run(); err != nil {
		return nil, err
	}
	r.Finish()

	frame.ActiveBlocks = emitter.activeBlocks
	return frame, nil
}

func alignUp16(n int32) int32 { return int32(ir.Align(int64(n), 16)) }

// collectCalleeSaved is the live-union-minus-caller-save rule: the union of
// every instruction's live-in set, intersected with the ABI's
// callee-saved registers, is exactly the set this function must save on
// entry and restore on exit — any callee-saved register that's never live
// here was never clobbered, so there's nothing to protect.
func collectCalleeSaved(live *liveness.Result, n int, calleeSavedSet ir.RegSet) []ir.Reg {
	union := ir.RegSet{}
	for i := 0; i <= n; i++ {
		union = union.Union(live.LiveIn(i))
	}
	return union.Intersect(calleeSavedSet).ToSlice(bankInt, ir.Size64)
}

// assignVarOffsets lays out every declared variable below the frame
// pointer, after the callee-saved save area (baseOffset), in declaration
// order; destruction runs in the reverse of this order, handled separately
// by layoutEmitter.destroyBlockVars.
func assignVarOffsets(l *ir.Listing, baseOffset int32) (map[ir.VarID]int32, int32) {
	offsets := make(map[ir.VarID]int32, len(l.Vars()))
	off := baseOffset
	for _, v := range l.Vars() {
		size := v.Size
		if v.Indirect {
			size = 8 // only the pointer is stored
		}
		off += int32(ir.Align(int64(off), 8)) - off
		offsets[v.ID] = -off - int32(size)
		off += int32(size)
	}
	return offsets, off
}
