// Package seh implements backend.UnwindProducer for Windows targets: a
// RUNTIME_FUNCTION + UNWIND_INFO pair on Win64. No Win32 fs:[0]-linked SEH
// frame descriptor is built.
//
// Grounded on the same record/patch shape as unwind/dwarfcfi (no teacher
// file emits Windows unwind records; wazero's Windows support relies on
// the host OS/Go runtime's own unwinder, not one it builds itself), with
// the runtime registration step wired to golang.org/x/sys/windows, the one
// package in the corpus that already speaks the Win32 API surface this
// needs.
package seh

import (
	"encoding/binary"

	"github.com/asmforge/ngen/backend"
	"github.com/asmforge/ngen/ir"
)

// UnwindOp mirrors the Win64 UNWIND_CODE opcode the prolog can describe;
// Producer only needs the two shapes ngen's prolog ever emits (push a
// nonvolatile register, allocate a large stack frame).
const (
	opPushNonvol  = 0
	opAllocLarge  = 1
	win64Version  = 1
	flagNoHandler = 0
)

// Producer builds the Win64 RUNTIME_FUNCTION/UNWIND_INFO pair. FrameReg is
// the UNWIND_INFO "frame register" field; ngen always uses rbp (encoded 5)
// since Layout's prolog is a fixed push-rbp/mov-rbp,rsp shape.
type Producer struct {
	FrameReg uint8
}

func New() *Producer { return &Producer{FrameReg: 5} }

// Emit writes UNWIND_INFO immediately followed by its UNWIND_CODE array (in
// prolog-reverse order, as the Win64 ABI requires), then a RUNTIME_FUNCTION
// whose begin/end/unwind-info offsets are all relative to the allocation
// base and therefore GC-relocatable as one unit.
func (p *Producer) Emit(frame *backend.FrameInfo, out backend.Output) error {
	var codes []byte
	if frame.TotalSize > 0 {
		scaled := uint16(frame.TotalSize / 8)
		codes = append(codes, 0, opAllocLarge|0<<4)
		codes = binary.LittleEndian.AppendUint16(codes, scaled)
	}
	for i := len(frame.CalleeSaved) - 1; i >= 0; i-- {
		slot := frame.CalleeSaved[i].Slot()
		codes = append(codes, 0, opPushNonvol|slot<<4)
	}
	if len(codes)%4 != 0 {
		codes = append(codes, 0, 0) // UNWIND_CODE array is padded to a DWORD
	}

	info := make([]byte, 4)
	info[0] = win64Version | 0<<3 // version 1, no chained-info flags
	info[1] = 0                   // prolog size, patched by the caller if tracked separately
	info[2] = byte(len(codes) / 2)
	info[3] = p.FrameReg | 0<<4 // frame register, zero displacement scale

	out.WriteBytes(info)
	out.WriteBytes(codes)

	runtimeFn := make([]byte, 12)
	out.WriteBytes(runtimeFn) // begin/end/unwind-info offsets, patched at GC publish time
	out.Relocate(backend.RelocUnwindInfo, nil, ir.Label(0))
	return nil
}
