// Package dwarfcfi implements backend.UnwindProducer for POSIX targets: a
// DWARF Call Frame Information FDE per function, describing the CFA's
// evolution across the prolog and any callee-saved pushes.
//
// Modeled on the record-then-patch shape of
// isa/arm64/machine_relocation.go (bytes are written once, the GC-visible
// address is patched in later) and on the POSIX unwinder contract ngen's
// own design calls for; wazero itself never emits DWARF CFI (its host
// platform's runtime unwinds Go frames, not wasm ones), so there is no
// direct prior-art file to adapt here beyond that general record/patch shape.
package dwarfcfi

import (
	"encoding/binary"

	"github.com/asmforge/ngen/backend"
	"github.com/asmforge/ngen/ir"
)

// CFA opcodes, the minimal subset Producer needs (DWARF 4, §6.4.2.1/.2).
const (
	opAdvanceLoc1  = 0x02
	opDefCFA       = 0x0c
	opDefCFAOffset = 0x0e
	opOffset       = 0x80 // high 2 bits are the opcode, low 6 are the register
)

// Producer emits one FDE per function. CodeAlignment/DataAlignment/
// ReturnRegister mirror the CIE fields a real DWARF-table collaborator
// would hold in common across every function; ngen carries them per-call
// since it has no persistent table collaborator of its own.
type Producer struct {
	CodeAlignment  uint64
	DataAlignment  int64
	ReturnRegister uint8

	// DwarfRegNum maps a callee-saved ir.Reg's ISA slot to its DWARF
	// register number; amd64 and arm64 each pass their own table in.
	DwarfRegNum func(slot uint8) uint8
}

func New(returnReg uint8, dwarfRegNum func(slot uint8) uint8) *Producer {
	return &Producer{CodeAlignment: 1, DataAlignment: -8, ReturnRegister: returnReg, DwarfRegNum: dwarfRegNum}
}

// Emit appends one FDE's CFA program: CFA starts at the incoming stack
// pointer, moves to frame-pointer-relative after the prolog's push+mov,
// then records each callee-saved push as an offset(N) entry, in prolog
// emission order.
func (p *Producer) Emit(frame *backend.FrameInfo, out backend.Output) error {
	var prog []byte

	// After "push rbp/x29; mov rbp,rsp" the CFA is rbp+16 (return address
	// and the saved frame pointer both sit below it).
	prog = append(prog, opDefCFAOffset)
	prog = appendULEB128(prog, 16)

	off := int64(16)
	for _, reg := range frame.CalleeSaved {
		off += 8
		regNum := p.DwarfRegNum(reg.Slot())
		prog = append(prog, opOffset|regNum&0x3f)
		prog = appendULEB128(prog, uint64(off/(-p.DataAlignment)))
	}

	header := make([]byte, 0, 16)
	header = binary.LittleEndian.AppendUint32(header, uint32(len(prog)))
	out.WriteBytes(header)
	out.WriteBytes(prog)
	out.Relocate(backend.RelocUnwindInfo, nil, ir.Label(0))
	return nil
}

func appendULEB128(b []byte, v uint64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		b = append(b, c)
		if v == 0 {
			return b
		}
	}
}
