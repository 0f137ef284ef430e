// Package amd64 implements the shared X86-64 backend (SysV AMD64 and
// Win64 differ only in Params and in the prolog's shadow-space handling;
// everything else — RemoveInvalid, Layout, AsmOut, encoding — is common
// and lives here once).
//
// Grounded on the teacher's backend/isa/amd64 package: same file layout
// (regs/abi/instr_encoding/lower_mem/machine_pro_epi_logue/stack), same
// register-bank split (int bank vs xmm bank), generalized from wazero's
// fixed WebAssembly value types to ngen's ir.TypeDesc classification.
package amd64

import "github.com/asmforge/ngen/ir"

const bankInt ir.RegBank = 0
const bankXMM ir.RegBank = 1

// Integer register slots, in the teacher's regs.go ordering (rax..r15).
const (
	slotRAX uint8 = iota
	slotRCX
	slotRDX
	slotRBX
	slotRSP
	slotRBP
	slotRSI
	slotRDI
	slotR8
	slotR9
	slotR10
	slotR11
	slotR12
	slotR13
	slotR14
	slotR15
)

func ireg(slot uint8, size ir.SizeCode) ir.Reg { return ir.NewReg(bankInt, slot, size) }
func xreg(slot uint8, size ir.SizeCode) ir.Reg { return ir.NewReg(bankXMM, slot, size) }

func RAX(sz ir.SizeCode) ir.Reg { return ireg(slotRAX, sz) }
func RCX(sz ir.SizeCode) ir.Reg { return ireg(slotRCX, sz) }
func RDX(sz ir.SizeCode) ir.Reg { return ireg(slotRDX, sz) }
func RBX(sz ir.SizeCode) ir.Reg { return ireg(slotRBX, sz) }
func RSP(sz ir.SizeCode) ir.Reg { return ireg(slotRSP, sz) }
func RBP(sz ir.SizeCode) ir.Reg { return ireg(slotRBP, sz) }
func RSI(sz ir.SizeCode) ir.Reg { return ireg(slotRSI, sz) }
func RDI(sz ir.SizeCode) ir.Reg { return ireg(slotRDI, sz) }
func R8(sz ir.SizeCode) ir.Reg  { return ireg(slotR8, sz) }
func R9(sz ir.SizeCode) ir.Reg  { return ireg(slotR9, sz) }
func R10(sz ir.SizeCode) ir.Reg { return ireg(slotR10, sz) }
func R11(sz ir.SizeCode) ir.Reg { return ireg(slotR11, sz) }
func R12(sz ir.SizeCode) ir.Reg { return ireg(slotR12, sz) }
func R13(sz ir.SizeCode) ir.Reg { return ireg(slotR13, sz) }
func R14(sz ir.SizeCode) ir.Reg { return ireg(slotR14, sz) }
func R15(sz ir.SizeCode) ir.Reg { return ireg(slotR15, sz) }

func XMM(slot uint8) ir.Reg { return xreg(slot, ir.Size128) }

// calleeSavedCommon is the X86-64 System V / Win64-shared callee-saved
// integer set, less rbp, which the prolog saves on its own (rbx, r12-r15);
// Arena.CalleeSavedRegs adds rsi/rdi for Win64. xmm6-15 are not included.
var calleeSavedCommon = []ir.Reg{RBX(ir.Size64), R12(ir.Size64), R13(ir.Size64), R14(ir.Size64), R15(ir.Size64)}

// scratchPair is the pair RemoveInvalid's call lowering (spec.md §4.6 step
// 2) is always free to clobber: r10/r11 are caller-saved on both SysV and
// Win64 and never carry arguments.
var scratchPair = [2]ir.Reg{R10(ir.Size64), R11(ir.Size64)}

// regNames mirrors the teacher's regs.go name table, exposed through
// RegName.
var regNames = map[uint8]string{
	slotRAX: "rax", slotRCX: "rcx", slotRDX: "rdx", slotRBX: "rbx",
	slotRSP: "rsp", slotRBP: "rbp", slotRSI: "rsi", slotRDI: "rdi",
	slotR8: "r8", slotR9: "r9", slotR10: "r10", slotR11: "r11",
	slotR12: "r12", slotR13: "r13", slotR14: "r14", slotR15: "r15",
}

func RegName(r ir.Reg) string {
	if r.Bank() == bankInt {
		if name, ok := regNames[r.Slot()]; ok {
			return name
		}
	}
	if r.Bank() == bankXMM {
		return "xmm"
	}
	return r.String()
}
