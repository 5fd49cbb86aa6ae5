package decode

import (
	"github.com/pkg/errors"
	"golang.org/x/arch/x86/x86asm"
)

// Reg names a general-purpose x86-64 register family, independent of
// the operand width a particular instruction addressed it with
// (RAX/EAX/AX/AL all map to RAX). The ordering matches the
// fault-handling C shim's REG_RAX..REG_R15 index order (see
// internal/trap/fault_linux_amd64.go), which is what every Reg value
// in this package is ultimately used for: picking a slot out of a
// ucontext_t's register array.
type Reg int

const (
	RAX Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

// errUnsupportedRegister covers the legacy high-byte registers
// (AH/CH/DH/BH) and any x86asm.Reg outside the 16 general-purpose
// registers (segment, control, vector, ...). None of those are
// addressable through this package's Reg family, and no MOV a
// compiler emits against a memory-mapped register uses them.
var errUnsupportedRegister = errors.New("decode: unsupported register operand")

// regFromX86asm maps any width variant of a general-purpose register
// that golang.org/x/arch/x86/x86asm's decoder can report
// (AL/AX/EAX/RAX, ..., R15B/R15W/R15L/R15) down to its register
// family.
func regFromX86asm(r x86asm.Reg) (Reg, error) {
	switch r {
	case x86asm.AL, x86asm.AX, x86asm.EAX, x86asm.RAX:
		return RAX, nil
	case x86asm.CL, x86asm.CX, x86asm.ECX, x86asm.RCX:
		return RCX, nil
	case x86asm.DL, x86asm.DX, x86asm.EDX, x86asm.RDX:
		return RDX, nil
	case x86asm.BL, x86asm.BX, x86asm.EBX, x86asm.RBX:
		return RBX, nil
	case x86asm.SPB, x86asm.SP, x86asm.ESP, x86asm.RSP:
		return RSP, nil
	case x86asm.BPB, x86asm.BP, x86asm.EBP, x86asm.RBP:
		return RBP, nil
	case x86asm.SIB, x86asm.SI, x86asm.ESI, x86asm.RSI:
		return RSI, nil
	case x86asm.DIB, x86asm.DI, x86asm.EDI, x86asm.RDI:
		return RDI, nil
	case x86asm.R8B, x86asm.R8W, x86asm.R8L, x86asm.R8:
		return R8, nil
	case x86asm.R9B, x86asm.R9W, x86asm.R9L, x86asm.R9:
		return R9, nil
	case x86asm.R10B, x86asm.R10W, x86asm.R10L, x86asm.R10:
		return R10, nil
	case x86asm.R11B, x86asm.R11W, x86asm.R11L, x86asm.R11:
		return R11, nil
	case x86asm.R12B, x86asm.R12W, x86asm.R12L, x86asm.R12:
		return R12, nil
	case x86asm.R13B, x86asm.R13W, x86asm.R13L, x86asm.R13:
		return R13, nil
	case x86asm.R14B, x86asm.R14W, x86asm.R14L, x86asm.R14:
		return R14, nil
	case x86asm.R15B, x86asm.R15W, x86asm.R15L, x86asm.R15:
		return R15, nil
	default:
		return 0, errUnsupportedRegister
	}
}
