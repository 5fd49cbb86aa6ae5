// Package decode implements the minimal x86-64 instruction decoder
// described by the interface layer: enough of the encoding to pull
// direction, width, data source/destination and total instruction
// length out of the handful of MOV forms a memory-mapped-I/O driver
// actually emits.
//
// Decoding itself is delegated to golang.org/x/arch/x86/x86asm, the
// maintained Go x86/x86-64 disassembler (grounded on
// other_examples/set-io-boots__machine.go, which already reaches for
// this package's Reg type for its own register-file access). This
// package's job is narrower than a general disassembler: given the
// x86asm.Inst it decodes, classify it into the load/store, width,
// source/destination shape the Fault Interceptor needs, and reject
// anything outside the register-register-memory MOV forms the
// original reference's opcode table covered (0x88, 0x89, 0x8A, 0x8B,
// 0xC6, 0xC7).
//
// The one deliberate behavioral change from the reference C
// implementation's parse_instruction: register-form MOVs read/write
// the actual operand register x86asm decoded instead of
// unconditionally using the accumulator. The reference's
// accumulator-only shortcut silently corrupts any driver that stores
// from (or loads into) a register other than RAX/EAX/AX/AL, which is
// exactly the bug this package is required to fix.
package decode

import (
	"github.com/pkg/errors"
	"golang.org/x/arch/x86/x86asm"
)

// ErrUnknownOpcode is returned (in strict mode) when the decoded
// instruction is not one of the supported MOV forms.
var ErrUnknownOpcode = errors.New("decode: unrecognized opcode")

// Direction is the memory-access direction of a decoded instruction.
type Direction int

const (
	// Load is a read from the faulting address into a register.
	Load Direction = iota
	// Store is a write from a register or immediate to the faulting
	// address.
	Store
)

// Source distinguishes where a store's value comes from.
type Source int

const (
	// SourceRegister indicates the store's value lives in a CPU
	// register.
	SourceRegister Source = iota
	// SourceImmediate indicates the store's value is embedded in the
	// instruction bytes, immediately following the addressing bytes.
	SourceImmediate
)

// Info is everything the Fault Interceptor needs to complete a single
// faulting memory access.
type Info struct {
	Direction Direction
	Width     int // 1, 2, or 4 bytes
	Source    Source
	// Register names the general-purpose register that is either the
	// store's source or the load's destination, valid for every load
	// and every SourceRegister store (a load always targets a register; a store from
	// SourceImmediate leaves this at its zero value, Reg(0), which
	// callers must not consult).
	Register   Reg
	Immediate  uint32 // valid only when Source == SourceImmediate
	Length     int    // total bytes occupied by the instruction
	WasDefault bool   // true if the instruction form was unrecognized and the 4-byte-load default was applied
}

// Decode inspects the instruction bytes at the faulting RIP (code) and
// returns everything needed to service the access. strict, when true,
// turns an unrecognized instruction form into ErrUnknownOpcode instead
// of silently defaulting to a 4-byte load (the reference's legacy, and
// this package's default, behavior).
func Decode(code []byte, strict bool) (Info, error) {
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		return Info{}, errors.Wrap(err, "decode: instruction decode failed")
	}
	// x86asm reports input that ends before the instruction is complete
	// as a bare prefix-byte Inst with no Op and a nil error.
	if inst.Op == 0 {
		return Info{}, errors.New("decode: truncated instruction")
	}

	info, classifyErr := classify(inst)
	if classifyErr != nil {
		if strict {
			return Info{}, errors.Wrap(ErrUnknownOpcode, classifyErr.Error())
		}
		return Info{
			Direction:  Load,
			Source:     SourceRegister,
			Width:      4,
			Length:     inst.Len,
			WasDefault: true,
		}, nil
	}

	info.Length = inst.Len
	return info, nil
}

// classify turns a decoded x86asm.Inst into an Info, or reports why it
// falls outside the supported MOV-with-one-memory-operand forms.
func classify(inst x86asm.Inst) (Info, error) {
	if inst.Op != x86asm.MOV {
		return Info{}, errors.Errorf("unsupported opcode %s", inst.Op)
	}

	dst, src := inst.Args[0], inst.Args[1]

	switch d := dst.(type) {
	case x86asm.Mem:
		width, err := wireWidth(inst.MemBytes)
		if err != nil {
			return Info{}, err
		}
		info := Info{Direction: Store, Width: width}

		switch s := src.(type) {
		case x86asm.Reg:
			reg, err := regFromX86asm(s)
			if err != nil {
				return Info{}, err
			}
			info.Source = SourceRegister
			info.Register = reg
		case x86asm.Imm:
			info.Source = SourceImmediate
			info.Immediate = uint32(uint64(s) & widthMask(width))
		default:
			return Info{}, errors.New("store source is neither a register nor an immediate")
		}
		return info, nil

	case x86asm.Reg:
		if _, ok := src.(x86asm.Mem); !ok {
			return Info{}, errors.New("load source is not a memory operand")
		}
		width, err := wireWidth(inst.MemBytes)
		if err != nil {
			return Info{}, err
		}
		reg, err := regFromX86asm(d)
		if err != nil {
			return Info{}, err
		}
		return Info{Direction: Load, Source: SourceRegister, Width: width, Register: reg}, nil

	default:
		return Info{}, errors.New("unsupported destination operand")
	}
}

// wireWidth validates that a decoded memory operand's size matches
// one of the widths the Model Channel's wire record can carry (its
// data field is a fixed 32 bits): 1, 2, or 4 bytes. An 8-byte (or
// wider, for SSE/AVX forms x86asm can also decode) memory operand is
// outside this interface layer's scope.
func wireWidth(memBytes int) (int, error) {
	switch memBytes {
	case 1, 2, 4:
		return memBytes, nil
	default:
		return 0, errors.Errorf("unsupported memory operand width %d", memBytes)
	}
}

func widthMask(width int) uint64 {
	switch width {
	case 1:
		return 0xFF
	case 2:
		return 0xFFFF
	default:
		return 0xFFFFFFFF
	}
}
