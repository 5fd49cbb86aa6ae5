package decode

import (
	"testing"

	"github.com/pkg/errors"
)

func TestDecodeStore32FromNonAccumulatorRegister(t *testing.T) {
	// mov [rax], ebx -> 89 18
	info, err := Decode([]byte{0x89, 0x18}, false)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if info.Direction != Store {
		t.Fatalf("Direction: got %v, want Store", info.Direction)
	}
	if info.Register != RBX {
		t.Fatalf("Register: got %v, want RBX (the accumulator-only reference bug must not resurface)", info.Register)
	}
	if info.Width != 4 {
		t.Fatalf("Width: got %d, want 4", info.Width)
	}
	if info.Length != 2 {
		t.Fatalf("Length: got %d, want 2", info.Length)
	}
}

func TestDecodeLoad32IntoExtendedRegister(t *testing.T) {
	// mov r9d, [rax] -> REX.R(44) 8B 08
	info, err := Decode([]byte{0x44, 0x8B, 0x08}, false)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if info.Direction != Load {
		t.Fatalf("Direction: got %v, want Load", info.Direction)
	}
	if info.Register != R9 {
		t.Fatalf("Register: got %v, want R9", info.Register)
	}
	if info.Length != 3 {
		t.Fatalf("Length: got %d, want 3", info.Length)
	}
}

func TestDecodeStore8(t *testing.T) {
	// mov [rax], cl -> 88 08
	info, err := Decode([]byte{0x88, 0x08}, false)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if info.Width != 1 {
		t.Fatalf("Width: got %d, want 1", info.Width)
	}
	if info.Register != RCX {
		t.Fatalf("Register: got %v, want RCX", info.Register)
	}
}

func TestDecodeStoreImmediate32(t *testing.T) {
	// mov dword [rax], 0x11223344 -> C7 00 44 33 22 11
	info, err := Decode([]byte{0xC7, 0x00, 0x44, 0x33, 0x22, 0x11}, false)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if info.Source != SourceImmediate {
		t.Fatalf("Source: got %v, want SourceImmediate", info.Source)
	}
	if info.Immediate != 0x11223344 {
		t.Fatalf("Immediate: got 0x%x, want 0x11223344", info.Immediate)
	}
	if info.Length != 6 {
		t.Fatalf("Length: got %d, want 6", info.Length)
	}
}

func TestDecodeStoreImmediate16WithOperandSizePrefix(t *testing.T) {
	// mov word [rax], 0x1122 -> 66 C7 00 22 11
	info, err := Decode([]byte{0x66, 0xC7, 0x00, 0x22, 0x11}, false)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if info.Width != 2 {
		t.Fatalf("Width: got %d, want 2", info.Width)
	}
	if info.Immediate != 0x1122 {
		t.Fatalf("Immediate: got 0x%x, want 0x1122", info.Immediate)
	}
}

func TestDecodeUnknownOpcodeDefaultsToLoad(t *testing.T) {
	info, err := Decode([]byte{0x90, 0x00}, false)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !info.WasDefault {
		t.Fatal("WasDefault: expected true for an unrecognized opcode")
	}
	if info.Direction != Load {
		t.Fatalf("Direction: got %v, want Load", info.Direction)
	}
}

func TestDecodeUnknownOpcodeStrictIsFatal(t *testing.T) {
	_, err := Decode([]byte{0x90, 0x00}, true)
	if !errors.Is(err, ErrUnknownOpcode) {
		t.Fatalf("Decode: got %v, want ErrUnknownOpcode", err)
	}
}

func TestDecodeTruncatedInstruction(t *testing.T) {
	_, err := Decode([]byte{0x89}, false)
	if err == nil {
		t.Fatal("Decode: expected an error for a truncated instruction")
	}
}
