package modelchan

import "testing"

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	r := Record{DeviceID: 3, Command: CmdWrite, Address: 0x40000010, Data: 0xdeadbeef, Length: 4, Result: 0}

	wire := r.Marshal()
	if len(wire) != Size {
		t.Fatalf("Marshal: got %d bytes, want %d", len(wire), Size)
	}

	var out Record
	if err := out.Unmarshal(wire); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !r.equalWire(out) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, r)
	}
}

func TestUnmarshalRejectsWrongLength(t *testing.T) {
	var r Record
	if err := r.Unmarshal(make([]byte, Size-1)); err == nil {
		t.Fatal("Unmarshal: expected an error for a short buffer")
	}
}
