// Package modelchan implements the Model Channel: a synchronous,
// one-connection-per-fault client for the external device model,
// carrying the fixed six-field wire record defined by the interface
// layer (original_source/include/interface_layer.h's message_t, and
// mirrored byte-for-byte by original_source/python/device_model.py's
// struct.unpack('IIIIII', ...)).
package modelchan

import (
	"bytes"
	"encoding/binary"
)

// Command identifies the direction of a Model Channel request.
type Command uint32

const (
	// CmdRead requests the model's current value at Address.
	CmdRead Command = 1
	// CmdWrite asks the model to store Data at Address.
	CmdWrite Command = 2
)

// Record is the fixed-layout wire record exchanged in both directions
// over the Model Channel: six native-endian 32-bit fields, 24 bytes
// total, no framing beyond "one record per direction per connection".
type Record struct {
	DeviceID uint32
	Command  Command
	Address  uint32
	Data     uint32
	Length   uint32
	Result   int32
}

// Size is the wire size of a Record in bytes.
const Size = 24

// nativeOrder is the host's native byte order. The wire format is
// explicitly native-endian (the model runs on the same host), not a
// declared network byte order — cross-host transport is out of scope.
var nativeOrder = binary.NativeEndian

// encode writes r's 24-byte wire form into buf, which must be at least
// Size bytes long. It never allocates, so callers on the SIGSEGV fault
// path (internal/modelchan/client.go's RoundTrip) can reuse a
// pre-sized buffer instead of going through Marshal.
func (r Record) encode(buf []byte) {
	nativeOrder.PutUint32(buf[0:4], r.DeviceID)
	nativeOrder.PutUint32(buf[4:8], uint32(r.Command))
	nativeOrder.PutUint32(buf[8:12], r.Address)
	nativeOrder.PutUint32(buf[12:16], r.Data)
	nativeOrder.PutUint32(buf[16:20], r.Length)
	nativeOrder.PutUint32(buf[20:24], uint32(r.Result))
}

// Marshal encodes r into its 24-byte wire form. It allocates, so it is
// for callers off the fault path (tests, the demo device model); the
// fault path itself uses encode against a reusable buffer.
func (r Record) Marshal() []byte {
	buf := make([]byte, Size)
	r.encode(buf)
	return buf
}

// Unmarshal decodes a 24-byte wire record into r.
func (r *Record) Unmarshal(buf []byte) error {
	if len(buf) != Size {
		return errShortRecord
	}
	r.DeviceID = nativeOrder.Uint32(buf[0:4])
	r.Command = Command(nativeOrder.Uint32(buf[4:8]))
	r.Address = nativeOrder.Uint32(buf[8:12])
	r.Data = nativeOrder.Uint32(buf[12:16])
	r.Length = nativeOrder.Uint32(buf[16:20])
	r.Result = int32(nativeOrder.Uint32(buf[20:24]))
	return nil
}

func (r Record) equalWire(other Record) bool {
	return bytes.Equal(r.Marshal(), other.Marshal())
}
