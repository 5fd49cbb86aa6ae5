package trap

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"github.com/rs/zerolog"

	"github.com/trapiface/mmiotrap/internal/decode"
	"github.com/trapiface/mmiotrap/internal/modelchan"
	"github.com/trapiface/mmiotrap/internal/registry"
)

// maxInstrBytes bounds how many bytes of the faulting instruction
// Decode is allowed to look at; 15 is the x86-64 architectural
// maximum instruction length, and the decoder itself additionally
// bounds the length it reports (see internal/decode).
const maxInstrBytes = 15

// Interceptor ties the Device Registry, Instruction Decoder, and Model
// Channel together into the Fault Interceptor described by the
// interface layer. There is exactly one live Interceptor per process:
// the signal handler has no way to receive one by argument, so Init
// publishes it into the package-level singleton below (current) and
// every fault reads it from there.
type Interceptor struct {
	Registry     *registry.Registry
	Channel      *modelchan.Client
	StrictDecode bool
	Log          zerolog.Logger
}

// current is the process-wide active Interceptor, set by Init and
// cleared by Cleanup. A signal handler cannot be passed user context,
// so this is the encapsulated form of the global state §9 calls for:
// one opaque, atomically-published pointer rather than scattered
// package vars.
var current atomic.Pointer[Interceptor]

// Install installs the SIGSEGV handler and publishes i as the active
// Interceptor. Only one Interceptor may be active at a time.
func Install(i *Interceptor) error {
	if err := installFaultHandler(); err != nil {
		return err
	}
	current.Store(i)
	return nil
}

// Uninstall removes the SIGSEGV handler and clears the active
// Interceptor. The root package's Cleanup calls it, so after Cleanup
// SIGSEGV is back at its default disposition.
func Uninstall() error {
	current.Store(nil)
	return uninstallFaultHandler()
}

// dispatchFault is called synchronously from the SIGSEGV trampoline
// (via the cgo-exported goHandleFault) on the faulting thread. It must
// not allocate on a path that can be reached before the process has
// fully initialized, and it must never itself touch memory inside any
// registered device window.
//
// It returns false only when there is no active Interceptor at all
// (library not initialized) — every other outcome, including a
// genuinely bad access and a transport failure, terminates the
// process itself per the interface layer's fatal-access law, rather
// than returning false and letting the C trampoline re-raise.
func dispatchFault(addr uintptr, ctxp unsafe.Pointer) bool {
	i := current.Load()
	if i == nil {
		return false
	}

	device, ok := i.Registry.Find(addr)
	if !ok {
		fmt.Fprintf(os.Stderr, "mmiotrap: fatal: access to unregistered address 0x%x\n", addr)
		os.Exit(1)
	}

	rip := getRIP(ctxp)
	info, err := decode.Decode(readCode(rip, maxInstrBytes), i.StrictDecode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mmiotrap: fatal: decode error at rip=0x%x addr=0x%x: %v\n", rip, addr, err)
		os.Exit(1)
	}

	req := modelchan.Record{
		DeviceID: device.ID,
		Address:  uint32(addr),
		Length:   uint32(info.Width),
	}

	if info.Direction == decode.Store {
		req.Command = modelchan.CmdWrite
		if info.Source == decode.SourceImmediate {
			req.Data = zeroExtend(info.Immediate, info.Width)
		} else {
			req.Data = zeroExtend(uint32(getReg(ctxp, info.Register)), info.Width)
		}
	} else {
		req.Command = modelchan.CmdRead
	}

	resp, err := i.Channel.RoundTrip(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mmiotrap: fatal: model channel error for device %d addr=0x%x: %v\n", device.ID, addr, err)
		os.Exit(1)
	}

	if info.Direction == decode.Load {
		setReg(ctxp, info.Register, uint64(resp.Data), info.Width)
	}

	advanceRIP(ctxp, info.Length)

	i.Log.Debug().
		Uint32("device", device.ID).
		Uint64("addr", uint64(addr)).
		Int("width", info.Width).
		Str("direction", directionString(info.Direction)).
		Msg("serviced trapped access")

	return true
}

func directionString(d decode.Direction) string {
	if d == decode.Store {
		return "store"
	}
	return "load"
}

func zeroExtend(v uint32, width int) uint32 {
	switch width {
	case 1:
		return v & 0xFF
	case 2:
		return v & 0xFFFF
	default:
		return v
	}
}
