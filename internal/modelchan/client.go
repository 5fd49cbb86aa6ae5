package modelchan

import (
	"net"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

var (
	errShortRecord = errors.New("modelchan: record is not 24 bytes")
	// ErrTransportFailed covers a short send, a short receive, or a
	// nonzero Result in the response: the model is present but
	// misbehaving, which is fatal per the interface layer's error
	// taxonomy.
	ErrTransportFailed = errors.New("modelchan: transport failure talking to device model")
)

// Client issues one-shot, synchronous round trips to the device model
// over a Unix-domain stream socket. A fresh connection is opened for
// every fault, matching the interface layer's "one connection per
// fault is acceptable" allowance — there is no multiplexing or
// pipelining, because the faulting thread is already stalled for the
// duration regardless.
type Client struct {
	// SocketPath is the rendezvous path for the device model, e.g.
	// /tmp/driver_simulator_socket.
	SocketPath string
	// Permissive, when true, turns a missing/refused model endpoint
	// into a synthesized zero-value success response instead of a
	// fatal error. This is the documented liveness concession of
	// §4.3/§4.5: it lets a driver boot before the model process is up.
	// The field's zero value is false; the root package's DefaultConfig
	// turns it on for compatibility with the reference implementation's
	// unconditional behavior, and a stricter caller can leave it off.
	Permissive bool
	// DialTimeout bounds connection establishment only; the
	// send/receive round trip itself is unbounded, per §5's "no
	// cancellation or timeouts are defined" — a hung model hangs the
	// driver by design.
	DialTimeout time.Duration

	// wire is RoundTrip's send/receive buffer. RoundTrip runs
	// synchronously on the SIGSEGV-faulting thread, where no dynamic
	// allocation is allowed, so this fixed array is reused across
	// calls instead of a fresh make([]byte, Size) per fault. Safe
	// under the single-outstanding-fault assumption spec.md §5
	// establishes: a given Client never services two faults at once.
	wire [Size]byte
}

// RoundTrip sends req and returns the model's response. On connection
// refused or the endpoint not existing, and only when c.Permissive is
// set, it returns a zero-data, zero-result success response instead
// of an error.
func (c *Client) RoundTrip(req Record) (Record, error) {
	timeout := c.DialTimeout
	if timeout == 0 {
		timeout = 2 * time.Second
	}

	conn, err := net.DialTimeout("unix", c.SocketPath, timeout)
	if err != nil {
		if c.Permissive && isConnRefusedOrMissing(err) {
			// permissive-startup: a model that is not listening yet is
			// answered with a zero-value success so the driver can boot
			// before it. The model never sees this request.
			return Record{DeviceID: req.DeviceID, Command: req.Command, Address: req.Address, Length: req.Length}, nil
		}
		return Record{}, errors.Wrap(ErrTransportFailed, err.Error())
	}
	defer conn.Close()

	req.encode(c.wire[:])
	n, err := conn.Write(c.wire[:])
	if err != nil || n != Size {
		return Record{}, errors.Wrap(ErrTransportFailed, "short send")
	}

	read := 0
	for read < Size {
		m, err := conn.Read(c.wire[read:])
		if err != nil {
			return Record{}, errors.Wrap(ErrTransportFailed, "short receive")
		}
		read += m
	}

	var out Record
	if err := out.Unmarshal(c.wire[:]); err != nil {
		return Record{}, errors.Wrap(ErrTransportFailed, err.Error())
	}
	if out.Result != 0 {
		return Record{}, errors.Wrapf(ErrTransportFailed, "model returned result=%d", out.Result)
	}
	return out, nil
}

// isConnRefusedOrMissing distinguishes the two causes §4.5 names as
// recoverable at startup (the model hasn't bound its socket yet, or
// the rendezvous path doesn't exist yet) from every other dial
// failure, which stays fatal even in permissive mode.
func isConnRefusedOrMissing(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ENOENT)
}
