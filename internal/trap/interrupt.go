package trap

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"gopkg.in/tomb.v2"
)

// ErrUnknownDevice is passed to an interrupt handler lookup failure;
// it is not fatal to the process, unlike a bad memory access, because
// an interrupt arriving for a device the model has since forgotten
// about is the model's problem, not a driver-corruption signal.
var ErrUnknownDevice = errors.New("trap: interrupt for unregistered device")

// InterruptHandler is invoked on receipt of an asynchronous interrupt
// from the device model for a given device and interrupt id. It runs
// on an ordinary goroutine, not on the signal-handling thread, so it
// may allocate, block, and call back into the registry freely.
type InterruptHandler func(deviceID, interruptID uint32)

// InterruptReceiver is the Interrupt Receiver: it owns the SIGUSR1
// subscription and the side-channel file the device model writes
// before raising the signal, matching the rendezvous protocol of
// original_source/src/interface_layer.c's interrupt_signal_handler
// and original_source/python/device_model.py's trigger_interrupt.
//
// Unlike the reference, the file read and handler dispatch do not run
// inside the signal handler itself: os/signal.Notify forwards SIGUSR1
// onto a buffered channel that a supervised goroutine drains, so the
// side-channel file can be read and parsed with ordinary, allocating
// Go code instead of an async-signal-safe shim.
type InterruptReceiver struct {
	sidecarPath string

	mu       sync.RWMutex
	handlers map[uint32]InterruptHandler

	sigch chan os.Signal
	t     tomb.Tomb
}

// NewInterruptReceiver creates a receiver for the calling process's
// own pid. The side-channel path matches the reference's
// /tmp/interrupt_info_<pid> convention so an unmodified Python device
// model from original_source/python/device_model.py can drive it.
func NewInterruptReceiver() *InterruptReceiver {
	return &InterruptReceiver{
		sidecarPath: fmt.Sprintf("/tmp/interrupt_info_%d", os.Getpid()),
		handlers:    make(map[uint32]InterruptHandler),
		sigch:       make(chan os.Signal, 4),
	}
}

// Start subscribes to SIGUSR1 and launches the tomb-supervised
// dispatch goroutine.
func (r *InterruptReceiver) Start() {
	signal.Notify(r.sigch, syscall.SIGUSR1)
	r.t.Go(r.loop)
}

// Stop unsubscribes from SIGUSR1 and waits for the dispatch goroutine
// to exit.
func (r *InterruptReceiver) Stop() error {
	signal.Stop(r.sigch)
	r.t.Kill(nil)
	return r.t.Wait()
}

// RegisterHandler installs the callback invoked for interrupts
// carrying deviceID. Registering a handler for an id that already has
// one replaces it.
func (r *InterruptReceiver) RegisterHandler(deviceID uint32, h InterruptHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[deviceID] = h
}

// UnregisterHandler removes the callback for deviceID, if any.
func (r *InterruptReceiver) UnregisterHandler(deviceID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, deviceID)
}

func (r *InterruptReceiver) loop() error {
	for {
		select {
		case <-r.sigch:
			_ = r.handleOne() // best-effort; a bad interrupt record never takes the driver down
		case <-r.t.Dying():
			return nil
		}
	}
}

func (r *InterruptReceiver) handleOne() error {
	deviceID, interruptID, err := r.readSidecar()
	if err != nil {
		// The model is expected to have written the file before
		// raising the signal; a missing or malformed file here means
		// a lost race or a misbehaving model, neither of which should
		// take the driver process down.
		return err
	}

	r.mu.RLock()
	h, ok := r.handlers[deviceID]
	r.mu.RUnlock()
	if !ok {
		return errors.Wrapf(ErrUnknownDevice, "device %d", deviceID)
	}
	h(deviceID, interruptID)
	return nil
}

// readSidecar reads and removes the side-channel file, mirroring the
// reference's "device_id,interrupt_id" text format and its
// read-then-unlink sequencing.
func (r *InterruptReceiver) readSidecar() (deviceID, interruptID uint32, err error) {
	f, err := os.Open(r.sidecarPath)
	if err != nil {
		return 0, 0, errors.Wrap(err, "trap: opening interrupt side-channel file")
	}
	defer f.Close()
	defer os.Remove(r.sidecarPath)

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && line == "" {
		return 0, 0, errors.Wrap(err, "trap: reading interrupt side-channel file")
	}

	parts := strings.SplitN(strings.TrimSpace(line), ",", 2)
	if len(parts) != 2 {
		return 0, 0, errors.New("trap: malformed interrupt side-channel record")
	}

	did, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, 0, errors.Wrap(err, "trap: parsing device id")
	}
	iid, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, 0, errors.Wrap(err, "trap: parsing interrupt id")
	}
	return uint32(did), uint32(iid), nil
}
