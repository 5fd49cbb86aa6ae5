// Package registry implements the device registry described by the
// interface layer: a flat table of registered memory-mapped-I/O
// windows, searchable by address, with the non-overlap invariant the
// original reference implementation left unchecked.
package registry

import (
	"sync/atomic"

	"github.com/pkg/errors"
)

// MaxDevices bounds the registry, matching the fixed-size device table
// of the original C interface layer (device_info_t devices[16]).
const MaxDevices = 16

// Errors returned by Register/Unregister. These are configuration
// errors in the sense of the interface layer's error taxonomy: the
// caller decides what to do, nothing is fatal.
var (
	ErrRegistryFull  = errors.New("registry: full")
	ErrDeviceExists  = errors.New("registry: device id already registered")
	ErrOverlap       = errors.New("registry: address window overlaps an existing device")
	ErrNotFound      = errors.New("registry: device not found")
	ErrBadDeviceID   = errors.New("registry: device id out of range")
	ErrBadWindow     = errors.New("registry: base must be page-aligned and size must be nonzero")
)

// Region is the subset of the address-space protector's reservation
// handle the registry needs in order to release it again. It is kept
// as an interface so this package does not need to import mmregion
// (and, in turn, does not need cgo or unix build tags).
type Region interface {
	Release() error
}

// Device is a single registered memory-mapped-I/O window.
type Device struct {
	ID     uint32
	Base   uintptr
	Size   uintptr
	Region Region
}

// End returns the address one past the end of the device's window.
func (d Device) End() uintptr {
	return d.Base + d.Size
}

// Contains reports whether addr falls within the device's window.
func (d Device) Contains(addr uintptr) bool {
	return addr >= d.Base && addr < d.End()
}

func (d Device) overlaps(base, size uintptr) bool {
	end := base + size
	return d.Base < end && base < d.End()
}

// Registry is the process-wide device table. Registration methods are
// only ever called from ordinary goroutine context; Find is also
// called from the fault-handler's Go callback, which runs on a thread
// the Go runtime does not otherwise schedule work onto, so Find must
// never block on the same mutex the writers take. We publish a
// read-only snapshot via atomic.Pointer on every mutation instead,
// which is the generation-counted snapshot discipline called for when
// a signal handler must read state a writer is allowed to mutate
// concurrently.
type Registry struct {
	snapshot atomic.Pointer[[]Device]
}

// New returns an empty registry.
func New() *Registry {
	r := &Registry{}
	empty := make([]Device, 0, MaxDevices)
	r.snapshot.Store(&empty)
	return r
}

func (r *Registry) devices() []Device {
	p := r.snapshot.Load()
	if p == nil {
		return nil
	}
	return *p
}

func (r *Registry) publish(devs []Device) {
	r.snapshot.Store(&devs)
}

// Register adds a device with the given id, base address and size. It
// rejects a full registry, a duplicate id, an unaligned or zero-sized
// window, and a window overlapping any existing device. The caller is
// responsible for having already reserved [base, base+size) with the
// address-space protector; region is stored so Unregister can release
// it.
func (r *Registry) Register(id uint32, base, size uintptr, pageSize uintptr, region Region) error {
	if id >= MaxDevices {
		return ErrBadDeviceID
	}
	if size == 0 || base%pageSize != 0 {
		return ErrBadWindow
	}

	devs := r.devices()
	if len(devs) >= MaxDevices {
		return ErrRegistryFull
	}

	next := make([]Device, 0, len(devs)+1)
	for _, d := range devs {
		if d.ID == id {
			return ErrDeviceExists
		}
		if d.overlaps(base, size) {
			return ErrOverlap
		}
		next = append(next, d)
	}

	next = append(next, Device{ID: id, Base: base, Size: size, Region: region})
	r.publish(next)
	return nil
}

// Unregister removes the device with the given id and releases its
// reserved region. Quiescing the driver thread so that no fault is in
// flight for this device is the caller's responsibility; this package
// makes no attempt to detect or wait out a concurrent fault.
func (r *Registry) Unregister(id uint32) error {
	devs := r.devices()
	next := make([]Device, 0, len(devs))
	var found *Device
	for _, d := range devs {
		if d.ID == id {
			dd := d
			found = &dd
			continue
		}
		next = append(next, d)
	}
	if found == nil {
		return ErrNotFound
	}

	r.publish(next)
	if found.Region != nil {
		return found.Region.Release()
	}
	return nil
}

// Find returns the device whose window contains addr, if any. Safe to
// call from the fault handler's Go callback: it only ever reads the
// atomically-published snapshot, never a lock.
func (r *Registry) Find(addr uintptr) (Device, bool) {
	for _, d := range r.devices() {
		if d.Contains(addr) {
			return d, true
		}
	}
	return Device{}, false
}

// List returns a copy of every registered device, for diagnostics and
// tests.
func (r *Registry) List() []Device {
	devs := r.devices()
	out := make([]Device, len(devs))
	copy(out, devs)
	return out
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	return len(r.devices())
}

// Clear unregisters every device, releasing all reservations. It
// ignores release errors from individual regions so that one broken
// munmap cannot prevent the rest of teardown from proceeding; the
// first error encountered, if any, is returned after all regions have
// been given a chance to release.
func (r *Registry) Clear() error {
	devs := r.devices()
	r.publish(make([]Device, 0, MaxDevices))

	var first error
	for _, d := range devs {
		if d.Region == nil {
			continue
		}
		if err := d.Region.Release(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
