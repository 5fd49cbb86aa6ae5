// Package mmregion implements the address-space protector: reserving
// a fixed-address, inaccessible virtual memory window so that a fault
// on it is distinguishable (by address) from every other possible bug
// in the driver process.
//
// golang.org/x/sys/unix.Mmap always asks the kernel to choose the
// mapping address, which is no good here: the entire mechanism exists
// because the driver dereferences a literal address like 0x40000000,
// so the reservation has to land exactly there or not at all. We drop
// to the raw mmap(2)/munmap(2) syscalls instead, the same way
// platform/kvm_vcpu.go in the teacher reaches past its ioctl wrapper
// and calls syscall.Syscall directly whenever the higher-level helper
// doesn't expose the knob it needs.
package mmregion

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ErrReservationFailed is returned when the platform could not honor
// the fixed-address mapping request, most commonly because the range
// is already mapped by something else in the process.
var ErrReservationFailed = errors.New("mmregion: fixed-address reservation failed")

// Region is a reserved, inaccessible address window. It is the handle
// registry.Device.Region stores so that Unregister/Clear can release
// the mapping again.
type Region struct {
	base uintptr
	size uintptr
}

// Reserve maps [base, base+size) as PROT_NONE, private, anonymous
// memory at the exact address a driver will dereference. It passes
// MAP_FIXED_NOREPLACE where the original C interface layer's
// register_device passes MAP_FIXED, so a range that something is
// already mapped at makes the kernel fail the call instead of
// replacing that mapping. A kernel that does not know the flag treats
// base as a hint; a mapping placed anywhere else is unmapped again and
// rejected rather than silently relocated.
func Reserve(base, size uintptr) (*Region, error) {
	addr, _, errno := unix.Syscall6(
		unix.SYS_MMAP,
		base,
		size,
		unix.PROT_NONE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_FIXED_NOREPLACE,
		^uintptr(0), // fd = -1
		0,
	)
	if errno != 0 {
		return nil, errors.Wrap(errno, ErrReservationFailed.Error())
	}
	if addr != base {
		unix.Syscall(unix.SYS_MUNMAP, addr, size, 0)
		return nil, ErrReservationFailed
	}
	return &Region{base: base, size: size}, nil
}

// Release un-maps the reserved window.
func (r *Region) Release() error {
	if r == nil {
		return nil
	}
	_, _, errno := unix.Syscall(unix.SYS_MUNMAP, r.base, r.size, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// Base returns the reserved window's base address.
func (r *Region) Base() uintptr { return r.base }

// Size returns the reserved window's size in bytes.
func (r *Region) Size() uintptr { return r.size }
