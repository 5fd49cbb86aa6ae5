package mmiotrap

import (
	"github.com/trapiface/mmiotrap/internal/mmregion"
	"github.com/trapiface/mmiotrap/internal/registry"
	"github.com/trapiface/mmiotrap/internal/trap"
)

// RegisterDevice reserves [base, base+size) with the address-space
// protector and adds it to the device registry under id. base must be
// page-aligned and the window must not overlap any device already
// registered on this Interface.
func (i *Interface) RegisterDevice(id uint32, base, size uintptr) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.cleanedUp {
		return ErrNotInitialized
	}

	region, err := mmregion.Reserve(base, size)
	if err != nil {
		return err
	}

	if err := i.registry.Register(id, base, size, i.cfg.PageSize, region); err != nil {
		if releaseErr := region.Release(); releaseErr != nil {
			i.log.Warn().Err(releaseErr).Msg("failed to release region after failed registration")
		}
		return err
	}

	i.log.Info().Uint32("device", id).Uint64("base", uint64(base)).Uint64("size", uint64(size)).Msg("device registered")
	return nil
}

// UnregisterDevice removes the device with the given id and releases
// its address-space reservation. The caller must ensure no fault for
// this device is in flight on another thread.
func (i *Interface) UnregisterDevice(id uint32) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.cleanedUp {
		return ErrNotInitialized
	}

	if err := i.registry.Unregister(id); err != nil {
		return err
	}
	i.log.Info().Uint32("device", id).Msg("device unregistered")
	return nil
}

// Devices returns the currently registered devices' ids, base
// addresses, and sizes, in no particular order.
func (i *Interface) Devices() []registry.Device {
	return i.registry.List()
}

// RegisterInterruptHandler installs h as the callback invoked whenever
// the device model delivers an asynchronous interrupt for deviceID via
// the SIGUSR1 side channel. h runs on an ordinary goroutine, never on
// the signal-handling thread.
func (i *Interface) RegisterInterruptHandler(deviceID uint32, h trap.InterruptHandler) {
	i.interrupts.RegisterHandler(deviceID, h)
}

// UnregisterInterruptHandler removes the interrupt callback for
// deviceID, if any.
func (i *Interface) UnregisterInterruptHandler(deviceID uint32) {
	i.interrupts.UnregisterHandler(deviceID)
}
