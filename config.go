package mmiotrap

import "time"

// Config configures a call to Init. The zero value is not directly
// usable (ModelSocketPath has no sane default); use DefaultConfig and
// override only what you need.
type Config struct {
	// ModelSocketPath is the Unix-domain socket the device model
	// listens on, e.g. /tmp/driver_simulator_socket.
	ModelSocketPath string

	// PageSize is used to validate that a device's requested base
	// address is page-aligned before it is handed to the
	// address-space protector. 4096 covers every Linux/amd64
	// configuration this library targets; it is exposed here rather
	// than hardcoded so a test can shrink it.
	PageSize uintptr

	// Permissive, when true, lets the driver start and service faults
	// even before the device model's socket exists, synthesizing
	// zero-value responses until the model comes up. This mirrors the
	// reference implementation's unconditional behavior and is the
	// default; set to false for a stricter "the model must already be
	// listening" posture.
	Permissive bool

	// StrictDecode, when true, turns an unrecognized instruction
	// opcode at a trapped address into a fatal decode error instead of
	// silently defaulting to a 4-byte load. Defaults to false,
	// matching the reference's permissive decoder.
	StrictDecode bool

	// DialTimeout bounds how long a single fault may wait to connect
	// to the device model. It does not bound the request/response
	// round trip itself, which is unbounded by design: a hung model
	// hangs the driver thread that faulted, and nothing else.
	DialTimeout time.Duration

	// LogLevel controls the verbosity of the structured diagnostic log
	// (see Logger). It accepts any zerolog level name ("debug",
	// "info", "warn", "error", "disabled"); an unrecognized value
	// falls back to "info".
	LogLevel string
}

// DefaultConfig returns the Config Init uses when none is supplied
// directly: permissive startup, default-decoder opcode handling, a
// 4096-byte page size, and info-level logging.
func DefaultConfig(modelSocketPath string) Config {
	return Config{
		ModelSocketPath: modelSocketPath,
		PageSize:        4096,
		Permissive:      true,
		StrictDecode:    false,
		DialTimeout:     2 * time.Second,
		LogLevel:        "info",
	}
}
