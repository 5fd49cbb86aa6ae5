// Package mmiotrap is the public entry point for the trap-and-emulate
// memory-mapped-I/O interface layer: a driver registers one or more
// fixed-address device windows, and from then on ordinary load/store
// instructions against those addresses are transparently intercepted,
// decoded, and forwarded to an external device model over a
// Unix-domain socket, with asynchronous interrupts delivered back
// through a SIGUSR1 side channel.
//
// Init/Cleanup form the Lifecycle Facade the rest of the library is
// built around: because the SIGSEGV handler has no way to receive a
// caller-supplied context, this package owns a single process-wide
// active Interface, the way novmm's main.go owns a single VM and a
// single set of running vcpus for the process's lifetime.
package mmiotrap

import (
	"os"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/trapiface/mmiotrap/internal/modelchan"
	"github.com/trapiface/mmiotrap/internal/registry"
	"github.com/trapiface/mmiotrap/internal/trap"
)

var (
	activeMu sync.Mutex
	active   *Interface
)

// Interface is a live, initialized interface layer. Obtain one with
// Init and release it with Cleanup.
type Interface struct {
	cfg        Config
	registry   *registry.Registry
	channel    *modelchan.Client
	interrupts *trap.InterruptReceiver
	log        zerolog.Logger
	pidFile    string

	mu        sync.Mutex
	cleanedUp bool
}

// Init installs the SIGSEGV and SIGUSR1 handlers and returns an
// Interface ready for device registration. Only one Interface may be
// active in a process at a time; call Cleanup before calling Init
// again.
func Init(cfg Config) (*Interface, error) {
	activeMu.Lock()
	defer activeMu.Unlock()

	if active != nil {
		return nil, ErrAlreadyInitialized
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		Level(level).
		With().Timestamp().Str("component", "mmiotrap").Logger()

	reg := registry.New()
	channel := &modelchan.Client{
		SocketPath:  cfg.ModelSocketPath,
		Permissive:  cfg.Permissive,
		DialTimeout: cfg.DialTimeout,
	}

	iface := &Interface{
		cfg:        cfg,
		registry:   reg,
		channel:    channel,
		interrupts: trap.NewInterruptReceiver(),
		log:        log,
	}

	if err := trap.Install(&trap.Interceptor{
		Registry:     reg,
		Channel:      channel,
		StrictDecode: cfg.StrictDecode,
		Log:          log,
	}); err != nil {
		return nil, err
	}

	iface.interrupts.Start()

	pidFile := "/tmp/interface_driver_" + strconv.Itoa(os.Getpid())
	if err := os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		log.Warn().Err(err).Str("path", pidFile).Msg("failed to publish driver pid file")
	}
	iface.pidFile = pidFile

	active = iface
	log.Info().Str("socket", cfg.ModelSocketPath).Bool("permissive", cfg.Permissive).Msg("interface layer initialized")
	return iface, nil
}

// Cleanup unregisters every device, releases their address-space
// reservations, stops the interrupt receiver, removes the SIGSEGV
// handler, and clears the process-wide active Interface so Init may
// be called again. It is safe to call more than once.
func (i *Interface) Cleanup() error {
	activeMu.Lock()
	defer activeMu.Unlock()

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.cleanedUp {
		return nil
	}

	var firstErr error
	if err := i.registry.Clear(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := i.interrupts.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := trap.Uninstall(); err != nil && firstErr == nil {
		firstErr = err
	}
	if i.pidFile != "" {
		os.Remove(i.pidFile)
	}

	i.cleanedUp = true
	if active == i {
		active = nil
	}
	i.log.Info().Msg("interface layer cleaned up")
	return firstErr
}
