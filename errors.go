package mmiotrap

import "github.com/pkg/errors"

// ErrAlreadyInitialized is returned by Init when an Interface is
// already active in this process. There is exactly one SIGSEGV
// handler and one active Interceptor singleton per process (see
// internal/trap), so a second concurrent Init can never be serviced
// correctly.
var ErrAlreadyInitialized = errors.New("mmiotrap: already initialized")

// ErrNotInitialized is returned by RegisterDevice and UnregisterDevice
// when invoked on an Interface that has already been cleaned up. A nil
// *Interface is not checked for.
var ErrNotInitialized = errors.New("mmiotrap: not initialized")
