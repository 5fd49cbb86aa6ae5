// Package trap owns the two halves of the async/sync-signal machinery
// described by the interface layer: the SIGSEGV-based Fault
// Interceptor (this file's cgo half) and the SIGUSR1-based Interrupt
// Receiver (interrupt.go, pure Go).
//
// Getting at a signal handler's ucontext_t — the ABI's only channel
// for reading and mutating the interrupted thread's register file —
// has no pure-Go facility on this platform, the same gap
// platform/kvm_exits.go and platform/kvm_x86.go in the teacher paper
// over with cgo for KVM's analogous vCPU register file. We follow the
// identical shape: a small C shim owns the raw struct layout and
// exposes narrow accessor functions, a C trampoline installed via
// sigaction calls a Go-exported callback, and all the decoding and
// policy logic lives on the Go side.
package trap

/*
#cgo CFLAGS: -D_GNU_SOURCE
#include <signal.h>
#include <ucontext.h>
#include <stdint.h>
#include <string.h>

extern int goHandleFault(uint64_t fault_addr, void *uctx);

static uint64_t uctx_get_reg(void *ctxp, int idx) {
    ucontext_t *uctx = (ucontext_t *)ctxp;
    switch (idx) {
    case 0:  return (uint64_t)uctx->uc_mcontext.gregs[REG_RAX];
    case 1:  return (uint64_t)uctx->uc_mcontext.gregs[REG_RCX];
    case 2:  return (uint64_t)uctx->uc_mcontext.gregs[REG_RDX];
    case 3:  return (uint64_t)uctx->uc_mcontext.gregs[REG_RBX];
    case 4:  return (uint64_t)uctx->uc_mcontext.gregs[REG_RSP];
    case 5:  return (uint64_t)uctx->uc_mcontext.gregs[REG_RBP];
    case 6:  return (uint64_t)uctx->uc_mcontext.gregs[REG_RSI];
    case 7:  return (uint64_t)uctx->uc_mcontext.gregs[REG_RDI];
    case 8:  return (uint64_t)uctx->uc_mcontext.gregs[REG_R8];
    case 9:  return (uint64_t)uctx->uc_mcontext.gregs[REG_R9];
    case 10: return (uint64_t)uctx->uc_mcontext.gregs[REG_R10];
    case 11: return (uint64_t)uctx->uc_mcontext.gregs[REG_R11];
    case 12: return (uint64_t)uctx->uc_mcontext.gregs[REG_R12];
    case 13: return (uint64_t)uctx->uc_mcontext.gregs[REG_R13];
    case 14: return (uint64_t)uctx->uc_mcontext.gregs[REG_R14];
    case 15: return (uint64_t)uctx->uc_mcontext.gregs[REG_R15];
    }
    return 0;
}

static void uctx_set_reg(void *ctxp, int idx, uint64_t val, uint64_t mask) {
    ucontext_t *uctx = (ucontext_t *)ctxp;
    greg_t *slot;
    switch (idx) {
    case 0:  slot = &uctx->uc_mcontext.gregs[REG_RAX]; break;
    case 1:  slot = &uctx->uc_mcontext.gregs[REG_RCX]; break;
    case 2:  slot = &uctx->uc_mcontext.gregs[REG_RDX]; break;
    case 3:  slot = &uctx->uc_mcontext.gregs[REG_RBX]; break;
    case 4:  slot = &uctx->uc_mcontext.gregs[REG_RSP]; break;
    case 5:  slot = &uctx->uc_mcontext.gregs[REG_RBP]; break;
    case 6:  slot = &uctx->uc_mcontext.gregs[REG_RSI]; break;
    case 7:  slot = &uctx->uc_mcontext.gregs[REG_RDI]; break;
    case 8:  slot = &uctx->uc_mcontext.gregs[REG_R8];  break;
    case 9:  slot = &uctx->uc_mcontext.gregs[REG_R9];  break;
    case 10: slot = &uctx->uc_mcontext.gregs[REG_R10]; break;
    case 11: slot = &uctx->uc_mcontext.gregs[REG_R11]; break;
    case 12: slot = &uctx->uc_mcontext.gregs[REG_R12]; break;
    case 13: slot = &uctx->uc_mcontext.gregs[REG_R13]; break;
    case 14: slot = &uctx->uc_mcontext.gregs[REG_R14]; break;
    case 15: slot = &uctx->uc_mcontext.gregs[REG_R15]; break;
    default: return;
    }
    *slot = (greg_t)(((uint64_t)*slot & ~mask) | (val & mask));
}

static uint64_t uctx_get_rip(void *ctxp) {
    return (uint64_t)((ucontext_t *)ctxp)->uc_mcontext.gregs[REG_RIP];
}

static void uctx_advance_rip(void *ctxp, int delta) {
    ((ucontext_t *)ctxp)->uc_mcontext.gregs[REG_RIP] += delta;
}

// segv_trampoline is installed directly with sigaction: it never goes
// through the Go scheduler, which is why the heavy lifting below has
// to happen through these narrow, allocation-free accessors rather
// than by handing a Go-managed struct pointer into C.
static void segv_trampoline(int sig, siginfo_t *si, void *ctxp) {
    (void)sig;
    uint64_t fault_addr = (uint64_t)(uintptr_t)si->si_addr;
    int handled = goHandleFault(fault_addr, ctxp);
    if (!handled) {
        struct sigaction dfl;
        memset(&dfl, 0, sizeof(dfl));
        dfl.sa_handler = SIG_DFL;
        sigaction(SIGSEGV, &dfl, NULL);
        raise(SIGSEGV);
    }
}

static int install_segv_handler(void) {
    struct sigaction sa;
    memset(&sa, 0, sizeof(sa));
    sa.sa_sigaction = segv_trampoline;
    sigemptyset(&sa.sa_mask);
    sa.sa_flags = SA_SIGINFO;
    return sigaction(SIGSEGV, &sa, NULL);
}

static int uninstall_segv_handler(void) {
    struct sigaction sa;
    memset(&sa, 0, sizeof(sa));
    sa.sa_handler = SIG_DFL;
    return sigaction(SIGSEGV, &sa, NULL);
}
*/
import "C"

import (
	"unsafe"

	"github.com/pkg/errors"

	"github.com/trapiface/mmiotrap/internal/decode"
)

// ErrHandlerInstall is returned when sigaction(SIGSEGV, ...) fails.
var ErrHandlerInstall = errors.New("trap: failed to install SIGSEGV handler")

func installFaultHandler() error {
	if rc := C.install_segv_handler(); rc != 0 {
		return ErrHandlerInstall
	}
	return nil
}

func uninstallFaultHandler() error {
	if rc := C.uninstall_segv_handler(); rc != 0 {
		return ErrHandlerInstall
	}
	return nil
}

func getReg(ctxp unsafe.Pointer, r decode.Reg) uint64 {
	return uint64(C.uctx_get_reg(ctxp, C.int(r)))
}

func setReg(ctxp unsafe.Pointer, r decode.Reg, val uint64, width int) {
	C.uctx_set_reg(ctxp, C.int(r), C.uint64_t(val), C.uint64_t(widthMask(width)))
}

func getRIP(ctxp unsafe.Pointer) uint64 {
	return uint64(C.uctx_get_rip(ctxp))
}

func advanceRIP(ctxp unsafe.Pointer, n int) {
	C.uctx_advance_rip(ctxp, C.int(n))
}

func widthMask(width int) uint64 {
	switch width {
	case 1:
		return 0xFF
	case 2:
		return 0xFFFF
	default:
		return 0xFFFFFFFF
	}
}

// readCode reads up to n bytes of executable memory at rip. The
// faulting instruction's own bytes are always mapped and readable
// (they just executed), so this never itself faults.
func readCode(rip uint64, n int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(rip))), n)
}

//export goHandleFault
func goHandleFault(faultAddr C.uint64_t, ctxp unsafe.Pointer) C.int {
	if dispatchFault(uintptr(faultAddr), ctxp) {
		return 1
	}
	return 0
}
