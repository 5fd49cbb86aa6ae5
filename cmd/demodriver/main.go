// demodriver is a small demonstration program exercising the
// interface layer against a UART-shaped device, the same exercise
// original_source/examples/test_interface.c walks through against the
// C reference. It is not part of the core library and carries none of
// its test rigor.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"
	"unsafe"

	"github.com/trapiface/mmiotrap"
)

const (
	uartBase      = 0x40000000
	uartSize      = 0x1000
	uartTXReg     = uartBase + 0x00
	uartStatusReg = uartBase + 0x04
	uartCtrlReg   = uartBase + 0x08
)

var (
	socketPath = flag.String("socket", "/tmp/driver_simulator_socket", "device model socket path")
	logLevel   = flag.String("log-level", "info", "zerolog level: debug, info, warn, error, disabled")
)

func main() {
	flag.Parse()

	cfg := mmiotrap.DefaultConfig(*socketPath)
	cfg.LogLevel = *logLevel

	iface, err := mmiotrap.Init(cfg)
	if err != nil {
		log.Fatalf("demodriver: Init: %v", err)
	}
	defer iface.Cleanup()

	if err := iface.RegisterDevice(0, uartBase, uartSize); err != nil {
		log.Fatalf("demodriver: RegisterDevice: %v", err)
	}

	interruptReceived := make(chan uint32, 1)
	iface.RegisterInterruptHandler(0, func(deviceID, interruptID uint32) {
		fmt.Printf("interrupt received: device=%d id=%d\n", deviceID, interruptID)
		interruptReceived <- interruptID
	})

	fmt.Println("waiting for the device model to be ready...")
	time.Sleep(time.Second)

	fmt.Println("writing 0x55 to the UART TX register...")
	*(*uint32)(unsafe.Pointer(uintptr(uartTXReg))) = 0x55

	fmt.Println("reading the UART status register...")
	status := *(*uint32)(unsafe.Pointer(uintptr(uartStatusReg)))
	fmt.Printf("status register value: 0x%08x\n", status)

	fmt.Println("writing 0x01 to the UART control register (enable)...")
	*(*uint32)(unsafe.Pointer(uintptr(uartCtrlReg))) = 0x01

	status = *(*uint32)(unsafe.Pointer(uintptr(uartStatusReg)))
	fmt.Printf("status after enable: 0x%08x\n", status)

	select {
	case <-interruptReceived:
		fmt.Println("interrupt test passed")
	case <-time.After(5 * time.Second):
		fmt.Println("interrupt test failed: no interrupt received")
		os.Exit(1)
	}

	fmt.Println("all tests passed")
}
