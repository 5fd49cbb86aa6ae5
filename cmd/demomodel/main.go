// demomodel is a small demonstration device model standing in for the
// external process a real driver built on this library would talk to.
// It ports original_source/python/device_model.py's SimpleUARTModel:
// a UART with a TX data register, a status register, and a control
// register, which fires interrupt id 1 a moment after every TX write
// and sets an "enabled" status bit on a control-register write.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/trapiface/mmiotrap/internal/modelchan"
)

const (
	regTXData     = 0x00
	regStatus     = 0x04
	regCtrl       = 0x08
	statusTXReady = 0x01
	statusEnabled = 0x02
)

var (
	socketPath = flag.String("socket", "/tmp/driver_simulator_socket", "rendezvous socket path")
	deviceID   = flag.Uint("device", 0, "device id this model answers for")
	baseAddr   = flag.Uint64("base", 0x40000000, "device base address")
)

type uartModel struct {
	deviceID uint32
	base     uint32

	mu        sync.Mutex
	registers map[uint32]uint32
}

func newUARTModel(deviceID uint32, base uint32) *uartModel {
	return &uartModel{
		deviceID: deviceID,
		base:     base,
		registers: map[uint32]uint32{
			regTXData: 0x00,
			regStatus: statusTXReady,
			regCtrl:   0x00,
		},
	}
}

func (m *uartModel) handle(req modelchan.Record) modelchan.Record {
	offset := req.Address - m.base

	m.mu.Lock()
	defer m.mu.Unlock()

	switch req.Command {
	case modelchan.CmdRead:
		return modelchan.Record{DeviceID: m.deviceID, Command: req.Command, Address: req.Address, Data: m.registers[offset], Length: req.Length}
	case modelchan.CmdWrite:
		m.registers[offset] = req.Data
		m.onWrite(offset, req.Data)
		return modelchan.Record{DeviceID: m.deviceID, Command: req.Command, Address: req.Address, Length: req.Length}
	default:
		return modelchan.Record{DeviceID: m.deviceID, Command: req.Command, Address: req.Address, Length: req.Length, Result: -1}
	}
}

func (m *uartModel) onWrite(offset, value uint32) {
	switch offset {
	case regTXData:
		fmt.Printf("UART TX: 0x%02X\n", value)
		go func() {
			time.Sleep(100 * time.Millisecond)
			triggerInterrupt(m.deviceID, 1)
		}()
	case regCtrl:
		if value&0x01 != 0 {
			fmt.Println("UART enabled")
			m.registers[regStatus] |= statusEnabled
		}
	}
}

// triggerInterrupt mirrors ModelInterface.trigger_interrupt: it
// locates the driver's published pid, writes the side-channel file,
// and raises SIGUSR1 against that pid.
func triggerInterrupt(deviceID, interruptID uint32) {
	pid, err := findDriverPid()
	if err != nil {
		log.Printf("demomodel: failed to send interrupt: %v", err)
		return
	}

	path := fmt.Sprintf("/tmp/interrupt_info_%d", pid)
	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d,%d", deviceID, interruptID)), 0o600); err != nil {
		log.Printf("demomodel: failed to write interrupt side channel: %v", err)
		return
	}
	if err := syscall.Kill(pid, syscall.SIGUSR1); err != nil {
		log.Printf("demomodel: failed to signal driver: %v", err)
	}
}

func findDriverPid() (int, error) {
	matches, err := filepath.Glob("/tmp/interface_driver_*")
	if err != nil {
		return 0, err
	}
	if len(matches) == 0 {
		return 0, fmt.Errorf("demomodel: no driver pid file found")
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func serve(m *uartModel, socketPath string) error {
	os.Remove(socketPath)
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return err
	}
	defer ln.Close()

	fmt.Printf("device %d simulator started, listening on %s\n", m.deviceID, socketPath)

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go handleConn(m, conn)
	}
}

func handleConn(m *uartModel, conn net.Conn) {
	defer conn.Close()
	buf := make([]byte, modelchan.Size)
	for {
		if _, err := readFull(conn, buf); err != nil {
			return
		}
		var req modelchan.Record
		if err := req.Unmarshal(buf); err != nil {
			return
		}
		resp := m.handle(req)
		if _, err := conn.Write(resp.Marshal()); err != nil {
			return
		}
	}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	read := 0
	for read < len(buf) {
		n, err := conn.Read(buf[read:])
		if err != nil {
			return read, err
		}
		read += n
	}
	return read, nil
}

func main() {
	flag.Parse()

	m := newUARTModel(uint32(*deviceID), uint32(*baseAddr))
	if err := serve(m, *socketPath); err != nil {
		log.Fatalf("demomodel: %v", err)
	}
}
