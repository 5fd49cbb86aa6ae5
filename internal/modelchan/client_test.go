package modelchan

import (
	"net"
	"path/filepath"
	"testing"
	"time"
)

func TestRoundTripAgainstEchoServer(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "model.sock")

	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, Size)
		if _, err := conn.Read(buf); err != nil {
			return
		}
		var req Record
		req.Unmarshal(buf)
		resp := Record{DeviceID: req.DeviceID, Command: req.Command, Address: req.Address, Data: 0x42, Length: req.Length}
		conn.Write(resp.Marshal())
	}()

	c := &Client{SocketPath: sockPath, DialTimeout: time.Second}
	resp, err := c.RoundTrip(Record{DeviceID: 1, Command: CmdRead, Address: 0x40000000, Length: 4})
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	if resp.Data != 0x42 {
		t.Fatalf("Data: got 0x%x, want 0x42", resp.Data)
	}
}

func TestRoundTripPermissiveWhenSocketMissing(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "no-such.sock")

	c := &Client{SocketPath: sockPath, Permissive: true, DialTimeout: 100 * time.Millisecond}
	resp, err := c.RoundTrip(Record{DeviceID: 7, Command: CmdRead, Address: 0x40001000, Length: 4})
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	if resp.Data != 0 || resp.Result != 0 {
		t.Fatalf("RoundTrip: got %+v, want zero-value success response", resp)
	}
}

func TestRoundTripFatalWhenNotPermissive(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "no-such.sock")

	c := &Client{SocketPath: sockPath, Permissive: false, DialTimeout: 100 * time.Millisecond}
	if _, err := c.RoundTrip(Record{DeviceID: 7, Command: CmdRead, Address: 0x40001000, Length: 4}); err == nil {
		t.Fatal("RoundTrip: expected an error when the model is absent and Permissive is false")
	}
}

func TestRoundTripFatalOnNonzeroResult(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "model.sock")

	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, Size)
		conn.Read(buf)
		resp := Record{Result: -1}
		conn.Write(resp.Marshal())
	}()

	c := &Client{SocketPath: sockPath, DialTimeout: time.Second}
	if _, err := c.RoundTrip(Record{Command: CmdRead}); err == nil {
		t.Fatal("RoundTrip: expected an error for a nonzero result")
	}
}

