// Package testmodel implements a minimal, in-process stand-in for the
// external device model, for use by this repository's own tests. It
// speaks exactly the wire protocol internal/modelchan.Client expects
// and nothing more: one connection per request, one 24-byte record in,
// one 24-byte record out.
package testmodel

import (
	"net"
	"os"
	"sync"

	"github.com/trapiface/mmiotrap/internal/modelchan"
)

// Server is a fake device model backed by per-address last-write
// memory, the same echo/store-and-return-last-value semantics a
// simple test driver would expect: a read at an address returns
// whatever was last written there, or zero if nothing was.
type Server struct {
	SocketPath string

	mu      sync.Mutex
	store   map[uint32]uint32
	ln      net.Listener
	done    chan struct{}
	onWrite func(req modelchan.Record)
}

// New creates a Server listening on socketPath. The caller must call
// Close when finished; the socket file is removed on Close.
func New(socketPath string) (*Server, error) {
	os.Remove(socketPath)
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, err
	}
	s := &Server{
		SocketPath: socketPath,
		store:      make(map[uint32]uint32),
		ln:         ln,
		done:       make(chan struct{}),
	}
	go s.serve()
	return s, nil
}

// OnWrite installs a callback invoked synchronously, on the server's
// own goroutine, for every CmdWrite the server services — tests use
// this to assert on the exact request shape a fault produced.
func (s *Server) OnWrite(f func(req modelchan.Record)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onWrite = f
}

func (s *Server) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				return
			}
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	buf := make([]byte, modelchan.Size)
	read := 0
	for read < modelchan.Size {
		n, err := conn.Read(buf[read:])
		if err != nil {
			return
		}
		read += n
	}

	var req modelchan.Record
	if err := req.Unmarshal(buf); err != nil {
		return
	}

	resp := s.apply(req)
	conn.Write(resp.Marshal())
}

func (s *Server) apply(req modelchan.Record) modelchan.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := modelchan.Record{DeviceID: req.DeviceID, Command: req.Command, Address: req.Address, Length: req.Length}
	switch req.Command {
	case modelchan.CmdWrite:
		s.store[req.Address] = req.Data
		if s.onWrite != nil {
			s.onWrite(req)
		}
	case modelchan.CmdRead:
		resp.Data = s.store[req.Address]
	}
	return resp
}

// LastValue returns the last value written at addr, for assertions.
func (s *Server) LastValue(addr uint32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store[addr]
}

// Close stops accepting connections and removes the socket file.
func (s *Server) Close() error {
	close(s.done)
	err := s.ln.Close()
	os.Remove(s.SocketPath)
	return err
}
