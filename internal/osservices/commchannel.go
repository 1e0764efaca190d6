package osservices

import (
	"net"
	"os"
	"sync"

	"github.com/caps-tum/autopin-plus-sub000/internal/errs"
)

// commChannel wraps a UNIX SOCK_SEQPACKET socket carrying fixed-size
// wire records between the watchdog and an observed process, per spec
// §6. A seqpacket socket preserves message boundaries, so one Read
// always returns exactly one record — no framing/length-prefix needed.
type commChannel struct {
	path string
	ln   *net.UnixListener
	conn *net.UnixConn

	mu sync.Mutex
}

// InitCommChannel creates the listening side of the channel at path
// (removing any stale socket file first) and is owned by the watchdog,
// matching the teacher's pattern of a single long-lived resource guarded
// by its own mutex (internal/executor's exited channel/done bookkeeping,
// generalized here to a socket).
func (s *Services) InitCommChannel(path string) error {
	_ = os.Remove(path)
	addr, err := net.ResolveUnixAddr("unixpacket", path)
	if err != nil {
		return errs.New(errs.Comm, "resolve", err)
	}
	ln, err := net.ListenUnix("unixpacket", addr)
	if err != nil {
		return errs.New(errs.Comm, "listen", err)
	}
	s.comm = &commChannel{path: path, ln: ln}
	return nil
}

// AcceptCommChannel blocks until the observed process connects.
func (s *Services) AcceptCommChannel() error {
	if s.comm == nil || s.comm.ln == nil {
		return errs.New(errs.Comm, "not_initialized", nil)
	}
	conn, err := s.comm.ln.AcceptUnix()
	if err != nil {
		return errs.New(errs.Comm, "accept", err)
	}
	s.comm.mu.Lock()
	s.comm.conn = conn
	s.comm.mu.Unlock()
	return nil
}

// ConnectCommChannel is the observed-process side: it dials the
// watchdog's listening socket.
func (s *Services) ConnectCommChannel(path string) error {
	addr, err := net.ResolveUnixAddr("unixpacket", path)
	if err != nil {
		return errs.New(errs.Comm, "resolve", err)
	}
	conn, err := net.DialUnix("unixpacket", nil, addr)
	if err != nil {
		return errs.New(errs.Comm, "connect", err)
	}
	s.comm = &commChannel{path: path, conn: conn}
	return nil
}

// SendMsg writes one fixed-size record to the channel.
func (s *Services) SendMsg(m Msg) error {
	s.comm.mu.Lock()
	defer s.comm.mu.Unlock()
	if s.comm.conn == nil {
		return errs.New(errs.Comm, "not_connected", nil)
	}
	if _, err := s.comm.conn.Write(m.Encode()); err != nil {
		return errs.New(errs.Comm, "write", err)
	}
	return nil
}

// ReceiveMsg blocks for exactly one record.
func (s *Services) ReceiveMsg() (Msg, error) {
	s.comm.mu.Lock()
	conn := s.comm.conn
	s.comm.mu.Unlock()
	if conn == nil {
		return Msg{}, errs.New(errs.Comm, "not_connected", nil)
	}
	buf := make([]byte, wireRecordSize)
	n, err := conn.Read(buf)
	if err != nil {
		return Msg{}, errs.New(errs.Comm, "read", err)
	}
	return DecodeMsg(buf[:n])
}

// TearDownCommChannel closes the socket and removes its path (only the
// listening side owns the path on disk).
func (s *Services) TearDownCommChannel() error {
	if s.comm == nil {
		return nil
	}
	s.comm.mu.Lock()
	defer s.comm.mu.Unlock()
	if s.comm.conn != nil {
		_ = s.comm.conn.Close()
	}
	if s.comm.ln != nil {
		_ = s.comm.ln.Close()
		_ = os.Remove(s.comm.path)
	}
	s.comm = nil
	return nil
}
