package stream

import (
	"bufio"
	"errors"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// aLongTimeAgo is a deadline that makes pending and future I/O fail at once.
var aLongTimeAgo = time.Unix(1, 0)

// Conn is a Stream over a net.Conn.
type Conn struct {
	c  net.Conn
	br *bufio.Reader

	wmu sync.Mutex
	bw  *bufio.Writer

	interrupted atomic.Bool
	closeOnce   sync.Once
	closeErr    error
}

// NewConn takes ownership of c.
func NewConn(c net.Conn) *Conn {
	return &Conn{c: c, br: bufio.NewReader(c), bw: bufio.NewWriter(c)}
}

// NetConn exposes the wrapped connection.
func (s *Conn) NetConn() net.Conn { return s.c }

func (s *Conn) mapErr(err error) error {
	if err == nil {
		return nil
	}
	if s.interrupted.Load() && errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrInterrupted
	}
	if errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	return err
}

func (s *Conn) Read(p []byte) (int, error) {
	n, err := s.br.Read(p)
	return n, s.mapErr(err)
}

func (s *Conn) ReadByte() (byte, error) {
	b, err := s.br.ReadByte()
	return b, s.mapErr(err)
}

func (s *Conn) Peek(n int) ([]byte, error) {
	p, err := s.br.Peek(n)
	return p, s.mapErr(err)
}

func (s *Conn) Write(p []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	n, err := s.bw.Write(p)
	return n, s.mapErr(err)
}

func (s *Conn) Flush() error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.mapErr(s.bw.Flush())
}

// Interrupt forces blocked and future I/O to fail without closing the socket.
func (s *Conn) Interrupt() {
	s.interrupted.Store(true)
	_ = s.c.SetDeadline(aLongTimeAgo)
}

func (s *Conn) Close() error {
	s.closeOnce.Do(func() {
		s.interrupted.Store(true)
		s.closeErr = s.c.Close()
	})
	return s.closeErr
}

func (s *Conn) LocalAddr() net.Addr  { return s.c.LocalAddr() }
func (s *Conn) RemoteAddr() net.Addr { return s.c.RemoteAddr() }
