package stream

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
)

// ErrInactive is returned when reading a group stream that has no socket.
var ErrInactive = errors.New("stream: group stream is inactive")

// MaxDatagram bounds one flushed datagram.
const MaxDatagram = 65507

// Group is a datagram stream. Writes accumulate until Flush sends them as one
// datagram to the destination; reads are served from received datagrams in
// arrival order. A Group without a socket is inactive: flushes drop their
// data and reads fail with ErrInactive. Activate attaches a socket in place,
// so a connection holding an inactive Group never needs to swap streams to
// start sending.
type Group struct {
	mu     sync.Mutex
	pc     net.PacketConn
	dst    net.Addr
	closed bool

	wmu  sync.Mutex
	wbuf bytes.Buffer

	br          *bufio.Reader
	interrupted atomic.Bool
}

// NewGroup returns a group stream sending to dst. pc may be nil.
func NewGroup(pc net.PacketConn, dst net.Addr) *Group {
	g := &Group{pc: pc, dst: dst}
	g.br = bufio.NewReaderSize(&packetReader{g: g, buf: make([]byte, MaxDatagram)}, MaxDatagram)
	return g
}

// Activate attaches pc. It fails when the stream is closed or already active.
func (g *Group) Activate(pc net.PacketConn) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case g.closed:
		return ErrClosed
	case g.pc != nil:
		return errors.New("stream: group stream already active")
	}
	g.pc = pc
	return nil
}

// Active reports whether a socket is attached.
func (g *Group) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pc != nil
}

func (g *Group) conn() (net.PacketConn, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, ErrClosed
	}
	if g.interrupted.Load() {
		return nil, ErrInterrupted
	}
	if g.pc == nil {
		return nil, ErrInactive
	}
	return g.pc, nil
}

func (g *Group) mapErr(err error) error {
	if err == nil {
		return nil
	}
	if g.interrupted.Load() && errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrInterrupted
	}
	if errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	return err
}

type packetReader struct {
	g       *Group
	buf     []byte
	pending []byte
}

func (r *packetReader) Read(p []byte) (int, error) {
	if len(r.pending) == 0 {
		pc, err := r.g.conn()
		if err != nil {
			return 0, err
		}
		n, _, err := pc.ReadFrom(r.buf)
		if err != nil {
			return 0, r.g.mapErr(err)
		}
		r.pending = r.buf[:n]
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

func (g *Group) Read(p []byte) (int, error) { return g.br.Read(p) }
func (g *Group) ReadByte() (byte, error)    { return g.br.ReadByte() }
func (g *Group) Peek(n int) ([]byte, error) { return g.br.Peek(n) }

func (g *Group) Write(p []byte) (int, error) {
	g.wmu.Lock()
	defer g.wmu.Unlock()
	if g.wbuf.Len()+len(p) > MaxDatagram {
		return 0, fmt.Errorf("stream: datagram exceeds %d bytes", MaxDatagram)
	}
	return g.wbuf.Write(p)
}

// Flush sends the buffered bytes as one datagram.
func (g *Group) Flush() error {
	g.wmu.Lock()
	defer g.wmu.Unlock()
	if g.wbuf.Len() == 0 {
		return nil
	}
	defer g.wbuf.Reset()
	pc, err := g.conn()
	if errors.Is(err, ErrInactive) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = pc.WriteTo(g.wbuf.Bytes(), g.dst)
	return g.mapErr(err)
}

func (g *Group) Interrupt() {
	g.interrupted.Store(true)
	g.mu.Lock()
	pc := g.pc
	g.mu.Unlock()
	if pc != nil {
		_ = pc.SetDeadline(aLongTimeAgo)
	}
}

func (g *Group) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	if g.pc != nil {
		return g.pc.Close()
	}
	return nil
}

func (g *Group) LocalAddr() net.Addr {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pc == nil {
		return Addr{Net: "udp", Name: "inactive"}
	}
	return g.pc.LocalAddr()
}

func (g *Group) RemoteAddr() net.Addr { return g.dst }
