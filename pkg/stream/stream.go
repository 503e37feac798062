// Package stream defines the owned duplex byte stream a connection runs on,
// with implementations over net.Conn, datagram groups and a null stream.
package stream

import (
	"errors"
	"io"
	"net"
)

// ErrInterrupted is returned by operations on a stream after Interrupt.
var ErrInterrupted = errors.New("stream: interrupted")

// ErrClosed is returned by operations on a closed stream.
var ErrClosed = errors.New("stream: closed")

// Stream is a buffered duplex byte stream owned by exactly one connection.
// Writes are buffered until Flush. Interrupt unblocks any goroutine blocked in
// Read or Write and may be called concurrently with them; Close releases the
// underlying resource and is idempotent.
type Stream interface {
	io.Reader
	io.Writer
	io.ByteReader
	Peek(n int) ([]byte, error)
	Flush() error
	Interrupt()
	Close() error
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// Addr is a net.Addr for streams that have no socket address.
type Addr struct {
	Net  string
	Name string
}

func (a Addr) Network() string { return a.Net }
func (a Addr) String() string  { return a.Name }
