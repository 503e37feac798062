package local

import (
	"errors"
	"io"
	"net"

	"portbus/pkg/stream"
)

var errByteIO = errors.New("local: pipe carries values, not bytes")

// pipe is the stream a paired connection holds instead of its bootstrap
// socket. Values never touch it; its job is to tie the stream lifecycle to
// the link so that interrupting or closing either end releases the other.
type pipe struct {
	l    *link
	side string
}

var _ stream.Stream = (*pipe)(nil)

func (p *pipe) Read([]byte) (int, error) {
	<-p.l.done
	return 0, io.EOF
}

func (p *pipe) ReadByte() (byte, error) {
	<-p.l.done
	return 0, io.EOF
}

func (p *pipe) Peek(int) ([]byte, error) {
	<-p.l.done
	return nil, io.EOF
}

func (p *pipe) Write([]byte) (int, error) { return 0, errByteIO }
func (p *pipe) Flush() error              { return nil }
func (p *pipe) Interrupt()                { p.l.poison() }

func (p *pipe) Close() error {
	p.l.poison()
	return nil
}

func (p *pipe) LocalAddr() net.Addr  { return stream.Addr{Net: Name, Name: p.side} }
func (p *pipe) RemoteAddr() net.Addr { return stream.Addr{Net: Name, Name: p.l.from} }
