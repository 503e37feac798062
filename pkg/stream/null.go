package stream

import (
	"io"
	"net"
)

// Null is a stream with nothing behind it: reads report end of stream and
// writes are discarded. A connection holds one after it has released its
// real stream.
type Null struct{}

func (Null) Read([]byte) (int, error)    { return 0, io.EOF }
func (Null) ReadByte() (byte, error)     { return 0, io.EOF }
func (Null) Peek(int) ([]byte, error)    { return nil, io.EOF }
func (Null) Write(p []byte) (int, error) { return len(p), nil }
func (Null) Flush() error                { return nil }
func (Null) Interrupt()                  {}
func (Null) Close() error                { return nil }
func (Null) LocalAddr() net.Addr         { return Addr{Net: "null", Name: "null"} }
func (Null) RemoteAddr() net.Addr        { return Addr{Net: "null", Name: "null"} }
