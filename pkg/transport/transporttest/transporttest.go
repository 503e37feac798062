// Package transporttest holds conformance checks every bootstrap transport
// must pass.
package transporttest

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"portbus/pkg/transport"
)

// RoundTrip listens on addr, dials the listener's address and bounces one
// message each way. dialAddr maps the listener to the address to dial.
func RoundTrip(t *testing.T, tr transport.Transport, addr string, dialAddr func(transport.Listener) string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	l, err := tr.Listen(ctx, addr)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()

	type accepted struct {
		msg []byte
		err error
	}
	done := make(chan accepted, 1)
	go func() {
		s, err := l.Accept(ctx)
		if err != nil {
			done <- accepted{err: err}
			return
		}
		defer s.Close()
		buf := make([]byte, 8)
		if _, err := io.ReadFull(s, buf); err != nil {
			done <- accepted{err: err}
			return
		}
		if _, err := s.Write([]byte("REPLY:" + string(buf[:2]))); err != nil {
			done <- accepted{err: err}
			return
		}
		done <- accepted{msg: buf, err: s.Flush()}
		// keep the stream open until the dialer has read the reply
		_, _ = s.ReadByte()
	}()

	c, err := tr.Dial(ctx, dialAddr(l))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	if _, err := c.Write([]byte("PORTBUS!")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := c.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	got := <-done
	if got.err != nil {
		t.Fatalf("accept side: %v", got.err)
	}
	if string(got.msg) != "PORTBUS!" {
		t.Fatalf("server read %q", got.msg)
	}
	reply := make([]byte, 8)
	if _, err := io.ReadFull(c, reply); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if string(reply) != "REPLY:PO" {
		t.Fatalf("client read %q", reply)
	}
}

// CloseUnblocksAccept checks that Close wakes a pending Accept.
func CloseUnblocksAccept(t *testing.T, tr transport.Transport, addr string) {
	t.Helper()
	l, err := tr.Listen(context.Background(), addr)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	errc := make(chan error, 1)
	go func() {
		_, err := l.Accept(context.Background())
		errc <- err
	}()
	time.Sleep(20 * time.Millisecond)
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case err := <-errc:
		if !errors.Is(err, transport.ErrListenerClosed) {
			t.Fatalf("accept after close: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("accept still blocked after close")
	}
}

// ContextClosesListener checks that cancelling the Listen context closes
// the listener.
func ContextClosesListener(t *testing.T, tr transport.Transport, addr string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	l, err := tr.Listen(ctx, addr)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	cancel()
	actx, acancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer acancel()
	if _, err := l.Accept(actx); !errors.Is(err, transport.ErrListenerClosed) {
		t.Fatalf("accept after cancel: %v", err)
	}
}
