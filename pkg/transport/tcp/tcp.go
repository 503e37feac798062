// Package tcp is the plain TCP bootstrap transport.
package tcp

import (
	"context"
	"net"
	"sync"

	"portbus/pkg/stream"
	"portbus/pkg/transport"
)

// Transport dials and listens on TCP. Nagle is disabled on every
// connection since values are flushed one at a time.
type Transport struct{}

func New() *Transport { return &Transport{} }

func (t *Transport) Kind() transport.Kind { return transport.KindTCP }

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	tl := &listener{l: l, q: transport.NewQueue()}
	go tl.acceptLoop()
	go func() {
		select {
		case <-ctx.Done():
			_ = tl.Close()
		case <-tl.q.Done():
		}
	}()
	return tl, nil
}

func (t *Transport) Dial(ctx context.Context, address string) (stream.Stream, error) {
	d := &net.Dialer{}
	c, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return wrap(c), nil
}

func wrap(c net.Conn) stream.Stream {
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return stream.NewConn(c)
}

type listener struct {
	l         net.Listener
	q         *transport.Queue
	closeOnce sync.Once
	closeErr  error
}

func (l *listener) Addr() net.Addr { return l.l.Addr() }

func (l *listener) Accept(ctx context.Context) (stream.Stream, error) { return l.q.Accept(ctx) }

func (l *listener) Close() error {
	l.closeOnce.Do(func() {
		l.q.Close()
		l.closeErr = l.l.Close()
	})
	return l.closeErr
}

func (l *listener) acceptLoop() {
	for {
		c, err := l.l.Accept()
		if err != nil {
			return
		}
		if !l.q.Push(wrap(c)) {
			return
		}
	}
}
