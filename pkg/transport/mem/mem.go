// Package mem is an in-process bootstrap transport over net.Pipe. Listeners
// are looked up by name in the Transport they were created on.
package mem

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"portbus/pkg/stream"
	"portbus/pkg/transport"
)

var (
	ErrAddrInUse  = errors.New("mem: listener already exists")
	ErrNoListener = errors.New("mem: no such listener")
)

var (
	shared     *Transport
	sharedOnce sync.Once
)

// Transport is a namespace of in-process listeners.
type Transport struct {
	mu        sync.Mutex
	listeners map[string]*listener
}

func New() *Transport { return &Transport{listeners: make(map[string]*listener)} }

// Shared returns the process-wide Transport, so that nodes built separately
// in one process can reach each other.
func Shared() *Transport {
	sharedOnce.Do(func() { shared = New() })
	return shared
}

func (t *Transport) Kind() transport.Kind { return transport.KindMem }

func (t *Transport) Listen(ctx context.Context, name string) (transport.Listener, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.listeners[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAddrInUse, name)
	}
	l := &listener{t: t, name: name, q: transport.NewQueue()}
	t.listeners[name] = l
	go func() {
		select {
		case <-ctx.Done():
			_ = l.Close()
		case <-l.q.Done():
		}
	}()
	return l, nil
}

func (t *Transport) Dial(ctx context.Context, name string) (stream.Stream, error) {
	t.mu.Lock()
	l := t.listeners[name]
	t.mu.Unlock()
	if l == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoListener, name)
	}
	c1, c2 := net.Pipe()
	srv := stream.NewConn(&conn{Conn: c1, local: memAddr(name), remote: memAddr("dial:" + name)})
	cli := stream.NewConn(&conn{Conn: c2, local: memAddr("dial:" + name), remote: memAddr(name)})
	done := make(chan bool, 1)
	go func() { done <- l.q.Push(srv) }()
	select {
	case ok := <-done:
		if !ok {
			_ = cli.Close()
			return nil, fmt.Errorf("%w: %s", ErrNoListener, name)
		}
		return cli, nil
	case <-ctx.Done():
		_ = cli.Close()
		_ = srv.Close()
		return nil, ctx.Err()
	}
}

func (t *Transport) remove(l *listener) {
	t.mu.Lock()
	if t.listeners[l.name] == l {
		delete(t.listeners, l.name)
	}
	t.mu.Unlock()
}

type listener struct {
	t    *Transport
	name string
	q    *transport.Queue
	once sync.Once
}

func (l *listener) Addr() net.Addr { return memAddr(l.name) }

func (l *listener) Accept(ctx context.Context) (stream.Stream, error) { return l.q.Accept(ctx) }

func (l *listener) Close() error {
	l.once.Do(func() {
		l.q.Close()
		l.t.remove(l)
	})
	return nil
}

// conn gives pipe ends addresses that name the listener.
type conn struct {
	net.Conn
	local, remote net.Addr
}

func (c *conn) LocalAddr() net.Addr  { return c.local }
func (c *conn) RemoteAddr() net.Addr { return c.remote }

type memAddr string

func (a memAddr) Network() string { return "mem" }
func (a memAddr) String() string  { return string(a) }
