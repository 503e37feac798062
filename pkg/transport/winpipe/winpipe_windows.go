//go:build windows

// Package winpipe is the Windows named pipe bootstrap transport.
package winpipe

import (
	"context"
	"net"
	"sync"

	"github.com/Microsoft/go-winio"

	"portbus/pkg/stream"
	"portbus/pkg/transport"
)

type Transport struct{}

func New() *Transport { return &Transport{} }

func (t *Transport) Kind() transport.Kind { return transport.KindWinPipe }

// Listen serves pipeName, e.g. `\\.\pipe\portbus\in`.
func (t *Transport) Listen(ctx context.Context, pipeName string) (transport.Listener, error) {
	l, err := winio.ListenPipe(pipeName, nil)
	if err != nil {
		return nil, err
	}
	wl := &listener{l: l, q: transport.NewQueue()}
	go wl.acceptLoop()
	go func() {
		select {
		case <-ctx.Done():
			_ = wl.Close()
		case <-wl.q.Done():
		}
	}()
	return wl, nil
}

func (t *Transport) Dial(ctx context.Context, pipeName string) (stream.Stream, error) {
	c, err := winio.DialPipeContext(ctx, pipeName)
	if err != nil {
		return nil, err
	}
	return stream.NewConn(c), nil
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
		if !l.q.Push(stream.NewConn(c)) {
			return
		}
	}
}
