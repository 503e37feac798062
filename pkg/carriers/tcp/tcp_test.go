package tcp

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"portbus/pkg/carrier"
	"portbus/pkg/protocol"
	"portbus/pkg/stream"
	"portbus/pkg/wire"
)

func loopback(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := l.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()
	a, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	b, ok := <-accepted
	require.True(t, ok)
	return a, b
}

func TestStreamHandshakeScenario(t *testing.T) {
	reg := carrier.NewRegistry()
	reg.Register(New())
	a, b := loopback(t)
	sender := protocol.New(reg, stream.NewConn(a), protocol.WithLogger(zap.NewNop()))
	receiver := protocol.New(reg, stream.NewConn(b), protocol.WithLogger(zap.NewNop()))
	defer sender.Close()
	defer receiver.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	accepted := make(chan error, 1)
	go func() { accepted <- receiver.Accept(ctx, "/receiver") }()
	require.NoError(t, sender.Open(ctx, carrier.Route{From: "/sender", To: "/receiver", Carrier: Name}))
	require.NoError(t, <-accepted)
	require.Equal(t, protocol.PhaseEstablished, receiver.Phase())
	require.Equal(t, "/sender", receiver.Route().From)
	require.Equal(t, Name, receiver.Route().Carrier)

	got := make(chan wire.Value, 1)
	go func() {
		v, err := receiver.Read(ctx)
		if err != nil {
			close(got)
			return
		}
		got <- v
		_ = receiver.Reply(wire.Value{}, nil)
	}()
	_, err := sender.Write(ctx, wire.List(wire.Int32(7)))
	require.NoError(t, err)
	v, ok := <-got
	require.True(t, ok)
	require.Equal(t, 1, v.Len())
	require.Equal(t, int32(7), v.Index(0).AsInt32())
}

func TestSenderWritesSpecifierFirst(t *testing.T) {
	reg := carrier.NewRegistry()
	reg.Register(New())
	a, b := net.Pipe()
	sender := protocol.New(reg, stream.NewConn(a), protocol.WithLogger(zap.NewNop()))
	defer sender.Close()
	defer b.Close()

	go func() {
		_ = sender.Open(context.Background(), carrier.Route{From: "/s", To: "/r", Carrier: Name})
	}()
	head := make([]byte, 8+4+2)
	_, err := io.ReadFull(b, head)
	require.NoError(t, err)
	require.Equal(t, "STREAMXX", string(head[:8]))
	require.Equal(t, []byte{2, 0, 0, 0}, head[8:12])
	require.Equal(t, "/s", string(head[12:]))
}

func TestWrongDestinationVetoed(t *testing.T) {
	reg := carrier.NewRegistry()
	reg.Register(New())
	a, b := net.Pipe()
	sender := protocol.New(reg, stream.NewConn(a), protocol.WithLogger(zap.NewNop()))
	receiver := protocol.New(reg, stream.NewConn(b), protocol.WithLogger(zap.NewNop()))
	defer sender.Close()
	defer receiver.Close()

	ctx := context.Background()
	go func() { _ = receiver.Accept(ctx, "/someone-else") }()
	err := sender.Open(ctx, carrier.Route{From: "/s", To: "/r", Carrier: Name})
	require.ErrorIs(t, err, carrier.ErrNegotiationVetoed)
	require.Equal(t, protocol.PhaseClosed, sender.Phase())
}

func TestCreateReturnsFreshInstance(t *testing.T) {
	proto := New()
	require.NotSame(t, proto, proto.Create())
	caps := proto.Capabilities()
	require.True(t, caps.RequiresAck)
	require.False(t, caps.Connectionless)
}

func TestMisframedListIsDecodeError(t *testing.T) {
	reg := carrier.NewRegistry()
	reg.Register(New())
	a, b := net.Pipe()
	receiver := protocol.New(reg, stream.NewConn(b), protocol.WithLogger(zap.NewNop()))
	defer receiver.Close()
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	accepted := make(chan error, 1)
	go func() { accepted <- receiver.Accept(ctx, "/r") }()
	peer := stream.NewConn(a)
	_, err := peer.Write(Specifier[:])
	require.NoError(t, err)
	require.NoError(t, carrier.WriteName(peer, "/s"))
	require.NoError(t, peer.Flush())
	reply := make([]byte, 8+4+2)
	_, err = io.ReadFull(peer, reply)
	require.NoError(t, err)
	require.NoError(t, <-accepted)

	// a list announcing two items followed by three, framed as one message,
	// then a well formed message that must not be delivered in its place
	var body bytes.Buffer
	w := wire.NewWriter(&body)
	require.NoError(t, w.WriteListHeader(2))
	require.NoError(t, w.WriteInt32(1))
	require.NoError(t, w.WriteString("x"))
	require.NoError(t, w.WriteInt32(3))
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(body.Len()))
	go func() {
		_, _ = peer.Write(n[:])
		_, _ = peer.Write(body.Bytes())
		_ = wire.NewWriter(peer).WriteFrame(wire.Int32(3))
		_ = peer.Flush()
	}()

	_, err = receiver.Read(ctx)
	require.ErrorIs(t, err, wire.ErrDecode)
	_, err = receiver.Read(ctx)
	require.Error(t, err)
}
