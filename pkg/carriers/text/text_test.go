package text

import (
	"bufio"
	"context"
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

func TestHandTypedSession(t *testing.T) {
	reg := carrier.NewRegistry()
	reg.Register(New())
	a, b := net.Pipe()
	receiver := protocol.New(reg, stream.NewConn(b), protocol.WithLogger(zap.NewNop()))
	defer receiver.Close()
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	accepted := make(chan error, 1)
	go func() { accepted <- receiver.Accept(ctx, "/log") }()

	// what a person would type into a terminal
	_, err := a.Write([]byte("CONNECT /typist\n"))
	require.NoError(t, err)
	greeting, err := bufio.NewReader(a).ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "Welcome /log\n", greeting)
	require.NoError(t, <-accepted)
	require.Equal(t, "/typist", receiver.Route().From)

	go func() { _, _ = a.Write([]byte("(1 \"two\" [ok])\n")) }()
	v, err := receiver.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, v.Len())
	require.Equal(t, int32(1), v.Index(0).AsInt32())
	require.Equal(t, "two", v.Index(1).AsString())
	require.Equal(t, wire.VocabOK, v.Index(2).AsVocab())
	// no ack for text connections
	require.NoError(t, receiver.Reply(wire.Value{}, nil))
}

func TestProtocolToProtocol(t *testing.T) {
	reg := carrier.NewRegistry()
	reg.Register(New())
	a, b := net.Pipe()
	sender := protocol.New(reg, stream.NewConn(a), protocol.WithLogger(zap.NewNop()))
	receiver := protocol.New(reg, stream.NewConn(b), protocol.WithLogger(zap.NewNop()))
	defer sender.Close()
	defer receiver.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	accepted := make(chan error, 1)
	go func() { accepted <- receiver.Accept(ctx, "/log") }()
	require.NoError(t, sender.Open(ctx, carrier.Route{From: "/me", To: "/log", Carrier: Name}))
	require.NoError(t, <-accepted)

	got := make(chan wire.Value, 1)
	go func() {
		v, _ := receiver.Read(ctx)
		got <- v
	}()
	reply, err := sender.Write(ctx, wire.List(wire.Float64(2.5), wire.String("x y")))
	require.NoError(t, err)
	require.False(t, reply.IsValid())
	v := <-got
	require.True(t, v.Equal(wire.List(wire.Float64(2.5), wire.String("x y"))))
}

func TestEmptyConnectVetoed(t *testing.T) {
	reg := carrier.NewRegistry()
	reg.Register(New())
	a, b := net.Pipe()
	receiver := protocol.New(reg, stream.NewConn(b), protocol.WithLogger(zap.NewNop()))
	defer receiver.Close()
	defer a.Close()

	go func() { _, _ = a.Write([]byte("CONNECT \n")) }()
	err := receiver.Accept(context.Background(), "/log")
	require.ErrorIs(t, err, carrier.ErrNegotiationVetoed)
}
