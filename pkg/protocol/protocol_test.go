package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"portbus/pkg/carrier"
	"portbus/pkg/stream"
	"portbus/pkg/wire"
)

type testCarrier struct {
	carrier.Base
	vetoExtra bool
}

func (c *testCarrier) Create() carrier.Carrier { n := *c; return &n }

func (c *testCarrier) ExpectExtraHeader(carrier.State) error {
	if c.vetoExtra {
		return errors.New("malformed extra header")
	}
	return nil
}

func ackCarrier() *testCarrier {
	return &testCarrier{Base: carrier.Base{
		Caps: carrier.Capabilities{Name: "test", RequiresAck: true, SupportsReply: true},
		Spec: carrier.SpecifierOf("TESTXXXX"),
	}}
}

func newPair(t *testing.T, senderReg, receiverReg *carrier.Registry) (*Protocol, *Protocol) {
	t.Helper()
	a, b := net.Pipe()
	s := New(senderReg, stream.NewConn(a), WithLogger(zap.NewNop()))
	r := New(receiverReg, stream.NewConn(b), WithLogger(zap.NewNop()))
	t.Cleanup(func() {
		_ = s.Close()
		_ = r.Close()
	})
	return s, r
}

func negotiate(s, r *Protocol, route carrier.Route) (openErr, acceptErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Accept(ctx, route.To) }()
	openErr = s.Open(ctx, route)
	acceptErr = <-done
	return openErr, acceptErr
}

func registryWith(c carrier.Carrier) *carrier.Registry {
	reg := carrier.NewRegistry()
	reg.Register(c)
	return reg
}

func TestHandshakeAndAckedWrite(t *testing.T) {
	reg := registryWith(ackCarrier())
	s, r := newPair(t, reg, reg)

	openErr, acceptErr := negotiate(s, r, carrier.Route{From: "/src", To: "/dst", Carrier: "test"})
	require.NoError(t, openErr)
	require.NoError(t, acceptErr)
	require.Equal(t, PhaseEstablished, s.Phase())
	require.Equal(t, PhaseEstablished, r.Phase())
	require.Equal(t, carrier.Route{From: "/src", To: "/dst", Carrier: "test"}, r.Route())

	ctx := context.Background()
	go func() {
		v, err := r.Read(ctx)
		if err != nil {
			return
		}
		_ = r.Reply(wire.Int32(v.Index(0).AsInt32()*2), nil)
	}()
	reply, err := s.Write(ctx, wire.List(wire.Int32(7)))
	require.NoError(t, err)
	require.Equal(t, int32(14), reply.AsInt32())
	require.Equal(t, PhaseStreaming, s.Phase())
}

func TestRejectedWriteKeepsConnection(t *testing.T) {
	reg := registryWith(ackCarrier())
	s, r := newPair(t, reg, reg)
	openErr, acceptErr := negotiate(s, r, carrier.Route{From: "/src", To: "/dst", Carrier: "test"})
	require.NoError(t, openErr)
	require.NoError(t, acceptErr)

	ctx := context.Background()
	go func() {
		for i := 0; i < 2; i++ {
			if _, err := r.Read(ctx); err != nil {
				return
			}
			var herr error
			if i == 0 {
				herr = errors.New("busy")
			}
			_ = r.Reply(wire.Value{}, herr)
		}
	}()
	_, err := s.Write(ctx, wire.String("first"))
	require.ErrorIs(t, err, ErrRejected)
	require.Contains(t, err.Error(), "busy")

	_, err = s.Write(ctx, wire.String("second"))
	require.NoError(t, err)
}

func TestVetoClosesReceiver(t *testing.T) {
	veto := ackCarrier()
	veto.vetoExtra = true
	s, r := newPair(t, registryWith(ackCarrier()), registryWith(veto))

	_, acceptErr := negotiate(s, r, carrier.Route{From: "/src", To: "/dst", Carrier: "test"})
	require.ErrorIs(t, acceptErr, carrier.ErrNegotiationVetoed)
	require.Equal(t, PhaseClosed, r.Phase())

	_, err := r.Read(context.Background())
	require.ErrorIs(t, err, ErrNotEstablished)

	// the sender learns about it on first use
	_, err = s.Write(context.Background(), wire.Int32(1))
	require.ErrorIs(t, err, carrier.ErrTransportFailure)
	require.Equal(t, PhaseClosed, s.Phase())
}

func TestHeaderMismatch(t *testing.T) {
	other := &testCarrier{Base: carrier.Base{
		Caps: carrier.Capabilities{Name: "other"},
		Spec: carrier.SpecifierOf("OTHERXXX"),
	}}
	s, r := newPair(t, registryWith(ackCarrier()), registryWith(other))

	_, acceptErr := negotiate(s, r, carrier.Route{From: "/src", To: "/dst", Carrier: "test"})
	require.ErrorIs(t, acceptErr, carrier.ErrHeaderMismatch)
	require.Equal(t, PhaseClosed, r.Phase())
}

func TestUnknownCarrierName(t *testing.T) {
	s, _ := newPair(t, carrier.NewRegistry(), carrier.NewRegistry())
	err := s.Open(context.Background(), carrier.Route{From: "/a", To: "/b", Carrier: "nope"})
	require.ErrorIs(t, err, carrier.ErrHeaderMismatch)
	require.Equal(t, PhaseClosed, s.Phase())
}

func TestInterruptUnblocksRead(t *testing.T) {
	reg := registryWith(ackCarrier())
	s, r := newPair(t, reg, reg)
	openErr, acceptErr := negotiate(s, r, carrier.Route{From: "/src", To: "/dst", Carrier: "test"})
	require.NoError(t, openErr)
	require.NoError(t, acceptErr)

	done := make(chan error, 1)
	go func() {
		_, err := r.Read(context.Background())
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	r.Interrupt()

	select {
	case err := <-done:
		require.ErrorIs(t, err, carrier.ErrTransportFailure)
	case <-time.After(2 * time.Second):
		t.Fatalf("read still blocked after interrupt")
	}
	require.Equal(t, PhaseClosed, r.Phase())
}

func TestCancelDuringAccept(t *testing.T) {
	reg := registryWith(ackCarrier())
	_, r := newPair(t, reg, reg)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	err := r.Accept(ctx, "/dst")
	require.ErrorIs(t, err, carrier.ErrTransportFailure)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCloseIsIdempotent(t *testing.T) {
	reg := registryWith(ackCarrier())
	s, _ := newPair(t, reg, reg)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.Equal(t, PhaseClosed, s.Phase())
	select {
	case <-s.Done():
	default:
		t.Fatalf("done channel not closed")
	}
	_, err := s.Write(context.Background(), wire.Int32(1))
	require.ErrorIs(t, err, ErrNotEstablished)
}

func TestSwapStreamRejectsNil(t *testing.T) {
	cs := newConnState(stream.Null{}, zap.NewNop())
	_, err := cs.SwapStream(nil)
	require.Error(t, err)
	require.Equal(t, stream.Null{}, cs.Stream())
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want error
	}{
		{io.EOF, carrier.ErrTransportFailure},
		{stream.ErrInterrupted, carrier.ErrTransportFailure},
		{&wire.DecodeError{Reason: "x", Err: stream.ErrInterrupted}, carrier.ErrTransportFailure},
		{&wire.DecodeError{Reason: "unknown tag"}, wire.ErrDecode},
		{carrier.Vetof("no"), carrier.ErrNegotiationVetoed},
		{errors.New("anything else"), carrier.ErrNegotiationVetoed},
		{fmt.Errorf("wrapped: %w", carrier.ErrHeaderMismatch), carrier.ErrHeaderMismatch},
		{&net.OpError{Op: "read", Err: errors.New("reset")}, carrier.ErrTransportFailure},
	}
	for _, tc := range cases {
		require.ErrorIs(t, Classify(tc.err), tc.want, "%v", tc.err)
	}
	require.NoError(t, Classify(nil))
	require.Equal(t, "ok", Outcome(nil))
	require.Equal(t, "decode", Outcome(&wire.DecodeError{}))
}
