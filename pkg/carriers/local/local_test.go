package local

import (
	"context"
	"errors"
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

func pairWith(t *testing.T, senderMgr, receiverMgr *Manager) (*protocol.Protocol, *protocol.Protocol, error, error) {
	t.Helper()
	sreg := carrier.NewRegistry()
	sreg.Register(New(senderMgr))
	rreg := carrier.NewRegistry()
	rreg.Register(New(receiverMgr))

	a, b := net.Pipe()
	sender := protocol.New(sreg, stream.NewConn(a), protocol.WithLogger(zap.NewNop()))
	receiver := protocol.New(rreg, stream.NewConn(b), protocol.WithLogger(zap.NewNop()))
	t.Cleanup(func() {
		sender.Close()
		receiver.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	accepted := make(chan error, 1)
	go func() { accepted <- receiver.Accept(ctx, "/in") }()
	openErr := sender.Open(ctx, carrier.Route{From: "/out", To: "/in", Carrier: Name})
	return sender, receiver, openErr, <-accepted
}

func TestPairingSwapsToPipe(t *testing.T) {
	mgr := NewManager()
	sender, receiver, openErr, acceptErr := pairWith(t, mgr, mgr)
	require.NoError(t, openErr)
	require.NoError(t, acceptErr)

	require.IsType(t, &pipe{}, sender.Stream())
	require.IsType(t, &pipe{}, receiver.Stream())
	require.Equal(t, "/out", receiver.Route().From)
	require.Equal(t, Name, receiver.Route().Carrier)
	require.Zero(t, mgr.Pending())
	require.True(t, receiver.Capabilities().Local)
}

func TestValuesPassByReference(t *testing.T) {
	mgr := NewManager()
	sender, receiver, openErr, acceptErr := pairWith(t, mgr, mgr)
	require.NoError(t, openErr)
	require.NoError(t, acceptErr)
	ctx := context.Background()

	payload := wire.Blob([]byte("large payload"))
	got := make(chan wire.Value, 1)
	go func() {
		v, err := receiver.Read(ctx)
		if err == nil {
			got <- v
			_ = receiver.Reply(wire.Int32(14), nil)
		}
		close(got)
	}()
	reply, err := sender.Write(ctx, payload)
	require.NoError(t, err)
	require.Equal(t, int32(14), reply.AsInt32())

	v := <-got
	require.Same(t, &payload.AsBlob()[0], &v.AsBlob()[0])
}

func TestForeignManagerVetoed(t *testing.T) {
	senderMgr, receiverMgr := NewManager(), NewManager()
	sender, receiver, openErr, acceptErr := pairWith(t, senderMgr, receiverMgr)

	require.ErrorIs(t, acceptErr, carrier.ErrNegotiationVetoed)
	require.ErrorIs(t, openErr, carrier.ErrTransportFailure)
	require.Equal(t, protocol.PhaseClosed, receiver.Phase())
	require.Equal(t, protocol.PhaseClosed, sender.Phase())
	require.Zero(t, senderMgr.Pending(), "a torn down sender must be revoked")
}

// The sender posts A while the receiver is not consuming. A second write of
// B blocks until A is acknowledged, and the receiver sees A then B.
func TestBackPressureScenario(t *testing.T) {
	mgr := NewManager()
	l := newLink("/out")
	snd := New(mgr)
	snd.l = l
	rcv := New(mgr)
	rcv.l = l

	require.NoError(t, snd.Write(nil, wire.String("A")))

	posted := make(chan struct{})
	go func() {
		defer close(posted)
		_ = snd.Write(nil, wire.String("B"))
	}()
	select {
	case <-posted:
		t.Fatalf("second write must block while A is unacknowledged")
	case <-time.After(50 * time.Millisecond):
	}

	v, err := rcv.Read(nil)
	require.NoError(t, err)
	require.Equal(t, "A", v.AsString())
	select {
	case <-posted:
		t.Fatalf("taking A is not acknowledging it")
	case <-time.After(50 * time.Millisecond):
	}
	require.NoError(t, rcv.SendAck(nil, carrier.Ack{OK: true}))

	select {
	case <-posted:
	case <-time.After(2 * time.Second):
		t.Fatalf("second write still blocked after A was acknowledged")
	}
	v, err = rcv.Read(nil)
	require.NoError(t, err)
	require.Equal(t, "B", v.AsString())
}

func TestAtMostOneInFlight(t *testing.T) {
	mgr := NewManager()
	sender, receiver, openErr, acceptErr := pairWith(t, mgr, mgr)
	require.NoError(t, openErr)
	require.NoError(t, acceptErr)
	ctx := context.Background()

	done := make(chan string, 2)
	for _, s := range []string{"A", "B"} {
		go func(s string) {
			if _, err := sender.Write(ctx, wire.String(s)); err == nil {
				done <- s
			}
		}(s)
		time.Sleep(20 * time.Millisecond)
	}

	var order []string
	for i := 0; i < 2; i++ {
		v, err := receiver.Read(ctx)
		require.NoError(t, err)
		select {
		case s := <-done:
			t.Fatalf("write %s finished before its value was acknowledged", s)
		case <-time.After(30 * time.Millisecond):
		}
		order = append(order, v.AsString())
		require.NoError(t, receiver.Reply(wire.Value{}, nil))
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("write not released by its ack")
		}
	}
	require.Equal(t, []string{"A", "B"}, order)
}

func TestTeardownPoisonsPeer(t *testing.T) {
	mgr := NewManager()
	sender, receiver, openErr, acceptErr := pairWith(t, mgr, mgr)
	require.NoError(t, openErr)
	require.NoError(t, acceptErr)
	ctx := context.Background()

	readErr := make(chan error, 1)
	go func() {
		_, err := receiver.Read(ctx)
		readErr <- err
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, sender.Close())

	select {
	case err := <-readErr:
		require.ErrorIs(t, err, carrier.ErrTransportFailure)
	case <-time.After(2 * time.Second):
		t.Fatalf("receiver still blocked after sender teardown")
	}

	_, err := sender.Write(ctx, wire.Int32(1))
	require.ErrorIs(t, err, protocol.ErrNotEstablished)
}

func TestUnansweredWriteUnblockedByReceiverClose(t *testing.T) {
	mgr := NewManager()
	sender, receiver, openErr, acceptErr := pairWith(t, mgr, mgr)
	require.NoError(t, openErr)
	require.NoError(t, acceptErr)
	ctx := context.Background()

	go func() {
		if _, err := receiver.Read(ctx); err == nil {
			receiver.Close()
		}
	}()
	_, err := sender.Write(ctx, wire.Int32(1))
	require.True(t, errors.Is(err, ErrPeerGone) || errors.Is(err, carrier.ErrTransportFailure))
}

func TestRevoke(t *testing.T) {
	mgr := NewManager()
	l := newLink("/out")
	token := mgr.offer(l)
	require.Equal(t, 1, mgr.Pending())
	require.True(t, mgr.Revoke(token))
	require.False(t, mgr.Revoke(token))
	_, ok := mgr.claim(token)
	require.False(t, ok)
	_, err := l.post(wire.Int32(1))
	require.ErrorIs(t, err, ErrPeerGone)
}
