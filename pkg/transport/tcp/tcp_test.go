package tcp

import (
	"context"
	"testing"

	"portbus/pkg/transport"
	"portbus/pkg/transport/transporttest"
)

func TestRoundTrip(t *testing.T) {
	transporttest.RoundTrip(t, New(), "127.0.0.1:0", func(l transport.Listener) string { return l.Addr().String() })
}

func TestCloseUnblocksAccept(t *testing.T) {
	transporttest.CloseUnblocksAccept(t, New(), "127.0.0.1:0")
}

func TestContextClosesListener(t *testing.T) {
	transporttest.ContextClosesListener(t, New(), "127.0.0.1:0")
}

func TestDialRefused(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr := New()
	l, err := tr.Listen(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	if s, err := tr.Dial(ctx, addr); err == nil {
		s.Close()
		t.Fatalf("dial to closed listener succeeded")
	}
}
