package mem

import (
	"context"
	"errors"
	"testing"
	"time"

	"portbus/pkg/transport"
	"portbus/pkg/transport/transporttest"
)

func TestRoundTrip(t *testing.T) {
	transporttest.RoundTrip(t, New(), "inproc/a", func(l transport.Listener) string { return l.Addr().String() })
}

func TestCloseUnblocksAccept(t *testing.T) {
	transporttest.CloseUnblocksAccept(t, New(), "inproc/b")
}

func TestContextClosesListener(t *testing.T) {
	transporttest.ContextClosesListener(t, New(), "inproc/c")
}

func TestNamesAreExclusive(t *testing.T) {
	tr := New()
	l, err := tr.Listen(context.Background(), "x")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	if _, err := tr.Listen(context.Background(), "x"); !errors.Is(err, ErrAddrInUse) {
		t.Fatalf("second listen: %v", err)
	}
	_ = l.Close()
	l2, err := tr.Listen(context.Background(), "x")
	if err != nil {
		t.Fatalf("listen after close: %v", err)
	}
	_ = l2.Close()
}

func TestDialUnknown(t *testing.T) {
	if _, err := New().Dial(context.Background(), "nobody"); !errors.Is(err, ErrNoListener) {
		t.Fatalf("dial: %v", err)
	}
}

func TestDialNobodyAccepting(t *testing.T) {
	tr := New()
	l, err := tr.Listen(context.Background(), "idle")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := tr.Dial(ctx, "idle"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("dial: %v", err)
	}
}

func TestSharedIsSingleton(t *testing.T) {
	if Shared() != Shared() {
		t.Fatalf("Shared returned different transports")
	}
}
