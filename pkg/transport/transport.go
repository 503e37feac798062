package transport

import (
	"context"
	"errors"
	"fmt"
	"net"

	"portbus/pkg/stream"
)

// Kind identifies a bootstrap link type.
type Kind int

const (
	KindUnknown Kind = iota
	KindTCP
	KindQUIC
	KindMem
	KindWinPipe
)

func (k Kind) String() string {
	switch k {
	case KindTCP:
		return "tcp"
	case KindQUIC:
		return "quic"
	case KindMem:
		return "mem"
	case KindWinPipe:
		return "winpipe"
	default:
		return "unknown"
	}
}

// ErrUnknownKind is returned for kind names no transport implements.
var ErrUnknownKind = errors.New("transport: unknown kind")

// ParseKind maps a configured name onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "tcp":
		return KindTCP, nil
	case "quic":
		return KindQUIC, nil
	case "mem":
		return KindMem, nil
	case "winpipe":
		return KindWinPipe, nil
	}
	return KindUnknown, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Addressed reports whether addresses of kind are host:port pairs. The
// others (mem, winpipe) use opaque names.
func (k Kind) Addressed() bool { return k == KindTCP || k == KindQUIC }

// Listener accepts inbound bootstrap streams.
type Listener interface {
	// Accept blocks until an inbound stream is available or ctx is done.
	Accept(ctx context.Context) (stream.Stream, error)
	// Addr returns the local listening address.
	Addr() net.Addr
	// Close stops the listener and unblocks Accept.
	Close() error
}

// Transport provides dialing and listening for a specific link kind.
type Transport interface {
	Kind() Kind
	// Listen starts accepting on address (transport-specific format). The
	// listener closes when ctx ends.
	Listen(ctx context.Context, address string) (Listener, error)
	// Dial opens a stream to address. ctx bounds the dial only; the
	// returned stream outlives it.
	Dial(ctx context.Context, address string) (stream.Stream, error)
}
