// Package transports builds bootstrap transports from configured kind names.
package transports

import (
	"fmt"

	"portbus/pkg/transport"
	"portbus/pkg/transport/mem"
	"portbus/pkg/transport/quic"
	"portbus/pkg/transport/tcp"
)

// NewByKind returns a transport for kind. "mem" yields the process-wide
// shared namespace.
func NewByKind(kind string) (transport.Transport, error) {
	k, err := transport.ParseKind(kind)
	if err != nil {
		return nil, err
	}
	switch k {
	case transport.KindTCP:
		return tcp.New(), nil
	case transport.KindQUIC:
		return quic.New(), nil
	case transport.KindMem:
		return mem.Shared(), nil
	case transport.KindWinPipe:
		return newWinPipeTransport()
	}
	return nil, fmt.Errorf("%w: %q", transport.ErrUnknownKind, kind)
}
