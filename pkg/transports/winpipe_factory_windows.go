//go:build windows

package transports

import (
	"portbus/pkg/transport"
	"portbus/pkg/transport/winpipe"
)

func newWinPipeTransport() (transport.Transport, error) { return winpipe.New(), nil }
