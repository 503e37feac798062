//go:build !windows

package transports

import (
	"errors"

	"portbus/pkg/transport"
)

// ErrUnsupported is returned for transports this platform lacks.
var ErrUnsupported = errors.New("transports: winpipe is only available on windows")

func newWinPipeTransport() (transport.Transport, error) { return nil, ErrUnsupported }
