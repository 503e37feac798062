package carrier

import (
	"errors"
	"fmt"
)

var (
	// ErrHeaderMismatch: no registered carrier matches a name or header.
	ErrHeaderMismatch = errors.New("carrier: header mismatch")
	// ErrNegotiationVetoed: a hook declined the connection.
	ErrNegotiationVetoed = errors.New("carrier: negotiation vetoed")
	// ErrTransportFailure: the underlying stream broke or was interrupted.
	ErrTransportFailure = errors.New("carrier: transport failure")
	// ErrElectionInconsistency: a multicast promotion found no usable successor.
	ErrElectionInconsistency = errors.New("carrier: election inconsistency")
)

// Vetof returns an error matching ErrNegotiationVetoed. format may use %w.
func Vetof(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNegotiationVetoed}, args...)...)
}
