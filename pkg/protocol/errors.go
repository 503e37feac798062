package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"portbus/pkg/carrier"
	"portbus/pkg/stream"
	"portbus/pkg/wire"
)

var (
	// ErrRejected is returned by Write when the receiver answered FAIL. The
	// connection stays usable.
	ErrRejected = errors.New("protocol: message rejected by receiver")
	// ErrNotEstablished is returned for steady-state calls before a
	// successful Open or Accept, or after Close.
	ErrNotEstablished = errors.New("protocol: connection not established")
)

// Classify maps any hook or stream error to exactly one member of the
// taxonomy: header mismatch, veto, decode error, transport failure or
// election inconsistency. Errors already carrying one are returned as is.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, carrier.ErrHeaderMismatch),
		errors.Is(err, carrier.ErrNegotiationVetoed),
		errors.Is(err, carrier.ErrTransportFailure),
		errors.Is(err, carrier.ErrElectionInconsistency):
		return err
	case errors.Is(err, stream.ErrInterrupted), errors.Is(err, stream.ErrClosed):
		// a read torn by an interrupt is not a malformed value
		return fmt.Errorf("%w: %w", carrier.ErrTransportFailure, err)
	case errors.Is(err, wire.ErrDecode):
		return err
	case isTransport(err):
		return fmt.Errorf("%w: %w", carrier.ErrTransportFailure, err)
	}
	return fmt.Errorf("%w: %w", carrier.ErrNegotiationVetoed, err)
}

func isTransport(err error) bool {
	var ne net.Error
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, stream.ErrInactive) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.As(err, &ne)
}

// Outcome is the metrics label for a negotiation result.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, carrier.ErrHeaderMismatch):
		return "header_mismatch"
	case errors.Is(err, carrier.ErrElectionInconsistency):
		return "election"
	case errors.Is(err, carrier.ErrTransportFailure):
		return "transport"
	case errors.Is(err, wire.ErrDecode):
		return "decode"
	}
	return "vetoed"
}
