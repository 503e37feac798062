package protocol

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"portbus/pkg/carrier"
	"portbus/pkg/stream"
	"portbus/pkg/wire"
)

// Phase is where a connection is in its lifecycle.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseSendingHeader
	PhaseAwaitingReply
	PhaseExpectingHeader
	PhaseEstablished
	PhaseStreaming
	PhaseClosing
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSendingHeader:
		return "sending-header"
	case PhaseAwaitingReply:
		return "awaiting-reply"
	case PhaseExpectingHeader:
		return "expecting-header"
	case PhaseEstablished:
		return "established"
	case PhaseStreaming:
		return "streaming"
	case PhaseClosing:
		return "closing"
	case PhaseClosed:
		return "closed"
	}
	return "unknown"
}

var errNilStream = errors.New("protocol: cannot attach a nil stream")

// connState is the carrier-facing view of a connection. It owns the current
// stream together with the reader and writer bound to it; all three change
// together under mu.
type connState struct {
	ctx  context.Context
	role carrier.Role
	log  *zap.Logger

	mu          sync.Mutex
	route       carrier.Route
	st          stream.Stream
	r           *wire.Reader
	w           *wire.Writer
	interrupted bool
}

func newConnState(st stream.Stream, log *zap.Logger) *connState {
	return &connState{
		ctx: context.Background(),
		log: log,
		st:  st,
		r:   wire.NewReader(st),
		w:   wire.NewWriter(st),
	}
}

func (s *connState) Context() context.Context { return s.ctx }
func (s *connState) Role() carrier.Role       { return s.role }
func (s *connState) Logger() *zap.Logger      { return s.log }

func (s *connState) Route() carrier.Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.route
}

func (s *connState) SetRoute(r carrier.Route) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.route = r
}

func (s *connState) Stream() stream.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

func (s *connState) Reader() *wire.Reader {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r
}

func (s *connState) Writer() *wire.Writer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w
}

// SwapStream replaces the stream in one step. The text-mode setting of the
// writer carries over; the reader starts fresh on the new stream. A stream
// attached after an interrupt is interrupted too.
func (s *connState) SwapStream(next stream.Stream) (stream.Stream, error) {
	if next == nil {
		return nil, errNilStream
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.st
	text := s.w.TextMode()
	mode := s.r.Mode()
	s.st = next
	s.r = wire.NewReader(next)
	s.w = wire.NewWriter(next)
	s.w.ConvertTextMode(text)
	if mode == wire.ModeText {
		s.r.SetMode(mode)
	}
	if s.interrupted {
		next.Interrupt()
	}
	s.log.Debug("stream swapped",
		zap.Stringer("local", next.LocalAddr()),
		zap.Stringer("remote", next.RemoteAddr()))
	return prev, nil
}

func (s *connState) setTextMode() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.ConvertTextMode(true)
	s.r.SetMode(wire.ModeText)
}

func (s *connState) interrupt() {
	s.mu.Lock()
	s.interrupted = true
	st := s.st
	s.mu.Unlock()
	st.Interrupt()
}
