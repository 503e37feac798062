// Package protocol drives one connection through carrier negotiation and
// then carries tagged values over whatever stream the carrier settled on.
//
// The two ends are asymmetric. The sender calls Open with the route it
// wants; the receiver calls Accept and learns the carrier by sniffing the
// first eight bytes. Negotiation either reaches PhaseEstablished or fails
// with a single error, after which the connection is closed; no partially
// negotiated connection is ever returned.
package protocol

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"go.uber.org/zap"

	"portbus/pkg/carrier"
	"portbus/pkg/observability"
	"portbus/pkg/stream"
	"portbus/pkg/wire"
)

// Protocol is one connection end. Read may run concurrently with Write,
// Interrupt and Close; at most one Write or Reply is in flight at a time.
type Protocol struct {
	id      xid.ID
	reg     *carrier.Registry
	log     *zap.Logger
	metrics *observability.Metrics

	cs    *connState
	c     carrier.Carrier
	caps  carrier.Capabilities
	phase atomic.Int32

	wmu sync.Mutex
	rmu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

type Option func(*Protocol)

func WithLogger(l *zap.Logger) Option { return func(p *Protocol) { p.log = l } }

func WithMetrics(m *observability.Metrics) Option {
	return func(p *Protocol) { p.metrics = m }
}

// New wraps a bootstrap stream. The Protocol owns st from here on.
func New(reg *carrier.Registry, st stream.Stream, opts ...Option) *Protocol {
	p := &Protocol{id: xid.New(), reg: reg, log: zap.L(), closed: make(chan struct{})}
	for _, o := range opts {
		o(p)
	}
	p.log = p.log.With(zap.Stringer("conn", p.id))
	p.cs = newConnState(st, p.log)
	return p
}

func (p *Protocol) ID() xid.ID                         { return p.id }
func (p *Protocol) Phase() Phase                       { return Phase(p.phase.Load()) }
func (p *Protocol) Route() carrier.Route               { return p.cs.Route() }
func (p *Protocol) Capabilities() carrier.Capabilities { return p.caps }
func (p *Protocol) Stream() stream.Stream              { return p.cs.Stream() }

// Done is closed once the connection is closed.
func (p *Protocol) Done() <-chan struct{} { return p.closed }

func (p *Protocol) setPhase(ph Phase) { p.phase.Store(int32(ph)) }

// watch interrupts the connection if ctx ends before stop is called.
func (p *Protocol) watch(ctx context.Context) (stop func() bool) {
	return context.AfterFunc(ctx, p.Interrupt)
}

// Open negotiates route.Carrier as the sending side.
func (p *Protocol) Open(ctx context.Context, route carrier.Route) error {
	if p.Phase() != PhaseIdle {
		return fmt.Errorf("protocol: open in phase %s", p.Phase())
	}
	start := time.Now()
	defer p.watch(ctx)()
	p.cs.ctx = ctx
	p.cs.role = carrier.RoleSender
	p.cs.SetRoute(route)
	p.setPhase(PhaseSendingHeader)

	proto, err := p.reg.ChooseByName(route.Carrier)
	if err != nil {
		return p.negotiationFailed(ctx, "choose carrier", err, route.Carrier, start)
	}
	p.bind(proto.Create())

	steps := []struct {
		name string
		fn   func(carrier.State) error
	}{
		{"prepare send", p.c.PrepareSend},
		{"send header", p.c.SendHeader},
		{"write extra header", p.c.WriteExtraHeader},
		{"flush header", func(s carrier.State) error { return s.Stream().Flush() }},
	}
	for _, s := range steps {
		if err := s.fn(p.cs); err != nil {
			return p.negotiationFailed(ctx, s.name, err, p.caps.Name, start)
		}
	}
	p.setPhase(PhaseAwaitingReply)
	if err := p.c.ExpectReplyToHeader(p.cs); err != nil {
		return p.negotiationFailed(ctx, "expect reply to header", err, p.caps.Name, start)
	}
	return p.established(start)
}

// Accept negotiates as the receiving side for the local port named local.
func (p *Protocol) Accept(ctx context.Context, local string) error {
	if p.Phase() != PhaseIdle {
		return fmt.Errorf("protocol: accept in phase %s", p.Phase())
	}
	start := time.Now()
	defer p.watch(ctx)()
	p.cs.ctx = ctx
	p.cs.role = carrier.RoleReceiver
	p.cs.SetRoute(carrier.Route{To: local})
	p.setPhase(PhaseExpectingHeader)

	var spec carrier.Specifier
	if _, err := io.ReadFull(p.cs.Stream(), spec[:]); err != nil {
		return p.negotiationFailed(ctx, "read specifier", err, "", start)
	}
	proto, err := p.reg.ChooseByHeader(spec)
	if err != nil {
		return p.negotiationFailed(ctx, "sniff header", err, "", start)
	}
	p.bind(proto.Create())
	p.cs.SetRoute(p.cs.Route().WithCarrier(p.caps.Name))

	steps := []struct {
		name string
		fn   func(carrier.State) error
	}{
		{"expect sender specifier", p.c.ExpectSenderSpecifier},
		{"expect extra header", p.c.ExpectExtraHeader},
		{"respond to header", p.c.RespondToHeader},
		{"flush response", func(s carrier.State) error { return s.Stream().Flush() }},
	}
	for _, s := range steps {
		if err := s.fn(p.cs); err != nil {
			return p.negotiationFailed(ctx, s.name, err, p.caps.Name, start)
		}
	}
	return p.established(start)
}

func (p *Protocol) bind(c carrier.Carrier) {
	p.c = c
	p.caps = c.Capabilities()
}

func (p *Protocol) established(start time.Time) error {
	if p.caps.TextMode {
		p.cs.setTextMode()
	}
	// hooks only see the caller's context while negotiating
	p.cs.ctx = context.Background()
	p.setPhase(PhaseEstablished)
	p.metrics.RecordNegotiation(p.caps.Name, p.cs.role.String(), "ok", time.Since(start))
	p.metrics.ConnectionOpened(p.caps.Name)
	p.log.Debug("connection established",
		zap.Stringer("route", p.Route()),
		zap.Stringer("role", p.cs.role))
	return nil
}

func (p *Protocol) negotiationFailed(ctx context.Context, step string, err error, carrierName string, start time.Time) error {
	err = p.abort(ctx, step, err)
	p.metrics.RecordNegotiation(carrierName, p.cs.role.String(), Outcome(err), time.Since(start))
	return err
}

// abort classifies err, tears the connection down and returns the error the
// caller sees.
func (p *Protocol) abort(ctx context.Context, step string, err error) error {
	cerr := Classify(err)
	if ctxErr := context.Cause(ctx); ctxErr != nil {
		cerr = fmt.Errorf("%w (%w)", cerr, ctxErr)
	}
	p.log.Debug("connection aborted", zap.String("step", step), zap.Error(cerr))
	p.Close()
	return fmt.Errorf("%s: %w", step, cerr)
}

func (p *Protocol) steady() bool {
	switch p.Phase() {
	case PhaseEstablished, PhaseStreaming:
		return true
	}
	return false
}

// Write sends one value. For carriers that require an ack it waits for the
// receiver's answer and returns the reply carried by it, or ErrRejected.
// Writes on an inactive carrier are dropped and return an invalid Value.
func (p *Protocol) Write(ctx context.Context, v wire.Value) (wire.Value, error) {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	if !p.steady() {
		return wire.Value{}, ErrNotEstablished
	}
	if !p.c.IsActive() {
		return wire.Value{}, nil
	}
	defer p.watch(ctx)()
	p.setPhase(PhaseStreaming)
	if err := p.c.Write(p.cs, v); err != nil {
		return wire.Value{}, p.abort(ctx, "write", err)
	}
	p.metrics.RecordMessage(p.caps.Name, "out")
	if !p.caps.RequiresAck {
		return wire.Value{}, nil
	}
	ack, err := p.c.ExpectAck(p.cs)
	if err != nil {
		return wire.Value{}, p.abort(ctx, "expect ack", err)
	}
	if !ack.OK {
		p.metrics.RecordRejected(p.caps.Name)
		if ack.Reason != "" {
			return wire.Value{}, fmt.Errorf("%w: %s", ErrRejected, ack.Reason)
		}
		return wire.Value{}, ErrRejected
	}
	return ack.Reply, nil
}

// Read receives the next value. When the carrier requires an ack the caller
// must answer it with Reply before the sender can continue.
func (p *Protocol) Read(ctx context.Context) (wire.Value, error) {
	p.rmu.Lock()
	defer p.rmu.Unlock()
	if !p.steady() {
		return wire.Value{}, ErrNotEstablished
	}
	defer p.watch(ctx)()
	p.setPhase(PhaseStreaming)
	v, err := p.c.Read(p.cs)
	if err != nil {
		return wire.Value{}, p.abort(ctx, "read", err)
	}
	p.metrics.RecordMessage(p.caps.Name, "in")
	return v, nil
}

// Reply answers the last value read. A nil handlerErr sends OK with reply
// (which may be the zero Value); otherwise FAIL with the error text. It is
// a no-op for carriers without acks.
func (p *Protocol) Reply(reply wire.Value, handlerErr error) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	if !p.steady() {
		return ErrNotEstablished
	}
	if !p.caps.RequiresAck {
		return nil
	}
	ack := carrier.Ack{OK: true}
	if p.caps.SupportsReply {
		ack.Reply = reply
	}
	if handlerErr != nil {
		ack = carrier.Ack{Reason: handlerErr.Error()}
	}
	if err := p.c.SendAck(p.cs, ack); err != nil {
		return p.abort(context.Background(), "send ack", err)
	}
	return nil
}

// Interrupt unblocks any goroutine blocked on the connection. It is safe to
// call at any time, concurrently with Read and Write.
func (p *Protocol) Interrupt() {
	p.cs.interrupt()
}

// Close interrupts the connection, releases the carrier and the stream, and
// leaves the connection in PhaseClosed. Later calls do nothing.
func (p *Protocol) Close() error {
	var err error
	p.closeOnce.Do(func() {
		wasUp := p.steady()
		p.setPhase(PhaseClosing)
		p.Interrupt()
		if p.c != nil {
			if cerr := p.c.Close(); cerr != nil {
				p.log.Debug("carrier close", zap.Error(cerr))
			}
		}
		prev, _ := p.cs.SwapStream(stream.Null{})
		err = prev.Close()
		p.setPhase(PhaseClosed)
		if wasUp {
			p.metrics.ConnectionClosed(p.caps.Name)
		}
		close(p.closed)
	})
	return err
}
