package port

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/xid"
	"go.uber.org/zap"

	"portbus/pkg/carrier"
	"portbus/pkg/nameservice"
	"portbus/pkg/protocol"
	"portbus/pkg/stream"
	"portbus/pkg/transport"
	"portbus/pkg/wire"
)

// Message is one value delivered to an input port.
type Message struct {
	Port  string
	Route carrier.Route
	Conn  xid.ID
	Value wire.Value
}

// Handler processes one message. A nil error answers OK with the returned
// reply; an error answers FAIL with its text. Carriers without acks drop
// both.
type Handler func(ctx context.Context, msg Message) (wire.Value, error)

// InputPort is a named, listening endpoint.
type InputPort struct {
	node    *Node
	name    string
	h       Handler
	l       transport.Listener
	contact nameservice.Contact
	ctx     context.Context
	cancel  context.CancelFunc
	log     *zap.Logger

	wg        sync.WaitGroup
	mu        sync.Mutex
	conns     map[*protocol.Protocol]struct{}
	closing   bool
	closeOnce sync.Once
}

func (p *InputPort) Name() string                 { return p.name }
func (p *InputPort) Contact() nameservice.Contact { return p.contact }

// Connections returns how many connections are being served.
func (p *InputPort) Connections() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

func (p *InputPort) acceptLoop() {
	defer p.wg.Done()
	for {
		st, err := p.l.Accept(p.ctx)
		if err != nil {
			if !errors.Is(err, transport.ErrListenerClosed) && p.ctx.Err() == nil {
				p.log.Warn("accept failed", zap.Error(err))
			}
			return
		}
		p.wg.Add(1)
		go p.serve(st)
	}
}

func (p *InputPort) track(c *protocol.Protocol) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closing {
		return false
	}
	p.conns[c] = struct{}{}
	return true
}

func (p *InputPort) untrack(c *protocol.Protocol) {
	p.mu.Lock()
	delete(p.conns, c)
	p.mu.Unlock()
}

// serve negotiates one connection and then feeds its values to the handler
// until the peer goes away or the port closes.
func (p *InputPort) serve(st stream.Stream) {
	defer p.wg.Done()
	n := p.node
	c := protocol.New(n.reg, st, protocol.WithLogger(p.log), protocol.WithMetrics(n.metrics))
	defer c.Close()
	if !p.track(c) {
		return
	}
	defer p.untrack(c)
	log := p.log.With(zap.Stringer("conn", c.ID()))

	actx, cancel := context.WithTimeout(p.ctx, n.cfg.Node.DialTimeout())
	err := c.Accept(actx, p.name)
	cancel()
	if err != nil {
		log.Debug("negotiation failed", zap.Error(err))
		return
	}
	log.Debug("connection accepted", zap.Stringer("route", c.Route()))

	for {
		v, err := c.Read(p.ctx)
		if err != nil {
			if p.ctx.Err() == nil && !endOfStream(err) {
				log.Warn("read failed", zap.Error(err))
			}
			return
		}
		reply, herr := p.h(p.ctx, Message{Port: p.name, Route: c.Route(), Conn: c.ID(), Value: v})
		if herr != nil {
			log.Debug("handler failed", zap.Error(herr))
		}
		if err := c.Reply(reply, herr); err != nil {
			log.Debug("reply failed", zap.Error(err))
			return
		}
	}
}

// renewLoop keeps the port's record alive in an oracle that leases it. A
// record that lapsed anyway (a stalled process, a restarted oracle) is
// registered again.
func (p *InputPort) renewLoop(o nameservice.Leaser, lease time.Duration) {
	defer p.wg.Done()
	t := time.NewTicker(lease / 3)
	defer t.Stop()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-t.C:
		}
		err := o.Lease(p.name, lease)
		if errors.Is(err, nameservice.ErrNotFound) && p.ctx.Err() == nil {
			p.log.Warn("port record lapsed, registering again")
			if _, err = p.node.oracle.Register(p.contact); err == nil {
				err = o.Lease(p.name, lease)
			}
		}
		if err != nil && p.ctx.Err() == nil {
			p.log.Warn("lease renewal failed", zap.Error(err))
		}
	}
}

func endOfStream(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, stream.ErrClosed) || errors.Is(err, stream.ErrInterrupted)
}

// Close stops accepting, interrupts every connection, waits for all its
// goroutines and withdraws the port from the name service.
func (p *InputPort) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closing = true
		conns := make([]*protocol.Protocol, 0, len(p.conns))
		for c := range p.conns {
			conns = append(conns, c)
		}
		p.mu.Unlock()

		p.cancel()
		err = p.l.Close()
		for _, c := range conns {
			c.Interrupt()
		}
		// the renewal goroutine must be gone before the record is withdrawn
		p.wg.Wait()
		if uerr := p.node.oracle.Unregister(p.name); uerr != nil && !errors.Is(uerr, nameservice.ErrNotFound) {
			err = errors.Join(err, uerr)
		}
		p.node.removePort(p)
		p.log.Info("input port closed")
	})
	return err
}
