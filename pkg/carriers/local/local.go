// Package local implements the in-process carrier. When both ports live in
// one process the connection is bootstrapped as usual, then both ends drop
// the socket and values are handed across by reference with full
// back-pressure: a sender cannot post its next value until the receiver has
// acknowledged the previous one.
package local

import (
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"

	"portbus/pkg/carrier"
	"portbus/pkg/wire"
)

const Name = "local"

var Specifier = carrier.SpecifierOf("LOCALITY")

var errNoPending = errors.New("local: no value awaiting an ack")

type Carrier struct {
	carrier.Base
	mgr *Manager

	token string
	l     *link
	sent  *envelope // sender: posted, not yet answered

	mu  sync.Mutex
	cur *envelope // receiver: read, not yet answered
}

// New returns a prototype whose instances pair through mgr.
func New(mgr *Manager) *Carrier {
	return &Carrier{
		Base: carrier.Base{
			Caps: carrier.Capabilities{
				Name:          Name,
				RequiresAck:   true,
				CanEscape:     true,
				Local:         true,
				SupportsReply: true,
			},
			Spec: Specifier,
		},
		mgr: mgr,
	}
}

func (c *Carrier) Create() carrier.Carrier { return New(c.mgr) }

// WriteExtraHeader registers the sender with the manager and tells the
// receiver where to find it: (manager-id token).
func (c *Carrier) WriteExtraHeader(s carrier.State) error {
	c.l = newLink(s.Route().From)
	c.token = c.mgr.offer(c.l)
	return s.Writer().WriteFrame(wire.List(
		wire.String(c.mgr.ID().String()),
		wire.String(c.token),
	))
}

// ExpectReplyToHeader waits for the receiver to claim this sender, then
// swaps the bootstrap stream for the pair's pipe.
func (c *Carrier) ExpectReplyToHeader(s carrier.State) error {
	var got carrier.Specifier
	if _, err := io.ReadFull(s.Stream(), got[:]); err != nil {
		return err
	}
	if got != Specifier {
		return carrier.Vetof("local: reply header %q", got.String())
	}
	select {
	case <-c.l.claimed:
	default:
		return carrier.Vetof("local: receiver answered without claiming %s", c.token)
	}
	c.token = ""
	return c.attach(s, s.Route().From)
}

func (c *Carrier) ExpectExtraHeader(s carrier.State) error {
	v, err := s.Reader().ReadFrame()
	if err != nil {
		return err
	}
	if v.Kind() != wire.KindList || v.Len() != 2 ||
		v.Index(0).Kind() != wire.KindString || v.Index(1).Kind() != wire.KindString {
		return carrier.Vetof("local: malformed extra header %s", v)
	}
	if mgr := v.Index(0).AsString(); mgr != c.mgr.ID().String() {
		return carrier.Vetof("local: sender is paired through manager %s, not %s", mgr, c.mgr.ID())
	}
	c.token = v.Index(1).AsString()
	return nil
}

// RespondToHeader claims the sender, takes its identity as the route's
// origin and moves onto the pipe.
func (c *Carrier) RespondToHeader(s carrier.State) error {
	l, ok := c.mgr.claim(c.token)
	if !ok {
		return carrier.Vetof("local: no sender pending under %s", c.token)
	}
	c.l, c.token = l, ""
	s.SetRoute(s.Route().WithFrom(l.from))
	st := s.Stream()
	if _, err := st.Write(Specifier[:]); err != nil {
		return err
	}
	if err := st.Flush(); err != nil {
		return err
	}
	return c.attach(s, s.Route().To)
}

func (c *Carrier) attach(s carrier.State, side string) error {
	prev, err := s.SwapStream(&pipe{l: c.l, side: side})
	if err != nil {
		return err
	}
	if err := prev.Close(); err != nil {
		s.Logger().Debug("closing bootstrap stream", zap.Error(err))
	}
	return nil
}

// Write posts v to the receiver. It blocks while a previous value is still
// unacknowledged.
func (c *Carrier) Write(_ carrier.State, v wire.Value) error {
	env, err := c.l.post(v)
	if err != nil {
		return err
	}
	c.sent = env
	return nil
}

func (c *Carrier) ExpectAck(carrier.State) (carrier.Ack, error) {
	env := c.sent
	if env == nil {
		return carrier.Ack{}, errNoPending
	}
	c.sent = nil
	a, waited, err := c.l.await(env)
	c.mgr.metrics.RecordHandoffWait(waited)
	return a, err
}

// Read takes the next value. A value still unanswered from the previous
// Read is acknowledged first, since asking for more means it was consumed.
func (c *Carrier) Read(carrier.State) (wire.Value, error) {
	c.answer(carrier.Ack{OK: true})
	env, err := c.l.take()
	if err != nil {
		return wire.Value{}, err
	}
	c.mu.Lock()
	c.cur = env
	c.mu.Unlock()
	return env.value, nil
}

func (c *Carrier) SendAck(_ carrier.State, a carrier.Ack) error {
	c.answer(a)
	return nil
}

func (c *Carrier) answer(a carrier.Ack) {
	c.mu.Lock()
	env := c.cur
	c.cur = nil
	c.mu.Unlock()
	if env != nil {
		c.l.settle(env, a)
	}
}

// Close revokes a sender nobody claimed and poisons the pair so the peer
// never waits on a value that will not come.
func (c *Carrier) Close() error {
	if c.token != "" && c.l != nil {
		c.mgr.Revoke(c.token)
		c.token = ""
	}
	if c.l != nil {
		c.l.poison()
	}
	return nil
}
