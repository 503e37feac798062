// Package mcast implements the multicast carrier. Several local senders
// whose output port and interface match share one group: the one elected in
// the shared table owns the OS socket and actually sends, the others hold an
// inactive group stream and their writes are skipped. Receivers learn the
// group from the extra header and join it directly.
package mcast

import (
	"fmt"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"

	"portbus/pkg/carrier"
	"portbus/pkg/election"
	"portbus/pkg/nameservice"
	"portbus/pkg/observability"
	"portbus/pkg/stream"
)

const Name = "mcast"

var Specifier = carrier.SpecifierOf("MULTICAS")

// PropOwner is set on a group's name-service record by the instance that
// registered it.
const PropOwner = "multicast"

// Table is the election table shared by every sender in a process.
type Table = election.Table[*Carrier]

func NewTable() *Table { return election.New[*Carrier]() }

// Env holds what all instances of one prototype share.
type Env struct {
	Table   *Table
	Oracle  nameservice.Oracle
	Joiner  Joiner
	Local   net.IP // interface senders and receivers use
	Logger  *zap.Logger
	Metrics *observability.Metrics

	// mu orders "claim the key, then register the group" against other
	// senders resolving it.
	mu sync.Mutex
}

type Carrier struct {
	carrier.Base
	env *Env

	key   string
	from  string
	local net.IP // cached when the key is computed

	mu     sync.Mutex
	group  *net.UDPAddr
	gs     *stream.Group
	closed bool
}

// New returns a prototype. Missing Env fields get defaults: a fresh table,
// the UDP joiner and the first multicast-capable interface.
func New(env *Env) *Carrier {
	if env.Table == nil {
		env.Table = NewTable()
	}
	if env.Joiner == nil {
		env.Joiner = UDPJoiner{TTL: 1, Loopback: true}
	}
	if env.Local == nil {
		env.Local = DefaultInterfaceIP()
	}
	if env.Logger == nil {
		env.Logger = zap.NewNop()
	}
	return &Carrier{
		Base: carrier.Base{
			Caps: carrier.Capabilities{
				Name:           Name,
				Connectionless: true,
				CanEscape:      true,
			},
			Spec: Specifier,
		},
		env: env,
	}
}

func (c *Carrier) Create() carrier.Carrier { return New(c.env) }

// Key is the election key: the sending port plus the interface it sends on.
func Key(from string, local net.IP) string { return from + "/net=" + local.String() }

func (c *Carrier) Key() string { return c.key }

// IsElect reports whether this instance owns its group. The first instance
// to ask for an unowned key claims it.
func (c *Carrier) IsElect() bool {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed || c.key == "" {
		return false
	}
	return c.env.Table.IsHolder(c.key, c)
}

func (c *Carrier) IsActive() bool { return c.IsElect() }

// Group returns the resolved group address, nil before SendHeader or
// ExpectExtraHeader.
func (c *Carrier) Group() *net.UDPAddr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.group
}

func (c *Carrier) PrepareSend(s carrier.State) error {
	c.from = s.Route().From
	if c.from == "" {
		return carrier.Vetof("mcast: sender needs a port name")
	}
	c.local = c.env.Local
	c.key = Key(c.from, c.local)
	c.env.Table.Add(c.key, c)
	return nil
}

// SendHeader writes the default header and settles the group: the elected
// instance registers it, the others look it up.
func (c *Carrier) SendHeader(s carrier.State) error {
	if err := carrier.DefaultSendHeader(s, Specifier); err != nil {
		return err
	}
	group, err := c.resolveGroup()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.group = group
	c.mu.Unlock()
	return nil
}

func (c *Carrier) resolveGroup() (*net.UDPAddr, error) {
	c.env.mu.Lock()
	defer c.env.mu.Unlock()
	if c.IsElect() {
		ct, err := c.env.Oracle.Register(nameservice.Contact{Name: c.key, Carrier: Name})
		if err != nil {
			return nil, fmt.Errorf("mcast: register group %s: %w", c.key, err)
		}
		if err := c.env.Oracle.SetProperty(c.key, PropOwner, "owner"); err != nil {
			c.env.Logger.Debug("mcast: set owner property", zap.Error(err))
		}
		return contactAddr(ct)
	}
	ct, err := c.env.Oracle.Resolve(nameservice.Contact{Name: c.key, Carrier: Name})
	if err == nil {
		return contactAddr(ct)
	}
	// the holder already knows the group
	if h, ok := c.env.Table.Holder(c.key); ok && h != c {
		if g := h.Group(); g != nil {
			return g, nil
		}
	}
	return nil, fmt.Errorf("mcast: resolve group %s: %w", c.key, err)
}

func contactAddr(ct nameservice.Contact) (*net.UDPAddr, error) {
	ip := net.ParseIP(ct.Host)
	if ip == nil || !ip.IsMulticast() {
		return nil, carrier.Vetof("mcast: name service gave non-multicast host %q", ct.Host)
	}
	return &net.UDPAddr{IP: ip, Port: ct.Port}, nil
}

func (c *Carrier) WriteExtraHeader(s carrier.State) error {
	h, err := encodeHeader(c.Group())
	if err != nil {
		return err
	}
	_, err = s.Stream().Write(h[:])
	return err
}

// ExpectReplyToHeader waits for the receiver's echo and moves the
// connection onto the group stream. Only the elected instance opens a
// socket.
func (c *Carrier) ExpectReplyToHeader(s carrier.State) error {
	var got carrier.Specifier
	if _, err := io.ReadFull(s.Stream(), got[:]); err != nil {
		return err
	}
	if got != Specifier {
		return carrier.Vetof("mcast: reply header %q", got.String())
	}
	c.mu.Lock()
	gs := stream.NewGroup(nil, c.group)
	c.gs = gs
	c.mu.Unlock()
	if err := swap(s, gs); err != nil {
		return err
	}
	if c.IsElect() {
		return c.takeElection(c.local)
	}
	return nil
}

// takeElection opens the group socket on local, unless this instance is
// already sending. An instance promoted before its stream exists joins when
// the stream is attached.
func (c *Carrier) takeElection(local net.IP) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.gs == nil || c.gs.Active() {
		return nil
	}
	pc, err := c.env.Joiner.Join(c.group, local)
	if err != nil {
		return err
	}
	if err := c.gs.Activate(pc); err != nil {
		pc.Close()
		return err
	}
	c.env.Logger.Debug("mcast: joined group as owner",
		zap.String("key", c.key), zap.Stringer("group", c.group))
	return nil
}

func (c *Carrier) ExpectExtraHeader(s carrier.State) error {
	g, err := readHeader(s.Stream())
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.group = g
	c.mu.Unlock()
	return nil
}

// RespondToHeader joins the announced group, confirms, and reads from the
// group from then on.
func (c *Carrier) RespondToHeader(s carrier.State) error {
	group := c.Group()
	pc, err := c.env.Joiner.Join(group, c.env.Local)
	if err != nil {
		return err
	}
	st := s.Stream()
	if _, err := st.Write(Specifier[:]); err == nil {
		err = st.Flush()
	}
	if err != nil {
		pc.Close()
		return err
	}
	gs := stream.NewGroup(pc, group)
	c.mu.Lock()
	c.gs = gs
	c.mu.Unlock()
	return swap(s, gs)
}

func swap(s carrier.State, next stream.Stream) error {
	prev, err := s.SwapStream(next)
	if err != nil {
		next.Close()
		return err
	}
	if err := prev.Close(); err != nil {
		s.Logger().Debug("closing bootstrap stream", zap.Error(err))
	}
	return nil
}

// Close leaves the election. A holder hands its group to the next sender,
// which joins with the local address cached here; the last one out releases
// the group's name.
func (c *Carrier) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	if c.key == "" {
		return nil
	}

	res := c.env.Table.Remove(c.key, c)
	log := c.env.Logger.With(zap.String("key", c.key))
	switch {
	case res.Promoted:
		c.env.Metrics.RecordPromotion()
		if err := res.Successor.takeElection(c.local); err != nil {
			log.Warn("mcast: promoted sender could not join",
				zap.Error(fmt.Errorf("%w: %w", carrier.ErrElectionInconsistency, err)))
		}
	case res.Released && res.WasHolder:
		if err := c.env.Oracle.Unregister(c.key); err != nil {
			log.Warn("mcast: release group name", zap.Error(err))
			return nil
		}
		c.env.Metrics.RecordGroupReleased()
		log.Debug("mcast: group released")
	}
	return nil
}
