// Package port is the application-facing layer: named input ports that
// accept connections and run a handler per message, and output
// connections opened by name through the name service.
package port

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"portbus/pkg/carrier"
	"portbus/pkg/carriers"
	"portbus/pkg/carriers/local"
	"portbus/pkg/config"
	"portbus/pkg/nameservice"
	"portbus/pkg/observability"
	"portbus/pkg/protocol"
	"portbus/pkg/transport"
	"portbus/pkg/transports"
)

var (
	ErrPortInUse  = errors.New("port: name already listening on this node")
	ErrNodeClosed = errors.New("port: node closed")
)

// Auto asks Connect to pick the carrier.
const Auto = "auto"

// Node owns the carrier registry, the name service client and the bootstrap
// transport shared by every port of the process.
type Node struct {
	cfg     *config.Config
	reg     *carrier.Registry
	oracle  nameservice.Oracle
	tr      transport.Transport
	listen  string
	log     *zap.Logger
	metrics *observability.Metrics
	lease   time.Duration

	ownOracle *nameservice.Memory

	mu     sync.Mutex
	ports  map[string]*InputPort
	dial   map[string]transport.Transport
	closed bool
}

type Option func(*Node)

// WithRegistry uses reg instead of one built from the carriers config.
func WithRegistry(reg *carrier.Registry) Option { return func(n *Node) { n.reg = reg } }

// WithOracle shares a name service between nodes.
func WithOracle(o nameservice.Oracle) Option { return func(n *Node) { n.oracle = o } }

// WithTransport overrides the configured bootstrap transport.
func WithTransport(t transport.Transport) Option { return func(n *Node) { n.tr = t } }

func WithLogger(l *zap.Logger) Option { return func(n *Node) { n.log = l } }

func WithMetrics(m *observability.Metrics) Option { return func(n *Node) { n.metrics = m } }

// WithLease overrides nameservice.lease_ms; 0 disables leasing.
func WithLease(d time.Duration) Option { return func(n *Node) { n.lease = d } }

// NewNode builds a node from cfg. Anything not supplied through options is
// created from the config: an in-memory oracle, the node's transport kind
// and a registry holding the enabled built-in carriers.
func NewNode(cfg *config.Config, opts ...Option) (*Node, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	n := &Node{
		cfg:   cfg,
		lease: cfg.NameService.Lease(),
		log:   zap.L(),
		ports: make(map[string]*InputPort),
		dial:  make(map[string]transport.Transport),
	}
	for _, o := range opts {
		o(n)
	}
	n.log = n.log.With(zap.String("node", cfg.Node.Name))

	if n.oracle == nil {
		mopts := []nameservice.MemoryOption{
			nameservice.WithLogger(n.log),
			nameservice.WithPortBase(cfg.Multicast.PortBase),
			nameservice.WithMaxBytes(cfg.NameService.MaxBytes),
		}
		if ip := net.ParseIP(cfg.Multicast.GroupBase); ip != nil {
			mopts = append(mopts, nameservice.WithGroupBase(ip))
		}
		n.ownOracle = nameservice.NewMemory(mopts...)
		n.oracle = n.ownOracle
		if err := n.metrics.WatchStore(cfg.Node.Name, "nameservice", n.ownOracle.Stats); err != nil {
			n.log.Warn("nameservice stats not exported", zap.Error(err))
		}
	}
	if n.tr == nil {
		tr, err := transports.NewByKind(cfg.Node.Transport)
		if err != nil {
			n.release()
			return nil, fmt.Errorf("node transport: %w", err)
		}
		n.tr = tr
	}
	if tc, ok := cfg.Transport(n.tr.Kind().String()); ok {
		n.listen = tc.Listen
	}
	if n.listen == "" {
		n.listen = defaultListen(n.tr.Kind())
	}
	n.dial[n.tr.Kind().String()] = n.tr

	if n.reg == nil {
		n.reg = carrier.NewRegistry(carrier.WithLogger(n.log))
		deps := carriers.Deps{Oracle: n.oracle, Logger: n.log, Metrics: n.metrics}
		if err := carriers.Register(n.reg, cfg.Carriers, cfg.Multicast, deps); err != nil {
			n.release()
			return nil, err
		}
	}
	return n, nil
}

func defaultListen(k transport.Kind) string {
	switch k {
	case transport.KindMem:
		return "inproc"
	case transport.KindWinPipe:
		return `\\.\pipe\portbus`
	}
	return "127.0.0.1:0"
}

func (n *Node) release() {
	if n.ownOracle != nil {
		n.ownOracle.Close()
	}
}

func (n *Node) Registry() *carrier.Registry    { return n.reg }
func (n *Node) Oracle() nameservice.Oracle     { return n.oracle }
func (n *Node) Transport() transport.Transport { return n.tr }

// Ports returns the names of the open input ports, sorted.
func (n *Node) Ports() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.ports))
	for name := range n.ports {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

func (n *Node) hasPort(name string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.ports[name]
	return ok
}

// Listen opens an input port called name. Every connection is negotiated,
// then each value read is passed to h and its result sent back as the
// reply. The port closes when ctx ends or Close is called.
func (n *Node) Listen(ctx context.Context, name string, h Handler) (*InputPort, error) {
	if name == "" {
		return nil, errors.New("port: empty port name")
	}
	if h == nil {
		return nil, errors.New("port: nil handler")
	}
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil, ErrNodeClosed
	}
	if _, ok := n.ports[name]; ok {
		n.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrPortInUse, name)
	}
	// reserve the name while the listener comes up
	n.ports[name] = nil
	n.mu.Unlock()

	p, err := n.openPort(ctx, name, h)
	n.mu.Lock()
	switch {
	case err != nil:
		delete(n.ports, name)
	case n.closed:
		delete(n.ports, name)
		err = ErrNodeClosed
	default:
		n.ports[name] = p
	}
	n.mu.Unlock()
	if err != nil {
		if p != nil {
			_ = p.Close()
		}
		return nil, err
	}
	p.wg.Add(1)
	go p.acceptLoop()
	if lo, ok := n.oracle.(nameservice.Leaser); ok && n.lease > 0 {
		p.wg.Add(1)
		go p.renewLoop(lo, n.lease)
	}
	context.AfterFunc(p.ctx, func() { _ = p.Close() })
	n.log.Info("input port listening",
		zap.String("port", name),
		zap.Stringer("addr", p.l.Addr()),
		zap.Stringer("contact", p.contact))
	return p, nil
}

func (n *Node) openPort(ctx context.Context, name string, h Handler) (*InputPort, error) {
	addr := n.listen
	if !n.tr.Kind().Addressed() {
		addr = addr + "/" + name
	}
	pctx, cancel := context.WithCancel(ctx)
	l, err := n.tr.Listen(pctx, addr)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("listen %s on %s: %w", name, addr, err)
	}
	c, err := contactFor(name, n.tr.Kind(), l.Addr())
	if err != nil {
		cancel()
		_ = l.Close()
		return nil, err
	}
	c.Carrier = n.cfg.Carriers.Default
	c, err = n.oracle.Register(c)
	if err == nil {
		if lo, ok := n.oracle.(nameservice.Leaser); ok && n.lease > 0 {
			if err = lo.Lease(name, n.lease); err != nil {
				_ = n.oracle.Unregister(name)
			}
		}
	}
	if err != nil {
		cancel()
		_ = l.Close()
		return nil, fmt.Errorf("register %s: %w", name, err)
	}
	return &InputPort{
		node:    n,
		name:    name,
		h:       h,
		l:       l,
		contact: c,
		ctx:     pctx,
		cancel:  cancel,
		log:     n.log.With(zap.String("port", name)),
		conns:   make(map[*protocol.Protocol]struct{}),
	}, nil
}

// contactFor describes where a listener can be reached. Opaque addresses
// (mem, winpipe) go in Host with a zero Port.
func contactFor(name string, k transport.Kind, a net.Addr) (nameservice.Contact, error) {
	c := nameservice.Contact{Name: name, Transport: k.String()}
	if !k.Addressed() {
		c.Host = a.String()
		return c, nil
	}
	host, port, err := net.SplitHostPort(a.String())
	if err != nil {
		return c, fmt.Errorf("listener address %s: %w", a, err)
	}
	if ip := net.ParseIP(host); ip == nil || !ip.IsUnspecified() {
		// an unspecified host is left as a wildcard for the oracle to fill
		c.Host = host
	}
	c.Port, err = strconv.Atoi(port)
	return c, err
}

// dialAddress is the inverse of contactFor.
func dialAddress(c nameservice.Contact) string {
	if c.Port == 0 {
		return c.Host
	}
	return c.Address()
}

func (n *Node) removePort(p *InputPort) {
	n.mu.Lock()
	if n.ports[p.name] == p {
		delete(n.ports, p.name)
	}
	n.mu.Unlock()
}

func (n *Node) transportFor(kind string) (transport.Transport, error) {
	if kind == "" {
		return n.tr, nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if t, ok := n.dial[kind]; ok {
		return t, nil
	}
	t, err := transports.NewByKind(kind)
	if err != nil {
		return nil, err
	}
	n.dial[kind] = t
	return t, nil
}

// chooseCarrier resolves Auto: local for a port of this very node, then the
// carrier the destination registered, then the configured default.
func (n *Node) chooseCarrier(requested string, to nameservice.Contact) string {
	if requested != "" && requested != Auto {
		return requested
	}
	if n.hasPort(to.Name) && slices.Contains(n.reg.Names(), local.Name) {
		return local.Name
	}
	if to.Carrier != "" {
		return to.Carrier
	}
	if n.cfg.Carriers.Default != "" {
		return n.cfg.Carriers.Default
	}
	return "tcp"
}

// Connect opens a connection from the port name from to the input port to.
// carrierName may be empty or Auto.
func (n *Node) Connect(ctx context.Context, from, to, carrierName string) (*Connection, error) {
	n.mu.Lock()
	closed := n.closed
	n.mu.Unlock()
	if closed {
		return nil, ErrNodeClosed
	}
	c, err := n.oracle.Resolve(nameservice.Contact{Name: to})
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", to, err)
	}
	tr, err := n.transportFor(c.Transport)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", to, err)
	}
	route := carrier.Route{From: from, To: to, Carrier: n.chooseCarrier(carrierName, c)}

	dctx, cancel := context.WithTimeout(ctx, n.cfg.Node.DialTimeout())
	defer cancel()
	st, err := tr.Dial(dctx, dialAddress(c))
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s at %s: %w", carrier.ErrTransportFailure, to, dialAddress(c), err)
	}
	p := protocol.New(n.reg, st, protocol.WithLogger(n.log), protocol.WithMetrics(n.metrics))
	if err := p.Open(dctx, route); err != nil {
		return nil, fmt.Errorf("open %s: %w", route, err)
	}
	n.log.Debug("output connection open", zap.Stringer("route", p.Route()), zap.Stringer("conn", p.ID()))
	return &Connection{p: p}, nil
}

// Close closes every input port. Connections returned by Connect belong to
// their callers and stay open.
func (n *Node) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	ports := make([]*InputPort, 0, len(n.ports))
	for _, p := range n.ports {
		if p != nil {
			ports = append(ports, p)
		}
	}
	n.mu.Unlock()

	var errs []error
	for _, p := range ports {
		errs = append(errs, p.Close())
	}
	n.release()
	return errors.Join(errs...)
}
