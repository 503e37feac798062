package nameservice

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"portbus/pkg/codec"
	"portbus/pkg/memkv"
)

const (
	contactPrefix = "contact/"
	groupPrefix   = "group/"
	propPrefix    = "prop/"

	// McastCarrier is the carrier name that gets a group address allocated.
	McastCarrier = "mcast"

	maxGroups = 1 << 16
)

var ErrGroupsExhausted = errors.New("nameservice: multicast group range exhausted")

type MemoryOption func(*Memory)

// WithGroupBase sets the first multicast group handed out.
func WithGroupBase(ip net.IP) MemoryOption {
	return func(m *Memory) {
		if v4 := ip.To4(); v4 != nil {
			m.groupBase = binary.BigEndian.Uint32(v4)
		}
	}
}

// WithPortBase sets the port paired with the first group.
func WithPortBase(p int) MemoryOption { return func(m *Memory) { m.portBase = p } }

// WithHost sets the host filled into wildcard registrations.
func WithHost(h string) MemoryOption { return func(m *Memory) { m.host = h } }

func WithLogger(l *zap.Logger) MemoryOption { return func(m *Memory) { m.log = l } }

// WithMaxBytes caps the encoded size of everything the oracle stores.
// Registrations past the cap fail with memkv.ErrFull.
func WithMaxBytes(n uint64) MemoryOption { return func(m *Memory) { m.maxBytes = n } }

// Memory is an in-process Oracle. Records are CBOR encoded into a memkv
// store; multicast registrations are given the lowest free group above the
// configured base.
type Memory struct {
	mu        sync.Mutex // serializes allocation against release
	kv        *memkv.Store
	codec     codec.Codec
	log       *zap.Logger
	host      string
	groupBase uint32
	portBase  int
	maxBytes  uint64
}

var (
	_ Oracle = (*Memory)(nil)
	_ Leaser = (*Memory)(nil)
)

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		codec:     codec.MustCBOR(),
		log:       zap.NewNop(),
		host:      "127.0.0.1",
		groupBase: binary.BigEndian.Uint32(net.IPv4(239, 255, 0, 1).To4()),
		portBase:  11000,
	}
	for _, o := range opts {
		o(m)
	}
	m.kv = memkv.New(memkv.Options{Shards: 16, MaxBytes: m.maxBytes})
	return m
}

func (m *Memory) Close() { m.kv.Close() }

// Stats returns the counters of the underlying store.
func (m *Memory) Stats() memkv.Stats { return m.kv.Metrics() }

func (m *Memory) load(name string) (Contact, bool) {
	b, ok := m.kv.Get(contactPrefix + name)
	if !ok {
		return Contact{}, false
	}
	var c Contact
	if err := m.codec.Unmarshal(b, &c); err != nil {
		m.log.Warn("dropping undecodable contact record", zap.String("name", name), zap.Error(err))
		m.kv.Delete(contactPrefix + name)
		return Contact{}, false
	}
	return c, true
}

func (m *Memory) Resolve(c Contact) (Contact, error) {
	got, ok := m.load(c.Name)
	if !ok {
		return Contact{}, fmt.Errorf("%w: %q", ErrNotFound, c.Name)
	}
	return got, nil
}

// Register stores c, filling wildcards. Registering a name again replaces
// its record but keeps a group it already holds.
func (m *Memory) Register(c Contact) (Contact, error) {
	if c.Name == "" {
		return Contact{}, errors.New("nameservice: empty name")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, existed := m.load(c.Name)
	if !existed {
		// leftovers of a record whose lease ran out
		m.dropProps(c.Name)
	}
	allocated := ""
	if c.Carrier == McastCarrier && c.WildcardHost() {
		if existed && prev.Carrier == McastCarrier {
			c.Host, c.Port = prev.Host, prev.Port
		} else {
			host, port, err := m.allocGroup(c.Name)
			if err != nil {
				return Contact{}, err
			}
			c.Host, allocated = host, host
			if c.Port == 0 {
				c.Port = port
			}
		}
	} else if c.WildcardHost() {
		c.Host = m.host
	}

	b, err := m.codec.Marshal(c)
	if err == nil {
		err = m.kv.Set(contactPrefix+c.Name, b, 0)
	}
	if err != nil {
		if allocated != "" {
			m.kv.Delete(groupPrefix + allocated)
		}
		return Contact{}, fmt.Errorf("nameservice: store %q: %w", c.Name, err)
	}
	m.log.Debug("registered", zap.Stringer("contact", c))
	return c, nil
}

func (m *Memory) allocGroup(owner string) (string, int, error) {
	for n := uint32(0); n < maxGroups; n++ {
		var ip [4]byte
		binary.BigEndian.PutUint32(ip[:], m.groupBase+n)
		if !net.IP(ip[:]).IsMulticast() {
			break
		}
		host := net.IP(ip[:]).String()
		ok, err := m.kv.SetNX(groupPrefix+host, []byte(owner), 0)
		if err != nil {
			return "", 0, fmt.Errorf("nameservice: allocate group: %w", err)
		}
		if ok {
			port := m.portBase + int(n)
			if port > 65535 {
				port = m.portBase
			}
			return host, port, nil
		}
	}
	return "", 0, ErrGroupsExhausted
}

// Unregister removes the record, its properties and any group it holds.
func (m *Memory) Unregister(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.load(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if c.Carrier == McastCarrier {
		if owner, ok := m.kv.Get(groupPrefix + c.Host); ok && string(owner) == name {
			m.kv.Delete(groupPrefix + c.Host)
		}
	}
	m.dropProps(name)
	m.kv.Delete(contactPrefix + name)
	m.log.Debug("unregistered", zap.String("name", name))
	return nil
}

func (m *Memory) dropProps(name string) {
	for _, k := range m.kv.Keys(propKey(name, "")) {
		m.kv.Delete(k)
	}
}

// Lease gives name's record, its properties and any group it holds a
// lifetime of ttl, or extends it. A record left to lapse is gone: Lease
// then returns ErrNotFound and the owner registers again.
func (m *Memory) Lease(name string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("nameservice: lease of %s for %q", ttl, name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.load(name)
	if !ok || !m.kv.Expire(contactPrefix+name, ttl) {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	for _, k := range m.kv.Keys(propKey(name, "")) {
		m.kv.Expire(k, ttl)
	}
	if c.Carrier == McastCarrier {
		if owner, ok := m.kv.Get(groupPrefix + c.Host); ok && string(owner) == name {
			m.kv.Expire(groupPrefix+c.Host, ttl)
		}
	}
	return nil
}

// propKey separates name and key with a NUL so that one name can never be a
// prefix match for another's properties.
func propKey(name, key string) string { return propPrefix + name + "\x00" + key }

func (m *Memory) SetProperty(name, key, value string) error {
	if !m.kv.Exists(contactPrefix + name) {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err := m.kv.Set(propKey(name, key), []byte(value), 0); err != nil {
		return fmt.Errorf("nameservice: property %q of %q: %w", key, name, err)
	}
	return nil
}

func (m *Memory) Property(name, key string) (string, bool) {
	v, ok := m.kv.Get(propKey(name, key))
	return string(v), ok
}

// List returns every registered contact sorted by name.
func (m *Memory) List() []Contact {
	keys := m.kv.Keys(contactPrefix)
	out := make([]Contact, 0, len(keys))
	for _, k := range keys {
		if c, ok := m.load(strings.TrimPrefix(k, contactPrefix)); ok {
			out = append(out, c)
		}
	}
	return out
}
