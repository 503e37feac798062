// Package nameservice is the lookup oracle ports and carriers consult to turn
// a port name into a reachable contact. The Memory oracle serves a single
// process; anything that speaks Oracle can replace it.
package nameservice

import (
	"errors"
	"net"
	"strconv"
	"time"
)

var ErrNotFound = errors.New("nameservice: name not registered")

// Contact is a resolvable endpoint. An empty or "*" Host and a zero Port are
// wildcards that Register fills in.
type Contact struct {
	Name    string `cbor:"name" json:"name"`
	Host    string `cbor:"host" json:"host"`
	Port    int    `cbor:"port" json:"port"`
	Carrier string `cbor:"carrier" json:"carrier"`
	// Transport is the bootstrap transport kind the port listens on.
	Transport string `cbor:"transport,omitempty" json:"transport,omitempty"`
}

func (c Contact) WildcardHost() bool { return c.Host == "" || c.Host == "*" }

// Address renders host:port for dialing.
func (c Contact) Address() string { return net.JoinHostPort(c.Host, strconv.Itoa(c.Port)) }

func (c Contact) String() string {
	carrier := c.Carrier
	if carrier == "" {
		carrier = "?"
	}
	return carrier + ":/" + c.Address() + " " + c.Name
}

// Oracle resolves and registers contacts.
type Oracle interface {
	Resolve(c Contact) (Contact, error)
	Register(c Contact) (Contact, error)
	Unregister(name string) error
	SetProperty(name, key, value string) error
	Property(name, key string) (string, bool)
}

// Leaser is implemented by oracles whose records lapse unless renewed.
type Leaser interface {
	Lease(name string, ttl time.Duration) error
}
