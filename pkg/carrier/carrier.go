// Package carrier defines the pluggable transport variants a connection can
// negotiate and the registry that finds them by name or by header.
//
// A carrier is registered once as a prototype. Every connection calls
// Create on the prototype and drives the fresh instance through the
// negotiation hooks: the sender side runs PrepareSend, SendHeader,
// WriteExtraHeader and ExpectReplyToHeader; the receiver side runs
// ExpectSenderSpecifier, ExpectExtraHeader and RespondToHeader. Any hook may
// veto by returning an error. Hooks that replace the connection's stream do
// so through State.SwapStream.
package carrier

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"portbus/pkg/stream"
	"portbus/pkg/wire"
)

// SpecifierLen is the size of the header that opens every connection.
const SpecifierLen = 8

// Specifier is the fixed-size ASCII header identifying a carrier.
type Specifier [SpecifierLen]byte

// SpecifierOf pads or truncates s to eight bytes.
func SpecifierOf(s string) Specifier {
	var sp Specifier
	n := copy(sp[:], s)
	for i := n; i < SpecifierLen; i++ {
		sp[i] = ' '
	}
	return sp
}

func (s Specifier) String() string { return string(s[:]) }

// Route names one logical connection.
type Route struct {
	From    string
	To      string
	Carrier string
}

func (r Route) WithFrom(from string) Route {
	r.From = from
	return r
}

func (r Route) WithCarrier(name string) Route {
	r.Carrier = name
	return r
}

func (r Route) String() string {
	var b strings.Builder
	b.WriteString(r.From)
	b.WriteString(" -> ")
	b.WriteString(r.To)
	if r.Carrier != "" {
		b.WriteString(" (")
		b.WriteString(r.Carrier)
		b.WriteString(")")
	}
	return b.String()
}

// Capabilities is what a carrier declares about itself.
type Capabilities struct {
	Name           string
	RequiresAck    bool // every data write waits for an OK/FAIL ack
	Connectionless bool
	CanEscape      bool // may switch the connection to a different stream
	Local          bool // both ends must live in this process
	SupportsReply  bool // acks may carry a reply value
	TextMode       bool
}

// Role tells a hook which end of the connection it runs on.
type Role uint8

const (
	RoleSender Role = iota + 1
	RoleReceiver
)

func (r Role) String() string {
	switch r {
	case RoleSender:
		return "sender"
	case RoleReceiver:
		return "receiver"
	}
	return "unknown"
}

// State is the view of a connection a carrier hook operates on. The
// connection owns exactly one stream at a time.
type State interface {
	// Context is the Open or Accept context while negotiating and
	// context.Background afterwards.
	Context() context.Context
	Role() Role
	Route() Route
	SetRoute(Route)
	Stream() stream.Stream
	// SwapStream installs next as the connection's stream and returns the
	// previous one, which the caller now owns. next must not be nil.
	SwapStream(next stream.Stream) (stream.Stream, error)
	Reader() *wire.Reader
	Writer() *wire.Writer
	Logger() *zap.Logger
}

// Ack is the receiver's answer to one data write.
type Ack struct {
	OK     bool
	Reply  wire.Value
	Reason string
}

// Carrier is one negotiated transport variant.
type Carrier interface {
	Capabilities() Capabilities
	Specifier() Specifier
	// CheckHeader reports whether the first eight bytes of a connection
	// belong to this carrier.
	CheckHeader(Specifier) bool
	// Create returns a fresh instance. Prototypes keep no per-connection state.
	Create() Carrier

	PrepareSend(State) error
	SendHeader(State) error
	WriteExtraHeader(State) error
	ExpectReplyToHeader(State) error

	ExpectSenderSpecifier(State) error
	ExpectExtraHeader(State) error
	RespondToHeader(State) error

	// IsActive is false for instances whose writes are dropped, such as a
	// multicast sender that does not own its group.
	IsActive() bool
	Write(State, wire.Value) error
	Read(State) (wire.Value, error)
	SendAck(State, Ack) error
	ExpectAck(State) (Ack, error)
	Close() error
}
