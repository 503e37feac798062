// Package tcp implements the stream carrier: tagged values over the
// persistent byte stream the connection was bootstrapped on.
package tcp

import (
	"io"

	"portbus/pkg/carrier"
)

const Name = "tcp"

// Specifier opens every stream-carrier connection.
var Specifier = carrier.SpecifierOf("STREAMXX")

// Carrier keeps the bootstrap stream for the life of the connection. Every
// data write is acknowledged and the ack may carry a reply.
type Carrier struct {
	carrier.Base
}

func New() *Carrier {
	return &Carrier{Base: carrier.Base{
		Caps: carrier.Capabilities{
			Name:          Name,
			RequiresAck:   true,
			CanEscape:     true,
			SupportsReply: true,
		},
		Spec: Specifier,
	}}
}

func (c *Carrier) Create() carrier.Carrier { return New() }

// RespondToHeader echoes the specifier and names the port that accepted.
func (c *Carrier) RespondToHeader(s carrier.State) error {
	st := s.Stream()
	if _, err := st.Write(Specifier[:]); err != nil {
		return err
	}
	return carrier.WriteName(st, s.Route().To)
}

// ExpectReplyToHeader checks the echoed specifier and that the port which
// accepted is the one the route asked for.
func (c *Carrier) ExpectReplyToHeader(s carrier.State) error {
	st := s.Stream()
	var got carrier.Specifier
	if _, err := io.ReadFull(st, got[:]); err != nil {
		return err
	}
	if got != Specifier {
		return carrier.Vetof("tcp: reply header %q", got.String())
	}
	name, err := carrier.ReadName(st)
	if err != nil {
		return err
	}
	if want := s.Route().To; want != "" && name != want {
		return carrier.Vetof("tcp: reached port %q, wanted %q", name, want)
	}
	return nil
}
