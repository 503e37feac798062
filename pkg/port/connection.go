package port

import (
	"context"

	"github.com/rs/xid"

	"portbus/pkg/carrier"
	"portbus/pkg/protocol"
	"portbus/pkg/wire"
)

// Connection is the sending end of a negotiated route.
type Connection struct {
	p *protocol.Protocol
}

func (c *Connection) ID() xid.ID                         { return c.p.ID() }
func (c *Connection) Route() carrier.Route               { return c.p.Route() }
func (c *Connection) Carrier() string                    { return c.p.Capabilities().Name }
func (c *Connection) Capabilities() carrier.Capabilities { return c.p.Capabilities() }

// Write sends v. For carriers with acks it returns the receiver's reply,
// or an error wrapping protocol.ErrRejected when the handler failed.
func (c *Connection) Write(ctx context.Context, v wire.Value) (wire.Value, error) {
	return c.p.Write(ctx, v)
}

// Done is closed once the connection is closed.
func (c *Connection) Done() <-chan struct{} { return c.p.Done() }

func (c *Connection) Close() error { return c.p.Close() }
