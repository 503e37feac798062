package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"portbus/pkg/codec"
	"portbus/pkg/port"
	"portbus/pkg/wire"
)

func newServeCmd(opts *options) *cobra.Command {
	var echo bool
	cmd := &cobra.Command{
		Use:   "serve <port>...",
		Short: "Open input ports and log every value they receive.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(opts, true)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			handler := func(_ context.Context, m port.Message) (wire.Value, error) {
				fields := append([]zap.Field{
					zap.String("port", m.Port),
					zap.String("from", m.Route.From),
					zap.String("carrier", m.Route.Carrier),
				}, valueFields(a.codecs, m.Value)...)
				a.log.Info("received", fields...)
				if echo {
					return m.Value, nil
				}
				return wire.Value{}, nil
			}
			for _, name := range args {
				in, err := a.node.Listen(ctx, name, handler)
				if err != nil {
					return err
				}
				c := in.Contact()
				a.log.Info("port ready",
					zap.String("port", name),
					zap.String("transport", c.Transport),
					zap.String("addr", contactAddr(c.Host, c.Port)),
					zap.String("carrier", c.Carrier))
			}
			zap.L().Info("serving; press Ctrl+C to exit")
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().BoolVar(&echo, "echo", true, "reply with the received value")
	return cmd
}

// valueFields describes a received value for the log. Payload blobs are
// decoded and logged as documents.
func valueFields(r *codec.Registry, v wire.Value) []zap.Field {
	if !codec.IsPayload(v) {
		return []zap.Field{zap.Stringer("value", v)}
	}
	f, doc, err := codec.DecodeDocument(r, v)
	if err != nil {
		return []zap.Field{zap.Stringer("value", v), zap.NamedError("payload_error", err)}
	}
	return []zap.Field{zap.Stringer("format", f), zap.Any("payload", doc)}
}
