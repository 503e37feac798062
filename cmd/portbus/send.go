package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"portbus/pkg/codec"
	"portbus/pkg/nameservice"
	"portbus/pkg/port"
	"portbus/pkg/transport"
	"portbus/pkg/wire"
)

func newSendCmd(opts *options) *cobra.Command {
	var (
		carrierName string
		addr        string
		kind        string
		payload     string
		format      string
	)
	cmd := &cobra.Command{
		Use:   "send <from> <to> [value]",
		Short: "Send one value, written in text form, to an input port.",
		Long: `Send connects from the port name <from> to the input port <to> and ` +
			`writes <value>, given in text form (e.g. '(1 "two" [ok])'). ` +
			`With --payload the value is instead a JSON document read from a ` +
			`file ("-" for stdin) and carried as a blob encoded with --format. ` +
			`The name service lives in the serving process, so --addr tells ` +
			`this process where <to> listens.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(opts, false)
			if err != nil {
				return err
			}
			defer a.close()

			var v wire.Value
			switch {
			case payload != "":
				if len(args) > 2 {
					return errors.New("a value and --payload are mutually exclusive")
				}
				if v, err = readPayload(cmd.InOrStdin(), a.codecs, payload, format); err != nil {
					return err
				}
			case len(args) < 3:
				return errors.New("nothing to send: give a value or --payload")
			default:
				if v, err = wire.ParseText(strings.Join(args[2:], " ")); err != nil {
					return fmt.Errorf("parse value: %w", err)
				}
			}

			if addr != "" {
				c, err := contactFromFlags(args[1], kind, addr)
				if err != nil {
					return err
				}
				if _, err := a.node.Oracle().Register(c); err != nil {
					return fmt.Errorf("register %s: %w", c.Name, err)
				}
			}

			conn, err := a.node.Connect(cmd.Context(), args[0], args[1], carrierName)
			if err != nil {
				return err
			}
			defer conn.Close()
			reply, err := conn.Write(cmd.Context(), v)
			if err != nil {
				return err
			}
			return printReply(cmd.OutOrStdout(), a.codecs, reply)
		},
	}
	cmd.Flags().StringVar(&carrierName, "carrier", port.Auto, "carrier name or auto")
	cmd.Flags().StringVar(&addr, "addr", "", "address the destination listens on")
	cmd.Flags().StringVar(&kind, "transport", "tcp", "bootstrap transport of --addr")
	cmd.Flags().StringVar(&payload, "payload", "", "JSON document to send as a payload blob, - for stdin")
	cmd.Flags().StringVar(&format, "format", "json", "payload encoding: json, cbor or proto")
	return cmd
}

// readPayload loads a JSON document and packs it as a payload blob.
func readPayload(stdin io.Reader, r *codec.Registry, path, format string) (wire.Value, error) {
	f, err := codec.ParseFormat(format)
	if err != nil {
		return wire.Value{}, err
	}
	var b []byte
	if path == "-" {
		b, err = io.ReadAll(stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return wire.Value{}, fmt.Errorf("read payload: %w", err)
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return wire.Value{}, fmt.Errorf("payload is not JSON: %w", err)
	}
	return codec.EncodeDocument(r, f, doc)
}

// printReply writes payload replies as JSON and anything else in text form.
func printReply(w io.Writer, r *codec.Registry, reply wire.Value) error {
	if !reply.IsValid() {
		return nil
	}
	if codec.IsPayload(reply) {
		if _, doc, err := codec.DecodeDocument(r, reply); err == nil {
			b, err := json.Marshal(doc)
			if err != nil {
				return fmt.Errorf("reply: %w", err)
			}
			_, err = fmt.Fprintln(w, string(b))
			return err
		}
	}
	_, err := fmt.Fprintln(w, reply.String())
	return err
}

// contactFromFlags builds the contact a remote serve process logged.
func contactFromFlags(name, kind, addr string) (nameservice.Contact, error) {
	k, err := transport.ParseKind(kind)
	if err != nil {
		return nameservice.Contact{}, err
	}
	c := nameservice.Contact{Name: name, Transport: k.String()}
	if !k.Addressed() {
		c.Host = addr
		return c, nil
	}
	host, p, err := net.SplitHostPort(addr)
	if err != nil {
		return c, fmt.Errorf("--addr: %w", err)
	}
	c.Host = host
	if c.Port, err = strconv.Atoi(p); err != nil {
		return c, fmt.Errorf("--addr port: %w", err)
	}
	return c, nil
}

func contactAddr(host string, p int) string {
	if p == 0 {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(p))
}
