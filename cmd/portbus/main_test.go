package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"portbus/pkg/codec"
	"portbus/pkg/config"
	"portbus/pkg/port"
	"portbus/pkg/wire"
)

func TestContactFromFlags(t *testing.T) {
	c, err := contactFromFlags("/in", "tcp", "127.0.0.1:4000")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", c.Host)
	require.Equal(t, 4000, c.Port)
	require.Equal(t, "tcp", c.Transport)

	c, err = contactFromFlags("/in", "mem", "inproc//in")
	require.NoError(t, err)
	require.Equal(t, "inproc//in", c.Host)
	require.Zero(t, c.Port)

	_, err = contactFromFlags("/in", "tcp", "no-port")
	require.Error(t, err)
	_, err = contactFromFlags("/in", "pigeon", "x")
	require.Error(t, err)
}

func TestCarriersCommand(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"carriers", "--log-level", "error"})
	require.NoError(t, root.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	require.True(t, strings.HasPrefix(lines[1], "tcp"))
	require.Contains(t, out.String(), `"LOCALITY"`)
	require.Contains(t, out.String(), `"MULTICAS"`)
}

func TestSendRejectsBadValue(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"send", "/a", "/b", `"unterminated`})
	require.ErrorContains(t, root.Execute(), "parse value")
}

func TestSendPayloadToPort(t *testing.T) {
	for _, format := range []string{"json", "cbor", "proto"} {
		t.Run(format, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			listen := "cli-" + format
			cfg := config.Default()
			cfg.Node.Transport = "mem"
			cfg.Transports = []config.TransportConfig{{Kind: "mem", Listen: listen}}
			n, err := port.NewNode(cfg, port.WithLogger(zap.NewNop()))
			require.NoError(t, err)
			defer n.Close()

			codecs := codec.NewRegistry()
			got := make(chan any, 1)
			_, err = n.Listen(ctx, "/sink", func(_ context.Context, m port.Message) (wire.Value, error) {
				_, doc, err := codec.DecodeDocument(codecs, m.Value)
				if err != nil {
					return wire.Value{}, err
				}
				got <- doc
				return m.Value, nil
			})
			require.NoError(t, err)

			path := filepath.Join(t.TempDir(), "doc.json")
			require.NoError(t, os.WriteFile(path, []byte(`{"b": [1, "x"], "a": true}`), 0o644))

			var out bytes.Buffer
			root := newRootCmd()
			root.SetOut(&out)
			root.SetErr(&bytes.Buffer{})
			root.SetArgs([]string{"send", "/src", "/sink",
				"--payload", path, "--format", format,
				"--addr", listen + "//sink", "--transport", "mem", "--carrier", "tcp",
				"--log-level", "error"})
			require.NoError(t, root.Execute())
			require.Equal(t, `{"a":true,"b":[1,"x"]}`, strings.TrimSpace(out.String()))
			require.Equal(t, map[string]any{"a": true, "b": []any{float64(1), "x"}}, <-got)
		})
	}
}

func TestSendNeedsValueOrPayload(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"send", "/a", "/b", "--log-level", "error"})
	require.ErrorContains(t, root.Execute(), "nothing to send")

	root = newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"send", "/a", "/b", "--payload", "-", "--format", "xml", "--log-level", "error"})
	require.ErrorContains(t, root.Execute(), "unknown format")
}

func TestValueFields(t *testing.T) {
	codecs := codec.NewRegistry()
	v, err := codec.EncodeDocument(codecs, codec.FormatCBOR, map[string]any{"k": "v"})
	require.NoError(t, err)
	fields := valueFields(codecs, v)
	require.Len(t, fields, 2)
	require.Equal(t, "format", fields[0].Key)
	require.Equal(t, "payload", fields[1].Key)

	fields = valueFields(codecs, wire.Int32(3))
	require.Len(t, fields, 1)
	require.Equal(t, "value", fields[0].Key)

	fields = valueFields(codecs, wire.Blob([]byte{byte(codec.FormatJSON), '{'}))
	require.Equal(t, "payload_error", fields[1].Key)
}
