// Package text implements the human-typable debug carrier. A client opens
// with "CONNECT <name>" on a line of its own and then exchanges one value
// per line in the text form of the wire codec.
package text

import (
	"bytes"
	"io"
	"strings"

	"portbus/pkg/carrier"
)

const Name = "text"

var Specifier = carrier.SpecifierOf("CONNECT ")

const welcome = "Welcome "

// maxLine bounds header lines.
const maxLine = carrier.MaxNameLen + 64

type Carrier struct {
	carrier.Base
}

func New() *Carrier {
	return &Carrier{Base: carrier.Base{
		Caps: carrier.Capabilities{
			Name:      Name,
			CanEscape: true,
			TextMode:  true,
		},
		Spec: Specifier,
	}}
}

func (c *Carrier) Create() carrier.Carrier { return New() }

// SendHeader writes "CONNECT <from>\n".
func (c *Carrier) SendHeader(s carrier.State) error {
	_, err := io.WriteString(s.Stream(), Specifier.String()+s.Route().From+"\n")
	return err
}

// ExpectSenderSpecifier reads the rest of the CONNECT line.
func (c *Carrier) ExpectSenderSpecifier(s carrier.State) error {
	name, err := readLine(s.Stream())
	if err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return carrier.Vetof("text: CONNECT without a port name")
	}
	s.SetRoute(s.Route().WithFrom(name))
	return nil
}

func (c *Carrier) RespondToHeader(s carrier.State) error {
	_, err := io.WriteString(s.Stream(), welcome+s.Route().To+"\n")
	return err
}

func (c *Carrier) ExpectReplyToHeader(s carrier.State) error {
	line, err := readLine(s.Stream())
	if err != nil {
		return err
	}
	if !strings.HasPrefix(line, welcome) {
		return carrier.Vetof("text: unexpected greeting %q", line)
	}
	return nil
}

func readLine(r io.ByteReader) (string, error) {
	var b bytes.Buffer
	for {
		c, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		if c == '\n' {
			return strings.TrimSuffix(b.String(), "\r"), nil
		}
		if b.Len() >= maxLine {
			return "", carrier.Vetof("text: header line too long")
		}
		b.WriteByte(c)
	}
}
