package carrier

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"portbus/pkg/wire"
)

// MaxNameLen bounds port names exchanged in headers.
const MaxNameLen = 4096

// Base supplies the default behavior of every hook except Create. Carriers
// embed it and override what they need.
type Base struct {
	Caps Capabilities
	Spec Specifier
}

func (b *Base) Capabilities() Capabilities          { return b.Caps }
func (b *Base) Specifier() Specifier                { return b.Spec }
func (b *Base) CheckHeader(s Specifier) bool        { return s == b.Spec }
func (b *Base) PrepareSend(State) error             { return nil }
func (b *Base) SendHeader(s State) error            { return DefaultSendHeader(s, b.Spec) }
func (b *Base) WriteExtraHeader(State) error        { return nil }
func (b *Base) ExpectReplyToHeader(State) error     { return nil }
func (b *Base) ExpectSenderSpecifier(s State) error { return DefaultExpectSenderSpecifier(s) }
func (b *Base) ExpectExtraHeader(State) error       { return nil }
func (b *Base) RespondToHeader(State) error         { return nil }
func (b *Base) IsActive() bool                      { return true }
func (b *Base) Write(s State, v wire.Value) error   { return DefaultWrite(s, v) }
func (b *Base) Read(s State) (wire.Value, error)    { return DefaultRead(s) }
func (b *Base) SendAck(s State, a Ack) error        { return DefaultSendAck(s, a) }
func (b *Base) ExpectAck(s State) (Ack, error)      { return DefaultExpectAck(s) }
func (b *Base) Close() error                        { return nil }

// DefaultSendHeader writes the specifier followed by the sender's port name
// as a u32 little-endian length and its bytes.
func DefaultSendHeader(s State, spec Specifier) error {
	st := s.Stream()
	if _, err := st.Write(spec[:]); err != nil {
		return err
	}
	return WriteName(st, s.Route().From)
}

// DefaultExpectSenderSpecifier reads the sender's port name that follows the
// specifier and records it as the route's origin.
func DefaultExpectSenderSpecifier(s State) error {
	name, err := ReadName(s.Stream())
	if err != nil {
		return err
	}
	s.SetRoute(s.Route().WithFrom(name))
	return nil
}

// WriteName writes a length-prefixed name.
func WriteName(w io.Writer, name string) error {
	if len(name) > MaxNameLen {
		return Vetof("port name of %d bytes is too long", len(name))
	}
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(name)))
	if _, err := w.Write(n[:]); err != nil {
		return err
	}
	_, err := io.WriteString(w, name)
	return err
}

// ReadName reads a name written by WriteName.
func ReadName(r io.Reader) (string, error) {
	var n [4]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return "", err
	}
	l := binary.LittleEndian.Uint32(n[:])
	if l > MaxNameLen {
		return "", Vetof("announced port name of %d bytes is too long", l)
	}
	b := make([]byte, l)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

// DefaultWrite writes one value as a message and flushes. A binary message
// carries its byte count; in text mode a message is a line.
func DefaultWrite(s State, v wire.Value) error {
	if err := s.Writer().WriteFrame(v); err != nil {
		return err
	}
	return s.Stream().Flush()
}

// DefaultRead reads one message.
func DefaultRead(s State) (wire.Value, error) {
	return s.Reader().ReadFrame()
}

// EncodeAck returns the wire form of a: (ok reply?) or (fail "reason").
func EncodeAck(a Ack) wire.Value {
	if !a.OK {
		return wire.List(wire.VocabValue(wire.VocabFail), wire.String(a.Reason))
	}
	if a.Reply.IsValid() {
		return wire.List(wire.VocabValue(wire.VocabOK), a.Reply)
	}
	return wire.List(wire.VocabValue(wire.VocabOK))
}

// DecodeAck parses a value written by EncodeAck.
func DecodeAck(v wire.Value) (Ack, error) {
	if v.Kind() != wire.KindList || v.Len() == 0 || v.Len() > 2 || v.Index(0).Kind() != wire.KindVocab {
		return Ack{}, fmt.Errorf("carrier: malformed ack %s", v)
	}
	switch v.Index(0).AsVocab() {
	case wire.VocabOK:
		return Ack{OK: true, Reply: v.Index(1)}, nil
	case wire.VocabFail:
		a := Ack{}
		if r := v.Index(1); r.Kind() == wire.KindString {
			a.Reason = r.AsString()
		}
		return a, nil
	}
	return Ack{}, fmt.Errorf("carrier: unknown ack code %s", v.Index(0))
}

// DefaultSendAck writes a as one value and flushes.
func DefaultSendAck(s State, a Ack) error {
	return DefaultWrite(s, EncodeAck(a))
}

// DefaultExpectAck reads one ack.
func DefaultExpectAck(s State) (Ack, error) {
	v, err := s.Reader().ReadFrame()
	if err != nil {
		return Ack{}, err
	}
	a, err := DecodeAck(v)
	if err != nil {
		return Ack{}, errors.Join(wire.ErrDecode, err)
	}
	return a, nil
}
