package codec

import (
	"fmt"

	"portbus/pkg/wire"
)

// Format is the one-byte codec marker that prefixes a payload blob.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatJSON
	FormatCBOR
	FormatProto
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return ContentJSON
	case FormatCBOR:
		return ContentCBOR
	case FormatProto:
		return ContentProto
	default:
		return ContentUnknown
	}
}

// CodecFor returns the codec for f, preferring one registered in r.
func CodecFor(r *Registry, f Format) (Codec, error) {
	if r != nil {
		if c := r.Get(f.String()); c != nil && f != FormatUnknown {
			return c, nil
		}
	}
	switch f {
	case FormatJSON:
		return JSON(), nil
	case FormatCBOR:
		return CBOR()
	case FormatProto:
		return Proto(), nil
	default:
		return nil, fmt.Errorf("codec: unknown format %d", f)
	}
}

// EncodeBlob marshals v with the codec for f into a wire blob whose first
// byte is f.
func EncodeBlob(r *Registry, f Format, v any) (wire.Value, error) {
	c, err := CodecFor(r, f)
	if err != nil {
		return wire.Value{}, err
	}
	b, err := c.Marshal(v)
	if err != nil {
		return wire.Value{}, err
	}
	out := make([]byte, 1+len(b))
	out[0] = byte(f)
	copy(out[1:], b)
	return wire.Blob(out), nil
}

// DecodeBlob unmarshals a blob made by EncodeBlob into v.
func DecodeBlob(r *Registry, blob wire.Value, v any) (Format, error) {
	if blob.Kind() != wire.KindBlob {
		return FormatUnknown, fmt.Errorf("codec: expected blob, got %s", blob.Kind())
	}
	payload := blob.AsBlob()
	if len(payload) == 0 {
		return FormatUnknown, fmt.Errorf("codec: empty payload")
	}
	f := Format(payload[0])
	c, err := CodecFor(r, f)
	if err != nil {
		return f, err
	}
	if err := c.Unmarshal(payload[1:], v); err != nil {
		return f, err
	}
	return f, nil
}
