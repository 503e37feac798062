package codec

import (
	"fmt"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"

	"portbus/pkg/wire"
)

// ParseFormat accepts a short name (json, cbor, proto) or a content type.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json", ContentJSON:
		return FormatJSON, nil
	case "cbor", ContentCBOR:
		return FormatCBOR, nil
	case "proto", "protobuf", ContentProto:
		return FormatProto, nil
	}
	return FormatUnknown, fmt.Errorf("codec: unknown format %q", s)
}

// IsPayload reports whether v is shaped like a blob made by EncodeBlob.
func IsPayload(v wire.Value) bool {
	if v.Kind() != wire.KindBlob {
		return false
	}
	b := v.AsBlob()
	return len(b) > 0 && Format(b[0]) > FormatUnknown && Format(b[0]) <= FormatProto
}

// EncodeDocument packs a JSON-shaped document (string-keyed maps, slices,
// strings, float64, bool, nil) into a payload blob. The protobuf form
// carries it as a google.protobuf.Value.
func EncodeDocument(r *Registry, f Format, doc any) (wire.Value, error) {
	if f != FormatProto {
		return EncodeBlob(r, f, doc)
	}
	pv, err := structpb.NewValue(doc)
	if err != nil {
		return wire.Value{}, fmt.Errorf("codec: document as protobuf: %w", err)
	}
	return EncodeBlob(r, f, pv)
}

// DecodeDocument reverses EncodeDocument.
func DecodeDocument(r *Registry, blob wire.Value) (Format, any, error) {
	if IsPayload(blob) && Format(blob.AsBlob()[0]) == FormatProto {
		var pv structpb.Value
		f, err := DecodeBlob(r, blob, &pv)
		if err != nil {
			return f, nil, err
		}
		return f, pv.AsInterface(), nil
	}
	var doc any
	f, err := DecodeBlob(r, blob, &doc)
	if err != nil {
		return f, nil, err
	}
	return f, doc, nil
}
