package codec

import (
	"reflect"
	"testing"

	"google.golang.org/protobuf/types/known/structpb"

	"portbus/pkg/wire"
)

func TestJSONCodec(t *testing.T) {
	c := JSON()
	in := map[string]any{"a": 1, "b": "x"}
	b, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := c.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["a"].(float64) != 1 || out["b"].(string) != "x" {
		t.Fatalf("roundtrip mismatch: %#v", out)
	}
}

func TestCBORCodec(t *testing.T) {
	c, err := CBOR()
	if err != nil {
		t.Fatalf("new cbor: %v", err)
	}
	type rec struct {
		N    int    `cbor:"n"`
		Name string `cbor:"name"`
	}
	b, err := c.Marshal(rec{N: 42, Name: "x"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out rec
	if err := c.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.N != 42 || out.Name != "x" {
		t.Fatalf("roundtrip mismatch: %#v", out)
	}
}

func TestProtoCodec(t *testing.T) {
	c := Proto()
	s, err := structpb.NewStruct(map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("struct: %v", err)
	}
	b, err := c.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out structpb.Struct
	if err := c.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Fields["k"].GetStringValue() != "v" {
		t.Fatalf("roundtrip mismatch")
	}
	if _, err := c.Marshal("not a message"); err == nil {
		t.Fatalf("expected error for non-proto value")
	}
}

func TestBlobRoundtrip(t *testing.T) {
	r := NewRegistry()

	for _, f := range []Format{FormatJSON, FormatCBOR} {
		v, err := EncodeBlob(r, f, map[string]string{"port": "/a"})
		if err != nil {
			t.Fatalf("%s encode: %v", f, err)
		}
		if v.Kind() != wire.KindBlob || v.AsBlob()[0] != byte(f) {
			t.Fatalf("%s: bad blob %s", f, v)
		}
		// the blob survives the wire codec untouched
		b, err := wire.Encode(v)
		if err != nil {
			t.Fatalf("wire encode: %v", err)
		}
		back, err := wire.Decode(b)
		if err != nil {
			t.Fatalf("wire decode: %v", err)
		}
		var out map[string]string
		got, err := DecodeBlob(r, back, &out)
		if err != nil {
			t.Fatalf("%s decode: %v", f, err)
		}
		if got != f || out["port"] != "/a" {
			t.Fatalf("%s: got %v %v", f, got, out)
		}
	}
}

func TestDecodeBlobErrors(t *testing.T) {
	var out any
	if _, err := DecodeBlob(nil, wire.Int32(1), &out); err == nil {
		t.Fatalf("expected error for non-blob")
	}
	if _, err := DecodeBlob(nil, wire.Blob(nil), &out); err == nil {
		t.Fatalf("expected error for empty blob")
	}
	if _, err := DecodeBlob(nil, wire.Blob([]byte{9, 1}), &out); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestDocumentRoundtrip(t *testing.T) {
	r := NewRegistry()
	doc := map[string]any{
		"port":  "/a",
		"count": float64(3),
		"ok":    true,
		"tags":  []any{"x", float64(1.5), nil},
		"inner": map[string]any{"k": "v"},
	}
	for _, name := range []string{"json", "cbor", "proto"} {
		f, err := ParseFormat(name)
		if err != nil {
			t.Fatalf("parse %s: %v", name, err)
		}
		v, err := EncodeDocument(r, f, doc)
		if err != nil {
			t.Fatalf("%s encode: %v", name, err)
		}
		if !IsPayload(v) {
			t.Fatalf("%s: %s is not recognised as a payload", name, v)
		}
		got, back, err := DecodeDocument(r, v)
		if err != nil {
			t.Fatalf("%s decode: %v", name, err)
		}
		if got != f || !reflect.DeepEqual(back, doc) {
			t.Fatalf("%s: got %v %#v", name, got, back)
		}
	}
}

func TestParseFormatAndIsPayload(t *testing.T) {
	if f, err := ParseFormat("application/x-protobuf"); err != nil || f != FormatProto {
		t.Fatalf("content type: %v %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
	for _, v := range []wire.Value{wire.String("x"), wire.Blob(nil), wire.Blob([]byte{0, 1}), wire.Blob([]byte{7})} {
		if IsPayload(v) {
			t.Fatalf("%s must not look like a payload", v)
		}
	}
	if _, err := EncodeDocument(nil, FormatProto, make(chan int)); err == nil {
		t.Fatalf("expected error for a value protobuf cannot carry")
	}
}
