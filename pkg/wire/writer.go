package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
)

// Writer encodes values onto an io.Writer in binary or text mode. It does
// not buffer; flushing is the stream's job.
type Writer struct {
	w    io.Writer
	text bool
	err  error
	buf  [8]byte
}

func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

// ConvertTextMode switches between binary (false) and text (true) output.
func (w *Writer) ConvertTextMode(on bool) { w.text = on }

func (w *Writer) TextMode() bool { return w.text }

// Err returns the first write error.
func (w *Writer) Err() error { return w.err }

func (w *Writer) write(p []byte) error {
	if w.err != nil {
		return w.err
	}
	if _, err := w.w.Write(p); err != nil {
		w.err = err
	}
	return w.err
}

func (w *Writer) u32(v uint32) error {
	binary.LittleEndian.PutUint32(w.buf[:4], v)
	return w.write(w.buf[:4])
}

func (w *Writer) u64(v uint64) error {
	binary.LittleEndian.PutUint64(w.buf[:8], v)
	return w.write(w.buf[:8])
}

func (w *Writer) tag(t Tag) error { return w.u32(uint32(t)) }

// WriteValue writes one complete value. In text mode the value is rendered
// as a single token followed by no separator.
func (w *Writer) WriteValue(v Value) error {
	if !v.IsValid() {
		return errors.New("wire: cannot encode invalid value")
	}
	if w.text {
		return w.write([]byte(v.String()))
	}
	return w.writeBinary(v)
}

func (w *Writer) writeBinary(v Value) error {
	if v.kind == KindList {
		if et, ok := homogeneous(v.list); ok {
			if err := w.WriteListBegin(et, len(v.list)); err != nil {
				return err
			}
			for _, it := range v.list {
				if err := w.writeRaw(it); err != nil {
					return err
				}
			}
			return nil
		}
		if err := w.WriteListHeader(len(v.list)); err != nil {
			return err
		}
		for _, it := range v.list {
			if err := w.writeBinary(it); err != nil {
				return err
			}
		}
		return nil
	}
	if err := w.tag(TagOf(v.kind)); err != nil {
		return err
	}
	return w.writeRaw(v)
}

// writeRaw writes the payload of a scalar without its tag.
func (w *Writer) writeRaw(v Value) error {
	switch v.kind {
	case KindBool, KindInt8:
		w.buf[0] = byte(v.num)
		return w.write(w.buf[:1])
	case KindInt16:
		binary.LittleEndian.PutUint16(w.buf[:2], uint16(v.num))
		return w.write(w.buf[:2])
	case KindInt32, KindVocab, KindFloat32:
		return w.u32(uint32(v.num))
	case KindInt64, KindFloat64:
		return w.u64(v.num)
	case KindString:
		if err := w.u32(uint32(len(v.str))); err != nil {
			return err
		}
		return w.write([]byte(v.str))
	case KindBlob:
		if err := w.u32(uint32(len(v.blob))); err != nil {
			return err
		}
		return w.write(v.blob)
	}
	return fmt.Errorf("wire: no raw form for %s", v.kind)
}

// homogeneous reports whether a list can use the typed bulk form.
func homogeneous(items []Value) (Tag, bool) {
	if len(items) < 2 {
		return 0, false
	}
	k := items[0].kind
	switch k {
	case KindList, KindInvalid:
		return 0, false
	}
	for _, it := range items[1:] {
		if it.kind != k {
			return 0, false
		}
	}
	return TagOf(k), true
}

// WriteListHeader announces a heterogeneous list of n tagged values.
func (w *Writer) WriteListHeader(n int) error {
	if w.text {
		return w.write([]byte("("))
	}
	if err := w.tag(TagList); err != nil {
		return err
	}
	return w.u32(uint32(n))
}

// WriteListBegin announces a typed list of n raw elements of kind elem. The
// elements follow via the WriteRaw* helpers.
func (w *Writer) WriteListBegin(elem Tag, n int) error {
	if elem.IsList() || !elem.valid() {
		return fmt.Errorf("wire: bad element tag %#x", uint32(elem))
	}
	if w.text {
		return errors.New("wire: typed lists are binary only")
	}
	if err := w.tag(TagList | elem); err != nil {
		return err
	}
	return w.u32(uint32(n))
}

func (w *Writer) WriteRawInt32(i int32) error     { return w.u32(uint32(i)) }
func (w *Writer) WriteRawInt64(i int64) error     { return w.u64(uint64(i)) }
func (w *Writer) WriteRawFloat64(f float64) error { return w.u64(math.Float64bits(f)) }

func (w *Writer) WriteBool(b bool) error       { return w.WriteValue(Bool(b)) }
func (w *Writer) WriteInt8(i int8) error       { return w.WriteValue(Int8(i)) }
func (w *Writer) WriteInt16(i int16) error     { return w.WriteValue(Int16(i)) }
func (w *Writer) WriteInt32(i int32) error     { return w.WriteValue(Int32(i)) }
func (w *Writer) WriteInt64(i int64) error     { return w.WriteValue(Int64(i)) }
func (w *Writer) WriteFloat32(f float32) error { return w.WriteValue(Float32(f)) }
func (w *Writer) WriteFloat64(f float64) error { return w.WriteValue(Float64(f)) }
func (w *Writer) WriteVocab(c Vocab) error     { return w.WriteValue(VocabValue(c)) }
func (w *Writer) WriteString(s string) error   { return w.WriteValue(String(s)) }
func (w *Writer) WriteBlob(b []byte) error     { return w.WriteValue(Value{kind: KindBlob, blob: b}) }

// WriteSeparator emits the token separator in text mode; no-op in binary.
func (w *Writer) WriteSeparator() error {
	if !w.text {
		return nil
	}
	return w.write([]byte(" "))
}

// WriteListEnd closes a list opened by WriteListHeader in text mode.
func (w *Writer) WriteListEnd() error {
	if !w.text {
		return nil
	}
	return w.write([]byte(")"))
}

// tagSegments splits name the way WriteTag emits it.
func tagSegments(name string, split int) []string {
	if split == 0 {
		return []string{name}
	}
	return strings.Split(name, "_")
}

// TagLen is the number of list slots WriteTag(name, split) consumes.
func TagLen(name string, split int) int { return len(tagSegments(name, split)) }

// WriteTag writes a command tag. split == 0 writes name as one string;
// split > 0 writes each underscore-separated segment as a vocab code when it
// has at most four characters, or as a string otherwise.
func (w *Writer) WriteTag(name string, split int) error {
	for i, seg := range tagSegments(name, split) {
		if i > 0 {
			if err := w.WriteSeparator(); err != nil {
				return err
			}
		}
		var err error
		if split != 0 && IsVocabWord(seg) {
			err = w.WriteVocab(MakeVocab(seg))
		} else {
			err = w.WriteString(seg)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteCall writes a list holding the tag followed by fields, which is how
// generated call stubs frame a remote call.
func (w *Writer) WriteCall(name string, split int, fields ...Value) error {
	if err := w.WriteListHeader(TagLen(name, split) + len(fields)); err != nil {
		return err
	}
	if err := w.WriteTag(name, split); err != nil {
		return err
	}
	for _, f := range fields {
		if err := w.WriteSeparator(); err != nil {
			return err
		}
		if err := w.WriteValue(f); err != nil {
			return err
		}
	}
	return w.WriteListEnd()
}

// Encode returns the binary form of v.
func Encode(v Value) ([]byte, error) {
	var b bytes.Buffer
	if err := NewWriter(&b).WriteValue(v); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// EncodeText returns the text form of v.
func EncodeText(v Value) ([]byte, error) {
	if !v.IsValid() {
		return nil, errors.New("wire: cannot encode invalid value")
	}
	return []byte(v.String()), nil
}
