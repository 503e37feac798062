package wire

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// BufferedReader is what the decoder needs from a stream: byte reads and
// lookahead without consuming.
type BufferedReader interface {
	io.Reader
	io.ByteReader
	Peek(n int) ([]byte, error)
}

// Mode is the encoding detected on a reader.
type Mode uint8

const (
	ModeUnknown Mode = iota
	ModeBinary
	ModeText
)

// decoder does the actual parsing. Every method returns its error; it keeps
// no failure state of its own.
type decoder struct {
	r   BufferedReader
	off int64
	buf [8]byte
}

func (d *decoder) fail(reason string, err error) error {
	return &DecodeError{Offset: d.off, Reason: reason, Err: err}
}

func (d *decoder) full(p []byte) error {
	n, err := io.ReadFull(d.r, p)
	d.off += int64(n)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return d.fail("short read", err)
	}
	return nil
}

func (d *decoder) u32() (uint32, error) {
	if err := d.full(d.buf[:4]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(d.buf[:4]), nil
}

func (d *decoder) u64() (uint64, error) {
	if err := d.full(d.buf[:8]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(d.buf[:8]), nil
}

// tag reads a tag word. A clean end of stream before the first byte is
// reported as io.EOF so callers can tell a closed peer from a torn value.
func (d *decoder) tag() (Tag, error) {
	if _, err := d.r.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, io.EOF
		}
		return 0, err
	}
	u, err := d.u32()
	if err != nil {
		return 0, err
	}
	t := Tag(u)
	if !t.valid() {
		return 0, d.fail("unknown tag", nil)
	}
	return t, nil
}

func (d *decoder) length() (int, error) {
	n, err := d.u32()
	if err != nil {
		return 0, err
	}
	if n > MaxLength {
		return 0, d.fail("declared length too large", nil)
	}
	return int(n), nil
}

func (d *decoder) value(depth int) (Value, error) {
	t, err := d.tag()
	if err != nil {
		return Value{}, err
	}
	return d.tagged(t, depth)
}

func (d *decoder) tagged(t Tag, depth int) (Value, error) {
	if !t.IsList() {
		return d.raw(t)
	}
	if depth >= MaxDepth {
		return Value{}, d.fail("lists nested too deep", nil)
	}
	n, err := d.length()
	if err != nil {
		return Value{}, err
	}
	elem := t.Elem()
	items := make([]Value, 0, min(n, 1024))
	for i := 0; i < n; i++ {
		var it Value
		if elem == 0 {
			it, err = d.value(depth + 1)
			if errors.Is(err, io.EOF) {
				err = d.fail("list shorter than declared length", io.ErrUnexpectedEOF)
			}
		} else {
			it, err = d.raw(elem)
		}
		if err != nil {
			return Value{}, err
		}
		items = append(items, it)
	}
	return Value{kind: KindList, list: items}, nil
}

func (d *decoder) raw(t Tag) (Value, error) {
	k := kindOf(t)
	switch w := t.width(); w {
	case 1:
		if err := d.full(d.buf[:1]); err != nil {
			return Value{}, err
		}
		if k == KindBool {
			if d.buf[0] > 1 {
				return Value{}, d.fail("bad bool byte", nil)
			}
			return Value{kind: k, num: uint64(d.buf[0])}, nil
		}
		return Int8(int8(d.buf[0])), nil
	case 2:
		if err := d.full(d.buf[:2]); err != nil {
			return Value{}, err
		}
		return Int16(int16(binary.LittleEndian.Uint16(d.buf[:2]))), nil
	case 4:
		u, err := d.u32()
		if err != nil {
			return Value{}, err
		}
		if k == KindInt32 {
			return Int32(int32(u)), nil
		}
		return Value{kind: k, num: uint64(u)}, nil
	case 8:
		u, err := d.u64()
		if err != nil {
			return Value{}, err
		}
		return Value{kind: k, num: u}, nil
	}
	n, err := d.length()
	if err != nil {
		return Value{}, err
	}
	b := make([]byte, n)
	if err := d.full(b); err != nil {
		return Value{}, err
	}
	if k == KindString {
		return String(string(b)), nil
	}
	return Value{kind: KindBlob, blob: b}, nil
}

// line reads one text line without the terminator.
func (d *decoder) line() (string, error) {
	var b []byte
	for {
		c, err := d.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && len(b) > 0 {
				break
			}
			return "", err
		}
		d.off++
		if c == '\n' {
			break
		}
		if len(b) >= MaxLength {
			return "", d.fail("text line too long", nil)
		}
		b = append(b, c)
	}
	return string(bytes.TrimSuffix(b, []byte{'\r'})), nil
}

// Reader decodes values from a stream and remembers the first failure:
// after any error every call returns that same error without reading.
type Reader struct {
	d    decoder
	mode Mode
	err  error
}

// NewReader wraps r. Readers that already buffer (and expose Peek and
// ReadByte) are used directly so raw and decoded reads can interleave.
func NewReader(r io.Reader) *Reader {
	br, ok := r.(BufferedReader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Reader{d: decoder{r: br}}
}

// Err returns the sticky error, if any.
func (r *Reader) Err() error { return r.err }

// Mode returns the detected encoding, ModeUnknown before the first read.
func (r *Reader) Mode() Mode { return r.mode }

// SetMode forces the encoding instead of detecting it.
func (r *Reader) SetMode(m Mode) { r.mode = m }

func (r *Reader) check(err error) error {
	if err != nil && r.err == nil {
		r.err = err
	}
	return err
}

func (r *Reader) detect() error {
	if r.mode != ModeUnknown {
		return nil
	}
	p, err := r.d.r.Peek(4)
	if len(p) == 0 && err != nil {
		return err
	}
	r.mode = ModeText
	for _, c := range p {
		if c < 0x09 {
			r.mode = ModeBinary
			break
		}
	}
	return nil
}

// ReadValue reads one complete value. In text mode a value is one line.
func (r *Reader) ReadValue() (Value, error) {
	if r.err != nil {
		return Value{}, r.err
	}
	if err := r.detect(); err != nil {
		return Value{}, r.check(err)
	}
	if r.mode == ModeText {
		s, err := r.d.line()
		if err != nil {
			return Value{}, r.check(err)
		}
		v, err := ParseText(s)
		return v, r.check(err)
	}
	v, err := r.d.value(0)
	return v, r.check(err)
}

// PeekTag returns the next binary tag without consuming it.
func (r *Reader) PeekTag() (Tag, error) {
	if r.err != nil {
		return 0, r.err
	}
	p, err := r.d.r.Peek(4)
	if err != nil {
		if errors.Is(err, io.EOF) && len(p) > 0 {
			err = r.d.fail("short read", io.ErrUnexpectedEOF)
		}
		return 0, r.check(err)
	}
	return Tag(binary.LittleEndian.Uint32(p)), nil
}

func (r *Reader) expect(want Tag) (Value, error) {
	if r.err != nil {
		return Value{}, r.err
	}
	r.mode = ModeBinary
	t, err := r.d.tag()
	if err != nil {
		return Value{}, r.check(err)
	}
	if t != want {
		return Value{}, r.check(r.d.fail("tag mismatch: want "+kindOf(want).String()+", got "+kindOf(t).String(), nil))
	}
	v, err := r.d.raw(t)
	return v, r.check(err)
}

func (r *Reader) ReadBool() (bool, error) {
	v, err := r.expect(TagBool)
	return v.AsBool(), err
}

func (r *Reader) ReadInt8() (int8, error) {
	v, err := r.expect(TagInt8)
	return v.AsInt8(), err
}

func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.expect(TagInt16)
	return v.AsInt16(), err
}

func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.expect(TagInt32)
	return v.AsInt32(), err
}

func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.expect(TagInt64)
	return v.AsInt64(), err
}

func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.expect(TagFloat32)
	return v.AsFloat32(), err
}

func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.expect(TagFloat64)
	return v.AsFloat64(), err
}

func (r *Reader) ReadVocab() (Vocab, error) {
	v, err := r.expect(TagVocab)
	return v.AsVocab(), err
}

func (r *Reader) ReadString() (string, error) {
	v, err := r.expect(TagString)
	return v.AsString(), err
}

func (r *Reader) ReadBlob() ([]byte, error) {
	v, err := r.expect(TagBlob)
	return v.AsBlob(), err
}

// ReadListHeader reads a plain list header and returns the declared length.
// The caller must then read exactly that many values.
func (r *Reader) ReadListHeader() (int, error) {
	elem, n, err := r.ReadListBegin()
	if err == nil && elem != 0 {
		err = r.check(r.d.fail("expected plain list, got typed list", nil))
	}
	return n, err
}

// ReadListBegin reads any list header and returns its element tag (0 for a
// plain list) and declared length.
func (r *Reader) ReadListBegin() (Tag, int, error) {
	if r.err != nil {
		return 0, 0, r.err
	}
	r.mode = ModeBinary
	t, err := r.d.tag()
	if err != nil {
		return 0, 0, r.check(err)
	}
	if !t.IsList() {
		return 0, 0, r.check(r.d.fail("tag mismatch: want list, got "+kindOf(t).String(), nil))
	}
	n, err := r.d.length()
	if err != nil {
		return 0, 0, r.check(err)
	}
	return t.Elem(), n, nil
}

// ReadRaw reads one untagged element of a typed list.
func (r *Reader) ReadRaw(elem Tag) (Value, error) {
	if r.err != nil {
		return Value{}, r.err
	}
	v, err := r.d.raw(elem)
	return v, r.check(err)
}

func (r *Reader) ReadRawInt32() (int32, error) {
	v, err := r.ReadRaw(TagInt32)
	return v.AsInt32(), err
}

func (r *Reader) ReadRawFloat64() (float64, error) {
	v, err := r.ReadRaw(TagFloat64)
	return math.Float64frombits(v.num), err
}

// Decode parses exactly one value from b, detecting binary or text form.
// Bytes left over after the value are an error.
func Decode(b []byte) (Value, error) {
	if len(b) == 0 {
		return Value{}, &DecodeError{Reason: "empty input"}
	}
	br := bufio.NewReader(bytes.NewReader(b))
	r := &Reader{d: decoder{r: br}}
	if err := r.detect(); err != nil {
		return Value{}, err
	}
	if r.mode == ModeText {
		return ParseText(string(bytes.TrimRight(b, "\r\n")))
	}
	v, err := r.ReadValue()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = &DecodeError{Reason: "empty input", Err: err}
		}
		return Value{}, err
	}
	if _, err := br.Peek(1); err == nil {
		return Value{}, &DecodeError{Offset: r.d.off, Reason: "trailing bytes after value"}
	}
	return v, nil
}
