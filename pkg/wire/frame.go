package wire

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// MaxFrame bounds the byte count of one binary message.
const MaxFrame = 1 << 26

// WriteFrame writes v as one message. A binary message is the encoded value
// preceded by its byte count as a u32 little-endian; a text message is one
// line.
func (w *Writer) WriteFrame(v Value) error {
	if w.text {
		if err := w.WriteValue(v); err != nil {
			return err
		}
		return w.write([]byte{'\n'})
	}
	if !v.IsValid() {
		return errors.New("wire: cannot encode invalid value")
	}
	var b bytes.Buffer
	if err := NewWriter(&b).writeBinary(v); err != nil {
		return err
	}
	if b.Len() > MaxFrame {
		return fmt.Errorf("wire: message of %d bytes exceeds %d", b.Len(), MaxFrame)
	}
	if err := w.u32(uint32(b.Len())); err != nil {
		return err
	}
	return w.write(b.Bytes())
}

// ReadFrame reads one message written by WriteFrame. The value must fill its
// frame exactly: a frame with bytes left over, or one that ends inside the
// value, is a DecodeError and the reader stays failed. A clean end of stream
// before the frame is io.EOF.
func (r *Reader) ReadFrame() (Value, error) {
	if r.err != nil {
		return Value{}, r.err
	}
	if err := r.detect(); err != nil {
		return Value{}, r.check(err)
	}
	if r.mode == ModeText {
		return r.ReadValue()
	}
	if _, err := r.d.r.Peek(1); err != nil {
		return Value{}, r.check(err)
	}
	n, err := r.d.u32()
	if err != nil {
		return Value{}, r.check(err)
	}
	switch {
	case n == 0:
		return Value{}, r.check(r.d.fail("empty frame", nil))
	case n > MaxFrame:
		return Value{}, r.check(r.d.fail("declared frame size too large", nil))
	}
	body := make([]byte, n)
	if err := r.d.full(body); err != nil {
		return Value{}, r.check(err)
	}
	v, err := decodeFrame(body, r.d.off-int64(n))
	return v, r.check(err)
}

// decodeFrame decodes the single value held in body. base is the stream
// offset of body's first byte, so errors point into the stream.
func decodeFrame(body []byte, base int64) (Value, error) {
	d := decoder{r: bufio.NewReader(bytes.NewReader(body)), off: base}
	v, err := d.value(0)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = d.fail("frame ends inside value", io.ErrUnexpectedEOF)
		}
		return Value{}, err
	}
	if end := base + int64(len(body)); d.off != end {
		return Value{}, d.fail(fmt.Sprintf("frame holds %d bytes past its value", end-d.off), nil)
	}
	return v, nil
}
