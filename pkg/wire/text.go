package wire

import (
	"errors"
	"strconv"
	"strings"
)

// Text mode renders values as space separated printable tokens:
//
//	true false      bool
//	7 7i8 7i16 7i64 int32 (no suffix), int8, int16, int64
//	1.5 1.5f32      float64 (no suffix), float32
//	[ok]            vocab, [#1234] when the code is not printable
//	"text"          string, Go escapes
//	{1 2 255}       blob bytes
//	(1 "a" [ok])    list
//
// A word that is not a number is read back as a string, suffix or not.

func appendText(sb *strings.Builder, v Value) {
	switch v.kind {
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.AsBool()))
	case KindInt8:
		sb.WriteString(strconv.FormatInt(int64(v.AsInt8()), 10))
		sb.WriteString("i8")
	case KindInt16:
		sb.WriteString(strconv.FormatInt(int64(v.AsInt16()), 10))
		sb.WriteString("i16")
	case KindInt32:
		sb.WriteString(strconv.FormatInt(int64(v.AsInt32()), 10))
	case KindInt64:
		sb.WriteString(strconv.FormatInt(v.AsInt64(), 10))
		sb.WriteString("i64")
	case KindFloat32:
		sb.WriteString(floatText(float64(v.AsFloat32()), 32))
		sb.WriteString("f32")
	case KindFloat64:
		sb.WriteString(floatText(v.AsFloat64(), 64))
	case KindVocab:
		sb.WriteByte('[')
		if s := v.AsVocab().String(); vocabPrintable(s) && MakeVocab(s) == v.AsVocab() {
			sb.WriteString(s)
		} else {
			sb.WriteByte('#')
			sb.WriteString(strconv.FormatUint(v.num, 10))
		}
		sb.WriteByte(']')
	case KindString:
		sb.WriteString(strconv.Quote(v.str))
	case KindBlob:
		sb.WriteByte('{')
		for i, c := range v.blob {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(strconv.Itoa(int(c)))
		}
		sb.WriteByte('}')
	case KindList:
		sb.WriteByte('(')
		for i, it := range v.list {
			if i > 0 {
				sb.WriteByte(' ')
			}
			appendText(sb, it)
		}
		sb.WriteByte(')')
	default:
		sb.WriteString("<invalid>")
	}
}

func floatText(f float64, bits int) string {
	s := strconv.FormatFloat(f, 'g', -1, bits)
	if strings.ContainsAny(s, ".eEnN") {
		return s
	}
	return s + ".0"
}

func vocabPrintable(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c <= ' ' || c > '~' || c == ']' || c == '#' || c == '[' {
			return false
		}
	}
	return true
}

// ParseText decodes one text line. A line holding several top-level tokens
// is returned as a list of them.
func ParseText(s string) (Value, error) {
	p := textParser{s: s}
	var items []Value
	for {
		p.skipSpace()
		if p.pos >= len(p.s) {
			break
		}
		v, err := p.value(0)
		if err != nil {
			return Value{}, err
		}
		items = append(items, v)
	}
	if len(items) == 1 {
		return items[0], nil
	}
	return List(items...), nil
}

type textParser struct {
	s   string
	pos int
}

func (p *textParser) fail(reason string) error {
	return &DecodeError{Offset: int64(p.pos), Reason: "text: " + reason}
}

func (p *textParser) skipSpace() {
	for p.pos < len(p.s) && (p.s[p.pos] == ' ' || p.s[p.pos] == '\t') {
		p.pos++
	}
}

func (p *textParser) value(depth int) (Value, error) {
	p.skipSpace()
	if p.pos >= len(p.s) {
		return Value{}, p.fail("unexpected end of line")
	}
	switch p.s[p.pos] {
	case '(':
		if depth >= MaxDepth {
			return Value{}, p.fail("lists nested too deep")
		}
		p.pos++
		items := []Value{}
		for {
			p.skipSpace()
			if p.pos >= len(p.s) {
				return Value{}, p.fail("unterminated list")
			}
			if p.s[p.pos] == ')' {
				p.pos++
				return List(items...), nil
			}
			it, err := p.value(depth + 1)
			if err != nil {
				return Value{}, err
			}
			items = append(items, it)
		}
	case ')':
		return Value{}, p.fail("unbalanced ')'")
	case '{':
		end := strings.IndexByte(p.s[p.pos:], '}')
		if end < 0 {
			return Value{}, p.fail("unterminated blob")
		}
		body := p.s[p.pos+1 : p.pos+end]
		p.pos += end + 1
		fields := strings.Fields(body)
		b := make([]byte, 0, len(fields))
		for _, f := range fields {
			n, err := strconv.ParseUint(f, 10, 8)
			if err != nil {
				return Value{}, p.fail("bad blob byte " + strconv.Quote(f))
			}
			b = append(b, byte(n))
		}
		return Value{kind: KindBlob, blob: b}, nil
	case '[':
		end := strings.IndexByte(p.s[p.pos:], ']')
		if end < 0 {
			return Value{}, p.fail("unterminated vocab")
		}
		body := p.s[p.pos+1 : p.pos+end]
		p.pos += end + 1
		if strings.HasPrefix(body, "#") {
			n, err := strconv.ParseUint(body[1:], 10, 32)
			if err != nil {
				return Value{}, p.fail("bad vocab code")
			}
			return VocabValue(Vocab(n)), nil
		}
		if len(body) > 4 {
			return Value{}, p.fail("vocab longer than four characters")
		}
		return VocabValue(MakeVocab(body)), nil
	case '"':
		return p.quoted()
	}
	start := p.pos
	for p.pos < len(p.s) && p.s[p.pos] != ' ' && p.s[p.pos] != '\t' && p.s[p.pos] != ')' && p.s[p.pos] != '(' {
		p.pos++
	}
	return p.word(p.s[start:p.pos])
}

func (p *textParser) quoted() (Value, error) {
	start := p.pos
	p.pos++
	for p.pos < len(p.s) {
		switch p.s[p.pos] {
		case '\\':
			p.pos += 2
			continue
		case '"':
			p.pos++
			s, err := strconv.Unquote(p.s[start:p.pos])
			if err != nil {
				return Value{}, p.fail("bad string literal")
			}
			return String(s), nil
		}
		p.pos++
	}
	return Value{}, p.fail("unterminated string")
}

func (p *textParser) word(w string) (Value, error) {
	switch w {
	case "true":
		return Bool(true), nil
	case "false":
		return Bool(false), nil
	}
	for _, sfx := range []struct {
		s    string
		bits int
	}{{"i8", 8}, {"i16", 16}, {"i64", 64}} {
		if num, ok := strings.CutSuffix(w, sfx.s); ok {
			n, err := strconv.ParseInt(num, 10, sfx.bits)
			if errors.Is(err, strconv.ErrRange) {
				return Value{}, p.fail("integer out of range " + strconv.Quote(w))
			}
			if err != nil {
				break
			}
			switch sfx.bits {
			case 8:
				return Int8(int8(n)), nil
			case 16:
				return Int16(int16(n)), nil
			}
			return Int64(n), nil
		}
	}
	if num, ok := strings.CutSuffix(w, "f32"); ok {
		f, err := strconv.ParseFloat(num, 32)
		if errors.Is(err, strconv.ErrRange) {
			return Value{}, p.fail("float out of range " + strconv.Quote(w))
		}
		if err == nil {
			return Float32(float32(f)), nil
		}
	}
	if n, err := strconv.ParseInt(w, 10, 32); err == nil {
		return Int32(int32(n)), nil
	}
	if f, err := strconv.ParseFloat(w, 64); err == nil {
		return Float64(f), nil
	}
	// bare words typed by hand are strings
	return String(w), nil
}
