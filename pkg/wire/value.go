package wire

import (
	"bytes"
	"fmt"
	"math"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindVocab
	KindString
	KindBlob
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt8:
		return "int8"
	case KindInt16:
		return "int16"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindVocab:
		return "vocab"
	case KindString:
		return "string"
	case KindBlob:
		return "blob"
	case KindList:
		return "list"
	default:
		return "invalid"
	}
}

// Value is one self-describing wire value. The zero Value is invalid and
// cannot be encoded.
type Value struct {
	kind Kind
	num  uint64 // integers, bools, vocab codes and float bits
	str  string
	blob []byte
	list []Value
}

func Bool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.num = 1
	}
	return v
}

func Int8(i int8) Value       { return Value{kind: KindInt8, num: uint64(int64(i))} }
func Int16(i int16) Value     { return Value{kind: KindInt16, num: uint64(int64(i))} }
func Int32(i int32) Value     { return Value{kind: KindInt32, num: uint64(int64(i))} }
func Int64(i int64) Value     { return Value{kind: KindInt64, num: uint64(i)} }
func Float32(f float32) Value { return Value{kind: KindFloat32, num: uint64(math.Float32bits(f))} }
func Float64(f float64) Value { return Value{kind: KindFloat64, num: math.Float64bits(f)} }
func VocabValue(c Vocab) Value {
	return Value{kind: KindVocab, num: uint64(c)}
}
func String(s string) Value { return Value{kind: KindString, str: s} }

// Blob copies b so later changes by the caller are not observed.
func Blob(b []byte) Value {
	return Value{kind: KindBlob, blob: append([]byte{}, b...)}
}

// List builds a list value. The slice is retained.
func List(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindList, list: items}
}

func (v Value) Kind() Kind    { return v.kind }
func (v Value) IsValid() bool { return v.kind != KindInvalid }

func (v Value) AsBool() bool       { return v.num != 0 }
func (v Value) AsInt8() int8       { return int8(v.num) }
func (v Value) AsInt16() int16     { return int16(v.num) }
func (v Value) AsInt32() int32     { return int32(v.num) }
func (v Value) AsInt64() int64     { return int64(v.num) }
func (v Value) AsFloat32() float32 { return math.Float32frombits(uint32(v.num)) }
func (v Value) AsFloat64() float64 { return math.Float64frombits(v.num) }
func (v Value) AsVocab() Vocab     { return Vocab(uint32(v.num)) }
func (v Value) AsString() string   { return v.str }
func (v Value) AsBlob() []byte     { return v.blob }
func (v Value) Len() int           { return len(v.list) }
func (v Value) Items() []Value     { return v.list }

// Index returns the i-th list element, or an invalid Value when out of range.
func (v Value) Index(i int) Value {
	if v.kind != KindList || i < 0 || i >= len(v.list) {
		return Value{}
	}
	return v.list[i]
}

// IsInt reports whether v holds any integer width.
func (v Value) IsInt() bool {
	switch v.kind {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return true
	}
	return false
}

// Int widens any integer kind to int64.
func (v Value) Int() int64 {
	switch v.kind {
	case KindInt8:
		return int64(v.AsInt8())
	case KindInt16:
		return int64(v.AsInt16())
	case KindInt32:
		return int64(v.AsInt32())
	case KindInt64, KindBool:
		return int64(v.num)
	case KindFloat32:
		return int64(v.AsFloat32())
	case KindFloat64:
		return int64(v.AsFloat64())
	}
	return 0
}

// Equal compares kind and content. Floats compare by bit pattern.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindBlob:
		return bytes.Equal(v.blob, o.blob)
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	default:
		return v.num == o.num
	}
}

// String renders v in text mode.
func (v Value) String() string {
	var sb strings.Builder
	appendText(&sb, v)
	return sb.String()
}

// GoString helps test failure output.
func (v Value) GoString() string { return fmt.Sprintf("wire.Value(%s:%s)", v.kind, v.String()) }
