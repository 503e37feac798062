package wire

import "strings"

// Tag is the 4-byte word that prefixes every binary value.
type Tag uint32

const (
	TagInt32   Tag = 0x001
	TagString  Tag = 0x004
	TagVocab   Tag = 0x009
	TagFloat64 Tag = 0x00A
	TagBlob    Tag = 0x00C
	TagInt64   Tag = 0x011
	TagInt8    Tag = 0x020
	TagInt16   Tag = 0x040
	TagFloat32 Tag = 0x080
	TagList    Tag = 0x100
	TagBool    Tag = 0x200
)

// IsList reports whether t introduces a list, typed or not.
func (t Tag) IsList() bool { return t&TagList != 0 }

// Elem returns the element tag of a typed list, or 0 for a plain list.
func (t Tag) Elem() Tag { return t &^ TagList }

func (t Tag) valid() bool {
	if t.IsList() {
		e := t.Elem()
		return e == 0 || (!e.IsList() && e.valid())
	}
	switch t {
	case TagInt32, TagString, TagVocab, TagFloat64, TagBlob, TagInt64, TagInt8, TagInt16, TagFloat32, TagBool:
		return true
	}
	return false
}

// width is the raw element size of a fixed-width tag, 0 for variable width.
func (t Tag) width() int {
	switch t {
	case TagInt8, TagBool:
		return 1
	case TagInt16:
		return 2
	case TagInt32, TagVocab, TagFloat32:
		return 4
	case TagInt64, TagFloat64:
		return 8
	}
	return 0
}

// TagOf returns the binary tag for a scalar kind.
func TagOf(k Kind) Tag {
	switch k {
	case KindBool:
		return TagBool
	case KindInt8:
		return TagInt8
	case KindInt16:
		return TagInt16
	case KindInt32:
		return TagInt32
	case KindInt64:
		return TagInt64
	case KindFloat32:
		return TagFloat32
	case KindFloat64:
		return TagFloat64
	case KindVocab:
		return TagVocab
	case KindString:
		return TagString
	case KindBlob:
		return TagBlob
	case KindList:
		return TagList
	}
	return 0
}

func kindOf(t Tag) Kind {
	switch t {
	case TagBool:
		return KindBool
	case TagInt8:
		return KindInt8
	case TagInt16:
		return KindInt16
	case TagInt32:
		return KindInt32
	case TagInt64:
		return KindInt64
	case TagFloat32:
		return KindFloat32
	case TagFloat64:
		return KindFloat64
	case TagVocab:
		return KindVocab
	case TagString:
		return KindString
	case TagBlob:
		return KindBlob
	}
	if t.IsList() {
		return KindList
	}
	return KindInvalid
}

// Vocab is up to four ASCII characters packed little-endian into a word.
type Vocab uint32

// MakeVocab packs s. Characters past the fourth are dropped.
func MakeVocab(s string) Vocab {
	var v Vocab
	for i := 0; i < len(s) && i < 4; i++ {
		v |= Vocab(s[i]) << (8 * i)
	}
	return v
}

func (v Vocab) String() string {
	var b [4]byte
	n := 0
	for i := 0; i < 4; i++ {
		c := byte(v >> (8 * i))
		if c == 0 {
			break
		}
		b[i] = c
		n++
	}
	return string(b[:n])
}

// IsVocabWord reports whether s fits a vocab code losslessly.
func IsVocabWord(s string) bool {
	return len(s) <= 4 && !strings.ContainsRune(s, 0)
}

// Common acknowledgement vocabulary.
var (
	VocabOK   = MakeVocab("ok")
	VocabFail = MakeVocab("fail")
)
