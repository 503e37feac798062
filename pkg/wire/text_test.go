package wire

import (
	"errors"
	"strings"
	"testing"
)

func TestTextForms(t *testing.T) {
	cases := []struct {
		v    Value
		want string
	}{
		{Int32(7), "7"},
		{Int8(-3), "-3i8"},
		{Int64(1), "1i64"},
		{Float64(2), "2.0"},
		{Float32(0.5), "0.5f32"},
		{VocabValue(VocabOK), "[ok]"},
		{String("a b"), `"a b"`},
		{Blob([]byte{1, 2}), "{1 2}"},
		{List(Int32(1), String("x"), Bool(false)), `(1 "x" false)`},
	}
	for _, tc := range cases {
		if got := tc.v.String(); got != tc.want {
			t.Fatalf("%#v renders %q, want %q", tc.v, got, tc.want)
		}
	}
}

func TestParseTextLine(t *testing.T) {
	v, err := ParseText(`  hello 5 (1.5 [ok])  `)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if v.Kind() != KindList || v.Len() != 3 {
		t.Fatalf("got %s", v)
	}
	if v.Index(0).AsString() != "hello" {
		t.Fatalf("bare word should be a string, got %#v", v.Index(0))
	}
	if v.Index(1).AsInt32() != 5 {
		t.Fatalf("got %#v", v.Index(1))
	}
	inner := v.Index(2)
	if inner.Len() != 2 || inner.Index(1).AsVocab() != VocabOK {
		t.Fatalf("got %#v", inner)
	}
}

func TestParseTextErrors(t *testing.T) {
	for _, s := range []string{`(1 2`, `"open`, `{1 300}`, `[toolong]`, `)`} {
		if _, err := ParseText(s); !errors.Is(err, ErrDecode) {
			t.Fatalf("%q: want decode error, got %v", s, err)
		}
	}
}

func TestSuffixedWordsFallBackToStrings(t *testing.T) {
	for _, w := range []string{"hi8", "xi16", "taxi64", "af32", "i8", "-i64"} {
		v, err := ParseText(w)
		if err != nil {
			t.Fatalf("%q: %v", w, err)
		}
		if v.Kind() != KindString || v.AsString() != w {
			t.Fatalf("%q: want string, got %#v", w, v)
		}
	}
	for _, tc := range []struct {
		in   string
		want Value
	}{
		{"-12i8", Int8(-12)},
		{"300i16", Int16(300)},
		{"2.5f32", Float32(2.5)},
	} {
		v, err := ParseText(tc.in)
		if err != nil {
			t.Fatalf("%q: %v", tc.in, err)
		}
		if !v.Equal(tc.want) {
			t.Fatalf("%q: got %#v, want %#v", tc.in, v, tc.want)
		}
	}
}

func TestOutOfRangeSuffixedNumberIsDecodeError(t *testing.T) {
	for _, s := range []string{"300i8", "70000i16", "1e60f32"} {
		if _, err := ParseText(s); !errors.Is(err, ErrDecode) {
			t.Fatalf("%q: want decode error, got %v", s, err)
		}
	}
}

func TestTextModeReader(t *testing.T) {
	r := NewReader(strings.NewReader("(1 2)\r\nsecond line\n"))
	v, err := r.ReadValue()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if r.Mode() != ModeText || v.Len() != 2 {
		t.Fatalf("mode %v value %s", r.Mode(), v)
	}
	v, err = r.ReadValue()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if v.Len() != 2 || v.Index(1).AsString() != "line" {
		t.Fatalf("got %s", v)
	}
}
