package wire

import (
	"encoding/binary"
	"sort"
	"strings"
)

// TagSet is the set of command names a dispatcher understands. It drives
// greedy tag reading: segments keep being joined while the name read so far
// is a strict prefix of a known command.
type TagSet struct {
	names map[string]struct{}
}

func NewTagSet(names ...string) *TagSet {
	ts := &TagSet{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		ts.names[n] = struct{}{}
	}
	return ts
}

// Has reports an exact match.
func (ts *TagSet) Has(name string) bool {
	_, ok := ts.names[name]
	return ok
}

// Continues reports whether some known name extends prefix with "_".
func (ts *TagSet) Continues(prefix string) bool {
	p := prefix + "_"
	for n := range ts.names {
		if strings.HasPrefix(n, p) {
			return true
		}
	}
	return false
}

// Names returns the sorted command names.
func (ts *TagSet) Names() []string {
	out := make([]string, 0, len(ts.names))
	for n := range ts.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func segmentText(v Value) (string, bool) {
	switch v.kind {
	case KindVocab:
		return v.AsVocab().String(), true
	case KindString:
		return v.str, true
	}
	return "", false
}

// ReadTagSegment reads the next vocab or string. When the next value is
// something else it is left unread and ok is false.
func (r *Reader) ReadTagSegment() (seg string, ok bool, err error) {
	t, err := r.PeekTag()
	if err != nil {
		return "", false, err
	}
	if t != TagVocab && t != TagString {
		return "", false, nil
	}
	v, err := r.expect(t)
	if err != nil {
		return "", false, err
	}
	s, _ := segmentText(v)
	return s, true, nil
}

// peekSegment returns the next vocab or short string without consuming it.
func (r *Reader) peekSegment() (string, bool, error) {
	t, err := r.PeekTag()
	if err != nil {
		return "", false, err
	}
	p, err := r.d.r.Peek(8)
	if err != nil {
		return "", false, nil
	}
	switch t {
	case TagVocab:
		return Vocab(binary.LittleEndian.Uint32(p[4:8])).String(), true, nil
	case TagString:
		n := int(binary.LittleEndian.Uint32(p[4:8]))
		if n > maxPeekSegment {
			return "", false, nil
		}
		p, err = r.d.r.Peek(8 + n)
		if err != nil {
			return "", false, nil
		}
		return string(p[8:]), true, nil
	}
	return "", false, nil
}

const maxPeekSegment = 256

// ReadTag reads a command tag from a list body holding n more items. After
// the first segment it keeps joining segments with "_" only while the joined
// name is, or can still grow into, a name in set; the first segment that
// fails that test is left unread. It returns the joined name and the number
// of items consumed. Callers check set.Has(name) to detect unknown commands.
func (r *Reader) ReadTag(set *TagSet, n int) (name string, consumed int, err error) {
	if n <= 0 {
		return "", 0, nil
	}
	seg, ok, err := r.ReadTagSegment()
	if err != nil || !ok {
		return "", 0, err
	}
	name, consumed = seg, 1
	for consumed < n && set.Continues(name) {
		next, ok, err := r.peekSegment()
		if err != nil {
			return name, consumed, err
		}
		if !ok {
			break
		}
		cand := name + "_" + next
		if !set.Has(cand) && !set.Continues(cand) {
			break
		}
		if _, _, err := r.ReadTagSegment(); err != nil {
			return name, consumed, err
		}
		name = cand
		consumed++
	}
	return name, consumed, nil
}

// MatchTag applies the ReadTag rule to an already decoded list, which is how
// text-mode commands are dispatched. It returns the name and the arguments.
func MatchTag(set *TagSet, list Value) (string, []Value) {
	items := list.Items()
	if list.Kind() != KindList {
		items = []Value{list}
	}
	if len(items) == 0 {
		return "", nil
	}
	name, ok := segmentText(items[0])
	if !ok {
		return "", items
	}
	i := 1
	for ; i < len(items) && set.Continues(name); i++ {
		next, ok := segmentText(items[i])
		if !ok {
			break
		}
		cand := name + "_" + next
		if !set.Has(cand) && !set.Continues(cand) {
			break
		}
		name = cand
	}
	return name, items[i:]
}
