// Package election keeps, per key, one holder chosen among the members that
// share the key. The multicast carrier uses it so that exactly one local
// sender owns the OS-level group socket for a destination.
package election

import (
	"sort"
	"sync"
)

// Table maps keys to a holder and the members waiting behind it. Members
// are compared with ==, so pointer types work best. The zero Table is not
// usable; call New. All methods are safe for concurrent use.
type Table[M comparable] struct {
	mu   sync.Mutex
	keys map[string]*entry[M]
}

type entry[M comparable] struct {
	holder    M
	hasHolder bool
	// members in arrival order, holder included
	members []M
}

func New[M comparable]() *Table[M] { return &Table[M]{keys: make(map[string]*entry[M])} }

func (e *entry[M]) index(m M) int {
	for i, x := range e.members {
		if x == m {
			return i
		}
	}
	return -1
}

// Add registers m under key. Adding a member twice is a no-op. It does not
// claim the key.
func (t *Table[M]) Add(key string, m M) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.addLocked(key, m)
}

func (t *Table[M]) addLocked(key string, m M) *entry[M] {
	e := t.keys[key]
	if e == nil {
		e = &entry[M]{}
		t.keys[key] = e
	}
	if e.index(m) < 0 {
		e.members = append(e.members, m)
	}
	return e
}

// IsHolder reports whether m holds key. When nobody holds key yet, m claims
// it (registering first if needed) and the answer is true.
func (t *Table[M]) IsHolder(key string, m M) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.addLocked(key, m)
	if !e.hasHolder {
		e.holder, e.hasHolder = m, true
	}
	return e.holder == m
}

// Holder returns the current holder of key.
func (t *Table[M]) Holder(key string) (M, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e := t.keys[key]; e != nil && e.hasHolder {
		return e.holder, true
	}
	var zero M
	return zero, false
}

// Result describes what Remove changed.
type Result[M comparable] struct {
	// WasHolder is set when the removed member held the key.
	WasHolder bool
	// Successor is the member promoted in its place, valid when Promoted.
	Successor M
	Promoted  bool
	// Released is set when the key has no members left and was dropped.
	Released bool
}

// Remove takes m out of key. If m held the key, the earliest remaining
// member becomes holder; if no member remains the key is dropped.
func (t *Table[M]) Remove(key string, m M) Result[M] {
	t.mu.Lock()
	defer t.mu.Unlock()
	var res Result[M]
	e := t.keys[key]
	if e == nil {
		return res
	}
	if i := e.index(m); i >= 0 {
		e.members = append(e.members[:i], e.members[i+1:]...)
	}
	if e.hasHolder && e.holder == m {
		res.WasHolder = true
		var zero M
		e.holder, e.hasHolder = zero, false
		if len(e.members) > 0 {
			e.holder, e.hasHolder = e.members[0], true
			res.Successor, res.Promoted = e.holder, true
		}
	}
	if len(e.members) == 0 {
		delete(t.keys, key)
		res.Released = true
	}
	return res
}

// Members returns how many members key has.
func (t *Table[M]) Members(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e := t.keys[key]; e != nil {
		return len(e.members)
	}
	return 0
}

// Keys returns all keys with members, sorted.
func (t *Table[M]) Keys() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.keys))
	for k := range t.keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Reset drops every key.
func (t *Table[M]) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.keys = make(map[string]*entry[M])
}
