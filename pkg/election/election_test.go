package election

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type member struct{ id int }

func holders(t *Table[*member], key string, ms []*member) int {
	n := 0
	for _, m := range ms {
		if h, ok := t.Holder(key); ok && h == m {
			n++
		}
	}
	return n
}

func TestAutoClaim(t *testing.T) {
	tb := New[*member]()
	a, b := &member{1}, &member{2}
	tb.Add("k", a)
	tb.Add("k", b)
	tb.Add("k", b)
	require.Equal(t, 2, tb.Members("k"))

	_, ok := tb.Holder("k")
	require.False(t, ok)
	// b asks first and wins even though a arrived first
	require.True(t, tb.IsHolder("k", b))
	require.False(t, tb.IsHolder("k", a))
}

func TestHandoffScenario(t *testing.T) {
	tb := New[*member]()
	ms := []*member{{1}, {2}, {3}}
	for _, m := range ms {
		tb.Add("/out/net=10.0.0.5", m)
	}
	require.True(t, tb.IsHolder("/out/net=10.0.0.5", ms[0]))
	require.False(t, tb.IsHolder("/out/net=10.0.0.5", ms[1]))

	res := tb.Remove("/out/net=10.0.0.5", ms[0])
	require.True(t, res.WasHolder)
	require.True(t, res.Promoted)
	require.Same(t, ms[1], res.Successor)
	require.True(t, tb.IsHolder("/out/net=10.0.0.5", ms[1]))
	require.False(t, tb.IsHolder("/out/net=10.0.0.5", ms[2]))

	releases := 0
	for _, m := range ms[1:] {
		if tb.Remove("/out/net=10.0.0.5", m).Released {
			releases++
		}
	}
	require.Equal(t, 1, releases)
	require.Empty(t, tb.Keys())
}

func TestRemoveNonHolder(t *testing.T) {
	tb := New[*member]()
	a, b := &member{1}, &member{2}
	require.True(t, tb.IsHolder("k", a))
	tb.Add("k", b)
	res := tb.Remove("k", b)
	require.False(t, res.WasHolder)
	require.False(t, res.Promoted)
	require.False(t, res.Released)
	require.True(t, tb.IsHolder("k", a))
	require.Equal(t, Result[*member]{}, tb.Remove("missing", a))
}

// For random sequences of joins, elections and departures under one key,
// never more than one member holds it, and a holder's departure promotes
// exactly one of the members left.
func TestUniquenessProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 200; round++ {
		tb := New[*member]()
		var live []*member
		next := 0
		for step := 0; step < 40; step++ {
			switch op := rng.Intn(3); {
			case op == 0 || len(live) == 0:
				m := &member{next}
				next++
				tb.Add("k", m)
				live = append(live, m)
			case op == 1:
				tb.IsHolder("k", live[rng.Intn(len(live))])
			default:
				i := rng.Intn(len(live))
				gone := live[i]
				live = append(live[:i], live[i+1:]...)
				res := tb.Remove("k", gone)
				if res.WasHolder && len(live) > 0 {
					require.True(t, res.Promoted)
					require.Contains(t, live, res.Successor)
				}
				require.Equal(t, len(live) == 0, res.Released)
			}
			require.LessOrEqual(t, holders(tb, "k", live), 1)
			if h, ok := tb.Holder("k"); ok {
				require.Contains(t, live, h)
			}
		}
	}
}

func TestConcurrentClaims(t *testing.T) {
	tb := New[*member]()
	ms := make([]*member, 32)
	for i := range ms {
		ms[i] = &member{i}
	}
	var wg sync.WaitGroup
	wins := make(chan *member, len(ms))
	for _, m := range ms {
		wg.Add(1)
		go func(m *member) {
			defer wg.Done()
			if tb.IsHolder("k", m) {
				wins <- m
			}
		}(m)
	}
	wg.Wait()
	close(wins)
	require.Len(t, wins, 1)
}
