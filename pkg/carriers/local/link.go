package local

import (
	"fmt"
	"sync"
	"time"

	"portbus/pkg/carrier"
	"portbus/pkg/wire"
)

// ErrPeerGone unblocks one end of a pair when the other end is closed or
// interrupted.
var ErrPeerGone = fmt.Errorf("%w: local peer gone", carrier.ErrTransportFailure)

// envelope carries one value across the pair. The receiver answers on ack.
type envelope struct {
	value wire.Value
	ack   chan carrier.Ack
}

// link is the shared state of one sender/receiver pair.
//
// slot admits one envelope at a time: the sender fills it before handing a
// value over and the receiver empties it once it has acknowledged that
// value, so a second handoff blocks until the first is consumed.
type link struct {
	from string

	slot    chan struct{}
	handoff chan *envelope

	claimed   chan struct{}
	claimOnce sync.Once

	done     chan struct{}
	doneOnce sync.Once
}

func newLink(from string) *link {
	return &link{
		from:    from,
		slot:    make(chan struct{}, 1),
		handoff: make(chan *envelope, 1),
		claimed: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (l *link) markClaimed() { l.claimOnce.Do(func() { close(l.claimed) }) }
func (l *link) poison()      { l.doneOnce.Do(func() { close(l.done) }) }

func (l *link) gone() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// post waits for the slot and hands v over.
func (l *link) post(v wire.Value) (*envelope, error) {
	if l.gone() {
		return nil, ErrPeerGone
	}
	select {
	case l.slot <- struct{}{}:
	case <-l.done:
		return nil, ErrPeerGone
	}
	env := &envelope{value: v, ack: make(chan carrier.Ack, 1)}
	select {
	case l.handoff <- env:
		return env, nil
	case <-l.done:
		return nil, ErrPeerGone
	}
}

func (l *link) take() (*envelope, error) {
	if l.gone() {
		return nil, ErrPeerGone
	}
	select {
	case env := <-l.handoff:
		return env, nil
	case <-l.done:
		return nil, ErrPeerGone
	}
}

// settle answers env and frees the slot for the next handoff.
func (l *link) settle(env *envelope, a carrier.Ack) {
	env.ack <- a
	select {
	case <-l.slot:
	default:
	}
}

func (l *link) await(env *envelope) (carrier.Ack, time.Duration, error) {
	start := time.Now()
	select {
	case a := <-env.ack:
		return a, time.Since(start), nil
	case <-l.done:
		// an answer that raced the teardown still counts
		select {
		case a := <-env.ack:
			return a, time.Since(start), nil
		default:
		}
		return carrier.Ack{}, time.Since(start), ErrPeerGone
	}
}
