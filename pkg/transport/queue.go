package transport

import (
	"context"
	"errors"
	"sync"

	"portbus/pkg/stream"
)

// ErrListenerClosed is returned by Accept after Close.
var ErrListenerClosed = errors.New("transport: listener closed")

// Queue hands streams from an accept loop to Accept callers. The hand-off
// is unbuffered: Push blocks until a caller takes the stream or the queue
// closes, so a stream is never stranded in a closed queue.
type Queue struct {
	newCh     chan stream.Stream
	closeCh   chan struct{}
	closeOnce sync.Once
}

func NewQueue() *Queue {
	return &Queue{newCh: make(chan stream.Stream), closeCh: make(chan struct{})}
}

// Push offers s to Accept. It closes s and returns false when the queue
// closes first.
func (q *Queue) Push(s stream.Stream) bool {
	select {
	case q.newCh <- s:
		return true
	case <-q.closeCh:
		_ = s.Close()
		return false
	}
}

func (q *Queue) Accept(ctx context.Context) (stream.Stream, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.closeCh:
		return nil, ErrListenerClosed
	case s := <-q.newCh:
		return s, nil
	}
}

// Done is closed by Close.
func (q *Queue) Done() <-chan struct{} { return q.closeCh }

func (q *Queue) Close() { q.closeOnce.Do(func() { close(q.closeCh) }) }
