package memkv

import (
	"container/heap"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ErrFull is returned by writes that would push the stored bytes past
// Options.MaxBytes.
var ErrFull = errors.New("memkv: store full")

type Options struct {
	Shards   int    // number of shards, 64 when zero
	MaxBytes uint64 // cap on the total value size, 0 means unbounded
}

func (o Options) withDefaults() Options {
	if o.Shards <= 0 {
		o.Shards = 64
	}
	return o
}

type Store struct {
	opts    Options
	shards  []shard
	expq    *expQueue
	closeCh chan struct{}
	once    sync.Once
	wg      sync.WaitGroup

	nowFn func() time.Time

	mKeys    atomic.Uint64
	mBytes   atomic.Uint64
	mSets    atomic.Uint64
	mGets    atomic.Uint64
	mHits    atomic.Uint64
	mMisses  atomic.Uint64
	mDels    atomic.Uint64
	mExpired atomic.Uint64
}

type shard struct {
	mu sync.RWMutex
	m  map[string]*entry
}

type entry struct {
	val      []byte
	expireAt int64 // unix nanos, 0 means no TTL
}

func (e *entry) expired(now int64) bool { return e.expireAt != 0 && e.expireAt <= now }

func New(opts Options) *Store {
	opts = opts.withDefaults()
	s := &Store{
		opts:    opts,
		shards:  make([]shard, opts.Shards),
		expq:    &expQueue{},
		closeCh: make(chan struct{}),
		nowFn:   time.Now,
	}
	s.expq.cond = sync.NewCond(&s.expq.mu)
	for i := range s.shards {
		s.shards[i].m = make(map[string]*entry)
	}
	s.wg.Add(1)
	go s.expirer()
	return s
}

// Close stops the expirer. The store stays readable afterwards but TTLs are
// only enforced lazily.
func (s *Store) Close() {
	s.once.Do(func() {
		close(s.closeCh)
		s.expq.mu.Lock()
		s.expq.cond.Broadcast()
		s.expq.mu.Unlock()
		s.wg.Wait()
	})
}

func (s *Store) shardFor(key string) *shard {
	// FNV-1a
	var h uint64 = 1469598103934665603
	for i := 0; i < len(key); i++ {
		h ^= uint64(key[i])
		h *= 1099511628211
	}
	return &s.shards[int(h%uint64(len(s.shards)))]
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// reserve accounts for delta more bytes, failing when MaxBytes would be
// exceeded.
func (s *Store) reserve(delta uint64) bool {
	if s.opts.MaxBytes == 0 {
		s.mBytes.Add(delta)
		return true
	}
	for {
		cur := s.mBytes.Load()
		next := cur + delta
		if next > s.opts.MaxBytes {
			return false
		}
		if s.mBytes.CompareAndSwap(cur, next) {
			return true
		}
	}
}

func (s *Store) release(n int) {
	if n <= 0 {
		return
	}
	for {
		cur := s.mBytes.Load()
		next := cur - min(cur, uint64(n))
		if s.mBytes.CompareAndSwap(cur, next) {
			return
		}
	}
}

// dropLocked removes key from sh, which must be write-locked.
func (s *Store) dropLocked(sh *shard, key string, e *entry, expired bool) {
	delete(sh.m, key)
	s.mKeys.Add(^uint64(0))
	s.release(len(e.val))
	if expired {
		s.mExpired.Add(1)
	} else {
		s.mDels.Add(1)
	}
}

func (s *Store) deadline(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return s.nowFn().Add(ttl).UnixNano()
}

func (s *Store) put(key string, val []byte, ttl time.Duration, onlyNew bool) (bool, error) {
	expAt := s.deadline(ttl)
	v := clone(val)

	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	prev, existed := sh.m[key]
	if existed && prev.expired(s.nowFn().UnixNano()) {
		s.dropLocked(sh, key, prev, true)
		prev, existed = nil, false
	}
	if existed && onlyNew {
		return false, nil
	}
	oldLen := 0
	if existed {
		oldLen = len(prev.val)
	}
	delta := len(v) - oldLen
	if delta > 0 && !s.reserve(uint64(delta)) {
		return false, ErrFull
	}
	if delta < 0 {
		s.release(-delta)
	}
	sh.m[key] = &entry{val: v, expireAt: expAt}
	if !existed {
		s.mKeys.Add(1)
	}
	s.mSets.Add(1)
	if expAt != 0 {
		s.enqueueExpire(key, expAt)
	}
	return true, nil
}

// Set stores val under key, replacing any previous value and TTL. A write
// refused by MaxBytes returns ErrFull and leaves the old value in place.
func (s *Store) Set(key string, val []byte, ttl time.Duration) error {
	_, err := s.put(key, val, ttl, false)
	return err
}

// SetNX stores val only if key is absent. It reports whether it did.
func (s *Store) SetNX(key string, val []byte, ttl time.Duration) (bool, error) {
	return s.put(key, val, ttl, true)
}

// Get returns a copy of the value stored under key.
func (s *Store) Get(key string) ([]byte, bool) {
	s.mGets.Add(1)
	sh := s.shardFor(key)
	sh.mu.RLock()
	e, ok := sh.m[key]
	if !ok {
		sh.mu.RUnlock()
		s.mMisses.Add(1)
		return nil, false
	}
	if !e.expired(s.nowFn().UnixNano()) {
		out := clone(e.val)
		sh.mu.RUnlock()
		s.mHits.Add(1)
		return out, true
	}
	sh.mu.RUnlock()

	sh.mu.Lock()
	if e2, ok := sh.m[key]; ok && e2.expired(s.nowFn().UnixNano()) {
		s.dropLocked(sh, key, e2, true)
	}
	sh.mu.Unlock()
	s.mMisses.Add(1)
	return nil, false
}

func (s *Store) Exists(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Delete removes key and reports whether it was present.
func (s *Store) Delete(key string) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.m[key]
	if !ok {
		return false
	}
	expired := e.expired(s.nowFn().UnixNano())
	s.dropLocked(sh, key, e, expired)
	return !expired
}

// Keys returns the live keys starting with prefix, sorted.
func (s *Store) Keys(prefix string) []string {
	now := s.nowFn().UnixNano()
	var out []string
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for k, e := range sh.m {
			if strings.HasPrefix(k, prefix) && !e.expired(now) {
				out = append(out, k)
			}
		}
		sh.mu.RUnlock()
	}
	sort.Strings(out)
	return out
}

// Expire sets a new TTL on a live key; ttl <= 0 deletes it. It reports
// whether the key was live.
func (s *Store) Expire(key string, ttl time.Duration) bool {
	if ttl <= 0 {
		return s.Delete(key)
	}
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.m[key]
	if !ok {
		return false
	}
	if e.expired(s.nowFn().UnixNano()) {
		s.dropLocked(sh, key, e, true)
		return false
	}
	e.expireAt = s.deadline(ttl)
	s.enqueueExpire(key, e.expireAt)
	return true
}

type Stats struct {
	Keys    uint64
	Bytes   uint64
	Sets    uint64
	Gets    uint64
	Hits    uint64
	Misses  uint64
	Dels    uint64
	Expired uint64
}

// Metrics returns a snapshot of the counters without taking any lock.
func (s *Store) Metrics() Stats {
	return Stats{
		Keys:    s.mKeys.Load(),
		Bytes:   s.mBytes.Load(),
		Sets:    s.mSets.Load(),
		Gets:    s.mGets.Load(),
		Hits:    s.mHits.Load(),
		Misses:  s.mMisses.Load(),
		Dels:    s.mDels.Load(),
		Expired: s.mExpired.Load(),
	}
}

type expItem struct {
	when int64
	key  string
}

type expQueue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []expItem
}

func (q *expQueue) Len() int           { return len(q.items) }
func (q *expQueue) Less(i, j int) bool { return q.items[i].when < q.items[j].when }
func (q *expQueue) Swap(i, j int)      { q.items[i], q.items[j] = q.items[j], q.items[i] }
func (q *expQueue) Push(x any)         { q.items = append(q.items, x.(expItem)) }

func (q *expQueue) Pop() any {
	n := len(q.items)
	it := q.items[n-1]
	q.items = q.items[:n-1]
	return it
}

func (s *Store) enqueueExpire(key string, when int64) {
	s.expq.mu.Lock()
	heap.Push(s.expq, expItem{when: when, key: key})
	s.expq.cond.Broadcast()
	s.expq.mu.Unlock()
}

func (s *Store) closed() bool {
	select {
	case <-s.closeCh:
		return true
	default:
		return false
	}
}

// expirer deletes keys as their deadlines pass. Queue items are hints: a key
// that was overwritten or given a new TTL is checked against its current
// entry before removal.
func (s *Store) expirer() {
	defer s.wg.Done()
	for {
		s.expq.mu.Lock()
		for s.expq.Len() == 0 {
			if s.closed() {
				s.expq.mu.Unlock()
				return
			}
			s.expq.cond.Wait()
		}
		it := s.expq.items[0]
		now := s.nowFn().UnixNano()
		if it.when > now {
			s.expq.mu.Unlock()
			timer := time.NewTimer(time.Duration(it.when - now))
			select {
			case <-timer.C:
			case <-s.closeCh:
				timer.Stop()
				return
			}
			continue
		}
		heap.Pop(s.expq)
		s.expq.mu.Unlock()

		sh := s.shardFor(it.key)
		sh.mu.Lock()
		if e, ok := sh.m[it.key]; ok && e.expired(s.nowFn().UnixNano()) {
			s.dropLocked(sh, it.key, e, true)
		}
		sh.mu.Unlock()
	}
}
