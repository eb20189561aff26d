package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// entry is one immutable cache record. Validity metadata is captured when the
// entry is built and never changes afterwards.
type entry[V any] struct {
	value V
	end   time.Time // bars: series end; signals: bar timestamp
	count int       // bars: series length
}

// slot holds the current entry for one key. Writers to the same key take mu;
// readers only load the pointer, so they see the old or the new entry whole.
type slot[V any] struct {
	mu  sync.Mutex
	cur atomic.Pointer[entry[V]]
}

// store is a keyed map of slots. Distinct keys never share a lock.
type store[K comparable, V any] struct {
	slots sync.Map // K -> *slot[V]
}

func (s *store[K, V]) get(k K) *entry[V] {
	v, ok := s.slots.Load(k)
	if !ok {
		return nil
	}
	return v.(*slot[V]).cur.Load()
}

func (s *store[K, V]) slot(k K) *slot[V] {
	if v, ok := s.slots.Load(k); ok {
		return v.(*slot[V])
	}
	v, _ := s.slots.LoadOrStore(k, &slot[V]{})
	return v.(*slot[V])
}

// set replaces the entry for k wholesale.
func (s *store[K, V]) set(k K, e *entry[V]) {
	sl := s.slot(k)
	sl.mu.Lock()
	sl.cur.Store(e)
	sl.mu.Unlock()
}

// drop clears k only if it still holds e, so a stale reader never removes a
// newer entry written concurrently.
func (s *store[K, V]) drop(k K, e *entry[V]) {
	v, ok := s.slots.Load(k)
	if !ok {
		return
	}
	sl := v.(*slot[V])
	sl.mu.Lock()
	sl.cur.CompareAndSwap(e, nil)
	sl.mu.Unlock()
}

func (s *store[K, V]) invalidate(k K) {
	v, ok := s.slots.Load(k)
	if !ok {
		return
	}
	sl := v.(*slot[V])
	sl.mu.Lock()
	sl.cur.Store(nil)
	sl.mu.Unlock()
}

func (s *store[K, V]) invalidateAll() {
	s.slots.Range(func(k, v any) bool {
		sl := v.(*slot[V])
		sl.mu.Lock()
		sl.cur.Store(nil)
		sl.mu.Unlock()
		return true
	})
}

func (s *store[K, V]) len() int {
	n := 0
	s.slots.Range(func(_, v any) bool {
		if v.(*slot[V]).cur.Load() != nil {
			n++
		}
		return true
	})
	return n
}
