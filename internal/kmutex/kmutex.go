// Package kmutex provides per-key mutual exclusion. Balance mutations are
// serialised per uid, lifecycle transitions per swap id, unread counters per
// conversation id.
package kmutex

import "sync"

// KMutex hands out one mutex per key. Keys are never evicted; the expected
// key cardinality (active users and swaps in one process) stays small.
type KMutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// New creates an empty keyed mutex.
func New() *KMutex {
	return &KMutex{locks: make(map[string]*entry)}
}

// Lock acquires the mutex for key, creating it on first use.
func (k *KMutex) Lock(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the mutex for key and drops it once uncontended.
func (k *KMutex) Unlock(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if ok {
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
	}
	k.mu.Unlock()

	if ok {
		e.mu.Unlock()
	}
}

// LockPair acquires both keys in sorted order to avoid lock inversion when
// two parties are touched together (settlement writes both balances).
func (k *KMutex) LockPair(a, b string) {
	if a == b {
		k.Lock(a)
		return
	}
	if a > b {
		a, b = b, a
	}
	k.Lock(a)
	k.Lock(b)
}

// UnlockPair releases both keys.
func (k *KMutex) UnlockPair(a, b string) {
	if a == b {
		k.Unlock(a)
		return
	}
	if a > b {
		a, b = b, a
	}
	k.Unlock(b)
	k.Unlock(a)
}
