package dialog

import "sync"

// keyedMutex serializes turns per call ID. Entries are reference-counted and
// removed once the last holder releases, so the map does not grow with call
// churn.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*callLock
}

type callLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*callLock)}
}

// lock acquires the mutex for key, creating it if needed.
func (k *keyedMutex) lock(key string) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &callLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
}

// unlock releases the mutex for key and drops the entry when no other
// goroutine is holding or waiting on it.
func (k *keyedMutex) unlock(key string) {
	k.mu.Lock()
	l := k.locks[key]
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()

	l.mu.Unlock()
}
