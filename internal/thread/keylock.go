package thread

import "sync"

// keyLocks serializes work per chat address. The resolver's read-then-write
// sequence is a critical section: two concurrent messages from the same
// sender must not each discover or create a different case.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*sync.Mutex)}
}

func (k *keyLocks) lock(key string) *sync.Mutex {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m
}
