package index

import "sync"

// DocumentLocks serializes writers per document key (id or source_url) while letting different
// documents proceed.
type DocumentLocks struct {
	mu    sync.Mutex
	locks map[string]*documentLock
}

type documentLock struct {
	mu   sync.Mutex
	refs int
}

func NewDocumentLocks() *DocumentLocks {
	return &DocumentLocks{locks: make(map[string]*documentLock)}
}

// Lock blocks until the key is free and returns the matching unlock func.
func (l *DocumentLocks) Lock(key string) func() {
	l.mu.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &documentLock{}
		l.locks[key] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()

	return func() {
		lock.mu.Unlock()
		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}
