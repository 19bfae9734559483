package chronicle

import "sync"

// KeyedLock serializes operations that share a logical key without blocking
// operations on unrelated keys. Each busy key carries one pending-completion
// handle; a new caller waits on the previous handle, then installs its own.
// The entry is removed when the last holder settles, so an idle key costs
// nothing.
type KeyedLock struct {
	mu   sync.Mutex
	tail map[string]*lockToken
}

type lockToken struct {
	done chan struct{}
}

// NewKeyedLock creates an empty lock table.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{tail: make(map[string]*lockToken)}
}

// Lock acquires the key and returns the release function. Callers sharing a
// key acquire strictly in the order their Lock calls arrive; callers on
// distinct keys never wait on each other.
func (l *KeyedLock) Lock(key string) (release func()) {
	tok := &lockToken{done: make(chan struct{})}

	l.mu.Lock()
	prev := l.tail[key]
	l.tail[key] = tok
	l.mu.Unlock()

	if prev != nil {
		<-prev.done
	}

	return func() {
		l.mu.Lock()
		if l.tail[key] == tok {
			// No waiter installed itself after us; drop the entry so the
			// key carries zero overhead while idle.
			delete(l.tail, key)
		}
		l.mu.Unlock()
		close(tok.done)
	}
}

// Do runs fn while holding the key. The lock is released whether fn
// succeeds or fails.
func (l *KeyedLock) Do(key string, fn func() error) error {
	release := l.Lock(key)
	defer release()
	return fn()
}

// Busy reports whether any operation currently holds or waits on the key.
// Intended for tests and diagnostics.
func (l *KeyedLock) Busy(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.tail[key]
	return ok
}
