package store

import "sync"

// ContactLocker serializes work per contact so two messages from the same contact
// never advance the same session concurrently.
type ContactLocker struct {
	mu    sync.Mutex
	locks map[string]*contactLock
}

type contactLock struct {
	mu   sync.Mutex
	refs int
}

// NewContactLocker creates an empty ContactLocker.
func NewContactLocker() *ContactLocker {
	return &ContactLocker{locks: make(map[string]*contactLock)}
}

// Lock blocks until the contact's lock is held and returns the function that releases it.
func (l *ContactLocker) Lock(contactID string) (unlock func()) {
	l.mu.Lock()
	cl, ok := l.locks[contactID]
	if !ok {
		cl = &contactLock{}
		l.locks[contactID] = cl
	}
	cl.refs++
	l.mu.Unlock()

	cl.mu.Lock()
	return func() {
		cl.mu.Unlock()
		l.mu.Lock()
		cl.refs--
		if cl.refs == 0 {
			delete(l.locks, contactID)
		}
		l.mu.Unlock()
	}
}

// held returns the number of contacts with an active or pending lock.
func (l *ContactLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
