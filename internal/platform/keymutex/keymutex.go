// Package keymutex provides per-key read/write locks so mutations on one
// entity key serialize while operations on unrelated keys proceed in
// parallel. Lock entries are reference-counted and removed once idle, so the
// map does not grow with the key space.
package keymutex

import "sync"

type entry struct {
	refs int
	mu   sync.RWMutex
}

// Map is a collection of reference-counted RWMutexes keyed by string.
// The zero value is not usable; call New.
type Map struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func New() *Map {
	return &Map{entries: make(map[string]*entry)}
}

func (m *Map) acquire(key string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	e.refs++
	return e
}

func (m *Map) release(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
}

// Lock takes the write lock for key and returns the matching unlock.
func (m *Map) Lock(key string) func() {
	e := m.acquire(key)
	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		m.release(key, e)
	}
}

// RLock takes the read lock for key and returns the matching unlock. Readers
// on the same key run concurrently with each other but exclude writers, so a
// reader never observes a half-applied multi-step mutation.
func (m *Map) RLock(key string) func() {
	e := m.acquire(key)
	e.mu.RLock()
	return func() {
		e.mu.RUnlock()
		m.release(key, e)
	}
}
