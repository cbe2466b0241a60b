// Package keylock provides mutual exclusion keyed by string, so that work on
// one key is serialized while different keys proceed in parallel.
package keylock

import (
	"context"
	"sync"
)

type entry struct {
	ch   chan struct{}
	refs int
}

// Map is a set of per-key locks. The zero value is ready to use. Entries are
// dropped once no goroutine holds or waits for them.
type Map struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New returns an empty Map.
func New() *Map {
	return &Map{}
}

func (m *Map) acquireRef(key string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = make(map[string]*entry)
	}
	e, ok := m.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		m.entries[key] = e
	}
	e.refs++
	return e
}

func (m *Map) releaseRef(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
}

// Lock blocks until the lock for key is held or ctx is done. On success the
// returned function releases the lock and must be called exactly once.
func (m *Map) Lock(ctx context.Context, key string) (func(), error) {
	e := m.acquireRef(key)
	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		m.releaseRef(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			m.releaseRef(key, e)
		})
	}, nil
}

// TryLock acquires the lock for key only if it is free.
func (m *Map) TryLock(key string) (func(), bool) {
	e := m.acquireRef(key)
	select {
	case e.ch <- struct{}{}:
	default:
		m.releaseRef(key, e)
		return nil, false
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			m.releaseRef(key, e)
		})
	}, true
}

// Len reports how many keys are currently held or awaited.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
