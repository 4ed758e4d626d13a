// Package lock provides per-key mutual exclusion for critical sections such as
// settling an LNURL-withdraw offer. KeyedMutex covers a single process;
// RedisLocker extends it across replicas.
package lock

import (
	"context"
	"sync"
	"time"
)

// Locker acquires a named lock without blocking. When ok is true the caller
// must invoke unlock exactly once.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}

// KeyedMutex hands out one in-process lock per key. Entries are removed when
// released so the map does not grow with every k1 ever seen.
type KeyedMutex struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{held: make(map[string]struct{})}
}

// TryLock implements Locker. ttl is ignored for in-process locks.
func (m *KeyedMutex) TryLock(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.held[key]; busy {
		return nil, false, nil
	}
	m.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, key)
			m.mu.Unlock()
		})
	}, true, nil
}

// Held reports how many keys are currently locked.
func (m *KeyedMutex) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.held)
}
