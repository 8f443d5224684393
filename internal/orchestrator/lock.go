package orchestrator

import (
	"context"
	"strings"
	"sync"
)

type keyLock struct {
	ch   chan struct{}
	refs int
}

// KeyedLock serializes work per key. Entries are reference counted and
// dropped once nobody holds or waits for them.
type KeyedLock struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

// NewKeyedLock returns an empty KeyedLock.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{locks: make(map[string]*keyLock)}
}

// Lock waits for key and returns the function that releases it. An empty key
// is never contended. If ctx ends while waiting, Lock returns ctx.Err().
func (k *KeyedLock) Lock(ctx context.Context, key string) (func(), error) {
	if strings.TrimSpace(key) == "" {
		return func() {}, nil
	}

	k.mu.Lock()
	lock := k.locks[key]
	if lock == nil {
		lock = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[key] = lock
	}
	lock.refs++
	k.mu.Unlock()

	select {
	case lock.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, lock)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lock.ch
			k.release(key, lock)
		})
	}, nil
}

func (k *KeyedLock) release(key string, lock *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	lock.refs--
	if lock.refs <= 0 {
		delete(k.locks, key)
	}
}

// Len returns the number of keys currently held or awaited.
func (k *KeyedLock) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
