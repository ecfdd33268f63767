package services

import (
	"context"
	"sync"
)

// keyedMutex serialises work per key. Waiting honours context cancellation.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyLock)}
}

func (k *keyedMutex) acquire(key string) *keyLock {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{sem: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	return l
}

func (k *keyedMutex) release(key string, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

// Lock waits for key. It returns ctx.Err() if the context ends first.
func (k *keyedMutex) Lock(ctx context.Context, key string) error {
	l := k.acquire(key)
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		k.release(key, l)
		return ctx.Err()
	}
}

// TryLock takes key only if it is free.
func (k *keyedMutex) TryLock(key string) bool {
	l := k.acquire(key)
	select {
	case l.sem <- struct{}{}:
		return true
	default:
		k.release(key, l)
		return false
	}
}

// Unlock releases key.
func (k *keyedMutex) Unlock(key string) {
	k.mu.Lock()
	l, ok := k.locks[key]
	k.mu.Unlock()
	if !ok {
		panic("keyedMutex: unlock of unlocked key " + key)
	}
	<-l.sem
	k.release(key, l)
}
