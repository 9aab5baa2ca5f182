// Package keylock provides a mutex keyed by string, used to serialize
// scan processing per badge UID. Work for different keys runs fully in
// parallel; work for the same key runs one at a time in arrival order.
package keylock

import (
	"context"
	"sync"
)

type entry struct {
	sem  chan struct{}
	refs int
}

// KeyedMutex holds one lock per active key. Lock state is created on
// first use and evicted as soon as the last holder or waiter for the key
// leaves, so the map only ever tracks the current working set of keys.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func New() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*entry)}
}

// RunExclusive executes fn while holding the lock for key. Acquisition
// honors ctx: if ctx is done before the lock is free, RunExclusive
// returns ctx.Err() without running fn. The lock is released on every
// exit path and fn's error is returned unchanged.
func (k *KeyedMutex) RunExclusive(ctx context.Context, key string, fn func() error) error {
	e := k.retain(key)

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		k.release(key, e)
		return ctx.Err()
	}

	defer func() {
		<-e.sem
		k.release(key, e)
	}()
	return fn()
}

// Len reports how many keys currently hold lock state.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

func (k *KeyedMutex) retain(key string) *entry {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	return e
}

func (k *KeyedMutex) release(key string, e *entry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}
