// Package lock provides the per-account serialization used around ledger
// writes: an in-process keyed mutex for a single instance and a Redis
// SET NX lock when several API instances share one database.
package lock

import (
	"context"
	"errors"
	"slices"
	"sync"
)

var ErrLockFailed = errors.New("failed to acquire lock")

// normalize sorts and dedupes keys so every caller acquires them in the
// same order.
func normalize(keys []string) []string {
	out := slices.Clone(keys)
	slices.Sort(out)
	return slices.Compact(out)
}

func once(fn func()) func() {
	var o sync.Once
	return func() { o.Do(fn) }
}

type slot struct {
	ch   chan struct{}
	refs int
}

// KeyedMutex is a set of mutexes addressed by string key. Idle keys are
// dropped so the map only holds keys that are locked or being waited on.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[string]*slot
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: map[string]*slot{}}
}

func (k *KeyedMutex) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalize(keys)
	held := make([]string, 0, len(keys))
	for _, key := range keys {
		if err := k.acquire(ctx, key); err != nil {
			k.releaseAll(held)
			return nil, err
		}
		held = append(held, key)
	}
	return once(func() { k.releaseAll(held) }), nil
}

func (k *KeyedMutex) acquire(ctx context.Context, key string) error {
	k.mu.Lock()
	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	k.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		k.release(key, false)
		return ctx.Err()
	}
}

func (k *KeyedMutex) releaseAll(keys []string) {
	for i := len(keys) - 1; i >= 0; i-- {
		k.release(keys[i], true)
	}
}

func (k *KeyedMutex) release(key string, held bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s := k.slots[key]
	if held {
		<-s.ch
	}
	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
}
