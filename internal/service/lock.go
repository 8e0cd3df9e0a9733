package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/voyagen/streamshelf/internal/cache"
)

// Locker serializes ingestion of one playlist id.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// keyedMutex is an in-process Locker; callers for the same key wait their turn.
// A slot lives only while someone holds or waits for its key.
type keyedMutex struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{slots: make(map[string]*slot)}
}

func (k *keyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	sl, ok := k.slots[key]
	if !ok {
		sl = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = sl
	}
	sl.refs++
	k.mu.Unlock()

	select {
	case sl.ch <- struct{}{}:
		return func() {
			<-sl.ch
			k.release(key, sl)
		}, nil
	case <-ctx.Done():
		k.release(key, sl)
		return nil, ctx.Err()
	}
}

func (k *keyedMutex) release(key string, sl *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	sl.refs--
	if sl.refs == 0 {
		delete(k.slots, key)
	}
}

// RedisLocker rejects a second writer for the same key across processes.
type RedisLocker struct {
	r   *cache.Redis
	ttl time.Duration
}

// NewRedisLocker returns a RedisLocker whose locks expire after ttl.
func NewRedisLocker(r *cache.Redis, ttl time.Duration) *RedisLocker {
	return &RedisLocker{r: r, ttl: ttl}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	unlock, err := cache.TryLock(ctx, l.r, key, l.ttl)
	if errors.Is(err, cache.ErrLocked) {
		return nil, ErrIngestInProgress
	}
	return unlock, err
}

// chainLocker acquires each locker in order and releases in reverse.
type chainLocker []Locker

func (c chainLocker) Lock(ctx context.Context, key string) (func(), error) {
	var held []func()
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}
	for _, l := range c {
		unlock, err := l.Lock(ctx, key)
		if err != nil {
			release()
			return nil, err
		}
		held = append(held, unlock)
	}
	return release, nil
}
