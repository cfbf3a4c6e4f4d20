package state

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// CachedStore puts a ristretto L1 read cache in front of another StateStore.
// Reads check L1 first and backfill it on a miss; writes go to the backend
// and then invalidate L1. Coherence holds for writers in this process only.
//
// An L1 entry never outlives the TTL of the write that produced it. Keys
// written through another process carry no known deadline and are bounded
// by the cache lifetime alone.
type CachedStore struct {
	next      StateStore
	cache     *ristretto.Cache[string, cachedValue]
	ttl       time.Duration
	now       func() time.Time
	mu        sync.RWMutex         // orders backfills against invalidations
	deadlines map[string]time.Time // expiry of keys written with a TTL; guarded by mu
	closed    atomic.Bool
}

type cachedValue struct {
	val     []byte
	expires time.Time // zero = no deadline
}

func (v cachedValue) expired(now time.Time) bool {
	return !v.expires.IsZero() && !now.Before(v.expires)
}

// CachedOption configures a CachedStore.
type CachedOption func(*CachedStore)

// WithCachedClock sets the time source used for entry deadlines. It should
// match the backend's clock.
func WithCachedClock(now func() time.Time) CachedOption {
	return func(s *CachedStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewCachedStore wraps next. ttl bounds how long an L1 entry lives; maxCost
// is the total size of cached values in bytes. The cached store takes
// ownership of next and closes it on Close.
func NewCachedStore(next StateStore, ttl time.Duration, maxCost int64, opts ...CachedOption) (*CachedStore, error) {
	if next == nil {
		return nil, fmt.Errorf("backing store required")
	}
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}
	if maxCost <= 0 {
		maxCost = 64 << 20
	}
	counters := maxCost / 100 * 10 // ~10x expected items
	if counters < 1000 {
		counters = 1000
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, cachedValue]{
		NumCounters: counters,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("ristretto: %w", err)
	}
	s := &CachedStore{
		next:      next,
		cache:     c,
		ttl:       ttl,
		now:       time.Now,
		deadlines: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get checks L1, then the backend. On a backend hit, L1 is backfilled.
func (s *CachedStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}

	now := s.now()
	if v, ok := s.cache.Get(key); ok {
		if !v.expired(now) {
			return cloneBytes(v.val), nil
		}
		s.cache.Del(key)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	val, err := s.next.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	life := s.ttl
	deadline, bounded := s.deadlines[key]
	if bounded {
		remaining := deadline.Sub(now)
		if remaining <= 0 {
			// Backend has not caught up with the write's TTL yet.
			return nil, ErrNotFound
		}
		life = min(life, remaining)
	}
	s.cache.SetWithTTL(key, cachedValue{val: cloneBytes(val), expires: deadline}, int64(len(val))+1, life)
	s.cache.Wait()
	return val, nil
}

// Set writes to the backend and invalidates L1.
func (s *CachedStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.closed.Load() {
		return ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.next.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	if ttl > 0 {
		s.deadlines[key] = s.now().Add(ttl)
	} else {
		delete(s.deadlines, key)
	}
	s.invalidate(key)
	return nil
}

// Delete removes from the backend and L1.
func (s *CachedStore) Delete(ctx context.Context, key string) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existed, err := s.next.Delete(ctx, key)
	delete(s.deadlines, key)
	s.invalidate(key)
	return existed, err
}

// List is served by the backend.
func (s *CachedStore) List(ctx context.Context, prefix string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return s.next.List(ctx, prefix)
}

// PurgeExpired forwards to the backend when it supports purging.
func (s *CachedStore) PurgeExpired(ctx context.Context) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	s.mu.Lock()
	now := s.now()
	for key, deadline := range s.deadlines {
		if !now.Before(deadline) {
			delete(s.deadlines, key)
			s.cache.Del(key)
		}
	}
	s.mu.Unlock()

	p, ok := s.next.(Purger)
	if !ok {
		return 0, nil
	}
	return p.PurgeExpired(ctx)
}

func (s *CachedStore) invalidate(key string) {
	s.cache.Del(key)
	s.cache.Wait()
}

// Close releases the cache and closes the backend.
func (s *CachedStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.cache.Close()
	return s.next.Close()
}
