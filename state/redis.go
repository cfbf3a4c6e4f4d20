package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements StateStore on a go-redis UniversalClient, so the same
// code serves a single node, a sentinel group or a cluster.
type RedisStore struct {
	client    redis.UniversalClient
	ownClient bool
	scanCount int64
	closed    atomic.Bool
}

// RedisStoreConfig holds Redis connection settings.
type RedisStoreConfig struct {
	// Client is an existing client to use. When nil, one is built from the
	// fields below and closed with the store.
	Client redis.UniversalClient

	Addresses []string
	Username  string
	Password  string
	DB        int

	// ScanCount is the SCAN COUNT hint used by List.
	// Default: 100
	ScanCount int64
}

// NewRedisStore creates a Redis-backed store and verifies connectivity.
func NewRedisStore(ctx context.Context, cfg RedisStoreConfig) (*RedisStore, error) {
	if cfg.ScanCount <= 0 {
		cfg.ScanCount = 100
	}

	client, own := cfg.Client, false
	if client == nil {
		if len(cfg.Addresses) == 0 {
			return nil, fmt.Errorf("redis addresses empty")
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    cfg.Addresses,
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		own = true
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		if own {
			_ = client.Close()
		}
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{client: client, ownClient: own, scanCount: cfg.ScanCount}, nil
}

// Get retrieves a value by key.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}

	val, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

// Set stores a value. A positive ttl is sent as PX so sub-second lifetimes
// survive.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ValidateTTL(ttl); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}

	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes a key.
func (s *RedisStore) Delete(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	if s.closed.Load() {
		return false, ErrClosed
	}

	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis del: %w", err)
	}
	return n > 0, nil
}

// List returns all keys with the given prefix. On a cluster every master is
// scanned.
func (s *RedisStore) List(ctx context.Context, prefix string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	pattern := escapeGlob(prefix) + "*"

	if cluster, ok := s.client.(*redis.ClusterClient); ok {
		var (
			mu   sync.Mutex
			keys []string
		)
		err := cluster.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
			found, err := scanKeys(ctx, node, pattern, prefix, s.scanCount)
			if err != nil {
				return err
			}
			mu.Lock()
			keys = append(keys, found...)
			mu.Unlock()
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("redis scan: %w", err)
		}
		return keys, nil
	}

	keys, err := scanKeys(ctx, s.client, pattern, prefix, s.scanCount)
	if err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return keys, nil
}

func scanKeys(ctx context.Context, c redis.Cmdable, pattern, prefix string, count int64) ([]string, error) {
	seen := make(map[string]struct{})
	var keys []string
	iter := c.Scan(ctx, 0, pattern, count).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		// SCAN may return a key more than once.
		if _, dup := seen[key]; dup || !strings.HasPrefix(key, prefix) {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// escapeGlob escapes the characters SCAN MATCH treats as wildcards.
func escapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Client returns the underlying client.
func (s *RedisStore) Client() redis.UniversalClient {
	return s.client
}

// Close shuts down the store. A client built by the store is closed; a
// caller-supplied one is left open.
func (s *RedisStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.ownClient {
		return s.client.Close()
	}
	return nil
}
