package state

import (
	"context"
	"fmt"

	"github.com/vinayprograms/taskstate/config"
)

// Open builds the backend named by cfg.Backend. When cfg.CacheTTLMs is
// positive the backend is wrapped in a CachedStore.
func Open(ctx context.Context, cfg config.Storage) (StateStore, error) {
	var (
		store StateStore
		err   error
	)

	switch cfg.Backend {
	case "", config.BackendMemory:
		store = NewMemoryStore()
	case config.BackendRedis:
		store, err = NewRedisStore(ctx, RedisStoreConfig{
			Addresses: cfg.Redis.Addresses,
			Username:  cfg.Redis.Username,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
		})
	case config.BackendSQLite:
		store, err = OpenSQLite(ctx, cfg.SQLite.Path)
	case config.BackendNATS:
		store, err = NewNATSStore(ctx, NATSStoreConfig{
			URL:    cfg.NATS.URL,
			Bucket: cfg.NATS.Bucket,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", cfg.Backend, err)
	}

	if ttl := cfg.CacheTTL(); ttl > 0 {
		cached, err := NewCachedStore(store, ttl, cfg.CacheMaxCost)
		if err != nil {
			store.Close()
			return nil, err
		}
		return cached, nil
	}
	return store, nil
}
