// Package state provides the persistent key-value layer beneath the
// storage-backed task store.
//
// The StateStore interface is deliberately small: Get, Set with an optional
// TTL, Delete, and List by key prefix. Backends:
//
//   - MemoryStore: process-local map with a TTL cleanup ticker (testing, dev)
//   - RedisStore: go-redis UniversalClient (single node, sentinel or cluster)
//   - SQLStore: database/sql over the pure-Go modernc SQLite driver
//   - NATSStore: NATS JetStream KV bucket
//   - CachedStore: ristretto L1 read cache in front of any of the above
//
// # Usage
//
//	// Testing: In-memory
//	store := state.NewMemoryStore()
//	defer store.Close()
//
//	store.Set(ctx, "acme:tasks:task_1", []byte(`{}`), time.Hour)
//	val, _ := store.Get(ctx, "acme:tasks:task_1")
//	keys, _ := store.List(ctx, "acme:tasks:")
//
//	// From configuration
//	store, err := state.Open(ctx, cfg.Storage)
package state
