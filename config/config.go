// Package config provides configuration loading for the task lifecycle
// manager. Precedence: defaults < TOML file < environment variables.
package config

import "time"

// Store types accepted by Tasks.StoreType.
const (
	StoreTypeMemory  = "memory"
	StoreTypeStorage = "storage"
)

// Storage backends accepted by Storage.Backend.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendNATS   = "nats"
)

// Config holds all runtime configuration.
type Config struct {
	Tasks     Tasks     `toml:"tasks"`
	Storage   Storage   `toml:"storage"`
	Logging   Logging   `toml:"logging"`
	Telemetry Telemetry `toml:"telemetry"`
	Metrics   Metrics   `toml:"metrics"`
}

// Tasks selects and tunes the task store owned by the manager.
type Tasks struct {
	StoreType       string `toml:"store_type" validate:"oneof=memory storage"`
	TenantID        string `toml:"tenant_id" validate:"required_if=StoreType storage,excludes=:"`
	KeyPrefix       string `toml:"key_prefix" validate:"required,excludes=:"`
	DefaultTTLMs    int64  `toml:"default_ttl_ms" validate:"gte=0"`    // 0 = never expires
	PollIntervalMs  int64  `toml:"poll_interval_ms" validate:"gt=0"`   // advisory re-poll interval
	PageSize        int    `toml:"page_size" validate:"gt=0,lte=1000"` // listTasks page size
	SweepIntervalMs int64  `toml:"sweep_interval_ms" validate:"gte=0"` // 0 = lazy expiry only
}

// DefaultTTL returns the default TTL and whether one is configured.
func (t Tasks) DefaultTTL() (time.Duration, bool) {
	if t.DefaultTTLMs <= 0 {
		return 0, false
	}
	return time.Duration(t.DefaultTTLMs) * time.Millisecond, true
}

// PollInterval returns the advisory poll interval.
func (t Tasks) PollInterval() time.Duration {
	return time.Duration(t.PollIntervalMs) * time.Millisecond
}

// SweepInterval returns the expiry sweep period; zero disables the sweep.
func (t Tasks) SweepInterval() time.Duration {
	return time.Duration(t.SweepIntervalMs) * time.Millisecond
}

// Storage selects the persistent key-value backend for the storage store.
type Storage struct {
	Backend      string `toml:"backend" validate:"oneof=memory redis sqlite nats"`
	CacheTTLMs   int64  `toml:"cache_ttl_ms" validate:"gte=0"` // >0 enables the L1 read cache
	CacheMaxCost int64  `toml:"cache_max_cost" validate:"gte=0"`

	Redis  Redis  `toml:"redis"`
	SQLite SQLite `toml:"sqlite"`
	NATS   NATS   `toml:"nats"`
}

// CacheTTL returns the L1 cache entry lifetime; zero disables the cache.
func (s Storage) CacheTTL() time.Duration {
	return time.Duration(s.CacheTTLMs) * time.Millisecond
}

// Redis holds go-redis UniversalClient options.
type Redis struct {
	Addresses []string `toml:"addresses"`
	Username  string   `toml:"username"`
	Password  string   `toml:"password"`
	DB        int      `toml:"db" validate:"gte=0"`
}

// SQLite holds the embedded database location.
type SQLite struct {
	// Path is a file path or a modernc DSN such as "file:tasks?mode=memory&cache=shared".
	Path string `toml:"path"`
}

// NATS holds JetStream KV configuration.
type NATS struct {
	URL    string `toml:"url"`
	Bucket string `toml:"bucket"`
}

// Logging holds console logging configuration.
type Logging struct {
	Level string `toml:"level" validate:"omitempty,oneof=debug info warn warning error DEBUG INFO WARN WARNING ERROR"`
}

// Telemetry holds tracing configuration.
type Telemetry struct {
	Tracing  bool   `toml:"tracing"`
	Debug    bool   `toml:"debug"` // include status messages in span attributes
	Name     string `toml:"name"`
	Exporter string `toml:"exporter" validate:"omitempty,oneof=stdout otlp"`
	Endpoint string `toml:"endpoint"` // OTLP gRPC endpoint; falls back to OTEL_EXPORTER_OTLP_ENDPOINT
	Insecure bool   `toml:"insecure"`
}

// Metrics holds Prometheus instrumentation configuration.
type Metrics struct {
	Enabled   bool   `toml:"enabled"`
	Namespace string `toml:"namespace"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Tasks: Tasks{
			StoreType:      StoreTypeMemory,
			TenantID:       "default",
			KeyPrefix:      "tasks",
			PollIntervalMs: 1000,
			PageSize:       10,
		},
		Storage: Storage{
			Backend:      BackendMemory,
			CacheMaxCost: 64 << 20,
			Redis: Redis{
				Addresses: []string{"127.0.0.1:6379"},
			},
			SQLite: SQLite{
				Path: "tasks.db",
			},
			NATS: NATS{
				URL:    "nats://127.0.0.1:4222",
				Bucket: "task-state",
			},
		},
		Logging: Logging{
			Level: "info",
		},
		Telemetry: Telemetry{
			Name:     "taskstate",
			Exporter: "stdout",
		},
		Metrics: Metrics{
			Namespace: "taskstate",
		},
	}
}
