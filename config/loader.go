package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	errs "github.com/vinayprograms/taskstate/errors"
)

// Load reads configuration from the file named by TASKSTATE_CONFIG, falling
// back to "taskstate.toml" in the working directory.
func Load() (*Config, error) {
	path := os.Getenv("TASKSTATE_CONFIG")
	if path == "" {
		path = "taskstate.toml"
	}
	return LoadFrom(path)
}

// LoadFrom reads configuration from the given TOML file path.
// A missing file is not an error; defaults and env vars still apply.
func LoadFrom(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, errs.WrapWithCode(err, errs.ErrCodeConfiguration, fmt.Sprintf("read config %s", path))
		}
	}

	if err := loadEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Parse decodes configuration from TOML text on top of the defaults.
// Environment variables are not consulted.
func Parse(data string) (*Config, error) {
	cfg := Defaults()
	if _, err := toml.Decode(data, &cfg); err != nil {
		return nil, errs.WrapWithCode(err, errs.ErrCodeConfiguration, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return errs.New(errs.ErrCodeConfiguration,
				fmt.Sprintf("config: %s fails %q", fe.Namespace(), fe.Tag()),
				errs.WithMetadata("field", fe.Namespace()),
				errs.WithCause(err))
		}
		return errs.WrapWithCode(err, errs.ErrCodeConfiguration, "config")
	}
	if c.Tasks.StoreType == StoreTypeStorage && c.Storage.Backend == BackendRedis && len(c.Storage.Redis.Addresses) == 0 {
		return errs.New(errs.ErrCodeConfiguration, "config: storage.redis.addresses is required for the redis backend")
	}
	if c.Tasks.StoreType == StoreTypeStorage && c.Storage.Backend == BackendSQLite && c.Storage.SQLite.Path == "" {
		return errs.New(errs.ErrCodeConfiguration, "config: storage.sqlite.path is required for the sqlite backend")
	}
	if c.Tasks.StoreType == StoreTypeStorage && c.Storage.Backend == BackendNATS && (c.Storage.NATS.URL == "" || c.Storage.NATS.Bucket == "") {
		return errs.New(errs.ErrCodeConfiguration, "config: storage.nats.url and storage.nats.bucket are required for the nats backend")
	}
	return nil
}

// loadEnv overrides config fields from environment variables.
func loadEnv(cfg *Config) error {
	setString(&cfg.Tasks.StoreType, "TASKS_STORE_TYPE")
	setString(&cfg.Tasks.TenantID, "TASKS_TENANT_ID")
	setString(&cfg.Tasks.KeyPrefix, "TASKS_KEY_PREFIX")
	if err := setInt64(&cfg.Tasks.DefaultTTLMs, "TASKS_DEFAULT_TTL_MS"); err != nil {
		return err
	}
	if err := setInt64(&cfg.Tasks.PollIntervalMs, "TASKS_POLL_INTERVAL_MS"); err != nil {
		return err
	}
	if err := setInt(&cfg.Tasks.PageSize, "TASKS_PAGE_SIZE"); err != nil {
		return err
	}
	if err := setInt64(&cfg.Tasks.SweepIntervalMs, "TASKS_SWEEP_INTERVAL_MS"); err != nil {
		return err
	}

	setString(&cfg.Storage.Backend, "STORAGE_BACKEND")
	if err := setInt64(&cfg.Storage.CacheTTLMs, "STORAGE_CACHE_TTL_MS"); err != nil {
		return err
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Storage.Redis.Addresses = splitList(v)
	}
	setString(&cfg.Storage.Redis.Password, "REDIS_PASSWORD")
	setString(&cfg.Storage.SQLite.Path, "SQLITE_PATH")
	setString(&cfg.Storage.NATS.URL, "NATS_URL")
	setString(&cfg.Storage.NATS.Bucket, "NATS_BUCKET")

	setString(&cfg.Logging.Level, "LOG_LEVEL")
	if err := setBool(&cfg.Telemetry.Tracing, "TASKS_TRACING"); err != nil {
		return err
	}
	return setBool(&cfg.Metrics.Enabled, "TASKS_METRICS")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return envError(key, v, err)
	}
	*dst = n
	return nil
}

func setInt64(dst *int64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return envError(key, v, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return envError(key, v, err)
	}
	*dst = b
	return nil
}

func envError(key, value string, err error) error {
	return errs.WrapWithCode(err, errs.ErrCodeConfiguration,
		fmt.Sprintf("config: invalid %s=%q", key, value),
		errs.WithMetadata("env", key))
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
