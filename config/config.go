// Package config loads the service configuration from the environment.
//
// Every variable is optional. Unset variables keep the defaults of the
// compose setup; LOCAL runs against a sqlite file, PROD against DATABASE_URL.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-record-services/cache"
	"github.com/goliatone/go-record-services/internal/docstore"
	"github.com/goliatone/go-record-services/internal/sqlstore"
	"github.com/goliatone/go-record-services/lookup"
)

// Environment selects the relational backend defaults.
type Environment string

const (
	Local Environment = "LOCAL"
	Prod  Environment = "PROD"
)

// Config is the full service configuration.
type Config struct {
	Environment Environment
	LogLevel    slog.Level

	HTTP HTTPConfig

	Elasticsearch docstore.Config
	SQL           sqlstore.Config
	UserAPI       lookup.Config
	Cache         cache.Config

	// EnrichConcurrency bounds the parallel user lookups of one listing.
	EnrichConcurrency  int
	EnrichCacheTimeout time.Duration
}

// HTTPConfig configures the front-end listener.
type HTTPConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
	Metrics         bool
}

// Validate checks the listen address and shutdown timeout.
func (h HTTPConfig) Validate() error {
	return validation.ValidateStruct(&h,
		validation.Field(&h.Addr, validation.Required),
		validation.Field(&h.ShutdownTimeout, validation.Min(time.Duration(0))),
	)
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	sql := sqlstore.DefaultConfig()
	sql.Echo = true
	return Config{
		Environment: Local,
		LogLevel:    slog.LevelInfo,
		HTTP: HTTPConfig{
			Addr:            ":8000",
			ShutdownTimeout: 10 * time.Second,
			Metrics:         true,
		},
		Elasticsearch:      docstore.DefaultConfig(),
		SQL:                sql,
		UserAPI:            lookup.DefaultConfig(),
		Cache:              cache.DefaultConfig(),
		EnrichConcurrency:  8,
		EnrichCacheTimeout: time.Second,
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Environment, validation.Required, validation.In(Local, Prod)),
		validation.Field(&c.HTTP),
		validation.Field(&c.Elasticsearch),
		validation.Field(&c.SQL),
		validation.Field(&c.UserAPI),
		validation.Field(&c.Cache),
		validation.Field(&c.EnrichConcurrency, validation.Required, validation.Min(1)),
		validation.Field(&c.EnrichCacheTimeout, validation.Required, validation.Min(time.Millisecond)),
	)
}

// Load reads the process environment.
func Load() (Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LookupFunc reports the value of an environment variable.
type LookupFunc func(key string) (string, bool)

// LoadFrom reads the configuration through lookup and validates it.
func LoadFrom(lookup LookupFunc) (Config, error) {
	cfg := Default()
	e := env{lookup: lookup}

	cfg.Environment = Environment(strings.ToUpper(e.str("ENVIRONMENT", string(cfg.Environment))))
	cfg.LogLevel = e.level("LOG_LEVEL", cfg.LogLevel)

	cfg.HTTP.Addr = e.str("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.HTTP.ShutdownTimeout = e.duration("SHUTDOWN_TIMEOUT", cfg.HTTP.ShutdownTimeout)
	cfg.HTTP.Metrics = e.boolean("METRICS_ENABLED", cfg.HTTP.Metrics)

	cfg.Elasticsearch.Addresses = e.list("ELASTICSEARCH_ADDRESSES", cfg.Elasticsearch.Addresses)
	cfg.Elasticsearch.Username = e.str("ELASTICSEARCH_USERNAME", cfg.Elasticsearch.Username)
	cfg.Elasticsearch.Password = e.str("ELASTICSEARCH_PASSWORD", cfg.Elasticsearch.Password)
	cfg.Elasticsearch.Timeout = e.duration("ELASTICSEARCH_TIMEOUT", cfg.Elasticsearch.Timeout)
	cfg.Elasticsearch.Shards = e.integer("ELASTICSEARCH_SHARDS", cfg.Elasticsearch.Shards)
	cfg.Elasticsearch.Replicas = e.integer("ELASTICSEARCH_REPLICAS", cfg.Elasticsearch.Replicas)

	if cfg.Environment == Prod {
		cfg.SQL.Driver = sqlstore.DriverPostgres
		cfg.SQL.DSN = e.str("DATABASE_URL", "postgres://users:users@db_users:5432/users?sslmode=disable")
		cfg.SQL.Echo = false
	} else {
		cfg.SQL.DSN = e.str("SQLITE_DSN", cfg.SQL.DSN)
	}
	cfg.SQL.Driver = e.str("DATABASE_DRIVER", cfg.SQL.Driver)
	cfg.SQL.Timeout = e.duration("DATABASE_TIMEOUT", cfg.SQL.Timeout)
	cfg.SQL.MaxOpenConns = e.integer("DATABASE_MAX_OPEN_CONNS", cfg.SQL.MaxOpenConns)
	cfg.SQL.Reset = e.boolean("RESET_DB", cfg.SQL.Reset)
	cfg.SQL.Echo = e.boolean("SQL_ECHO", cfg.SQL.Echo)

	cfg.UserAPI.BaseURL = e.str("USER_API_ADDRESS", cfg.UserAPI.BaseURL)
	cfg.UserAPI.Timeout = e.duration("USER_API_TIMEOUT", cfg.UserAPI.Timeout)

	cfg.Cache.Capacity = e.integer("CACHE_CAPACITY", cfg.Cache.Capacity)
	cfg.Cache.NumShards = e.integer("CACHE_SHARDS", cfg.Cache.NumShards)
	cfg.Cache.TTL = e.duration("CACHE_TTL", cfg.Cache.TTL)
	cfg.Cache.EvictionPercentage = e.integer("CACHE_EVICTION_PERCENTAGE", cfg.Cache.EvictionPercentage)

	cfg.EnrichConcurrency = e.integer("ENRICH_CONCURRENCY", cfg.EnrichConcurrency)
	cfg.EnrichCacheTimeout = e.duration("ENRICH_CACHE_TIMEOUT", cfg.EnrichCacheTimeout)

	if len(e.errs) > 0 {
		return Config{}, fmt.Errorf("config: %s", strings.Join(e.errs, "; "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// env parses typed values, collecting every malformed variable.
type env struct {
	lookup LookupFunc
	errs   []string
}

func (e *env) raw(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *env) str(key, def string) string {
	if v, ok := e.raw(key); ok {
		return v
	}
	return def
}

func (e *env) list(key string, def []string) []string {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (e *env) integer(key string, def int) int {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %q is not an integer", key, v))
		return def
	}
	return n
}

func (e *env) boolean(key string, def bool) bool {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %q is not a boolean", key, v))
		return def
	}
	return b
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %q is not a duration", key, v))
		return def
	}
	return d
}

func (e *env) level(key string, def slog.Level) slog.Level {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %q is not a log level", key, v))
		return def
	}
	return l
}
