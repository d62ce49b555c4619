package cacheinfra

import (
	"context"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/viccon/sturdyc"
)

// Config holds the sturdyc client settings.
type Config struct {
	// Capacity is the maximum number of entries the cache holds.
	Capacity int

	// NumShards splits the cache to reduce lock contention.
	NumShards int

	// TTL is how long an entry stays valid.
	TTL time.Duration

	// EvictionPercentage is the share of entries dropped when the cache is
	// full, between 1 and 100.
	EvictionPercentage int

	// EarlyRefresh enables background refreshes of read-through entries.
	// Nil disables them.
	EarlyRefresh *EarlyRefreshConfig

	// MissingRecordStorage remembers keys whose fetch reported
	// sturdyc.ErrNotFound.
	MissingRecordStorage bool

	// EvictionInterval is how often expired entries are swept. Zero keeps
	// the sturdyc default.
	EvictionInterval time.Duration
}

// EarlyRefreshConfig mirrors sturdyc.WithEarlyRefreshes.
type EarlyRefreshConfig struct {
	MinAsyncRefreshTime time.Duration
	MaxAsyncRefreshTime time.Duration
	SyncRefreshTime     time.Duration
	RetryBaseDelay      time.Duration
}

// DefaultConfig returns the defaults used by both services.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          256,
		TTL:                5 * time.Minute,
		EvictionPercentage: 10,
		EarlyRefresh: &EarlyRefreshConfig{
			MinAsyncRefreshTime: 10 * time.Second,
			MaxAsyncRefreshTime: 20 * time.Second,
			SyncRefreshTime:     30 * time.Second,
			RetryBaseDelay:      100 * time.Millisecond,
		},
		MissingRecordStorage: true,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Capacity, validation.Required, validation.Min(1)),
		validation.Field(&c.NumShards, validation.Required, validation.Min(1)),
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Nanosecond)),
		validation.Field(&c.EvictionPercentage, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.EvictionInterval, validation.Min(time.Duration(0))),
	)
	if err != nil {
		return err
	}
	if c.EarlyRefresh != nil {
		return c.EarlyRefresh.Validate()
	}
	return nil
}

// Validate checks that no refresh duration is negative and that the async
// window is ordered.
func (e EarlyRefreshConfig) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.MinAsyncRefreshTime, validation.Min(time.Duration(0))),
		validation.Field(&e.MaxAsyncRefreshTime, validation.Min(e.MinAsyncRefreshTime)),
		validation.Field(&e.SyncRefreshTime, validation.Min(time.Duration(0))),
		validation.Field(&e.RetryBaseDelay, validation.Min(time.Duration(0))),
	)
}

// Options maps the optional settings to sturdyc options. Capacity, shards,
// TTL and eviction go to sturdyc.New directly.
func (c Config) Options() []sturdyc.Option {
	var options []sturdyc.Option
	if c.EarlyRefresh != nil {
		options = append(options, sturdyc.WithEarlyRefreshes(
			c.EarlyRefresh.MinAsyncRefreshTime,
			c.EarlyRefresh.MaxAsyncRefreshTime,
			c.EarlyRefresh.SyncRefreshTime,
			c.EarlyRefresh.RetryBaseDelay,
		))
	}
	if c.MissingRecordStorage {
		options = append(options, sturdyc.WithMissingRecordStorage())
	}
	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}
	return options
}

// Sturdyc is an in-process cache backed by a sturdyc client. It serves raw
// byte entries for cache-aside callers and typed values for read-through
// callers from the same client.
type Sturdyc struct {
	client *sturdyc.Client[any]
}

// NewSturdyc validates cfg and builds the client.
func NewSturdyc(cfg Config) (*Sturdyc, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("cache config: %w", err)
	}
	client := sturdyc.New[any](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.Options()...,
	)
	return &Sturdyc{client: client}, nil
}

// Get returns the bytes stored under key.
func (s *Sturdyc) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	v, ok := s.client.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, false, fmt.Errorf("cache entry %q holds %T, not bytes", key, v)
	}
	return b, true, nil
}

// Set stores value under key.
func (s *Sturdyc) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.client.Set(key, value)
	return nil
}

// noValue stands in for a nil fetch result. The client rejects an untyped
// nil as an invalid type, which would hide the fetch error.
type noValue struct{}

// GetOrFetch returns the entry under key, calling fetch on a miss and
// storing its result. Fetch errors are returned and not stored.
func (s *Sturdyc) GetOrFetch(ctx context.Context, key string, fetch func(context.Context) (any, error)) (any, error) {
	if fetch == nil {
		return nil, fmt.Errorf("cache: nil fetch function for %q", key)
	}
	v, err := s.client.GetOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		res, err := fetch(ctx)
		if res == nil {
			return noValue{}, err
		}
		return res, err
	})
	if _, empty := v.(noValue); empty {
		v = nil
	}
	return v, err
}

// Delete removes key.
func (s *Sturdyc) Delete(_ context.Context, key string) error {
	s.client.Delete(key)
	return nil
}

// DeleteByPrefix removes every key starting with prefix.
func (s *Sturdyc) DeleteByPrefix(_ context.Context, prefix string) error {
	for _, key := range s.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			s.client.Delete(key)
		}
	}
	return nil
}

// Size reports the number of entries.
func (s *Sturdyc) Size() int { return s.client.Size() }
