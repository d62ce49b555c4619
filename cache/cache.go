package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrInvalidResultType is returned when a cached value is not of the
// requested type.
var ErrInvalidResultType = errors.New("cache: cached value has an unexpected type")

// Store is a cache-aside key/value store. Set reports failure through its
// error, which callers treat as a hard failure.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// FetchFn loads a value from the source of truth.
type FetchFn[T any] func(ctx context.Context) (T, error)

// ReadThrough caches the result of fetch functions.
type ReadThrough interface {
	GetOrFetch(ctx context.Context, key string, fetch func(context.Context) (any, error)) (any, error)
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
}

// Service is a cache serving both access styles.
type Service interface {
	Store
	ReadThrough
}

// GetOrFetch is the typed form of ReadThrough.GetOrFetch.
func GetOrFetch[T any](ctx context.Context, rt ReadThrough, key string, fetch FetchFn[T]) (T, error) {
	var zero T
	res, err := rt.GetOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("%w: key %q holds %T", ErrInvalidResultType, key, res)
	}
	return v, nil
}

// GetValue reads and decodes the msgpack value stored under key.
func GetValue[T any](ctx context.Context, s Store, key string) (T, bool, error) {
	var v T
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return v, false, err
	}
	if err := msgpack.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("%w: decode %q: %v", ErrInvalidResultType, key, err)
	}
	return v, true, nil
}

// SetValue encodes v with msgpack and stores it under key.
func SetValue[T any](ctx context.Context, s Store, key string, v T) error {
	raw, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}
