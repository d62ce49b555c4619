package repositorycache

import (
	"context"
	"log/slog"

	"github.com/goliatone/go-record-services/cache"
	"github.com/goliatone/go-record-services/repository"
	"github.com/goliatone/go-record-services/store"
)

const (
	opFindByID = "find_by_id"
	opFindAll  = "find_all"
)

// Repository is the record repository surface the decorator wraps.
type Repository[T any] interface {
	Insert(ctx context.Context, record T, id string) (string, error)
	FindByID(ctx context.Context, id string) (T, error)
	Update(ctx context.Context, id string, patch repository.Patch) (int64, error)
	Delete(ctx context.Context, id string) (string, error)
	FindAll(ctx context.Context, filter store.Filter, pageSize, pageNumber int) ([]T, int64, error)
}

var _ Repository[repository.User] = (*repository.Users)(nil)

// page is the cached form of a FindAll result.
type page[T any] struct {
	Records []T
	Total   int64
}

// CachedRepository serves reads from a read-through cache and invalidates
// the affected entries after successful writes.
type CachedRepository[T any] struct {
	base   Repository[T]
	cache  cache.ReadThrough
	keys   cache.Namespaced
	logger *slog.Logger
}

var _ Repository[repository.User] = (*CachedRepository[repository.User])(nil)

// Option customizes a CachedRepository.
type Option func(*options)

type options struct {
	namespace string
	logger    *slog.Logger
}

// WithNamespace overrides the key namespace, which defaults to the snake
// cased type name.
func WithNamespace(ns string) Option {
	return func(o *options) { o.namespace = ns }
}

// WithLogger sets the logger used to report failed invalidations.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New wraps base.
func New[T any](base Repository[T], rt cache.ReadThrough, opts ...Option) *CachedRepository[T] {
	o := options{namespace: namespaceOf[T](), logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &CachedRepository[T]{
		base:   base,
		cache:  rt,
		keys:   cache.NewKeySerializer(o.namespace),
		logger: o.logger,
	}
}

// FindByID reads through the cache. Errors, including NotFound, are not
// cached.
func (c *CachedRepository[T]) FindByID(ctx context.Context, id string) (T, error) {
	return cache.GetOrFetch(ctx, c.cache, c.keys.SerializeKey(opFindByID, id), func(ctx context.Context) (T, error) {
		return c.base.FindByID(ctx, id)
	})
}

// FindAll reads a page through the cache.
func (c *CachedRepository[T]) FindAll(ctx context.Context, filter store.Filter, pageSize, pageNumber int) ([]T, int64, error) {
	key := c.keys.SerializeKey(opFindAll, filter, pageSize, pageNumber)
	res, err := cache.GetOrFetch(ctx, c.cache, key, func(ctx context.Context) (page[T], error) {
		records, total, err := c.base.FindAll(ctx, filter, pageSize, pageNumber)
		return page[T]{Records: records, Total: total}, err
	})
	if err != nil {
		return nil, 0, err
	}
	return res.Records, res.Total, nil
}

// Insert writes through and drops every cached page.
func (c *CachedRepository[T]) Insert(ctx context.Context, record T, id string) (string, error) {
	newID, err := c.base.Insert(ctx, record, id)
	if err != nil {
		return "", err
	}
	c.invalidatePages(ctx)
	return newID, nil
}

// Update writes through and drops the record and every cached page.
func (c *CachedRepository[T]) Update(ctx context.Context, id string, patch repository.Patch) (int64, error) {
	version, err := c.base.Update(ctx, id, patch)
	if err != nil {
		return 0, err
	}
	c.invalidateRecord(ctx, id)
	return version, nil
}

// Delete writes through and drops the record and every cached page.
func (c *CachedRepository[T]) Delete(ctx context.Context, id string) (string, error) {
	res, err := c.base.Delete(ctx, id)
	if err != nil {
		return "", err
	}
	c.invalidateRecord(ctx, id)
	return res, nil
}

func (c *CachedRepository[T]) invalidateRecord(ctx context.Context, id string) {
	key := c.keys.SerializeKey(opFindByID, id)
	if err := c.cache.Delete(ctx, key); err != nil {
		c.logger.Warn("cache invalidation failed", "key", key, "error", err)
	}
	c.invalidatePages(ctx)
}

func (c *CachedRepository[T]) invalidatePages(ctx context.Context) {
	prefix := c.keys.Prefix(opFindAll)
	if err := c.cache.DeleteByPrefix(ctx, prefix); err != nil {
		c.logger.Warn("cache invalidation failed", "prefix", prefix, "error", err)
	}
}
