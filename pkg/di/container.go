package di

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/goliatone/go-record-services/aggregate"
	"github.com/goliatone/go-record-services/cache"
	"github.com/goliatone/go-record-services/config"
	"github.com/goliatone/go-record-services/httpapi"
	"github.com/goliatone/go-record-services/internal/docstore"
	"github.com/goliatone/go-record-services/internal/sqlstore"
	"github.com/goliatone/go-record-services/lookup"
	"github.com/goliatone/go-record-services/repository"
	"github.com/goliatone/go-record-services/repositorycache"
	"github.com/goliatone/go-record-services/service"
)

// Container wires the components of both services from one configuration.
// The cache service is a singleton; stores are opened on first use and
// released by Close.
type Container struct {
	config       config.Config
	logger       *slog.Logger
	cacheService cache.Service

	mu       sync.Mutex
	docs     *docstore.Store
	sql      *sqlstore.Store
	users    lookup.Users
	orderSvc *service.Orders
	userSvc  *service.Users
}

// NewContainer validates cfg and builds the cache service.
func NewContainer(cfg config.Config, logger *slog.Logger) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	cacheService, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return &Container{
		config:       cfg,
		logger:       logger,
		cacheService: cacheService,
	}, nil
}

// NewContainerWithDefaults builds a container from config.Default.
func NewContainerWithDefaults() (*Container, error) {
	return NewContainer(config.Default(), nil)
}

// CacheService returns the shared cache.
func (c *Container) CacheService() cache.Service { return c.cacheService }

// Config returns the configuration the container was built with.
func (c *Container) Config() config.Config { return c.config }

// Logger returns the container logger.
func (c *Container) Logger() *slog.Logger { return c.logger }

// UseUsers replaces the user service client, before OrderService is first
// called.
func (c *Container) UseUsers(users lookup.Users) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users = users
}

func (c *Container) documentStore() (*docstore.Store, error) {
	if c.docs == nil {
		s, err := docstore.Open(c.config.Elasticsearch, c.logger.With("component", "docstore"), repository.OrderSchema)
		if err != nil {
			return nil, fmt.Errorf("docstore: %w", err)
		}
		c.docs = s
	}
	return c.docs, nil
}

func (c *Container) relationalStore(ctx context.Context) (*sqlstore.Store, error) {
	if c.sql == nil {
		s, err := sqlstore.Open(ctx, c.config.SQL, c.logger.With("component", "sqlstore"), repository.UserSchema)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: %w", err)
		}
		c.sql = s
	}
	return c.sql, nil
}

func (c *Container) lookupClient() (lookup.Users, error) {
	if c.users == nil {
		client, err := lookup.NewHTTPClient(c.config.UserAPI, c.logger.With("component", "lookup"))
		if err != nil {
			return nil, fmt.Errorf("lookup: %w", err)
		}
		c.users = client
	}
	return c.users, nil
}

// OrderService wires the order repository over Elasticsearch, the user
// service client and the enrichment pipeline.
func (c *Container) OrderService() (*service.Orders, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.orderSvc != nil {
		return c.orderSvc, nil
	}
	docs, err := c.documentStore()
	if err != nil {
		return nil, err
	}
	users, err := c.lookupClient()
	if err != nil {
		return nil, err
	}

	orders := repository.NewOrders(docs)
	pipeline := aggregate.New(orders, users, c.cacheService, aggregate.Config{
		Concurrency:  c.config.EnrichConcurrency,
		CacheTimeout: c.config.EnrichCacheTimeout,
	}, c.logger.With("component", "aggregate"))

	c.orderSvc = service.NewOrders(orders, users, pipeline, c.logger.With("component", "orders"))
	return c.orderSvc, nil
}

// UserService wires the cached user repository over the relational store.
func (c *Container) UserService(ctx context.Context) (*service.Users, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.userSvc != nil {
		return c.userSvc, nil
	}
	base, err := c.userRepository(ctx)
	if err != nil {
		return nil, err
	}
	users := NewCachedRepository[repository.User](c, base)
	c.userSvc = service.NewUsers(users, c.logger.With("component", "users"))
	return c.userSvc, nil
}

// UserRepository returns the uncached user repository.
func (c *Container) UserRepository(ctx context.Context) (*repository.Users, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userRepository(ctx)
}

func (c *Container) userRepository(ctx context.Context) (*repository.Users, error) {
	sql, err := c.relationalStore(ctx)
	if err != nil {
		return nil, err
	}
	return repository.NewUsers(sql), nil
}

// OrderHandler returns the order API router.
func (c *Container) OrderHandler() (http.Handler, error) {
	svc, err := c.OrderService()
	if err != nil {
		return nil, err
	}
	return c.router("order", httpapi.NewOrderHandler(svc, c.logger.With("component", "http")))
}

// UserHandler returns the user API router.
func (c *Container) UserHandler(ctx context.Context) (http.Handler, error) {
	svc, err := c.UserService(ctx)
	if err != nil {
		return nil, err
	}
	return c.router("user", httpapi.NewUserHandler(svc, c.logger.With("component", "http")))
}

func (c *Container) router(name string, res httpapi.Registrar) (http.Handler, error) {
	var metrics *httpapi.Metrics
	if c.config.HTTP.Metrics {
		m, err := httpapi.NewMetrics(name, nil)
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		metrics = m
	}
	return httpapi.NewRouter(c.logger.With("component", "http"), metrics, res), nil
}

// Close releases the opened stores.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errList []error
	if c.docs != nil {
		errList = append(errList, c.docs.Close())
		c.docs = nil
	}
	if c.sql != nil {
		errList = append(errList, c.sql.Close())
		c.sql = nil
	}
	c.orderSvc, c.userSvc = nil, nil
	return errors.Join(errList...)
}

// NewCachedRepository wraps base with the container cache.
//
// Since Go methods cannot have type parameters, this is provided as a
// package-level function:
//
//	users := di.NewCachedRepository[repository.User](container, repository.NewUsers(adapter))
func NewCachedRepository[T any](container *Container, base repositorycache.Repository[T]) *repositorycache.CachedRepository[T] {
	return repositorycache.New(base, container.cacheService, repositorycache.WithLogger(container.logger.With("component", "repositorycache")))
}
