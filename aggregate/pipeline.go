// Package aggregate lists orders enriched with the user who owns them.
package aggregate

import (
	"context"
	"log/slog"
	"time"

	"github.com/goliatone/go-record-services/cache"
	"github.com/goliatone/go-record-services/errs"
	"github.com/goliatone/go-record-services/lookup"
	"github.com/goliatone/go-record-services/pagination"
	"github.com/goliatone/go-record-services/repository"
	"github.com/goliatone/go-record-services/store"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Query selects one page of orders.
type Query struct {
	Collection store.Collection
	// UserID restricts the listing to one user when set.
	UserID     *int64
	PageSize   int
	PageNumber int
	// URL is the full request URL, used to build the pagination links.
	URL string
}

// OrderSummary is an order as shown in a listing.
type OrderSummary struct {
	ID              string          `json:"id"`
	ItemDescription string          `json:"item_description"`
	ItemQuantity    int             `json:"item_quantity"`
	ItemPrice       decimal.Decimal `json:"item_price"`
	TotalValue      decimal.Decimal `json:"total_value"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       *time.Time      `json:"updated_at"`
}

// Listing is the enriched page. User is the owner of the last order on the
// page, or the filtered user when the page is empty.
type Listing struct {
	User   *lookup.User   `json:"user"`
	Orders []OrderSummary `json:"orders"`
}

// Page is a listing with its pagination links.
type Page struct {
	Result     Listing          `json:"result"`
	Pagination pagination.Links `json:"pagination"`
}

// Config tunes the pipeline.
type Config struct {
	// Concurrency bounds the parallel user lookups of one page.
	Concurrency int
	// CacheTimeout bounds each cache call.
	CacheTimeout time.Duration
	Pagination   pagination.Calculator
}

// DefaultConfig returns the default tuning.
func DefaultConfig() Config {
	return Config{
		Concurrency:  8,
		CacheTimeout: time.Second,
		Pagination:   pagination.New(),
	}
}

// Pipeline runs order listings.
type Pipeline struct {
	orders *repository.Orders
	users  lookup.Users
	cache  cache.Store
	cfg    Config
	logger *slog.Logger
}

// New builds a pipeline. Zero config values fall back to DefaultConfig.
func New(orders *repository.Orders, users lookup.Users, c cache.Store, cfg Config, logger *slog.Logger) *Pipeline {
	def := DefaultConfig()
	if cfg.Concurrency < 1 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.CacheTimeout <= 0 {
		cfg.CacheTimeout = def.CacheTimeout
	}
	if cfg.Pagination.PageParam == "" || cfg.Pagination.PageSizeParam == "" {
		cfg.Pagination = def.Pagination
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{orders: orders, users: users, cache: c, cfg: cfg, logger: logger}
}

// ListOrders returns one enriched page. Any failure aborts the whole
// listing; no partial page is returned.
func (p *Pipeline) ListOrders(ctx context.Context, q Query) (Page, error) {
	resolved := xsync.NewMapOf[int64, lookup.User]()

	filter := store.MatchAll()
	if q.UserID != nil {
		u, err := p.validate(ctx, *q.UserID)
		if err != nil {
			return Page{}, err
		}
		resolved.Store(*q.UserID, u)
		filter = store.Where("user_id", *q.UserID)
	}

	orders, total, err := p.orders.In(q.Collection).FindAll(ctx, filter, q.PageSize, q.PageNumber)
	if err != nil {
		return Page{}, err
	}

	if err := p.enrich(ctx, orders, resolved); err != nil {
		return Page{}, err
	}

	listing := Listing{Orders: make([]OrderSummary, 0, len(orders))}
	for _, o := range orders {
		listing.Orders = append(listing.Orders, summarize(o))
	}
	switch {
	case len(orders) > 0:
		if u, ok := resolved.Load(orders[len(orders)-1].UserID); ok {
			listing.User = &u
		}
	case q.UserID != nil:
		if u, ok := resolved.Load(*q.UserID); ok {
			listing.User = &u
		}
	}

	links := p.cfg.Pagination.Calculate(pagination.Request{
		URL:      q.URL,
		Page:     q.PageNumber,
		PageSize: q.PageSize,
		Total:    total,
		Returned: len(orders),
	})

	p.logger.Debug("orders listed",
		"collection", q.Collection.String(),
		"page", q.PageNumber,
		"returned", len(orders),
		"total", total,
		"users", resolved.Size(),
	)
	return Page{Result: listing, Pagination: links}, nil
}

// enrich resolves every distinct owner of orders not already in resolved.
// The first error cancels the remaining lookups.
func (p *Pipeline) enrich(ctx context.Context, orders []repository.Order, resolved *xsync.MapOf[int64, lookup.User]) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	seen := make(map[int64]struct{}, len(orders))
	for _, o := range orders {
		id := o.UserID
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := resolved.Load(id); ok {
			continue
		}

		g.Go(func() error {
			u, err := p.resolve(gctx, id)
			if err != nil {
				return err
			}
			resolved.Store(id, u)
			return nil
		})
	}
	return g.Wait()
}

// resolve returns the user under id using the cache-aside policy: a cached
// entry is used as is; on a miss the user is fetched, written to the cache
// and read back, the cached value winning over the fetched one. A failed
// cache call is ServiceUnavailable.
func (p *Pipeline) resolve(ctx context.Context, id int64) (lookup.User, error) {
	key := cache.UserKey(id)

	if u, ok, err := p.cacheGet(ctx, key); err != nil || ok {
		return u, err
	}

	fetched, err := p.users.FetchUser(ctx, id)
	if err != nil {
		return lookup.User{}, err
	}
	return p.remember(ctx, key, fetched)
}

// validate checks the filtered user against the user service itself, never
// the cache, so a user removed upstream fails the listing at once. The
// fetched payload refreshes the cache entry.
func (p *Pipeline) validate(ctx context.Context, id int64) (lookup.User, error) {
	fetched, err := p.users.FetchUser(ctx, id)
	if err != nil {
		return lookup.User{}, err
	}
	return p.remember(ctx, cache.UserKey(id), fetched)
}

// remember writes fetched under key and reads it back, the cached value
// winning over the fetched one.
func (p *Pipeline) remember(ctx context.Context, key string, fetched lookup.User) (lookup.User, error) {
	setCtx, cancel := context.WithTimeout(ctx, p.cfg.CacheTimeout)
	err := cache.SetValue(setCtx, p.cache, key, fetched)
	cancel()
	if err != nil {
		p.logger.Warn("user cache write failed", "key", key, "error", err)
		return lookup.User{}, errs.Wrap(errs.KindServiceUnavailable, err, "cache unavailable", "user "+key+" could not be cached")
	}

	cached, ok, err := p.cacheGet(ctx, key)
	if err != nil {
		return lookup.User{}, err
	}
	if ok {
		return cached, nil
	}
	return fetched, nil
}

func (p *Pipeline) cacheGet(ctx context.Context, key string) (lookup.User, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.CacheTimeout)
	defer cancel()

	u, ok, err := cache.GetValue[lookup.User](ctx, p.cache, key)
	if err != nil {
		p.logger.Warn("user cache read failed", "key", key, "error", err)
		return lookup.User{}, false, errs.Wrap(errs.KindServiceUnavailable, err, "cache unavailable", "user "+key+" could not be read")
	}
	return u, ok, nil
}

func summarize(o repository.Order) OrderSummary {
	return OrderSummary{
		ID:              o.ID,
		ItemDescription: o.ItemDescription,
		ItemQuantity:    o.ItemQuantity,
		ItemPrice:       o.ItemPrice,
		TotalValue:      o.TotalValue,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}
