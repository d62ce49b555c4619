// Package cache holds the cache contracts shared by the order and user
// services, and the key serialization used to address cached entries.
//
// # Overview
//
// One backend serves two access styles:
//
//   - Store is cache-aside: callers Get, and on a miss load the value
//     themselves and Set it. The order listing uses it to hold user
//     payloads fetched from the user service.
//   - ReadThrough wraps a fetch function and stores its result, as the
//     cached user repository in repositorycache does.
//
// Service is both. New builds the default Service, an in-process sturdyc
// client sized and tuned by Config.
//
// # Basic Usage
//
// Cache-aside with typed values:
//
//	svc, err := cache.New(cache.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	u, ok, err := cache.GetValue[lookup.User](ctx, svc, cache.UserKey(42))
//	if err == nil && !ok {
//		u, err = users.FetchUser(ctx, 42)
//		if err == nil {
//			err = cache.SetValue(ctx, svc, cache.UserKey(42), u)
//		}
//	}
//
// Read-through with a typed fetch:
//
//	key := cache.NewKeySerializer("user").SerializeKey("find_by_id", "42")
//	u, err := cache.GetOrFetch(ctx, svc, key, func(ctx context.Context) (repository.User, error) {
//		return repo.FindByID(ctx, "42")
//	})
//
// # Encoding
//
// GetValue and SetValue encode values with msgpack, so cache-aside entries
// are plain bytes and survive a change of backend. A stored entry that does
// not decode into the requested type is reported as ErrInvalidResultType.
//
// ReadThrough entries are kept as Go values. GetOrFetch asserts the cached
// value back to T; a nil result is cached as such and comes back as the zero
// T.
//
// # Failure Semantics
//
//   - A failed Set is an error the caller must handle. The order listing
//     aborts with ServiceUnavailable when it happens rather than serving a
//     partial page.
//   - Errors returned by a ReadThrough fetch are passed to the caller and
//     never cached, so a NotFound is looked up again on the next call.
//   - Get and Set honour context cancellation before touching the backend.
//
// # Keys
//
// Keys are segments joined with KeySeparator:
//
//	cache.UserKey(42)                                                // user::42
//	cache.NewKeySerializer("user").SerializeKey("find_by_id", "42") // user::find_by_id::42
//
// The serializer renders arguments through reflection:
//
//   - Scalars: their fmt representation
//   - Pointers and interfaces: the pointed value, or nil
//   - Slices and arrays: rendered elements in order
//   - Maps: key=value pairs, sorted for deterministic output
//   - Structs: exported fields as name:value pairs, or String() when the
//     struct implements fmt.Stringer
//   - Functions and channels: their address, stable only within a process
//
// Namespaced.Prefix returns the prefix of every key of one operation, which
// ReadThrough.DeleteByPrefix uses to drop all cached list pages at once.
// Enrichment keys (user::42) and repository keys (user::find_by_id::42)
// never collide, so one Service can back both in the same process.
//
// # Configuration
//
// Config mirrors the sturdyc options: capacity, shard count, TTL, eviction
// percentage, optional early refresh and missing record storage. Validate
// rejects non positive sizes and an early refresh window whose minimum
// exceeds its maximum.
//
// # See Also
//
// For the cached repository built on ReadThrough, see repositorycache.
// For the enrichment flow built on Store, see aggregate.
package cache
