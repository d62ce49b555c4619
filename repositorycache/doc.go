// Package repositorycache decorates a record repository with a read-through
// cache.
//
// # Overview
//
// CachedRepository wraps any Repository[T], the surface of the generic
// record repository, and intercepts its reads. Writes go to the base
// repository first; the cache is only touched after they succeed. The user
// API serves GET /user/{id} and GET /user through this decorator.
//
// # Basic Usage
//
//	svc, err := cache.New(cache.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	users := repositorycache.New[repository.User](repository.NewUsers(adapter), svc)
//
//	// Use exactly like the base repository
//	u, err := users.FindByID(ctx, "42")
//	page, total, err := users.FindAll(ctx, store.MatchAll(), 10, 1)
//
// With the container in pkg/di, the cache service comes from the container:
//
//	users := di.NewCachedRepository[repository.User](container, base)
//
// # Cached vs Pass-through Operations
//
// ## Cached Operations
//
//   - FindByID: one entry per record id
//   - FindAll: one entry per filter, page size and page number, holding the
//     records and the total as a unit
//
// ## Pass-through Operations
//
//   - Insert, Update and Delete always reach the base repository
//
// # Caching Behavior
//
// Reads follow the read-through pattern:
//
//  1. Serialize the operation and its arguments into a key
//  2. On a hit, return the cached result
//  3. On a miss, call the base repository
//  4. Store the result unless the call failed
//  5. Return the result to the caller
//
// Failed reads are never cached, so a NotFound is looked up again on the
// next call and a backend outage does not outlive itself.
//
// # Invalidation
//
// After a successful write the decorator drops what the write could have
// made stale:
//
//   - Insert drops every cached page, since totals and page contents shift.
//   - Update and Delete drop the record entry and every cached page.
//
// Pages are dropped with one prefix delete over the find_all keys of the
// namespace. A failed invalidation is logged and does not fail the write;
// the entry then lives until its TTL.
//
// Writes made behind the decorator's back, straight to the base repository
// or by another process, are not seen until the entry expires.
//
// # Keys
//
// Keys are namespaced by the snake cased record type name, or the name given
// with WithNamespace:
//
//	user::find_by_id::42
//	user::find_all::{Predicates:[],Order:nil}::10::1
//
// Two repositories of the same record type share a namespace and therefore
// entries; give one of them its own namespace when they read different
// stores.
//
// # Error Handling
//
// Errors from the base repository are returned unchanged, so callers keep
// matching them with errors.Is against the errs sentinels. A cached value of
// an unexpected type is reported as cache.ErrInvalidResultType.
//
// # See Also
//
// For the cache contracts and key serialization, see the cache package.
// For container wiring, see pkg/di.
package repositorycache
