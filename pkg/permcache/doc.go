// Package permcache fronts the expensive permission lookups with four
// bounded, time-limited read-through caches:
//
//   - user -> direct groups
//   - user -> app permissions
//   - user -> document grants (has-permission-or-higher query)
//   - document -> full permission map and owner set
//
// All four are instances of one generic LoadingCache built on an expirable
// LRU; concurrent misses for a key collapse into a single backend load via
// singleflight. Invalidation is driven by permission change events and is
// applied synchronously with the mutation that raised them, so a check that
// follows a revocation in the same process never sees the stale grant.
// Events that do not name the cache's key dimension clear the whole cache
// rather than guess.
package permcache
