// Package permission defines the permission vocabulary shared by the
// authorization engine, the cache layer, and the persistence layer.
//
// App permissions are flat named capabilities checked against the whole
// application. Document permissions are scoped to one document UUID and form
// a partial order (Owner > Write > Read > Use) consulted during lookup:
// holding a higher permission satisfies a check for a lower one. Create sits
// outside the order and only has meaning on folders.
//
// The package also defines the permission change events that fan out to the
// caches whenever stored grants move.
package permission
