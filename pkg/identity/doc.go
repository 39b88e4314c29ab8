// Package identity models the resolved caller of an operation and the
// execution-scoped stack of caller frames.
//
// The stack is carried on a context.Context rather than any process-global
// state, so concurrent requests never observe each other's frames. Pushing a
// frame derives a new context; popping is structural — the derived context is
// scoped to the wrapped closure and the previous frame is restored when the
// closure returns, on every exit path.
//
//	ctx = identity.Push(ctx, identity.NewBasicIdentity(ref))
//	if id, ok := identity.Current(ctx); ok {
//		// id is the acting caller for everything below this point
//	}
//
// Elevation is a per-frame flag used by the authorization engine to let a
// caller holding only Use permission pass a Read check for the duration of a
// wrapped call.
package identity
