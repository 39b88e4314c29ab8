// Package authz is the authorization decision point. It answers whether the
// acting identity, resolved from the context by package identity, may
// perform an application-level action or act on a specific document.
//
// Application permission checks consult direct grants and every transitive
// group membership, with an ADMINISTRATOR fallback: admins implicitly hold
// every permission. Document checks honor the permission ordering (holding
// WRITE satisfies a READ check) and the elevated use-as-read mode.
//
// The Secure wrapper gates a function body behind a permission and
// suppresses redundant nested checks:
//
//	err := engine.Secure(ctx, permission.AppPermissionManageUsers, func(ctx context.Context) error {
//		return svc.DisableUser(ctx, target)
//	})
//	if authz.IsPermissionDenied(err) {
//		// surface as 403
//	}
//
// Group traversal is cycle-safe and lives entirely in GroupResolver; no
// other package walks the membership graph.
package authz
