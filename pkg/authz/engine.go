package authz

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/paperstack/paperstack/pkg/identity"
	"github.com/paperstack/paperstack/pkg/permission"
)

// DocPermissionSource answers "does this user hold this permission, or a
// higher one, on this document". *permcache.UserDocPermissionsCache
// satisfies this.
type DocPermissionSource interface {
	HasDocumentPermission(ctx context.Context, userUUID, docUUID uuid.UUID, perm permission.DocumentPermission) (bool, error)
}

// UserValidator confirms a user exists and is enabled before the engine
// assumes their identity. *store.SQLStore satisfies this.
type UserValidator interface {
	ValidateUser(ctx context.Context, ref identity.UserRef) error
}

// Engine is the authorization decision point. All checks resolve the acting
// identity from the context and consult the cache layer, never storage
// directly.
type Engine struct {
	resolver  *GroupResolver
	appPerms  AppPermissionSource
	docPerms  DocPermissionSource
	validator UserValidator
}

func NewEngine(resolver *GroupResolver, appPerms AppPermissionSource, docPerms DocPermissionSource, validator UserValidator) *Engine {
	return &Engine{
		resolver:  resolver,
		appPerms:  appPerms,
		docPerms:  docPerms,
		validator: validator,
	}
}

// CurrentIdentity resolves the acting identity or fails with an
// authentication-required error.
func (e *Engine) CurrentIdentity(ctx context.Context) (identity.Identity, error) {
	id, ok := identity.Current(ctx)
	if !ok {
		return identity.Identity{}, NewAuthenticationRequired("no identity on the current execution")
	}
	return id, nil
}

// HasAppPermission reports whether the acting identity holds the given
// application permission, directly or through any transitive group. The
// internal processing identity holds every permission. A user holding
// ADMINISTRATOR implicitly holds every other permission.
func (e *Engine) HasAppPermission(ctx context.Context, perm permission.AppPermission) (bool, error) {
	id, err := e.CurrentIdentity(ctx)
	if err != nil {
		return false, err
	}
	if id.IsProcessing() {
		return true, nil
	}

	held, err := e.userHoldsAppPermission(ctx, id.Ref.UUID, perm)
	if err != nil || held {
		return held, err
	}
	if perm != permission.AppPermissionAdministrator {
		return e.userHoldsAppPermission(ctx, id.Ref.UUID, permission.AppPermissionAdministrator)
	}
	return false, nil
}

// IsAdmin reports whether the acting identity holds ADMINISTRATOR (or is
// the internal processing identity).
func (e *Engine) IsAdmin(ctx context.Context) (bool, error) {
	return e.HasAppPermission(ctx, permission.AppPermissionAdministrator)
}

func (e *Engine) userHoldsAppPermission(ctx context.Context, userUUID uuid.UUID, perm permission.AppPermission) (bool, error) {
	direct, err := e.appPerms.GetPermissions(ctx, userUUID)
	if err != nil {
		return false, fmt.Errorf("loading permissions of %s: %w", userUUID, err)
	}
	if containsPermission(direct, perm) {
		return true, nil
	}

	groups, err := e.resolver.TransitiveGroupsOf(ctx, userUUID)
	if err != nil {
		return false, err
	}
	for _, g := range groups {
		inherited, err := e.appPerms.GetPermissions(ctx, g.UUID)
		if err != nil {
			return false, fmt.Errorf("loading permissions of group %s: %w", g.UUID, err)
		}
		if containsPermission(inherited, perm) {
			return true, nil
		}
	}
	return false, nil
}

func containsPermission(perms []permission.AppPermission, perm permission.AppPermission) bool {
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}

// HasDocumentPermission reports whether the acting identity holds the given
// permission, or a higher one, on the document. Administrators short-circuit
// to true. Under an elevated context a READ check is downgraded to USE, so a
// caller with only use rights can read document metadata.
func (e *Engine) HasDocumentPermission(ctx context.Context, docUUID uuid.UUID, perm permission.DocumentPermission) (bool, error) {
	id, err := e.CurrentIdentity(ctx)
	if err != nil {
		return false, err
	}
	if id.IsProcessing() {
		return true, nil
	}

	admin, err := e.IsAdmin(ctx)
	if err != nil {
		return false, err
	}
	if admin {
		return true, nil
	}

	if identity.IsElevated(ctx) && perm == permission.DocumentPermissionRead {
		perm = permission.DocumentPermissionUse
	}

	held, err := e.docPerms.HasDocumentPermission(ctx, id.Ref.UUID, docUUID, perm)
	if err != nil || held {
		return held, err
	}

	groups, err := e.resolver.TransitiveGroupsOf(ctx, id.Ref.UUID)
	if err != nil {
		return false, err
	}
	for _, g := range groups {
		held, err := e.docPerms.HasDocumentPermission(ctx, g.UUID, docUUID, perm)
		if err != nil {
			return false, err
		}
		if held {
			return true, nil
		}
	}
	return false, nil
}

// Secure runs body only if the acting identity holds perm. Passing
// AppPermissionNone requires only that an identity is present. Once a check
// has passed, further checks inside body are suppressed, so nested Secure
// calls do not re-authorize.
func (e *Engine) Secure(ctx context.Context, perm permission.AppPermission, body func(ctx context.Context) error) error {
	if identity.ChecksSuppressed(ctx) {
		return body(ctx)
	}

	if perm == permission.AppPermissionNone {
		if _, err := e.CurrentIdentity(ctx); err != nil {
			return err
		}
		return body(identity.WithChecksSuppressed(ctx))
	}

	held, err := e.HasAppPermission(ctx, perm)
	if err != nil {
		return err
	}
	if !held {
		id, _ := identity.Current(ctx)
		return NewPermissionDenied(id.Ref, string(perm))
	}
	return body(identity.WithChecksSuppressed(ctx))
}

// SecureResult is Secure for bodies that return a value.
func SecureResult[T any](ctx context.Context, e *Engine, perm permission.AppPermission, body func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := e.Secure(ctx, perm, func(ctx context.Context) error {
		var err error
		result, err = body(ctx)
		return err
	})
	return result, err
}

// Insecure runs body with no permission requirement beyond a present
// identity, suppressing nested checks.
func (e *Engine) Insecure(ctx context.Context, body func(ctx context.Context) error) error {
	return e.Secure(ctx, permission.AppPermissionNone, body)
}

// InsecureResult is Insecure for bodies that return a value.
func InsecureResult[T any](ctx context.Context, e *Engine, body func(ctx context.Context) (T, error)) (T, error) {
	return SecureResult(ctx, e, permission.AppPermissionNone, body)
}

// AsUser runs body with the given user as the acting identity. The user must
// exist and be enabled. The pushed frame is scoped to body; the caller's
// context is untouched.
func (e *Engine) AsUser(ctx context.Context, ref identity.UserRef, body func(ctx context.Context) error) error {
	if e.validator != nil {
		if err := e.validator.ValidateUser(ctx, ref); err != nil {
			return err
		}
	}
	return body(identity.Push(ctx, identity.NewBasicIdentity(ref)))
}

// AsProcessingUser runs body as the internal processing identity, which
// passes every permission check.
func (e *Engine) AsProcessingUser(ctx context.Context, body func(ctx context.Context) error) error {
	return body(identity.Push(ctx, identity.ProcessingIdentity()))
}

// UseAsRead runs body with the context elevated, downgrading READ document
// checks to USE for its duration.
func (e *Engine) UseAsRead(ctx context.Context, body func(ctx context.Context) error) error {
	return body(identity.Elevate(ctx))
}

// InGroup reports whether the acting identity belongs, directly or
// transitively, to the group with the given subject id.
func (e *Engine) InGroup(ctx context.Context, groupSubjectID string) (bool, error) {
	id, err := e.CurrentIdentity(ctx)
	if err != nil {
		return false, err
	}
	groups, err := e.resolver.TransitiveGroupsOf(ctx, id.Ref.UUID)
	if err != nil {
		return false, err
	}
	for _, g := range groups {
		if g.SubjectID == groupSubjectID {
			return true, nil
		}
	}
	return false, nil
}
