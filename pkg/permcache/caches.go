package permcache

import (
	"context"

	"github.com/google/uuid"

	"github.com/paperstack/paperstack/pkg/identity"
	"github.com/paperstack/paperstack/pkg/permission"
)

// GroupsCache fronts the user -> direct groups lookup
type GroupsCache struct {
	cache *LoadingCache[uuid.UUID, []identity.UserRef]
}

// NewGroupsCache creates the group membership cache over the given loader
func NewGroupsCache(cfg Config, loader Loader[uuid.UUID, []identity.UserRef], metrics *Metrics) *GroupsCache {
	return &GroupsCache{
		cache: NewLoadingCache("user_groups", cfg, loader, metrics),
	}
}

// GetGroups returns the groups the user is a direct member of
func (c *GroupsCache) GetGroups(ctx context.Context, userUUID uuid.UUID) ([]identity.UserRef, error) {
	return c.cache.Get(ctx, userUUID)
}

// OnPermissionChange invalidates the affected user, or everything when the
// event does not name one
func (c *GroupsCache) OnPermissionChange(event permission.ChangeEvent) {
	if event.UserUUID != nil {
		c.cache.Invalidate(*event.UserUUID)
		return
	}
	c.cache.Purge()
}

// InvalidateUser drops one user's entry, for membership mutations that do
// not flow through permission change events
func (c *GroupsCache) InvalidateUser(userUUID uuid.UUID) {
	c.cache.Invalidate(userUUID)
}

// AppPermissionsCache fronts the user -> app permissions lookup
type AppPermissionsCache struct {
	cache *LoadingCache[uuid.UUID, []permission.AppPermission]
}

// NewAppPermissionsCache creates the app permission cache over the loader
func NewAppPermissionsCache(cfg Config, loader Loader[uuid.UUID, []permission.AppPermission], metrics *Metrics) *AppPermissionsCache {
	return &AppPermissionsCache{
		cache: NewLoadingCache("app_permissions", cfg, loader, metrics),
	}
}

// GetPermissions returns the app permissions granted directly to the user
func (c *AppPermissionsCache) GetPermissions(ctx context.Context, userUUID uuid.UUID) ([]permission.AppPermission, error) {
	return c.cache.Get(ctx, userUUID)
}

// OnPermissionChange invalidates the affected user, or everything when the
// event does not name one
func (c *AppPermissionsCache) OnPermissionChange(event permission.ChangeEvent) {
	if event.UserUUID != nil {
		c.cache.Invalidate(*event.UserUUID)
		return
	}
	c.cache.Purge()
}

// InvalidateUser drops one user's entry
func (c *AppPermissionsCache) InvalidateUser(userUUID uuid.UUID) {
	c.cache.Invalidate(userUUID)
}

// UserDocPermissionsCache fronts the user -> document grants lookup,
// supporting the has-permission-or-higher query
type UserDocPermissionsCache struct {
	cache *LoadingCache[uuid.UUID, *permission.UserDocumentPermissions]
}

// NewUserDocPermissionsCache creates the per-user document permission cache
func NewUserDocPermissionsCache(cfg Config, loader Loader[uuid.UUID, *permission.UserDocumentPermissions], metrics *Metrics) *UserDocPermissionsCache {
	return &UserDocPermissionsCache{
		cache: NewLoadingCache("user_doc_permissions", cfg, loader, metrics),
	}
}

// HasDocumentPermission reports whether the user holds perm, or a higher
// permission, on the document
func (c *UserDocPermissionsCache) HasDocumentPermission(ctx context.Context, userUUID, docUUID uuid.UUID, perm permission.DocumentPermission) (bool, error) {
	perms, err := c.cache.Get(ctx, userUUID)
	if err != nil {
		return false, err
	}
	return perms.HasPermissionOrHigher(docUUID, perm), nil
}

// OnPermissionChange invalidates the affected user; a document-cleared event
// names no user, so the whole cache is dropped
func (c *UserDocPermissionsCache) OnPermissionChange(event permission.ChangeEvent) {
	if event.UserUUID != nil {
		c.cache.Invalidate(*event.UserUUID)
		return
	}
	c.cache.Purge()
}

// DocPermissionsCache fronts the document -> full permission map lookup,
// which also answers the owner-set query used by the mutation gate
type DocPermissionsCache struct {
	cache *LoadingCache[uuid.UUID, *permission.DocumentPermissions]
}

// NewDocPermissionsCache creates the per-document permission map cache
func NewDocPermissionsCache(cfg Config, loader Loader[uuid.UUID, *permission.DocumentPermissions], metrics *Metrics) *DocPermissionsCache {
	return &DocPermissionsCache{
		cache: NewLoadingCache("doc_permissions", cfg, loader, metrics),
	}
}

// GetPermissions returns the full permission map of the document
func (c *DocPermissionsCache) GetPermissions(ctx context.Context, docUUID uuid.UUID) (*permission.DocumentPermissions, error) {
	return c.cache.Get(ctx, docUUID)
}

// GetOwners returns the UUIDs of every user holding Owner on the document
func (c *DocPermissionsCache) GetOwners(ctx context.Context, docUUID uuid.UUID) ([]uuid.UUID, error) {
	perms, err := c.cache.Get(ctx, docUUID)
	if err != nil {
		return nil, err
	}
	return perms.Owners(), nil
}

// OnPermissionChange invalidates the affected document; a user-cleared event
// names no document, so the whole cache is dropped
func (c *DocPermissionsCache) OnPermissionChange(event permission.ChangeEvent) {
	if event.DocumentUUID != nil {
		c.cache.Invalidate(*event.DocumentUUID)
		return
	}
	c.cache.Purge()
}

// Caches bundles the four permission caches for wiring and event fan-out
type Caches struct {
	Groups   *GroupsCache
	AppPerms *AppPermissionsCache
	UserDocs *UserDocPermissionsCache
	DocMaps  *DocPermissionsCache
}

// OnPermissionChange fans an event out to every cache. Invalidation is
// synchronous: when this returns, no cache serves pre-change values.
func (c *Caches) OnPermissionChange(event permission.ChangeEvent) {
	c.Groups.OnPermissionChange(event)
	c.AppPerms.OnPermissionChange(event)
	c.UserDocs.OnPermissionChange(event)
	c.DocMaps.OnPermissionChange(event)
}

// InvalidateUser drops the user's group and app permission entries. Used by
// admin mutations (membership edits, app permission grants) that do not flow
// through document permission change events.
func (c *Caches) InvalidateUser(userUUID uuid.UUID) {
	c.Groups.InvalidateUser(userUUID)
	c.AppPerms.InvalidateUser(userUUID)
}
