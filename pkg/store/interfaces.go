package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/paperstack/paperstack/pkg/identity"
	"github.com/paperstack/paperstack/pkg/permission"
)

// UserStore reads and writes user and group records
type UserStore interface {
	// GetByUUID returns the user with the given UUID, or authz.ErrNotFound
	GetByUUID(ctx context.Context, userUUID uuid.UUID) (*User, error)

	// GetBySubjectID returns the user with the given subject id
	GetBySubjectID(ctx context.Context, subjectID string) (*User, error)

	// Create persists a new user or group record
	Create(ctx context.Context, user *User) error

	// SetEnabled flips the enabled flag
	SetEnabled(ctx context.Context, userUUID uuid.UUID, enabled bool) error
}

// GroupStore reads the directed user->group membership edges. The stored
// graph may contain cycles; traversal safety is the resolver's concern.
type GroupStore interface {
	// FindGroupsOf returns the groups the user is a direct member of
	FindGroupsOf(ctx context.Context, userUUID uuid.UUID) ([]identity.UserRef, error)

	// AddMembership inserts a membership edge, idempotently
	AddMembership(ctx context.Context, userUUID, groupUUID uuid.UUID) error

	// RemoveMembership deletes a membership edge
	RemoveMembership(ctx context.Context, userUUID, groupUUID uuid.UUID) error
}

// AppPermissionStore reads and writes application permission rows
type AppPermissionStore interface {
	// GetPermissionsForUser returns the app permissions granted directly to
	// the user (not including any held via groups)
	GetPermissionsForUser(ctx context.Context, userUUID uuid.UUID) ([]permission.AppPermission, error)

	// AddPermission grants an app permission, idempotently
	AddPermission(ctx context.Context, userUUID uuid.UUID, perm permission.AppPermission) error

	// RemovePermission revokes an app permission
	RemovePermission(ctx context.Context, userUUID uuid.UUID, perm permission.AppPermission) error
}

// DocPermissionStore reads and writes document permission rows
type DocPermissionStore interface {
	// GetPermissionsForDocument returns the full permission map of a document
	GetPermissionsForDocument(ctx context.Context, docUUID uuid.UUID) (*permission.DocumentPermissions, error)

	// GetUserDocumentPermissions returns every document grant held by a user
	GetUserDocumentPermissions(ctx context.Context, userUUID uuid.UUID) (*permission.UserDocumentPermissions, error)

	// AddDocPermission inserts a grant, idempotently
	AddDocPermission(ctx context.Context, docUUID, userUUID uuid.UUID, perm permission.DocumentPermission) error

	// RemoveDocPermission deletes a grant
	RemoveDocPermission(ctx context.Context, docUUID, userUUID uuid.UUID, perm permission.DocumentPermission) error

	// ClearDocumentPermissions deletes every grant on a document
	ClearDocumentPermissions(ctx context.Context, docUUID uuid.UUID) error

	// ClearUserPermissions deletes every grant held by a user
	ClearUserPermissions(ctx context.Context, userUUID uuid.UUID) error
}

// APIKeyStore persists hashed API key records
type APIKeyStore interface {
	// CreateAPIKey inserts a new key record. A duplicate hash yields
	// ErrDuplicateKey.
	CreateAPIKey(ctx context.Context, key *APIKey) error

	// FindAPIKeysByPrefix returns all enabled keys sharing the given prefix
	FindAPIKeysByPrefix(ctx context.Context, prefix string) ([]*APIKey, error)

	// FetchAPIKey returns the key with the given id, or authz.ErrNotFound
	FetchAPIKey(ctx context.Context, id int64) (*APIKey, error)

	// UpdateAPIKey persists mutable fields (name, enabled, comments, expiry)
	UpdateAPIKey(ctx context.Context, key *APIKey) error

	// DeleteAPIKey removes the key row permanently
	DeleteAPIKey(ctx context.Context, id int64) (bool, error)

	// FindAPIKeys lists keys matching the criteria
	FindAPIKeys(ctx context.Context, criteria FindAPIKeysCriteria) ([]*APIKey, error)

	// DisableExpiredAPIKeys disables every enabled key whose expiry has
	// passed and returns how many were touched
	DisableExpiredAPIKeys(ctx context.Context) (int64, error)
}

// DocumentStore persists the folder hierarchy the cascade logic walks
type DocumentStore interface {
	// CreateDocument persists a new document or folder node
	CreateDocument(ctx context.Context, doc *Document) error

	// GetDocument returns the node with the given UUID, or authz.ErrNotFound
	GetDocument(ctx context.Context, docUUID uuid.UUID) (*Document, error)

	// IsFolder reports whether the document is a folder
	IsFolder(ctx context.Context, docUUID uuid.UUID) (bool, error)

	// Descendants returns every document under the folder, any depth
	Descendants(ctx context.Context, folderUUID uuid.UUID) ([]uuid.UUID, error)
}
