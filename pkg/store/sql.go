package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/paperstack/paperstack/pkg/authz"
	"github.com/paperstack/paperstack/pkg/identity"
	"github.com/paperstack/paperstack/pkg/permission"
)

// ErrDuplicateKey indicates an API key insert collided with a stored hash
var ErrDuplicateKey = errors.New("duplicate api key hash")

// SQLStore implements the persistence contracts over database/sql. It is
// used with lib/pq in production and sqlite in tests.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a store over an open database handle
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// DB exposes the underlying handle for health checks
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// GetByUUID returns the user with the given UUID
func (s *SQLStore) GetByUUID(ctx context.Context, userUUID uuid.UUID) (*User, error) {
	query := `
		SELECT uuid, subject_id, display_name, is_group, enabled, created_at, updated_at
		FROM users
		WHERE uuid = $1
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, userUUID.String()))
}

// GetBySubjectID returns the user with the given subject id
func (s *SQLStore) GetBySubjectID(ctx context.Context, subjectID string) (*User, error) {
	query := `
		SELECT uuid, subject_id, display_name, is_group, enabled, created_at, updated_at
		FROM users
		WHERE subject_id = $1
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, subjectID))
}

// Create persists a new user or group record
func (s *SQLStore) Create(ctx context.Context, user *User) error {
	if user.UUID == uuid.Nil {
		user.UUID = uuid.New()
	}
	now := time.Now().UTC()
	query := `
		INSERT INTO users (uuid, subject_id, display_name, is_group, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		user.UUID.String(),
		user.SubjectID,
		user.DisplayName,
		user.IsGroup,
		user.Enabled,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// SetEnabled flips the enabled flag
func (s *SQLStore) SetEnabled(ctx context.Context, userUUID uuid.UUID, enabled bool) error {
	query := `UPDATE users SET enabled = $1, updated_at = $2 WHERE uuid = $3`
	res, err := s.db.ExecContext(ctx, query, enabled, time.Now().UTC(), userUUID.String())
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("user %s: %w", userUUID, authz.ErrNotFound)
	}
	return nil
}

func (s *SQLStore) scanUser(row *sql.Row) (*User, error) {
	var user User
	var rawUUID string
	err := row.Scan(
		&rawUUID,
		&user.SubjectID,
		&user.DisplayName,
		&user.IsGroup,
		&user.Enabled,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user: %w", authz.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.UUID, err = uuid.Parse(rawUUID)
	if err != nil {
		return nil, fmt.Errorf("invalid stored user uuid %q: %w", rawUUID, err)
	}
	return &user, nil
}

// FindGroupsOf returns the groups the user is a direct member of
func (s *SQLStore) FindGroupsOf(ctx context.Context, userUUID uuid.UUID) ([]identity.UserRef, error) {
	query := `
		SELECT u.uuid, u.subject_id, u.display_name
		FROM users u
		JOIN user_groups ug ON u.uuid = ug.group_uuid
		WHERE ug.user_uuid = $1
	`
	rows, err := s.db.QueryContext(ctx, query, userUUID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to find groups: %w", err)
	}
	defer rows.Close()

	var groups []identity.UserRef
	for rows.Next() {
		var rawUUID, subjectID, displayName string
		if err := rows.Scan(&rawUUID, &subjectID, &displayName); err != nil {
			return nil, err
		}
		groupUUID, err := uuid.Parse(rawUUID)
		if err != nil {
			return nil, fmt.Errorf("invalid stored group uuid %q: %w", rawUUID, err)
		}
		groups = append(groups, identity.UserRef{
			UUID:        groupUUID,
			SubjectID:   subjectID,
			DisplayName: displayName,
			IsGroup:     true,
		})
	}
	return groups, rows.Err()
}

// AddMembership inserts a membership edge, idempotently
func (s *SQLStore) AddMembership(ctx context.Context, userUUID, groupUUID uuid.UUID) error {
	query := `
		INSERT INTO user_groups (user_uuid, group_uuid)
		VALUES ($1, $2)
		ON CONFLICT (user_uuid, group_uuid) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query, userUUID.String(), groupUUID.String())
	if err != nil {
		return fmt.Errorf("failed to add membership: %w", err)
	}
	return nil
}

// RemoveMembership deletes a membership edge
func (s *SQLStore) RemoveMembership(ctx context.Context, userUUID, groupUUID uuid.UUID) error {
	query := `DELETE FROM user_groups WHERE user_uuid = $1 AND group_uuid = $2`
	_, err := s.db.ExecContext(ctx, query, userUUID.String(), groupUUID.String())
	if err != nil {
		return fmt.Errorf("failed to remove membership: %w", err)
	}
	return nil
}

// GetPermissionsForUser returns the app permissions granted directly to a user
func (s *SQLStore) GetPermissionsForUser(ctx context.Context, userUUID uuid.UUID) ([]permission.AppPermission, error) {
	query := `SELECT permission FROM app_permissions WHERE user_uuid = $1`
	rows, err := s.db.QueryContext(ctx, query, userUUID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get app permissions: %w", err)
	}
	defer rows.Close()

	var perms []permission.AppPermission
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		perms = append(perms, permission.AppPermission(p))
	}
	return perms, rows.Err()
}

// AddPermission grants an app permission, idempotently
func (s *SQLStore) AddPermission(ctx context.Context, userUUID uuid.UUID, perm permission.AppPermission) error {
	query := `
		INSERT INTO app_permissions (user_uuid, permission)
		VALUES ($1, $2)
		ON CONFLICT (user_uuid, permission) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query, userUUID.String(), perm.String())
	if err != nil {
		return fmt.Errorf("failed to add app permission: %w", err)
	}
	return nil
}

// RemovePermission revokes an app permission
func (s *SQLStore) RemovePermission(ctx context.Context, userUUID uuid.UUID, perm permission.AppPermission) error {
	query := `DELETE FROM app_permissions WHERE user_uuid = $1 AND permission = $2`
	_, err := s.db.ExecContext(ctx, query, userUUID.String(), perm.String())
	if err != nil {
		return fmt.Errorf("failed to remove app permission: %w", err)
	}
	return nil
}

// GetPermissionsForDocument returns the full permission map of a document
func (s *SQLStore) GetPermissionsForDocument(ctx context.Context, docUUID uuid.UUID) (*permission.DocumentPermissions, error) {
	query := `SELECT user_uuid, permission FROM doc_permissions WHERE doc_uuid = $1`
	rows, err := s.db.QueryContext(ctx, query, docUUID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get document permissions: %w", err)
	}
	defer rows.Close()

	perms := permission.NewDocumentPermissions(docUUID)
	for rows.Next() {
		var rawUser, p string
		if err := rows.Scan(&rawUser, &p); err != nil {
			return nil, err
		}
		userUUID, err := uuid.Parse(rawUser)
		if err != nil {
			return nil, fmt.Errorf("invalid stored user uuid %q: %w", rawUser, err)
		}
		perms.Add(userUUID, permission.DocumentPermission(p))
	}
	return perms, rows.Err()
}

// GetUserDocumentPermissions returns every document grant held by a user
func (s *SQLStore) GetUserDocumentPermissions(ctx context.Context, userUUID uuid.UUID) (*permission.UserDocumentPermissions, error) {
	query := `SELECT doc_uuid, permission FROM doc_permissions WHERE user_uuid = $1`
	rows, err := s.db.QueryContext(ctx, query, userUUID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get user document permissions: %w", err)
	}
	defer rows.Close()

	perms := permission.NewUserDocumentPermissions(userUUID)
	for rows.Next() {
		var rawDoc, p string
		if err := rows.Scan(&rawDoc, &p); err != nil {
			return nil, err
		}
		docUUID, err := uuid.Parse(rawDoc)
		if err != nil {
			return nil, fmt.Errorf("invalid stored doc uuid %q: %w", rawDoc, err)
		}
		perms.Add(docUUID, permission.DocumentPermission(p))
	}
	return perms, rows.Err()
}

// AddDocPermission inserts a document grant, idempotently
func (s *SQLStore) AddDocPermission(ctx context.Context, docUUID, userUUID uuid.UUID, perm permission.DocumentPermission) error {
	query := `
		INSERT INTO doc_permissions (doc_uuid, user_uuid, permission)
		VALUES ($1, $2, $3)
		ON CONFLICT (doc_uuid, user_uuid, permission) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query, docUUID.String(), userUUID.String(), perm.String())
	if err != nil {
		return fmt.Errorf("failed to add document permission: %w", err)
	}
	return nil
}

// RemoveDocPermission deletes a document grant
func (s *SQLStore) RemoveDocPermission(ctx context.Context, docUUID, userUUID uuid.UUID, perm permission.DocumentPermission) error {
	query := `DELETE FROM doc_permissions WHERE doc_uuid = $1 AND user_uuid = $2 AND permission = $3`
	_, err := s.db.ExecContext(ctx, query, docUUID.String(), userUUID.String(), perm.String())
	if err != nil {
		return fmt.Errorf("failed to remove document permission: %w", err)
	}
	return nil
}

// ClearDocumentPermissions deletes every grant on a document
func (s *SQLStore) ClearDocumentPermissions(ctx context.Context, docUUID uuid.UUID) error {
	query := `DELETE FROM doc_permissions WHERE doc_uuid = $1`
	_, err := s.db.ExecContext(ctx, query, docUUID.String())
	if err != nil {
		return fmt.Errorf("failed to clear document permissions: %w", err)
	}
	return nil
}

// ClearUserPermissions deletes every grant held by a user
func (s *SQLStore) ClearUserPermissions(ctx context.Context, userUUID uuid.UUID) error {
	query := `DELETE FROM doc_permissions WHERE user_uuid = $1`
	_, err := s.db.ExecContext(ctx, query, userUUID.String())
	if err != nil {
		return fmt.Errorf("failed to clear user permissions: %w", err)
	}
	return nil
}

// CreateAPIKey inserts a new key record
func (s *SQLStore) CreateAPIKey(ctx context.Context, key *APIKey) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO api_keys (owner_uuid, name, prefix, hash, salt, enabled, comments, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		key.OwnerUUID.String(),
		key.Name,
		key.Prefix,
		key.Hash,
		key.Salt,
		key.Enabled,
		key.Comments,
		key.ExpiresAt,
		now,
		now,
	).Scan(&key.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("failed to create api key: %w", err)
	}
	key.CreatedAt = now
	key.UpdatedAt = now
	return nil
}

// FindAPIKeysByPrefix returns all enabled keys sharing the given prefix
func (s *SQLStore) FindAPIKeysByPrefix(ctx context.Context, prefix string) ([]*APIKey, error) {
	query := `
		SELECT id, owner_uuid, name, prefix, hash, salt, enabled, comments, expires_at, created_at, updated_at
		FROM api_keys
		WHERE prefix = $1 AND enabled = $2
	`
	rows, err := s.db.QueryContext(ctx, query, prefix, true)
	if err != nil {
		return nil, fmt.Errorf("failed to find api keys: %w", err)
	}
	defer rows.Close()
	return scanAPIKeys(rows)
}

// FetchAPIKey returns the key with the given id
func (s *SQLStore) FetchAPIKey(ctx context.Context, id int64) (*APIKey, error) {
	query := `
		SELECT id, owner_uuid, name, prefix, hash, salt, enabled, comments, expires_at, created_at, updated_at
		FROM api_keys
		WHERE id = $1
	`
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch api key: %w", err)
	}
	defer rows.Close()

	keys, err := scanAPIKeys(rows)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("api key %d: %w", id, authz.ErrNotFound)
	}
	return keys[0], nil
}

// UpdateAPIKey persists mutable fields
func (s *SQLStore) UpdateAPIKey(ctx context.Context, key *APIKey) error {
	query := `
		UPDATE api_keys
		SET name = $1, enabled = $2, comments = $3, expires_at = $4, updated_at = $5
		WHERE id = $6
	`
	res, err := s.db.ExecContext(ctx, query,
		key.Name,
		key.Enabled,
		key.Comments,
		key.ExpiresAt,
		time.Now().UTC(),
		key.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update api key: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("api key %d: %w", key.ID, authz.ErrNotFound)
	}
	return nil
}

// DeleteAPIKey removes the key row permanently
func (s *SQLStore) DeleteAPIKey(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete api key: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// FindAPIKeys lists keys matching the criteria
func (s *SQLStore) FindAPIKeys(ctx context.Context, criteria FindAPIKeysCriteria) ([]*APIKey, error) {
	query := `
		SELECT id, owner_uuid, name, prefix, hash, salt, enabled, comments, expires_at, created_at, updated_at
		FROM api_keys
	`
	var conditions []string
	var args []interface{}
	if criteria.OwnerUUID != nil {
		args = append(args, criteria.OwnerUUID.String())
		conditions = append(conditions, fmt.Sprintf("owner_uuid = $%d", len(args)))
	}
	if criteria.Enabled != nil {
		args = append(args, *criteria.Enabled)
		conditions = append(conditions, fmt.Sprintf("enabled = $%d", len(args)))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find api keys: %w", err)
	}
	defer rows.Close()
	return scanAPIKeys(rows)
}

// DisableExpiredAPIKeys disables every enabled key whose expiry has passed
func (s *SQLStore) DisableExpiredAPIKeys(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	query := `
		UPDATE api_keys
		SET enabled = $1, updated_at = $2
		WHERE enabled = $3 AND expires_at IS NOT NULL AND expires_at < $4
	`
	res, err := s.db.ExecContext(ctx, query, false, now, true, now)
	if err != nil {
		return 0, fmt.Errorf("failed to disable expired api keys: %w", err)
	}
	return res.RowsAffected()
}

func scanAPIKeys(rows *sql.Rows) ([]*APIKey, error) {
	var keys []*APIKey
	for rows.Next() {
		var key APIKey
		var rawOwner string
		var expiresAt sql.NullTime
		err := rows.Scan(
			&key.ID,
			&rawOwner,
			&key.Name,
			&key.Prefix,
			&key.Hash,
			&key.Salt,
			&key.Enabled,
			&key.Comments,
			&expiresAt,
			&key.CreatedAt,
			&key.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		key.OwnerUUID, err = uuid.Parse(rawOwner)
		if err != nil {
			return nil, fmt.Errorf("invalid stored owner uuid %q: %w", rawOwner, err)
		}
		if expiresAt.Valid {
			t := expiresAt.Time
			key.ExpiresAt = &t
		}
		keys = append(keys, &key)
	}
	return keys, rows.Err()
}

// CreateDocument persists a new document or folder node
func (s *SQLStore) CreateDocument(ctx context.Context, doc *Document) error {
	if doc.UUID == uuid.Nil {
		doc.UUID = uuid.New()
	}
	now := time.Now().UTC()
	var parent interface{}
	if doc.ParentUUID != nil {
		parent = doc.ParentUUID.String()
	}
	query := `
		INSERT INTO documents (uuid, parent_uuid, name, is_folder, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		doc.UUID.String(),
		parent,
		doc.Name,
		doc.IsFolder,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	doc.CreatedAt = now
	doc.UpdatedAt = now
	return nil
}

// GetDocument returns the node with the given UUID
func (s *SQLStore) GetDocument(ctx context.Context, docUUID uuid.UUID) (*Document, error) {
	query := `
		SELECT uuid, parent_uuid, name, is_folder, created_at, updated_at
		FROM documents
		WHERE uuid = $1
	`
	var doc Document
	var rawUUID string
	var rawParent sql.NullString
	err := s.db.QueryRowContext(ctx, query, docUUID.String()).Scan(
		&rawUUID,
		&rawParent,
		&doc.Name,
		&doc.IsFolder,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document %s: %w", docUUID, authz.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	doc.UUID, err = uuid.Parse(rawUUID)
	if err != nil {
		return nil, fmt.Errorf("invalid stored document uuid %q: %w", rawUUID, err)
	}
	if rawParent.Valid {
		parentUUID, err := uuid.Parse(rawParent.String)
		if err != nil {
			return nil, fmt.Errorf("invalid stored parent uuid %q: %w", rawParent.String, err)
		}
		doc.ParentUUID = &parentUUID
	}
	return &doc, nil
}

// IsFolder reports whether the document is a folder
func (s *SQLStore) IsFolder(ctx context.Context, docUUID uuid.UUID) (bool, error) {
	var isFolder bool
	err := s.db.QueryRowContext(ctx,
		`SELECT is_folder FROM documents WHERE uuid = $1`,
		docUUID.String(),
	).Scan(&isFolder)
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("document %s: %w", docUUID, authz.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("failed to check folder: %w", err)
	}
	return isFolder, nil
}

// Descendants returns every document under the folder, any depth. The
// recursive CTE runs on both postgres and sqlite.
func (s *SQLStore) Descendants(ctx context.Context, folderUUID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		WITH RECURSIVE subtree(uuid) AS (
			SELECT uuid FROM documents WHERE parent_uuid = $1
			UNION ALL
			SELECT d.uuid FROM documents d JOIN subtree s ON d.parent_uuid = s.uuid
		)
		SELECT uuid FROM subtree
	`
	rows, err := s.db.QueryContext(ctx, query, folderUUID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list descendants: %w", err)
	}
	defer rows.Close()

	var descendants []uuid.UUID
	for rows.Next() {
		var rawUUID string
		if err := rows.Scan(&rawUUID); err != nil {
			return nil, err
		}
		docUUID, err := uuid.Parse(rawUUID)
		if err != nil {
			return nil, fmt.Errorf("invalid stored document uuid %q: %w", rawUUID, err)
		}
		descendants = append(descendants, docUUID)
	}
	return descendants, rows.Err()
}

// ValidateUser checks that the referenced user exists and is enabled.
// Implements the validation hook used before running work as another user.
func (s *SQLStore) ValidateUser(ctx context.Context, ref identity.UserRef) error {
	user, err := s.GetByUUID(ctx, ref.UUID)
	if err != nil {
		return err
	}
	if !user.Enabled {
		return &authz.PermissionDeniedError{
			User:    ref,
			Message: fmt.Sprintf("user %q is not enabled", ref),
		}
	}
	return nil
}

// isUniqueViolation detects a unique-constraint failure across the drivers
// used in production (lib/pq, code 23505) and tests (sqlite)
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
