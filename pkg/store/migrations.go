package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all security-schema migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					uuid VARCHAR(36) PRIMARY KEY,
					subject_id VARCHAR(255) NOT NULL UNIQUE,
					display_name VARCHAR(255) NOT NULL DEFAULT '',
					is_group BOOLEAN NOT NULL DEFAULT FALSE,
					enabled BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);

				CREATE INDEX idx_users_subject_id ON users(subject_id);
			`,
		},
		{
			Version:     2,
			Description: "Create user_groups table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_groups (
					user_uuid VARCHAR(36) NOT NULL REFERENCES users(uuid) ON DELETE CASCADE,
					group_uuid VARCHAR(36) NOT NULL REFERENCES users(uuid) ON DELETE CASCADE,
					PRIMARY KEY (user_uuid, group_uuid)
				);

				CREATE INDEX idx_user_groups_user_uuid ON user_groups(user_uuid);
				CREATE INDEX idx_user_groups_group_uuid ON user_groups(group_uuid);
			`,
		},
		{
			Version:     3,
			Description: "Create app_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS app_permissions (
					user_uuid VARCHAR(36) NOT NULL REFERENCES users(uuid) ON DELETE CASCADE,
					permission VARCHAR(64) NOT NULL,
					PRIMARY KEY (user_uuid, permission)
				);

				CREATE INDEX idx_app_permissions_user_uuid ON app_permissions(user_uuid);
			`,
		},
		{
			Version:     4,
			Description: "Create doc_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS doc_permissions (
					doc_uuid VARCHAR(36) NOT NULL,
					user_uuid VARCHAR(36) NOT NULL REFERENCES users(uuid) ON DELETE CASCADE,
					permission VARCHAR(64) NOT NULL,
					PRIMARY KEY (doc_uuid, user_uuid, permission)
				);

				CREATE INDEX idx_doc_permissions_doc_uuid ON doc_permissions(doc_uuid);
				CREATE INDEX idx_doc_permissions_user_uuid ON doc_permissions(user_uuid);
			`,
		},
		{
			Version:     5,
			Description: "Create api_keys table",
			SQL: `
				CREATE TABLE IF NOT EXISTS api_keys (
					id BIGSERIAL PRIMARY KEY,
					owner_uuid VARCHAR(36) NOT NULL REFERENCES users(uuid) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL DEFAULT '',
					prefix VARCHAR(16) NOT NULL,
					hash VARCHAR(128) NOT NULL UNIQUE,
					salt VARCHAR(64) NOT NULL,
					enabled BOOLEAN NOT NULL DEFAULT TRUE,
					comments TEXT NOT NULL DEFAULT '',
					expires_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);

				CREATE INDEX idx_api_keys_prefix ON api_keys(prefix);
				CREATE INDEX idx_api_keys_owner_uuid ON api_keys(owner_uuid);
				CREATE INDEX idx_api_keys_expires_at ON api_keys(expires_at);
			`,
		},
		{
			Version:     6,
			Description: "Create documents table",
			SQL: `
				CREATE TABLE IF NOT EXISTS documents (
					uuid VARCHAR(36) PRIMARY KEY,
					parent_uuid VARCHAR(36) REFERENCES documents(uuid) ON DELETE SET NULL,
					name VARCHAR(255) NOT NULL DEFAULT '',
					is_folder BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);

				CREATE INDEX idx_documents_parent_uuid ON documents(parent_uuid);
			`,
		},
	}
}

// RunMigrations applies all pending migrations in order
func RunMigrations(ctx context.Context, db *sql.DB) error {
	return applyMigrations(ctx, db, GetMigrations())
}

func applyMigrations(ctx context.Context, db *sql.DB, migrations []Migration) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, migration := range migrations {
		var count int
		err := db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM schema_migrations WHERE version = $1`,
			migration.Version,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("failed to check migration %d: %w", migration.Version, err)
		}
		if count > 0 {
			continue
		}

		if _, err := db.ExecContext(ctx, migration.SQL); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Description, err)
		}
		_, err = db.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, description) VALUES ($1, $2)`,
			migration.Version,
			migration.Description,
		)
		if err != nil {
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
	}
	return nil
}
