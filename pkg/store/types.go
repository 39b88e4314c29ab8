package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/paperstack/paperstack/pkg/identity"
)

// User is the persisted account record. Individuals and groups share one
// table so membership edges can point at either.
type User struct {
	UUID        uuid.UUID `json:"uuid"`
	SubjectID   string    `json:"subject_id"`
	DisplayName string    `json:"display_name,omitempty"`
	IsGroup     bool      `json:"is_group"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Ref converts the record into the reference form used by the caller stack
func (u *User) Ref() identity.UserRef {
	return identity.UserRef{
		UUID:        u.UUID,
		SubjectID:   u.SubjectID,
		DisplayName: u.DisplayName,
		IsGroup:     u.IsGroup,
	}
}

// APIKey is the stored form of an issued credential. The plaintext key is
// never persisted; only the salted hash and the non-secret prefix are kept.
type APIKey struct {
	ID        int64      `json:"id"`
	OwnerUUID uuid.UUID  `json:"owner_uuid"`
	Name      string     `json:"name"`
	Prefix    string     `json:"prefix"`
	Hash      string     `json:"-"`
	Salt      string     `json:"-"`
	Enabled   bool       `json:"enabled"`
	Comments  string     `json:"comments,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Expired reports whether the key has an expiry in the past
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}

// FindAPIKeysCriteria narrows an API key listing
type FindAPIKeysCriteria struct {
	OwnerUUID *uuid.UUID
	Enabled   *bool
}

// Document is a node in the folder hierarchy. ParentUUID is nil for roots.
type Document struct {
	UUID       uuid.UUID  `json:"uuid"`
	ParentUUID *uuid.UUID `json:"parent_uuid,omitempty"`
	Name       string     `json:"name"`
	IsFolder   bool       `json:"is_folder"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
