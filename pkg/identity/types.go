package identity

import (
	"github.com/google/uuid"
)

// Kind distinguishes how an identity was established
type Kind string

const (
	// KindBasic is an identity resolved directly from a user record
	KindBasic Kind = "basic"
	// KindSession is an identity tied to an interactive login session
	KindSession Kind = "session"
	// KindAPIKey is an identity resolved from a verified API key
	KindAPIKey Kind = "api_key"
	// KindProcessing is the distinguished internal processing identity
	KindProcessing Kind = "processing"
)

// UserRef is a stable reference to a user or group record
type UserRef struct {
	UUID        uuid.UUID `json:"uuid"`
	SubjectID   string    `json:"subject_id"`
	DisplayName string    `json:"display_name,omitempty"`
	IsGroup     bool      `json:"is_group,omitempty"`
}

// String returns a human-readable form for logs and error messages
func (r UserRef) String() string {
	if r.DisplayName != "" {
		return r.DisplayName
	}
	if r.SubjectID != "" {
		return r.SubjectID
	}
	return r.UUID.String()
}

// IsZero reports whether the reference is unset
func (r UserRef) IsZero() bool {
	return r.UUID == uuid.Nil && r.SubjectID == ""
}

// Identity represents a resolved caller. Immutable once constructed.
type Identity struct {
	Kind Kind    `json:"kind"`
	Ref  UserRef `json:"ref"`
}

// IsProcessing reports whether this is the internal processing identity
func (id Identity) IsProcessing() bool {
	return id.Kind == KindProcessing
}

// NewBasicIdentity creates an identity from a user reference
func NewBasicIdentity(ref UserRef) Identity {
	return Identity{Kind: KindBasic, Ref: ref}
}

// NewAPIKeyIdentity creates an identity resolved from a verified API key
func NewAPIKeyIdentity(ref UserRef) Identity {
	return Identity{Kind: KindAPIKey, Ref: ref}
}

// ProcessingIdentity returns the internal processing identity used for
// background work that must bypass permission checks
func ProcessingIdentity() Identity {
	return Identity{
		Kind: KindProcessing,
		Ref: UserRef{
			SubjectID:   "INTERNAL_PROCESSING_USER",
			DisplayName: "Internal Processing User",
		},
	}
}
