package permission

import (
	"github.com/google/uuid"
)

// ChangeEventKind tags the variants of a permission change event
type ChangeEventKind string

const (
	// ChangeEventAdded: a single (user, document, permission) grant was added
	ChangeEventAdded ChangeEventKind = "added"
	// ChangeEventRemoved: a single grant was removed
	ChangeEventRemoved ChangeEventKind = "removed"
	// ChangeEventDocumentCleared: all grants on a document were removed
	ChangeEventDocumentCleared ChangeEventKind = "document_cleared"
	// ChangeEventUserCleared: all grants held by a user were removed
	ChangeEventUserCleared ChangeEventKind = "user_cleared"
)

// ChangeEvent notifies interested caches that stored permissions moved.
// UserUUID and DocumentUUID are optional depending on the kind.
type ChangeEvent struct {
	Kind         ChangeEventKind    `json:"kind"`
	UserUUID     *uuid.UUID         `json:"user_uuid,omitempty"`
	DocumentUUID *uuid.UUID         `json:"document_uuid,omitempty"`
	Permission   DocumentPermission `json:"permission,omitempty"`
}

// AddedEvent builds an event for a new grant
func AddedEvent(docUUID, userUUID uuid.UUID, perm DocumentPermission) ChangeEvent {
	return ChangeEvent{
		Kind:         ChangeEventAdded,
		UserUUID:     &userUUID,
		DocumentUUID: &docUUID,
		Permission:   perm,
	}
}

// RemovedEvent builds an event for a removed grant
func RemovedEvent(docUUID, userUUID uuid.UUID, perm DocumentPermission) ChangeEvent {
	return ChangeEvent{
		Kind:         ChangeEventRemoved,
		UserUUID:     &userUUID,
		DocumentUUID: &docUUID,
		Permission:   perm,
	}
}

// DocumentClearedEvent builds an event for a document losing all grants
func DocumentClearedEvent(docUUID uuid.UUID) ChangeEvent {
	return ChangeEvent{
		Kind:         ChangeEventDocumentCleared,
		DocumentUUID: &docUUID,
	}
}

// UserClearedEvent builds an event for a user losing all grants
func UserClearedEvent(userUUID uuid.UUID) ChangeEvent {
	return ChangeEvent{
		Kind:     ChangeEventUserCleared,
		UserUUID: &userUUID,
	}
}

// ChangeHandler is implemented by anything that reacts to permission change
// events, typically caches invalidating affected entries.
type ChangeHandler interface {
	OnPermissionChange(event ChangeEvent)
}
