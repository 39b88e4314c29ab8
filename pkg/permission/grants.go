package permission

import (
	"github.com/google/uuid"
)

// Grant is a single (user, permission) pair on some document
type Grant struct {
	UserUUID   uuid.UUID          `json:"user_uuid"`
	Permission DocumentPermission `json:"permission"`
}

// DocumentGrant is a fully qualified document permission row
type DocumentGrant struct {
	DocumentUUID uuid.UUID          `json:"document_uuid"`
	UserUUID     uuid.UUID          `json:"user_uuid"`
	Permission   DocumentPermission `json:"permission"`
}

// Set is an idempotent collection of document permissions. Adding a
// permission twice has no additional effect.
type Set map[DocumentPermission]struct{}

// NewSet builds a set from the given permissions
func NewSet(perms ...DocumentPermission) Set {
	s := make(Set, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// Add inserts a permission
func (s Set) Add(p DocumentPermission) {
	s[p] = struct{}{}
}

// Remove deletes a permission
func (s Set) Remove(p DocumentPermission) {
	delete(s, p)
}

// Contains reports whether the exact permission is held
func (s Set) Contains(p DocumentPermission) bool {
	_, ok := s[p]
	return ok
}

// ContainsOrHigher reports whether the set holds p or any permission that
// implies p under the Use < Read < Write < Owner order
func (s Set) ContainsOrHigher(p DocumentPermission) bool {
	for held := range s {
		if held.Implies(p) {
			return true
		}
	}
	return false
}

// Slice returns the members in unspecified order
func (s Set) Slice() []DocumentPermission {
	out := make([]DocumentPermission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	return out
}

// Clone returns an independent copy
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for p := range s {
		out[p] = struct{}{}
	}
	return out
}

// DocumentPermissions is the full permission map of one document
type DocumentPermissions struct {
	DocumentUUID uuid.UUID         `json:"document_uuid"`
	Grants       map[uuid.UUID]Set `json:"grants"`
}

// NewDocumentPermissions creates an empty permission map for a document
func NewDocumentPermissions(docUUID uuid.UUID) *DocumentPermissions {
	return &DocumentPermissions{
		DocumentUUID: docUUID,
		Grants:       make(map[uuid.UUID]Set),
	}
}

// Add records a grant for a user
func (d *DocumentPermissions) Add(userUUID uuid.UUID, perm DocumentPermission) {
	set, ok := d.Grants[userUUID]
	if !ok {
		set = NewSet()
		d.Grants[userUUID] = set
	}
	set.Add(perm)
}

// Owners returns the UUIDs of every user holding Owner on the document
func (d *DocumentPermissions) Owners() []uuid.UUID {
	var owners []uuid.UUID
	for userUUID, set := range d.Grants {
		if set.Contains(DocumentPermissionOwner) {
			owners = append(owners, userUUID)
		}
	}
	return owners
}

// UserPermissions returns the set held by one user, which may be nil
func (d *DocumentPermissions) UserPermissions(userUUID uuid.UUID) Set {
	return d.Grants[userUUID]
}

// UserDocumentPermissions is the per-user view: every document the user has
// explicit grants on, supporting the has-permission-or-higher query.
type UserDocumentPermissions struct {
	UserUUID  uuid.UUID         `json:"user_uuid"`
	Documents map[uuid.UUID]Set `json:"documents"`
}

// NewUserDocumentPermissions creates an empty per-user permission view
func NewUserDocumentPermissions(userUUID uuid.UUID) *UserDocumentPermissions {
	return &UserDocumentPermissions{
		UserUUID:  userUUID,
		Documents: make(map[uuid.UUID]Set),
	}
}

// Add records a grant on a document
func (u *UserDocumentPermissions) Add(docUUID uuid.UUID, perm DocumentPermission) {
	set, ok := u.Documents[docUUID]
	if !ok {
		set = NewSet()
		u.Documents[docUUID] = set
	}
	set.Add(perm)
}

// HasPermissionOrHigher reports whether the user holds perm, or a permission
// implying it, on the given document
func (u *UserDocumentPermissions) HasPermissionOrHigher(docUUID uuid.UUID, perm DocumentPermission) bool {
	set, ok := u.Documents[docUUID]
	if !ok {
		return false
	}
	return set.ContainsOrHigher(perm)
}
