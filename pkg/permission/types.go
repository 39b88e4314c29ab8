package permission

// AppPermission is a capability checked against the application as a whole
type AppPermission string

const (
	// AppPermissionAdministrator implicitly grants every other permission
	AppPermissionAdministrator AppPermission = "administrator"
	AppPermissionManageUsers   AppPermission = "manage_users"
	AppPermissionManageAPIKeys AppPermission = "manage_api_keys"
	AppPermissionManageCache   AppPermission = "manage_cache"
	AppPermissionVerifyAPIKey  AppPermission = "verify_api_key"
	AppPermissionViewSystem    AppPermission = "view_system"

	// AppPermissionNone means "any authenticated caller"
	AppPermissionNone AppPermission = ""
)

// String returns the permission name
func (p AppPermission) String() string {
	return string(p)
}

// DocumentPermission is a capability scoped to one document
type DocumentPermission string

const (
	DocumentPermissionUse   DocumentPermission = "use"
	DocumentPermissionRead  DocumentPermission = "read"
	DocumentPermissionWrite DocumentPermission = "write"
	DocumentPermissionOwner DocumentPermission = "owner"

	// DocumentPermissionCreate only has meaning on folders and sits outside
	// the Use < Read < Write < Owner order
	DocumentPermissionCreate DocumentPermission = "create"
)

// documentPermissionRanks orders the hierarchical permissions. Create is
// deliberately absent: it neither implies nor is implied by the others.
var documentPermissionRanks = map[DocumentPermission]int{
	DocumentPermissionUse:   1,
	DocumentPermissionRead:  2,
	DocumentPermissionWrite: 3,
	DocumentPermissionOwner: 4,
}

// String returns the permission name
func (p DocumentPermission) String() string {
	return string(p)
}

// Rank returns the position of the permission in the partial order, or 0 for
// permissions outside the order (Create, unknown values)
func (p DocumentPermission) Rank() int {
	return documentPermissionRanks[p]
}

// Implies reports whether holding p satisfies a check for other. A permission
// always implies itself; a ranked permission implies every lower rank.
func (p DocumentPermission) Implies(other DocumentPermission) bool {
	if p == other {
		return true
	}
	pr, or := p.Rank(), other.Rank()
	return pr > 0 && or > 0 && pr >= or
}

// ValidDocumentPermissions returns all grantable document permissions
func ValidDocumentPermissions() []DocumentPermission {
	return []DocumentPermission{
		DocumentPermissionUse,
		DocumentPermissionRead,
		DocumentPermissionWrite,
		DocumentPermissionOwner,
		DocumentPermissionCreate,
	}
}
