package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paperstack/paperstack/pkg/audit"
	"github.com/paperstack/paperstack/pkg/authz"
	"github.com/paperstack/paperstack/pkg/identity"
	"github.com/paperstack/paperstack/pkg/permission"
	"github.com/paperstack/paperstack/pkg/store"
)

// memStores implements the storage interfaces in memory for handler tests
type memStores struct {
	mu          sync.Mutex
	users       map[uuid.UUID]*store.User
	memberships map[uuid.UUID][]identity.UserRef
	appPerms    map[uuid.UUID][]permission.AppPermission
	docPerms    map[uuid.UUID]*permission.DocumentPermissions
	keys        map[int64]*store.APIKey
	nextKeyID   int64
}

func newMemStores() *memStores {
	return &memStores{
		users:       make(map[uuid.UUID]*store.User),
		memberships: make(map[uuid.UUID][]identity.UserRef),
		appPerms:    make(map[uuid.UUID][]permission.AppPermission),
		docPerms:    make(map[uuid.UUID]*permission.DocumentPermissions),
		keys:        make(map[int64]*store.APIKey),
	}
}

func (m *memStores) GetByUUID(ctx context.Context, userUUID uuid.UUID) (*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userUUID]
	if !ok {
		return nil, authz.ErrNotFound
	}
	return user, nil
}

func (m *memStores) GetBySubjectID(ctx context.Context, subjectID string) (*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.SubjectID == subjectID {
			return user, nil
		}
	}
	return nil, authz.ErrNotFound
}

func (m *memStores) Create(ctx context.Context, user *store.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.UUID] = user
	return nil
}

func (m *memStores) SetEnabled(ctx context.Context, userUUID uuid.UUID, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userUUID]
	if !ok {
		return authz.ErrNotFound
	}
	user.Enabled = enabled
	return nil
}

func (m *memStores) FindGroupsOf(ctx context.Context, userUUID uuid.UUID) ([]identity.UserRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.memberships[userUUID], nil
}

func (m *memStores) AddMembership(ctx context.Context, userUUID, groupUUID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := identity.UserRef{UUID: groupUUID}
	if group, ok := m.users[groupUUID]; ok {
		ref = group.Ref()
	}
	m.memberships[userUUID] = append(m.memberships[userUUID], ref)
	return nil
}

func (m *memStores) RemoveMembership(ctx context.Context, userUUID, groupUUID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	edges := m.memberships[userUUID]
	kept := edges[:0]
	for _, ref := range edges {
		if ref.UUID != groupUUID {
			kept = append(kept, ref)
		}
	}
	m.memberships[userUUID] = kept
	return nil
}

func (m *memStores) GetPermissionsForUser(ctx context.Context, userUUID uuid.UUID) ([]permission.AppPermission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appPerms[userUUID], nil
}

func (m *memStores) AddPermission(ctx context.Context, userUUID uuid.UUID, perm permission.AppPermission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, held := range m.appPerms[userUUID] {
		if held == perm {
			return nil
		}
	}
	m.appPerms[userUUID] = append(m.appPerms[userUUID], perm)
	return nil
}

func (m *memStores) RemovePermission(ctx context.Context, userUUID uuid.UUID, perm permission.AppPermission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	held := m.appPerms[userUUID]
	kept := held[:0]
	for _, p := range held {
		if p != perm {
			kept = append(kept, p)
		}
	}
	m.appPerms[userUUID] = kept
	return nil
}

func (m *memStores) GetPermissionsForDocument(ctx context.Context, docUUID uuid.UUID) (*permission.DocumentPermissions, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	perms, ok := m.docPerms[docUUID]
	if !ok {
		return permission.NewDocumentPermissions(docUUID), nil
	}
	return perms, nil
}

func (m *memStores) GetUserDocumentPermissions(ctx context.Context, userUUID uuid.UUID) (*permission.UserDocumentPermissions, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	view := permission.NewUserDocumentPermissions(userUUID)
	for docUUID, perms := range m.docPerms {
		for _, p := range perms.UserPermissions(userUUID).Slice() {
			view.Add(docUUID, p)
		}
	}
	return view, nil
}

func (m *memStores) AddDocPermission(ctx context.Context, docUUID, userUUID uuid.UUID, perm permission.DocumentPermission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	perms, ok := m.docPerms[docUUID]
	if !ok {
		perms = permission.NewDocumentPermissions(docUUID)
		m.docPerms[docUUID] = perms
	}
	perms.Add(userUUID, perm)
	return nil
}

func (m *memStores) RemoveDocPermission(ctx context.Context, docUUID, userUUID uuid.UUID, perm permission.DocumentPermission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if perms, ok := m.docPerms[docUUID]; ok {
		if set := perms.UserPermissions(userUUID); set != nil {
			set.Remove(perm)
		}
	}
	return nil
}

func (m *memStores) ClearDocumentPermissions(ctx context.Context, docUUID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docPerms, docUUID)
	return nil
}

func (m *memStores) ClearUserPermissions(ctx context.Context, userUUID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, perms := range m.docPerms {
		delete(perms.Grants, userUUID)
	}
	return nil
}

func (m *memStores) CreateAPIKey(ctx context.Context, key *store.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.keys {
		if existing.Hash == key.Hash {
			return store.ErrDuplicateKey
		}
	}
	m.nextKeyID++
	key.ID = m.nextKeyID
	key.CreatedAt = time.Now()
	key.UpdatedAt = key.CreatedAt
	m.keys[key.ID] = key
	return nil
}

func (m *memStores) FindAPIKeysByPrefix(ctx context.Context, prefix string) ([]*store.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found []*store.APIKey
	for _, key := range m.keys {
		if key.Prefix == prefix && key.Enabled {
			found = append(found, key)
		}
	}
	return found, nil
}

func (m *memStores) FetchAPIKey(ctx context.Context, id int64) (*store.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.keys[id]
	if !ok {
		return nil, authz.ErrNotFound
	}
	return key, nil
}

func (m *memStores) UpdateAPIKey(ctx context.Context, key *store.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key.ID]; !ok {
		return authz.ErrNotFound
	}
	key.UpdatedAt = time.Now()
	m.keys[key.ID] = key
	return nil
}

func (m *memStores) DeleteAPIKey(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[id]; !ok {
		return false, nil
	}
	delete(m.keys, id)
	return true, nil
}

func (m *memStores) FindAPIKeys(ctx context.Context, criteria store.FindAPIKeysCriteria) ([]*store.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found []*store.APIKey
	for _, key := range m.keys {
		if criteria.OwnerUUID != nil && key.OwnerUUID != *criteria.OwnerUUID {
			continue
		}
		if criteria.Enabled != nil && key.Enabled != *criteria.Enabled {
			continue
		}
		found = append(found, key)
	}
	return found, nil
}

func (m *memStores) DisableExpiredAPIKeys(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var count int64
	for _, key := range m.keys {
		if key.Enabled && key.Expired(now) {
			key.Enabled = false
			count++
		}
	}
	return count, nil
}

// ValidateUser satisfies authz.UserValidator: unknown identities pass so
// tests can push arbitrary callers, disabled users are rejected
func (m *memStores) ValidateUser(ctx context.Context, ref identity.UserRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user, ok := m.users[ref.UUID]; ok && !user.Enabled {
		return &authz.PermissionDeniedError{User: ref, Message: "user is not enabled"}
	}
	return nil
}

// graphSource adapts the store-shaped accessors to the resolver's interfaces
type graphSource struct {
	stores *memStores
}

func (g *graphSource) GetGroups(ctx context.Context, userUUID uuid.UUID) ([]identity.UserRef, error) {
	return g.stores.FindGroupsOf(ctx, userUUID)
}

func (g *graphSource) GetPermissions(ctx context.Context, userUUID uuid.UUID) ([]permission.AppPermission, error) {
	return g.stores.GetPermissionsForUser(ctx, userUUID)
}

// docSource adapts memStores to the engine's document permission query
type docSource struct {
	stores *memStores
}

func (d *docSource) HasDocumentPermission(ctx context.Context, userUUID, docUUID uuid.UUID, perm permission.DocumentPermission) (bool, error) {
	d.stores.mu.Lock()
	defer d.stores.mu.Unlock()
	perms, ok := d.stores.docPerms[docUUID]
	if !ok {
		return false, nil
	}
	set := perms.UserPermissions(userUUID)
	if set == nil {
		return false, nil
	}
	return set.ContainsOrHigher(perm), nil
}

// recordingAudit captures the event types the handlers emit
type recordingAudit struct {
	mu    sync.Mutex
	types []audit.EventType
}

func (a *recordingAudit) record(eventType audit.EventType) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.types = append(a.types, eventType)
}

func (a *recordingAudit) recorded() []audit.EventType {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]audit.EventType, len(a.types))
	copy(out, a.types)
	return out
}

func (a *recordingAudit) Log(ctx context.Context, event *audit.AuditEvent) error {
	a.record(event.EventType)
	return nil
}

func (a *recordingAudit) LogAuthentication(ctx context.Context, eventType audit.EventType, userUUID *uuid.UUID, subjectID string, status audit.EventStatus, message string) error {
	a.record(eventType)
	return nil
}

func (a *recordingAudit) LogAuthorization(ctx context.Context, eventType audit.EventType, userUUID *uuid.UUID, resourceType audit.ResourceType, resourceID string, status audit.EventStatus, message string) error {
	a.record(eventType)
	return nil
}

func (a *recordingAudit) LogPermissionChange(ctx context.Context, eventType audit.EventType, userUUID *uuid.UUID, resourceType audit.ResourceType, resourceID string, changes *audit.ChangeDetails, message string) error {
	a.record(eventType)
	return nil
}

func (a *recordingAudit) LogAdminAction(ctx context.Context, eventType audit.EventType, adminUUID *uuid.UUID, targetUUID *uuid.UUID, message string) error {
	a.record(eventType)
	return nil
}

func (a *recordingAudit) LogAccess(ctx context.Context, eventType audit.EventType, userUUID *uuid.UUID, resourceType audit.ResourceType, resourceID string, message string) error {
	a.record(eventType)
	return nil
}

func (a *recordingAudit) LogHTTPRequest(ctx context.Context, r *http.Request, statusCode int, duration time.Duration, err error) error {
	return nil
}

func (a *recordingAudit) Close() error {
	return nil
}

// recordingInvalidator captures cache invalidation calls
type recordingInvalidator struct {
	mu    sync.Mutex
	users []uuid.UUID
}

func (i *recordingInvalidator) InvalidateUser(userUUID uuid.UUID) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.users = append(i.users, userUUID)
}

// flatTree is a DocumentTree with no folders
type flatTree struct{}

func (flatTree) IsFolder(ctx context.Context, docUUID uuid.UUID) (bool, error) {
	return false, nil
}

func (flatTree) Descendants(ctx context.Context, folderUUID uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}

// handlerFixture bundles the domain stack the handlers sit on
type handlerFixture struct {
	stores      *memStores
	engine      *authz.Engine
	resolver    *authz.GroupResolver
	audit       *recordingAudit
	invalidator *recordingInvalidator
}

func newHandlerFixture() *handlerFixture {
	stores := newMemStores()
	graph := &graphSource{stores: stores}
	resolver := authz.NewGroupResolver(graph, graph)
	engine := authz.NewEngine(resolver, graph, &docSource{stores: stores}, stores)
	return &handlerFixture{
		stores:      stores,
		engine:      engine,
		resolver:    resolver,
		audit:       &recordingAudit{},
		invalidator: &recordingInvalidator{},
	}
}

// addUser registers an enabled user with the given app permissions
func (f *handlerFixture) addUser(subjectID string, perms ...permission.AppPermission) *store.User {
	user := &store.User{
		UUID:      uuid.New(),
		SubjectID: subjectID,
		Enabled:   true,
	}
	f.stores.users[user.UUID] = user
	f.stores.appPerms[user.UUID] = perms
	return user
}

// asUser returns a request context carrying the user's identity
func asUser(user *store.User) context.Context {
	return identity.Push(context.Background(), identity.NewBasicIdentity(user.Ref()))
}

// newDoc registers a document owned by the given user
func newDoc(f *handlerFixture, owner *store.User) uuid.UUID {
	doc := uuid.New()
	perms := permission.NewDocumentPermissions(doc)
	perms.Add(owner.UUID, permission.DocumentPermissionOwner)
	f.stores.docPerms[doc] = perms
	return doc
}
