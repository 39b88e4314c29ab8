package docperm

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/paperstack/paperstack/pkg/authz"
	"github.com/paperstack/paperstack/pkg/identity"
	"github.com/paperstack/paperstack/pkg/observability"
	"github.com/paperstack/paperstack/pkg/permission"
	"github.com/paperstack/paperstack/pkg/store"
)

// Cascade controls how a permission change on a folder propagates to its
// descendants.
type Cascade string

const (
	// CascadeNone applies the change to the target document only.
	CascadeNone Cascade = "none"

	// CascadeChangesOnly re-applies the same change set to every descendant
	// the caller owns. Descendants the caller does not own are skipped.
	CascadeChangesOnly Cascade = "changes_only"

	// CascadeAll replaces every descendant's permissions with the folder's
	// resulting permission map, removing anything not present on the folder.
	CascadeAll Cascade = "all"
)

// ChangeSet lists the grants to remove and add on a document. Removes are
// applied before adds.
type ChangeSet struct {
	Add    []permission.Grant
	Remove []permission.Grant
}

func (c ChangeSet) Empty() bool {
	return len(c.Add) == 0 && len(c.Remove) == 0
}

// ChangeRequest is one permission mutation against one document. Clear
// removes every existing grant before the change set is applied.
type ChangeRequest struct {
	DocumentUUID uuid.UUID
	Changes      ChangeSet
	Clear        bool
	Cascade      Cascade
}

// DocumentTree navigates the folder hierarchy. It is an external
// collaborator; the mutator only asks two questions of it.
type DocumentTree interface {
	// IsFolder reports whether the document is a folder
	IsFolder(ctx context.Context, docUUID uuid.UUID) (bool, error)

	// Descendants returns every document under the folder, any depth
	Descendants(ctx context.Context, folderUUID uuid.UUID) ([]uuid.UUID, error)
}

// Mutator applies permission changes to documents. Every request is gated on
// the caller holding OWNER on the target; cascading re-checks OWNER per
// descendant. Each touched (document, user) pair produces one change event
// so the cache layer catches up.
type Mutator struct {
	engine *authz.Engine
	perms  store.DocPermissionStore
	tree   DocumentTree
	events permission.ChangeHandler
	logger *observability.Logger
}

func NewMutator(engine *authz.Engine, perms store.DocPermissionStore, tree DocumentTree, events permission.ChangeHandler, logger *observability.Logger) *Mutator {
	return &Mutator{
		engine: engine,
		perms:  perms,
		tree:   tree,
		events: events,
		logger: logger,
	}
}

// Apply executes a change request. Individual grant failures are logged and
// skipped rather than aborting the batch; a partial application is an
// accepted outcome and is never rolled back.
func (m *Mutator) Apply(ctx context.Context, req ChangeRequest) error {
	owned, err := m.engine.HasDocumentPermission(ctx, req.DocumentUUID, permission.DocumentPermissionOwner)
	if err != nil {
		return err
	}
	if !owned {
		id, _ := identity.Current(ctx)
		return &authz.PermissionDeniedError{
			User:       id.Ref,
			Permission: string(permission.DocumentPermissionOwner),
			Message:    fmt.Sprintf("not an owner of document %s", req.DocumentUUID),
		}
	}

	isFolder, err := m.tree.IsFolder(ctx, req.DocumentUUID)
	if err != nil {
		return fmt.Errorf("resolving document type of %s: %w", req.DocumentUUID, err)
	}

	if err := m.applyToDocument(ctx, req.DocumentUUID, req.Changes, req.Clear, isFolder); err != nil {
		return err
	}

	if !isFolder || req.Cascade == CascadeNone || req.Cascade == "" {
		return nil
	}
	return m.cascade(ctx, req)
}

// applyToDocument runs the change set against one document. With clear set,
// every existing grant is removed first. Grants of CREATE on a non-folder
// are silently skipped.
func (m *Mutator) applyToDocument(ctx context.Context, docUUID uuid.UUID, changes ChangeSet, clear, isFolder bool) error {
	if clear {
		existing, err := m.perms.GetPermissionsForDocument(ctx, docUUID)
		if err != nil {
			return fmt.Errorf("reading permissions of %s: %w", docUUID, err)
		}
		for userUUID, set := range existing.Grants {
			for _, perm := range set.Slice() {
				if err := m.perms.RemoveDocPermission(ctx, docUUID, userUUID, perm); err != nil {
					m.logPairError(docUUID, userUUID, perm, "remove", err)
				}
			}
		}
		m.fire(permission.DocumentClearedEvent(docUUID))
	}

	for _, g := range changes.Remove {
		if err := m.perms.RemoveDocPermission(ctx, docUUID, g.UserUUID, g.Permission); err != nil {
			m.logPairError(docUUID, g.UserUUID, g.Permission, "remove", err)
			continue
		}
		m.fire(permission.RemovedEvent(docUUID, g.UserUUID, g.Permission))
	}

	for _, g := range changes.Add {
		if g.Permission == permission.DocumentPermissionCreate && !isFolder {
			continue
		}
		if err := m.perms.AddDocPermission(ctx, docUUID, g.UserUUID, g.Permission); err != nil {
			m.logPairError(docUUID, g.UserUUID, g.Permission, "add", err)
			continue
		}
		m.fire(permission.AddedEvent(docUUID, g.UserUUID, g.Permission))
	}
	return nil
}

func (m *Mutator) cascade(ctx context.Context, req ChangeRequest) error {
	descendants, err := m.tree.Descendants(ctx, req.DocumentUUID)
	if err != nil {
		return fmt.Errorf("resolving descendants of %s: %w", req.DocumentUUID, err)
	}
	if len(descendants) == 0 {
		return nil
	}

	changes := req.Changes
	clear := false
	if req.Cascade == CascadeAll {
		// Descendants end up with exactly the folder's resulting grants.
		resulting, err := m.perms.GetPermissionsForDocument(ctx, req.DocumentUUID)
		if err != nil {
			return fmt.Errorf("reading permissions of %s: %w", req.DocumentUUID, err)
		}
		changes = ChangeSet{}
		for userUUID, set := range resulting.Grants {
			for _, perm := range set.Slice() {
				changes.Add = append(changes.Add, permission.Grant{UserUUID: userUUID, Permission: perm})
			}
		}
		clear = true
	}

	for _, descendant := range descendants {
		owned, err := m.engine.HasDocumentPermission(ctx, descendant, permission.DocumentPermissionOwner)
		if err != nil {
			return err
		}
		if !owned {
			if m.logger != nil {
				m.logger.WithField("document", descendant.String()).Debug("skipping descendant not owned by caller")
			}
			continue
		}

		isFolder, err := m.tree.IsFolder(ctx, descendant)
		if err != nil {
			return fmt.Errorf("resolving document type of %s: %w", descendant, err)
		}
		if err := m.applyToDocument(ctx, descendant, changes, clear, isFolder); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mutator) fire(event permission.ChangeEvent) {
	if m.events != nil {
		m.events.OnPermissionChange(event)
	}
}

func (m *Mutator) logPairError(docUUID, userUUID uuid.UUID, perm permission.DocumentPermission, op string, err error) {
	if m.logger == nil {
		return
	}
	m.logger.WithFields(map[string]interface{}{
		"document":   docUUID.String(),
		"user":       userUUID.String(),
		"permission": string(perm),
		"op":         op,
	}).WithError(err).Warn("permission change failed for pair")
}
