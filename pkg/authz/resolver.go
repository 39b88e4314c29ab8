package authz

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/paperstack/paperstack/pkg/identity"
	"github.com/paperstack/paperstack/pkg/permission"
)

// GroupSource supplies the direct group memberships of a user or group.
// *permcache.GroupsCache satisfies this.
type GroupSource interface {
	GetGroups(ctx context.Context, userUUID uuid.UUID) ([]identity.UserRef, error)
}

// AppPermissionSource supplies the directly granted application permissions
// of a user or group. *permcache.AppPermissionsCache satisfies this.
type AppPermissionSource interface {
	GetPermissions(ctx context.Context, userUUID uuid.UUID) ([]permission.AppPermission, error)
}

// Path is an ordered chain of group memberships leading from a user to the
// group that conferred a permission. An empty path means the permission was
// granted to the user directly.
type Path []identity.UserRef

func (p Path) String() string {
	if len(p) == 0 {
		return "(direct)"
	}
	s := ""
	for i, ref := range p {
		if i > 0 {
			s += " > "
		}
		s += ref.String()
	}
	return s
}

// GroupResolver walks the group membership graph. Membership edges are not
// guaranteed acyclic, so every traversal tracks visited nodes. All group
// traversal in the module routes through this type.
type GroupResolver struct {
	groups GroupSource
	perms  AppPermissionSource
}

func NewGroupResolver(groups GroupSource, perms AppPermissionSource) *GroupResolver {
	return &GroupResolver{groups: groups, perms: perms}
}

// TransitiveGroupsOf returns every group the user belongs to, directly or
// through nested membership. The result contains no duplicates and the
// traversal terminates on cycles.
func (r *GroupResolver) TransitiveGroupsOf(ctx context.Context, userUUID uuid.UUID) ([]identity.UserRef, error) {
	visited := map[uuid.UUID]struct{}{userUUID: {}}
	var result []identity.UserRef

	queue := []uuid.UUID{userUUID}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		groups, err := r.groups.GetGroups(ctx, node)
		if err != nil {
			return nil, fmt.Errorf("resolving groups of %s: %w", node, err)
		}
		for _, g := range groups {
			if _, seen := visited[g.UUID]; seen {
				continue
			}
			visited[g.UUID] = struct{}{}
			result = append(result, g)
			queue = append(queue, g.UUID)
		}
	}
	return result, nil
}

// TransitiveGroupsWithPaths reports every application permission the user
// holds, mapped to each distinct membership path that conferred it. Direct
// grants appear under an empty path. Used by the "explain this permission"
// report.
func (r *GroupResolver) TransitiveGroupsWithPaths(ctx context.Context, userUUID uuid.UUID) (map[permission.AppPermission][]Path, error) {
	result := make(map[permission.AppPermission][]Path)
	onPath := map[uuid.UUID]struct{}{userUUID: {}}
	if err := r.walkPaths(ctx, userUUID, nil, onPath, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *GroupResolver) walkPaths(ctx context.Context, node uuid.UUID, path Path, onPath map[uuid.UUID]struct{}, result map[permission.AppPermission][]Path) error {
	perms, err := r.perms.GetPermissions(ctx, node)
	if err != nil {
		return fmt.Errorf("resolving permissions of %s: %w", node, err)
	}
	for _, p := range perms {
		branch := make(Path, len(path))
		copy(branch, path)
		result[p] = append(result[p], branch)
	}

	groups, err := r.groups.GetGroups(ctx, node)
	if err != nil {
		return fmt.Errorf("resolving groups of %s: %w", node, err)
	}
	for _, g := range groups {
		// A node already on the current path marks a membership cycle.
		if _, seen := onPath[g.UUID]; seen {
			continue
		}
		onPath[g.UUID] = struct{}{}
		if err := r.walkPaths(ctx, g.UUID, append(path, g), onPath, result); err != nil {
			return err
		}
		delete(onPath, g.UUID)
	}
	return nil
}
