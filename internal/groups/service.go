package groups

import (
	"context"
	"fmt"

	"github.com/athenaeum-app/athenaeum/internal/authz"
)

// RepositoryPort defines data access methods for groups.
type RepositoryPort interface {
	ListGroups(ctx context.Context) ([]Group, error)
	GetGroup(ctx context.Context, id int64) (Group, error)
	CreateGroup(ctx context.Context, name, description string) (Group, error)
	ListPermissions(ctx context.Context) ([]authz.Permission, error)
	PermissionsOf(ctx context.Context, groupID int64) ([]authz.Permission, error)
	Members(ctx context.Context, groupID int64) ([]Member, error)
	MemberIDs(ctx context.Context, groupID int64) ([]int64, error)
	ReplacePermissions(ctx context.Context, groupID int64, permissionIDs []int64) error
}

// GrantsInvalidator drops cached role/permission data after a mutation.
type GrantsInvalidator interface {
	Invalidate(ctx context.Context, userID int64) error
}

// Service handles group administration logic.
type Service struct {
	repo   RepositoryPort
	grants GrantsInvalidator
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, grants GrantsInvalidator) *Service {
	return &Service{repo: repo, grants: grants}
}

// ListGroups returns all groups.
func (s *Service) ListGroups(ctx context.Context) ([]Group, error) {
	return s.repo.ListGroups(ctx)
}

// GetGroup returns one group.
func (s *Service) GetGroup(ctx context.Context, id int64) (Group, error) {
	return s.repo.GetGroup(ctx, id)
}

// CreateGroup inserts a group. A fresh group carries no permissions, so no
// cache bump is needed.
func (s *Service) CreateGroup(ctx context.Context, name, description string) (Group, error) {
	return s.repo.CreateGroup(ctx, name, description)
}

// ListPermissions returns the permission catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]authz.Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// PermissionsOf returns the permissions attached to a group.
func (s *Service) PermissionsOf(ctx context.Context, groupID int64) ([]authz.Permission, error) {
	return s.repo.PermissionsOf(ctx, groupID)
}

// Members returns the users belonging to a group.
func (s *Service) Members(ctx context.Context, groupID int64) ([]Member, error) {
	return s.repo.Members(ctx, groupID)
}

// ReplacePermissions swaps the group's permission set and drops cached
// grants for every member, since their effective permissions changed.
func (s *Service) ReplacePermissions(ctx context.Context, groupID int64, permissionIDs []int64) error {
	if _, err := s.repo.GetGroup(ctx, groupID); err != nil {
		return err
	}
	if err := s.repo.ReplacePermissions(ctx, groupID, permissionIDs); err != nil {
		return err
	}
	if s.grants == nil {
		return nil
	}
	memberIDs, err := s.repo.MemberIDs(ctx, groupID)
	if err != nil {
		return fmt.Errorf("refresh grants: %w", err)
	}
	for _, userID := range memberIDs {
		if err := s.grants.Invalidate(ctx, userID); err != nil {
			return fmt.Errorf("refresh grants: %w", err)
		}
	}
	return nil
}
