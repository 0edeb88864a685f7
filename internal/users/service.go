package users

import (
	"context"
	"fmt"

	"github.com/athenaeum-app/athenaeum/internal/authz"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	ListGroups(ctx context.Context) ([]Group, error)
	GroupsOf(ctx context.Context, userID int64) ([]Group, error)
	SetRole(ctx context.Context, userID int64, role authz.Role) error
	AddToGroup(ctx context.Context, userID, groupID int64) error
	RemoveFromGroup(ctx context.Context, userID, groupID int64) error
	UpdateProfile(ctx context.Context, userID int64, username, bio string) error
}

// GrantsInvalidator drops cached role/permission data after a mutation.
type GrantsInvalidator interface {
	Invalidate(ctx context.Context, userID int64) error
}

// Service handles user administration logic.
type Service struct {
	repo   RepositoryPort
	grants GrantsInvalidator
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, grants GrantsInvalidator) *Service {
	return &Service{repo: repo, grants: grants}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// GetUser returns one user.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// ListGroups returns every group.
func (s *Service) ListGroups(ctx context.Context) ([]Group, error) {
	return s.repo.ListGroups(ctx)
}

// GroupsOf returns the groups a user belongs to.
func (s *Service) GroupsOf(ctx context.Context, userID int64) ([]Group, error) {
	return s.repo.GroupsOf(ctx, userID)
}

// AssignRole stores a new profile role and drops the user's cached grants.
// Only the three assignable roles are accepted.
func (s *Service) AssignRole(ctx context.Context, userID int64, role authz.Role) error {
	if !role.Valid() {
		return fmt.Errorf("assign role: invalid role %q", role)
	}
	if err := s.repo.SetRole(ctx, userID, role); err != nil {
		return err
	}
	return s.invalidate(ctx, userID)
}

// AddToGroup attaches a user to a group and drops the user's cached grants.
func (s *Service) AddToGroup(ctx context.Context, userID, groupID int64) error {
	if err := s.repo.AddToGroup(ctx, userID, groupID); err != nil {
		return err
	}
	return s.invalidate(ctx, userID)
}

// RemoveFromGroup detaches a user from a group and drops the user's cached
// grants.
func (s *Service) RemoveFromGroup(ctx context.Context, userID, groupID int64) error {
	if err := s.repo.RemoveFromGroup(ctx, userID, groupID); err != nil {
		return err
	}
	return s.invalidate(ctx, userID)
}

// UpdateProfile stores the self-service fields. Username and bio do not
// feed authorization, so no cache bump happens here.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, username, bio string) error {
	return s.repo.UpdateProfile(ctx, userID, username, bio)
}

func (s *Service) invalidate(ctx context.Context, userID int64) error {
	if s.grants == nil {
		return nil
	}
	if err := s.grants.Invalidate(ctx, userID); err != nil {
		return fmt.Errorf("refresh grants: %w", err)
	}
	return nil
}
