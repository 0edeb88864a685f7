package groups

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athenaeum-app/athenaeum/internal/authz"
	"github.com/athenaeum-app/athenaeum/internal/shared"
)

type mockRepository struct {
	groups      map[int64]*Group
	permissions map[int64]authz.Permission
	attached    map[int64][]int64
	members     map[int64][]int64
	nextGroupID int64

	replaceError error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		groups:      make(map[int64]*Group),
		permissions: make(map[int64]authz.Permission),
		attached:    make(map[int64][]int64),
		members:     make(map[int64][]int64),
		nextGroupID: 1,
	}
}

func (m *mockRepository) ListGroups(ctx context.Context) ([]Group, error) {
	result := []Group{}
	for _, g := range m.groups {
		result = append(result, *g)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *mockRepository) GetGroup(ctx context.Context, id int64) (Group, error) {
	g, ok := m.groups[id]
	if !ok {
		return Group{}, shared.ErrNotFound
	}
	return *g, nil
}

func (m *mockRepository) CreateGroup(ctx context.Context, name, description string) (Group, error) {
	for _, g := range m.groups {
		if g.Name == name {
			return Group{}, ErrNameTaken
		}
	}
	id := m.nextGroupID
	m.nextGroupID++
	group := Group{ID: id, Name: name, Description: description}
	m.groups[id] = &group
	return group, nil
}

func (m *mockRepository) ListPermissions(ctx context.Context) ([]authz.Permission, error) {
	result := []authz.Permission{}
	for _, p := range m.permissions {
		result = append(result, p)
	}
	return result, nil
}

func (m *mockRepository) PermissionsOf(ctx context.Context, groupID int64) ([]authz.Permission, error) {
	result := []authz.Permission{}
	for _, id := range m.attached[groupID] {
		result = append(result, m.permissions[id])
	}
	return result, nil
}

func (m *mockRepository) Members(ctx context.Context, groupID int64) ([]Member, error) {
	result := []Member{}
	for _, id := range m.members[groupID] {
		result = append(result, Member{ID: id})
	}
	return result, nil
}

func (m *mockRepository) MemberIDs(ctx context.Context, groupID int64) ([]int64, error) {
	return m.members[groupID], nil
}

func (m *mockRepository) ReplacePermissions(ctx context.Context, groupID int64, permissionIDs []int64) error {
	if m.replaceError != nil {
		return m.replaceError
	}
	m.attached[groupID] = append([]int64(nil), permissionIDs...)
	return nil
}

type mockInvalidator struct {
	calls []int64
}

func (m *mockInvalidator) Invalidate(ctx context.Context, userID int64) error {
	m.calls = append(m.calls, userID)
	return nil
}

func newTestService() (*Service, *mockRepository, *mockInvalidator) {
	repo := newMockRepository()
	grants := &mockInvalidator{}
	return NewService(repo, grants), repo, grants
}

func TestCreateGroup(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	group, err := svc.CreateGroup(ctx, "Editors", "Catalog editors")
	require.NoError(t, err)
	assert.Equal(t, int64(1), group.ID)
	assert.Equal(t, "Editors", group.Name)
}

func TestCreateGroupDuplicateName(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreateGroup(ctx, "Editors", "")
	require.NoError(t, err)

	_, err = svc.CreateGroup(ctx, "Editors", "again")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNameTaken))
}

func TestReplacePermissionsInvalidatesEveryMember(t *testing.T) {
	svc, repo, grants := newTestService()
	ctx := context.Background()

	repo.groups[1] = &Group{ID: 1, Name: "Editors"}
	repo.permissions[10] = authz.Permission{ID: 10, Name: "catalog.book.edit"}
	repo.permissions[11] = authz.Permission{ID: 11, Name: "catalog.book.view"}
	repo.members[1] = []int64{7, 8, 9}

	err := svc.ReplacePermissions(ctx, 1, []int64{10, 11})
	require.NoError(t, err)

	attached, err := svc.PermissionsOf(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, attached, 2)
	assert.Equal(t, []int64{7, 8, 9}, grants.calls)
}

func TestReplacePermissionsEmptySetDetaches(t *testing.T) {
	svc, repo, grants := newTestService()
	ctx := context.Background()

	repo.groups[1] = &Group{ID: 1, Name: "Editors"}
	repo.permissions[10] = authz.Permission{ID: 10, Name: "catalog.book.edit"}
	repo.attached[1] = []int64{10}
	repo.members[1] = []int64{7}

	err := svc.ReplacePermissions(ctx, 1, nil)
	require.NoError(t, err)

	attached, err := svc.PermissionsOf(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, attached)
	assert.Equal(t, []int64{7}, grants.calls)
}

func TestReplacePermissionsUnknownGroup(t *testing.T) {
	svc, _, grants := newTestService()
	ctx := context.Background()

	err := svc.ReplacePermissions(ctx, 404, []int64{10})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
	assert.Empty(t, grants.calls)
}

func TestReplacePermissionsSkipsInvalidateOnFailure(t *testing.T) {
	svc, repo, grants := newTestService()
	ctx := context.Background()

	repo.groups[1] = &Group{ID: 1, Name: "Editors"}
	repo.members[1] = []int64{7}
	repo.replaceError = errors.New("constraint violation")

	err := svc.ReplacePermissions(ctx, 1, []int64{999})
	require.Error(t, err)
	assert.Empty(t, grants.calls)
}
