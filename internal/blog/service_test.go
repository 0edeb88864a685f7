package blog

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athenaeum-app/athenaeum/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	posts  map[int64]Post
	nextID int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{posts: make(map[int64]Post), nextID: 1}
}

func (m *mockRepository) addPost(title string, authorID int64) Post {
	p := Post{
		ID:        m.nextID,
		Title:     title,
		Content:   "content",
		AuthorID:  authorID,
		CreatedAt: time.Now().Add(time.Duration(m.nextID) * time.Second),
	}
	m.posts[p.ID] = p
	m.nextID++
	return p
}

func (m *mockRepository) CountPosts(ctx context.Context) (int, error) {
	return len(m.posts), nil
}

func (m *mockRepository) ListPosts(ctx context.Context, limit, offset int) ([]Post, error) {
	all := make([]Post, 0, len(m.posts))
	for _, p := range m.posts {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *mockRepository) GetPost(ctx context.Context, id int64) (Post, error) {
	p, ok := m.posts[id]
	if !ok {
		return Post{}, shared.ErrNotFound
	}
	return p, nil
}

func (m *mockRepository) CreatePost(ctx context.Context, title, content string, authorID int64) (Post, error) {
	p := Post{ID: m.nextID, Title: title, Content: content, AuthorID: authorID, CreatedAt: time.Now()}
	m.posts[p.ID] = p
	m.nextID++
	return p, nil
}

func (m *mockRepository) UpdatePost(ctx context.Context, id int64, title, content string) (Post, error) {
	p, ok := m.posts[id]
	if !ok {
		return Post{}, shared.ErrNotFound
	}
	p.Title = title
	p.Content = content
	m.posts[id] = p
	return p, nil
}

func (m *mockRepository) DeletePost(ctx context.Context, id int64) error {
	if _, ok := m.posts[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.posts, id)
	return nil
}

func newTestService() (*Service, *mockRepository) {
	repo := newMockRepository()
	return NewService(repo), repo
}

// ============================================================================
// TESTS
// ============================================================================

func TestBrowsePostsNewestFirst(t *testing.T) {
	svc, repo := newTestService()
	for i := 0; i < 7; i++ {
		repo.addPost(fmt.Sprintf("Post %d", i), 1)
	}

	page, err := svc.BrowsePosts(context.Background(), 1)
	require.NoError(t, err)

	assert.Len(t, page.Posts, 5)
	assert.Equal(t, "Post 6", page.Posts[0].Title)
	assert.Equal(t, 2, page.Pagination.TotalPages)
}

func TestBrowsePostsSecondPage(t *testing.T) {
	svc, repo := newTestService()
	for i := 0; i < 7; i++ {
		repo.addPost(fmt.Sprintf("Post %d", i), 1)
	}

	page, err := svc.BrowsePosts(context.Background(), 2)
	require.NoError(t, err)

	assert.Len(t, page.Posts, 2)
	assert.Equal(t, "Post 1", page.Posts[0].Title)
}

func TestCreatePostTrimsFields(t *testing.T) {
	svc, _ := newTestService()

	post, err := svc.CreatePost(context.Background(), "  Hello  ", "  Body  ", 1)
	require.NoError(t, err)

	assert.Equal(t, "Hello", post.Title)
	assert.Equal(t, "Body", post.Content)
}

func TestUpdatePostByAuthor(t *testing.T) {
	svc, repo := newTestService()
	post := repo.addPost("Draft", 1)

	updated, err := svc.UpdatePost(context.Background(), post.ID, "Final", "Body", 1, false)
	require.NoError(t, err)

	assert.Equal(t, "Final", updated.Title)
}

func TestUpdatePostRejectsStranger(t *testing.T) {
	svc, repo := newTestService()
	post := repo.addPost("Draft", 1)

	_, err := svc.UpdatePost(context.Background(), post.ID, "Hijacked", "Body", 2, false)
	assert.ErrorIs(t, err, ErrNotAuthor)
}

func TestUpdatePostModeratorOverride(t *testing.T) {
	svc, repo := newTestService()
	post := repo.addPost("Draft", 1)

	updated, err := svc.UpdatePost(context.Background(), post.ID, "Moderated", "Body", 2, true)
	require.NoError(t, err)
	assert.Equal(t, "Moderated", updated.Title)
}

func TestDeletePostRejectsStranger(t *testing.T) {
	svc, repo := newTestService()
	post := repo.addPost("Draft", 1)

	err := svc.DeletePost(context.Background(), post.ID, 2, false)
	assert.ErrorIs(t, err, ErrNotAuthor)
	assert.Len(t, repo.posts, 1)
}

func TestDeletePostByAuthor(t *testing.T) {
	svc, repo := newTestService()
	post := repo.addPost("Draft", 1)

	err := svc.DeletePost(context.Background(), post.ID, 1, false)
	require.NoError(t, err)
	assert.Empty(t, repo.posts)
}

func TestDeletePostUnknown(t *testing.T) {
	svc, _ := newTestService()

	err := svc.DeletePost(context.Background(), 404, 1, false)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
