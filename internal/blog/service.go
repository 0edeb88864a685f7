package blog

import (
	"context"
	"strings"

	"github.com/athenaeum-app/athenaeum/internal/shared"
)

const postsPerPage = 5

// RepositoryPort defines data access methods for the blog.
type RepositoryPort interface {
	CountPosts(ctx context.Context) (int, error)
	ListPosts(ctx context.Context, limit, offset int) ([]Post, error)
	GetPost(ctx context.Context, id int64) (Post, error)
	CreatePost(ctx context.Context, title, content string, authorID int64) (Post, error)
	UpdatePost(ctx context.Context, id int64, title, content string) (Post, error)
	DeletePost(ctx context.Context, id int64) error
}

// PostPage is one page of the post listing.
type PostPage struct {
	Posts      []Post
	Pagination shared.Pagination
}

// Service handles blog business logic. Ownership is enforced here: editing
// or deleting someone else's post needs the moderation flag the handler
// resolves through the gate.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// BrowsePosts returns one page of posts, newest first.
func (s *Service) BrowsePosts(ctx context.Context, page int) (PostPage, error) {
	total, err := s.repo.CountPosts(ctx)
	if err != nil {
		return PostPage{}, err
	}
	pg := shared.NewPagination(page, postsPerPage, total)
	posts, err := s.repo.ListPosts(ctx, pg.PerPage, pg.Offset())
	if err != nil {
		return PostPage{}, err
	}
	return PostPage{Posts: posts, Pagination: pg}, nil
}

func (s *Service) GetPost(ctx context.Context, id int64) (Post, error) {
	return s.repo.GetPost(ctx, id)
}

func (s *Service) CreatePost(ctx context.Context, title, content string, authorID int64) (Post, error) {
	return s.repo.CreatePost(ctx, strings.TrimSpace(title), strings.TrimSpace(content), authorID)
}

// UpdatePost edits a post. Callers without moderate may only edit their own.
func (s *Service) UpdatePost(ctx context.Context, id int64, title, content string, editorID int64, moderate bool) (Post, error) {
	post, err := s.repo.GetPost(ctx, id)
	if err != nil {
		return Post{}, err
	}
	if post.AuthorID != editorID && !moderate {
		return Post{}, ErrNotAuthor
	}
	return s.repo.UpdatePost(ctx, id, strings.TrimSpace(title), strings.TrimSpace(content))
}

// DeletePost removes a post under the same ownership rule as UpdatePost.
func (s *Service) DeletePost(ctx context.Context, id, editorID int64, moderate bool) error {
	post, err := s.repo.GetPost(ctx, id)
	if err != nil {
		return err
	}
	if post.AuthorID != editorID && !moderate {
		return ErrNotAuthor
	}
	return s.repo.DeletePost(ctx, id)
}
