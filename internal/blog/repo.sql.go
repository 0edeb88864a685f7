package blog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/athenaeum-app/athenaeum/internal/shared"
)

const postColumns = "p.id, p.title, p.content, p.author_id, u.username, p.created_at, p.updated_at"

// Repository handles blog persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds Repository instance.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) CountPosts(ctx context.Context) (int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM blog_posts`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return total, nil
}

func (r *Repository) ListPosts(ctx context.Context, limit, offset int) ([]Post, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM blog_posts p
		JOIN users u ON u.id = p.author_id
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT $1 OFFSET $2`, postColumns)
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.Title, &p.Content, &p.AuthorID, &p.AuthorUsername, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (r *Repository) GetPost(ctx context.Context, id int64) (Post, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM blog_posts p
		JOIN users u ON u.id = p.author_id
		WHERE p.id = $1`, postColumns)
	var p Post
	err := r.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.Title, &p.Content, &p.AuthorID, &p.AuthorUsername, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Post{}, shared.ErrNotFound
		}
		return Post{}, fmt.Errorf("get post %d: %w", id, err)
	}
	return p, nil
}

func (r *Repository) CreatePost(ctx context.Context, title, content string, authorID int64) (Post, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO blog_posts (title, content, author_id, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING id`, title, content, authorID).Scan(&id)
	if err != nil {
		return Post{}, fmt.Errorf("create post: %w", err)
	}
	return r.GetPost(ctx, id)
}

func (r *Repository) UpdatePost(ctx context.Context, id int64, title, content string) (Post, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE blog_posts SET title = $2, content = $3, updated_at = NOW()
		WHERE id = $1`, id, title, content)
	if err != nil {
		return Post{}, fmt.Errorf("update post %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return Post{}, shared.ErrNotFound
	}
	return r.GetPost(ctx, id)
}

func (r *Repository) DeletePost(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM blog_posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete post %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
