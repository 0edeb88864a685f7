package social

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/athenaeum-app/athenaeum/internal/shared"
)

// Repository handles follow graph persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds Repository instance.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetProfile(ctx context.Context, userID int64) (Profile, error) {
	var p Profile
	err := r.pool.QueryRow(ctx, `
		SELECT u.id, u.email, u.username, u.bio, u.created_at,
			(SELECT COUNT(*) FROM follows f WHERE f.following_id = u.id),
			(SELECT COUNT(*) FROM follows f WHERE f.follower_id = u.id)
		FROM users u
		WHERE u.id = $1`, userID).
		Scan(&p.ID, &p.Email, &p.Username, &p.Bio, &p.CreatedAt, &p.Followers, &p.Following)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, shared.ErrNotFound
		}
		return Profile{}, fmt.Errorf("get profile %d: %w", userID, err)
	}
	return p, nil
}

func (r *Repository) Follow(ctx context.Context, followerID, followingID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO follows (follower_id, following_id, created_at)
		VALUES ($1, $2, NOW())`, followerID, followingID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return ErrAlreadyFollowing
			case "23503":
				return shared.ErrNotFound
			}
		}
		return fmt.Errorf("follow %d -> %d: %w", followerID, followingID, err)
	}
	return nil
}

func (r *Repository) Unfollow(ctx context.Context, followerID, followingID int64) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM follows WHERE follower_id = $1 AND following_id = $2`, followerID, followingID)
	if err != nil {
		return fmt.Errorf("unfollow %d -> %d: %w", followerID, followingID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFollowing
	}
	return nil
}

func (r *Repository) Followers(ctx context.Context, userID int64) ([]FollowEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.id, u.username, u.email, f.created_at
		FROM follows f
		JOIN users u ON u.id = f.follower_id
		WHERE f.following_id = $1
		ORDER BY f.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list followers: %w", err)
	}
	return collectEntries(rows)
}

func (r *Repository) Following(ctx context.Context, userID int64) ([]FollowEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.id, u.username, u.email, f.created_at
		FROM follows f
		JOIN users u ON u.id = f.following_id
		WHERE f.follower_id = $1
		ORDER BY f.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list following: %w", err)
	}
	return collectEntries(rows)
}

func collectEntries(rows pgx.Rows) ([]FollowEntry, error) {
	defer rows.Close()
	var entries []FollowEntry
	for rows.Next() {
		var e FollowEntry
		if err := rows.Scan(&e.ID, &e.Username, &e.Email, &e.FollowedAt); err != nil {
			return nil, fmt.Errorf("scan follow entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
