package users

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/athenaeum-app/athenaeum/internal/authz"
	"github.com/athenaeum-app/athenaeum/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `u.id, u.email, u.username, u.bio, COALESCE(p.role, 'none'), u.is_active, u.created_at, u.updated_at`

// ListUsers returns all users with their profile role.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users u LEFT JOIN user_profiles p ON p.user_id = u.id ORDER BY u.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// GetUser returns one user by id.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users u LEFT JOIN user_profiles p ON p.user_id = u.id WHERE u.id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

// ListGroups returns every group ordered by name.
func (r *Repository) ListGroups(ctx context.Context) ([]Group, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM groups ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groups, nil
}

// GroupsOf returns the groups a user belongs to.
func (r *Repository) GroupsOf(ctx context.Context, userID int64) ([]Group, error) {
	rows, err := r.pool.Query(ctx, `SELECT g.id, g.name FROM groups g JOIN user_groups ug ON ug.group_id = g.id WHERE ug.user_id = $1 ORDER BY g.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groups, nil
}

// SetRole upserts the profile role. Every account keeps at most one
// profile row.
func (r *Repository) SetRole(ctx context.Context, userID int64, role authz.Role) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_profiles (user_id, role, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET role = EXCLUDED.role, updated_at = NOW()`, userID, string(role))
	return err
}

// AddToGroup attaches a user to a group. Repeating an existing membership
// is a no-op.
func (r *Repository) AddToGroup(ctx context.Context, userID, groupID int64) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO user_groups (user_id, group_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, groupID)
	return err
}

// RemoveFromGroup detaches a user from a group.
func (r *Repository) RemoveFromGroup(ctx context.Context, userID, groupID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_groups WHERE user_id = $1 AND group_id = $2`, userID, groupID)
	return err
}

// UpdateProfile stores the self-service editable fields.
func (r *Repository) UpdateProfile(ctx context.Context, userID int64, username, bio string) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET username = $2, bio = $3, updated_at = NOW() WHERE id = $1`, userID, username, bio)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && strings.Contains(pgErr.ConstraintName, "username") {
			return ErrUsernameTaken
		}
		return err
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var user User
	var role string
	if err := row.Scan(&user.ID, &user.Email, &user.Username, &user.Bio, &role, &user.IsActive, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return User{}, err
	}
	if parsed, ok := authz.ParseRole(role); ok {
		user.Role = parsed
	} else {
		user.Role = authz.RoleNone
	}
	return user, nil
}
