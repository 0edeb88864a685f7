package groups

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/athenaeum-app/athenaeum/internal/authz"
	"github.com/athenaeum-app/athenaeum/internal/platform/db"
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

const groupColumns = `g.id, g.name, g.description, g.created_at, g.updated_at,
	(SELECT COUNT(*) FROM group_permissions gp WHERE gp.group_id = g.id),
	(SELECT COUNT(*) FROM user_groups ug WHERE ug.group_id = g.id)`

// ListGroups returns all groups with permission and member counts.
func (r *Repository) ListGroups(ctx context.Context) ([]Group, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+groupColumns+` FROM groups g ORDER BY g.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var groups []Group
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groups, nil
}

// GetGroup returns one group by id.
func (r *Repository) GetGroup(ctx context.Context, id int64) (Group, error) {
	group, err := scanGroup(r.pool.QueryRow(ctx, `SELECT `+groupColumns+` FROM groups g WHERE g.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Group{}, shared.ErrNotFound
		}
		return Group{}, err
	}
	return group, nil
}

// CreateGroup inserts a group.
func (r *Repository) CreateGroup(ctx context.Context, name, description string) (Group, error) {
	var group Group
	err := r.pool.QueryRow(ctx, `
		INSERT INTO groups (name, description, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING id, name, description, created_at, updated_at`, name, description).
		Scan(&group.ID, &group.Name, &group.Description, &group.CreatedAt, &group.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Group{}, ErrNameTaken
		}
		return Group{}, err
	}
	return group, nil
}

// ListPermissions returns the full permission catalog for the checkbox form.
func (r *Repository) ListPermissions(ctx context.Context) ([]authz.Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description FROM permissions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []authz.Permission
	for rows.Next() {
		var p authz.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

// PermissionsOf returns the permissions attached to a group.
func (r *Repository) PermissionsOf(ctx context.Context, groupID int64) ([]authz.Permission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.name, p.description
		FROM permissions p
		JOIN group_permissions gp ON gp.permission_id = p.id
		WHERE gp.group_id = $1
		ORDER BY p.name`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []authz.Permission
	for rows.Next() {
		var p authz.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

// Members returns the users belonging to a group.
func (r *Repository) Members(ctx context.Context, groupID int64) ([]Member, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.id, u.email, u.username
		FROM users u
		JOIN user_groups ug ON ug.user_id = u.id
		WHERE ug.group_id = $1
		ORDER BY u.email`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.Email, &m.Username); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return members, nil
}

// MemberIDs returns the ids of users belonging to a group.
func (r *Repository) MemberIDs(ctx context.Context, groupID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM user_groups WHERE group_id = $1`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// ReplacePermissions swaps the group's permission set for the given ids.
// The old set is dropped and the new one attached in one transaction.
func (r *Repository) ReplacePermissions(ctx context.Context, groupID int64, permissionIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM group_permissions WHERE group_id = $1`, groupID); err != nil {
			return err
		}
		for _, permissionID := range permissionIDs {
			if _, err := tx.Exec(ctx, `INSERT INTO group_permissions (group_id, permission_id) VALUES ($1, $2)`, groupID, permissionID); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, `UPDATE groups SET updated_at = NOW() WHERE id = $1`, groupID)
		return err
	})
}

func scanGroup(row pgx.Row) (Group, error) {
	var group Group
	if err := row.Scan(&group.ID, &group.Name, &group.Description, &group.CreatedAt, &group.UpdatedAt, &group.PermissionCount, &group.MemberCount); err != nil {
		return Group{}, err
	}
	return group, nil
}
