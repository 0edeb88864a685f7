package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStoreUnavailable marks an infrastructure failure resolving
// role/permission data. It is never returned for a plain denial.
var ErrStoreUnavailable = errors.New("authz: store unavailable")

// Store resolves a principal's role and effective permission set.
type Store interface {
	// RoleOf returns the profile role. A missing profile row is not an
	// error: implementations return RoleNone with a nil error.
	RoleOf(ctx context.Context, userID int64) (Role, error)
	// PermissionsOf returns the deduplicated union of group-derived and
	// directly granted permission names.
	PermissionsOf(ctx context.Context, userID int64) ([]string, error)
}

// PGStore reads role and permission data from PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// RoleOf looks up user_profiles.role. No row resolves to RoleNone, as does
// a stored value outside the enumeration.
func (s *PGStore) RoleOf(ctx context.Context, userID int64) (Role, error) {
	var stored string
	err := s.pool.QueryRow(ctx, `SELECT role FROM user_profiles WHERE user_id = $1`, userID).Scan(&stored)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RoleNone, nil
		}
		return RoleNone, fmt.Errorf("%w: role of user %d: %v", ErrStoreUnavailable, userID, err)
	}
	role, ok := ParseRole(stored)
	if !ok {
		return RoleNone, nil
	}
	return role, nil
}

// AllPermissions returns the permission catalog ordered by name.
func (s *PGStore) AllPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, description FROM permissions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("%w: list permissions: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, fmt.Errorf("%w: list permissions: %v", ErrStoreUnavailable, err)
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list permissions: %v", ErrStoreUnavailable, err)
	}
	return perms, nil
}

// PermissionsOf unions permissions granted through group membership with
// direct user grants. UNION deduplicates.
func (s *PGStore) PermissionsOf(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.name
		FROM permissions p
		JOIN group_permissions gp ON gp.permission_id = p.id
		JOIN user_groups ug ON ug.group_id = gp.group_id
		WHERE ug.user_id = $1
		UNION
		SELECT p.name
		FROM permissions p
		JOIN user_permissions up ON up.permission_id = p.id
		WHERE up.user_id = $1
		ORDER BY 1`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: permissions of user %d: %v", ErrStoreUnavailable, userID, err)
	}
	defer rows.Close()
	var perms []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: permissions of user %d: %v", ErrStoreUnavailable, userID, err)
		}
		perms = append(perms, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: permissions of user %d: %v", ErrStoreUnavailable, userID, err)
	}
	return perms, nil
}
