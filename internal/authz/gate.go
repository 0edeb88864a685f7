package authz

import "context"

// Gate evaluates requirements against a principal. All checks run strictly
// before the guarded operation; callers must not mutate anything on deny.
type Gate struct {
	store Store
}

// NewGate constructs a Gate backed by the given store.
func NewGate(store Store) *Gate {
	return &Gate{store: store}
}

// HasRole reports whether the principal's profile role equals role. It is
// false with a nil error for unauthenticated principals, missing profiles,
// and role names outside the enumeration; the store is only consulted for
// authenticated principals.
func (g *Gate) HasRole(ctx context.Context, p Principal, role Role) (bool, error) {
	if !p.Authenticated {
		return false, nil
	}
	if !role.Valid() {
		return false, nil
	}
	actual, err := g.store.RoleOf(ctx, p.UserID)
	if err != nil {
		return false, err
	}
	return actual == role, nil
}

// HasPermission reports membership of key in the principal's effective
// permission set. False with a nil error when unauthenticated.
func (g *Gate) HasPermission(ctx context.Context, p Principal, key string) (bool, error) {
	if !p.Authenticated {
		return false, nil
	}
	perms, err := g.store.PermissionsOf(ctx, p.UserID)
	if err != nil {
		return false, err
	}
	for _, granted := range perms {
		if granted == key {
			return true, nil
		}
	}
	return false, nil
}

// Authorize evaluates the requirement for the principal. Denial is a normal
// outcome returned as a Decision; a non-nil error means the backing store
// could not be consulted and wraps ErrStoreUnavailable.
func (g *Gate) Authorize(ctx context.Context, p Principal, req Requirement) (Decision, error) {
	if !p.Authenticated {
		return Deny(DenyUnauthenticated), nil
	}
	switch req.kind {
	case requireRole:
		ok, err := g.HasRole(ctx, p, req.role)
		if err != nil {
			return Decision{}, err
		}
		if !ok {
			return Deny(DenyMissingRole), nil
		}
		return Allow(), nil
	case requireAnyPermission, requireAllPermissions:
		if len(req.keys) == 0 {
			return Deny(DenyMissingPermission), nil
		}
		perms, err := g.store.PermissionsOf(ctx, p.UserID)
		if err != nil {
			return Decision{}, err
		}
		granted := make(map[string]struct{}, len(perms))
		for _, name := range perms {
			granted[name] = struct{}{}
		}
		if req.kind == requireAnyPermission {
			for _, key := range req.keys {
				if _, ok := granted[key]; ok {
					return Allow(), nil
				}
			}
			return Deny(DenyMissingPermission), nil
		}
		for _, key := range req.keys {
			if _, ok := granted[key]; !ok {
				return Deny(DenyMissingPermission), nil
			}
		}
		return Allow(), nil
	}
	// A zero requirement matches nothing.
	return Deny(DenyMissingPermission), nil
}
