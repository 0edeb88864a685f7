// Package authz decides whether a principal may perform a guarded
// operation. Checks are pure reads: denial is a normal outcome carried in a
// Decision, never an error. Only infrastructure failures resolving
// role/permission data surface as errors.
package authz

import "strings"

// Role is the closed set of profile roles. Roles are flat: no role implies
// another, and every check is an exact comparison.
type Role string

const (
	// RoleNone is the resolved role of a principal without a profile row.
	// It is not a stored value and never satisfies a role check.
	RoleNone      Role = "none"
	RoleMember    Role = "member"
	RoleLibrarian Role = "librarian"
	RoleAdmin     Role = "admin"
)

// ParseRole maps a stored role name onto the enumeration. Only the three
// assignable names are accepted, case-sensitively.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleMember, RoleLibrarian, RoleAdmin:
		return Role(s), true
	}
	return RoleNone, false
}

// Valid reports whether the role is one of the three assignable roles.
func (r Role) Valid() bool {
	switch r {
	case RoleMember, RoleLibrarian, RoleAdmin:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// AssignableRoles lists the roles an administrator may set on a profile.
func AssignableRoles() []Role {
	return []Role{RoleMember, RoleLibrarian, RoleAdmin}
}

// Permission is one named capability in the catalog.
type Permission struct {
	ID          int64
	Name        string
	Description string
}

// Principal identifies the actor a check runs for. It is passed explicitly
// into every gate call; the gate never reads ambient request state.
type Principal struct {
	UserID        int64
	Email         string
	Authenticated bool
}

// Anonymous returns the unauthenticated principal.
func Anonymous() Principal {
	return Principal{}
}

// DenyReason explains a denial.
type DenyReason string

const (
	DenyUnauthenticated   DenyReason = "unauthenticated"
	DenyMissingRole       DenyReason = "missing_role"
	DenyMissingPermission DenyReason = "missing_permission"
)

// Decision is the outcome of an authorization check. The zero value denies.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

// Allow returns a permitting decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny returns a refusing decision with the given reason.
func Deny(reason DenyReason) Decision {
	return Decision{Reason: reason}
}

type requirementKind int

const (
	requireNothing requirementKind = iota
	requireRole
	requireAnyPermission
	requireAllPermissions
)

// Requirement describes the capability a guarded operation demands: a role
// or one or more permission keys. The zero value matches nothing and always
// denies.
type Requirement struct {
	kind requirementKind
	role Role
	keys []string
}

// RequireRole demands an exact profile role.
func RequireRole(role Role) Requirement {
	return Requirement{kind: requireRole, role: role}
}

// RequirePermission demands a single permission key.
func RequirePermission(key string) Requirement {
	return RequireAnyPermission(key)
}

// RequireAnyPermission demands at least one of the keys. Keys are evaluated
// independently; no ordering is guaranteed.
func RequireAnyPermission(keys ...string) Requirement {
	return Requirement{kind: requireAnyPermission, keys: cleanKeys(keys)}
}

// RequireAllPermissions demands every key.
func RequireAllPermissions(keys ...string) Requirement {
	return Requirement{kind: requireAllPermissions, keys: cleanKeys(keys)}
}

// String renders the requirement for logs and audit metadata.
func (r Requirement) String() string {
	switch r.kind {
	case requireRole:
		return "role=" + string(r.role)
	case requireAnyPermission:
		return "any(" + strings.Join(r.keys, ",") + ")"
	case requireAllPermissions:
		return "all(" + strings.Join(r.keys, ",") + ")"
	}
	return "nothing"
}

func cleanKeys(keys []string) []string {
	cleaned := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		cleaned = append(cleaned, k)
	}
	return cleaned
}
