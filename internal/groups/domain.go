package groups

import (
	"errors"
	"time"
)

// Group is a named permission bundle. Users collect permissions through
// membership; the group itself never grants a profile role.
type Group struct {
	ID              int64
	Name            string
	Description     string
	PermissionCount int
	MemberCount     int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Member is a user shown on the group detail page.
type Member struct {
	ID       int64
	Email    string
	Username string
}

// ErrNameTaken reports a group name unique violation.
var ErrNameTaken = errors.New("group name already taken")
