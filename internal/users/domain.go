package users

import (
	"errors"
	"time"

	"github.com/athenaeum-app/athenaeum/internal/authz"
)

// User is an account row joined with its profile role for administration.
// Role carries the resolved profile role; accounts without a profile row
// resolve to authz.RoleNone.
type User struct {
	ID        int64
	Email     string
	Username  string
	Bio       string
	Role      authz.Role
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Group is a named permission bundle a user may belong to.
type Group struct {
	ID   int64
	Name string
}

// ErrUsernameTaken reports a username unique violation on profile updates.
var ErrUsernameTaken = errors.New("username already taken")
