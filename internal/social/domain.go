package social

import (
	"errors"
	"time"
)

// Profile is an account as the social API presents it, with follow counts.
type Profile struct {
	ID        int64
	Email     string
	Username  string
	Bio       string
	Followers int
	Following int
	CreatedAt time.Time
}

// FollowEntry is one row of a followers/following listing.
type FollowEntry struct {
	ID         int64
	Username   string
	Email      string
	FollowedAt time.Time
}

var (
	// ErrSelfFollow rejects following your own account.
	ErrSelfFollow = errors.New("cannot follow yourself")
	// ErrAlreadyFollowing rejects a duplicate follow edge.
	ErrAlreadyFollowing = errors.New("already following this user")
	// ErrNotFollowing rejects unfollowing someone never followed.
	ErrNotFollowing = errors.New("not following this user")
)
