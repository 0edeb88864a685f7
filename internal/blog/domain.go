package blog

import (
	"errors"
	"time"
)

// Post is one blog entry. AuthorUsername is joined for display.
type Post struct {
	ID             int64
	Title          string
	Content        string
	AuthorID       int64
	AuthorUsername string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ErrNotAuthor rejects editing or deleting a post the caller does not own
// and has no moderation permission for.
var ErrNotAuthor = errors.New("post belongs to another author")
