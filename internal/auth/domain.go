package auth

import (
	"errors"
	"time"
)

// User represents an authenticated user account.
type User struct {
	ID           int64
	Email        string
	Username     string
	PasswordHash string
	Bio          string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

var (
	// ErrEmailTaken indicates the email is already registered.
	ErrEmailTaken = errors.New("auth: email already registered")
	// ErrUsernameTaken indicates the username is already registered.
	ErrUsernameTaken = errors.New("auth: username already registered")
	// ErrTokenInvalid indicates a bearer token that failed verification.
	ErrTokenInvalid = errors.New("auth: token invalid")
)
