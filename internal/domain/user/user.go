package user

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// User is a registered customer account. PasswordHash is a bcrypt hash and
// never leaves the server.
type User struct {
	ID           int64
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

var (
	// ErrNotFound is returned by repositories when no user matches.
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when registering an email that already exists.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials is returned for any failed login, whether the
	// email is unknown or the password is wrong.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInvalidEmail is returned when the email is malformed.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrInvalidPassword is returned when the password length is out of range.
	ErrInvalidPassword = errors.New("password must be between 8 and 72 bytes")
)

// Repository defines persistence operations for user accounts.
type Repository interface {
	// Create inserts u and fills ID and CreatedAt. Returns ErrEmailTaken on a
	// duplicate email.
	Create(ctx context.Context, u *User) error
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
}
