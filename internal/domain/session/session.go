package session

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a token is unknown or its session expired.
var ErrNotFound = errors.New("session not found")

// Session binds a hashed token to a user until ExpiresAt. The raw token is
// only ever held by the client.
type Session struct {
	TokenHash string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Repository persists sessions keyed by token hash.
type Repository interface {
	Create(ctx context.Context, s *Session) error
	// FindByHash returns ErrNotFound when no session has the given hash.
	FindByHash(ctx context.Context, hash string) (*Session, error)
	Delete(ctx context.Context, hash string) error
	// DeleteExpired removes sessions that expired at or before now and
	// reports how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
