package session

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"io"
	"time"

	"github.com/go-faster/errors"
)

const tokenBytes = 32

// DefaultTTL is the session lifetime when none is configured.
const DefaultTTL = 24 * time.Hour

// Manager issues and resolves opaque session tokens. Tokens are stored as
// HMAC-SHA256(pepper, token) so a database leak does not yield usable
// cookies.
type Manager struct {
	repo   Repository
	pepper []byte
	ttl    time.Duration

	now  func() time.Time
	rand io.Reader
}

// NewManager creates a Manager. A zero ttl selects DefaultTTL.
func NewManager(repo Repository, pepper []byte, ttl time.Duration) (*Manager, error) {
	if len(pepper) == 0 {
		return nil, errors.New("session pepper is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		repo:   repo,
		pepper: pepper,
		ttl:    ttl,
		now:    time.Now,
		rand:   rand.Reader,
	}, nil
}

// Create starts a session for userID and returns the raw token to hand to
// the client.
func (m *Manager) Create(ctx context.Context, userID int64) (string, *Session, error) {
	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(m.rand, buf); err != nil {
		return "", nil, errors.Wrap(err, "generate token")
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	now := m.now().UTC()
	s := &Session{
		TokenHash: hex.EncodeToString(m.mac(token)),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.repo.Create(ctx, s); err != nil {
		return "", nil, errors.Wrap(err, "create session")
	}
	return token, s, nil
}

// Resolve returns the live session for token, or ErrNotFound.
func (m *Manager) Resolve(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	hash := m.mac(token)

	s, err := m.repo.FindByHash(ctx, hex.EncodeToString(hash))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "find session")
	}

	stored, err := hex.DecodeString(s.TokenHash)
	if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
		return nil, ErrNotFound
	}
	if !m.now().Before(s.ExpiresAt) {
		return nil, ErrNotFound
	}
	return s, nil
}

// Destroy ends the session for token. Unknown tokens are not an error.
func (m *Manager) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.repo.Delete(ctx, hex.EncodeToString(m.mac(token))); err != nil {
		return errors.Wrap(err, "delete session")
	}
	return nil
}

// PurgeExpired deletes every expired session.
func (m *Manager) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := m.repo.DeleteExpired(ctx, m.now())
	if err != nil {
		return 0, errors.Wrap(err, "delete expired sessions")
	}
	return n, nil
}

func (m *Manager) mac(token string) []byte {
	h := hmac.New(sha256.New, m.pepper)
	h.Write([]byte(token))
	return h.Sum(nil)
}
