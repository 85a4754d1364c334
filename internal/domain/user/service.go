package user

import (
	"context"
	"net/mail"
	"strings"

	"github.com/go-faster/errors"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLen = 8
	// bcrypt ignores input past 72 bytes.
	maxPasswordLen = 72
)

// Service registers and authenticates users.
type Service struct {
	repo Repository
	cost int

	// dummyHash is compared against when the email is unknown so that both
	// failure paths spend the same time in bcrypt.
	dummyHash []byte
}

// NewService creates a user Service hashing passwords with the given bcrypt
// cost. A cost of zero selects bcrypt.DefaultCost.
func NewService(repo Repository, cost int) (*Service, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, errors.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("storefront-dummy-password"), cost)
	if err != nil {
		return nil, errors.Wrap(err, "generate dummy hash")
	}
	return &Service{repo: repo, cost: cost, dummyHash: dummy}, nil
}

// NormalizeEmail lower-cases and trims an address and checks its syntax.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// Register creates a new account.
func (s *Service) Register(ctx context.Context, email, password string) (*User, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if n := len(password); n < minPasswordLen || n > maxPasswordLen {
		return nil, ErrInvalidPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	u := &User{Email: email, PasswordHash: hash}
	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, errors.Wrap(err, "create user")
	}
	return u, nil
}

// Authenticate checks the credentials and returns the matching user.
// Unknown emails and wrong passwords both yield ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}

	u, err := s.repo.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrNotFound):
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	case err != nil:
		return nil, errors.Wrap(err, "find user")
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// Get returns the user with the given id.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "find user")
	}
	return u, nil
}
