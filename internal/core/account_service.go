package core

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"gwi.com/streak-chat/internal/auth"
	"gwi.com/streak-chat/internal/store"
)

const (
	minPasswordLength  = 8
	defaultLedgerLimit = 50
	maxLedgerLimit     = 200
)

// AccountService owns identities, tokens and the read side of rewards.
type AccountService struct {
	dbStore   Store
	jwtSecret string
	tokenTTL  time.Duration
}

func NewAccountService(db Store, jwtSecret string, tokenTTL time.Duration) *AccountService {
	return &AccountService{dbStore: db, jwtSecret: jwtSecret, tokenTTL: tokenTTL}
}

// Signup creates a user; the database creates the matching profile.
func (s *AccountService) Signup(ctx context.Context, email, password string) (*store.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email address", ErrValidation)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLength)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return s.dbStore.CreateUser(ctx, email, hash)
}

// Login checks the credentials and issues a bearer token.
func (s *AccountService) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.dbStore.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil || !auth.CheckPasswordHash(password, user.PasswordHash) {
		return "", fmt.Errorf("%w: invalid credentials", ErrUnauthenticated)
	}
	return auth.GenerateJWT(s.jwtSecret, user.ID, s.tokenTTL)
}

// Authenticate resolves a bearer token to an existing user.
func (s *AccountService) Authenticate(ctx context.Context, token string) (*store.User, error) {
	userID, err := auth.ValidateJWT(s.jwtSecret, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	user, err := s.dbStore.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: unknown user", ErrUnauthenticated)
	}
	return user, nil
}

func (s *AccountService) Profile(ctx context.Context, userID string) (*store.Profile, error) {
	p, err := s.dbStore.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("profile for %s: %w", userID, ErrNotFound)
	}
	return p, nil
}

// Ledger lists the user's reward entries newest first. limit <= 0 means the
// default page size; larger values are capped.
func (s *AccountService) Ledger(ctx context.Context, userID string, limit int) ([]store.LedgerEntry, error) {
	switch {
	case limit <= 0:
		limit = defaultLedgerLimit
	case limit > maxLedgerLimit:
		limit = maxLedgerLimit
	}
	return s.dbStore.ListLedgerEntries(ctx, userID, limit)
}
