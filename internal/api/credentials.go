package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dbbuilder-org/quento/internal/domain"
)

// CredentialPersister durably mirrors the credential pair. Implemented by
// the store package; nil disables persistence.
type CredentialPersister interface {
	SaveCredentials(ctx context.Context, creds domain.Credentials) error
	ClearCredentials(ctx context.Context) error
}

// CredentialStore owns the process-wide token pair. It is injected into the
// client and anything else that needs the current token; business logic
// never reads ambient globals. All mutation goes through Set and Clear so
// the pair changes atomically.
type CredentialStore struct {
	mu    sync.RWMutex
	creds domain.Credentials
	repo  CredentialPersister
}

// NewCredentialStore returns a store seeded with creds, persisting through
// repo when it is non-nil.
func NewCredentialStore(creds domain.Credentials, repo CredentialPersister) *CredentialStore {
	return &CredentialStore{creds: creds, repo: repo}
}

// Get returns the current token pair.
func (s *CredentialStore) Get() domain.Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds
}

// Authenticated reports whether a token pair is held.
func (s *CredentialStore) Authenticated() bool {
	return !s.Get().Empty()
}

// Set replaces the token pair and mirrors it to durable storage.
// Persistence failures are logged, not surfaced: the in-memory pair is the
// source of truth for the running process.
func (s *CredentialStore) Set(ctx context.Context, creds domain.Credentials) {
	s.mu.Lock()
	s.creds = creds
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.SaveCredentials(ctx, creds); err != nil {
			slog.Warn("Failed to persist credentials", "error", err)
		}
	}
}

// Clear drops the token pair atomically and removes the persisted copy.
func (s *CredentialStore) Clear(ctx context.Context) {
	s.mu.Lock()
	s.creds = domain.Credentials{}
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.ClearCredentials(ctx); err != nil {
			slog.Warn("Failed to clear persisted credentials", "error", err)
		}
	}
}

// ExpiresWithin reports whether the access token's exp claim falls within d
// from now. A missing or unreadable claim reports false, leaving refresh to
// the 401 path.
func (s *CredentialStore) ExpiresWithin(d time.Duration) bool {
	creds := s.Get()
	if creds.AccessToken == "" {
		return false
	}
	exp, ok := tokenExpiry(creds.AccessToken)
	if !ok {
		return false
	}
	return time.Until(exp) < d
}

// tokenExpiry reads the exp claim without verifying the signature. The
// server remains the authority on token validity; this only steers
// proactive refresh.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
