package api

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbbuilder-org/quento/internal/domain"
)

func mintToken(t *testing.T, ttl time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

type fakePersister struct {
	saved   []domain.Credentials
	cleared int
}

func (f *fakePersister) SaveCredentials(_ context.Context, creds domain.Credentials) error {
	f.saved = append(f.saved, creds)
	return nil
}

func (f *fakePersister) ClearCredentials(context.Context) error {
	f.cleared++
	return nil
}

func TestCredentialStoreSetAndClearPersist(t *testing.T) {
	repo := &fakePersister{}
	store := NewCredentialStore(domain.Credentials{}, repo)

	assert.False(t, store.Authenticated())

	pair := domain.Credentials{AccessToken: "a", RefreshToken: "r"}
	store.Set(context.Background(), pair)

	assert.True(t, store.Authenticated())
	assert.Equal(t, pair, store.Get())
	require.Len(t, repo.saved, 1)
	assert.Equal(t, pair, repo.saved[0])

	store.Clear(context.Background())
	assert.False(t, store.Authenticated())
	assert.Equal(t, 1, repo.cleared)
}

func TestExpiresWithinReadsExpClaim(t *testing.T) {
	store := NewCredentialStore(domain.Credentials{
		AccessToken: mintToken(t, 10*time.Second),
	}, nil)
	assert.True(t, store.ExpiresWithin(30*time.Second))

	store.Set(context.Background(), domain.Credentials{
		AccessToken: mintToken(t, 10*time.Minute),
	})
	assert.False(t, store.ExpiresWithin(30*time.Second))
}

func TestExpiresWithinOpaqueToken(t *testing.T) {
	// Tokens without a readable exp claim defer to the 401 path.
	store := NewCredentialStore(domain.Credentials{AccessToken: "not-a-jwt"}, nil)
	assert.False(t, store.ExpiresWithin(time.Hour))

	empty := NewCredentialStore(domain.Credentials{}, nil)
	assert.False(t, empty.ExpiresWithin(time.Hour))
}
