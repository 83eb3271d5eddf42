package stub

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type ctxKey int

const userIDKey ctxKey = iota

// mintAccessToken issues a signed access token for the user.
func (s *Server) mintAccessToken(userID string) (string, error) {
	ttl := s.cfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
}

// verifyAccessToken returns the subject of a valid token.
func (s *Server) verifyAccessToken(raw string) (string, error) {
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return "", err
	}
	return token.Claims.GetSubject()
}

// mintTokenPair issues an access token and rotates the refresh token.
// Callers hold s.mu.
func (s *Server) mintTokenPair(acct *account) (access, refresh string, err error) {
	access, err = s.mintAccessToken(acct.user.ID)
	if err != nil {
		return "", "", err
	}
	acct.refreshToken = "refresh-" + uuid.NewString()
	return access, acct.refreshToken, nil
}

// requireAuth rejects requests without a valid bearer token and stores the
// user id in the request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			Error(w, r, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		userID, err := s.verifyAccessToken(raw)
		if err != nil {
			Error(w, r, http.StatusUnauthorized, "token_expired", "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

// requestUserID returns the authenticated user id stored by requireAuth.
func requestUserID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}
