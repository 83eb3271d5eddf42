package stub

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dbbuilder-org/quento/internal/domain"
)

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FullName    string `json:"full_name"`
	CompanyName string `json:"company_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

type authResult struct {
	User   domain.User   `json:"user"`
	Tokens tokenResponse `json:"tokens"`
}

func (s *Server) tokenResponse(access, refresh string) tokenResponse {
	return tokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(s.cfg.AccessTokenTTL.Seconds()),
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req); err != nil || req.Email == "" || req.Password == "" {
		Error(w, r, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	s.mu.Lock()
	if _, exists := s.accounts[req.Email]; exists {
		s.mu.Unlock()
		Error(w, r, http.StatusConflict, "email_taken", "an account with this email already exists")
		return
	}
	acct := &account{
		user: domain.User{
			ID:          uuid.NewString(),
			Email:       req.Email,
			FullName:    req.FullName,
			CompanyName: req.CompanyName,
			CurrentRing: 1,
			CreatedAt:   time.Now().UTC(),
		},
		password: req.Password,
	}
	s.accounts[req.Email] = acct
	access, refresh, err := s.mintTokenPair(acct)
	user := acct.user
	s.mu.Unlock()

	if err != nil {
		Error(w, r, http.StatusInternalServerError, "token_error", "failed to issue tokens")
		return
	}
	s.logger.Info("Account registered", "email", req.Email)
	JSON(w, r, http.StatusCreated, authResult{User: user, Tokens: s.tokenResponse(access, refresh)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		Error(w, r, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	s.mu.Lock()
	acct, ok := s.accounts[req.Email]
	if !ok || acct.password != req.Password {
		s.mu.Unlock()
		Error(w, r, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
		return
	}
	access, refresh, err := s.mintTokenPair(acct)
	user := acct.user
	s.mu.Unlock()

	if err != nil {
		Error(w, r, http.StatusInternalServerError, "token_error", "failed to issue tokens")
		return
	}
	JSON(w, r, http.StatusOK, authResult{User: user, Tokens: s.tokenResponse(access, refresh)})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeBody(r, &req); err != nil || req.RefreshToken == "" {
		Error(w, r, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	s.mu.Lock()
	var acct *account
	for _, a := range s.accounts {
		if a.refreshToken != "" && a.refreshToken == req.RefreshToken {
			acct = a
			break
		}
	}
	if acct == nil {
		s.mu.Unlock()
		Error(w, r, http.StatusUnauthorized, "invalid_refresh_token", "refresh token is not recognized")
		return
	}
	access, refresh, err := s.mintTokenPair(acct)
	s.mu.Unlock()

	if err != nil {
		Error(w, r, http.StatusInternalServerError, "token_error", "failed to issue tokens")
		return
	}
	JSON(w, r, http.StatusOK, s.tokenResponse(access, refresh))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	userID := requestUserID(r)
	s.mu.Lock()
	for _, a := range s.accounts {
		if a.user.ID == userID {
			a.refreshToken = ""
			break
		}
	}
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	userID := requestUserID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.user.ID == userID {
			JSON(w, r, http.StatusOK, a.user)
			return
		}
	}
	Error(w, r, http.StatusNotFound, "not_found", "account not found")
}
