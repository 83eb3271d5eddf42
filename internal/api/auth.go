package api

import (
	"context"
	"net/http"

	"github.com/dbbuilder-org/quento/internal/domain"
)

// TokenResponse is the token pair issued by login, register and refresh.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// AuthResult pairs the account with its issued tokens.
type AuthResult struct {
	User   domain.User   `json:"user"`
	Tokens TokenResponse `json:"tokens"`
}

// RegisterRequest creates a new account.
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FullName    string `json:"full_name,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
}

// Login authenticates with email and password and installs the returned
// token pair in the credential store.
func (c *Client) Login(ctx context.Context, email, password string) (*domain.User, error) {
	var out AuthResult
	err := c.doUnauth(ctx, http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		if re, ok := IsRequestError(err); ok && re.Unauthorized() {
			return nil, &AuthError{Op: "login", Err: err}
		}
		return nil, err
	}
	c.creds.Set(ctx, domain.Credentials{
		AccessToken:  out.Tokens.AccessToken,
		RefreshToken: out.Tokens.RefreshToken,
	})
	return &out.User, nil
}

// Register creates an account and installs the returned token pair.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*domain.User, error) {
	var out AuthResult
	if err := c.doUnauth(ctx, http.MethodPost, "/auth/register", req, &out); err != nil {
		return nil, err
	}
	c.creds.Set(ctx, domain.Credentials{
		AccessToken:  out.Tokens.AccessToken,
		RefreshToken: out.Tokens.RefreshToken,
	})
	return &out.User, nil
}

// Logout invalidates the session server-side. Local credentials are cleared
// regardless of whether the server call succeeds.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
	c.creds.Clear(ctx)
	return err
}

// Me returns the authenticated account.
func (c *Client) Me(ctx context.Context) (*domain.User, error) {
	var out domain.User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
