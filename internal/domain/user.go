package domain

import (
	"time"
)

// User is the authenticated account the client acts on behalf of.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	FullName    string    `json:"full_name,omitempty"`
	CompanyName string    `json:"company_name,omitempty"`
	CurrentRing int       `json:"current_ring"`
	CreatedAt   time.Time `json:"created_at"`
}

// Credentials is the token pair issued at login. It is owned exclusively by
// the gateway's credential store and cleared atomically on logout or
// irrecoverable refresh failure.
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Empty reports whether no credentials are held.
func (c Credentials) Empty() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}
