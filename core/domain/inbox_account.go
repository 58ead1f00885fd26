package domain

import "time"

// Account is a connected mailbox owner.
type Account struct {
	ID             int64     `json:"id"`
	Subject        string    `json:"-"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	NeedsReconnect bool      `json:"needs_reconnect"`
	CreatedAt      time.Time `json:"created_at"`
}

// Credential is the OAuth grant held for an account. One per account.
type Credential struct {
	AccountID    int64     `json:"account_id"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenType    string    `json:"token_type"`
	Scope        string    `json:"scope"`
	ExpiresAt    time.Time `json:"expires_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ValidFor reports whether the access token outlives now+margin.
// A zero expiry is never valid.
func (c *Credential) ValidFor(now time.Time, margin time.Duration) bool {
	if c.AccessToken == "" || c.ExpiresAt.IsZero() {
		return false
	}
	return c.ExpiresAt.Sub(now) > margin
}

// ApplyGrant copies a refreshed grant onto the credential.
// An empty refresh token in the grant keeps the stored one.
func (c *Credential) ApplyGrant(accessToken, refreshToken, tokenType, scope string, expiresAt time.Time) {
	c.AccessToken = accessToken
	c.ExpiresAt = expiresAt
	if refreshToken != "" {
		c.RefreshToken = refreshToken
	}
	if tokenType != "" {
		c.TokenType = tokenType
	}
	if scope != "" {
		c.Scope = scope
	}
}
