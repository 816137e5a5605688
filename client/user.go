package client

import "time"

// Profile is the identity information extracted from a verified ID token.
type Profile struct {
	Sub     string `json:"sub"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// User is the authenticated user with their current token set.
type User struct {
	Profile      Profile   `json:"profile"`
	AccessToken  string    `json:"accessToken"`
	IDToken      string    `json:"idToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
	Roles        []string  `json:"roles,omitempty"`
}

// Expired reports whether the access token has passed its expiry.
func (u *User) Expired(now time.Time) bool {
	if u.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(u.ExpiresAt)
}

// ExpiresIn reports time until expiry, zero or negative when expired.
func (u *User) ExpiresIn(now time.Time) time.Duration {
	return u.ExpiresAt.Sub(now)
}
