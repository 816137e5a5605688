package client

import "time"

// SessionUser is the user projection inside an AuthSession.
type SessionUser struct {
	ID      string
	Email   string
	Name    string
	Picture string
}

// AuthSession is an immutable snapshot derived from the current token set.
// It carries the role set so tier derivation does not re-parse the token.
type AuthSession struct {
	User        SessionUser
	AccessToken string
	IDToken     string
	ExpiresAt   time.Time
	Roles       []string
}

func sessionFromUser(user *User) *AuthSession {
	if user == nil || user.AccessToken == "" {
		return nil
	}
	return &AuthSession{
		User: SessionUser{
			ID:      user.Profile.Sub,
			Email:   user.Profile.Email,
			Name:    user.Profile.Name,
			Picture: user.Profile.Picture,
		},
		AccessToken: user.AccessToken,
		IDToken:     user.IDToken,
		ExpiresAt:   user.ExpiresAt,
		Roles:       append([]string(nil), user.Roles...),
	}
}
