package domain

import "time"

// GoogleToken is the stored OAuth grant for one user. The repository
// encrypts the refresh/access token material at rest.
type GoogleToken struct {
	UserID       string    `json:"user_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry"`
	Scope        string    `json:"scope,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitzero"`
}

func (t GoogleToken) ExpiredAt(now time.Time) bool {
	if t.Expiry.IsZero() {
		return false
	}
	// Refresh slightly early so an in-flight tool chain does not race
	// the expiry.
	return now.After(t.Expiry.Add(-30 * time.Second))
}

type UserInfo struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
}
