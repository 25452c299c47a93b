package model

import "time"

// Credential is the OAuth token record of a sending identity (user_tokens row).
type Credential struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	AccessToken  string    `db:"access_token" json:"-"`
	RefreshToken string    `db:"refresh_token" json:"-"`
	ExpiresAt    time.Time `db:"expires_at" json:"expires_at"`
}

// ExpiresWithin reports whether fewer than buffer of validity remain at now.
func (c *Credential) ExpiresWithin(now time.Time, buffer time.Duration) bool {
	return c.ExpiresAt.Sub(now) < buffer
}
