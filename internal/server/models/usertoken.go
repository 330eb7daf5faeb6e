package models

import "time"

// UserToken is a named bearer credential owned by a single user.
//
// Token holds the secret value and is only filled in right after issuance;
// rows read back for listings leave it empty.
type UserToken struct {
	ID        int64
	UserID    int64
	Name      string
	Token     string
	CreatedAt time.Time
	// ExpiresAt is nil for tokens that never expire.
	ExpiresAt *time.Time
}

// ValidAt reports whether the token is still usable at now.
func (t *UserToken) ValidAt(now time.Time) bool {
	return t.ExpiresAt == nil || t.ExpiresAt.After(now)
}
