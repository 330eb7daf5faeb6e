// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is a local account bound to exactly one Discord identity.
type User struct {
	ID        int64
	DiscordID string
	Username  string
	AvatarURL string
	CreatedAt time.Time
}
