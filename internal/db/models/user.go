// Package models - user.go defines the User model. Only the read paths needed
// for authentication and actor identity joins live in this service; full user
// lifecycle management belongs to the identity service.
package models

import "time"

// User represents a user account in the system
type User struct {
	ID        string
	Email     string
	Name      string
	AvatarURL *string
	CreatedAt time.Time
	UpdatedAt time.Time
}
