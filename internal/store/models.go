package store

import "time"

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// NamedEntity is the derived lookup record recomputed whenever a profile's
// name changes: a unique slug pointing back at the document.
type NamedEntity struct {
	ID        string
	Slug      string
	DocType   string
	DocID     string
	Name      string
	UpdatedAt time.Time
}
