package domain

import "time"

// User is the registered identity. Username and email are unique and never
// change after registration.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
