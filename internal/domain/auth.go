package domain

import "time"

// Session is what a successful register or login hands back to the client.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Username  string
	Email     string
}
