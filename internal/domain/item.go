package domain

import "time"

// ItemStatus enumerates todo progress states.
type ItemStatus string

const (
	ItemStatusPending   ItemStatus = "PENDING"
	ItemStatusCompleted ItemStatus = "COMPLETED"
)

// Valid reports whether s is a known status.
func (s ItemStatus) Valid() bool {
	return s == ItemStatusPending || s == ItemStatusCompleted
}

// Item is a todo owned by exactly one user. Owner holds the username and is
// set once at creation.
type Item struct {
	ID          string
	Owner       string
	Title       string
	Description string
	Status      ItemStatus
	DueDate     *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OwnedBy reports whether subject owns the item.
func (i *Item) OwnedBy(subject string) bool {
	return i != nil && subject != "" && i.Owner == subject
}
