package events

import "time"

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventUserRegistered  EventType = "user.registered"
	EventUserLoggedIn    EventType = "user.logged_in"
	EventUserLoginFailed EventType = "user.login_failed"
	EventItemCreated     EventType = "item.created"
	EventItemUpdated     EventType = "item.updated"
	EventItemDeleted     EventType = "item.deleted"
)

// AllTypes lists every event the service emits.
var AllTypes = []EventType{
	EventUserRegistered,
	EventUserLoggedIn,
	EventUserLoginFailed,
	EventItemCreated,
	EventItemUpdated,
	EventItemDeleted,
}

// Event represents a domain event emitted by services. Subject is the
// username the event concerns; for failed logins it is the attempted name.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Subject   string    `json:"subject"`
	ItemID    string    `json:"item_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
