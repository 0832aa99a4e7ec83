package domain

import "time"

// EventType names a session lifecycle change observers can react to.
type EventType string

const (
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
	EventUserUpdated    EventType = "USER_UPDATED"
)

// Event is delivered to observers after the change it describes is visible on the store.
// Identity and Credential are snapshots; nil after sign-out.
type Event struct {
	Type       EventType
	Identity   *Identity
	Credential *Credential
	At         time.Time
}
