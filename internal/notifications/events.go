package notifications

import (
	"encoding/json"
	"time"
)

// Membership event types pushed to websocket subscribers.
const (
	EventApplicationSubmitted = "application.submitted"
	EventApplicationReviewed  = "application.reviewed"
	EventUserApproved         = "user.approved"
	EventUserRegistered       = "user.registered"
)

// Event is the envelope written to every websocket client.
type Event struct {
	Type    string    `json:"type"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// NewEvent stamps an event with the current UTC time.
func NewEvent(eventType string, payload any) Event {
	return Event{Type: eventType, Payload: payload, At: time.Now().UTC()}
}

func (e Event) encode() (string, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
