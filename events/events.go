// Package events fans out pipeline activity to live subscribers: websocket
// clients of the signed-in user and, when configured, a NATS subject.
package events

import (
	"log/slog"
	"time"
)

// Event types.
const (
	TypeState   = "state"
	TypeResult  = "result"
	TypeHistory = "history"
	TypeSession = "session"
	TypeSpeech  = "speech"
)

type Event struct {
	Type      string    `json:"type"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

func New(typ, userID string, payload any) Event {
	return Event{Type: typ, UserID: userID, Timestamp: time.Now(), Payload: payload}
}

// Publisher delivers events without blocking the caller.
type Publisher interface {
	Publish(e Event)
}

// Multi publishes to every non-nil publisher in order.
type Multi []Publisher

func (m Multi) Publish(e Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(e)
		}
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(e Event) {
	slog.Debug("Event discarded", "type", e.Type, "userID", e.UserID)
}
