// Package events publishes CodeVault domain events.
//
// Publication is best effort: callers publish after the store has committed
// and log failures instead of failing the operation.
package events

import (
	"context"
	"time"

	"github.com/codevault/codevault/internal/ids"
)

// Type names an event. Kafka topics are derived from it.
type Type string

// Event types.
const (
	UserRegistered  Type = "user.registered"
	UserDeleted     Type = "user.deleted"
	UserRoleChanged Type = "user.role_changed"
	SnippetCreated  Type = "snippet.created"
	SnippetUpdated  Type = "snippet.updated"
	SnippetDeleted  Type = "snippet.deleted"
)

// Event is a domain event. It never carries credentials.
type Event struct {
	ID         string         `json:"id"`
	Type       Type           `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	ActorID    int64          `json:"actor_id,omitempty"`
	UserID     int64          `json:"user_id"`
	SnippetID  int64          `json:"snippet_id,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// New returns an event with a fresh ULID and timestamp.
func New(typ Type, userID int64, now time.Time) Event {
	id, _ := ids.NewULID(now)
	return Event{
		ID:         id,
		Type:       typ,
		OccurredAt: now.UTC(),
		UserID:     userID,
	}
}

// Publisher delivers events to a broker.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards events.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(context.Context, Event) error { return nil }

// Close does nothing.
func (Nop) Close() error { return nil }
