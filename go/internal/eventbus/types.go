// Package eventbus mirrors poll lifecycle events onto NATS JetStream so
// downstream consumers (analytics, exports) can follow a session without
// holding a WebSocket open.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePollCreated = "PollCreated"
	EventTypeVoteCast    = "VoteCast"
	EventTypePollEnded   = "PollEnded"
)

// Event is one lifecycle fact about a poll.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	PollID    string          `json:"poll_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Publisher delivers events to the bus.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type PollCreatedPayload struct {
	PollID      string    `json:"poll_id"`
	Question    string    `json:"question"`
	OptionCount int       `json:"option_count"`
	DurationSec int       `json:"duration_sec"`
	EndTime     time.Time `json:"end_time"`
}

type VoteCastPayload struct {
	PollID    string `json:"poll_id"`
	OptionID  string `json:"option_id"`
	StudentID string `json:"student_id"`
}

type PollEndedPayload struct {
	PollID     string    `json:"poll_id"`
	Reason     string    `json:"reason"`
	EndedAt    time.Time `json:"ended_at"`
	TotalVotes int       `json:"total_votes"`
}

// NewEvent builds an Event with a fresh id, marshalling payload as JSON.
func NewEvent(eventType, pollID string, payload any, now time.Time) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:        uuid.New(),
		PollID:    pollID,
		EventType: eventType,
		Payload:   data,
		CreatedAt: now.UTC(),
	}, nil
}

// NoopPublisher drops every event. Used when no NATS URL is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, event Event) error { return nil }
func (NoopPublisher) Close() error                                   { return nil }
