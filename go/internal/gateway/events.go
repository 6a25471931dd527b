package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcdev12/livepoll/go/internal/apperrors"
)

// EventType is the name of a server-to-client event.
type EventType string

const (
	EventTypePollState          EventType = "poll-state"
	EventTypePollEnded          EventType = "poll-ended"
	EventTypePollResults        EventType = "poll-results"
	EventTypeRosterList         EventType = "roster-list"
	EventTypeChatHistory        EventType = "chat-history"
	EventTypeChatMessage        EventType = "chat-message"
	EventTypeKicked             EventType = "kicked"
	EventTypeNameTaken          EventType = "name-taken"
	EventTypeConnectionRejected EventType = "connection-rejected"
	EventTypeAck                EventType = "ack"
)

// Commands accepted from clients.
const (
	CommandCreatePoll      = "create-poll"
	CommandSubmitVote      = "submit-vote"
	CommandSendChat        = "send-chat"
	CommandKickParticipant = "kick-participant"
)

// ServerEvent is the envelope for every event pushed to clients.
type ServerEvent struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is a command frame sent by a client. ID correlates the ack.
type ClientMessage struct {
	Type string          `json:"type"`
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// AckMessage answers exactly one ClientMessage.
type AckMessage struct {
	Type    EventType      `json:"type"`
	ID      string         `json:"id"`
	OK      bool           `json:"ok"`
	Data    any            `json:"data,omitempty"`
	Error   apperrors.Code `json:"error,omitempty"`
	Message string         `json:"message,omitempty"`
}

type RejectionPayload struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type SendChatPayload struct {
	Text string `json:"text"`
}

type KickPayload struct {
	StudentID string `json:"studentId"`
}

// NewServerEvent marshals data into a ServerEvent. A nil data leaves the
// payload empty.
func NewServerEvent(eventType EventType, data any, now time.Time) (*ServerEvent, error) {
	event := &ServerEvent{Type: eventType, Timestamp: now.UTC()}
	if data == nil {
		return event, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	event.Data = raw
	return event, nil
}

func newAck(id string, data any) *AckMessage {
	return &AckMessage{Type: EventTypeAck, ID: id, OK: true, Data: data}
}

func newErrorAck(id string, err error) *AckMessage {
	appErr := apperrors.From(err)
	return &AckMessage{
		Type:    EventTypeAck,
		ID:      id,
		OK:      false,
		Error:   appErr.Code,
		Message: appErr.Message,
	}
}
