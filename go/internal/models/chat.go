package models

import "time"

// SenderRole identifies who wrote a chat message.
type SenderRole string

const (
	RolePresenter SenderRole = "presenter"
	RoleAttendee  SenderRole = "attendee"
)

// ChatMessage is a single chat entry.
type ChatMessage struct {
	ID         string     `json:"id"`
	SenderID   string     `json:"senderId"`
	SenderName string     `json:"senderName"`
	SenderRole SenderRole `json:"senderRole"`
	Text       string     `json:"text"`
	CreatedAt  time.Time  `json:"createdAt"`
}
