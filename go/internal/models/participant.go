package models

import "time"

// Participant is a connected attendee. Never persisted.
type Participant struct {
	StudentID    string    `json:"studentId"`
	Name         string    `json:"name"`
	ConnectionID string    `json:"-"`
	JoinedAt     time.Time `json:"joinedAt"`
}
