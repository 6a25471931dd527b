package models

import "time"

// Vote is a single student's answer. (PollID, StudentID) is unique.
type Vote struct {
	ID          string    `json:"id"`
	PollID      string    `json:"pollId"`
	OptionID    string    `json:"optionId"`
	StudentID   string    `json:"studentId"`
	StudentName string    `json:"studentName"`
	CreatedAt   time.Time `json:"createdAt"`
}
