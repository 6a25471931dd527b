package models

import "time"

// PollStatus defines the lifecycle status of a poll.
type PollStatus string

const (
	PollStatusActive PollStatus = "active"
	PollStatusEnded  PollStatus = "ended"
)

// PollOption is a single answer choice. Order within a poll is significant.
type PollOption struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// Poll represents one timed multiple-choice question.
type Poll struct {
	ID          string       `json:"id"`
	Question    string       `json:"question"`
	Options     []PollOption `json:"options"`
	DurationSec int          `json:"durationSec"`
	StartTime   time.Time    `json:"startTime"`
	EndTime     time.Time    `json:"endTime"`
	Status      PollStatus   `json:"status"`
	EndedAt     *time.Time   `json:"endedAt,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// IsActive reports whether the poll is still marked active.
func (p *Poll) IsActive() bool {
	return p.Status == PollStatusActive
}

// IsExpired reports whether the poll's end time has elapsed at now.
func (p *Poll) IsExpired(now time.Time) bool {
	return !p.EndTime.After(now)
}

// HasOption reports whether optionID belongs to the poll.
func (p *Poll) HasOption(optionID string) bool {
	for _, o := range p.Options {
		if o.ID == optionID {
			return true
		}
	}
	return false
}

// OptionResult is an option with its tally.
type OptionResult struct {
	PollOption
	Votes      int `json:"votes"`
	Percentage int `json:"percentage"`
}

// PollResults holds aggregated tallies in poll option order.
type PollResults struct {
	PollID     string         `json:"pollId"`
	TotalVotes int            `json:"totalVotes"`
	Options    []OptionResult `json:"options"`
}
