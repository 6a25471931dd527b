package poll

import (
	"context"
	"time"

	"github.com/mcdev12/livepoll/go/internal/eventbus"
	"github.com/mcdev12/livepoll/go/internal/models"
)

const (
	MinDurationSec    = 10
	MaxDurationSec    = 60
	MinQuestionLength = 5
	MinOptions        = 2
)

// EndReason records why a poll left the active state.
type EndReason string

const (
	EndReasonTimer       EndReason = "timer"
	EndReasonAllAnswered EndReason = "all_answered"
	EndReasonStale       EndReason = "stale"
	EndReasonManual      EndReason = "manual"
	EndReasonRecovery    EndReason = "recovery"
)

type CreateOptionRequest struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

type CreatePollRequest struct {
	Question    string                `json:"question"`
	Options     []CreateOptionRequest `json:"options"`
	DurationSec int                   `json:"durationSec"`
}

type SubmitVoteRequest struct {
	PollID      string `json:"pollId"`
	OptionID    string `json:"optionId"`
	StudentID   string `json:"studentId"`
	StudentName string `json:"studentName"`
}

// PollState is the snapshot clients need to render a poll and its countdown.
type PollState struct {
	Poll        *models.Poll        `json:"poll"`
	RemainingMs int64               `json:"remainingMs"`
	ServerTime  int64               `json:"serverTime"`
	Results     *models.PollResults `json:"results"`
}

type HistoryEntry struct {
	Poll    models.Poll         `json:"poll"`
	Results *models.PollResults `json:"results"`
}

// Roster is the slice of the participant registry the engine consults.
type Roster interface {
	ActiveCount() int
	IsKicked(studentID string) bool
}

// EventPublisher mirrors lifecycle events to the event bus.
type EventPublisher interface {
	Publish(ctx context.Context, event eventbus.Event) error
}

// MetricsCollector defines the interface for collecting engine metrics
type MetricsCollector interface {
	RecordPollCreated()
	RecordPollEnded(reason string, lifetime time.Duration)
	RecordVote(outcome string)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordPollCreated()                                    {}
func (NoOpMetricsCollector) RecordPollEnded(reason string, lifetime time.Duration) {}
func (NoOpMetricsCollector) RecordVote(outcome string)                             {}

// EndedHandler is invoked once per poll, after the transition to ended lands.
type EndedHandler func(ctx context.Context, pollID string)
