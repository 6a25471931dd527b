// Package storage defines the persistence contract the poll engine depends on.
package storage

import (
	"context"
	"time"

	"github.com/mcdev12/livepoll/go/internal/models"
)

// Store is the durable record of polls and votes.
//
// Implementations must enforce two uniqueness rules at the storage layer:
// at most one poll with status=active, and at most one vote per
// (poll, student). Violations are reported as ErrConflict.
type Store interface {
	// Ready reports whether the backing store can currently serve requests.
	Ready() bool

	FindActivePoll(ctx context.Context) (*models.Poll, error)
	FindLatestPoll(ctx context.Context) (*models.Poll, error)
	FindPoll(ctx context.Context, id string) (*models.Poll, error)
	FindEndedPollsAscending(ctx context.Context) ([]models.Poll, error)
	CreatePoll(ctx context.Context, poll models.Poll) error

	// ConditionalUpdatePollStatus moves poll id from expected to next only if
	// its stored status still equals expected. When the transition lands on
	// ended, EndTime and EndedAt are both set to endedAt. It reports whether
	// this call performed the transition.
	ConditionalUpdatePollStatus(ctx context.Context, id string, expected, next models.PollStatus, endedAt time.Time) (bool, error)

	CreateVote(ctx context.Context, vote models.Vote) error
	CountVotes(ctx context.Context, pollID string) (int, error)
	// AggregateVotesByOption returns vote counts keyed by option id.
	AggregateVotesByOption(ctx context.Context, pollID string) (map[string]int, error)
}
