package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mcdev12/livepoll/go/internal/models"
	"github.com/mcdev12/livepoll/go/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPoll(id string, start time.Time, status models.PollStatus) models.Poll {
	return models.Poll{
		ID:       id,
		Question: "What is 2 + 2?",
		Options: []models.PollOption{
			{ID: id + "-a", Text: "4", IsCorrect: true},
			{ID: id + "-b", Text: "5"},
		},
		DurationSec: 30,
		StartTime:   start,
		EndTime:     start.Add(30 * time.Second),
		Status:      status,
		CreatedAt:   start,
	}
}

func TestCreatePoll_SecondActiveConflicts(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now()

	require.NoError(t, s.CreatePoll(ctx, testPoll("p1", now, models.PollStatusActive)))
	err := s.CreatePoll(ctx, testPoll("p2", now.Add(time.Second), models.PollStatusActive))
	assert.ErrorIs(t, err, storage.ErrConflict)

	// An ended poll can always be inserted.
	require.NoError(t, s.CreatePoll(ctx, testPoll("p3", now.Add(-time.Hour), models.PollStatusEnded)))
}

func TestCreateVote_ConcurrentDuplicatesOneWinner(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreatePoll(ctx, testPoll("p1", time.Now(), models.PollStatusActive)))

	const attempts = 20
	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.CreateVote(ctx, models.Vote{PollID: "p1", OptionID: "p1-a", StudentID: "s1", StudentName: "Alex"})
			switch {
			case err == nil:
				wins.Add(1)
			case assert.ErrorIs(t, err, storage.ErrConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(attempts-1), conflicts.Load())

	n, err := s.CountVotes(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestConditionalUpdatePollStatus_OnlyFirstTransitionWins(t *testing.T) {
	ctx := context.Background()
	s := New()
	start := time.Now()
	require.NoError(t, s.CreatePoll(ctx, testPoll("p1", start, models.PollStatusActive)))

	endedAt := start.Add(5 * time.Second)
	ok, err := s.ConditionalUpdatePollStatus(ctx, "p1", models.PollStatusActive, models.PollStatusEnded, endedAt)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ConditionalUpdatePollStatus(ctx, "p1", models.PollStatusActive, models.PollStatusEnded, endedAt.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, ok)

	p, err := s.FindPoll(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.PollStatusEnded, p.Status)
	require.NotNil(t, p.EndedAt)
	assert.True(t, p.EndedAt.Equal(endedAt))
	assert.True(t, p.EndTime.Equal(endedAt))
}

func TestFindQueries(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Now()

	_, err := s.FindLatestPoll(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.CreatePoll(ctx, testPoll("old", base.Add(-2*time.Hour), models.PollStatusEnded)))
	require.NoError(t, s.CreatePoll(ctx, testPoll("older", base.Add(-3*time.Hour), models.PollStatusEnded)))
	require.NoError(t, s.CreatePoll(ctx, testPoll("live", base, models.PollStatusActive)))

	latest, err := s.FindLatestPoll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "live", latest.ID)

	active, err := s.FindActivePoll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "live", active.ID)

	ended, err := s.FindEndedPollsAscending(ctx)
	require.NoError(t, err)
	require.Len(t, ended, 2)
	assert.Equal(t, "older", ended[0].ID)
	assert.Equal(t, "old", ended[1].ID)
}

func TestNotReady_FailsFast(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.SetReady(false)

	_, err := s.FindActivePoll(ctx)
	assert.ErrorIs(t, err, storage.ErrUnavailable)
	assert.ErrorIs(t, s.CreateVote(ctx, models.Vote{PollID: "p", StudentID: "s"}), storage.ErrUnavailable)
}

func TestReturnedPollsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreatePoll(ctx, testPoll("p1", time.Now(), models.PollStatusActive)))

	p, err := s.FindPoll(ctx, "p1")
	require.NoError(t, err)
	p.Options[0].Text = "mutated"
	p.Status = models.PollStatusEnded

	again, err := s.FindPoll(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "4", again.Options[0].Text)
	assert.Equal(t, models.PollStatusActive, again.Status)
}
