// Package memory is an in-process implementation of storage.Store. It keeps
// the same uniqueness guarantees as the Postgres store and is used for tests
// and for running without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcdev12/livepoll/go/internal/models"
	"github.com/mcdev12/livepoll/go/internal/storage"
)

type voteKey struct {
	pollID    string
	studentID string
}

type Store struct {
	mu    sync.RWMutex
	polls map[string]*models.Poll
	votes map[voteKey]models.Vote
	ready atomic.Bool
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	s := &Store{
		polls: make(map[string]*models.Poll),
		votes: make(map[voteKey]models.Vote),
	}
	s.ready.Store(true)
	return s
}

// SetReady toggles availability, simulating a lost database connection.
func (s *Store) SetReady(ready bool) {
	s.ready.Store(ready)
}

func (s *Store) Ready() bool {
	return s.ready.Load()
}

func (s *Store) checkReady() error {
	if !s.Ready() {
		return storage.ErrUnavailable
	}
	return nil
}

func (s *Store) FindActivePoll(ctx context.Context) (*models.Poll, error) {
	if err := s.checkReady(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.Poll
	for _, p := range s.polls {
		if p.Status != models.PollStatusActive {
			continue
		}
		if latest == nil || p.StartTime.After(latest.StartTime) {
			latest = p
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	return clonePoll(latest), nil
}

func (s *Store) FindLatestPoll(ctx context.Context) (*models.Poll, error) {
	if err := s.checkReady(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.Poll
	for _, p := range s.polls {
		if latest == nil || p.StartTime.After(latest.StartTime) {
			latest = p
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	return clonePoll(latest), nil
}

func (s *Store) FindPoll(ctx context.Context, id string) (*models.Poll, error) {
	if err := s.checkReady(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.polls[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return clonePoll(p), nil
}

func (s *Store) FindEndedPollsAscending(ctx context.Context) ([]models.Poll, error) {
	if err := s.checkReady(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ended := make([]models.Poll, 0, len(s.polls))
	for _, p := range s.polls {
		if p.Status == models.PollStatusEnded {
			ended = append(ended, *clonePoll(p))
		}
	}
	sort.Slice(ended, func(i, j int) bool {
		return ended[i].StartTime.Before(ended[j].StartTime)
	})
	return ended, nil
}

func (s *Store) CreatePoll(ctx context.Context, poll models.Poll) error {
	if err := s.checkReady(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.polls[poll.ID]; exists {
		return fmt.Errorf("poll %s: %w", poll.ID, storage.ErrConflict)
	}
	if poll.Status == models.PollStatusActive {
		for _, p := range s.polls {
			if p.Status == models.PollStatusActive {
				return fmt.Errorf("active poll %s already exists: %w", p.ID, storage.ErrConflict)
			}
		}
	}
	s.polls[poll.ID] = clonePoll(&poll)
	return nil
}

func (s *Store) ConditionalUpdatePollStatus(ctx context.Context, id string, expected, next models.PollStatus, endedAt time.Time) (bool, error) {
	if err := s.checkReady(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.polls[id]
	if !ok || p.Status != expected {
		return false, nil
	}
	p.Status = next
	if next == models.PollStatusEnded {
		t := endedAt
		p.EndTime = t
		p.EndedAt = &t
	}
	return true, nil
}

func (s *Store) CreateVote(ctx context.Context, vote models.Vote) error {
	if err := s.checkReady(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := voteKey{pollID: vote.PollID, studentID: vote.StudentID}
	if _, exists := s.votes[key]; exists {
		return fmt.Errorf("vote for student %s: %w", vote.StudentID, storage.ErrConflict)
	}
	s.votes[key] = vote
	return nil
}

func (s *Store) CountVotes(ctx context.Context, pollID string) (int, error) {
	if err := s.checkReady(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for k := range s.votes {
		if k.pollID == pollID {
			n++
		}
	}
	return n, nil
}

func (s *Store) AggregateVotesByOption(ctx context.Context, pollID string) (map[string]int, error) {
	if err := s.checkReady(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for k, v := range s.votes {
		if k.pollID == pollID {
			counts[v.OptionID]++
		}
	}
	return counts, nil
}

func clonePoll(p *models.Poll) *models.Poll {
	c := *p
	c.Options = append([]models.PollOption(nil), p.Options...)
	if p.EndedAt != nil {
		t := *p.EndedAt
		c.EndedAt = &t
	}
	return &c
}
