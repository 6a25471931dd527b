// Package postgres implements storage.Store on a pgx connection pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/livepoll/go/internal/models"
	"github.com/mcdev12/livepoll/go/internal/sqlutil"
	"github.com/mcdev12/livepoll/go/internal/storage"
	"github.com/rs/zerolog/log"
)

const pollColumns = `id, question, options, duration_sec, start_time, end_time, status, ended_at, created_at`

type Store struct {
	pool  *pgxpool.Pool
	ready atomic.Bool
}

var _ storage.Store = (*Store)(nil)

// New connects to Postgres and verifies the connection.
func New(ctx context.Context, dsn string) (*Store, error) {
	const op = "storage.postgres.New"

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s := &Store{pool: pool}
	s.ready.Store(true)
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.ready.Store(false)
	s.pool.Close()
}

func (s *Store) Ready() bool {
	return s.ready.Load()
}

// MonitorReadiness pings the pool every interval and flips the ready flag,
// so engine calls fail fast while the database is unreachable.
func (s *Store) MonitorReadiness(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, interval)
			err := s.pool.Ping(pingCtx)
			cancel()

			wasReady := s.ready.Swap(err == nil)
			switch {
			case err != nil && wasReady:
				log.Error().Err(err).Msg("database became unavailable")
			case err == nil && !wasReady:
				log.Info().Msg("database available again")
			}
		}
	}
}

func (s *Store) FindActivePoll(ctx context.Context) (*models.Poll, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pollColumns+` FROM polls WHERE status = 'active' ORDER BY start_time DESC LIMIT 1`)
	return scanPoll(row, "storage.postgres.FindActivePoll")
}

func (s *Store) FindLatestPoll(ctx context.Context) (*models.Poll, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pollColumns+` FROM polls ORDER BY start_time DESC LIMIT 1`)
	return scanPoll(row, "storage.postgres.FindLatestPoll")
}

func (s *Store) FindPoll(ctx context.Context, id string) (*models.Poll, error) {
	const op = "storage.postgres.FindPoll"

	pollID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	row := s.pool.QueryRow(ctx, `SELECT `+pollColumns+` FROM polls WHERE id = $1`, pollID)
	return scanPoll(row, op)
}

func (s *Store) FindEndedPollsAscending(ctx context.Context) ([]models.Poll, error) {
	const op = "storage.postgres.FindEndedPollsAscending"

	rows, err := s.pool.Query(ctx, `SELECT `+pollColumns+` FROM polls WHERE status = 'ended' ORDER BY start_time ASC`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var polls []models.Poll
	for rows.Next() {
		p, err := scanPoll(rows, op)
		if err != nil {
			return nil, err
		}
		polls = append(polls, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return polls, nil
}

func (s *Store) CreatePoll(ctx context.Context, poll models.Poll) error {
	const op = "storage.postgres.CreatePoll"

	pollID, err := uuid.Parse(poll.ID)
	if err != nil {
		return fmt.Errorf("%s: invalid poll id: %w", op, err)
	}
	options, err := json.Marshal(poll.Options)
	if err != nil {
		return fmt.Errorf("%s: marshal options: %w", op, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO polls (id, question, options, duration_sec, start_time, end_time, status, ended_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		pollID, poll.Question, options, poll.DurationSec, poll.StartTime, poll.EndTime,
		string(poll.Status), sqlutil.ToPgTimestamptz(poll.EndedAt), poll.CreatedAt,
	)
	if err != nil {
		if sqlutil.IsUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrConflict)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Store) ConditionalUpdatePollStatus(ctx context.Context, id string, expected, next models.PollStatus, endedAt time.Time) (bool, error) {
	const op = "storage.postgres.ConditionalUpdatePollStatus"

	pollID, err := uuid.Parse(id)
	if err != nil {
		return false, nil
	}

	var tag pgconn.CommandTag
	if next == models.PollStatusEnded {
		tag, err = s.pool.Exec(ctx, `
			UPDATE polls SET status = $3, ended_at = $4, end_time = $4
			WHERE id = $1 AND status = $2`,
			pollID, string(expected), string(next), endedAt)
	} else {
		tag, err = s.pool.Exec(ctx, `UPDATE polls SET status = $3 WHERE id = $1 AND status = $2`,
			pollID, string(expected), string(next))
	}
	if err != nil {
		if sqlutil.IsUniqueViolation(err) {
			return false, fmt.Errorf("%s: %w", op, storage.ErrConflict)
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) CreateVote(ctx context.Context, vote models.Vote) error {
	const op = "storage.postgres.CreateVote"

	pollID, err := uuid.Parse(vote.PollID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	voteID := uuid.New()
	if vote.ID != "" {
		if parsed, err := uuid.Parse(vote.ID); err == nil {
			voteID = parsed
		}
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO votes (id, poll_id, option_id, student_id, student_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		voteID, pollID, vote.OptionID, vote.StudentID, vote.StudentName, vote.CreatedAt,
	)
	if err != nil {
		if sqlutil.IsUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrConflict)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Store) CountVotes(ctx context.Context, pollID string) (int, error) {
	const op = "storage.postgres.CountVotes"

	id, err := uuid.Parse(pollID)
	if err != nil {
		return 0, nil
	}
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM votes WHERE poll_id = $1`, id).Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}

func (s *Store) AggregateVotesByOption(ctx context.Context, pollID string) (map[string]int, error) {
	const op = "storage.postgres.AggregateVotesByOption"

	counts := make(map[string]int)
	id, err := uuid.Parse(pollID)
	if err != nil {
		return counts, nil
	}

	rows, err := s.pool.Query(ctx, `SELECT option_id, COUNT(*) FROM votes WHERE poll_id = $1 GROUP BY option_id`, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	for rows.Next() {
		var optionID string
		var n int
		if err := rows.Scan(&optionID, &n); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		counts[optionID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return counts, nil
}

func scanPoll(row pgx.Row, op string) (*models.Poll, error) {
	var (
		p       models.Poll
		id      uuid.UUID
		options []byte
		status  string
		endedAt pgtype.Timestamptz
	)
	err := row.Scan(&id, &p.Question, &options, &p.DurationSec, &p.StartTime, &p.EndTime, &status, &endedAt, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := json.Unmarshal(options, &p.Options); err != nil {
		return nil, fmt.Errorf("%s: unmarshal options: %w", op, err)
	}
	p.ID = id.String()
	p.Status = models.PollStatus(status)
	p.EndedAt = sqlutil.FromPgTimestamptz(endedAt)
	return &p, nil
}
