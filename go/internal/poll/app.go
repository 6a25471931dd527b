package poll

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livepoll/go/internal/apperrors"
	"github.com/mcdev12/livepoll/go/internal/eventbus"
	"github.com/mcdev12/livepoll/go/internal/models"
	"github.com/mcdev12/livepoll/go/internal/storage"
)

const (
	expiryTimeout  = 10 * time.Second
	publishTimeout = 2 * time.Second
)

// App owns the poll lifecycle: creation, vote admission, aggregation and
// termination by timer, by full participation or on demand.
type App struct {
	store     storage.Store
	roster    Roster
	clock     Clock
	scheduler *Scheduler
	publisher EventPublisher
	metrics   MetricsCollector

	// createMu serializes poll creation within the process.
	createMu sync.Mutex

	handlerMu sync.RWMutex
	onEnded   EndedHandler
}

type Option func(*App)

func WithClock(clock Clock) Option {
	return func(a *App) { a.clock = clock }
}

func WithPublisher(p EventPublisher) Option {
	return func(a *App) { a.publisher = p }
}

func WithMetrics(m MetricsCollector) Option {
	return func(a *App) { a.metrics = m }
}

func NewApp(store storage.Store, roster Roster, opts ...Option) *App {
	a := &App{
		store:     store,
		roster:    roster,
		clock:     clockwork.NewRealClock(),
		publisher: eventbus.NoopPublisher{},
		metrics:   NoOpMetricsCollector{},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.scheduler = NewScheduler(a.clock)
	return a
}

// OnPollEnded registers the termination handler. It replaces any previous one.
func (a *App) OnPollEnded(fn EndedHandler) {
	a.handlerMu.Lock()
	defer a.handlerMu.Unlock()
	a.onEnded = fn
}

// Stop cancels all pending expiries.
func (a *App) Stop() {
	a.scheduler.Stop()
}

// CreatePoll validates req and opens a new poll. Only one poll may be active.
func (a *App) CreatePoll(ctx context.Context, req CreatePollRequest) (*PollState, error) {
	question, options, err := validateCreate(req)
	if err != nil {
		return nil, err
	}
	if err := a.ensureReady(); err != nil {
		return nil, err
	}

	a.createMu.Lock()
	defer a.createMu.Unlock()

	active, err := a.findActive(ctx)
	if err != nil {
		return nil, err
	}
	if active != nil {
		if !active.IsExpired(a.clock.Now()) {
			return nil, apperrors.New(apperrors.CodeActivePollExists, "A poll is already active.")
		}
		if _, err := a.endPoll(ctx, active.ID, EndReasonStale); err != nil {
			return nil, err
		}
	}

	now := a.clock.Now().UTC().Truncate(time.Millisecond)
	poll := models.Poll{
		ID:          uuid.NewString(),
		Question:    question,
		Options:     make([]models.PollOption, 0, len(options)),
		DurationSec: req.DurationSec,
		StartTime:   now,
		EndTime:     now.Add(time.Duration(req.DurationSec) * time.Second),
		Status:      models.PollStatusActive,
		CreatedAt:   now,
	}
	for _, o := range options {
		poll.Options = append(poll.Options, models.PollOption{
			ID:        uuid.NewString(),
			Text:      o.Text,
			IsCorrect: o.IsCorrect,
		})
	}

	if err := a.store.CreatePoll(ctx, poll); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, apperrors.New(apperrors.CodeActivePollExists, "A poll is already active.")
		}
		return nil, wrapStoreErr("create poll", err)
	}

	a.scheduler.Schedule(poll.ID, poll.EndTime.Sub(now), a.expire)
	a.metrics.RecordPollCreated()

	log.Info().
		Str("poll_id", poll.ID).
		Int("options", len(poll.Options)).
		Int("duration_sec", poll.DurationSec).
		Time("end_time", poll.EndTime).
		Msg("poll created")

	a.publish(ctx, eventbus.EventTypePollCreated, poll.ID, eventbus.PollCreatedPayload{
		PollID:      poll.ID,
		Question:    poll.Question,
		OptionCount: len(poll.Options),
		DurationSec: poll.DurationSec,
		EndTime:     poll.EndTime,
	})

	return &PollState{
		Poll:        &poll,
		RemainingMs: remainingMs(&poll, now),
		ServerTime:  now.UnixMilli(),
		Results:     Aggregate(&poll, nil),
	}, nil
}

// ActivePoll returns the active poll, or nil. A poll whose end time has
// passed is ended on the spot and nil is returned.
func (a *App) ActivePoll(ctx context.Context) (*models.Poll, error) {
	if err := a.ensureReady(); err != nil {
		return nil, err
	}
	active, err := a.findActive(ctx)
	if err != nil || active == nil {
		return nil, err
	}
	if active.IsExpired(a.clock.Now()) {
		if _, err := a.endPoll(ctx, active.ID, EndReasonStale); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return active, nil
}

// LatestPoll returns the most recently started poll regardless of status.
func (a *App) LatestPoll(ctx context.Context) (*models.Poll, error) {
	if err := a.ensureReady(); err != nil {
		return nil, err
	}
	poll, err := a.store.FindLatestPoll(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStoreErr("find latest poll", err)
	}
	return poll, nil
}

func (a *App) Poll(ctx context.Context, pollID string) (*models.Poll, error) {
	if err := a.ensureReady(); err != nil {
		return nil, err
	}
	poll, err := a.store.FindPoll(ctx, pollID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.New(apperrors.CodePollNotFound, "Poll not found.")
	}
	if err != nil {
		return nil, wrapStoreErr("find poll", err)
	}
	return poll, nil
}

// History returns ended polls, oldest first, each with its final results.
func (a *App) History(ctx context.Context) ([]HistoryEntry, error) {
	if err := a.ensureReady(); err != nil {
		return nil, err
	}
	polls, err := a.store.FindEndedPollsAscending(ctx)
	if err != nil {
		return nil, wrapStoreErr("find ended polls", err)
	}

	entries := make([]HistoryEntry, 0, len(polls))
	for i := range polls {
		results, err := a.Results(ctx, &polls[i])
		if err != nil {
			return nil, err
		}
		entries = append(entries, HistoryEntry{Poll: polls[i], Results: results})
	}
	return entries, nil
}

// Results aggregates the votes cast on poll so far.
func (a *App) Results(ctx context.Context, poll *models.Poll) (*models.PollResults, error) {
	if err := a.ensureReady(); err != nil {
		return nil, err
	}
	counts, err := a.store.AggregateVotesByOption(ctx, poll.ID)
	if err != nil {
		return nil, wrapStoreErr("aggregate votes", err)
	}
	return Aggregate(poll, counts), nil
}

// State builds the client snapshot for poll. A nil poll yields a snapshot
// carrying only the server time.
func (a *App) State(ctx context.Context, poll *models.Poll) (*PollState, error) {
	now := a.clock.Now()
	if poll == nil {
		return &PollState{ServerTime: now.UnixMilli()}, nil
	}
	results, err := a.Results(ctx, poll)
	if err != nil {
		return nil, err
	}
	return &PollState{
		Poll:        poll,
		RemainingMs: remainingMs(poll, now),
		ServerTime:  now.UnixMilli(),
		Results:     results,
	}, nil
}

// SubmitVote records one vote and returns the tally after it. When every
// connected participant has answered, the poll ends immediately.
func (a *App) SubmitVote(ctx context.Context, req SubmitVoteRequest) (*models.PollResults, error) {
	req.PollID = strings.TrimSpace(req.PollID)
	req.OptionID = strings.TrimSpace(req.OptionID)
	req.StudentID = strings.TrimSpace(req.StudentID)
	req.StudentName = strings.TrimSpace(req.StudentName)
	if req.PollID == "" || req.OptionID == "" || req.StudentID == "" || req.StudentName == "" {
		a.metrics.RecordVote("rejected")
		return nil, apperrors.New(apperrors.CodeValidation, "pollId, optionId, studentId and studentName are required.")
	}
	if err := a.ensureReady(); err != nil {
		return nil, err
	}

	poll, err := a.store.FindPoll(ctx, req.PollID)
	if errors.Is(err, storage.ErrNotFound) {
		a.metrics.RecordVote("rejected")
		return nil, apperrors.New(apperrors.CodePollNotFound, "Poll not found.")
	}
	if err != nil {
		return nil, wrapStoreErr("find poll", err)
	}

	if !poll.IsActive() || poll.IsExpired(a.clock.Now()) {
		if poll.IsActive() {
			if _, err := a.endPoll(ctx, poll.ID, EndReasonStale); err != nil {
				log.Error().Err(err).Str("poll_id", poll.ID).Msg("failed to end stale poll")
			}
		}
		a.metrics.RecordVote("rejected")
		return nil, apperrors.New(apperrors.CodePollEnded, "This poll has ended.")
	}
	if a.roster.IsKicked(req.StudentID) {
		a.metrics.RecordVote("rejected")
		return nil, apperrors.New(apperrors.CodeStudentKicked, "You have been removed from this session.")
	}
	if !poll.HasOption(req.OptionID) {
		a.metrics.RecordVote("rejected")
		return nil, apperrors.New(apperrors.CodeOptionNotFound, "Option not found.")
	}

	vote := models.Vote{
		ID:          uuid.NewString(),
		PollID:      poll.ID,
		OptionID:    req.OptionID,
		StudentID:   req.StudentID,
		StudentName: req.StudentName,
		CreatedAt:   a.clock.Now().UTC(),
	}
	if err := a.store.CreateVote(ctx, vote); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			a.metrics.RecordVote("already_voted")
			return nil, apperrors.New(apperrors.CodeAlreadyVoted, "You have already voted in this poll.")
		}
		return nil, wrapStoreErr("create vote", err)
	}
	a.metrics.RecordVote("accepted")

	log.Debug().
		Str("poll_id", poll.ID).
		Str("student_id", req.StudentID).
		Str("option_id", req.OptionID).
		Msg("vote recorded")

	a.publish(ctx, eventbus.EventTypeVoteCast, poll.ID, eventbus.VoteCastPayload{
		PollID:    poll.ID,
		OptionID:  req.OptionID,
		StudentID: req.StudentID,
	})

	a.maybeEndEarly(ctx, poll.ID)

	return a.Results(ctx, poll)
}

// EndPoll ends pollID if it is still active. It reports whether this call
// performed the transition.
func (a *App) EndPoll(ctx context.Context, pollID string) (bool, error) {
	return a.endPoll(ctx, pollID, EndReasonManual)
}

// Bootstrap restores the timer for a poll that was active when the process
// last stopped, or ends it if its time ran out meanwhile.
func (a *App) Bootstrap(ctx context.Context) error {
	if err := a.ensureReady(); err != nil {
		return err
	}
	active, err := a.findActive(ctx)
	if err != nil {
		return err
	}
	if active == nil {
		log.Info().Msg("no active poll to recover")
		return nil
	}

	now := a.clock.Now()
	if active.IsExpired(now) {
		_, err := a.endPoll(ctx, active.ID, EndReasonRecovery)
		return err
	}

	a.scheduler.Schedule(active.ID, active.EndTime.Sub(now), a.expire)
	log.Info().
		Str("poll_id", active.ID).
		Int64("remaining_ms", remainingMs(active, now)).
		Msg("recovered active poll")
	return nil
}

// BootstrapWithRetry runs Bootstrap, retrying every interval while the
// store is unavailable. It returns once recovery succeeds, fails for any
// other reason, or ctx is done.
func (a *App) BootstrapWithRetry(ctx context.Context, interval time.Duration) error {
	for {
		err := a.Bootstrap(ctx)
		if err == nil || !apperrors.HasCode(err, apperrors.CodeDBUnavailable) {
			return err
		}
		log.Warn().Err(err).Dur("retry_in", interval).Msg("store unavailable, retrying poll recovery")

		timer := a.clock.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.Chan():
		}
	}
}

func (a *App) endPoll(ctx context.Context, pollID string, reason EndReason) (bool, error) {
	if err := a.ensureReady(); err != nil {
		return false, err
	}

	endedAt := a.clock.Now().UTC()
	transitioned, err := a.store.ConditionalUpdatePollStatus(ctx, pollID, models.PollStatusActive, models.PollStatusEnded, endedAt)
	if err != nil {
		return false, wrapStoreErr("end poll", err)
	}
	a.scheduler.Cancel(pollID)
	if !transitioned {
		log.Debug().Str("poll_id", pollID).Str("reason", string(reason)).Msg("poll already ended")
		return false, nil
	}

	var lifetime time.Duration
	if poll, err := a.store.FindPoll(ctx, pollID); err == nil {
		lifetime = endedAt.Sub(poll.StartTime)
	}
	totalVotes, err := a.store.CountVotes(ctx, pollID)
	if err != nil {
		log.Warn().Err(err).Str("poll_id", pollID).Msg("failed to count votes for ended poll")
	}
	a.metrics.RecordPollEnded(string(reason), lifetime)

	log.Info().
		Str("poll_id", pollID).
		Str("reason", string(reason)).
		Int("total_votes", totalVotes).
		Msg("poll ended")

	a.publish(ctx, eventbus.EventTypePollEnded, pollID, eventbus.PollEndedPayload{
		PollID:     pollID,
		Reason:     string(reason),
		EndedAt:    endedAt,
		TotalVotes: totalVotes,
	})

	a.handlerMu.RLock()
	handler := a.onEnded
	a.handlerMu.RUnlock()
	if handler != nil {
		handler(context.WithoutCancel(ctx), pollID)
	}
	return true, nil
}

func (a *App) expire(pollID string) {
	ctx, cancel := context.WithTimeout(context.Background(), expiryTimeout)
	defer cancel()
	if _, err := a.endPoll(ctx, pollID, EndReasonTimer); err != nil {
		log.Error().Err(err).Str("poll_id", pollID).Msg("failed to end poll on expiry")
	}
}

func (a *App) maybeEndEarly(ctx context.Context, pollID string) {
	participants := a.roster.ActiveCount()
	if participants == 0 {
		return
	}
	votes, err := a.store.CountVotes(ctx, pollID)
	if err != nil {
		log.Error().Err(err).Str("poll_id", pollID).Msg("failed to count votes")
		return
	}
	if votes < participants {
		return
	}
	if _, err := a.endPoll(ctx, pollID, EndReasonAllAnswered); err != nil {
		log.Error().Err(err).Str("poll_id", pollID).Msg("failed to end poll early")
	}
}

func (a *App) findActive(ctx context.Context) (*models.Poll, error) {
	poll, err := a.store.FindActivePoll(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStoreErr("find active poll", err)
	}
	return poll, nil
}

func (a *App) ensureReady() error {
	if !a.store.Ready() {
		return apperrors.New(apperrors.CodeDBUnavailable, "Database unavailable. Please try again shortly.")
	}
	return nil
}

func (a *App) publish(ctx context.Context, eventType, pollID string, payload any) {
	event, err := eventbus.NewEvent(eventType, pollID, payload, a.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to build event")
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := a.publisher.Publish(pctx, event); err != nil {
		log.Warn().Err(err).Str("event_type", eventType).Str("poll_id", pollID).Msg("failed to publish event")
	}
}

func validateCreate(req CreatePollRequest) (string, []CreateOptionRequest, error) {
	question := strings.TrimSpace(req.Question)
	if len([]rune(question)) < MinQuestionLength {
		return "", nil, apperrors.Newf(apperrors.CodeValidation, "Question must be at least %d characters.", MinQuestionLength)
	}
	if len(req.Options) < MinOptions {
		return "", nil, apperrors.Newf(apperrors.CodeValidation, "At least %d options are required.", MinOptions)
	}
	options := make([]CreateOptionRequest, 0, len(req.Options))
	for i, o := range req.Options {
		text := strings.TrimSpace(o.Text)
		if text == "" {
			return "", nil, apperrors.Newf(apperrors.CodeValidation, "Option %d must have text.", i+1)
		}
		options = append(options, CreateOptionRequest{Text: text, IsCorrect: o.IsCorrect})
	}
	if req.DurationSec < MinDurationSec {
		return "", nil, apperrors.Newf(apperrors.CodeValidation, "Duration must be at least %d seconds.", MinDurationSec)
	}
	if req.DurationSec > MaxDurationSec {
		return "", nil, apperrors.Newf(apperrors.CodeDurationTooLong, "Duration cannot exceed %d seconds.", MaxDurationSec)
	}
	return question, options, nil
}

// remainingMs rounds up so a poll that has not expired never reports zero.
func remainingMs(poll *models.Poll, now time.Time) int64 {
	if !poll.IsActive() {
		return 0
	}
	d := poll.EndTime.Sub(now)
	if d <= 0 {
		return 0
	}
	return int64((d + time.Millisecond - 1) / time.Millisecond)
}

func wrapStoreErr(op string, err error) error {
	if errors.Is(err, storage.ErrUnavailable) {
		return apperrors.Wrap(apperrors.CodeDBUnavailable, "Database unavailable. Please try again shortly.", err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
