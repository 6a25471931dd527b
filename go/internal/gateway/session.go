package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livepoll/go/internal/apperrors"
	"github.com/mcdev12/livepoll/go/internal/chat"
	"github.com/mcdev12/livepoll/go/internal/models"
	"github.com/mcdev12/livepoll/go/internal/poll"
)

const presenterDisplayName = "Presenter"

// PollEngine is the slice of the poll lifecycle engine the gateway drives.
type PollEngine interface {
	CreatePoll(ctx context.Context, req poll.CreatePollRequest) (*poll.PollState, error)
	SubmitVote(ctx context.Context, req poll.SubmitVoteRequest) (*models.PollResults, error)
	ActivePoll(ctx context.Context) (*models.Poll, error)
	LatestPoll(ctx context.Context) (*models.Poll, error)
	Poll(ctx context.Context, pollID string) (*models.Poll, error)
	History(ctx context.Context) ([]poll.HistoryEntry, error)
	State(ctx context.Context, p *models.Poll) (*poll.PollState, error)
	OnPollEnded(fn poll.EndedHandler)
}

// Roster is the participant registry as seen by the gateway.
type Roster interface {
	Admit(studentID, name, connID string) *models.Participant
	IsNameTaken(name, excludingStudentID string) bool
	RemoveByConnection(connID string) *models.Participant
	Kick(studentID string) *models.Participant
	IsKicked(studentID string) bool
	List() []models.Participant
}

// Session ties connections to the engine, roster and chat log. It handles
// admission, client commands and the broadcasts that follow them.
type Session struct {
	engine  PollEngine
	roster  Roster
	chat    *chat.Log
	cm      *ConnectionManager
	clock   clockwork.Clock
	timeout time.Duration

	// admitMu makes the name check and the roster insert atomic.
	admitMu sync.Mutex
	// publishMu orders poll snapshots: each is computed and enqueued while
	// held, so a connect snapshot cannot overtake a termination broadcast.
	publishMu sync.Mutex
	// rosterMu and chatMu do the same for roster lists and chat messages.
	// Admission takes rosterMu, chatMu, publishMu in that order.
	rosterMu sync.Mutex
	chatMu   sync.Mutex
}

func NewSession(engine PollEngine, roster Roster, chatLog *chat.Log, cm *ConnectionManager, clock clockwork.Clock, commandTimeout time.Duration) *Session {
	s := &Session{
		engine:  engine,
		roster:  roster,
		chat:    chatLog,
		cm:      cm,
		clock:   clock,
		timeout: commandTimeout,
	}
	cm.SetHandler(s)
	engine.OnPollEnded(s.onPollEnded)
	return s
}

// Admit runs admission for a freshly upgraded connection. Rejected
// attendees get a single event and are closed. An admitted connection
// receives roster-list, chat-history and poll-state before any other event.
func (s *Session) Admit(conn *Connection) {
	if conn.Role == RoleAttendee {
		if rejection := s.admitAttendee(conn); rejection != nil {
			s.cm.Reject(conn, rejection)
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.rosterMu.Lock()
	defer s.rosterMu.Unlock()
	s.chatMu.Lock()
	defer s.chatMu.Unlock()
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	// A kick may have landed between the admission check and here.
	if conn.Role == RoleAttendee && s.roster.IsKicked(conn.StudentID) {
		s.cm.Reject(conn, s.newEvent(EventTypeKicked, nil))
		return
	}

	state := s.snapshot(ctx, conn)
	if !s.cm.Register(conn) {
		if conn.Role == RoleAttendee {
			s.roster.RemoveByConnection(conn.ID)
		}
		return
	}
	s.enqueueRoster()
	s.cm.SendTo(conn.ID, s.newEvent(EventTypeChatHistory, s.chat.Snapshot()))
	s.cm.SendTo(conn.ID, s.newEvent(EventTypePollState, state))
}

func (s *Session) admitAttendee(conn *Connection) *ServerEvent {
	if conn.StudentID == "" || conn.StudentName == "" {
		return s.newEvent(EventTypeConnectionRejected, RejectionPayload{
			Reason:  "missing_identity",
			Message: "studentId and studentName are required.",
		})
	}

	s.admitMu.Lock()
	defer s.admitMu.Unlock()

	if s.roster.IsKicked(conn.StudentID) {
		return s.newEvent(EventTypeKicked, nil)
	}
	if s.roster.IsNameTaken(conn.StudentName, conn.StudentID) {
		return s.newEvent(EventTypeNameTaken, nil)
	}
	if s.roster.Admit(conn.StudentID, conn.StudentName, conn.ID) == nil {
		return s.newEvent(EventTypeKicked, nil)
	}
	return nil
}

// snapshot builds the latest poll state for a joining connection. Callers
// hold publishMu.
func (s *Session) snapshot(ctx context.Context, conn *Connection) *poll.PollState {
	latest, err := s.engine.LatestPoll(ctx)
	if err == nil {
		var state *poll.PollState
		if state, err = s.engine.State(ctx, latest); err == nil {
			return state
		}
	}
	log.Error().Err(err).Str("connection_id", conn.ID).Msg("failed to build initial poll state")
	return &poll.PollState{ServerTime: s.clock.Now().UnixMilli()}
}

// HandleDisconnect drops the participant owned by conn, if any.
func (s *Session) HandleDisconnect(conn *Connection) {
	if conn.Role != RoleAttendee {
		return
	}
	if p := s.roster.RemoveByConnection(conn.ID); p != nil {
		s.broadcastRoster()
	}
}

// HandleMessage decodes one client frame, runs the command and acks it.
func (s *Session) HandleMessage(conn *Connection, raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
		s.cm.SendAck(conn.ID, newErrorAck(msg.ID, apperrors.New(apperrors.CodeInvalidMessage, "Malformed message.")))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var (
		data any
		err  error
	)
	switch msg.Type {
	case CommandCreatePoll:
		data, err = s.handleCreatePoll(ctx, msg.Data)
	case CommandSubmitVote:
		data, err = s.handleSubmitVote(ctx, conn, msg.Data)
	case CommandSendChat:
		data, err = s.handleSendChat(conn, msg.Data)
	case CommandKickParticipant:
		data, err = s.handleKick(conn, msg.Data)
	default:
		err = apperrors.Newf(apperrors.CodeInvalidMessage, "Unknown command %q.", msg.Type)
	}

	if err != nil {
		if apperrors.HasCode(apperrors.From(err), apperrors.CodeServerError) {
			log.Error().Err(err).Str("command", msg.Type).Str("connection_id", conn.ID).Msg("command failed")
		}
		s.cm.SendAck(conn.ID, newErrorAck(msg.ID, err))
		return
	}
	s.cm.SendAck(conn.ID, newAck(msg.ID, data))
}

func (s *Session) handleCreatePoll(ctx context.Context, raw json.RawMessage) (any, error) {
	var req poll.CreatePollRequest
	if err := decodePayload(raw, &req); err != nil {
		return nil, err
	}
	return s.CreatePoll(ctx, req)
}

func (s *Session) handleSubmitVote(ctx context.Context, conn *Connection, raw json.RawMessage) (any, error) {
	var req poll.SubmitVoteRequest
	if err := decodePayload(raw, &req); err != nil {
		return nil, err
	}
	if conn.Role == RoleAttendee {
		switch strings.TrimSpace(req.StudentID) {
		case "":
			req.StudentID = conn.StudentID
		case conn.StudentID:
		default:
			return nil, apperrors.New(apperrors.CodeValidation, "studentId does not match this connection.")
		}
		if strings.TrimSpace(req.StudentName) == "" {
			req.StudentName = conn.StudentName
		}
	}
	return s.SubmitVote(ctx, req)
}

func (s *Session) handleSendChat(conn *Connection, raw json.RawMessage) (any, error) {
	var payload SendChatPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apperrors.New(apperrors.CodeInvalidMessage, "Invalid chat message.")
	}

	senderID, senderName, role := conn.StudentID, conn.StudentName, models.RoleAttendee
	if conn.Role == RolePresenter {
		senderID, senderName, role = conn.ID, presenterDisplayName, models.RolePresenter
	} else if s.roster.IsKicked(conn.StudentID) {
		return nil, apperrors.New(apperrors.CodeStudentKicked, "You have been removed from this session.")
	}

	msg, err := chat.NewMessage(senderID, senderName, role, payload.Text, s.clock.Now().UTC())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidMessage, "Messages must be 1-300 characters.", err)
	}

	s.chatMu.Lock()
	defer s.chatMu.Unlock()
	s.chat.Append(msg)
	s.cm.Broadcast(s.newEvent(EventTypeChatMessage, msg))
	return msg, nil
}

func (s *Session) handleKick(conn *Connection, raw json.RawMessage) (any, error) {
	if conn.Role != RolePresenter {
		return nil, apperrors.New(apperrors.CodeForbidden, "Only the presenter can remove participants.")
	}
	var payload KickPayload
	if err := decodePayload(raw, &payload); err != nil {
		return nil, err
	}
	payload.StudentID = strings.TrimSpace(payload.StudentID)
	if payload.StudentID == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "studentId is required.")
	}

	s.rosterMu.Lock()
	s.roster.Kick(payload.StudentID)
	// A student who rejoined may still hold older sockets; close them all.
	s.cm.CloseStudent(payload.StudentID, s.newEvent(EventTypeKicked, nil))
	s.enqueueRoster()
	s.rosterMu.Unlock()

	log.Info().Str("student_id", payload.StudentID).Msg("participant kicked")
	return payload, nil
}

// CreatePoll opens a poll and broadcasts its state to every connection.
func (s *Session) CreatePoll(ctx context.Context, req poll.CreatePollRequest) (*poll.PollState, error) {
	created, err := s.engine.CreatePoll(ctx, req)
	if err != nil {
		return nil, err
	}

	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	state := created
	if p, err := s.engine.Poll(ctx, created.Poll.ID); err != nil {
		log.Warn().Err(err).Str("poll_id", created.Poll.ID).Msg("failed to reload created poll")
	} else if fresh, err := s.engine.State(ctx, p); err != nil {
		log.Warn().Err(err).Str("poll_id", created.Poll.ID).Msg("failed to build poll state")
	} else {
		state = fresh
	}

	s.cm.Broadcast(s.newEvent(EventTypePollState, state))
	return state, nil
}

// SubmitVote records a vote and broadcasts the updated tally.
func (s *Session) SubmitVote(ctx context.Context, req poll.SubmitVoteRequest) (*models.PollResults, error) {
	results, err := s.engine.SubmitVote(ctx, req)
	if err != nil {
		return nil, err
	}

	s.publishMu.Lock()
	s.cm.Broadcast(s.newEvent(EventTypePollResults, results))
	s.publishMu.Unlock()
	return results, nil
}

// ActiveState returns the snapshot of the active poll, or a null-poll
// snapshot when none is running.
func (s *Session) ActiveState(ctx context.Context) (*poll.PollState, error) {
	active, err := s.engine.ActivePoll(ctx)
	if err != nil {
		return nil, err
	}
	return s.engine.State(ctx, active)
}

// LatestState returns the snapshot of the most recent poll, ended or not.
func (s *Session) LatestState(ctx context.Context) (*poll.PollState, error) {
	latest, err := s.engine.LatestPoll(ctx)
	if err != nil {
		return nil, err
	}
	return s.engine.State(ctx, latest)
}

func (s *Session) History(ctx context.Context) ([]poll.HistoryEntry, error) {
	return s.engine.History(ctx)
}

func (s *Session) onPollEnded(ctx context.Context, pollID string) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	latest, err := s.engine.LatestPoll(ctx)
	if err != nil {
		log.Error().Err(err).Str("poll_id", pollID).Msg("failed to load ended poll")
		return
	}
	if latest == nil || latest.ID != pollID {
		log.Debug().Str("poll_id", pollID).Msg("ended poll is no longer the latest, skipping broadcast")
		return
	}

	state, err := s.engine.State(ctx, latest)
	if err != nil {
		log.Error().Err(err).Str("poll_id", pollID).Msg("failed to build ended poll state")
		return
	}
	s.cm.Broadcast(s.newEvent(EventTypePollEnded, state))
	s.cm.Broadcast(s.newEvent(EventTypePollResults, state.Results))
}

func (s *Session) broadcastRoster() {
	s.rosterMu.Lock()
	defer s.rosterMu.Unlock()
	s.enqueueRoster()
}

// enqueueRoster broadcasts the current roster. Callers hold rosterMu.
func (s *Session) enqueueRoster() {
	s.cm.Broadcast(s.newEvent(EventTypeRosterList, s.roster.List()))
}

func (s *Session) newEvent(eventType EventType, data any) *ServerEvent {
	event, err := NewServerEvent(eventType, data, s.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to build event")
		return &ServerEvent{Type: eventType, Timestamp: s.clock.Now().UTC()}
	}
	return event
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return apperrors.New(apperrors.CodeValidation, "Missing payload.")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperrors.Wrap(apperrors.CodeValidation, "Invalid payload.", err)
	}
	return nil
}
