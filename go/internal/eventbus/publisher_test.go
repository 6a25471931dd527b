package eventbus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	ev, err := NewEvent(EventTypeVoteCast, "poll-1", VoteCastPayload{
		PollID:    "poll-1",
		OptionID:  "opt-a",
		StudentID: "s1",
	}, now)
	require.NoError(t, err)

	assert.Equal(t, EventTypeVoteCast, ev.EventType)
	assert.Equal(t, "poll-1", ev.PollID)
	assert.Equal(t, now, ev.CreatedAt)
	assert.JSONEq(t, `{"poll_id":"poll-1","option_id":"opt-a","student_id":"s1"}`, string(ev.Payload))
}

func TestNewEventRejectsUnmarshalablePayload(t *testing.T) {
	_, err := NewEvent(EventTypePollCreated, "poll-1", make(chan int), time.Now())
	require.Error(t, err)
}

func TestBuildMessage(t *testing.T) {
	ev, err := NewEvent(EventTypePollEnded, "poll-9", PollEndedPayload{PollID: "poll-9", Reason: "timer"}, time.Now())
	require.NoError(t, err)

	msg, err := buildMessage("livepoll.events", ev)
	require.NoError(t, err)

	assert.Equal(t, "livepoll.events.PollEnded", msg.Subject)
	assert.Equal(t, "poll-9", msg.Header.Get("Poll-ID"))
	assert.Equal(t, ev.ID.String(), msg.Header.Get("Event-ID"))

	var env map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(msg.Data, &env))
	assert.JSONEq(t, `"PollEnded"`, string(env["eventType"]))
	assert.JSONEq(t, string(ev.Payload), string(env["payload"]))
}

func TestStreamConfigMatchesSubjectPrefix(t *testing.T) {
	cfg := DefaultJetStreamConfig()
	sc := streamConfig(cfg)

	assert.Equal(t, []string{"livepoll.events.>"}, sc.Subjects)
	assert.True(t, isStreamConfigEqual(sc, streamConfig(cfg)))

	cfg.Replicas = 3
	assert.False(t, isStreamConfigEqual(sc, streamConfig(cfg)))
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), Event{}))
	assert.NoError(t, p.Close())
}
