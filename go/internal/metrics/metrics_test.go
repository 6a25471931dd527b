package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetricsCounters(t *testing.T) {
	m := NewPrometheusMetrics()

	m.RecordPollCreated()
	m.RecordPollCreated()
	m.RecordPollEnded("timer", 30*time.Second)
	m.RecordPollEnded("all_answered", 4*time.Second)
	m.RecordPollEnded("timer", 60*time.Second)
	m.RecordVote("accepted")
	m.RecordVote("already_voted")
	m.RecordVote("accepted")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.pollsCreated))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.pollsEnded.WithLabelValues("timer")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pollsEnded.WithLabelValues("all_answered")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.votes.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.votes.WithLabelValues("already_voted")))
}

func TestPrometheusMetricsConnections(t *testing.T) {
	m := NewPrometheusMetrics()

	m.ConnectionOpened("attendee")
	m.ConnectionOpened("attendee")
	m.ConnectionOpened("presenter")
	m.ConnectionClosed("attendee")
	m.AdmissionRejected("name_taken")
	m.EventBroadcast("poll-state")
	m.BroadcastDropped()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.connections.WithLabelValues("attendee")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connections.WithLabelValues("presenter")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.admissionRejected.WithLabelValues("name_taken")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.broadcasts.WithLabelValues("poll-state")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.broadcastDropped))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := NewPrometheusMetrics()
	m.RecordPollCreated()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "livepoll_polls_created_total 1")
}
